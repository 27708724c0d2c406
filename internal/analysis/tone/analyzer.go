package tone

import "strings"

// Label 表示最近对话的整体基调。
type Label string

const (
	Excited    Label = "excited"
	Empathetic Label = "empathetic"
	Playful    Label = "playful"
	Curious    Label = "curious"
)

// Window 参与基调判断的最近消息条数。
const Window = 3

// bucket 按优先级排列，先命中者胜出。
type bucket struct {
	label    Label
	keywords []string
}

var keywordBuckets = []bucket{
	{label: Excited, keywords: []string{"excited", "amazing", "love"}},
	{label: Empathetic, keywords: []string{"difficult", "hard", "struggle"}},
	{label: Playful, keywords: []string{"funny", "lol", "haha"}},
}

// Labels lists every tone in detection priority order.
func Labels() []Label {
	return []Label{Excited, Empathetic, Playful, Curious}
}

// Detect 对最近 Window 条内容做朴素的关键词匹配。没有命中时返回 Curious。
func Detect(contents []string) Label {
	if len(contents) > Window {
		contents = contents[len(contents)-Window:]
	}

	normalized := strings.ToLower(strings.Join(contents, " "))
	if strings.TrimSpace(normalized) == "" {
		return Curious
	}

	for _, b := range keywordBuckets {
		for _, word := range b.keywords {
			if strings.Contains(normalized, word) {
				return b.label
			}
		}
	}
	return Curious
}
