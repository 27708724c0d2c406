package onboarding

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/wutongtree/backend/internal/service/auth"
)

// 回答顺序与脚本问题一一对应
const (
	answerName = iota
	answerAge
	answerInterests
	answerLookingFor
)

var commonInterests = []string{
	"politics", "philosophy", "technology", "art", "music", "sports",
	"science", "literature", "travel", "food", "movies", "gaming",
	"photography", "dancing", "writing", "history", "psychology",
	"cooking", "reading", "fitness", "nature", "business",
}

// ExtractProfile maps the interview answers onto the onboarding profile.
// A non numeric age answer leaves Age unset.
func ExtractProfile(responses []string) auth.Onboarding {
	answer := func(i int) string {
		if i < len(responses) {
			return strings.TrimSpace(responses[i])
		}
		return ""
	}

	profile := auth.Onboarding{
		Name:       answer(answerName),
		Interests:  ExtractInterests(answer(answerInterests)),
		LookingFor: answer(answerLookingFor),
	}
	if age, err := strconv.Atoi(answer(answerAge)); err == nil {
		profile.Age = &age
	}
	if profile.LookingFor == "" {
		profile.LookingFor = defaultLookingFor
	}
	return profile
}

// ExtractInterests 匹配常见兴趣关键词；一个都没有时取前三个长度大于 2 的词。
func ExtractInterests(text string) []string {
	lower := strings.ToLower(text)
	found := []string{}
	for _, interest := range commonInterests {
		if strings.Contains(lower, interest) {
			found = append(found, capitalize(interest))
		}
	}
	if len(found) > 0 {
		return found
	}

	for _, word := range strings.Fields(text) {
		if utf8.RuneCountInString(word) <= 2 {
			continue
		}
		found = append(found, capitalize(word))
		if len(found) == 3 {
			break
		}
	}
	return found
}

func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(word[size:])
}
