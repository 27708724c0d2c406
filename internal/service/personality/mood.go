package personality

import "github.com/wutongtree/backend/internal/analysis/tone"

// Mood 主持人当前的情绪状态。
type Mood string

const (
	MoodExcited     Mood = "excited"
	MoodCurious     Mood = "curious"
	MoodEmpathetic  Mood = "empathetic"
	MoodPlayful     Mood = "playful"
	MoodThoughtful  Mood = "thoughtful"
	MoodEncouraging Mood = "encouraging"
)

// InitialMood is the mood a fresh policy starts in.
const InitialMood = MoodCurious

// Moods lists all states of the mood machine.
func Moods() []Mood {
	return []Mood{MoodExcited, MoodCurious, MoodEmpathetic, MoodPlayful, MoodThoughtful, MoodEncouraging}
}

// Description 用于拼接 system prompt。
func (m Mood) Description() string {
	switch m {
	case MoodExcited:
		return "excited and energetic"
	case MoodCurious:
		return "genuinely curious and inquisitive"
	case MoodEmpathetic:
		return "empathetic and understanding"
	case MoodPlayful:
		return "playful and lighthearted"
	case MoodThoughtful:
		return "thoughtful and reflective"
	case MoodEncouraging:
		return "encouraging and supportive"
	default:
		return string(m)
	}
}

// Lively reports whether the mood calls for a higher sampling temperature.
func (m Mood) Lively() bool {
	return m == MoodPlayful || m == MoodExcited
}

// Candidates 返回与基调一致的候选情绪。
func Candidates(label tone.Label) []Mood {
	switch label {
	case tone.Excited:
		return []Mood{MoodExcited, MoodEncouraging}
	case tone.Empathetic:
		return []Mood{MoodEmpathetic, MoodEncouraging}
	case tone.Playful:
		return []Mood{MoodPlayful, MoodCurious}
	default:
		return []Mood{MoodCurious, MoodThoughtful}
	}
}

// Style 主持人的回复方式。
type Style string

const (
	StyleQuestionAsker    Style = "questionAsker"
	StyleReactiveListener Style = "reactiveListener"
	StyleTopicBridger     Style = "topicBridger"
	StyleEncourager       Style = "encourager"
)

// Instruction 返回写进 prompt 的角色说明。
func (s Style) Instruction() string {
	switch s {
	case StyleReactiveListener:
		return "React naturally to what they shared, like a friend would"
	case StyleTopicBridger:
		return "Connect what they said to something relatable or ask others to share"
	case StyleEncourager:
		return "Encourage them to share more or validate what they said"
	default:
		return "Ask a specific follow-up question about what they just said"
	}
}
