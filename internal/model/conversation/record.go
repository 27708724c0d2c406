package conversation

import (
	"errors"
	"time"
)

// DefaultTopic 录音或结束时没有明确话题时使用。
const DefaultTopic = "General conversation"

// MaxRating 评分上限。
const MaxRating = 5

// ErrInvalidRating 评分超出 0..5 范围。
var ErrInvalidRating = errors.New("rating must be between 0 and 5")

// Record is the persisted summary of a finished conversation.
type Record struct {
	ID              string    `json:"id"`
	PartnerName     string    `json:"partnerName"`
	Topic           string    `json:"topic"`
	DurationSeconds int       `json:"duration"`
	Date            time.Time `json:"date"`
	Rating          int       `json:"rating"`
	HasRecording    bool      `json:"hasRecording"`
}

// ValidateRating checks that a user supplied rating is in range.
func ValidateRating(rating int) error {
	if rating < 0 || rating > MaxRating {
		return ErrInvalidRating
	}
	return nil
}
