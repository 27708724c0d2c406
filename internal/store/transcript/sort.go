package transcript

import (
	"sort"

	"github.com/wutongtree/backend/internal/model/chat"
)

func sortByTime(messages []chat.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}
