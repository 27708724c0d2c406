package room

import (
	"github.com/wutongtree/backend/internal/model/chat"
)

// EventType 房间推送给客户端的事件类型。
type EventType string

const (
	EventMessage    EventType = "message"
	EventSpeaking   EventType = "speaking"
	EventLevels     EventType = "levels"
	EventTranscript EventType = "transcript"
	EventState      EventType = "state"
	EventEnded      EventType = "ended"
)

// Event is pushed to every subscriber of a room.
type Event struct {
	Type       EventType          `json:"type"`
	RoomID     string             `json:"roomId"`
	Message    *chat.Message      `json:"message,omitempty"`
	Speaking   []string           `json:"speaking,omitempty"`
	Levels     map[string]float64 `json:"levels,omitempty"`
	Volume     float64            `json:"volume,omitempty"`
	Transcript string             `json:"transcript,omitempty"`
	Toggles    *Toggles           `json:"toggles,omitempty"`
}

// Toggles are the user controlled switches of a room.
type Toggles struct {
	Muted     bool `json:"muted"`
	SpeakerOn bool `json:"speakerOn"`
	Recording bool `json:"recording"`
}

const subscriberBuffer = 64

// hub 由 actor 独占，不需要加锁。
type hub struct {
	nextID      int
	subscribers map[int]chan Event
}

func newHub() *hub {
	return &hub{subscribers: make(map[int]chan Event)}
}

func (h *hub) add() (int, chan Event) {
	h.nextID++
	ch := make(chan Event, subscriberBuffer)
	h.subscribers[h.nextID] = ch
	return h.nextID, ch
}

func (h *hub) remove(id int) {
	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

// publish 慢订阅者会丢事件，不能阻塞 actor。
func (h *hub) publish(ev Event) {
	for _, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *hub) closeAll() {
	for id := range h.subscribers {
		h.remove(id)
	}
}
