package chat

import "time"

// Kind 区分消息来源。
type Kind string

const (
	KindHuman  Kind = "human"
	KindSystem Kind = "system"
	KindAI     Kind = "ai"
)

// SystemSenderID 系统提示消息使用的发送者标识。
const SystemSenderID = "system"

// Message is one immutable entry of a room's ordered log.
type Message struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	Kind       Kind      `json:"kind"`
	CreatedAt  time.Time `json:"createdAt"`
}
