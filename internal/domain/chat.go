package domain

import "time"

type ChatKind string

const (
	ChatText  ChatKind = "text"
	ChatOther ChatKind = "other"
)

// ChatMessage is one retained in-session chat entry.
type ChatMessage struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Avatar     string    `json:"avatar,omitempty"`
	Content    string    `json:"content"`
	Kind       ChatKind  `json:"kind"`
	Timestamp  time.Time `json:"timestamp"`
}
