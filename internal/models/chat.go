package models

import (
	"time"
)

// ChatRole is the author of a conversational turn.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleError     ChatRole = "error"
)

// ChatMessage is one entry of the edit conversation.
type ChatMessage struct {
	ID         string    `json:"id"`
	Role       ChatRole  `json:"role" validate:"required,oneof=user assistant error"`
	Content    string    `json:"content"`
	Confidence *float64  `json:"confidence,omitempty" validate:"omitempty,min=0,max=1"`
	PatchCount *int      `json:"patchCount,omitempty" validate:"omitempty,min=0"`
	ErrorKind  ErrorKind `json:"errorKind,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
