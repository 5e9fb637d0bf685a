package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Name         string    `json:"name"`
	EmailAddress string    `json:"email_address,omitempty"`
	Image        string    `json:"image,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Conversation struct {
	Id            int       `json:"id"`
	ExternalId    string    `json:"external_id"`
	Name          string    `json:"name,omitempty"`
	IsGroup       bool      `json:"is_group"`
	LastMessageAt time.Time `json:"last_message_at"`
	Users         []User    `json:"users,omitempty"`
	LastMessage   *Message  `json:"last_message,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

type Message struct {
	Id             int       `json:"id"`
	ConversationId string    `json:"conversation_id"`
	Sender         User      `json:"sender"`
	Body           string    `json:"body,omitempty"`
	Image          string    `json:"image,omitempty"`
	SeenBy         []User    `json:"seen_by"`
	CreatedAt      time.Time `json:"created_at"`
}
