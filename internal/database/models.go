package database

import "time"

type User struct {
	Id           int
	Name         string
	EmailAddress string
	Image        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Conversation struct {
	Id            int
	ExternalId    string
	Name          string
	IsGroup       bool
	LastMessageAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Users         []User
	LastMessage   *Message
}

type Message struct {
	Id             int
	ConversationId int
	SenderId       int
	Body           string
	Image          string
	CreatedAt      time.Time
	Sender         User
	SeenBy         []User
}

type CreateAccountParams struct {
	Name         string
	EmailAddress string
	PasswordHash string
}

type UpdateAccountParams struct {
	UserId int
	Name   string
	Image  string
}

type CreateConversationParams struct {
	Name       string
	ExternalId string
	CreatorId  int
	MemberIds  []int
}

type CreateMessageParams struct {
	ConversationId int
	SenderId       int
	Body           string
	Image          string
}
