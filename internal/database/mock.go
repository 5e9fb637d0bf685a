package database

import (
	"github.com/stretchr/testify/mock"
)

type MockMessengerRepository struct {
	mock.Mock
}

func (m *MockMessengerRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockMessengerRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockMessengerRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockMessengerRepository) DeleteAccount(userId int) error {
	args := m.Called(userId)
	return args.Error(0)
}
func (m *MockMessengerRepository) GetAccountById(userId int) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockMessengerRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockMessengerRepository) ListAccounts(excludeEmail string) ([]User, error) {
	args := m.Called(excludeEmail)
	if users, ok := args.Get(0).([]User); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockMessengerRepository) CreateGroupConversation(params CreateConversationParams) (*Conversation, error) {
	args := m.Called(params)
	if conv, ok := args.Get(0).(*Conversation); ok {
		return conv, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockMessengerRepository) GetOrCreateDirectConversation(userId, otherUserId int, externalId string) (*Conversation, bool, error) {
	args := m.Called(userId, otherUserId, externalId)
	if conv, ok := args.Get(0).(*Conversation); ok {
		return conv, args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}
func (m *MockMessengerRepository) GetConversationByExternalId(externalId string) (*Conversation, error) {
	args := m.Called(externalId)
	if conv, ok := args.Get(0).(*Conversation); ok {
		return conv, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockMessengerRepository) ListConversations(userId int) ([]Conversation, error) {
	args := m.Called(userId)
	if convs, ok := args.Get(0).([]Conversation); ok {
		return convs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockMessengerRepository) DeleteConversation(id int) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockMessengerRepository) RemoveMember(conversationId, userId int) error {
	args := m.Called(conversationId, userId)
	return args.Error(0)
}
func (m *MockMessengerRepository) IsMember(conversationId, userId int) bool {
	args := m.Called(conversationId, userId)
	return args.Bool(0)
}
func (m *MockMessengerRepository) CreateMessage(params CreateMessageParams) (*Message, error) {
	args := m.Called(params)
	if msg, ok := args.Get(0).(*Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockMessengerRepository) GetMessages(conversationId int) ([]Message, error) {
	args := m.Called(conversationId)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockMessengerRepository) GetLastMessage(conversationId int) (*Message, error) {
	args := m.Called(conversationId)
	if msg, ok := args.Get(0).(*Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockMessengerRepository) MarkSeen(messageId, userId int) (*Message, error) {
	args := m.Called(messageId, userId)
	if msg, ok := args.Get(0).(*Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}
