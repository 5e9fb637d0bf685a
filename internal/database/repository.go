package database

type MessengerRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, error)
	DeleteAccount(userId int) error
	GetAccountById(userId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	ListAccounts(excludeEmail string) ([]User, error)
	CreateGroupConversation(params CreateConversationParams) (*Conversation, error)
	GetOrCreateDirectConversation(userId, otherUserId int, externalId string) (*Conversation, bool, error)
	GetConversationByExternalId(externalId string) (*Conversation, error)
	ListConversations(userId int) ([]Conversation, error)
	DeleteConversation(id int) error
	RemoveMember(conversationId, userId int) error
	IsMember(conversationId, userId int) bool
	CreateMessage(params CreateMessageParams) (*Message, error)
	GetMessages(conversationId int) ([]Message, error)
	GetLastMessage(conversationId int) (*Message, error)
	MarkSeen(messageId, userId int) (*Message, error)
}
