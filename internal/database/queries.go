package database

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	userColumns = "id, name, email, COALESCE(image, ''), COALESCE(password_hash, ''), created_at, updated_at"

	addMemberQuery = "INSERT INTO conversation_users (conversation_id, user_id, created_at) " +
		"VALUES ($1, $2, $3) ON CONFLICT DO NOTHING"
)

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.Name,
		&u.EmailAddress,
		&u.Image,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgMessengerRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO users (name, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING "+userColumns,
		params.Name,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	return scanUser(res)
}

func (db *PgMessengerRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE users SET name = $2, image = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING "+userColumns,
		params.UserId,
		params.Name,
		params.Image,
		time.Now().UTC(),
	)

	return scanUser(res)
}

// DeleteAccount removes a user and everything hanging off them: their
// messages, their read receipts, their conversation memberships and any
// conversation left without members.
func (db *PgMessengerRepository) DeleteAccount(userId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec("DELETE FROM messages WHERE sender_id = $1", userId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM message_seen WHERE user_id = $1", userId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM conversation_users WHERE user_id = $1", userId)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		"DELETE FROM conversations c WHERE NOT EXISTS " +
			"(SELECT 1 FROM conversation_users cu WHERE cu.conversation_id = c.id)",
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM users WHERE id = $1", userId)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgMessengerRepository) GetAccountById(userId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE id = $1 LIMIT 1",
		userId,
	)

	return scanUser(row)
}

func (db *PgMessengerRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE email = $1 LIMIT 1",
		email,
	)

	return scanUser(row)
}

func (db *PgMessengerRepository) ListAccounts(excludeEmail string) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT "+userColumns+" FROM users WHERE email <> $1 ORDER BY created_at DESC",
		excludeEmail,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users = make([]User, 0)
	for rows.Next() {
		var u User
		if u, err = scanUser(rows); err != nil {
			break
		}

		users = append(users, u)
	}

	return users, err
}

func (db *PgMessengerRepository) CreateGroupConversation(params CreateConversationParams) (*Conversation, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO conversations (external_id, name, is_group, last_message_at, created_at, updated_at) "+
			"VALUES ($1, $2, TRUE, $3, $3, $3) "+
			"RETURNING id, external_id, COALESCE(name, ''), is_group, last_message_at, created_at, updated_at",
		params.ExternalId,
		params.Name,
		time.Now().UTC(),
	)

	var conv Conversation
	err = res.Scan(
		&conv.Id,
		&conv.ExternalId,
		&conv.Name,
		&conv.IsGroup,
		&conv.LastMessageAt,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	memberIds := append([]int{params.CreatorId}, params.MemberIds...)
	for _, memberId := range memberIds {
		if _, err = tx.Exec(addMemberQuery, conv.Id, memberId, time.Now().UTC()); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	conv.Users, err = db.getConversationUsers(conv.Id)
	return &conv, err
}

// GetOrCreateDirectConversation returns the one-to-one conversation for a
// pair of users, creating it when absent. The pair is keyed canonically so
// two concurrent creates converge on a single row. The second return value
// reports whether a new conversation was created.
func (db *PgMessengerRepository) GetOrCreateDirectConversation(userId, otherUserId int, externalId string) (*Conversation, bool, error) {
	lo, hi := userId, otherUserId
	if lo > hi {
		lo, hi = hi, lo
	}
	directKey := fmt.Sprintf("%d:%d", lo, hi)

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO conversations (external_id, is_group, direct_key, last_message_at, created_at, updated_at) "+
			"VALUES ($1, FALSE, $2, $3, $3, $3) ON CONFLICT (direct_key) DO NOTHING "+
			"RETURNING id, external_id, COALESCE(name, ''), is_group, last_message_at, created_at, updated_at",
		externalId,
		directKey,
		time.Now().UTC(),
	)

	var conv Conversation
	err = res.Scan(
		&conv.Id,
		&conv.ExternalId,
		&conv.Name,
		&conv.IsGroup,
		&conv.LastMessageAt,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		// lost the race or the conversation already existed
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return nil, false, rollbackErr
		}

		row := db.conn.QueryRow(
			"SELECT id, external_id, COALESCE(name, ''), is_group, last_message_at, created_at, updated_at "+
				"FROM conversations WHERE direct_key = $1 LIMIT 1",
			directKey,
		)
		err = row.Scan(
			&conv.Id,
			&conv.ExternalId,
			&conv.Name,
			&conv.IsGroup,
			&conv.LastMessageAt,
			&conv.CreatedAt,
			&conv.UpdatedAt,
		)
		if err != nil {
			return nil, false, err
		}

		conv.Users, err = db.getConversationUsers(conv.Id)
		return &conv, false, err
	}
	if err != nil {
		return nil, false, err
	}

	for _, memberId := range []int{userId, otherUserId} {
		if _, err = tx.Exec(addMemberQuery, conv.Id, memberId, time.Now().UTC()); err != nil {
			return nil, false, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, false, err
	}

	conv.Users, err = db.getConversationUsers(conv.Id)
	return &conv, true, err
}

func (db *PgMessengerRepository) GetConversationByExternalId(externalId string) (*Conversation, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, COALESCE(name, ''), is_group, last_message_at, created_at, updated_at "+
			"FROM conversations WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var conv Conversation
	err := row.Scan(
		&conv.Id,
		&conv.ExternalId,
		&conv.Name,
		&conv.IsGroup,
		&conv.LastMessageAt,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	conv.Users, err = db.getConversationUsers(conv.Id)
	return &conv, err
}

func (db *PgMessengerRepository) ListConversations(userId int) ([]Conversation, error) {
	rows, err := db.conn.Query(
		"SELECT c.id, c.external_id, COALESCE(c.name, ''), c.is_group, c.last_message_at, c.created_at, c.updated_at "+
			"FROM conversations c JOIN conversation_users cu ON cu.conversation_id = c.id "+
			"WHERE cu.user_id = $1 ORDER BY c.last_message_at DESC",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations = make([]Conversation, 0)
	for rows.Next() {
		var conv Conversation
		err = rows.Scan(
			&conv.Id,
			&conv.ExternalId,
			&conv.Name,
			&conv.IsGroup,
			&conv.LastMessageAt,
			&conv.CreatedAt,
			&conv.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		conversations = append(conversations, conv)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for i := range conversations {
		conversations[i].Users, err = db.getConversationUsers(conversations[i].Id)
		if err != nil {
			return nil, err
		}

		lastMsg, err := db.GetLastMessage(conversations[i].Id)
		if err != nil && err != sql.ErrNoRows {
			return nil, err
		}
		conversations[i].LastMessage = lastMsg
	}

	return conversations, nil
}

func (db *PgMessengerRepository) DeleteConversation(id int) error {
	// members, messages and seen rows go with it via cascading deletes
	_, err := db.conn.Exec("DELETE FROM conversations WHERE id = $1", id)
	return err
}

// RemoveMember drops a user from a conversation, deleting the conversation
// itself once no members remain.
func (db *PgMessengerRepository) RemoveMember(conversationId, userId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec(
		"DELETE FROM conversation_users WHERE conversation_id = $1 AND user_id = $2",
		conversationId,
		userId,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		"DELETE FROM conversations c WHERE c.id = $1 AND NOT EXISTS "+
			"(SELECT 1 FROM conversation_users cu WHERE cu.conversation_id = c.id)",
		conversationId,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgMessengerRepository) IsMember(conversationId, userId int) bool {
	res := db.conn.QueryRow(
		"SELECT 1 FROM conversation_users WHERE conversation_id = $1 AND user_id = $2 LIMIT 1",
		conversationId,
		userId,
	)

	var one int
	return res.Scan(&one) == nil
}

// CreateMessage stores a message, records the sender as having seen it and
// bumps the conversation's last-message timestamp in a single transaction.
func (db *PgMessengerRepository) CreateMessage(params CreateMessageParams) (*Message, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res := tx.QueryRow(
		"INSERT INTO messages (conversation_id, sender_id, body, image, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id",
		params.ConversationId,
		params.SenderId,
		params.Body,
		params.Image,
		now,
	)

	var messageId int
	if err = res.Scan(&messageId); err != nil {
		return nil, err
	}

	_, err = tx.Exec(
		"INSERT INTO message_seen (message_id, user_id, created_at) VALUES ($1, $2, $3)",
		messageId,
		params.SenderId,
		now,
	)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(
		"UPDATE conversations SET last_message_at = $2, updated_at = $2 WHERE id = $1",
		params.ConversationId,
		now,
	)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return db.getMessage(messageId)
}

func (db *PgMessengerRepository) GetMessages(conversationId int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT m.id, m.conversation_id, m.sender_id, COALESCE(m.body, ''), COALESCE(m.image, ''), m.created_at, "+
			"u.id, u.name, u.email, COALESCE(u.image, ''), u.created_at, u.updated_at "+
			"FROM messages m JOIN users u ON u.id = m.sender_id "+
			"WHERE m.conversation_id = $1 ORDER BY m.created_at ASC, m.id ASC",
		conversationId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0)
	for rows.Next() {
		var msg Message
		err = rows.Scan(
			&msg.Id,
			&msg.ConversationId,
			&msg.SenderId,
			&msg.Body,
			&msg.Image,
			&msg.CreatedAt,
			&msg.Sender.Id,
			&msg.Sender.Name,
			&msg.Sender.EmailAddress,
			&msg.Sender.Image,
			&msg.Sender.CreatedAt,
			&msg.Sender.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		messages = append(messages, msg)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for i := range messages {
		messages[i].SeenBy, err = db.getMessageSeen(messages[i].Id)
		if err != nil {
			return nil, err
		}
	}

	return messages, nil
}

func (db *PgMessengerRepository) GetLastMessage(conversationId int) (*Message, error) {
	row := db.conn.QueryRow(
		"SELECT m.id, m.conversation_id, m.sender_id, COALESCE(m.body, ''), COALESCE(m.image, ''), m.created_at, "+
			"u.id, u.name, u.email, COALESCE(u.image, ''), u.created_at, u.updated_at "+
			"FROM messages m JOIN users u ON u.id = m.sender_id "+
			"WHERE m.conversation_id = $1 ORDER BY m.created_at DESC, m.id DESC LIMIT 1",
		conversationId,
	)

	var msg Message
	err := row.Scan(
		&msg.Id,
		&msg.ConversationId,
		&msg.SenderId,
		&msg.Body,
		&msg.Image,
		&msg.CreatedAt,
		&msg.Sender.Id,
		&msg.Sender.Name,
		&msg.Sender.EmailAddress,
		&msg.Sender.Image,
		&msg.Sender.CreatedAt,
		&msg.Sender.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.SeenBy, err = db.getMessageSeen(msg.Id)
	return &msg, err
}

// MarkSeen adds a user to a message's seen set. Marking a message seen
// twice is a no-op.
func (db *PgMessengerRepository) MarkSeen(messageId, userId int) (*Message, error) {
	_, err := db.conn.Exec(
		"INSERT INTO message_seen (message_id, user_id, created_at) "+
			"VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
		messageId,
		userId,
		time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}

	return db.getMessage(messageId)
}

func (db *PgMessengerRepository) getMessage(messageId int) (*Message, error) {
	row := db.conn.QueryRow(
		"SELECT m.id, m.conversation_id, m.sender_id, COALESCE(m.body, ''), COALESCE(m.image, ''), m.created_at, "+
			"u.id, u.name, u.email, COALESCE(u.image, ''), u.created_at, u.updated_at "+
			"FROM messages m JOIN users u ON u.id = m.sender_id WHERE m.id = $1 LIMIT 1",
		messageId,
	)

	var msg Message
	err := row.Scan(
		&msg.Id,
		&msg.ConversationId,
		&msg.SenderId,
		&msg.Body,
		&msg.Image,
		&msg.CreatedAt,
		&msg.Sender.Id,
		&msg.Sender.Name,
		&msg.Sender.EmailAddress,
		&msg.Sender.Image,
		&msg.Sender.CreatedAt,
		&msg.Sender.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	msg.SeenBy, err = db.getMessageSeen(msg.Id)
	return &msg, err
}

func (db *PgMessengerRepository) getMessageSeen(messageId int) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT u.id, u.name, u.email, COALESCE(u.image, '') FROM message_seen ms "+
			"JOIN users u ON u.id = ms.user_id WHERE ms.message_id = $1 ORDER BY ms.created_at ASC",
		messageId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users = make([]User, 0)
	for rows.Next() {
		var u User
		if err = rows.Scan(&u.Id, &u.Name, &u.EmailAddress, &u.Image); err != nil {
			break
		}

		users = append(users, u)
	}

	return users, err
}

func (db *PgMessengerRepository) getConversationUsers(conversationId int) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT u.id, u.name, u.email, COALESCE(u.image, ''), u.created_at, u.updated_at "+
			"FROM conversation_users cu JOIN users u ON u.id = cu.user_id "+
			"WHERE cu.conversation_id = $1 ORDER BY cu.created_at ASC",
		conversationId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users = make([]User, 0)
	for rows.Next() {
		var u User
		if err = rows.Scan(&u.Id, &u.Name, &u.EmailAddress, &u.Image, &u.CreatedAt, &u.UpdatedAt); err != nil {
			break
		}

		users = append(users, u)
	}

	return users, err
}
