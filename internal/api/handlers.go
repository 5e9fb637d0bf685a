package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"messenger/internal/database"
	"messenger/internal/realtime"
	"messenger/internal/types"
)

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateConversationRequest struct {
	UserId  int    `json:"user_id"`
	IsGroup bool   `json:"is_group"`
	Name    string `json:"name"`
	Members []int  `json:"members"`
}

type CreateMessageRequest struct {
	Message        string `json:"message"`
	Image          string `json:"image"`
	ConversationId string `json:"conversation_id"`
}

type UpdateSettingsRequest struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

func (s *MessengerApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func userResponse(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Name:         u.Name,
		EmailAddress: u.EmailAddress,
		Image:        u.Image,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// messageResponse maps a stored message into its wire form. Messages are
// addressed by the conversation's external id, never the internal row id.
func messageResponse(m *database.Message, conversationExternalId string) *types.Message {
	msg := &types.Message{
		Id:             m.Id,
		ConversationId: conversationExternalId,
		Sender:         userResponse(m.Sender),
		Body:           m.Body,
		Image:          m.Image,
		SeenBy:         make([]types.User, 0, len(m.SeenBy)),
		CreatedAt:      m.CreatedAt,
	}

	for _, u := range m.SeenBy {
		msg.SeenBy = append(msg.SeenBy, userResponse(u))
	}

	return msg
}

func conversationResponse(c *database.Conversation) *types.Conversation {
	conv := &types.Conversation{
		Id:            c.Id,
		ExternalId:    c.ExternalId,
		Name:          c.Name,
		IsGroup:       c.IsGroup,
		LastMessageAt: c.LastMessageAt,
		Users:         make([]types.User, 0, len(c.Users)),
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}

	for _, u := range c.Users {
		conv.Users = append(conv.Users, userResponse(u))
	}

	if c.LastMessage != nil {
		conv.LastMessage = messageResponse(c.LastMessage, c.ExternalId)
	}

	return conv
}

func (s *MessengerApp) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		errResp := NewValidationError("name, email and password are required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := mail.ParseAddress(req.Email); err != nil {
		errResp := NewValidationError("invalid email address")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := validatePassword(req.Password); err != nil {
		errResp := NewValidationError(err.Error())
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateAccountParams{
		Name:         req.Name,
		EmailAddress: req.Email,
		PasswordHash: pwdHash,
	}

	newUser, err := s.db.CreateAccount(params)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, userResponse(newUser))
}

func (s *MessengerApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetAccountByEmail(lr.Email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewUnauthorizedError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	u := userResponse(dbUser)

	token, err := s.createJwtForSession(u, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, u)
}

func (s *MessengerApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, userResponse(user))
}

func (s *MessengerApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

// listUsers returns every registered user except the caller. Anonymous
// callers and lookup failures get an empty list rather than an error.
func (s *MessengerApp) listUsers(w http.ResponseWriter, r *http.Request) {
	users := make([]types.User, 0)

	userId, ok := s.sessionUserId(r)
	if !ok {
		s.writeJson(w, http.StatusOK, users)
		return
	}

	curUser, err := s.db.GetAccountById(userId)
	if err != nil {
		s.log.Println("get account:", err)
		s.writeJson(w, http.StatusOK, users)
		return
	}

	dbUsers, err := s.db.ListAccounts(curUser.EmailAddress)
	if err != nil {
		s.log.Println("list accounts:", err)
		s.writeJson(w, http.StatusOK, users)
		return
	}

	for _, u := range dbUsers {
		users = append(users, userResponse(u))
	}

	s.writeJson(w, http.StatusOK, users)
}

func (s *MessengerApp) createConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.IsGroup {
		s.createGroupConversation(w, userId, req)
		return
	}

	s.createDirectConversation(w, userId, req)
}

func (s *MessengerApp) createGroupConversation(w http.ResponseWriter, userId int, req CreateConversationRequest) {
	if req.Name == "" || len(req.Members) < 2 {
		errResp := NewValidationError("group conversations require a name and at least 2 members")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateConversationParams{
		Name:       req.Name,
		ExternalId: sid,
		CreatorId:  userId,
		MemberIds:  req.Members,
	}

	dbConv, err := s.db.CreateGroupConversation(params)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv := conversationResponse(dbConv)
	for _, u := range conv.Users {
		s.publish(u.EmailAddress, realtime.EventConversationNew, conv)
	}

	s.writeJson(w, http.StatusCreated, conv)
}

// createDirectConversation returns the existing 1:1 conversation between the
// two users when one exists, creating it otherwise. Concurrent requests for
// the same pair converge on a single row.
func (s *MessengerApp) createDirectConversation(w http.ResponseWriter, userId int, req CreateConversationRequest) {
	if req.UserId == 0 || req.UserId == userId {
		errResp := NewValidationError("a valid user_id is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbConv, created, err := s.db.GetOrCreateDirectConversation(userId, req.UserId, sid)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv := conversationResponse(dbConv)
	if !created {
		s.writeJson(w, http.StatusOK, conv)
		return
	}

	for _, u := range conv.Users {
		s.publish(u.EmailAddress, realtime.EventConversationNew, conv)
	}

	s.writeJson(w, http.StatusCreated, conv)
}

func (s *MessengerApp) listConversations(w http.ResponseWriter, r *http.Request) {
	conversations := make([]types.Conversation, 0)

	userId, ok := s.sessionUserId(r)
	if !ok {
		s.writeJson(w, http.StatusOK, conversations)
		return
	}

	dbConvs, err := s.db.ListConversations(userId)
	if err != nil {
		s.log.Println("list conversations:", err)
		s.writeJson(w, http.StatusOK, conversations)
		return
	}

	for i := range dbConvs {
		conversations = append(conversations, *conversationResponse(&dbConvs[i]))
	}

	s.writeJson(w, http.StatusOK, conversations)
}

func (s *MessengerApp) getConversation(w http.ResponseWriter, r *http.Request) {
	var conv *types.Conversation

	userId, ok := s.sessionUserId(r)
	if !ok {
		s.writeJson(w, http.StatusOK, conv)
		return
	}

	dbConv, err := s.db.GetConversationByExternalId(r.PathValue("conversationId"))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Println("get conversation:", err)
		}
		s.writeJson(w, http.StatusOK, conv)
		return
	}

	if !s.db.IsMember(dbConv.Id, userId) {
		s.writeJson(w, http.StatusOK, conv)
		return
	}

	s.writeJson(w, http.StatusOK, conversationResponse(dbConv))
}

func (s *MessengerApp) deleteConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbConv, err := s.db.GetConversationByExternalId(r.PathValue("conversationId"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewBadRequestError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsMember(dbConv.Id, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteConversation(dbConv.Id); err != nil {
		s.log.Println("delete conversation:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv := conversationResponse(dbConv)
	for _, u := range conv.Users {
		s.publish(u.EmailAddress, realtime.EventConversationRemove, conv)
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

// leaveConversation removes the caller from a group conversation. The
// conversation itself is dropped once its last member leaves. Direct
// conversations always have exactly two participants and cannot be left.
func (s *MessengerApp) leaveConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbConv, err := s.db.GetConversationByExternalId(r.PathValue("conversationId"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewBadRequestError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !dbConv.IsGroup {
		errResp := NewValidationError("only group conversations can be left")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsMember(dbConv.Id, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.RemoveMember(dbConv.Id, userId); err != nil {
		s.log.Println("remove member:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv := conversationResponse(dbConv)
	for _, u := range conv.Users {
		if u.Id == userId {
			s.publish(u.EmailAddress, realtime.EventConversationRemove, conv)
			continue
		}

		s.publish(u.EmailAddress, realtime.EventConversationUpdate, conv)
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

// markSeen records that the caller has seen the conversation's last message.
// The caller's other sessions are told over their email channel; the
// conversation channel only hears about it the first time the message is
// seen by this user.
func (s *MessengerApp) markSeen(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbConv, err := s.db.GetConversationByExternalId(r.PathValue("conversationId"))
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewBadRequestError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsMember(dbConv.Id, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	lastMsg, err := s.db.GetLastMessage(dbConv.Id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeJson(w, http.StatusOK, conversationResponse(dbConv))
			return
		}
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	alreadySeen := slices.ContainsFunc(lastMsg.SeenBy, func(u database.User) bool {
		return u.Id == userId
	})

	updatedMsg, err := s.db.MarkSeen(lastMsg.Id, userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg := messageResponse(updatedMsg, dbConv.ExternalId)

	caller, err := s.db.GetAccountById(userId)
	if err == nil {
		s.publish(caller.EmailAddress, realtime.EventConversationUpdate, map[string]any{
			"id":       dbConv.ExternalId,
			"messages": []*types.Message{msg},
		})
	}

	if alreadySeen {
		s.writeJson(w, http.StatusOK, conversationResponse(dbConv))
		return
	}

	s.publish(realtime.ConversationChannel(dbConv.ExternalId), realtime.EventMessageUpdate, msg)

	s.writeJson(w, http.StatusOK, msg)
}

func (s *MessengerApp) createMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// a message carries text, an image, or both; reject before touching the db
	if req.Message == "" && req.Image == "" {
		errResp := NewValidationError("message body or image is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbConv, err := s.db.GetConversationByExternalId(req.ConversationId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewBadRequestError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.db.IsMember(dbConv.Id, userId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateMessageParams{
		ConversationId: dbConv.Id,
		SenderId:       userId,
		Body:           req.Message,
		Image:          req.Image,
	}

	newMsg, err := s.db.CreateMessage(params)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg := messageResponse(newMsg, dbConv.ExternalId)

	s.publish(realtime.ConversationChannel(dbConv.ExternalId), realtime.EventMessageNew, msg)

	for _, u := range dbConv.Users {
		s.publish(u.EmailAddress, realtime.EventConversationUpdate, map[string]any{
			"id":       dbConv.ExternalId,
			"messages": []*types.Message{msg},
		})
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *MessengerApp) getMessages(w http.ResponseWriter, r *http.Request) {
	messages := make([]types.Message, 0)

	userId, ok := s.sessionUserId(r)
	if !ok {
		s.writeJson(w, http.StatusOK, messages)
		return
	}

	externalId := r.URL.Query().Get("conversation_id")
	if externalId == "" {
		s.writeJson(w, http.StatusOK, messages)
		return
	}

	dbConv, err := s.db.GetConversationByExternalId(externalId)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Println("get conversation:", err)
		}
		s.writeJson(w, http.StatusOK, messages)
		return
	}

	if !s.db.IsMember(dbConv.Id, userId) {
		s.writeJson(w, http.StatusOK, messages)
		return
	}

	dbMsgs, err := s.db.GetMessages(dbConv.Id)
	if err != nil {
		s.log.Println("get messages:", err)
		s.writeJson(w, http.StatusOK, messages)
		return
	}

	for i := range dbMsgs {
		messages = append(messages, *messageResponse(&dbMsgs[i], dbConv.ExternalId))
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *MessengerApp) updateSettings(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Name == "" {
		errResp := NewValidationError("name is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.UpdateAccountParams{
		UserId: userId,
		Name:   req.Name,
		Image:  req.Image,
	}

	dbUser, err := s.db.UpdateAccount(params)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, userResponse(dbUser))
}

func (s *MessengerApp) deleteAccount(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteAccount(userId); err != nil {
		s.log.Println("delete account:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))

	s.writeJson(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *MessengerApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *MessengerApp) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := realtime.NewClient(userResponse(user), conn, s.hub, s.log)

	s.hub.RegisterClient(client)
	go client.Write()
	go client.Read()
}
