package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/server"
	"github.com/npezzotti/go-supportchat/internal/types"
)

func (s *SupportApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *SupportApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *SupportApp) getHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	customerId, err := strconv.Atoi(chi.URLParam(r, "user_id"))
	if err != nil || customerId <= 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if id.Role != types.RoleAdmin && id.UserId != customerId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.GetAccountById(customerId); err != nil {
		errResp := apiErrorFrom(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages, err := s.db.GetMessages(r.Context(), customerId)
	if err != nil {
		s.log.Println("get messages:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	history := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		history = append(history, s.historyMessage(msg))
	}

	s.writeJson(w, http.StatusOK, history)
}

func (s *SupportApp) historyMessage(msg database.Message) types.Message {
	m := types.Message{
		Id:          msg.Id,
		Content:     msg.Content,
		SenderId:    msg.ConversationId,
		ReceiverId:  s.adminId,
		IsFromAdmin: msg.IsFromAdmin(),
		CreatedAt:   msg.CreatedAt.UTC(),
	}
	if m.IsFromAdmin {
		m.SenderId, m.ReceiverId = s.adminId, msg.ConversationId
	}

	return m
}

// listUsers returns every account, admins included, so the console can tell
// them apart by is_admin.
func (s *SupportApp) listUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.db.ListUsers()
	if err != nil {
		s.log.Println("list users:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	users := make([]types.User, 0, len(accounts))
	for _, a := range accounts {
		users = append(users, types.User{
			Id:        a.Id,
			Email:     a.Email,
			Name:      a.Name,
			IsAdmin:   a.IsAdmin,
			CreatedAt: a.CreatedAt,
		})
	}

	s.writeJson(w, http.StatusOK, types.UserList{Users: users})
}

func (s *SupportApp) getStats(w http.ResponseWriter, r *http.Request) {
	total, err := s.relay.CountMessages(r.Context())
	if err != nil {
		s.log.Println("count messages:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, types.Stats{
		TotalMessages:     total,
		ActiveConnections: s.relay.ActiveConnections(),
	})
}

// replayConversation picks the conversation whose history a new connection
// receives: a customer's own, or the one an admin asks for with user_id.
func replayConversation(r *http.Request, id types.Identity) (int, error) {
	if id.Role == types.RoleCustomer {
		return id.UserId, nil
	}

	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		return 0, nil
	}

	customerId, err := strconv.Atoi(raw)
	if err != nil || customerId <= 0 {
		return 0, &types.ValidationError{Field: "user_id", Reason: "must be a positive integer"}
	}

	return customerId, nil
}

func (s *SupportApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	replay, err := replayConversation(r, id)
	if err != nil {
		errResp := apiErrorFrom(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// a customer's own account was already loaded by authMiddleware
	if id.Role == types.RoleAdmin && replay > 0 {
		if _, err := s.db.GetAccountById(replay); err != nil {
			errResp := apiErrorFrom(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
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

	client := server.NewClient(id, conn, s.relay, s.log)
	if err := s.relay.Connect(r.Context(), client, replay); err != nil {
		s.log.Println("connect client:", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "history unavailable"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	s.relay.Start(client)
}
