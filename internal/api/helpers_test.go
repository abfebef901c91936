package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-supportchat/internal/config"
	"github.com/npezzotti/go-supportchat/internal/database"
	"github.com/npezzotti/go-supportchat/internal/server"
	"github.com/npezzotti/go-supportchat/internal/stats"
	"github.com/npezzotti/go-supportchat/internal/testutil"
	"github.com/npezzotti/go-supportchat/internal/types"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("test-signing-key")

const testAdminId = 0

func newTestApp(t *testing.T, db *database.MockSupportRepository) *SupportApp {
	logger := testutil.TestLogger(t)
	relay := server.NewRelay(logger, db, stats.NewPermissiveMock(), testAdminId)

	return NewSupportApp(chi.NewRouter(), logger, relay, db, &config.Config{
		ServerAddr:     "localhost:8000",
		SigningKey:     testSigningKey,
		AllowedOrigins: []string{"http://localhost:3000"},
		AdminId:        testAdminId,
	})
}

func signToken(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func tokenFor(t *testing.T, userId int) string {
	return signToken(t, testSigningKey, jwt.MapClaims{
		userIdClaim: userId,
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
}

func withIdentity(r *http.Request, userId int, role types.Role) *http.Request {
	return r.WithContext(WithIdentity(r.Context(), types.Identity{UserId: userId, Role: role}))
}

// dialChat opens a websocket to the app served by srv as userId.
func dialChat(t *testing.T, srv *httptest.Server, userId int, query string) *websocket.Conn {
	t.Helper()

	conn, _, err := tryDialChat(t, srv, userId, query)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

// tryDialChat dials the chat endpoint and returns the handshake response so
// rejected upgrades can be inspected.
func tryDialChat(t *testing.T, srv *httptest.Server, userId int, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	header := http.Header{}
	header.Set("Authorization", "Bearer "+tokenFor(t, userId))

	return websocket.DefaultDialer.Dial(url, header)
}

type event struct {
	Type        string `json:"type"`
	Id          int64  `json:"id"`
	UserId      int    `json:"user_id"`
	Content     string `json:"content"`
	SenderId    int    `json:"sender_id"`
	IsFromAdmin bool   `json:"is_from_admin"`
	Code        int    `json:"code"`
	Error       string `json:"error"`
}

func readEvent(t *testing.T, conn *websocket.Conn) event {
	t.Helper()

	var ev event
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

// expectSilence asserts nothing arrives on conn for a short while.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "expected no event, got %s", raw)
}
