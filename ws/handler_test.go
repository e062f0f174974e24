package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandshakeServer(t *testing.T, authTimeout time.Duration) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := DefaultConfig()
	cfg.AuthTimeout = authTimeout
	handler := NewHandler(&Hub{cfg: cfg}, nil, context.Background(), nil)

	r := gin.New()
	r.GET("/ws/establish-connection", handler.EstablishConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialHandshake(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/establish-connection"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandshakeRejectsInvalidToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "handshake-test-secret")
	srv := newHandshakeServer(t, 5*time.Second)
	conn := dialHandshake(t, srv)

	require.NoError(t, conn.WriteJSON(AuthMessage{Type: "auth", Token: "not-a-jwt"}))

	var resp ServerResponseMessage
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "auth_failure", resp.Type)
	assert.NotEmpty(t, resp.Error)

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, closeCodeAuthFailed, closeErr.Code)
}

func TestHandshakeRejectsNonAuthFirstMessage(t *testing.T) {
	srv := newHandshakeServer(t, 5*time.Second)
	conn := dialHandshake(t, srv)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "chat", "body": "hello"}))

	var resp ServerResponseMessage
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "auth_failure", resp.Type)

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, closeCodeAuthFailed, closeErr.Code)
}

func TestHandshakeRejectsBinaryFirstMessage(t *testing.T) {
	srv := newHandshakeServer(t, 5*time.Second)
	conn := dialHandshake(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseUnsupportedData, closeErr.Code)
}

func TestHandshakeTimesOutWithoutAuthMessage(t *testing.T) {
	srv := newHandshakeServer(t, 100*time.Millisecond)
	conn := dialHandshake(t, srv)

	// Send nothing; the server must give up and close with the timeout code.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, closeCodeAuthTimeout, closeErr.Code)
}
