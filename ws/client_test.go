package ws

import (
	"chat-relay-server/db"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialTestSocket upgrades a loopback connection and hands back both ends.
func dialTestSocket(t *testing.T) (server *websocket.Conn, peer *websocket.Conn) {
	t.Helper()
	serverConnCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverConnCh <- conn
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	peerConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { peerConn.Close() })

	select {
	case serverConn := <-serverConnCh:
		t.Cleanup(func() { serverConn.Close() })
		return serverConn, peerConn
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server side of socket")
		return nil, nil
	}
}

func TestWriteMessageDeliversQueuedMessages(t *testing.T) {
	serverConn, peerConn := dialTestSocket(t)

	user := &db.GetUserByIdRow{ID: uuid.New(), Username: "ana"}
	client := NewClient(serverConn, user, DefaultConfig())
	go client.WriteMessage()
	defer client.cancel()

	msg := testMessage(user.ID, uuid.New())
	client.Message <- msg

	var got RawMessageE2EE
	require.NoError(t, peerConn.ReadJSON(&got))
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, msg.Ciphertext, got.Ciphertext)
}

func TestWriteMessageDeliversEvents(t *testing.T) {
	serverConn, peerConn := dialTestSocket(t)

	user := &db.GetUserByIdRow{ID: uuid.New(), Username: "ana"}
	client := NewClient(serverConn, user, DefaultConfig())
	go client.WriteMessage()
	defer client.cancel()

	groupID := uuid.New()
	client.Events <- newClientEvent(EventGroupUpdated, groupID)

	var got ClientEvent
	require.NoError(t, peerConn.ReadJSON(&got))
	assert.Equal(t, "group_event", got.Type)
	assert.Equal(t, EventGroupUpdated, got.Event)
	assert.Equal(t, groupID, got.GroupID)
}

func TestWriteMessageSendsCloseFrameWhenHubClosesQueue(t *testing.T) {
	serverConn, peerConn := dialTestSocket(t)

	user := &db.GetUserByIdRow{ID: uuid.New(), Username: "ana"}
	client := NewClient(serverConn, user, DefaultConfig())
	go client.WriteMessage()

	close(client.Message)

	_, _, err := peerConn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
}

func TestTrySendEventDropsWhenQueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EventQueueSize = 1

	user := &db.GetUserByIdRow{ID: uuid.New(), Username: "ana"}
	client := NewClient(nil, user, cfg)

	groupID := uuid.New()
	client.TrySendEvent(newClientEvent(EventUserInvited, groupID))

	// Queue is full now; this must not block.
	done := make(chan struct{})
	go func() {
		client.TrySendEvent(newClientEvent(EventUserRemoved, groupID))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("TrySendEvent blocked on a full queue")
	}

	assert.Len(t, client.Events, 1)
	ev := <-client.Events
	assert.Equal(t, EventUserInvited, ev.Event)
}

func TestReadMessageForwardsAuthorizedMessages(t *testing.T) {
	serverConn, peerConn := dialTestSocket(t)

	user := &db.GetUserByIdRow{ID: uuid.New(), Username: "ana"}
	client := NewClient(serverConn, user, DefaultConfig())
	defer client.cancel()

	hub := &Hub{Broadcast: make(chan *RawMessageE2EE, 4)}
	memberGroup := uuid.New()
	otherGroup := uuid.New()
	isMember := func(ctx context.Context, userID, groupID uuid.UUID) (bool, error) {
		return groupID == memberGroup, nil
	}

	go client.ReadMessage(hub, isMember)

	// Unauthorized group: discarded
	require.NoError(t, peerConn.WriteJSON(ClientSentE2EMessage{
		ID:         uuid.New(),
		GroupID:    otherGroup,
		Ciphertext: "YQ==",
		MsgNonce:   "YQ==",
	}))

	// Authorized group: forwarded with the sender stamped server-side
	sent := ClientSentE2EMessage{
		ID:          uuid.New(),
		GroupID:     memberGroup,
		Ciphertext:  "YQ==",
		MsgNonce:    "YQ==",
		MessageType: db.MessageTypeText,
	}
	require.NoError(t, peerConn.WriteJSON(sent))

	select {
	case got := <-hub.Broadcast:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, memberGroup, got.GroupID)
		assert.Equal(t, user.ID, got.SenderID)
	case <-time.After(time.Second):
		t.Fatal("expected authorized message forwarded to hub")
	}

	// The unauthorized message never arrived.
	select {
	case got := <-hub.Broadcast:
		t.Fatalf("unexpected message forwarded: %v", got.GroupID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAddRemoveGroupTracksMembership(t *testing.T) {
	client := newTestClient(uuid.New(), "ana")
	groupID := uuid.New()

	assert.False(t, client.InGroup(groupID))
	client.AddGroup(groupID)
	assert.True(t, client.InGroup(groupID))
	client.RemoveGroup(groupID)
	assert.False(t, client.InGroup(groupID))
}
