package ws

import (
	"chat-relay-server/db"
	"chat-relay-server/rediskeys"
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	inserted []db.InsertMessageParams
	users    map[uuid.UUID]db.GetUserByIdRow
	groups   []db.GetAllGroupsRow
	links    []db.UserGroup
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[uuid.UUID]db.GetUserByIdRow)}
}

func (s *fakeStore) InsertMessage(ctx context.Context, arg db.InsertMessageParams) (db.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, arg)
	return db.Message{
		ID:        arg.ID,
		UserID:    arg.UserID,
		GroupID:   arg.GroupID,
		CreatedAt: pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true},
	}, nil
}

func (s *fakeStore) GetUserById(ctx context.Context, id uuid.UUID) (db.GetUserByIdRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return db.GetUserByIdRow{ID: id, Username: "unknown"}, nil
}

func (s *fakeStore) GetAllGroups(ctx context.Context) ([]db.GetAllGroupsRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups, nil
}

func (s *fakeStore) GetAllUserGroups(ctx context.Context) ([]db.UserGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links, nil
}

func (s *fakeStore) insertedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inserted)
}

func newTestHub(t *testing.T, mr *miniredis.Miniredis, store *fakeStore, serverID string) (*Hub, *redis.Client) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(store, ctx, client, NewRedisBus(client), serverID, nil, DefaultConfig())
	go hub.Run()
	return hub, client
}

func newTestClient(userID uuid.UUID, username string) *Client {
	return NewClient(nil, &db.GetUserByIdRow{ID: userID, Username: username}, DefaultConfig())
}

func registerAndWait(t *testing.T, hub *Hub, client *Client) {
	t.Helper()
	hub.Register <- client
	require.Eventually(t, func() bool {
		hub.mutex.RLock()
		defer hub.mutex.RUnlock()
		_, ok := hub.Clients[client.User.ID]
		return ok
	}, time.Second, 5*time.Millisecond)
}

func testMessage(senderID, groupID uuid.UUID) *RawMessageE2EE {
	return &RawMessageE2EE{
		ID:          uuid.New(),
		GroupID:     groupID,
		SenderID:    senderID,
		MsgNonce:    base64.StdEncoding.EncodeToString([]byte("nonce-bytes")),
		Ciphertext:  base64.StdEncoding.EncodeToString([]byte("opaque-ciphertext")),
		MessageType: db.MessageTypeText,
		Envelopes: []Envelope{
			{DeviceID: "device-1", EphPubKey: "cGs=", KeyNonce: "a24=", SealedKey: "c2s="},
		},
	}
}

func TestRegisterPopulatesGroupsFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newFakeStore()

	userID := uuid.New()
	groupID := uuid.New()
	mr.SAdd(rediskeys.UserGroups(userID.String()), groupID.String())
	mr.HSet(rediskeys.GroupInfo(groupID.String()), "name", "climbing")

	hub, client := newTestHub(t, mr, store, "server-a")

	c := newTestClient(userID, "ana")
	registerAndWait(t, hub, c)

	assert.True(t, c.InGroup(groupID))

	hub.mutex.RLock()
	group, ok := hub.Groups[groupID]
	hub.mutex.RUnlock()
	require.True(t, ok)
	assert.Equal(t, "climbing", group.Name)

	// Presence ownership recorded with a TTL
	val, err := client.Get(context.Background(), rediskeys.ClientServer(userID.String())).Result()
	require.NoError(t, err)
	assert.Equal(t, "server-a", val)
	assert.Greater(t, mr.TTL(rediskeys.ClientServer(userID.String())), time.Duration(0))

	isMember, err := client.SIsMember(context.Background(), rediskeys.ServerClients("server-a"), userID.String()).Result()
	require.NoError(t, err)
	assert.True(t, isMember)
}

func TestRegisterHandlesLegacyBinaryGroupIDs(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newFakeStore()

	userID := uuid.New()
	groupID := uuid.New()
	raw := groupID[:]
	mr.SAdd(rediskeys.UserGroups(userID.String()), string(raw))

	hub, _ := newTestHub(t, mr, store, "server-a")

	c := newTestClient(userID, "ana")
	registerAndWait(t, hub, c)

	assert.True(t, c.InGroup(groupID))
}

func TestUnregisterCleansUpLocalAndRedisState(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newFakeStore()

	userID := uuid.New()
	groupID := uuid.New()
	mr.SAdd(rediskeys.UserGroups(userID.String()), groupID.String())

	hub, _ := newTestHub(t, mr, store, "server-a")

	c := newTestClient(userID, "ana")
	registerAndWait(t, hub, c)

	hub.Unregister <- c
	require.Eventually(t, func() bool {
		hub.mutex.RLock()
		defer hub.mutex.RUnlock()
		_, ok := hub.Clients[userID]
		return !ok
	}, time.Second, 5*time.Millisecond)

	// Presence keys gone
	assert.False(t, mr.Exists(rediskeys.ClientServer(userID.String())))

	// Empty group pruned from the local cache
	hub.mutex.RLock()
	_, ok := hub.Groups[groupID]
	hub.mutex.RUnlock()
	assert.False(t, ok)

	// Both outbound queues closed
	_, open := <-c.Message
	assert.False(t, open)
	_, open = <-c.Events
	assert.False(t, open)
}

func TestUnregisterCancelsConnectionContext(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newFakeStore()

	hub, _ := newTestHub(t, mr, store, "server-a")

	c := newTestClient(uuid.New(), "ana")
	registerAndWait(t, hub, c)

	hub.Unregister <- c

	// The read and write loops select on this context; it must be cancelled
	// so they stop even when the socket itself stays quiet.
	select {
	case <-c.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("connection context not cancelled after unregistration")
	}
}

func TestBroadcastPersistsAndDeliversToSender(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newFakeStore()

	userID := uuid.New()
	groupID := uuid.New()
	mr.SAdd(rediskeys.UserGroups(userID.String()), groupID.String())

	hub, _ := newTestHub(t, mr, store, "server-a")

	c := newTestClient(userID, "ana")
	registerAndWait(t, hub, c)

	msg := testMessage(userID, groupID)
	hub.Broadcast <- msg

	// The sender is a group member like any other and receives its own
	// message back, stamped with the authoritative timestamp.
	select {
	case got := <-c.Message:
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, userID, got.SenderID)
		assert.NotEmpty(t, got.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("expected message delivered back to sender")
	}

	require.Equal(t, 1, store.insertedCount())
	store.mu.Lock()
	assert.Equal(t, []byte("opaque-ciphertext"), store.inserted[0].Ciphertext)
	assert.Equal(t, []byte("nonce-bytes"), store.inserted[0].MsgNonce)
	store.mu.Unlock()
}

func TestBroadcastPublishesEvenWithoutLocalMembers(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newFakeStore()

	hub, client := newTestHub(t, mr, store, "server-a")

	groupID := uuid.New()
	ctx := context.Background()
	sub := client.Subscribe(ctx, rediskeys.GroupMessagesChannel(groupID.String()))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	msg := testMessage(uuid.New(), groupID)
	hub.Broadcast <- msg

	select {
	case raw := <-sub.Channel():
		var pubSubMsg PubSubMessage
		require.NoError(t, json.Unmarshal([]byte(raw.Payload), &pubSubMsg))
		assert.Equal(t, "chat_message", pubSubMsg.Type)
		assert.Equal(t, "server-a", pubSubMsg.OriginServerID)
	case <-time.After(time.Second):
		t.Fatal("expected message published to the group channel")
	}

	assert.Equal(t, 1, store.insertedCount())
}

func TestBroadcastDropsUndecodablePayload(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newFakeStore()

	hub, _ := newTestHub(t, mr, store, "server-a")

	msg := testMessage(uuid.New(), uuid.New())
	msg.Ciphertext = "not base64!!!"
	hub.Broadcast <- msg

	// Invalid frames never reach the store.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, store.insertedCount())
}

func TestAddUserToGroupUpdatesRedisAndLocalState(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newFakeStore()

	userID := uuid.New()
	groupID := uuid.New()

	hub, client := newTestHub(t, mr, store, "server-a")

	c := newTestClient(userID, "ana")
	registerAndWait(t, hub, c)

	hub.AddUserToGroupChan <- &AddClientToGroupMsg{UserID: userID, GroupID: groupID}

	require.Eventually(t, func() bool {
		return c.InGroup(groupID)
	}, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	isMember, err := client.SIsMember(ctx, rediskeys.GroupMembers(groupID.String()), userID.String()).Result()
	require.NoError(t, err)
	assert.True(t, isMember)
	inGroups, err := client.SIsMember(ctx, rediskeys.UserGroups(userID.String()), groupID.String()).Result()
	require.NoError(t, err)
	assert.True(t, inGroups)

	// Connected user gets a lifecycle event
	select {
	case ev := <-c.Events:
		assert.Equal(t, "group_event", ev.Type)
		assert.Equal(t, EventUserInvited, ev.Event)
		assert.Equal(t, groupID, ev.GroupID)
	case <-time.After(time.Second):
		t.Fatal("expected user_invited event")
	}
}

func TestRemoveUserFromGroupUpdatesState(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newFakeStore()

	userID := uuid.New()
	groupID := uuid.New()
	mr.SAdd(rediskeys.UserGroups(userID.String()), groupID.String())
	mr.SAdd(rediskeys.GroupMembers(groupID.String()), userID.String())

	hub, client := newTestHub(t, mr, store, "server-a")

	c := newTestClient(userID, "ana")
	registerAndWait(t, hub, c)

	hub.RemoveUserFromGroupChan <- &RemoveClientFromGroupMsg{UserID: userID, GroupID: groupID}

	require.Eventually(t, func() bool {
		return !c.InGroup(groupID)
	}, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	isMember, err := client.SIsMember(ctx, rediskeys.GroupMembers(groupID.String()), userID.String()).Result()
	require.NoError(t, err)
	assert.False(t, isMember)

	select {
	case ev := <-c.Events:
		assert.Equal(t, EventUserRemoved, ev.Event)
	case <-time.After(time.Second):
		t.Fatal("expected user_removed event")
	}
}

func TestGroupLifecycleEventsAreIdempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newFakeStore()

	hub, _ := newTestHub(t, mr, store, "server-a")

	userID := uuid.New()
	groupID := uuid.New()

	c := newTestClient(userID, "ana")
	registerAndWait(t, hub, c)

	// Removal before any add is a no-op
	hub.handleUserRemovedFromGroupEvent(userID, groupID)
	assert.False(t, c.InGroup(groupID))

	// Duplicate adds converge to a single membership
	hub.handleUserAddedToGroupEvent(userID, groupID)
	hub.handleUserAddedToGroupEvent(userID, groupID)
	assert.True(t, c.InGroup(groupID))

	hub.mutex.RLock()
	group := hub.Groups[groupID]
	hub.mutex.RUnlock()
	group.mutex.RLock()
	assert.Len(t, group.Clients, 1)
	group.mutex.RUnlock()

	// A stale update arriving after the delete must not resurrect the group
	hub.handleGroupDeletedEvent(groupID)
	hub.handleGroupUpdatedEvent(groupID, "renamed")

	hub.mutex.RLock()
	_, ok := hub.Groups[groupID]
	hub.mutex.RUnlock()
	assert.False(t, ok)
	assert.False(t, c.InGroup(groupID))
}

func TestCrossInstanceMessageDelivery(t *testing.T) {
	mr := miniredis.RunT(t)

	userA := uuid.New()
	userB := uuid.New()
	groupID := uuid.New()
	mr.SAdd(rediskeys.UserGroups(userA.String()), groupID.String())
	mr.SAdd(rediskeys.UserGroups(userB.String()), groupID.String())

	hubA, _ := newTestHub(t, mr, newFakeStore(), "server-a")
	hubB, _ := newTestHub(t, mr, newFakeStore(), "server-b")

	clientA := newTestClient(userA, "ana")
	registerAndWait(t, hubA, clientA)
	clientB := newTestClient(userB, "bea")
	registerAndWait(t, hubB, clientB)

	// Give listeners time to establish their pattern subscriptions.
	time.Sleep(50 * time.Millisecond)

	msg := testMessage(userA, groupID)
	hubA.Broadcast <- msg

	select {
	case got := <-clientB.Message:
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, userA, got.SenderID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected message relayed to the other instance")
	}

	// Local delivery on the origin instance did not depend on the round-trip.
	select {
	case got := <-clientA.Message:
		assert.Equal(t, msg.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("expected local delivery on origin instance")
	}
}

func TestCrossInstanceGroupDeletion(t *testing.T) {
	mr := miniredis.RunT(t)

	userB := uuid.New()
	groupID := uuid.New()
	mr.SAdd(rediskeys.UserGroups(userB.String()), groupID.String())
	mr.SAdd(rediskeys.GroupMembers(groupID.String()), userB.String())

	hubA, _ := newTestHub(t, mr, newFakeStore(), "server-a")
	hubB, _ := newTestHub(t, mr, newFakeStore(), "server-b")

	clientB := newTestClient(userB, "bea")
	registerAndWait(t, hubB, clientB)

	time.Sleep(50 * time.Millisecond)

	hubA.DeleteHubGroupChan <- &DeleteHubGroupMsg{GroupID: groupID}

	require.Eventually(t, func() bool {
		hubB.mutex.RLock()
		defer hubB.mutex.RUnlock()
		_, ok := hubB.Groups[groupID]
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	assert.False(t, clientB.InGroup(groupID))

	select {
	case ev := <-clientB.Events:
		assert.Equal(t, EventGroupDeleted, ev.Event)
	case <-time.After(time.Second):
		t.Fatal("expected group_deleted event on the other instance")
	}

	assert.False(t, mr.Exists(rediskeys.GroupMembers(groupID.String())))
	assert.False(t, mr.Exists(rediskeys.GroupInfo(groupID.String())))
}

func TestSynchronizeDbToRedisSeedsMembership(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newFakeStore()

	userID := uuid.New()
	groupID := uuid.New()
	store.groups = []db.GetAllGroupsRow{{ID: groupID, Name: "hiking"}}
	store.links = []db.UserGroup{{ID: 1, UserID: &userID, GroupID: &groupID}}

	_, client := newTestHub(t, mr, store, "server-a")

	ctx := context.Background()
	name, err := client.HGet(ctx, rediskeys.GroupInfo(groupID.String()), "name").Result()
	require.NoError(t, err)
	assert.Equal(t, "hiking", name)

	isMember, err := client.SIsMember(ctx, rediskeys.GroupMembers(groupID.String()), userID.String()).Result()
	require.NoError(t, err)
	assert.True(t, isMember)
}

func TestFullMessageQueueDropsForThatClientOnly(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newFakeStore()

	userA := uuid.New()
	userB := uuid.New()
	groupID := uuid.New()
	mr.SAdd(rediskeys.UserGroups(userA.String()), groupID.String())
	mr.SAdd(rediskeys.UserGroups(userB.String()), groupID.String())

	hub, _ := newTestHub(t, mr, store, "server-a")

	cfg := DefaultConfig()
	cfg.MessageQueueSize = 1
	blocked := NewClient(nil, &db.GetUserByIdRow{ID: userA, Username: "ana"}, cfg)
	healthy := NewClient(nil, &db.GetUserByIdRow{ID: userB, Username: "bea"}, cfg)
	registerAndWait(t, hub, blocked)
	registerAndWait(t, hub, healthy)

	// Fill the slow client's queue; nothing is draining it.
	filler := testMessage(userB, groupID)
	blocked.Message <- filler

	msg := testMessage(userA, groupID)
	hub.Broadcast <- msg

	// The healthy client still gets the message.
	select {
	case got := <-healthy.Message:
		assert.Equal(t, msg.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("expected delivery to the client with queue capacity")
	}

	// The slow client's queue still holds only the filler; the new message
	// was dropped for it alone.
	select {
	case got := <-blocked.Message:
		assert.Equal(t, filler.ID, got.ID)
	default:
		t.Fatal("expected the pre-filled message to still be queued")
	}
	assert.Len(t, blocked.Message, 0)
}

func TestDeliveryAndUnregistrationDoNotDeadlock(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newFakeStore()

	groupID := uuid.New()
	users := make([]uuid.UUID, 4)
	for i := range users {
		users[i] = uuid.New()
		mr.SAdd(rediskeys.UserGroups(users[i].String()), groupID.String())
	}

	hub, _ := newTestHub(t, mr, store, "server-a")

	clients := make([]*Client, len(users))
	for i, id := range users {
		clients[i] = newTestClient(id, "user")
		registerAndWait(t, hub, clients[i])
	}

	// Hammer delivery from a second goroutine, the way the pub/sub listener
	// does, while the event loop churns through unregistrations. Holding the
	// group lock across a hub-lock acquisition here used to wedge both loops.
	done := make(chan struct{})
	go func() {
		defer close(done)
		msg := testMessage(users[0], groupID)
		for i := 0; i < 500; i++ {
			hub.deliverChatMessage(msg)
		}
	}()

	for _, c := range clients {
		hub.Unregister <- c
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("delivery loop wedged against unregistration")
	}

	require.Eventually(t, func() bool {
		hub.mutex.RLock()
		defer hub.mutex.RUnlock()
		return len(hub.Clients) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestPresenceRefreshExtendsTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newFakeStore()

	userID := uuid.New()
	hub, _ := newTestHub(t, mr, store, "server-a")

	c := newTestClient(userID, "ana")
	registerAndWait(t, hub, c)

	key := rediskeys.ClientServer(userID.String())
	mr.SetTTL(key, time.Second)

	hub.refreshClientRegistrations()

	assert.Greater(t, mr.TTL(key), time.Second)
}
