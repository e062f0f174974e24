package ws

import (
	"chat-relay-server/db"
	"chat-relay-server/rediskeys"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Group is the local cache entry for a group: only the members reachable
// through this instance's open sockets. The durable store and Redis hold full
// membership; this exists purely for routing. Its member map is mutated both
// by the hub event loop and by the pub/sub listener, hence its own lock.
type Group struct {
	ID      uuid.UUID             `json:"id"`
	Name    string                `json:"name"`
	Clients map[uuid.UUID]*Client `json:"clients"`
	mutex   sync.RWMutex
}

type RemoveClientFromGroupMsg struct {
	UserID  uuid.UUID
	GroupID uuid.UUID
}

type AddClientToGroupMsg struct {
	UserID  uuid.UUID
	GroupID uuid.UUID
}

type InitializeGroupMsg struct {
	GroupID uuid.UUID
	Name    string
	AdminID uuid.UUID
}

type DeleteHubGroupMsg struct {
	GroupID uuid.UUID
}

type PubSubMessage struct {
	Type           string      `json:"type"`
	Payload        interface{} `json:"payload"`
	OriginServerID string      `json:"origin_server_id"`
}

type ChatMessagePayload struct {
	Message *RawMessageE2EE `json:"message"`
}

type UserGroupEventPayload struct {
	UserID  uuid.UUID `json:"user_id"`
	GroupID uuid.UUID `json:"group_id"`
}

type GroupEventPayload struct {
	GroupID uuid.UUID `json:"group_id"`
	Name    string    `json:"name,omitempty"`
	AdminID uuid.UUID `json:"admin_id,omitempty"`
}

type GroupUpdateEventPayload struct {
	GroupID uuid.UUID `json:"group_id"`
	Name    string    `json:"name,omitempty"`
}

// Hub owns all local routing state for one server instance. Every mutation of
// the top-level registries flows through the typed channels consumed by Run;
// the per-group member maps are additionally touched by the pub/sub listener
// under their own locks so cross-instance delivery never queues behind the
// event loop.
type Hub struct {
	Clients                 map[uuid.UUID]*Client
	Groups                  map[uuid.UUID]*Group
	Register                chan *Client
	Unregister              chan *Client
	Broadcast               chan *RawMessageE2EE
	RemoveUserFromGroupChan chan *RemoveClientFromGroupMsg
	AddUserToGroupChan      chan *AddClientToGroupMsg
	InitializeGroupChan     chan *InitializeGroupMsg
	DeleteHubGroupChan      chan *DeleteHubGroupMsg
	UpdateGroupInfoChan     chan *GroupUpdateEventPayload
	mutex                   sync.RWMutex
	redisClient             *redis.Client
	bus                     Bus
	serverID                string
	store                   MessageStore
	notifier                Notifier
	cfg                     Config
	ctx                     context.Context
}

func NewHub(
	store MessageStore,
	ctx context.Context,
	redisClient *redis.Client,
	bus Bus,
	serverID string,
	notifier Notifier,
	cfg Config,
) *Hub {
	hub := &Hub{
		Clients:                 make(map[uuid.UUID]*Client),
		Groups:                  make(map[uuid.UUID]*Group),
		Register:                make(chan *Client),
		Unregister:              make(chan *Client),
		Broadcast:               make(chan *RawMessageE2EE, cfg.BroadcastBuffer),
		RemoveUserFromGroupChan: make(chan *RemoveClientFromGroupMsg, cfg.LifecycleBuffer),
		AddUserToGroupChan:      make(chan *AddClientToGroupMsg, cfg.LifecycleBuffer),
		InitializeGroupChan:     make(chan *InitializeGroupMsg, cfg.LifecycleBuffer),
		DeleteHubGroupChan:      make(chan *DeleteHubGroupMsg, cfg.LifecycleBuffer),
		UpdateGroupInfoChan:     make(chan *GroupUpdateEventPayload, cfg.LifecycleBuffer),
		redisClient:             redisClient,
		bus:                     bus,
		serverID:                serverID,
		store:                   store,
		notifier:                notifier,
		cfg:                     cfg,
		ctx:                     ctx,
	}

	// Seed Redis from the durable store so a cold or newly joined instance
	// can resolve memberships. Add-only, so it is safe for every instance to
	// run it.
	if err := hub.synchronizeDbToRedis(); err != nil {
		log.Printf("Hub %s: CRITICAL - Failed to synchronize DB to Redis on startup: %v. Redis might be out of sync.", serverID, err)
	} else {
		log.Printf("Hub %s: Successfully synchronized DB to Redis (or verified sync).", serverID)
	}

	go hub.listenPubSub()
	return hub
}

func (h *Hub) synchronizeDbToRedis() error {
	dbGroups, err := h.store.GetAllGroups(h.ctx)
	if err != nil {
		return fmt.Errorf("error fetching all groups from DB: %w", err)
	}

	pipe := h.redisClient.Pipeline()
	for _, dbGroup := range dbGroups {
		groupInfoKey := rediskeys.GroupInfo(dbGroup.ID.String())
		pipe.HSet(h.ctx, groupInfoKey, "id", dbGroup.ID.String(), "name", dbGroup.Name)
	}

	links, err := h.store.GetAllUserGroups(h.ctx)
	if err != nil {
		return fmt.Errorf("error fetching all user_group links from DB: %w", err)
	}

	for _, link := range links {
		if link.UserID == nil || link.GroupID == nil || *link.UserID == uuid.Nil || *link.GroupID == uuid.Nil {
			log.Printf("Hub %s: Skipping sync for invalid user_group link: %+v", h.serverID, link)
			continue
		}
		userIDStr := link.UserID.String()
		groupIDStr := link.GroupID.String()
		pipe.SAdd(h.ctx, rediskeys.UserGroups(userIDStr), groupIDStr)
		pipe.SAdd(h.ctx, rediskeys.GroupMembers(groupIDStr), userIDStr)
	}

	if _, err := pipe.Exec(h.ctx); err != nil {
		return fmt.Errorf("error executing Redis pipeline for DB sync: %w", err)
	}
	return nil
}

// listenPubSub receives cross-instance traffic: chat messages on the
// per-group topics and lifecycle events on the shared events topic. It applies
// local-cache mutations directly (under the per-group locks) instead of going
// through the hub channels, so delivery cannot queue behind the event loop.
func (h *Hub) listenPubSub() {
	sub := h.bus.Subscribe(h.ctx, rediskeys.PubSubGroupEventsChannel)
	defer sub.Close()

	groupMessagesPattern := rediskeys.PubSubGroupMessagesChannel + ":*"
	if err := sub.PSubscribe(h.ctx, groupMessagesPattern); err != nil {
		log.Printf("Hub %s: Error PSubscribing to %s: %v", h.serverID, groupMessagesPattern, err)
		return
	}

	ch := sub.Channel()
	log.Printf("Hub %s listening to Pub/Sub (Events: %s, Messages: %s)", h.serverID, rediskeys.PubSubGroupEventsChannel, groupMessagesPattern)

	for {
		select {
		case <-h.ctx.Done():
			log.Printf("Hub %s: Context cancelled, stopping PubSub listener.", h.serverID)
			return
		case msg, ok := <-ch:
			if !ok {
				log.Printf("Hub %s: PubSub channel closed.", h.serverID)
				return
			}

			var pubSubMsg PubSubMessage
			if err := json.Unmarshal([]byte(msg.Payload), &pubSubMsg); err != nil {
				log.Printf("Hub %s: Error unmarshalling pubsub message from channel %s: %v. Payload: %s",
					h.serverID, msg.Channel, err, msg.Payload)
				continue
			}

			// The originating instance already applied this mutation locally
			// before publishing.
			if pubSubMsg.OriginServerID == h.serverID {
				continue
			}

			switch pubSubMsg.Type {
			case "chat_message":
				var payload ChatMessagePayload
				if err := mapToStruct(pubSubMsg.Payload, &payload); err != nil {
					log.Printf("Hub %s: Error decoding chat_message payload: %v", h.serverID, err)
					continue
				}
				h.deliverChatMessage(payload.Message)
			case "user_added_to_group":
				var payload UserGroupEventPayload
				if err := mapToStruct(pubSubMsg.Payload, &payload); err != nil {
					log.Printf("Hub %s: Error decoding user_added_to_group payload: %v", h.serverID, err)
					continue
				}
				h.handleUserAddedToGroupEvent(payload.UserID, payload.GroupID)
			case "user_removed_from_group":
				var payload UserGroupEventPayload
				if err := mapToStruct(pubSubMsg.Payload, &payload); err != nil {
					log.Printf("Hub %s: Error decoding user_removed_from_group payload: %v", h.serverID, err)
					continue
				}
				h.handleUserRemovedFromGroupEvent(payload.UserID, payload.GroupID)
			case "group_created":
				var payload GroupEventPayload
				if err := mapToStruct(pubSubMsg.Payload, &payload); err != nil {
					log.Printf("Hub %s: Error decoding group_created payload: %v", h.serverID, err)
					continue
				}
				h.handleGroupCreatedEvent(payload.GroupID, payload.Name, payload.AdminID)
			case "group_deleted":
				var payload GroupEventPayload
				if err := mapToStruct(pubSubMsg.Payload, &payload); err != nil {
					log.Printf("Hub %s: Error decoding group_deleted payload: %v", h.serverID, err)
					continue
				}
				h.handleGroupDeletedEvent(payload.GroupID)
			case "group_updated":
				var payload GroupUpdateEventPayload
				if err := mapToStruct(pubSubMsg.Payload, &payload); err != nil {
					log.Printf("Hub %s: Error decoding group_updated payload: %v", h.serverID, err)
					continue
				}
				h.handleGroupUpdatedEvent(payload.GroupID, payload.Name)
			default:
				log.Printf("Hub %s: Unknown pubsub message type %q on channel %s", h.serverID, pubSubMsg.Type, msg.Channel)
			}
		}
	}
}

func mapToStruct(data interface{}, result interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, result)
}

func (h *Hub) publish(channel, msgType string, payload interface{}) {
	pubSubMsg := PubSubMessage{
		Type:           msgType,
		Payload:        payload,
		OriginServerID: h.serverID,
	}
	serialized, err := json.Marshal(pubSubMsg)
	if err != nil {
		log.Printf("Hub %s: Error marshalling %s for PubSub: %v", h.serverID, msgType, err)
		return
	}
	if err := h.bus.Publish(h.ctx, channel, serialized); err != nil {
		log.Printf("Hub %s: Error publishing %s to channel %s: %v", h.serverID, msgType, channel, err)
	}
}

// deliverChatMessage enqueues a message onto every still-registered local
// member of its group. A full queue drops the message for that client only.
// Membership is snapshotted up front so neither the group lock nor the hub
// lock is held while another is acquired: this runs on the pub/sub listener
// goroutine while unregistration takes the same locks in the opposite order
// on the event loop.
func (h *Hub) deliverChatMessage(message *RawMessageE2EE) {
	h.mutex.RLock()
	group, groupExists := h.Groups[message.GroupID]
	h.mutex.RUnlock()

	if !groupExists {
		return
	}

	group.mutex.RLock()
	members := make([]*Client, 0, len(group.Clients))
	for _, client := range group.Clients {
		members = append(members, client)
	}
	group.mutex.RUnlock()

	// The registry lock also guards against unregistration closing a queue
	// mid-send; the sends are non-blocking so it is never held for long.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for _, client := range members {
		if _, stillConnected := h.Clients[client.User.ID]; !stillConnected {
			continue
		}
		select {
		case client.Message <- message:
		default:
			log.Printf("Hub %s: Client %s message channel full for group %s. E2EE Message ID %s dropped.",
				h.serverID, client.User.ID.String(), message.GroupID.String(), message.ID)
		}
	}
}

func (h *Hub) handleUserAddedToGroupEvent(userID uuid.UUID, groupID uuid.UUID) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	client, connected := h.Clients[userID]
	if connected {
		client.AddGroup(groupID)
		h.addClientToLocalGroupStructLocked(client, groupID)
		client.TrySendEvent(newClientEvent(EventUserInvited, groupID))
		log.Printf("Hub %s: Updated local state for user %s added to group %s", h.serverID, userID.String(), groupID.String())
	}
}

func (h *Hub) handleUserRemovedFromGroupEvent(userID uuid.UUID, groupID uuid.UUID) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	client, connected := h.Clients[userID]
	if connected {
		h.removeClientFromLocalGroupStructLocked(client, groupID)
		client.RemoveGroup(groupID)
		client.TrySendEvent(newClientEvent(EventUserRemoved, groupID))
		log.Printf("Hub %s: Updated local state for user %s removed from group %s", h.serverID, userID.String(), groupID.String())
	}
}

func (h *Hub) handleGroupCreatedEvent(groupID uuid.UUID, name string, adminID uuid.UUID) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, exists := h.Groups[groupID]; !exists {
		h.Groups[groupID] = &Group{
			ID:      groupID,
			Name:    name,
			Clients: make(map[uuid.UUID]*Client),
		}
		log.Printf("Hub %s: Cached new group %s (%s)", h.serverID, groupID.String(), name)
	} else {
		h.Groups[groupID].Name = name
	}

	if admin, ok := h.Clients[adminID]; ok {
		group := h.Groups[groupID]
		group.mutex.Lock()
		group.Clients[adminID] = admin
		group.mutex.Unlock()
		admin.AddGroup(groupID)
		admin.TrySendEvent(newClientEvent(EventUserInvited, groupID))
	}
}

func (h *Hub) handleGroupDeletedEvent(groupID uuid.UUID) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if group, exists := h.Groups[groupID]; exists {
		group.mutex.Lock()
		for _, client := range group.Clients {
			client.RemoveGroup(groupID)
			client.TrySendEvent(newClientEvent(EventGroupDeleted, groupID))
		}
		group.mutex.Unlock()
		delete(h.Groups, groupID)
		log.Printf("Hub %s: Removed deleted group %s from local cache", h.serverID, groupID.String())
	}
}

func (h *Hub) handleGroupUpdatedEvent(groupID uuid.UUID, newName string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	group, exists := h.Groups[groupID]
	if !exists {
		// Updating a group we do not cache is a no-op; a stale update after a
		// delete must not resurrect the entry.
		return
	}
	if newName != "" {
		group.Name = newName
	}
	group.mutex.RLock()
	for _, client := range group.Clients {
		client.TrySendEvent(newClientEvent(EventGroupUpdated, groupID))
	}
	group.mutex.RUnlock()
}

// Run is the hub's event loop: the single consumer of every typed channel and
// the only goroutine that mutates the top-level registries.
func (h *Hub) Run() {
	log.Printf("Hub %s Run loop started", h.serverID)
	refreshTicker := time.NewTicker(h.cfg.PresenceRefresh)
	defer refreshTicker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			log.Printf("Hub %s: Context cancelled, shutting down Run loop.", h.serverID)
			return
		case <-refreshTicker.C:
			h.refreshClientRegistrations()
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		case message := <-h.Broadcast:
			h.broadcastMessage(message)
		case removeMsg := <-h.RemoveUserFromGroupChan:
			h.removeUserFromGroup(removeMsg)
		case addMsg := <-h.AddUserToGroupChan:
			h.addUserToGroup(addMsg)
		case initMsg := <-h.InitializeGroupChan:
			h.initializeGroup(initMsg)
		case delMsg := <-h.DeleteHubGroupChan:
			h.deleteGroup(delMsg)
		case updateMsg := <-h.UpdateGroupInfoChan:
			h.updateGroupInfo(updateMsg)
		}
	}
}

// registerClient adds the connection to the local registry, records ownership
// in Redis with a TTL, and replays the user's memberships into the local
// group cache.
func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	h.Clients[client.User.ID] = client
	h.mutex.Unlock()

	userIDStr := client.User.ID.String()
	pipe := h.redisClient.Pipeline()
	pipe.Set(h.ctx, rediskeys.ClientServer(userIDStr), h.serverID, h.cfg.PresenceTTL)
	pipe.SAdd(h.ctx, rediskeys.ServerClients(h.serverID), userIDStr)
	if _, err := pipe.Exec(h.ctx); err != nil {
		log.Printf("Hub %s: Error registering client %s in Redis: %v", h.serverID, userIDStr, err)
	}

	groupIDsStr, err := h.redisClient.SMembers(h.ctx, rediskeys.UserGroups(userIDStr)).Result()
	if err != nil {
		log.Printf("Hub %s: Error fetching groups for user %s from Redis: %v", h.serverID, userIDStr, err)
		return
	}

	h.mutex.Lock()
	for _, groupIDStr := range groupIDsStr {
		groupID, convErr := uuid.Parse(groupIDStr)
		if convErr != nil {
			// Fallback for legacy entries stored as raw 16-byte UUIDs
			if len(groupIDStr) == 16 {
				gid, err2 := uuid.FromBytes([]byte(groupIDStr))
				if err2 != nil {
					log.Printf("Hub %s: Failed to decode binary groupID: %v", h.serverID, err2)
					continue
				}
				groupID = gid
			} else {
				log.Printf("Hub %s: Error converting groupID %q to uuid: %v", h.serverID, groupIDStr, convErr)
				continue
			}
		}
		client.AddGroup(groupID)
		h.addClientToLocalGroupStructLocked(client, groupID)
	}
	h.mutex.Unlock()
	log.Printf("Hub %s: Client %s joined %d groups locally based on Redis state.", h.serverID, userIDStr, len(groupIDsStr))
}

// unregisterClient removes the connection from the registry and every local
// group, deletes its presence keys, closes both outbound queues and cancels
// the connection context so the read and write loops stop.
func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.Clients[client.User.ID]; !ok {
		return
	}
	delete(h.Clients, client.User.ID)

	userIDStr := client.User.ID.String()
	pipe := h.redisClient.Pipeline()
	pipe.Del(h.ctx, rediskeys.ClientServer(userIDStr))
	pipe.SRem(h.ctx, rediskeys.ServerClients(h.serverID), userIDStr)
	if _, err := pipe.Exec(h.ctx); err != nil {
		log.Printf("Hub %s: Error unregistering client %s in Redis: %v", h.serverID, userIDStr, err)
	}

	client.mutex.RLock()
	for groupID := range client.Groups {
		h.removeClientFromLocalGroupStructLocked(client, groupID)
	}
	client.mutex.RUnlock()
	close(client.Message)
	close(client.Events)
	client.cancel()
	log.Printf("Hub %s: Client %s unregistered locally.", h.serverID, userIDStr)
}

// broadcastMessage persists the message, delivers it to local members, then
// publishes it so other instances can deliver to theirs. A publish failure is
// logged, not retried; the durable write already happened and is not rolled
// back.
func (h *Hub) broadcastMessage(message *RawMessageE2EE) {
	cipherBytes, err := base64.StdEncoding.DecodeString(message.Ciphertext)
	if err != nil {
		log.Printf("Hub %s: Error decoding ciphertext base64 for message in group %s: %v", h.serverID, message.GroupID, err)
		return
	}
	nonceBytes, err := base64.StdEncoding.DecodeString(message.MsgNonce)
	if err != nil {
		log.Printf("Hub %s: Error decoding msgNonce base64 for message in group %s: %v", h.serverID, message.GroupID, err)
		return
	}

	keyEnvelopesJSON, err := json.Marshal(message.Envelopes)
	if err != nil {
		log.Printf("Hub %s: Error marshalling key_envelopes for message in group %s: %v", h.serverID, message.GroupID, err)
		return
	}

	savedMessage, err := h.store.InsertMessage(h.ctx, db.InsertMessageParams{
		ID:           message.ID,
		UserID:       &message.SenderID,
		GroupID:      &message.GroupID,
		Ciphertext:   cipherBytes,
		MessageType:  message.MessageType,
		MsgNonce:     nonceBytes,
		KeyEnvelopes: keyEnvelopesJSON,
	})
	if err != nil {
		log.Printf("Hub %s: Error saving E2EE message: %v", h.serverID, err)
		return
	}

	message.ID = savedMessage.ID
	message.Timestamp = savedMessage.CreatedAt.Time.Format(time.RFC3339Nano)

	// Local members first; absence of local members must not short-circuit
	// the publish below.
	h.deliverChatMessage(message)

	h.publish(rediskeys.GroupMessagesChannel(message.GroupID.String()), "chat_message", ChatMessagePayload{Message: message})

	if h.notifier != nil {
		go func(msg *RawMessageE2EE) {
			groupName, err := h.redisClient.HGet(h.ctx, rediskeys.GroupInfo(msg.GroupID.String()), "name").Result()
			if err != nil {
				groupName = "Group"
			}

			senderName := "Someone"
			if sender, err := h.store.GetUserById(h.ctx, msg.SenderID); err == nil {
				senderName = sender.Username
			}

			h.notifier.SendMessageNotification(h.ctx, msg.GroupID, groupName, msg.SenderID, senderName, "sent a message")
		}(message)
	}
}

func (h *Hub) removeUserFromGroup(removeMsg *RemoveClientFromGroupMsg) {
	userIDStr := removeMsg.UserID.String()
	groupIDStr := removeMsg.GroupID.String()

	pipe := h.redisClient.Pipeline()
	pipe.SRem(h.ctx, rediskeys.GroupMembers(groupIDStr), userIDStr)
	pipe.SRem(h.ctx, rediskeys.UserGroups(userIDStr), groupIDStr)
	if _, err := pipe.Exec(h.ctx); err != nil {
		log.Printf("Hub %s: Error removing user %s from group %s in Redis: %v", h.serverID, userIDStr, groupIDStr, err)
		return
	}

	h.publish(rediskeys.PubSubGroupEventsChannel, "user_removed_from_group",
		UserGroupEventPayload{UserID: removeMsg.UserID, GroupID: removeMsg.GroupID})
	h.handleUserRemovedFromGroupEvent(removeMsg.UserID, removeMsg.GroupID)
}

func (h *Hub) addUserToGroup(addMsg *AddClientToGroupMsg) {
	userIDStr := addMsg.UserID.String()
	groupIDStr := addMsg.GroupID.String()

	pipe := h.redisClient.Pipeline()
	pipe.SAdd(h.ctx, rediskeys.GroupMembers(groupIDStr), userIDStr)
	pipe.SAdd(h.ctx, rediskeys.UserGroups(userIDStr), groupIDStr)
	if _, err := pipe.Exec(h.ctx); err != nil {
		log.Printf("Hub %s: Error adding user %s to group %s in Redis: %v", h.serverID, userIDStr, groupIDStr, err)
		return
	}

	h.publish(rediskeys.PubSubGroupEventsChannel, "user_added_to_group",
		UserGroupEventPayload{UserID: addMsg.UserID, GroupID: addMsg.GroupID})
	h.handleUserAddedToGroupEvent(addMsg.UserID, addMsg.GroupID)
}

func (h *Hub) initializeGroup(initMsg *InitializeGroupMsg) {
	groupIDStr := initMsg.GroupID.String()
	adminIDStr := initMsg.AdminID.String()

	pipe := h.redisClient.Pipeline()
	pipe.HSet(h.ctx, rediskeys.GroupInfo(groupIDStr), "name", initMsg.Name, "id", groupIDStr)
	pipe.SAdd(h.ctx, rediskeys.GroupMembers(groupIDStr), adminIDStr)
	pipe.SAdd(h.ctx, rediskeys.UserGroups(adminIDStr), groupIDStr)
	if _, err := pipe.Exec(h.ctx); err != nil {
		log.Printf("Hub %s: Error initializing group %s in Redis: %v", h.serverID, groupIDStr, err)
		return
	}

	h.publish(rediskeys.PubSubGroupEventsChannel, "group_created",
		GroupEventPayload{GroupID: initMsg.GroupID, Name: initMsg.Name, AdminID: initMsg.AdminID})
	h.handleGroupCreatedEvent(initMsg.GroupID, initMsg.Name, initMsg.AdminID)
}

func (h *Hub) deleteGroup(delMsg *DeleteHubGroupMsg) {
	groupIDStr := delMsg.GroupID.String()
	groupMembersKey := rediskeys.GroupMembers(groupIDStr)

	members, err := h.redisClient.SMembers(h.ctx, groupMembersKey).Result()
	if err != nil && err != redis.Nil {
		log.Printf("Hub %s: Error getting members for group %s deletion: %v", h.serverID, groupIDStr, err)
	}

	pipe := h.redisClient.Pipeline()
	for _, memberIDStr := range members {
		pipe.SRem(h.ctx, rediskeys.UserGroups(memberIDStr), groupIDStr)
	}
	pipe.Del(h.ctx, groupMembersKey)
	pipe.Del(h.ctx, rediskeys.GroupInfo(groupIDStr))
	if _, err := pipe.Exec(h.ctx); err != nil {
		log.Printf("Hub %s: Error deleting group %s from Redis: %v", h.serverID, groupIDStr, err)
		return
	}

	h.publish(rediskeys.PubSubGroupEventsChannel, "group_deleted", GroupEventPayload{GroupID: delMsg.GroupID})
	h.handleGroupDeletedEvent(delMsg.GroupID)
}

func (h *Hub) updateGroupInfo(updateMsg *GroupUpdateEventPayload) {
	if updateMsg.Name != "" {
		groupInfoKey := rediskeys.GroupInfo(updateMsg.GroupID.String())
		if err := h.redisClient.HSet(h.ctx, groupInfoKey, "name", updateMsg.Name).Err(); err != nil {
			log.Printf("Hub %s: Error updating group name in Redis for group %s: %v", h.serverID, updateMsg.GroupID.String(), err)
		}
	}

	h.publish(rediskeys.PubSubGroupEventsChannel, "group_updated", updateMsg)
	h.handleGroupUpdatedEvent(updateMsg.GroupID, updateMsg.Name)
}

// addClientToLocalGroupStructLocked assumes h.mutex is already WLocked by the caller.
func (h *Hub) addClientToLocalGroupStructLocked(client *Client, groupID uuid.UUID) {
	group, exists := h.Groups[groupID]
	if !exists {
		name := "Unknown Group"
		redisName, err := h.redisClient.HGet(h.ctx, rediskeys.GroupInfo(groupID.String()), "name").Result()
		if err == nil {
			name = redisName
		} else if err != redis.Nil {
			log.Printf("Hub %s: Error fetching group name for %s from Redis: %v", h.serverID, groupID.String(), err)
		}

		group = &Group{
			ID:      groupID,
			Name:    name,
			Clients: make(map[uuid.UUID]*Client),
		}
		h.Groups[groupID] = group
		log.Printf("Hub %s: Cached group %s (%s) locally.", h.serverID, groupID.String(), name)
	}

	group.mutex.Lock()
	group.Clients[client.User.ID] = client
	group.mutex.Unlock()
}

// removeClientFromLocalGroupStructLocked assumes h.mutex is already WLocked by
// the caller. Prunes the group entry when its last local member leaves.
func (h *Hub) removeClientFromLocalGroupStructLocked(client *Client, groupID uuid.UUID) {
	group, exists := h.Groups[groupID]
	if !exists {
		return
	}

	group.mutex.Lock()
	delete(group.Clients, client.User.ID)
	isEmpty := len(group.Clients) == 0
	group.mutex.Unlock()

	if isEmpty {
		delete(h.Groups, groupID)
		log.Printf("Hub %s: Removed group %s from local cache as no local clients are members.", h.serverID, groupID.String())
	}
}

// refreshClientRegistrations re-extends the presence TTL of every locally
// connected client.
func (h *Hub) refreshClientRegistrations() {
	h.mutex.RLock()
	clientsToRefresh := make([]uuid.UUID, 0, len(h.Clients))
	for userID := range h.Clients {
		clientsToRefresh = append(clientsToRefresh, userID)
	}
	h.mutex.RUnlock()

	if len(clientsToRefresh) == 0 {
		return
	}

	pipe := h.redisClient.Pipeline()
	for _, userID := range clientsToRefresh {
		pipe.Expire(h.ctx, rediskeys.ClientServer(userID.String()), h.cfg.PresenceTTL)
	}
	cmds, err := pipe.Exec(h.ctx)
	if err != nil {
		log.Printf("Hub %s: Error executing pipeline for client Redis key expirations: %v", h.serverID, err)
		return
	}
	for _, cmd := range cmds {
		if cmd.Err() != nil && cmd.Err() != redis.Nil {
			log.Printf("Hub %s: Error refreshing a client Redis key: %v", h.serverID, cmd.Err())
		}
	}
}
