package rediskeys

const (
	ClientServerPrefix  = "client:"
	ServerClientsPrefix = "server:"
	UserGroupsPrefix    = "user:"
	GroupMembersPrefix  = "group:"
	GroupInfoPrefix     = "groupinfo:"

	PubSubGroupMessagesChannel = "group_messages"
	PubSubGroupEventsChannel   = "group_events"
)

// ClientServer is the key holding which server instance owns a user's live
// connection. It carries a short TTL refreshed while the connection is open.
func ClientServer(userID string) string {
	return ClientServerPrefix + userID + ":server_id"
}

// ServerClients is the reverse index of users connected to a server instance.
func ServerClients(serverID string) string {
	return ServerClientsPrefix + serverID + ":clients"
}

// UserGroups is the set of group ids a user is a member of. Not TTL'd.
func UserGroups(userID string) string {
	return UserGroupsPrefix + userID + ":groups"
}

// GroupMembers is the set of user ids belonging to a group. Not TTL'd.
func GroupMembers(groupID string) string {
	return GroupMembersPrefix + groupID + ":members"
}

// GroupInfo is the hash holding a group's id and display name.
func GroupInfo(groupID string) string {
	return GroupInfoPrefix + groupID
}

// GroupMessagesChannel is the per-group pub/sub topic for chat messages.
func GroupMessagesChannel(groupID string) string {
	return PubSubGroupMessagesChannel + ":" + groupID
}
