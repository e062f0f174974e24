package ws

import "time"

// Config collects the hub and connection tunables. Queue capacities bound how
// much a slow consumer can buffer before drop-and-log kicks in; they are never
// allowed to block a sender.
type Config struct {
	// BroadcastBuffer is the capacity of the hub's inbound message channel.
	BroadcastBuffer int
	// LifecycleBuffer is the capacity of each group-lifecycle channel fed by
	// HTTP handlers.
	LifecycleBuffer int
	// MessageQueueSize is the per-connection outbound message queue capacity.
	MessageQueueSize int
	// EventQueueSize is the per-connection outbound event queue capacity.
	EventQueueSize int

	// PresenceTTL is the lifetime of the client:<user> ownership key in Redis.
	PresenceTTL time.Duration
	// PresenceRefresh is how often the hub re-extends presence TTLs. Must be
	// comfortably below PresenceTTL.
	PresenceRefresh time.Duration

	// AuthTimeout bounds how long a fresh socket may take to send its auth frame.
	AuthTimeout time.Duration
	// WriteWait is the per-write deadline on the socket.
	WriteWait time.Duration
	// PongWait is the read deadline, refreshed on every pong.
	PongWait time.Duration
	// MaxMessageSize caps inbound frame size in bytes.
	MaxMessageSize int64
}

func DefaultConfig() Config {
	return Config{
		BroadcastBuffer:  256,
		LifecycleBuffer:  16,
		MessageQueueSize: 10,
		EventQueueSize:   5,
		PresenceTTL:      120 * time.Second,
		PresenceRefresh:  30 * time.Second,
		AuthTimeout:      10 * time.Second,
		WriteWait:        10 * time.Second,
		PongWait:         60 * time.Second,
		MaxMessageSize:   16 * 1024,
	}
}

func (c Config) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}
