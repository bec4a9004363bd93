package types

import (
	"time"
)

// LiveEvent is a game update fanned out to WebSocket subscribers.
type LiveEvent struct {
	Channel   string      `json:"channel"`
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Sequence  uint64      `json:"sequence"`
	Timestamp time.Time   `json:"timestamp"`
}

type LiveHub interface {
	LifecycleManager
	Publish(channel string, eventType string, data interface{}) error
	SubscriberCount() int
}
