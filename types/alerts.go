package types

import (
	"context"
	"time"
)

type WebhookSubscription struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	CreatedAt time.Time `json:"created_at"`
}

// AlertDispatcher delivers source-health transition events to registered
// webhooks. It implements HealthTransitionSink.
type AlertDispatcher interface {
	LifecycleManager
	HealthTransitionSink
	Register(ctx context.Context, url string, events []string) (*WebhookSubscription, error)
	Unregister(ctx context.Context, id string) error
	List(ctx context.Context) ([]*WebhookSubscription, error)
}
