package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropskey/backend-dropskey/internal/queue"
	"github.com/dropskey/backend-dropskey/internal/repo"
)

// WebhookEnqueuer schedules webhook delivery tasks.
type WebhookEnqueuer interface {
	EnqueueWebhook(ctx context.Context, p queue.WebhookPayload) error
}

// Dispatcher fans an emitted domain event out to every subscribed webhook
// endpoint by enqueueing one delivery task per endpoint. Retries and
// backoff are the task queue's job.
type Dispatcher struct {
	Store    Store
	Enqueuer WebhookEnqueuer
	Enabled  bool
}

// Schedule implements events.DeliveryScheduler.
func (d *Dispatcher) Schedule(ctx context.Context, event repo.DomainEvent) error {
	if d == nil || !d.Enabled || d.Store == nil || d.Enqueuer == nil {
		return nil
	}
	if strings.TrimSpace(event.Topic) == "" {
		return nil
	}
	endpoints, err := d.Store.ListActiveEndpointsForTopic(ctx, event.Topic)
	if err != nil {
		return err
	}
	var joined error
	for _, ep := range endpoints {
		err := d.Enqueuer.EnqueueWebhook(ctx, queue.WebhookPayload{
			EndpointID: repo.UUIDString(ep.ID),
			EventID:    repo.UUIDString(event.ID),
		})
		if err != nil {
			joined = errors.Join(joined, fmt.Errorf("enqueue delivery for %s: %w", repo.UUIDString(ep.ID), err))
		}
	}
	return joined
}
