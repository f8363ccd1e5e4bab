package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/dropskey/backend-dropskey/internal/common"
	"github.com/dropskey/backend-dropskey/internal/obs"
	"github.com/dropskey/backend-dropskey/internal/queue"
	"github.com/dropskey/backend-dropskey/internal/repo"
)

// WebhookWorker handles queued webhook delivery tasks. A non-2xx response
// or transport failure returns an error so the queue retries with backoff;
// permanent failures skip retrying.
type WebhookWorker struct {
	Store  Store
	Sender *Sender
	Log    zerolog.Logger
}

// Handle processes one delivery task.
func (w *WebhookWorker) Handle(ctx context.Context, task *asynq.Task) error {
	if w == nil || w.Store == nil || w.Sender == nil {
		return errors.New("webhook worker not configured")
	}
	var payload queue.WebhookPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	endpointID, err := repo.ToUUID(payload.EndpointID)
	if err != nil {
		return fmt.Errorf("invalid endpoint id: %v: %w", err, asynq.SkipRetry)
	}
	eventID, err := repo.ToUUID(payload.EventID)
	if err != nil {
		return fmt.Errorf("invalid event id: %v: %w", err, asynq.SkipRetry)
	}
	endpoint, err := w.Store.GetEndpoint(ctx, endpointID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("endpoint %s gone: %w", payload.EndpointID, asynq.SkipRetry)
		}
		return fmt.Errorf("load endpoint: %w", err)
	}
	if !endpoint.Active {
		return nil
	}
	event, err := w.Store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("event %s gone: %w", payload.EventID, asynq.SkipRetry)
		}
		return fmt.Errorf("load event: %w", err)
	}

	start := time.Now()
	status, _, err := w.Sender.Deliver(ctx, endpoint, event)
	switch {
	case err == nil && status >= 200 && status < 300:
		obs.ObserveWebhookDelivery("delivered", time.Since(start))
		return nil
	case errors.Is(err, ErrEndpointRejected):
		obs.ObserveWebhookDelivery("rejected", time.Since(start))
		w.Log.Warn().Str("endpoint", payload.EndpointID).Err(err).Msg("webhook endpoint rejected")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		obs.ObserveWebhookDelivery("failed", time.Since(start))
		w.Log.Warn().Str("endpoint", payload.EndpointID).Int("status", status).Err(err).Msg("webhook delivery failed")
		return fmt.Errorf("deliver to %s: status=%d err=%v", endpoint.URL, status, err)
	}
}

// EmailWorker sends queued transactional emails.
type EmailWorker struct {
	Mail common.EmailSender
	Log  zerolog.Logger
}

// Handle processes one email task.
func (w *EmailWorker) Handle(ctx context.Context, task *asynq.Task) error {
	if w == nil || w.Mail == nil {
		return errors.New("email worker not configured")
	}
	var payload queue.EmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return nil
	}
	if err := w.Mail.Send(payload.To, payload.Subject, payload.Body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	w.Log.Debug().Str("to", payload.To).Str("subject", payload.Subject).Msg("email sent")
	return nil
}

// NewMux registers the worker handlers on an asynq mux.
func NewMux(webhook *WebhookWorker, email *EmailWorker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	if webhook != nil {
		mux.HandleFunc(queue.TaskWebhookDeliver, webhook.Handle)
	}
	if email != nil {
		mux.HandleFunc(queue.TaskEmailSend, email.Handle)
	}
	return mux
}
