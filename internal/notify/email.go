package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dropskey/backend-dropskey/internal/events"
	"github.com/dropskey/backend-dropskey/internal/queue"
	"github.com/dropskey/backend-dropskey/internal/repo"
)

// EmailEnqueuer schedules transactional email tasks.
type EmailEnqueuer interface {
	EnqueueEmail(ctx context.Context, p queue.EmailPayload) error
}

// EmailNotifier turns selected domain events into queued transactional
// emails. Sending happens in the worker; emitting never blocks on SMTP.
type EmailNotifier struct {
	Enqueuer     EmailEnqueuer
	Enabled      bool
	TopicToggles map[string]bool
}

// Notify implements the events.Notifier interface.
func (n EmailNotifier) Notify(ctx context.Context, event repo.DomainEvent) error {
	if !n.Enabled || n.Enqueuer == nil {
		return nil
	}
	if n.TopicToggles != nil {
		if enabled, ok := n.TopicToggles[event.Topic]; ok && !enabled {
			return nil
		}
	}
	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("email notify: decode payload: %w", err)
		}
	}
	to := extractRecipient(payload)
	if to == "" {
		return nil
	}
	occurred := time.Now()
	if event.OccurredAt.Valid {
		occurred = event.OccurredAt.Time
	}
	return n.Enqueuer.EnqueueEmail(ctx, queue.EmailPayload{
		To:      to,
		Subject: subjectFor(event.Topic),
		Body:    bodyFor(event.Topic, payload, occurred),
	})
}

func extractRecipient(payload map[string]any) string {
	keys := []string{"email", "recipient", "userEmail", "customerEmail"}
	for _, key := range keys {
		if val, ok := payload[key]; ok {
			if s, ok := val.(string); ok {
				s = strings.TrimSpace(s)
				if s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func subjectFor(topic string) string {
	switch topic {
	case events.TopicOrderCreated:
		return "Your order is confirmed"
	case events.TopicPromoRedeemed:
		return "Promo code applied"
	case events.TopicProductUpdated:
		return "Product updated"
	default:
		return fmt.Sprintf("Notification: %s", topic)
	}
}

func bodyFor(topic string, payload map[string]any, occurred time.Time) string {
	summary := fmt.Sprintf("Event %s occurred at %s.", topic, occurred.Format(time.RFC3339))
	if orderID, ok := payload["orderId"].(string); ok && orderID != "" {
		summary += fmt.Sprintf("\nOrder: %s", orderID)
	}
	if promoCode, ok := payload["promoCode"].(string); ok && promoCode != "" {
		summary += fmt.Sprintf("\nPromo code: %s", promoCode)
	}
	if note, ok := payload["message"].(string); ok && note != "" {
		summary += "\n" + note
	}
	return summary
}
