package notify

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dropskey/backend-dropskey/internal/repo"
)

// Store captures the persistence operations webhook dispatch relies on.
type Store interface {
	ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]repo.WebhookEndpoint, error)
	GetEndpoint(ctx context.Context, id pgtype.UUID) (repo.WebhookEndpoint, error)
	GetEvent(ctx context.Context, id pgtype.UUID) (repo.DomainEvent, error)
	CreateEndpoint(ctx context.Context, url, secret string, topics []string, active bool) (repo.WebhookEndpoint, error)
	ListEndpoints(ctx context.Context) ([]repo.WebhookEndpoint, error)
}
