package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// DomainEvent mirrors a row of the domain_events table.
type DomainEvent struct {
	ID          pgtype.UUID
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
	OccurredAt  pgtype.Timestamptz
}

// WebhookEndpoint mirrors a row of the webhook_endpoints table.
type WebhookEndpoint struct {
	ID        pgtype.UUID
	URL       string
	Secret    string
	Topics    []string
	Active    bool
	CreatedAt pgtype.Timestamptz
}

// EventRepo persists domain events and webhook endpoint registrations.
type EventRepo struct {
	DB DBTX
}

// InsertEvent appends a domain event and returns the stored row.
func (r EventRepo) InsertEvent(ctx context.Context, topic string, aggregateID pgtype.UUID, payload []byte) (DomainEvent, error) {
	var ev DomainEvent
	err := r.DB.QueryRow(ctx, `
		INSERT INTO domain_events (topic, aggregate_id, payload)
		VALUES ($1, $2, $3)
		RETURNING id, topic, aggregate_id, payload, occurred_at`,
		topic, aggregateID, payload).
		Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	return ev, err
}

// ListActiveEndpointsForTopic returns active endpoints subscribed to a topic.
// An endpoint with an empty topic list receives everything.
func (r EventRepo) ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]WebhookEndpoint, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, url, secret, topics, active, created_at
		FROM webhook_endpoints
		WHERE active AND (topics = '{}' OR $1 = ANY(topics))`, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WebhookEndpoint
	for rows.Next() {
		var ep WebhookEndpoint
		if err := rows.Scan(&ep.ID, &ep.URL, &ep.Secret, &ep.Topics, &ep.Active, &ep.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// GetEndpoint returns a single webhook endpoint by id.
func (r EventRepo) GetEndpoint(ctx context.Context, id pgtype.UUID) (WebhookEndpoint, error) {
	var ep WebhookEndpoint
	err := r.DB.QueryRow(ctx, `
		SELECT id, url, secret, topics, active, created_at
		FROM webhook_endpoints
		WHERE id = $1`, id).
		Scan(&ep.ID, &ep.URL, &ep.Secret, &ep.Topics, &ep.Active, &ep.CreatedAt)
	return ep, err
}

// CreateEndpoint registers a webhook endpoint.
func (r EventRepo) CreateEndpoint(ctx context.Context, url, secret string, topics []string, active bool) (WebhookEndpoint, error) {
	if topics == nil {
		topics = []string{}
	}
	var ep WebhookEndpoint
	err := r.DB.QueryRow(ctx, `
		INSERT INTO webhook_endpoints (url, secret, topics, active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, url, secret, topics, active, created_at`,
		url, secret, topics, active).
		Scan(&ep.ID, &ep.URL, &ep.Secret, &ep.Topics, &ep.Active, &ep.CreatedAt)
	return ep, err
}

// GetEvent loads a stored domain event by id.
func (r EventRepo) GetEvent(ctx context.Context, id pgtype.UUID) (DomainEvent, error) {
	var ev DomainEvent
	err := r.DB.QueryRow(ctx, `
		SELECT id, topic, aggregate_id, payload, occurred_at
		FROM domain_events
		WHERE id = $1`, id).
		Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt)
	return ev, err
}

// ListEndpoints returns every registered webhook endpoint.
func (r EventRepo) ListEndpoints(ctx context.Context) ([]WebhookEndpoint, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, url, secret, topics, active, created_at
		FROM webhook_endpoints
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WebhookEndpoint
	for rows.Next() {
		var ep WebhookEndpoint
		if err := rows.Scan(&ep.ID, &ep.URL, &ep.Secret, &ep.Topics, &ep.Active, &ep.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}
