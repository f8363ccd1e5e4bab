package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dropskey/backend-dropskey/internal/events"
	"github.com/dropskey/backend-dropskey/internal/queue"
	"github.com/dropskey/backend-dropskey/internal/repo"
)

type stubStore struct {
	endpoints []repo.WebhookEndpoint
	events    map[[16]byte]repo.DomainEvent
}

func (s *stubStore) ListActiveEndpointsForTopic(ctx context.Context, topic string) ([]repo.WebhookEndpoint, error) {
	var out []repo.WebhookEndpoint
	for _, ep := range s.endpoints {
		if !ep.Active {
			continue
		}
		if len(ep.Topics) == 0 {
			out = append(out, ep)
			continue
		}
		for _, t := range ep.Topics {
			if t == topic {
				out = append(out, ep)
				break
			}
		}
	}
	return out, nil
}

func (s *stubStore) GetEndpoint(ctx context.Context, id pgtype.UUID) (repo.WebhookEndpoint, error) {
	for _, ep := range s.endpoints {
		if ep.ID.Bytes == id.Bytes {
			return ep, nil
		}
	}
	return repo.WebhookEndpoint{}, errors.New("not found")
}

func (s *stubStore) GetEvent(ctx context.Context, id pgtype.UUID) (repo.DomainEvent, error) {
	ev, ok := s.events[id.Bytes]
	if !ok {
		return repo.DomainEvent{}, errors.New("not found")
	}
	return ev, nil
}

func (s *stubStore) CreateEndpoint(ctx context.Context, url, secret string, topics []string, active bool) (repo.WebhookEndpoint, error) {
	ep := repo.WebhookEndpoint{ID: repo.FromUUID(uuid.New()), URL: url, Secret: secret, Topics: topics, Active: active}
	s.endpoints = append(s.endpoints, ep)
	return ep, nil
}

func (s *stubStore) ListEndpoints(ctx context.Context) ([]repo.WebhookEndpoint, error) {
	return s.endpoints, nil
}

type captureEnqueuer struct {
	webhooks []queue.WebhookPayload
	emails   []queue.EmailPayload
}

func (c *captureEnqueuer) EnqueueWebhook(ctx context.Context, p queue.WebhookPayload) error {
	c.webhooks = append(c.webhooks, p)
	return nil
}

func (c *captureEnqueuer) EnqueueEmail(ctx context.Context, p queue.EmailPayload) error {
	c.emails = append(c.emails, p)
	return nil
}

func newEvent(topic string, payload string) repo.DomainEvent {
	return repo.DomainEvent{
		ID:          repo.FromUUID(uuid.New()),
		Topic:       topic,
		AggregateID: repo.FromUUID(uuid.New()),
		Payload:     []byte(payload),
		OccurredAt:  pgtype.Timestamptz{Time: time.Now(), Valid: true},
	}
}

func TestDispatcherFansOutPerEndpoint(t *testing.T) {
	store := &stubStore{}
	_, err := store.CreateEndpoint(context.Background(), "https://a.example.com/hook", "s1", []string{events.TopicOrderCreated}, true)
	require.NoError(t, err)
	_, err = store.CreateEndpoint(context.Background(), "https://b.example.com/hook", "s2", nil, true)
	require.NoError(t, err)
	_, err = store.CreateEndpoint(context.Background(), "https://c.example.com/hook", "s3", []string{events.TopicProductUpdated}, true)
	require.NoError(t, err)

	enq := &captureEnqueuer{}
	d := &Dispatcher{Store: store, Enqueuer: enq, Enabled: true}
	require.NoError(t, d.Schedule(context.Background(), newEvent(events.TopicOrderCreated, `{}`)))
	require.Len(t, enq.webhooks, 2)
}

func TestDispatcherDisabled(t *testing.T) {
	enq := &captureEnqueuer{}
	d := &Dispatcher{Store: &stubStore{}, Enqueuer: enq}
	require.NoError(t, d.Schedule(context.Background(), newEvent(events.TopicOrderCreated, `{}`)))
	require.Empty(t, enq.webhooks)
}

func TestSenderSignsRequest(t *testing.T) {
	var gotSig, gotEventID, gotTS string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotEventID = r.Header.Get("X-Event-ID")
		gotTS = r.Header.Get("X-Timestamp")
		body, _ := io.ReadAll(r.Body)
		gotBody = body
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ep := repo.WebhookEndpoint{ID: repo.FromUUID(uuid.New()), URL: srv.URL, Secret: "topsecret", Active: true}
	ev := newEvent(events.TopicOrderCreated, `{"orderId":"o-1"}`)

	sender := &Sender{Client: srv.Client()}
	status, _, err := sender.Deliver(context.Background(), ep, ev)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, status)
	require.NotEmpty(t, gotSig)
	require.Equal(t, repo.UUIDString(ev.ID), gotEventID)
	require.NotEmpty(t, gotTS)

	var envelope struct {
		EventID string          `json:"eventId"`
		Topic   string          `json:"topic"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &envelope))
	require.Equal(t, events.TopicOrderCreated, envelope.Topic)
	require.JSONEq(t, `{"orderId":"o-1"}`, string(envelope.Data))
}

func TestSenderRejectsBadURL(t *testing.T) {
	ep := repo.WebhookEndpoint{ID: repo.FromUUID(uuid.New()), URL: "ftp://nope", Secret: "s", Active: true}
	sender := &Sender{Client: http.DefaultClient}
	_, _, err := sender.Deliver(context.Background(), ep, newEvent(events.TopicOrderCreated, `{}`))
	require.ErrorIs(t, err, ErrEndpointRejected)
}

func TestSenderSuppressesReplay(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ep := repo.WebhookEndpoint{ID: repo.FromUUID(uuid.New()), URL: srv.URL, Secret: "s", Active: true}
	ev := newEvent(events.TopicOrderCreated, `{}`)

	sender := &Sender{
		Client:    srv.Client(),
		Replay:    RedisReplayProtector{Client: client},
		ReplayTTL: time.Hour,
	}
	status, body, err := sender.Deliver(context.Background(), ep, ev)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.NotEqual(t, "replay-suppressed", body)

	status, body, err = sender.Deliver(context.Background(), ep, ev)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "replay-suppressed", body)
	require.Equal(t, 1, hits)
}

func TestComputeSignatureStable(t *testing.T) {
	sig1 := ComputeSignature("secret", 1700000000, "ev-1", []byte(`{"a":1}`))
	sig2 := ComputeSignature("secret", 1700000000, "ev-1", []byte(`{"a":1}`))
	require.Equal(t, sig1, sig2)
	require.NotEqual(t, sig1, ComputeSignature("other", 1700000000, "ev-1", []byte(`{"a":1}`)))
}

func TestEmailNotifierEnqueues(t *testing.T) {
	enq := &captureEnqueuer{}
	n := EmailNotifier{Enqueuer: enq, Enabled: true}
	ev := newEvent(events.TopicOrderCreated, `{"orderId":"o-1","email":"buyer@example.com"}`)
	require.NoError(t, n.Notify(context.Background(), ev))
	require.Len(t, enq.emails, 1)
	require.Equal(t, "buyer@example.com", enq.emails[0].To)
	require.Contains(t, enq.emails[0].Body, "o-1")
}

func TestEmailNotifierSkipsWithoutRecipient(t *testing.T) {
	enq := &captureEnqueuer{}
	n := EmailNotifier{Enqueuer: enq, Enabled: true}
	require.NoError(t, n.Notify(context.Background(), newEvent(events.TopicOrderCreated, `{"orderId":"o-1"}`)))
	require.Empty(t, enq.emails)
}
