package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dropskey/backend-dropskey/internal/common"
	"github.com/dropskey/backend-dropskey/internal/events"
	"github.com/dropskey/backend-dropskey/internal/queue"
	"github.com/dropskey/backend-dropskey/internal/repo"
)

func webhookTask(t *testing.T, p queue.WebhookPayload) *asynq.Task {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return asynq.NewTask(queue.TaskWebhookDeliver, raw)
}

func TestWebhookWorkerDelivers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := &stubStore{events: map[[16]byte]repo.DomainEvent{}}
	ep, err := store.CreateEndpoint(context.Background(), srv.URL, "s", nil, true)
	require.NoError(t, err)
	ev := newEvent(events.TopicOrderCreated, `{"orderId":"o-1"}`)
	store.events[ev.ID.Bytes] = ev

	worker := &WebhookWorker{
		Store:  store,
		Sender: &Sender{Client: srv.Client()},
		Log:    zerolog.Nop(),
	}
	task := webhookTask(t, queue.WebhookPayload{
		EndpointID: repo.UUIDString(ep.ID),
		EventID:    repo.UUIDString(ev.ID),
	})
	require.NoError(t, worker.Handle(context.Background(), task))
}

func TestWebhookWorkerSkipsMalformedPayload(t *testing.T) {
	worker := &WebhookWorker{Store: &stubStore{}, Sender: &Sender{Client: http.DefaultClient}, Log: zerolog.Nop()}
	err := worker.Handle(context.Background(), asynq.NewTask(queue.TaskWebhookDeliver, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestWebhookWorkerSkipsInactiveEndpoint(t *testing.T) {
	store := &stubStore{events: map[[16]byte]repo.DomainEvent{}}
	ep := repo.WebhookEndpoint{ID: repo.FromUUID(uuid.New()), URL: "https://x.example.com", Secret: "s", Active: false}
	store.endpoints = append(store.endpoints, ep)
	ev := newEvent(events.TopicOrderCreated, `{}`)
	store.events[ev.ID.Bytes] = ev

	worker := &WebhookWorker{Store: store, Sender: &Sender{Client: http.DefaultClient}, Log: zerolog.Nop()}
	task := webhookTask(t, queue.WebhookPayload{EndpointID: repo.UUIDString(ep.ID), EventID: repo.UUIDString(ev.ID)})
	require.NoError(t, worker.Handle(context.Background(), task))
}

func TestWebhookWorkerRetriesOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := &stubStore{events: map[[16]byte]repo.DomainEvent{}}
	ep, err := store.CreateEndpoint(context.Background(), srv.URL, "s", nil, true)
	require.NoError(t, err)
	ev := newEvent(events.TopicOrderCreated, `{}`)
	store.events[ev.ID.Bytes] = ev

	worker := &WebhookWorker{Store: store, Sender: &Sender{Client: srv.Client()}, Log: zerolog.Nop()}
	task := webhookTask(t, queue.WebhookPayload{EndpointID: repo.UUIDString(ep.ID), EventID: repo.UUIDString(ev.ID)})
	err = worker.Handle(context.Background(), task)
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestEmailWorkerSends(t *testing.T) {
	outbox := &common.InMemoryEmail{}
	worker := &EmailWorker{Mail: outbox, Log: zerolog.Nop()}
	raw, err := json.Marshal(queue.EmailPayload{To: "buyer@example.com", Subject: "Your order is confirmed", Body: "Order: o-1"})
	require.NoError(t, err)
	require.NoError(t, worker.Handle(context.Background(), asynq.NewTask(queue.TaskEmailSend, raw)))
	require.Len(t, outbox.Outbox, 1)
	require.Equal(t, "buyer@example.com", outbox.Outbox[0].To)
}
