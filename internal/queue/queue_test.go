package queue

import (
	"context"
	"testing"
)

func TestEnqueueWebhookRequiresClient(t *testing.T) {
	e := Enqueuer{}
	err := e.EnqueueWebhook(context.Background(), WebhookPayload{EndpointID: "a", EventID: "b"})
	if err == nil {
		t.Fatal("expected error without client")
	}
}

func TestEnqueueWebhookRequiresIDs(t *testing.T) {
	e := Enqueuer{}
	if err := e.EnqueueWebhook(context.Background(), WebhookPayload{}); err == nil {
		t.Fatal("expected error for incomplete payload")
	}
}

func TestEnqueueEmailRequiresRecipient(t *testing.T) {
	e := Enqueuer{}
	if err := e.EnqueueEmail(context.Background(), EmailPayload{Subject: "x"}); err == nil {
		t.Fatal("expected error without recipient")
	}
}

func TestEnqueuerDefaults(t *testing.T) {
	e := Enqueuer{}
	if e.maxRetry() != 6 {
		t.Fatalf("expected default max retry 6, got %d", e.maxRetry())
	}
	if got := len(e.options(true)); got != 1 {
		t.Fatalf("expected single option without ttl, got %d", got)
	}
}
