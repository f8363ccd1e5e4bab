package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

// Task kinds processed by the worker.
const (
	TaskWebhookDeliver = "notify:webhook"
	TaskEmailSend      = "notify:email"
)

// WebhookPayload identifies one delivery: which endpoint gets which event.
type WebhookPayload struct {
	EndpointID string `json:"endpointId"`
	EventID    string `json:"eventId"`
}

// EmailPayload carries a rendered transactional email.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Enqueuer publishes background tasks.
type Enqueuer struct {
	Client      *asynq.Client
	MaxRetry    int
	UniqueTTL   time.Duration
	RetentionHr int
}

func (e Enqueuer) maxRetry() int {
	if e.MaxRetry <= 0 {
		return 6
	}
	return e.MaxRetry
}

func (e Enqueuer) options(unique bool) []asynq.Option {
	opts := []asynq.Option{asynq.MaxRetry(e.maxRetry())}
	if unique && e.UniqueTTL > 0 {
		opts = append(opts, asynq.Unique(e.UniqueTTL))
	}
	if e.RetentionHr > 0 {
		opts = append(opts, asynq.Retention(time.Duration(e.RetentionHr)*time.Hour))
	}
	return opts
}

// EnqueueWebhook schedules one webhook delivery. Uniqueness is derived
// from the payload, so an event is enqueued at most once per endpoint
// within the dedup window.
func (e Enqueuer) EnqueueWebhook(ctx context.Context, p WebhookPayload) error {
	if e.Client == nil {
		return errors.New("queue: asynq client not configured")
	}
	if p.EndpointID == "" || p.EventID == "" {
		return errors.New("queue: webhook payload incomplete")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskWebhookDeliver, data)
	_, err = e.Client.EnqueueContext(ctx, task, e.options(true)...)
	return err
}

// EnqueueEmail schedules one transactional email.
func (e Enqueuer) EnqueueEmail(ctx context.Context, p EmailPayload) error {
	if e.Client == nil {
		return errors.New("queue: asynq client not configured")
	}
	if p.To == "" {
		return errors.New("queue: email recipient is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskEmailSend, data)
	_, err = e.Client.EnqueueContext(ctx, task, e.options(false)...)
	return err
}

// NewClient builds an asynq client from a Redis URL.
func NewClient(redisURL string) (*asynq.Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, err
	}
	return asynq.NewClient(opt), nil
}

// NewServer builds an asynq worker server with exponential backoff.
func NewServer(redisURL string, concurrency int) (*asynq.Server, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return time.Duration(1<<n) * 5 * time.Second
		},
	}), nil
}
