package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dropskey/backend-dropskey/internal/repo"
	"github.com/dropskey/backend-dropskey/internal/resilience"
)

// ErrEndpointRejected marks a permanent delivery failure that retrying
// cannot fix, such as a malformed endpoint URL.
var ErrEndpointRejected = errors.New("notify: endpoint rejected")

// Sender performs one signed webhook delivery attempt.
type Sender struct {
	Client    *http.Client
	Breaker   *resilience.Breaker
	UserAgent string
	Replay    ReplayProtector
	ReplayTTL time.Duration
}

// Deliver posts the event to the endpoint and returns the response status.
// Callers treat a non-2xx status or transport error as retryable.
func (s *Sender) Deliver(ctx context.Context, ep repo.WebhookEndpoint, ev repo.DomainEvent) (int, string, error) {
	if s.Client == nil {
		s.Client = HTTPClient(5000, false)
	}
	ctx, span := otel.Tracer("notify.Sender").Start(ctx, "Sender.Deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.endpoint_id", repo.UUIDString(ep.ID)),
		attribute.String("webhook.topic", ev.Topic),
	)
	if err := validateURL(ep.URL); err != nil {
		span.RecordError(err)
		return 0, "", fmt.Errorf("%w: %v", ErrEndpointRejected, err)
	}
	occurred := time.Now()
	if ev.OccurredAt.Valid {
		occurred = ev.OccurredAt.Time
	}
	payload := struct {
		EventID    string          `json:"eventId"`
		Topic      string          `json:"topic"`
		Data       json.RawMessage `json:"data"`
		OccurredAt time.Time       `json:"occurredAt"`
	}{
		EventID:    repo.UUIDString(ev.ID),
		Topic:      ev.Topic,
		Data:       json.RawMessage(ev.Payload),
		OccurredAt: occurred,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	ts := time.Now().Unix()
	if s.Replay != nil && s.ReplayTTL > 0 {
		key := replayKey(ep.ID, ev.ID)
		ok, err := s.Replay.Acquire(ctx, key, s.ReplayTTL)
		if err != nil {
			span.RecordError(err)
			return 0, "", err
		}
		if !ok {
			span.AddEvent("delivery replay prevented")
			return http.StatusOK, "replay-suppressed", nil
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	eventID := repo.UUIDString(ev.ID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent())
	req.Header.Set("X-Event-ID", eventID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Signature", ComputeSignature(ep.Secret, ts, eventID, body))
	// Retries belong to the task queue; a single attempt goes through the
	// breaker so a flapping endpoint stops consuming worker time.
	wrapped := resilience.HTTPClient{Client: s.Client, Breaker: s.Breaker, MaxAttempts: 1}
	resp, err := wrapped.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		span.RecordError(err)
		return resp.StatusCode, "", err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp.StatusCode, string(responseBody), nil
}

func (s *Sender) userAgent() string {
	if s.UserAgent != "" {
		return s.UserAgent
	}
	return "dropskey-webhooks/1.0"
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook url must be http or https")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	return nil
}

// ComputeSignature calculates the webhook signature for the provided
// payload. The format is HMAC-SHA256 over "<ts>.<eventID>.<body>" using
// the endpoint secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HTTPClient returns an HTTP client configured for webhook delivery.
func HTTPClient(timeoutMs int, insecure bool) *http.Client {
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}
	transport := &http.Transport{}
	if insecure {
		transport.TLSClientConfig = insecureTLSConfig
	}
	return &http.Client{
		Timeout:   time.Duration(timeoutMs) * time.Millisecond,
		Transport: otelhttp.NewTransport(transport),
	}
}

var insecureTLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec

// ReplayProtector guards against sending duplicate deliveries within a TTL.
type ReplayProtector interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

func replayKey(endpointID, eventID pgtype.UUID) string {
	return fmt.Sprintf("wh:%s:%s", repo.UUIDString(endpointID), repo.UUIDString(eventID))
}
