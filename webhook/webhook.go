package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// EventBatchCompleted fires once every URL of a batch has a verdict.
const EventBatchCompleted = "batch.completed"

// SignatureHeader carries the HMAC-SHA256 of the body as sha256=<hex>.
const SignatureHeader = "X-LinkShield-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType, jobID string, data any) *Event {
	return &Event{Type: eventType, JobID: jobID, Timestamp: time.Now().Unix(), Data: data}
}

// Sender delivers events with retries. The zero value is not usable;
// call NewSender.
type Sender struct {
	client *http.Client
	delays []time.Duration
}

// NewSender creates a Sender retrying after 1s, 5s and 30s.
func NewSender() *Sender {
	return &Sender{
		client: &http.Client{Timeout: 10 * time.Second},
		delays: []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver sends a webhook event synchronously.
// The request body is signed with HMAC-SHA256 if secret is non-empty.
func (s *Sender) Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "LinkShield-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverWithRetry attempts delivery until it succeeds or the retry
// schedule is exhausted, returning the last error.
func (s *Sender) DeliverWithRetry(ctx context.Context, url, secret string, event *Event) error {
	var lastErr error
	for attempt, delay := range s.delays {
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		lastErr = s.Deliver(attemptCtx, url, secret, event)
		cancel()
		if lastErr == nil {
			slog.Info("webhook delivered",
				"url", url,
				"event", event.Type,
				"job_id", event.JobID,
				"attempt", attempt+1,
			)
			return nil
		}
		slog.Warn("webhook delivery failed",
			"url", url,
			"event", event.Type,
			"job_id", event.JobID,
			"attempt", attempt+1,
			"error", lastErr,
		)
	}
	slog.Error("webhook delivery exhausted all retries",
		"url", url,
		"event", event.Type,
		"job_id", event.JobID,
	)
	return lastErr
}

// DeliverAsync runs DeliverWithRetry in the background.
func (s *Sender) DeliverAsync(url, secret string, event *Event) {
	go func() {
		_ = s.DeliverWithRetry(context.Background(), url, secret, event)
	}()
}
