package stats

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
	"sync"
	"time"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Stealth-Signature"

// WebhookPayload is the body POSTed for each event.
type WebhookPayload struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Data      Counts `json:"data"`
}

var defaultRetryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second}

// Webhook is a Notifier that POSTs events to an HTTP endpoint. Publish
// never blocks: delivery and its retries run in the background.
type Webhook struct {
	URL    string
	Secret string

	// Delays is the wait before each attempt. Defaults to 0s, 1s, 5s.
	Delays []time.Duration

	client *http.Client
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewWebhook(url, secret string, timeout time.Duration, logger *slog.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		URL:    url,
		Secret: secret,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Publish schedules delivery of ev and returns immediately.
func (w *Webhook) Publish(_ context.Context, ev Event) error {
	payload := &WebhookPayload{Type: ev.Type, Timestamp: time.Now().Unix(), Data: ev.Counts()}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.deliverWithRetry(payload)
	}()
	return nil
}

// Wait blocks until every scheduled delivery has finished.
func (w *Webhook) Wait() { w.wg.Wait() }

func (w *Webhook) deliverWithRetry(payload *WebhookPayload) {
	delays := w.Delays
	if len(delays) == 0 {
		delays = defaultRetryDelays
	}
	for attempt, delay := range delays {
		if delay > 0 {
			time.Sleep(delay)
		}
		err := w.Deliver(context.Background(), payload)
		if err == nil {
			w.logger.Debug("webhook: delivered", "url", w.URL, "event", payload.Type, "attempt", attempt+1)
			return
		}
		w.logger.Warn("webhook: delivery failed",
			"url", w.URL,
			"event", payload.Type,
			"attempt", attempt+1,
			"error", err,
		)
	}
	w.logger.Error("webhook: delivery exhausted all retries", "url", w.URL, "event", payload.Type)
}

// Deliver sends one payload synchronously. The body is signed when a
// secret is configured.
func (w *Webhook) Deliver(ctx context.Context, payload *WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Stealthmode-Webhook/1.0")
	if w.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(w.Secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
