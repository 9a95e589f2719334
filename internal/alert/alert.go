// Package alert delivers security events to a webhook and a
// transactional-email API. Delivery is fire-and-forget: it runs on a
// detached context, never blocks the request path, and swallows its own
// failures. Raw IPs never leave the process; only an irreversible hash
// is included.
package alert

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// defaultEmailAPIURL is the Resend transactional send endpoint.
const defaultEmailAPIURL = "https://api.resend.com/emails"

const deliveryTimeout = 10 * time.Second

// Config holds sink settings. A sink with no URL/key is disabled. An
// empty event filter means every event.
type Config struct {
	WebhookURL    string
	WebhookSecret string
	WebhookEvents []string

	EmailAPIURL string
	EmailAPIKey string
	EmailFrom   string
	EmailTo     string
	EmailEvents []string
}

// Dispatcher fans events out to the configured sinks.
type Dispatcher struct {
	cfg           Config
	webhookFilter map[string]struct{}
	emailFilter   map[string]struct{}
	client        *http.Client
	wg            sync.WaitGroup
}

// New creates a dispatcher. With no sinks configured, Notify is a no-op.
func New(cfg Config) *Dispatcher {
	if cfg.EmailAPIURL == "" {
		cfg.EmailAPIURL = defaultEmailAPIURL
	}
	return &Dispatcher{
		cfg:           cfg,
		webhookFilter: buildFilter(cfg.WebhookEvents),
		emailFilter:   buildFilter(cfg.EmailEvents),
		client:        &http.Client{Timeout: deliveryTimeout},
	}
}

func buildFilter(events []string) map[string]struct{} {
	if len(events) == 0 {
		return nil // nil = all events
	}
	filter := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e != "" {
			filter[e] = struct{}{}
		}
	}
	return filter
}

func matches(filter map[string]struct{}, event string) bool {
	if filter == nil {
		return true
	}
	if _, ok := filter["*"]; ok {
		return true
	}
	_, ok := filter[event]
	return ok
}

// HashIP returns a short irreversible digest of an IP address.
func HashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}

// Notify delivers an event to every matching sink in the background.
// It returns immediately.
func (d *Dispatcher) Notify(event, ip string) {
	ipHash := HashIP(ip)
	occurred := time.Now().UTC()

	if d.cfg.WebhookURL != "" && matches(d.webhookFilter, event) {
		d.dispatch(func(ctx context.Context) error {
			return d.sendWebhook(ctx, event, ipHash, occurred)
		})
	}
	if d.cfg.EmailAPIKey != "" && d.cfg.EmailTo != "" && matches(d.emailFilter, event) {
		d.dispatch(func(ctx context.Context) error {
			return d.sendEmail(ctx, event, ipHash, occurred)
		})
	}
}

// dispatch runs fn on a detached context so delivery outlives the
// request that triggered it.
func (d *Dispatcher) dispatch(fn func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			log.Printf("[alert] delivery failed: %v", err)
		}
	}()
}

// Wait blocks until in-flight deliveries finish. Used on shutdown and
// in tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

type webhookPayload struct {
	Event  string `json:"event"`
	IPHash string `json:"ipHash"`
	Time   string `json:"time"`
}

func (d *Dispatcher) sendWebhook(ctx context.Context, event, ipHash string, occurred time.Time) error {
	body, err := json.Marshal(webhookPayload{
		Event:  event,
		IPHash: ipHash,
		Time:   occurred.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.WebhookSecret != "" {
		req.Header.Set("X-Alert-Secret", d.cfg.WebhookSecret)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

type emailPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

func (d *Dispatcher) sendEmail(ctx context.Context, event, ipHash string, occurred time.Time) error {
	body, err := json.Marshal(emailPayload{
		From:    d.cfg.EmailFrom,
		To:      []string{d.cfg.EmailTo},
		Subject: "tifa-api security event: " + event,
		Text: fmt.Sprintf("Event: %s\nIP hash: %s\nTime: %s\n",
			event, ipHash, occurred.Format(time.RFC3339)),
	})
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.EmailAPIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.cfg.EmailAPIKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("email post: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("email api returned status %d", resp.StatusCode)
	}
	return nil
}
