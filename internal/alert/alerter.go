package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/emperorhan/fa-indexer/internal/circuitbreaker"
	"github.com/emperorhan/fa-indexer/internal/metrics"
)

// AlertType categorizes the kind of alert.
type AlertType string

const (
	AlertTypeNegativeBalance AlertType = "NEGATIVE_BALANCE"
	AlertTypePipelineFailure AlertType = "PIPELINE_FAILURE"
	AlertTypeUnhealthy       AlertType = "UNHEALTHY"
	AlertTypeRecovery        AlertType = "RECOVERY"
	AlertTypeDBPool          AlertType = "DB_POOL"
)

// Alert is one operator notification. Key narrows the cooldown scope, e.g. a
// storage id for balance alerts; alerts of the same type with different keys
// are not deduplicated against each other.
type Alert struct {
	Type      AlertType
	Processor string
	Key       string
	Title     string
	Message   string
	Fields    map[string]string
}

type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// CooldownAlerter forwards alerts to its channels at most once per cooldown
// window for each (type, processor, key).
type CooldownAlerter struct {
	alerters []Alerter
	cooldown time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewCooldownAlerter(cooldown time.Duration, logger *slog.Logger, alerters ...Alerter) *CooldownAlerter {
	return &CooldownAlerter{
		alerters: alerters,
		cooldown: cooldown,
		logger:   logger.With("component", "alerter"),
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

func cooldownKey(a Alert) string {
	return fmt.Sprintf("%s:%s:%s", a.Type, a.Processor, a.Key)
}

func (m *CooldownAlerter) Send(ctx context.Context, alert Alert) error {
	key := cooldownKey(alert)
	now := m.now()

	m.mu.Lock()
	if last, ok := m.lastSent[key]; ok && now.Sub(last) < m.cooldown {
		m.mu.Unlock()
		m.logger.Debug("alert suppressed by cooldown", "key", key)
		metrics.AlertsSuppressed.WithLabelValues(string(alert.Type)).Inc()
		return nil
	}
	m.lastSent[key] = now
	m.pruneLocked(now)
	m.mu.Unlock()

	var firstErr error
	for _, a := range m.alerters {
		if err := a.Send(ctx, alert); err != nil {
			m.logger.Warn("alert send failed", "type", alert.Type, "key", alert.Key, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.AlertsSent.WithLabelValues(string(alert.Type)).Inc()
	}
	return firstErr
}

// pruneLocked forgets keys whose cooldown has long expired so per-storage keys
// do not accumulate.
func (m *CooldownAlerter) pruneLocked(now time.Time) {
	if len(m.lastSent) < 1024 {
		return
	}
	for k, t := range m.lastSent {
		if now.Sub(t) >= m.cooldown {
			delete(m.lastSent, k)
		}
	}
}

// WebhookAlerter posts alerts as JSON to an HTTP endpoint. When a breaker is
// attached, a webhook that keeps failing is skipped until the breaker probes
// it again.
type WebhookAlerter struct {
	url     string
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

type WebhookOption func(*WebhookAlerter)

func WithBreaker(b *circuitbreaker.Breaker) WebhookOption {
	return func(w *WebhookAlerter) { w.breaker = b }
}

func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *WebhookAlerter) { w.client = c }
}

func NewWebhookAlerter(url string, opts ...WebhookOption) *WebhookAlerter {
	w := &WebhookAlerter{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *WebhookAlerter) Send(ctx context.Context, alert Alert) error {
	if w.breaker == nil {
		return w.post(ctx, alert)
	}
	err := w.breaker.Do(ctx, func(ctx context.Context) error { return w.post(ctx, alert) })
	if errors.Is(err, circuitbreaker.ErrOpen) {
		metrics.AlertsRejected.WithLabelValues(string(alert.Type)).Inc()
	}
	return err
}

func (w *WebhookAlerter) post(ctx context.Context, alert Alert) error {
	payload := map[string]any{
		"type":      string(alert.Type),
		"processor": alert.Processor,
		"key":       alert.Key,
		"title":     alert.Title,
		"message":   alert.Message,
		"fields":    alert.Fields,
		"time":      time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NoopAlerter does nothing. Used when no alert channel is configured.
type NoopAlerter struct{}

func (NoopAlerter) Send(context.Context, Alert) error { return nil }
