// Package notify pushes workflow events to interested parties. All
// delivery is best-effort: failures are logged at warn and discarded
// so a flaky channel can never fail a state transition.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/procesio/procesio/internal/observability"
)

// Kind is the notification category.
type Kind string

const (
	KindTaskAssigned      Kind = "task_assigned"
	KindApprovalRequested Kind = "approval_requested"
	KindApprovalEscalated Kind = "approval_escalated"
	KindInstanceFinished  Kind = "instance_finished"
)

// Notification is one outbound message.
type Notification struct {
	Kind       Kind           `json:"kind"`
	TenantID   string         `json:"tenant_id"`
	Recipient  string         `json:"recipient"`
	InstanceID string         `json:"instance_id"`
	Subject    string         `json:"subject"`
	Detail     map[string]any `json:"detail,omitempty"`
	SentAt     time.Time      `json:"sent_at"`
}

// Notifier delivers notifications. Implementations never return an
// error; delivery problems are their own to log.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier writes notifications to the structured log. The default
// in development.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	observability.LoggerFrom(ctx).Info("notification",
		zap.String("kind", string(n.Kind)),
		zap.String("recipient", n.Recipient),
		zap.String("instance_id", n.InstanceID),
		zap.String("subject", n.Subject),
	)
}

// WebhookNotifier POSTs notifications as JSON to a configured URL.
// Fire-and-forget: the HTTP call runs on the caller's goroutine with
// the client timeout as its bound, and failures are logged.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook-backed notifier.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}

	body, err := json.Marshal(n)
	if err != nil {
		observability.LoggerFrom(ctx).Warn("notification marshal failed", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		observability.LoggerFrom(ctx).Warn("notification request failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		observability.LoggerFrom(ctx).Warn("notification delivery failed",
			zap.String("kind", string(n.Kind)),
			zap.Error(err),
		)
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		observability.LoggerFrom(ctx).Warn("notification rejected",
			zap.String("kind", string(n.Kind)),
			zap.Int("status", resp.StatusCode),
		)
	}
}

// Ping verifies the webhook endpoint resolves. Satisfies the readiness
// checker.
func (w *WebhookNotifier) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, w.url, nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}
	return nil
}
