package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// actuators.go — the outward-facing side of automated response. Notifier and
// Isolator are the two seams the engine acts through; the defaults only log,
// the webhook notifier posts JSON to an external receiver.
// ---------------------------------------------------------------------------

// Notification is one outbound alert message.
type Notification struct {
	AlertID string    `json:"alert_id"`
	UserID  string    `json:"user_id"`
	Band    RiskBand  `json:"band"`
	Score   float64   `json:"score"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// Notifier delivers notifications to analysts.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Isolator cuts a user's access as a containment measure.
type Isolator interface {
	Isolate(ctx context.Context, userID, reason string) error
}

// alertNotification renders the standard message for an alert.
func alertNotification(alert Alert) Notification {
	subject := fmt.Sprintf("[%s] insider risk alert for %s", alert.Assessment.Band, alert.UserID)
	body := fmt.Sprintf(
		"Alert %s: user %s scored %.3f (%s band). Top factors:",
		alert.ID, alert.UserID, alert.Assessment.Score, alert.Assessment.Band)
	for i, c := range alert.Assessment.Contributions {
		if i >= 3 {
			break
		}
		body += fmt.Sprintf(" %s=%+.3f", c.Feature, c.Signed)
	}
	return Notification{
		AlertID: alert.ID,
		UserID:  alert.UserID,
		Band:    alert.Assessment.Band,
		Score:   alert.Assessment.Score,
		Subject: subject,
		Body:    body,
		SentAt:  time.Now().UTC(),
	}
}

// LogNotifier writes notifications to the structured log. The default when no
// webhook is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Notify(_ context.Context, msg Notification) error {
	n.logger.Info().
		Str("alert_id", msg.AlertID).
		Str("user_id", msg.UserID).
		Str("band", msg.Band.String()).
		Str("subject", msg.Subject).
		Msg("notification")
	return nil
}

// WebhookNotifier posts notifications as JSON to an HTTP receiver.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "webhook_notifier").Logger(),
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, msg Notification) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	n.logger.Debug().Str("alert_id", msg.AlertID).Int("status", resp.StatusCode).Msg("webhook delivered")
	return nil
}

// LogIsolator records isolation decisions without touching any real system.
// This is a simulation; nothing here talks to an identity provider.
type LogIsolator struct {
	logger zerolog.Logger
}

// NewLogIsolator creates a log-only isolator.
func NewLogIsolator(logger zerolog.Logger) *LogIsolator {
	return &LogIsolator{logger: logger.With().Str("component", "isolator").Logger()}
}

func (i *LogIsolator) Isolate(_ context.Context, userID, reason string) error {
	i.logger.Warn().
		Str("user_id", userID).
		Str("reason", reason).
		Msg("user isolated")
	return nil
}
