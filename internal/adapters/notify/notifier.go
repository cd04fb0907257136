// Package notify delivers quarantine/block notifications to operators.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/core"
)

// LogNotifier just records the event. It is the default when no webhook
// is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendThreatNotification(_ context.Context, verdict *core.EmailVerdict) error {
	n.logger.Info("Threat notification",
		zap.String("verdict_id", verdict.ID.String()),
		zap.String("tenant", verdict.TenantID),
		zap.String("verdict", string(verdict.Verdict)),
		zap.Float64("score", verdict.OverallScore),
		zap.String("explanation", verdict.Explanation))
	return nil
}

// WebhookNotifier POSTs the verdict as JSON to an operator endpoint
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (n *WebhookNotifier) SendThreatNotification(ctx context.Context, verdict *core.EmailVerdict) error {
	payload, err := json.Marshal(map[string]any{
		"verdict_id": verdict.ID.String(),
		"tenant_id":  verdict.TenantID,
		"verdict":    verdict.Verdict,
		"score":      verdict.OverallScore,
		"reason":     verdict.Explanation,
		"analyzed":   verdict.AnalyzedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	n.logger.Debug("Threat notification delivered",
		zap.String("verdict_id", verdict.ID.String()))
	return nil
}
