// Package behavioral implements the sender-behavior layer: first-contact
// detection and anomalies against the sender's historical pattern.
package behavioral

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/core"
)

// HistoryStore answers how often a sender has written to a recipient before
type HistoryStore interface {
	SenderHistory(ctx context.Context, sender, recipient string) (*core.SenderInfo, error)
	RecordMessage(ctx context.Context, sender, recipient string, at time.Time) error
}

// Analyzer emits the first-contact and anomaly signals the aggregation
// engine's amplification and anomaly bonus key on
type Analyzer struct {
	history HistoryStore
	logger  *zap.Logger
}

func NewAnalyzer(history HistoryStore, logger *zap.Logger) *Analyzer {
	return &Analyzer{history: history, logger: logger}
}

func (a *Analyzer) Layer() core.Layer { return core.LayerBehavioral }

func (a *Analyzer) Analyze(ctx context.Context, email *core.Email, _ []core.Signal) (*core.LayerResult, error) {
	start := time.Now()
	var signals []core.Signal

	recipient := ""
	if len(email.To) > 0 {
		recipient = email.To[0]
	}

	info, err := a.history.SenderHistory(ctx, email.From, recipient)
	if err != nil {
		return nil, fmt.Errorf("sender history lookup: %w", err)
	}

	if info == nil || info.MessageCount == 0 {
		score := 8.0
		detail := "first email from this sender to this recipient"
		if email.SenderDomainAgeDays >= 0 && email.SenderDomainAgeDays < 30 {
			score = 14
			detail = fmt.Sprintf("first contact from a domain registered %d days ago", email.SenderDomainAgeDays)
		}
		signals = append(signals, core.Signal{
			Type:     core.SignalFirstContact,
			Severity: core.SeverityInfo,
			Score:    score,
			Detail:   detail,
			Metadata: map[string]any{"sender_domain_age_days": email.SenderDomainAgeDays},
		})
	}

	if email.SenderDomainAgeDays >= 0 && email.SenderDomainAgeDays < 30 {
		signals = append(signals, core.Signal{
			Type:     core.SignalNewDomain,
			Severity: core.SeverityWarning,
			Score:    10,
			Detail:   fmt.Sprintf("sender domain registered %d days ago", email.SenderDomainAgeDays),
		})
	}

	if s := a.detectSendTimeAnomaly(email, info); s != nil {
		signals = append(signals, *s)
	}

	if s := a.detectVolumeAnomaly(email, info); s != nil {
		signals = append(signals, *s)
	}

	if err := a.history.RecordMessage(ctx, email.From, recipient, email.ReceivedAt); err != nil {
		a.logger.Warn("Failed to record sender history", zap.Error(err))
	}

	return &core.LayerResult{
		Layer:          core.LayerBehavioral,
		Score:          core.SumSignalScores(signals),
		Confidence:     0.7,
		Signals:        signals,
		ProcessingTime: time.Since(start),
	}, nil
}

// detectSendTimeAnomaly flags mail from an established sender arriving far
// outside business hours. Only meaningful with enough history to have a
// pattern at all.
func (a *Analyzer) detectSendTimeAnomaly(email *core.Email, info *core.SenderInfo) *core.Signal {
	if info == nil || info.MessageCount < 5 {
		return nil
	}
	hour := email.ReceivedAt.Hour()
	if hour >= 6 && hour < 23 {
		return nil
	}
	return &core.Signal{
		Type:     core.SignalSendTimeAnomaly,
		Severity: core.SeverityInfo,
		Score:    6,
		Detail:   fmt.Sprintf("established sender emailed at %02d:00, outside their usual window", hour),
	}
}

// volumeBurstFloor is the minimum trailing-hour count before a burst is
// worth flagging at all
const volumeBurstFloor = 5

// detectVolumeAnomaly flags an established sender suddenly sending far more
// than their historical rate: a compromised account blasting the org looks
// exactly like this. The current message is not yet recorded, so RecentCount
// reflects the hour before it.
func (a *Analyzer) detectVolumeAnomaly(email *core.Email, info *core.SenderInfo) *core.Signal {
	if info == nil || info.MessageCount < 5 || info.RecentCount < volumeBurstFloor {
		return nil
	}
	days := email.ReceivedAt.Sub(info.FirstSeen).Hours() / 24
	if days < 1 {
		days = 1
	}
	perDay := float64(info.MessageCount) / days
	if float64(info.RecentCount) <= perDay {
		return nil
	}
	return &core.Signal{
		Type:     core.SignalVolumeAnomaly,
		Severity: core.SeverityWarning,
		Score:    12,
		Detail: fmt.Sprintf("%d messages in the last hour from a sender averaging %.1f per day",
			info.RecentCount, perDay),
		Metadata: map[string]any{
			"recent_count":    info.RecentCount,
			"average_per_day": perDay,
		},
	}
}
