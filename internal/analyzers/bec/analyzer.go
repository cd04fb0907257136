// Package bec implements the business-email-compromise layer: targeted
// fraud that impersonates a trusted party to extract money or data.
package bec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/core"
)

var executiveTitles = []string{
	"ceo", "cfo", "coo", "cto", "chief executive", "chief financial",
	"president", "chairman", "managing director", "vp ", "vice president",
	"head of finance", "treasurer",
}

var wireTransferPhrases = []string{
	"wire transfer", "wire the funds", "send a wire", "transfer to this account",
	"new banking details", "updated bank account", "process the payment today",
}

var giftCardPhrases = []string{
	"gift card", "gift cards", "itunes card", "google play card", "steam card",
	"scratch the back", "send me the codes",
}

var payrollPhrases = []string{
	"direct deposit", "update my payroll", "change my bank account",
	"new account for my salary", "payroll information",
}

var secrecyPhrases = []string{
	"keep this between us", "confidential", "don't tell", "do not discuss",
	"handle this discreetly", "are you at your desk",
}

// Analyzer detects BEC-pattern fraud. Executives is the tenant's protected
// leadership directory (lowercased display names); VIPRecipients lists
// addresses whose inbound mail warrants extra scrutiny.
type Analyzer struct {
	executives    map[string]bool
	vipRecipients map[string]bool
	logger        *zap.Logger
}

// NewAnalyzer builds the BEC layer for one tenant's directory
func NewAnalyzer(executives, vipRecipients []string, logger *zap.Logger) *Analyzer {
	a := &Analyzer{
		executives:    make(map[string]bool, len(executives)),
		vipRecipients: make(map[string]bool, len(vipRecipients)),
		logger:        logger,
	}
	for _, e := range executives {
		a.executives[strings.ToLower(strings.TrimSpace(e))] = true
	}
	for _, v := range vipRecipients {
		a.vipRecipients[strings.ToLower(strings.TrimSpace(v))] = true
	}
	return a
}

func (a *Analyzer) Layer() core.Layer { return core.LayerBEC }

// Analyze looks for impersonation plus an extraction ask. PriorSignals from
// the deterministic layer sharpen the impersonation call: a display-name
// mismatch upgrades executive impersonation to critical.
func (a *Analyzer) Analyze(ctx context.Context, email *core.Email, priorSignals []core.Signal) (*core.LayerResult, error) {
	start := time.Now()
	text := strings.ToLower(email.Subject + " " + email.TextBody)

	var signals []core.Signal

	if s := a.detectExecImpersonation(email, priorSignals); s != nil {
		signals = append(signals, *s)
	}
	if containsAny(text, wireTransferPhrases) {
		signals = append(signals, core.Signal{
			Type:     core.SignalWireTransferRequest,
			Severity: core.SeverityCritical,
			Score:    25,
			Detail:   "email requests a wire transfer or a banking-detail change",
		})
	}
	if containsAny(text, giftCardPhrases) {
		signals = append(signals, core.Signal{
			Type:     core.SignalGiftCardRequest,
			Severity: core.SeverityCritical,
			Score:    22,
			Detail:   "email requests gift card purchases or codes",
		})
	}
	if containsAny(text, payrollPhrases) {
		signals = append(signals, core.Signal{
			Type:     core.SignalPayrollDiversion,
			Severity: core.SeverityCritical,
			Score:    22,
			Detail:   "email asks to redirect payroll or direct deposit",
		})
	}
	if containsAny(text, secrecyPhrases) {
		signals = append(signals, core.Signal{
			Type:     core.SignalSecrecyPressure,
			Severity: core.SeverityWarning,
			Score:    8,
			Detail:   "email pressures the recipient into secrecy or immediacy",
		})
	}
	if s := a.detectVIPTargeting(email); s != nil {
		signals = append(signals, *s)
	}

	return &core.LayerResult{
		Layer:          core.LayerBEC,
		Score:          core.SumSignalScores(signals),
		Confidence:     a.confidence(signals),
		Signals:        signals,
		ProcessingTime: time.Since(start),
	}, nil
}

// detectExecImpersonation fires when the display name claims to be a known
// executive, or carries an executive title, while the sender is external to
// the protected directory entry.
func (a *Analyzer) detectExecImpersonation(email *core.Email, priorSignals []core.Signal) *core.Signal {
	display := strings.ToLower(strings.TrimSpace(email.FromDisplayName))
	if display == "" {
		return nil
	}

	matched := a.executives[display]
	if !matched {
		matched = containsAny(display, executiveTitles)
	}
	if !matched {
		return nil
	}

	severity := core.SeverityWarning
	score := 18.0
	for _, prior := range priorSignals {
		if prior.Type == core.SignalDisplayNameMismatch || prior.Type == core.SignalLookalikeDomain {
			severity = core.SeverityCritical
			score = 28
			break
		}
	}

	return &core.Signal{
		Type:     core.SignalExecImpersonation,
		Severity: severity,
		Score:    score,
		Detail:   fmt.Sprintf("display name %q claims executive identity", email.FromDisplayName),
		Metadata: map[string]any{"display_name": email.FromDisplayName},
	}
}

func (a *Analyzer) detectVIPTargeting(email *core.Email) *core.Signal {
	if len(a.vipRecipients) == 0 {
		return nil
	}
	for _, to := range email.To {
		if a.vipRecipients[strings.ToLower(to)] {
			return &core.Signal{
				Type:     core.SignalVIPTargeting,
				Severity: core.SeverityWarning,
				Score:    10,
				Detail:   fmt.Sprintf("recipient %s is on the high-value-target list", to),
			}
		}
	}
	return nil
}

// confidence scales with corroboration: an extraction ask plus an
// impersonation claim is far stronger than either alone.
func (a *Analyzer) confidence(signals []core.Signal) float64 {
	if len(signals) == 0 {
		return 0.85
	}
	impersonation := false
	extraction := false
	for _, s := range signals {
		switch s.Type {
		case core.SignalExecImpersonation:
			impersonation = true
		case core.SignalWireTransferRequest, core.SignalGiftCardRequest, core.SignalPayrollDiversion:
			extraction = true
		}
	}
	switch {
	case impersonation && extraction:
		return 0.92
	case extraction:
		return 0.75
	case impersonation:
		return 0.65
	default:
		return 0.5
	}
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
