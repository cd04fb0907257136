package pipeline

import (
	"net/url"
	"strings"

	"github.com/mailsentry/mailsentry/internal/core"
)

// FilterSignals removes the predictable false positives from a layer's
// signals using what the classifier and reputation lookups know about the
// sender. The filter is idempotent: filtering an already-filtered set with
// the same context changes nothing.
func FilterSignals(signals []core.Signal, classification *core.Classification, reputation *core.ReputationReport) []core.Signal {
	out := make([]core.Signal, 0, len(signals))
	for _, s := range signals {
		if dropSignal(s, classification, reputation) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func dropSignal(s core.Signal, classification *core.Classification, reputation *core.ReputationReport) bool {
	// Bulk marketing from a sender the recipient already knows: pressure
	// and money language is the genre, not an attack. Warning and critical
	// findings survive.
	if classification != nil && classification.IsKnownSender &&
		strings.EqualFold(classification.Type, "marketing") &&
		s.Severity == core.SeverityInfo {
		switch s.Type {
		case core.SignalUrgencyLanguage, core.SignalFinancialRequest, core.SignalSuspiciousURL:
			return true
		}
	}

	// A known sender writing again is by definition not first contact,
	// whatever the per-recipient history table says
	if classification != nil && classification.IsKnownSender && s.Type == core.SignalFirstContact {
		return true
	}

	// Links through known marketing/tracking redirectors
	if reputation != nil && s.Type == core.SignalSuspiciousURL {
		if raw, ok := s.Metadata["url"].(string); ok && hostOnAllowlist(raw, reputation.TrackingDomains) {
			return true
		}
	}

	// Gift-card chatter from classified transactional senders (receipt and
	// promotion mail mentions gift cards constantly)
	if classification != nil && classification.SkipGiftCardDetection && s.Type == core.SignalGiftCardRequest {
		return true
	}

	return false
}

func hostOnAllowlist(raw string, allowlist []string) bool {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, allowed := range allowlist {
		a := strings.ToLower(allowed)
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}
