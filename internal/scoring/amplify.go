package scoring

import "github.com/mailsentry/mailsentry/internal/core"

// Signal types eligible for first-contact amplification. Everything else
// keeps its original score even when the multiplier fires.
var amplifiableTypes = map[core.SignalType]bool{
	core.SignalFirstContact:        true,
	core.SignalDisplayNameMismatch: true,
	core.SignalExecImpersonation:   true,
	core.SignalWireTransferRequest: true,
	core.SignalFinancialRequest:    true,
	core.SignalGiftCardRequest:     true,
	core.SignalPayrollDiversion:    true,
	core.SignalUrgencyLanguage:     true,
	core.SignalLookalikeDomain:     true,
}

// amplifiedScoreCap bounds any single amplified signal
const amplifiedScoreCap = 55.0

// AmplifyFirstContactRisk raises the risk-bearing signals of a first-contact
// email from a young or unknown domain. No-op when no first-contact signal is
// present, or when the sender domain is older than a year. Amplified signals
// are new values carrying the original score and multiplier in metadata.
func AmplifyFirstContactRisk(signals []core.Signal, senderDomainAgeDays int) ([]core.Signal, bool) {
	if !hasSignal(signals, core.SignalFirstContact) {
		return signals, false
	}
	if senderDomainAgeDays > 365 {
		return signals, false
	}

	multiplier := 1.2 // under 30 days, or age unknown
	if senderDomainAgeDays >= 30 {
		multiplier = 1.1
	}
	if hasSignal(signals, core.SignalExecImpersonation) {
		multiplier += 0.2
	}
	if hasSignal(signals, core.SignalFinancialRequest) || hasSignal(signals, core.SignalWireTransferRequest) {
		multiplier += 0.1
	}
	if hasSignal(signals, core.SignalVIPTargeting) {
		multiplier += 0.2
	}

	out := make([]core.Signal, len(signals))
	for i, s := range signals {
		if !amplifiableTypes[s.Type] {
			out[i] = s
			continue
		}
		amplified := s.Score * multiplier
		if amplified > amplifiedScoreCap {
			amplified = amplifiedScoreCap
		}
		out[i] = s.WithScore(amplified, map[string]any{
			"amplified":      true,
			"original_score": s.Score,
			"multiplier":     multiplier,
		})
	}
	return out, true
}

func hasSignal(signals []core.Signal, t core.SignalType) bool {
	for _, s := range signals {
		if s.Type == t {
			return true
		}
	}
	return false
}
