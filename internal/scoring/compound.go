package scoring

import "github.com/mailsentry/mailsentry/internal/core"

// Attack-pattern signal types counted toward the synergy bonus in addition
// to any warning/critical signal.
var attackPatternTypes = map[core.SignalType]bool{
	core.SignalLookalikeDomain:     true,
	core.SignalDisplayNameMismatch: true,
	core.SignalExecImpersonation:   true,
	core.SignalWireTransferRequest: true,
	core.SignalFinancialRequest:    true,
	core.SignalGiftCardRequest:     true,
	core.SignalPayrollDiversion:    true,
	core.SignalReplyToMismatch:     true,
	core.SignalURLThreatIntel:      true,
	core.SignalMacroDocument:       true,
}

// synergyCap is the hard ceiling on the synergy bonus
const synergyCap = 8.0

// SynergyBonus rewards emails exhibiting several distinct attack patterns
// at once. Tiers: 2 distinct types add 4, 3 add 6, 4 or more add 8.
func SynergyBonus(signals []core.Signal) float64 {
	distinct := make(map[core.SignalType]bool)
	for _, s := range signals {
		if attackPatternTypes[s.Type] || s.Severity == core.SeverityWarning || s.Severity == core.SeverityCritical {
			distinct[s.Type] = true
		}
	}
	switch n := len(distinct); {
	case n >= 4:
		return synergyCap
	case n == 3:
		return 6
	case n == 2:
		return 4
	default:
		return 0
	}
}

// CompoundRule is one entry in the declarative compound-pattern table.
// A rule matches when at least MinRequired of its RequiredTypes and at
// least MinOptional of its OptionalTypes are present.
type CompoundRule struct {
	Name          string
	RequiredTypes []core.SignalType
	OptionalTypes []core.SignalType
	MinRequired   int
	MinOptional   int
}

// compoundRules is data, not code, so each pattern stays independently
// reviewable and unit-testable.
var compoundRules = []CompoundRule{
	{
		Name:          "bec_wire_fraud",
		RequiredTypes: []core.SignalType{core.SignalWireTransferRequest, core.SignalExecImpersonation},
		OptionalTypes: []core.SignalType{core.SignalFirstContact, core.SignalUrgencyLanguage, core.SignalSecrecyPressure},
		MinRequired:   2,
		MinOptional:   1,
	},
	{
		Name:          "gift_card_scam",
		RequiredTypes: []core.SignalType{core.SignalGiftCardRequest},
		OptionalTypes: []core.SignalType{core.SignalExecImpersonation, core.SignalDisplayNameMismatch, core.SignalUrgencyLanguage},
		MinRequired:   1,
		MinOptional:   1,
	},
	{
		Name:          "payroll_redirect",
		RequiredTypes: []core.SignalType{core.SignalPayrollDiversion},
		OptionalTypes: []core.SignalType{core.SignalDisplayNameMismatch, core.SignalReplyToMismatch, core.SignalFirstContact},
		MinRequired:   1,
		MinOptional:   1,
	},
	{
		Name:          "credential_phish",
		RequiredTypes: []core.SignalType{core.SignalLookalikeDomain, core.SignalSuspiciousURL, core.SignalURLThreatIntel},
		OptionalTypes: []core.SignalType{core.SignalUrgencyLanguage, core.SignalAuthFailure},
		MinRequired:   1,
		MinOptional:   1,
	},
	{
		Name:          "malware_delivery",
		RequiredTypes: []core.SignalType{core.SignalRiskyAttachment, core.SignalMacroDocument, core.SignalSandboxDetonation},
		OptionalTypes: []core.SignalType{core.SignalFirstContact, core.SignalAuthFailure, core.SignalNewDomain},
		MinRequired:   1,
		MinOptional:   1,
	},
	{
		Name:          "vendor_impersonation",
		RequiredTypes: []core.SignalType{core.SignalLookalikeDomain, core.SignalDisplayNameMismatch},
		OptionalTypes: []core.SignalType{core.SignalFinancialRequest, core.SignalWireTransferRequest, core.SignalReplyToMismatch},
		MinRequired:   1,
		MinOptional:   1,
	},
}

// MatchCompoundPatterns evaluates the rule table against the deduplicated
// signal set. Matches feed the verdict explanation, not the score.
func MatchCompoundPatterns(signals []core.Signal) []string {
	have := make(map[core.SignalType]bool, len(signals))
	for _, s := range signals {
		have[s.Type] = true
	}

	var matches []string
	for _, rule := range compoundRules {
		required := 0
		for _, t := range rule.RequiredTypes {
			if have[t] {
				required++
			}
		}
		optional := 0
		for _, t := range rule.OptionalTypes {
			if have[t] {
				optional++
			}
		}
		if required >= rule.MinRequired && optional >= rule.MinOptional {
			matches = append(matches, rule.Name)
		}
	}
	return matches
}
