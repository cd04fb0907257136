package scoring

import (
	"strings"

	"github.com/mailsentry/mailsentry/internal/core"
)

// BEC-category signal types. A critical signal of any of these disables the
// thread-reply and feedback dampeners (fraud override).
var becCategoryTypes = map[core.SignalType]bool{
	core.SignalExecImpersonation:   true,
	core.SignalWireTransferRequest: true,
	core.SignalGiftCardRequest:     true,
	core.SignalPayrollDiversion:    true,
	core.SignalFinancialRequest:    true,
	core.SignalDisplayNameMismatch: true,
}

const (
	marketingFactor      = 0.7
	institutionalFactor  = 0.5
	threadReplyFactor    = 0.6
	safeAttachmentFactor = 0.8
	feedbackFactor       = 0.7
	highFPRateFactor     = 0.85

	fpSampleFloor = 20
	fpRateFloor   = 0.10
)

// ApplyDampening runs the false-positive dampening cascade over a combined
// score. Factors stack multiplicatively in a fixed order; each step is
// skipped when its precondition fails or its toggle is off.
func ApplyDampening(score float64, signals []core.Signal, opts Options) (float64, []string) {
	var flags []string
	fraudOverride := hasCriticalBECSignal(signals)

	if opts.Config.DampenMarketing && opts.MarketingFromKnownSender {
		score *= marketingFactor
		flags = append(flags, "dampen_marketing")
	}
	if opts.Config.DampenInstitutional && isInstitutional(opts) && !fraudOverride {
		score *= institutionalFactor
		flags = append(flags, "dampen_institutional")
	}
	if opts.Config.DampenThreadReply && opts.ThreadReplyFromKnownParty && !fraudOverride {
		score *= threadReplyFactor
		flags = append(flags, "dampen_thread_reply")
	}
	if opts.Config.DampenAttachments && opts.SafeAttachmentKnownSender {
		score *= safeAttachmentFactor
		flags = append(flags, "dampen_safe_attachment")
	}
	if opts.Config.DampenFeedback && feedbackStillValid(opts) && !fraudOverride {
		score *= feedbackFactor
		flags = append(flags, "dampen_feedback")
	}
	if opts.Config.DampenHighFPRate && opts.FPSampleCount >= fpSampleFloor && opts.FPRate > fpRateFloor {
		score *= highFPRateFactor
		flags = append(flags, "dampen_high_fp_rate")
	}

	return score, flags
}

func hasCriticalBECSignal(signals []core.Signal) bool {
	for _, s := range signals {
		if s.Severity == core.SeverityCritical && becCategoryTypes[s.Type] {
			return true
		}
	}
	return false
}

func isInstitutional(opts Options) bool {
	if opts.SpoofSuspected {
		return false
	}
	if opts.KnownNonprofit {
		return true
	}
	d := strings.ToLower(opts.SenderDomain)
	return strings.HasSuffix(d, ".gov") || strings.HasSuffix(d, ".edu") || strings.HasSuffix(d, ".mil")
}

func feedbackStillValid(opts Options) bool {
	if opts.MarkedSafeAt == nil {
		return false
	}
	return opts.Now.Sub(*opts.MarkedSafeAt) <= opts.Config.FeedbackValidity
}
