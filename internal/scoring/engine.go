package scoring

import (
	"sort"
	"strings"
	"time"

	"github.com/mailsentry/mailsentry/internal/core"
)

// Per-layer weights for the weighted combination. Skipped layers are
// excluded and the remaining weights renormalized.
var layerWeights = map[core.Layer]float64{
	core.LayerDeterministic: 0.25,
	core.LayerReputation:    0.15,
	core.LayerML:            0.15,
	core.LayerBEC:           0.20,
	core.LayerLLM:           0.10,
	core.LayerSandbox:       0.05,
	core.LayerBehavioral:    0.10,
}

// Core layers counted toward confidence coverage
var coreLayers = []core.Layer{
	core.LayerDeterministic,
	core.LayerReputation,
	core.LayerML,
	core.LayerBEC,
}

const (
	criticalSignalWeight = 7.0
	criticalBoostCap     = 20.0
	warningSignalWeight  = 3.0
	warningBoostCap      = 10.0
	rawSignalScale       = 0.25
	rawSignalCap         = 30.0
	amplificationBonus   = 8.0
	anomalyBonus         = 3.0
)

// Options carries the contextual flags the engine needs without reaching
// back into the pipeline. Everything here is resolved by the caller so the
// engine stays a pure function of its inputs.
type Options struct {
	Config core.DetectionConfig

	// First-contact amplification context
	SenderDomainAgeDays int // -1 when unknown

	// Dampening context
	SenderDomain              string
	MarketingFromKnownSender  bool
	KnownNonprofit            bool
	SpoofSuspected            bool
	ThreadReplyFromKnownParty bool
	SafeAttachmentKnownSender bool
	MarkedSafeAt              *time.Time
	FPSampleCount             int
	FPRate                    float64

	Now time.Time
}

// Result is the engine's explainable output
type Result struct {
	OverallScore         float64
	Confidence           float64
	Signals              []core.Signal
	SynergyBonus         float64
	CompoundPatterns     []string
	Flags                []string
	AmplificationApplied bool
}

// CalculateEnhancedScore combines heterogeneous per-layer results into one
// 0..100 score with explainable sub-bonuses. Skipped layers are ignored.
func CalculateEnhancedScore(layerResults []core.LayerResult, opts Options) Result {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	present := make([]core.LayerResult, 0, len(layerResults))
	for _, lr := range layerResults {
		if !lr.Skipped {
			present = append(present, lr)
		}
	}

	signals := DedupSignals(collectSignals(present))

	var flags []string
	signals, amplified := AmplifyFirstContactRisk(signals, opts.SenderDomainAgeDays)
	if amplified {
		flags = append(flags, "first_contact_amplification")
	}

	synergy := SynergyBonus(signals)
	compound := MatchCompoundPatterns(signals)

	// Weighted combination over the layers actually present
	weighted := 0.0
	totalWeight := 0.0
	for _, lr := range present {
		w := layerWeights[lr.Layer]
		weighted += w * core.ClampScore(lr.Score)
		totalWeight += w
	}
	if totalWeight > 0 {
		weighted /= totalWeight
	}

	score := weighted
	score += criticalBoost(signals)
	score += warningBoost(signals)
	score += rawSignalContribution(signals)
	score += synergy
	if amplified {
		score += amplificationBonus
	}
	if hasAnomalySignal(signals) {
		score += anomalyBonus
		flags = append(flags, "behavioral_anomaly")
	}

	score, dampenFlags := ApplyDampening(score, signals, opts)
	flags = append(flags, dampenFlags...)

	return Result{
		OverallScore:         core.ClampScore(score),
		Confidence:           confidence(present),
		Signals:              signals,
		SynergyBonus:         synergy,
		CompoundPatterns:     compound,
		Flags:                flags,
		AmplificationApplied: amplified,
	}
}

// DedupSignals collapses signals sharing a type, keeping the highest score.
// Output order is deterministic (by type, then original order).
func DedupSignals(signals []core.Signal) []core.Signal {
	best := make(map[core.SignalType]core.Signal, len(signals))
	for _, s := range signals {
		if existing, ok := best[s.Type]; !ok || s.Score > existing.Score {
			best[s.Type] = s
		}
	}
	out := make([]core.Signal, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(string(out[i].Type), string(out[j].Type)) < 0
	})
	return out
}

func collectSignals(layerResults []core.LayerResult) []core.Signal {
	var all []core.Signal
	for _, lr := range layerResults {
		all = append(all, lr.Signals...)
	}
	return all
}

func criticalBoost(signals []core.Signal) float64 {
	boost := 0.0
	for _, s := range signals {
		if s.Severity == core.SeverityCritical {
			boost += criticalSignalWeight
		}
	}
	if boost > criticalBoostCap {
		return criticalBoostCap
	}
	return boost
}

func warningBoost(signals []core.Signal) float64 {
	boost := 0.0
	for _, s := range signals {
		if s.Severity == core.SeverityWarning {
			boost += warningSignalWeight
		}
	}
	if boost > warningBoostCap {
		return warningBoostCap
	}
	return boost
}

func rawSignalContribution(signals []core.Signal) float64 {
	total := 0.0
	for _, s := range signals {
		total += s.Score
	}
	contribution := total * rawSignalScale
	if contribution > rawSignalCap {
		return rawSignalCap
	}
	return contribution
}

func hasAnomalySignal(signals []core.Signal) bool {
	for _, s := range signals {
		switch s.Type {
		case core.SignalSendTimeAnomaly, core.SignalVolumeAnomaly:
			return true
		}
	}
	return false
}

// confidence blends mean layer confidence with coverage of the core layers
func confidence(present []core.LayerResult) float64 {
	if len(present) == 0 {
		return 0
	}
	avg := 0.0
	have := make(map[core.Layer]bool, len(present))
	for _, lr := range present {
		avg += core.ClampConfidence(lr.Confidence)
		have[lr.Layer] = true
	}
	avg /= float64(len(present))

	covered := 0
	for _, l := range coreLayers {
		if have[l] {
			covered++
		}
	}
	coverage := float64(covered) / float64(len(coreLayers))

	return core.ClampConfidence(avg*0.7 + coverage*0.3)
}
