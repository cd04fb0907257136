package core

import "time"

// DetectionConfig carries the per-tenant knobs for one pipeline run.
// The zero value is not usable; start from DefaultDetectionConfig.
type DetectionConfig struct {
	// Verdict thresholds over the 0..100 overall score; anything below
	// SuspiciousThreshold passes
	SuspiciousThreshold float64
	QuarantineThreshold float64
	BlockThreshold      float64

	// Layer gating
	SkipLLM     bool
	SkipSandbox bool

	// LLM gating band over the deterministic score
	LLMScoreBandLow  float64
	LLMScoreBandHigh float64

	// ML confidence band in which the LLM opinion is still worth buying
	MLUncertainLow  float64
	MLUncertainHigh float64

	// LLMDailyQuota bounds LLM calls per tenant per UTC day; 0 disables
	// the quota entirely
	LLMDailyQuota int

	// Per-layer wall clock budgets
	LayerTimeout      time.Duration
	LLMTimeout        time.Duration
	ReputationTimeout time.Duration

	// Dampening toggles for the aggregation cascade
	DampenMarketing     bool
	DampenInstitutional bool
	DampenThreadReply   bool
	DampenAttachments   bool
	DampenFeedback      bool
	DampenHighFPRate    bool

	// FeedbackValidity bounds how long a "marked safe" feedback event keeps
	// dampening scores
	FeedbackValidity time.Duration
}

// DefaultDetectionConfig returns the documented defaults
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		SuspiciousThreshold: 55,
		QuarantineThreshold: 73,
		BlockThreshold:      85,
		LLMScoreBandLow:     30,
		LLMScoreBandHigh:    70,
		MLUncertainLow:      0.4,
		MLUncertainHigh:     0.75,
		LLMDailyQuota:       500,
		LayerTimeout:        10 * time.Second,
		LLMTimeout:          30 * time.Second,
		ReputationTimeout:   5 * time.Second,
		DampenMarketing:     true,
		DampenInstitutional: true,
		DampenThreadReply:   true,
		DampenAttachments:   true,
		DampenFeedback:      true,
		DampenHighFPRate:    true,
		FeedbackValidity:    90 * 24 * time.Hour,
	}
}

// VerdictForScore maps an overall score to a verdict using the configured
// thresholds. The mapping is the only place a verdict is decided.
func (c DetectionConfig) VerdictForScore(score float64) Verdict {
	switch {
	case score >= c.BlockThreshold:
		return VerdictBlock
	case score >= c.QuarantineThreshold:
		return VerdictQuarantine
	case score >= c.SuspiciousThreshold:
		return VerdictSuspicious
	default:
		return VerdictPass
	}
}

// ClampScore bounds a score into the canonical 0..100 range
func ClampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ClampConfidence bounds a confidence into 0..1
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// SumSignalScores totals the signal scores, capped at 100. Layer scores are
// recomputed this way after every filtering pass.
func SumSignalScores(signals []Signal) float64 {
	total := 0.0
	for _, s := range signals {
		total += s.Score
	}
	if total > 100 {
		return 100
	}
	return total
}
