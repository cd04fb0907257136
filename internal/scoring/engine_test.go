package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsentry/mailsentry/internal/core"
)

func defaultOpts() Options {
	return Options{
		Config:              core.DefaultDetectionConfig(),
		SenderDomainAgeDays: 1000,
		Now:                 time.Now(),
	}
}

func sig(t core.SignalType, sev core.Severity, score float64) core.Signal {
	return core.Signal{Type: t, Severity: sev, Score: score, Detail: string(t)}
}

func TestDedupSignals_KeepsHighestScorePerType(t *testing.T) {
	signals := []core.Signal{
		sig(core.SignalUrgencyLanguage, core.SeverityWarning, 10),
		sig(core.SignalUrgencyLanguage, core.SeverityWarning, 25),
		sig(core.SignalUrgencyLanguage, core.SeverityInfo, 5),
		sig(core.SignalFirstContact, core.SeverityInfo, 8),
	}

	out := DedupSignals(signals)
	require.Len(t, out, 2)

	byType := map[core.SignalType]core.Signal{}
	for _, s := range out {
		byType[s.Type] = s
	}
	assert.Equal(t, 25.0, byType[core.SignalUrgencyLanguage].Score)
	assert.Equal(t, 8.0, byType[core.SignalFirstContact].Score)
}

func TestCalculateEnhancedScore_Bounds(t *testing.T) {
	tests := []struct {
		name   string
		layers []core.LayerResult
	}{
		{name: "no layers", layers: nil},
		{
			name: "everything maxed",
			layers: []core.LayerResult{
				{Layer: core.LayerDeterministic, Score: 100, Confidence: 1, Signals: []core.Signal{
					sig(core.SignalWireTransferRequest, core.SeverityCritical, 100),
					sig(core.SignalExecImpersonation, core.SeverityCritical, 100),
					sig(core.SignalLookalikeDomain, core.SeverityCritical, 100),
					sig(core.SignalFirstContact, core.SeverityWarning, 100),
				}},
				{Layer: core.LayerBEC, Score: 100, Confidence: 1},
				{Layer: core.LayerML, Score: 100, Confidence: 1},
			},
		},
		{
			name: "negative-ish input clamped",
			layers: []core.LayerResult{
				{Layer: core.LayerDeterministic, Score: -5, Confidence: 0.5},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CalculateEnhancedScore(tt.layers, defaultOpts())
			assert.GreaterOrEqual(t, res.OverallScore, 0.0)
			assert.LessOrEqual(t, res.OverallScore, 100.0)
			assert.GreaterOrEqual(t, res.Confidence, 0.0)
			assert.LessOrEqual(t, res.Confidence, 1.0)
		})
	}
}

func TestCalculateEnhancedScore_CriticalSignalNeverDecreasesScore(t *testing.T) {
	base := []core.LayerResult{
		{Layer: core.LayerDeterministic, Score: 40, Confidence: 0.8, Signals: []core.Signal{
			sig(core.SignalUrgencyLanguage, core.SeverityWarning, 15),
		}},
		{Layer: core.LayerBEC, Score: 30, Confidence: 0.7},
	}
	without := CalculateEnhancedScore(base, defaultOpts())

	withCritical := append([]core.LayerResult{}, base...)
	withCritical[1].Signals = []core.Signal{
		sig(core.SignalWireTransferRequest, core.SeverityCritical, 30),
	}
	with := CalculateEnhancedScore(withCritical, defaultOpts())

	assert.GreaterOrEqual(t, with.OverallScore, without.OverallScore)
}

func TestAmplifyFirstContactRisk_NoOpForAgedDomains(t *testing.T) {
	signals := []core.Signal{
		sig(core.SignalFirstContact, core.SeverityInfo, 10),
		sig(core.SignalFinancialRequest, core.SeverityWarning, 20),
	}

	out, applied := AmplifyFirstContactRisk(signals, 400)
	assert.False(t, applied)
	assert.Equal(t, signals, out)
}

func TestAmplifyFirstContactRisk_NoOpWithoutFirstContact(t *testing.T) {
	signals := []core.Signal{
		sig(core.SignalFinancialRequest, core.SeverityWarning, 20),
	}
	out, applied := AmplifyFirstContactRisk(signals, 5)
	assert.False(t, applied)
	assert.Equal(t, signals, out)
}

func TestAmplifyFirstContactRisk_MultiplierComposition(t *testing.T) {
	tests := []struct {
		name       string
		ageDays    int
		extra      []core.Signal
		multiplier float64
	}{
		{name: "young domain alone", ageDays: 5, multiplier: 1.2},
		{name: "unknown age", ageDays: -1, multiplier: 1.2},
		{name: "mid-age domain", ageDays: 120, multiplier: 1.1},
		{
			name:    "young domain, exec and financial",
			ageDays: 5,
			extra: []core.Signal{
				sig(core.SignalExecImpersonation, core.SeverityCritical, 30),
				sig(core.SignalFinancialRequest, core.SeverityWarning, 20),
			},
			multiplier: 1.5,
		},
		{
			name:    "young domain, vip targeting",
			ageDays: 10,
			extra: []core.Signal{
				sig(core.SignalVIPTargeting, core.SeverityWarning, 15),
			},
			multiplier: 1.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := append([]core.Signal{
				sig(core.SignalFirstContact, core.SeverityInfo, 10),
			}, tt.extra...)

			out, applied := AmplifyFirstContactRisk(signals, tt.ageDays)
			require.True(t, applied)

			first := out[0]
			require.Equal(t, core.SignalFirstContact, first.Type)
			assert.InDelta(t, 10*tt.multiplier, first.Score, 1e-9)
			assert.Equal(t, true, first.Metadata["amplified"])
			assert.Equal(t, 10.0, first.Metadata["original_score"])
			assert.InDelta(t, tt.multiplier, first.Metadata["multiplier"].(float64), 1e-9)
		})
	}
}

func TestAmplifyFirstContactRisk_CapsAt55(t *testing.T) {
	signals := []core.Signal{
		sig(core.SignalFirstContact, core.SeverityInfo, 10),
		sig(core.SignalWireTransferRequest, core.SeverityCritical, 50),
	}
	out, applied := AmplifyFirstContactRisk(signals, 2)
	require.True(t, applied)
	for _, s := range out {
		if s.Type == core.SignalWireTransferRequest {
			assert.Equal(t, 55.0, s.Score)
		}
	}
}

func TestAmplify_OriginalSignalsUntouched(t *testing.T) {
	original := sig(core.SignalFirstContact, core.SeverityInfo, 10)
	signals := []core.Signal{original}

	_, applied := AmplifyFirstContactRisk(signals, 5)
	require.True(t, applied)
	assert.Equal(t, 10.0, signals[0].Score)
	assert.Nil(t, signals[0].Metadata)
}

func TestSynergyBonus_Tiers(t *testing.T) {
	tests := []struct {
		name  string
		types []core.SignalType
		want  float64
	}{
		{name: "single pattern", types: []core.SignalType{core.SignalLookalikeDomain}, want: 0},
		{name: "two patterns", types: []core.SignalType{core.SignalLookalikeDomain, core.SignalReplyToMismatch}, want: 4},
		{name: "three patterns", types: []core.SignalType{core.SignalLookalikeDomain, core.SignalReplyToMismatch, core.SignalFinancialRequest}, want: 6},
		{name: "four patterns", types: []core.SignalType{core.SignalLookalikeDomain, core.SignalReplyToMismatch, core.SignalFinancialRequest, core.SignalMacroDocument}, want: 8},
		{name: "six patterns still capped", types: []core.SignalType{
			core.SignalLookalikeDomain, core.SignalReplyToMismatch, core.SignalFinancialRequest,
			core.SignalMacroDocument, core.SignalExecImpersonation, core.SignalGiftCardRequest,
		}, want: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var signals []core.Signal
			for _, typ := range tt.types {
				signals = append(signals, sig(typ, core.SeverityInfo, 10))
			}
			assert.Equal(t, tt.want, SynergyBonus(signals))
		})
	}
}

func TestSynergyBonus_CountsWarningSignalsOutsideAllowList(t *testing.T) {
	signals := []core.Signal{
		sig(core.SignalSendTimeAnomaly, core.SeverityWarning, 10),
		sig(core.SignalAuthFailure, core.SeverityWarning, 10),
	}
	assert.Equal(t, 4.0, SynergyBonus(signals))
}

func TestMatchCompoundPatterns(t *testing.T) {
	tests := []struct {
		name  string
		types []core.SignalType
		want  []string
	}{
		{
			name:  "wire fraud with urgency",
			types: []core.SignalType{core.SignalWireTransferRequest, core.SignalExecImpersonation, core.SignalUrgencyLanguage},
			want:  []string{"bec_wire_fraud"},
		},
		{
			name:  "wire fraud missing optional",
			types: []core.SignalType{core.SignalWireTransferRequest, core.SignalExecImpersonation},
			want:  nil,
		},
		{
			name:  "gift card scam",
			types: []core.SignalType{core.SignalGiftCardRequest, core.SignalDisplayNameMismatch},
			want:  []string{"gift_card_scam"},
		},
		{
			name:  "nothing matches",
			types: []core.SignalType{core.SignalUrgencyLanguage},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var signals []core.Signal
			for _, typ := range tt.types {
				signals = append(signals, sig(typ, core.SeverityWarning, 10))
			}
			assert.Equal(t, tt.want, MatchCompoundPatterns(signals))
		})
	}
}

func TestApplyDampening_Cascade(t *testing.T) {
	now := time.Now()
	recent := now.Add(-30 * 24 * time.Hour)
	stale := now.Add(-100 * 24 * time.Hour)

	base := defaultOpts()
	base.Now = now

	tests := []struct {
		name   string
		mutate func(*Options)
		signal []core.Signal
		want   float64
	}{
		{
			name:   "no dampeners",
			mutate: func(o *Options) {},
			want:   100,
		},
		{
			name:   "marketing known sender",
			mutate: func(o *Options) { o.MarketingFromKnownSender = true },
			want:   70,
		},
		{
			name:   "institutional gov domain",
			mutate: func(o *Options) { o.SenderDomain = "treasury.gov" },
			want:   50,
		},
		{
			name:   "spoofed gov domain not dampened",
			mutate: func(o *Options) { o.SenderDomain = "treasury.gov"; o.SpoofSuspected = true },
			want:   100,
		},
		{
			name:   "thread reply",
			mutate: func(o *Options) { o.ThreadReplyFromKnownParty = true },
			want:   60,
		},
		{
			name:   "valid feedback",
			mutate: func(o *Options) { o.MarkedSafeAt = &recent },
			want:   70,
		},
		{
			name:   "expired feedback ignored",
			mutate: func(o *Options) { o.MarkedSafeAt = &stale },
			want:   100,
		},
		{
			name:   "high fp rate",
			mutate: func(o *Options) { o.FPSampleCount = 25; o.FPRate = 0.2 },
			want:   85,
		},
		{
			name:   "too few fp samples",
			mutate: func(o *Options) { o.FPSampleCount = 10; o.FPRate = 0.5 },
			want:   100,
		},
		{
			name: "stacked marketing and thread",
			mutate: func(o *Options) {
				o.MarketingFromKnownSender = true
				o.ThreadReplyFromKnownParty = true
			},
			want: 42, // 100 × 0.7 × 0.6
		},
		{
			name:   "critical bec disables thread dampener",
			mutate: func(o *Options) { o.ThreadReplyFromKnownParty = true },
			signal: []core.Signal{sig(core.SignalWireTransferRequest, core.SeverityCritical, 40)},
			want:   100,
		},
		{
			name:   "critical bec disables feedback dampener",
			mutate: func(o *Options) { o.MarkedSafeAt = &recent },
			signal: []core.Signal{sig(core.SignalExecImpersonation, core.SeverityCritical, 40)},
			want:   100,
		},
		{
			name:   "critical bec does not disable marketing dampener",
			mutate: func(o *Options) { o.MarketingFromKnownSender = true },
			signal: []core.Signal{sig(core.SignalExecImpersonation, core.SeverityCritical, 40)},
			want:   70,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := base
			tt.mutate(&opts)
			got, _ := ApplyDampening(100, tt.signal, opts)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestConfidence_BlendsAverageAndCoverage(t *testing.T) {
	layers := []core.LayerResult{
		{Layer: core.LayerDeterministic, Score: 10, Confidence: 0.8},
		{Layer: core.LayerBEC, Score: 10, Confidence: 0.6},
	}
	res := CalculateEnhancedScore(layers, defaultOpts())
	// avg 0.7 × 0.7 + coverage 0.5 × 0.3
	assert.InDelta(t, 0.64, res.Confidence, 1e-9)
}

func TestCalculateEnhancedScore_SkippedLayersExcluded(t *testing.T) {
	layers := []core.LayerResult{
		{Layer: core.LayerDeterministic, Score: 80, Confidence: 0.9},
		{Layer: core.LayerLLM, Skipped: true, SkipReason: "gated", Score: 0},
	}
	res := CalculateEnhancedScore(layers, defaultOpts())

	only := CalculateEnhancedScore(layers[:1], defaultOpts())
	assert.Equal(t, only.OverallScore, res.OverallScore)
}

func TestCalculateEnhancedScore_AmplificationBonusFlag(t *testing.T) {
	layers := []core.LayerResult{
		{Layer: core.LayerBehavioral, Score: 20, Confidence: 0.6, Signals: []core.Signal{
			sig(core.SignalFirstContact, core.SeverityInfo, 10),
		}},
	}
	opts := defaultOpts()
	opts.SenderDomainAgeDays = 3

	res := CalculateEnhancedScore(layers, opts)
	assert.True(t, res.AmplificationApplied)
	assert.Contains(t, res.Flags, "first_contact_amplification")
}
