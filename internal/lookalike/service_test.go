package lookalike

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/core"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(nil, zap.NewNop())
}

func TestDetect_Homoglyph(t *testing.T) {
	s := newTestService(t)

	match := s.Detect("tenant-1", "g00gle.com")
	require.True(t, match.IsLookalike)
	assert.Equal(t, core.AttackHomoglyph, match.AttackType)
	assert.Equal(t, "google", match.TargetBrand)
	assert.Equal(t, "google.com", match.TargetDomain)
	assert.Greater(t, match.FinalConfidence, 0.8)
}

func TestDetect_Typosquat(t *testing.T) {
	s := newTestService(t)

	match := s.Detect("tenant-1", "googel.com")
	require.True(t, match.IsLookalike)
	assert.Equal(t, core.AttackTyposquat, match.AttackType)
	assert.Equal(t, "google", match.TargetBrand)
	// edit distance 2
	assert.InDelta(t, 0.70, match.FinalConfidence, 1e-9)
}

func TestDetect_Cousin(t *testing.T) {
	s := newTestService(t)

	tests := []struct {
		domain string
		want   bool
	}{
		{"secure-paypal.com", true},
		{"paypal-verify.com", true},
		{"paypalaccounts.com", true}, // brand + 8 extra chars
		{"totally-unrelated.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			match := s.Detect("tenant-1", tt.domain)
			assert.Equal(t, tt.want, match.IsLookalike)
			if tt.want {
				assert.Equal(t, core.AttackCousin, match.AttackType)
			}
		})
	}
}

func TestDetect_ExactBrandDomainIsNotLookalike(t *testing.T) {
	s := newTestService(t)

	for _, domain := range []string{"google.com", "paypal.com", "www.microsoft.com"} {
		match := s.Detect("tenant-1", domain)
		assert.False(t, match.IsLookalike, domain)
	}
}

func TestDetect_TenantBrandsCheckedFirst(t *testing.T) {
	s := newTestService(t)
	s.RegisterTenantBrands("tenant-1", map[string]string{"acmecorp": "acmecorp.com"})

	match := s.Detect("tenant-1", "acmec0rp.com")
	require.True(t, match.IsLookalike)
	assert.Equal(t, "acmecorp", match.TargetBrand)
	assert.Equal(t, core.AttackHomoglyph, match.AttackType)

	// Other tenants do not see tenant-1's brands
	other := s.Detect("tenant-2", "acmec0rp.com")
	assert.False(t, other.IsLookalike)
}

func TestDetect_UnicodeConfusablesFolded(t *testing.T) {
	s := newTestService(t)

	assert.Equal(t, "paypal.com", foldDomain("pàypal.com"))

	// An accented domain folding onto the exact brand domain is an IDN
	// homoglyph attack, not the legitimate domain
	match := s.Detect("tenant-1", "pàypal.com")
	require.True(t, match.IsLookalike)
	assert.Equal(t, core.AttackHomoglyph, match.AttackType)
	assert.GreaterOrEqual(t, match.FinalConfidence, 0.9)
}

func TestRecordDetection_CreatesAndUpdatesPattern(t *testing.T) {
	s := newTestService(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.RecordDetection("g00gle.com", "google", "google.com", core.AttackHomoglyph, 0.9)
	patterns := s.Patterns()
	require.Len(t, patterns, 1)
	assert.Equal(t, 1, patterns[0].Occurrences)
	assert.InDelta(t, 0.9, patterns[0].AverageConfidence, 1e-9)

	// Second sample same day: prior weight = 1×exp(0) = 1
	s.RecordDetection("g0ogle.com", "google", "google.com", core.AttackHomoglyph, 0.7)
	patterns = s.Patterns()
	require.Len(t, patterns, 1)
	assert.Equal(t, 2, patterns[0].Occurrences)
	assert.InDelta(t, 0.8, patterns[0].AverageConfidence, 1e-9)
}

func TestRecordDetection_TimeDecayFavorsFreshSamples(t *testing.T) {
	s := newTestService(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.RecordDetection("g00gle.com", "google", "google.com", core.AttackHomoglyph, 0.9)

	// 14 days later (two half-lives) the old average carries weight
	// 1×exp(-2) ≈ 0.135, so the new 0.3 sample dominates
	s.now = func() time.Time { return base.Add(14 * 24 * time.Hour) }
	s.RecordDetection("g00gle.com", "google", "google.com", core.AttackHomoglyph, 0.3)

	p := s.Patterns()[0]
	assert.Less(t, p.AverageConfidence, 0.45)
	assert.Greater(t, p.AverageConfidence, 0.3)
}

func TestRecordFeedback_AsymmetricAdjustment(t *testing.T) {
	s := newTestService(t)
	s.RecordDetection("g00gle.com", "google", "google.com", core.AttackHomoglyph, 0.8)

	s.RecordFeedback("g00gle.com", true, true, core.FeedbackAnalyst)
	p := s.Patterns()[0]
	assert.InDelta(t, 0.3, p.FeedbackScore, 1e-9) // 0.2 × 1.5
	assert.InDelta(t, 0.83, p.AverageConfidence, 1e-9)

	s.RecordFeedback("g00gle.com", false, false, core.FeedbackUser)
	p = s.Patterns()[0]
	assert.InDelta(t, 0.1, p.FeedbackScore, 1e-9) // 0.3 − 0.2×1.0
	assert.InDelta(t, 0.73, p.AverageConfidence, 1e-9)
}

func TestRecordFeedback_ClampedToUnitInterval(t *testing.T) {
	s := newTestService(t)
	s.RecordDetection("g00gle.com", "google", "google.com", core.AttackHomoglyph, 0.8)

	for i := 0; i < 10; i++ {
		s.RecordFeedback("g00gle.com", true, true, core.FeedbackAnalyst)
	}
	p := s.Patterns()[0]
	assert.Equal(t, 1.0, p.FeedbackScore)
	assert.LessOrEqual(t, p.AverageConfidence, 1.0)
}

func TestFeedback_RaisesAdaptiveConfidence(t *testing.T) {
	s := newTestService(t)
	before := s.Detect("tenant-1", "g00gle.com")
	require.True(t, before.IsLookalike)

	s.RecordDetection("g00gle.com", "google", "google.com", core.AttackHomoglyph, before.FinalConfidence)
	for i := 0; i < 5; i++ {
		s.RecordFeedback("g00gle.com", true, true, core.FeedbackAnalyst)
	}

	after := s.Detect("tenant-1", "g00gle.com")
	assert.Greater(t, after.FinalConfidence, before.FinalConfidence)
	assert.LessOrEqual(t, after.FinalConfidence, 1.0)
}

func TestGeneralization_MintsWildcardAfterThreeSharedAffixes(t *testing.T) {
	s := newTestService(t)

	s.RecordDetection("secure-google.com", "google", "google.com", core.AttackCousin, 0.75)
	s.RecordDetection("secure-paypal.com", "paypal", "paypal.com", core.AttackCousin, 0.75)
	s.RecordDetection("secure-chase.com", "chase", "chase.com", core.AttackCousin, 0.75)

	var wildcard *core.LearnedPattern
	for _, p := range s.Patterns() {
		if p.IsGeneralized {
			wildcard = p
		}
	}
	require.NotNil(t, wildcard, "expected a generalized wildcard pattern")
	assert.Equal(t, core.GeneralizedBrand, wildcard.TargetBrand)
	assert.Equal(t, "secure-*", wildcard.Pattern)

	// A brand-new brand behind the same affix now matches via the wildcard
	match := s.Detect("tenant-1", "secure-unknownbank.com")
	assert.True(t, match.IsLookalike)
	assert.Equal(t, core.GeneralizedBrand, match.TargetBrand)
}

func TestDetect_ConcurrentAccess(t *testing.T) {
	s := newTestService(t)
	done := make(chan struct{})

	go func() {
		for i := 0; i < 200; i++ {
			s.RecordDetection("g00gle.com", "google", "google.com", core.AttackHomoglyph, 0.9)
			s.RecordFeedback("g00gle.com", true, true, core.FeedbackUser)
		}
		close(done)
	}()
	for i := 0; i < 200; i++ {
		s.Detect("tenant-1", "g00gle.com")
		s.Detect("tenant-1", "secure-paypal.com")
	}
	<-done

	p := s.Patterns()
	require.NotEmpty(t, p)
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"google", "google", 0},
		{"google", "googel", 2},
		{"google", "gooogle", 1},
		{"", "abc", 3},
		{"paypal", "paypa1", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestExtractAffix(t *testing.T) {
	assert.Equal(t, "secure-*", extractAffix("secure-google", "google"))
	assert.Equal(t, "*-verify", extractAffix("paypal-verify", "paypal"))
	assert.Equal(t, "", extractAffix("nothing-here", "google"))
	assert.Equal(t, "", extractAffix("pre-google-post", "google"))
}
