package lookalike

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/willf/bloom"
	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/core"
	"github.com/mailsentry/mailsentry/internal/metrics"
)

const (
	patternShards = 32

	// feedbackTuning scales how much accumulated feedback can move the
	// detector confidence
	feedbackTuning = 0.15

	// decayHalfLife drives the exp(-days/7) weighting of stale patterns
	decayHalfLifeDays = 7.0

	// generalizeFloor is how many sibling patterns must share an affix
	// before a wildcard pattern is minted
	generalizeFloor = 3
)

// Global brands every tenant is protected against. Tenants layer their own
// brand list on top.
var defaultProtectedBrands = map[string]string{
	"google":    "google.com",
	"microsoft": "microsoft.com",
	"apple":     "apple.com",
	"amazon":    "amazon.com",
	"paypal":    "paypal.com",
	"netflix":   "netflix.com",
	"docusign":  "docusign.com",
	"dropbox":   "dropbox.com",
	"adobe":     "adobe.com",
	"chase":     "chase.com",
}

type patternShard struct {
	mu      sync.RWMutex
	entries map[string]*core.LearnedPattern
}

// Service detects brand-impersonation domains and improves its own
// confidence from operator feedback. One instance is shared by every
// concurrent pipeline run; per-key updates are serialized by shard.
type Service struct {
	logger *zap.Logger
	store  core.PatternStore // nil means in-memory only

	brandMu      sync.RWMutex
	globalBrands map[string]string            // brand -> canonical domain
	tenantBrands map[string]map[string]string // tenant -> brand -> domain

	// legitFilter answers "is this exactly a protected brand domain" fast,
	// so the common clean case skips the detector scan
	legitFilter *bloom.BloomFilter
	legitSet    map[string]bool

	shards [patternShards]*patternShard
	now    func() time.Time
}

// NewService builds a lookalike service seeded with the global protected
// brands. A nil store keeps all learned patterns in memory.
func NewService(store core.PatternStore, logger *zap.Logger) *Service {
	s := &Service{
		logger:       logger,
		store:        store,
		globalBrands: make(map[string]string, len(defaultProtectedBrands)),
		tenantBrands: make(map[string]map[string]string),
		legitFilter:  bloom.New(20000, 5),
		legitSet:     make(map[string]bool),
		now:          time.Now,
	}
	for i := range s.shards {
		s.shards[i] = &patternShard{entries: make(map[string]*core.LearnedPattern)}
	}
	for brand, domain := range defaultProtectedBrands {
		s.globalBrands[brand] = domain
		s.addLegitDomain(domain)
	}
	if store != nil {
		s.loadPatterns()
	}
	return s
}

func (s *Service) loadPatterns() {
	patterns, err := s.store.LoadPatterns(context.Background())
	if err != nil {
		s.logger.Warn("Failed to load learned patterns, starting empty", zap.Error(err))
		return
	}
	for _, p := range patterns {
		key := keyFor(p)
		shard := s.shard(key)
		shard.mu.Lock()
		shard.entries[key] = p
		shard.mu.Unlock()
	}
	s.logger.Info("Loaded learned lookalike patterns", zap.Int("count", len(patterns)))
}

// RegisterTenantBrands installs or replaces the tenant-scoped brand list
func (s *Service) RegisterTenantBrands(tenantID string, brands map[string]string) {
	normalized := make(map[string]string, len(brands))
	for brand, domain := range brands {
		normalized[strings.ToLower(brand)] = strings.ToLower(domain)
	}
	s.brandMu.Lock()
	s.tenantBrands[tenantID] = normalized
	s.brandMu.Unlock()
	for _, domain := range normalized {
		s.addLegitDomain(domain)
	}
}

func (s *Service) addLegitDomain(domain string) {
	s.brandMu.Lock()
	s.legitSet[domain] = true
	s.brandMu.Unlock()
	s.legitFilter.AddString(domain)
}

// Detect checks whether domain impersonates a protected brand. Check order:
// tenant brands, global brands, learned patterns, generalized wildcards.
func (s *Service) Detect(tenantID, domain string) core.LookalikeMatch {
	folded := foldDomain(domain)
	none := core.LookalikeMatch{Domain: folded}

	// Fast path: the exact brand domain itself is never a lookalike. The
	// bloom filter screens the map lookup. An accented domain that folds
	// onto a brand domain is the opposite case: an IDN homoglyph attack.
	if s.legitFilter.TestString(folded) {
		s.brandMu.RLock()
		legit := s.legitSet[folded]
		s.brandMu.RUnlock()
		if legit {
			if folded != strings.ToLower(strings.TrimSpace(domain)) {
				return s.finalize(folded, registrableLabel(folded), folded, core.AttackHomoglyph, 0.9)
			}
			return none
		}
	}

	label := registrableLabel(folded)
	if label == "" {
		return none
	}

	s.brandMu.RLock()
	tenant := s.tenantBrands[tenantID]
	s.brandMu.RUnlock()

	if match, ok := s.detectAgainst(folded, label, tenant); ok {
		return match
	}
	s.brandMu.RLock()
	global := s.globalBrands
	s.brandMu.RUnlock()
	if match, ok := s.detectAgainst(folded, label, global); ok {
		return match
	}
	if match, ok := s.matchLearnedPatterns(folded, label); ok {
		return match
	}
	return none
}

func (s *Service) detectAgainst(domain, label string, brands map[string]string) (core.LookalikeMatch, bool) {
	for brand, brandDomain := range brands {
		if conf, ok := detectHomoglyph(label, brand); ok {
			return s.finalize(domain, brand, brandDomain, core.AttackHomoglyph, conf), true
		}
		if conf, ok := detectTyposquat(label, brand); ok {
			return s.finalize(domain, brand, brandDomain, core.AttackTyposquat, conf), true
		}
		if conf, ok := detectCousin(label, brand); ok {
			return s.finalize(domain, brand, brandDomain, core.AttackCousin, conf), true
		}
	}
	return core.LookalikeMatch{}, false
}

// finalize applies the feedback-driven adaptive adjustment to a base
// detector confidence
func (s *Service) finalize(domain, brand, brandDomain string, attack core.AttackType, baseConf float64) core.LookalikeMatch {
	conf := core.ClampConfidence(baseConf + s.adaptiveAdjustment(brand, attack))
	metrics.LookalikeDetections.WithLabelValues(string(attack)).Inc()
	return core.LookalikeMatch{
		IsLookalike:     true,
		Domain:          domain,
		TargetBrand:     brand,
		TargetDomain:    brandDomain,
		AttackType:      attack,
		FinalConfidence: conf,
	}
}

// adaptiveAdjustment folds accumulated feedback into the detector
// confidence: feedbackScore × occurrence weight × freshness decay × tuning.
func (s *Service) adaptiveAdjustment(brand string, attack core.AttackType) float64 {
	now := s.now()
	key := patternKey(brand, attack)
	shard := s.shard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	p, ok := shard.entries[key]
	if !ok {
		return 0
	}
	occ := float64(p.Occurrences)
	if occ > 10 {
		occ = 10
	}
	days := now.Sub(p.LastSeen).Hours() / 24
	return p.FeedbackScore * (occ / 10) * math.Exp(-days/decayHalfLifeDays) * feedbackTuning
}

func (s *Service) matchLearnedPatterns(domain, label string) (core.LookalikeMatch, bool) {
	now := s.now()
	var best *core.LearnedPattern
	var bestWildcard *core.LearnedPattern

	for _, shard := range s.shards {
		shard.mu.RLock()
		for _, p := range shard.entries {
			if p.IsGeneralized {
				if affixMatches(p.Pattern, label) && (bestWildcard == nil || p.AverageConfidence > bestWildcard.AverageConfidence) {
					bestWildcard = p
				}
				continue
			}
			if p.Pattern == domain || levenshtein(p.Pattern, domain) == 1 {
				if best == nil || p.AverageConfidence > best.AverageConfidence {
					best = p
				}
			}
		}
		shard.mu.RUnlock()
	}

	// Concrete learned patterns outrank generalized wildcards
	if best == nil {
		best = bestWildcard
	}
	if best == nil {
		return core.LookalikeMatch{}, false
	}

	days := now.Sub(best.LastSeen).Hours() / 24
	occ := float64(best.Occurrences)
	if occ > 10 {
		occ = 10
	}
	conf := core.ClampConfidence(best.AverageConfidence +
		best.FeedbackScore*(occ/10)*math.Exp(-days/decayHalfLifeDays)*feedbackTuning)

	return core.LookalikeMatch{
		IsLookalike:     true,
		Domain:          domain,
		TargetBrand:     best.TargetBrand,
		TargetDomain:    best.TargetDomain,
		AttackType:      best.AttackType,
		FinalConfidence: conf,
	}, true
}

// RecordDetection feeds a confirmed detection back into the pattern store.
// The running average confidence is decayed by pattern staleness before the
// new sample is blended in, so long-dormant patterns re-learn quickly.
func (s *Service) RecordDetection(domain, targetBrand, targetDomain string, attack core.AttackType, confidence float64) {
	key := patternKey(targetBrand, attack)
	shard := s.shard(key)
	now := s.now()

	shard.mu.Lock()
	p, ok := shard.entries[key]
	if !ok {
		p = &core.LearnedPattern{
			Pattern:           foldDomain(domain),
			TargetBrand:       strings.ToLower(targetBrand),
			TargetDomain:      strings.ToLower(targetDomain),
			AttackType:        attack,
			Occurrences:       1,
			AverageConfidence: core.ClampConfidence(confidence),
			LastSeen:          now,
		}
		shard.entries[key] = p
	} else {
		days := now.Sub(p.LastSeen).Hours() / 24
		priorWeight := float64(p.Occurrences) * math.Exp(-days/decayHalfLifeDays)
		p.AverageConfidence = core.ClampConfidence(
			(p.AverageConfidence*priorWeight + confidence) / (priorWeight + 1))
		p.Occurrences++
		p.Pattern = foldDomain(domain)
		p.LastSeen = now
	}
	snapshot := *p
	shard.mu.Unlock()

	s.persist(&snapshot)
	s.maybeGeneralize(attack)
}

// maybeGeneralize mints a wildcard pattern once enough concrete patterns of
// one attack type share an extracted affix. Concrete patterns are kept.
func (s *Service) maybeGeneralize(attack core.AttackType) {
	if attack != core.AttackCousin {
		return
	}

	counts := make(map[string]int)
	confs := make(map[string]float64)
	for _, shard := range s.shards {
		shard.mu.RLock()
		for _, p := range shard.entries {
			if p.AttackType != attack || p.IsGeneralized {
				continue
			}
			if affix := extractAffix(registrableLabel(p.Pattern), p.TargetBrand); affix != "" {
				counts[affix]++
				confs[affix] += p.AverageConfidence
			}
		}
		shard.mu.RUnlock()
	}

	for affix, count := range counts {
		if count < generalizeFloor {
			continue
		}
		// One wildcard per (attack, affix); existing wildcards are kept
		key := patternKey(core.GeneralizedBrand, attack) + "|" + affix
		shard := s.shard(key)
		now := s.now()
		shard.mu.Lock()
		if _, exists := shard.entries[key]; exists {
			shard.mu.Unlock()
			continue
		}
		wildcard := &core.LearnedPattern{
			Pattern:           affix,
			TargetBrand:       core.GeneralizedBrand,
			AttackType:        attack,
			Occurrences:       count,
			AverageConfidence: core.ClampConfidence(confs[affix] / float64(count)),
			IsGeneralized:     true,
			LastSeen:          now,
		}
		shard.entries[key] = wildcard
		snapshot := *wildcard
		shard.mu.Unlock()
		s.logger.Info("Generalized lookalike pattern",
			zap.String("affix", affix),
			zap.String("attack_type", string(attack)),
			zap.Int("supporting_patterns", count))
		s.persist(&snapshot)
	}
}

// Feedback weights by source; analysts move the needle more than automation
var feedbackSourceWeights = map[core.FeedbackSource]float64{
	core.FeedbackAnalyst:   1.5,
	core.FeedbackUser:      1.0,
	core.FeedbackAutomated: 0.8,
}

// RecordFeedback adjusts the patterns that matched a domain. Confirmations
// nudge confidence up slightly; false positives cut it hard. The asymmetry
// deliberately favors precision.
func (s *Service) RecordFeedback(domain string, wasCorrect, confirmedThreat bool, source core.FeedbackSource) {
	folded := foldDomain(domain)
	weight, ok := feedbackSourceWeights[source]
	if !ok {
		weight = feedbackSourceWeights[core.FeedbackAutomated]
	}

	delta := 0.15 * weight
	if wasCorrect && confirmedThreat {
		delta = 0.2 * weight
	} else if !wasCorrect {
		delta = -0.2 * weight
	}

	touched := 0
	var snapshots []core.LearnedPattern
	for _, shard := range s.shards {
		shard.mu.Lock()
		for _, p := range shard.entries {
			if !patternCovers(p, folded) {
				continue
			}
			p.FeedbackScore = clampFeedback(p.FeedbackScore + delta)
			if wasCorrect {
				p.AverageConfidence = core.ClampConfidence(p.AverageConfidence + 0.03)
			} else {
				p.AverageConfidence = core.ClampConfidence(p.AverageConfidence - 0.1)
			}
			snapshots = append(snapshots, *p)
			touched++
		}
		shard.mu.Unlock()
	}
	for i := range snapshots {
		s.persist(&snapshots[i])
	}

	s.logger.Debug("Recorded lookalike feedback",
		zap.String("domain", folded),
		zap.Bool("was_correct", wasCorrect),
		zap.String("source", string(source)),
		zap.Int("patterns_touched", touched))
}

func patternCovers(p *core.LearnedPattern, domain string) bool {
	if p.IsGeneralized {
		return affixMatches(p.Pattern, registrableLabel(domain))
	}
	return p.Pattern == domain || levenshtein(p.Pattern, domain) <= 1
}

// Patterns returns a consistent snapshot of every learned pattern
func (s *Service) Patterns() []*core.LearnedPattern {
	var out []*core.LearnedPattern
	for _, shard := range s.shards {
		shard.mu.RLock()
		for _, p := range shard.entries {
			cp := *p
			out = append(out, &cp)
		}
		shard.mu.RUnlock()
	}
	return out
}

func (s *Service) persist(p *core.LearnedPattern) {
	if s.store == nil {
		return
	}
	if err := s.store.SavePattern(context.Background(), p); err != nil {
		s.logger.Error("Failed to persist learned pattern",
			zap.String("pattern", p.Pattern), zap.Error(err))
	}
}

func (s *Service) shard(key string) *patternShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%patternShards]
}

func patternKey(brand string, attack core.AttackType) string {
	return fmt.Sprintf("%s|%s", strings.ToLower(brand), attack)
}

// keyFor derives the shard key for a pattern. Wildcards carry their affix
// in the key so generalizations over different affixes never collide.
func keyFor(p *core.LearnedPattern) string {
	if p.IsGeneralized {
		return patternKey(core.GeneralizedBrand, p.AttackType) + "|" + p.Pattern
	}
	return patternKey(p.TargetBrand, p.AttackType)
}

func clampFeedback(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// extractAffix pulls the generic prefix/suffix out of a cousin pattern
// label, returning it in wildcard form ("secure-*", "*-verify").
func extractAffix(label, brand string) string {
	idx := strings.Index(label, brand)
	if idx < 0 {
		return ""
	}
	prefix := label[:idx]
	suffix := label[idx+len(brand):]
	if prefix != "" && suffix == "" {
		return prefix + "*"
	}
	if suffix != "" && prefix == "" {
		return "*" + suffix
	}
	return ""
}

// affixMatches tests a wildcard affix pattern against a domain label
func affixMatches(affix, label string) bool {
	if strings.HasSuffix(affix, "*") {
		prefix := strings.TrimSuffix(affix, "*")
		return prefix != "" && strings.HasPrefix(label, prefix) && len(label) > len(prefix)
	}
	if strings.HasPrefix(affix, "*") {
		suffix := strings.TrimPrefix(affix, "*")
		return suffix != "" && strings.HasSuffix(label, suffix) && len(label) > len(suffix)
	}
	return false
}
