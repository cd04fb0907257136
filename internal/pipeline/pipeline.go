// Package pipeline sequences the detection layers, gates the expensive
// ones, and folds their results into a single auditable verdict.
package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mailsentry/mailsentry/internal/core"
	"github.com/mailsentry/mailsentry/internal/metrics"
	"github.com/mailsentry/mailsentry/internal/scoring"
)

// Analyzers bundles the per-layer collaborators. Any entry may be nil, in
// which case the layer is recorded as skipped.
type Analyzers struct {
	Deterministic core.LayerAnalyzer
	Behavioral    core.LayerAnalyzer
	ML            core.LayerAnalyzer
	BEC           core.LayerAnalyzer
	LLM           core.LayerAnalyzer
	Sandbox       core.LayerAnalyzer
}

// FPStatsProvider supplies historical false-positive rates for the
// high-FP-rate dampener. Optional.
type FPStatsProvider interface {
	PatternStats(ctx context.Context, tenantID string) (samples int, fpRate float64, err error)
}

// Orchestrator is the top-level detection controller. Analyze never
// returns an error: every collaborator failure degrades to a skipped layer
// or a conservative signal.
type Orchestrator struct {
	policy     core.PolicyEngine
	classifier core.EmailClassifier
	reputation core.ReputationService
	analyzers  Analyzers
	quota      *LLMQuota
	store      core.VerdictStore
	notifier   core.Notifier
	fpStats    FPStatsProvider
	defaults   core.DetectionConfig
	logger     *zap.Logger
}

// Params collects the orchestrator's constructor dependencies
type Params struct {
	Policy     core.PolicyEngine
	Classifier core.EmailClassifier
	Reputation core.ReputationService
	Analyzers  Analyzers
	Quota      *LLMQuota
	Store      core.VerdictStore
	Notifier   core.Notifier
	FPStats    FPStatsProvider
	Defaults   core.DetectionConfig
	Logger     *zap.Logger
}

func NewOrchestrator(p Params) *Orchestrator {
	return &Orchestrator{
		policy:     p.Policy,
		classifier: p.Classifier,
		reputation: p.Reputation,
		analyzers:  p.Analyzers,
		quota:      p.Quota,
		store:      p.Store,
		notifier:   p.Notifier,
		fpStats:    p.FPStats,
		defaults:   p.Defaults,
		logger:     p.Logger,
	}
}

// Analyze runs the full detection pipeline over one email and returns a
// well-formed verdict in every case.
func (o *Orchestrator) Analyze(ctx context.Context, email *core.Email, tenantID string, overrides *core.DetectionConfig) *core.EmailVerdict {
	start := time.Now()
	cfg := o.defaults
	if overrides != nil {
		cfg = *overrides
	}

	verdict := &core.EmailVerdict{
		ID:         uuid.New(),
		MessageID:  email.MessageID,
		TenantID:   tenantID,
		AnalyzedAt: start,
	}

	// Policy short-circuits everything else
	policySignal, decided := o.applyPolicy(ctx, email, tenantID, verdict)
	if decided {
		verdict.ProcessingTime = time.Since(start)
		metrics.EmailsAnalyzed.WithLabelValues(tenantID, string(verdict.Verdict)).Inc()
		o.deliver(ctx, verdict)
		return verdict
	}

	classification := o.classify(ctx, email)
	verdict.Classification = classification

	reputation, repResult := o.reputationLayer(ctx, email, cfg)

	var layerResults []core.LayerResult
	var prior []core.Signal
	if policySignal != nil {
		prior = append(prior, *policySignal)
	}

	record := func(lr *core.LayerResult) {
		if lr.Skipped {
			metrics.LayerSkips.WithLabelValues(string(lr.Layer)).Inc()
		}
		if !lr.Skipped {
			lr.Signals = FilterSignals(lr.Signals, classification, reputation)
			lr.Score = core.SumSignalScores(lr.Signals)
			prior = append(prior, lr.Signals...)
		}
		layerResults = append(layerResults, *lr)
	}

	det := o.runLayer(ctx, o.analyzers.Deterministic, core.LayerDeterministic, email, prior, cfg.LayerTimeout)
	record(det)

	record(repResult)

	record(o.runLayer(ctx, o.analyzers.Behavioral, core.LayerBehavioral, email, prior, cfg.LayerTimeout))

	ml := o.runLayer(ctx, o.analyzers.ML, core.LayerML, email, prior, cfg.LayerTimeout)
	record(ml)

	bec := o.becLayer(ctx, email, prior, classification, cfg)
	record(bec)

	record(o.llmLayer(ctx, email, tenantID, prior, det, ml, bec, cfg))

	record(o.sandboxLayer(ctx, email, prior, cfg))

	// Aggregate and enhance
	opts := o.scoringOptions(ctx, email, tenantID, classification, reputation, cfg, prior)
	result := scoring.CalculateEnhancedScore(layerResults, opts)

	signals := result.Signals
	score := result.OverallScore

	// Trust dampening: reputation wins over classification, never both
	score, trustSignal := o.applyTrustDampening(score, classification, reputation)
	if trustSignal != nil {
		signals = append(signals, *trustSignal)
	}
	if policySignal != nil {
		signals = append(signals, *policySignal)
	}

	verdict.OverallScore = core.ClampScore(score)
	verdict.Confidence = result.Confidence
	verdict.Signals = signals
	verdict.LayerResults = layerResults
	verdict.Verdict = cfg.VerdictForScore(verdict.OverallScore)
	verdict.Explanation = explain(verdict.Verdict, verdict.OverallScore, signals, result.CompoundPatterns)
	verdict.Recommendation = recommend(verdict.Verdict)
	verdict.ProcessingTime = time.Since(start)

	metrics.EmailsAnalyzed.WithLabelValues(tenantID, string(verdict.Verdict)).Inc()
	metrics.AnalysisDuration.Observe(verdict.ProcessingTime.Seconds())

	o.logger.Info("Email analyzed",
		zap.String("message_id", email.MessageID),
		zap.String("tenant_id", tenantID),
		zap.String("verdict", string(verdict.Verdict)),
		zap.Float64("score", verdict.OverallScore),
		zap.Duration("elapsed", verdict.ProcessingTime))

	o.deliver(ctx, verdict)
	return verdict
}

// QuickCheck runs only the deterministic layer as a cheap pre-filter.
// It returns nil when the caller must run the full pipeline.
func (o *Orchestrator) QuickCheck(ctx context.Context, email *core.Email, tenantID string) *core.EmailVerdict {
	cfg := o.defaults
	lr := o.runLayer(ctx, o.analyzers.Deterministic, core.LayerDeterministic, email, nil, cfg.LayerTimeout)
	if lr.Skipped {
		return nil
	}

	if lr.Score < 15 && lr.Confidence > 0.8 {
		return &core.EmailVerdict{
			ID:           uuid.New(),
			MessageID:    email.MessageID,
			TenantID:     tenantID,
			Verdict:      core.VerdictPass,
			OverallScore: lr.Score,
			Confidence:   lr.Confidence,
			Signals:      lr.Signals,
			LayerResults: []core.LayerResult{*lr},
			Explanation:  "quick check: no deterministic findings",
			AnalyzedAt:   time.Now(),
		}
	}

	if lr.Score >= 80 && hasCritical(lr.Signals) {
		return &core.EmailVerdict{
			ID:             uuid.New(),
			MessageID:      email.MessageID,
			TenantID:       tenantID,
			Verdict:        core.VerdictBlock,
			OverallScore:   lr.Score,
			Confidence:     lr.Confidence,
			Signals:        lr.Signals,
			LayerResults:   []core.LayerResult{*lr},
			Explanation:    "quick check: critical deterministic findings",
			Recommendation: recommend(core.VerdictBlock),
			AnalyzedAt:     time.Now(),
		}
	}

	return nil
}

// applyPolicy evaluates tenant policy. The second return is true when the
// policy decided the verdict outright.
func (o *Orchestrator) applyPolicy(ctx context.Context, email *core.Email, tenantID string, verdict *core.EmailVerdict) (*core.Signal, bool) {
	if o.policy == nil {
		return nil, false
	}
	decision, err := o.policy.Evaluate(ctx, email, tenantID)
	if err != nil {
		o.logger.Warn("Policy evaluation failed, continuing without policy",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, false
	}
	if decision == nil || !decision.Matched {
		return nil, false
	}

	verdict.PolicyApplied = decision
	switch decision.Action {
	case core.PolicyAllow:
		verdict.Verdict = core.VerdictPass
		verdict.OverallScore = 0
		verdict.Confidence = 1
		verdict.Explanation = fmt.Sprintf("allowed by policy %q", decision.PolicyName)
		return nil, true
	case core.PolicyBlock:
		verdict.Verdict = core.VerdictBlock
		verdict.OverallScore = 100
		verdict.Confidence = 1
		verdict.Explanation = fmt.Sprintf("blocked by policy %q", decision.PolicyName)
		verdict.Recommendation = recommend(core.VerdictBlock)
		return nil, true
	default:
		return &core.Signal{
			Type:     core.SignalPolicyMatch,
			Severity: core.SeverityInfo,
			Score:    0,
			Detail:   fmt.Sprintf("policy %q matched with action %s", decision.PolicyName, decision.Action),
			Metadata: map[string]any{"policy_id": decision.PolicyID, "action": string(decision.Action)},
		}, false
	}
}

func (o *Orchestrator) classify(ctx context.Context, email *core.Email) *core.Classification {
	if o.classifier == nil {
		return nil
	}
	classification, err := o.classifier.Classify(ctx, email)
	if err != nil {
		// Recovered locally: the pipeline proceeds unclassified
		o.logger.Warn("Classification failed, proceeding unclassified", zap.Error(err))
		return nil
	}
	return classification
}

// runLayer executes one analyzer under its timeout, converting any failure
// into a skipped result so nothing propagates out of Analyze.
func (o *Orchestrator) runLayer(ctx context.Context, analyzer core.LayerAnalyzer, layer core.Layer, email *core.Email, prior []core.Signal, timeout time.Duration) (result *core.LayerResult) {
	if analyzer == nil {
		return core.SkippedLayer(layer, "analyzer not configured")
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Analyzer panicked",
				zap.String("layer", string(layer)),
				zap.Any("panic", r))
			result = core.SkippedLayer(layer, fmt.Sprintf("analyzer panic: %v", r))
		}
	}()

	layerCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		layerCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	lr, err := analyzer.Analyze(layerCtx, email, prior)
	if err != nil {
		o.logger.Warn("Layer failed, skipping",
			zap.String("layer", string(layer)), zap.Error(err))
		return core.SkippedLayer(layer, err.Error())
	}
	if lr == nil {
		return core.SkippedLayer(layer, "analyzer returned no result")
	}
	lr.Score = core.ClampScore(lr.Score)
	lr.Confidence = core.ClampConfidence(lr.Confidence)
	return lr
}

// becLayer honors the classifier's skip hint for known senders
func (o *Orchestrator) becLayer(ctx context.Context, email *core.Email, prior []core.Signal, classification *core.Classification, cfg core.DetectionConfig) *core.LayerResult {
	if classification != nil && classification.SkipBECDetection && classification.IsKnownSender {
		return core.SkippedLayer(core.LayerBEC, "known sender exempt from BEC detection")
	}
	return o.runLayer(ctx, o.analyzers.BEC, core.LayerBEC, email, prior, cfg.LayerTimeout)
}

func (o *Orchestrator) sandboxLayer(ctx context.Context, email *core.Email, prior []core.Signal, cfg core.DetectionConfig) *core.LayerResult {
	if cfg.SkipSandbox {
		return core.SkippedLayer(core.LayerSandbox, "sandbox disabled by configuration")
	}
	return o.runLayer(ctx, o.analyzers.Sandbox, core.LayerSandbox, email, prior, cfg.LayerTimeout)
}

// llmLayer invokes the LLM only when the cheaper layers are genuinely
// uncertain, and inside the tenant's daily quota.
func (o *Orchestrator) llmLayer(ctx context.Context, email *core.Email, tenantID string, prior []core.Signal, det, ml, bec *core.LayerResult, cfg core.DetectionConfig) *core.LayerResult {
	if cfg.SkipLLM {
		return core.SkippedLayer(core.LayerLLM, "LLM disabled by configuration")
	}
	if !o.shouldInvokeLLM(det, ml, bec, cfg) {
		return core.SkippedLayer(core.LayerLLM, "other layers decisive, LLM not needed")
	}
	// Quota exhaustion fails open: the call still happens, the verdict just
	// carries a warning so operators can see the budget is blown.
	quotaExceeded := o.quota != nil && !o.quota.Allow(tenantID)
	if quotaExceeded {
		metrics.LLMQuotaRejections.Inc()
		o.logger.Warn("Daily LLM quota exhausted, allowing call",
			zap.String("tenant_id", tenantID))
	}
	lr := o.runLayer(ctx, o.analyzers.LLM, core.LayerLLM, email, prior, cfg.LLMTimeout)
	if quotaExceeded && !lr.Skipped {
		lr.Signals = append(lr.Signals, core.Signal{
			Type:     core.SignalQuotaExceeded,
			Severity: core.SeverityWarning,
			Score:    0,
			Detail:   fmt.Sprintf("daily LLM quota exhausted for tenant %s", tenantID),
			Metadata: map[string]any{"tenant_id": tenantID},
		})
	}
	return lr
}

func (o *Orchestrator) shouldInvokeLLM(det, ml, bec *core.LayerResult, cfg core.DetectionConfig) bool {
	if det != nil && !det.Skipped &&
		det.Score >= cfg.LLMScoreBandLow && det.Score <= cfg.LLMScoreBandHigh {
		return true
	}
	if ml != nil && !ml.Skipped &&
		ml.Confidence >= cfg.MLUncertainLow && ml.Confidence <= cfg.MLUncertainHigh {
		return true
	}
	// BEC suspected but unconfirmed
	if bec != nil && !bec.Skipped && bec.Score >= 30 && bec.Confidence < 0.8 {
		return true
	}
	return false
}

// reputationLayer fans out the per-entity lookups concurrently, joins them,
// and converts risky entities into signals. The joined report also feeds
// the false-positive filter and trust dampening.
func (o *Orchestrator) reputationLayer(ctx context.Context, email *core.Email, cfg core.DetectionConfig) (*core.ReputationReport, *core.LayerResult) {
	if o.reputation == nil {
		return nil, core.SkippedLayer(core.LayerReputation, "reputation service not configured")
	}

	start := time.Now()
	repCtx := ctx
	if cfg.ReputationTimeout > 0 {
		var cancel context.CancelFunc
		repCtx, cancel = context.WithTimeout(ctx, cfg.ReputationTimeout)
		defer cancel()
	}

	domains := collectDomains(email)
	ips := collectIPs(email)
	urls := email.URLs
	emails := []string{email.From}

	report := &core.ReputationReport{SenderTrustModifier: 1}
	g, gctx := errgroup.WithContext(repCtx)

	// A failed lookup must not cancel its siblings or sink the layer, so
	// errors are collected here instead of returned to the group.
	var mu sync.Mutex
	var failed []string
	lookup := func(name string, fn func(ctx context.Context) error) {
		g.Go(func() error {
			if err := fn(gctx); err != nil {
				o.logger.Warn("Reputation lookup failed, continuing without it",
					zap.String("lookup", name), zap.Error(err))
				mu.Lock()
				failed = append(failed, name)
				mu.Unlock()
			}
			return nil
		})
	}

	lookup("domains", func(ctx context.Context) error {
		res, err := o.reputation.LookupDomains(ctx, domains)
		if err == nil {
			report.Domains = res
		}
		return err
	})
	lookup("ips", func(ctx context.Context) error {
		res, err := o.reputation.LookupIPs(ctx, ips)
		if err == nil {
			report.IPs = res
		}
		return err
	})
	lookup("urls", func(ctx context.Context) error {
		res, err := o.reputation.LookupURLs(ctx, urls)
		if err == nil {
			report.URLs = res
		}
		return err
	})
	lookup("emails", func(ctx context.Context) error {
		res, err := o.reputation.LookupEmails(ctx, emails)
		if err == nil {
			report.Emails = res
		}
		return err
	})
	lookup("sender_trust", func(ctx context.Context) error {
		modifier, known, err := o.reputation.SenderTrust(ctx, email.From)
		if err == nil {
			report.SenderTrustModifier = modifier
			report.SenderKnown = known
		}
		return err
	})
	lookup("tracking_domains", func(ctx context.Context) error {
		tracking, err := o.reputation.TrackingDomains(ctx)
		if err == nil {
			report.TrackingDomains = tracking
		}
		return err
	})

	_ = g.Wait() // the closures never return an error

	signals := reputationSignals(report)
	if len(failed) > 0 {
		sort.Strings(failed)
		signals = append(signals, core.Signal{
			Type:     core.SignalReputationGap,
			Severity: core.SeverityWarning,
			Score:    0,
			Detail:   fmt.Sprintf("reputation lookups unavailable: %s", strings.Join(failed, ", ")),
			Metadata: map[string]any{"failed_lookups": failed},
		})
	}
	return report, &core.LayerResult{
		Layer:          core.LayerReputation,
		Score:          core.SumSignalScores(signals),
		Confidence:     0.8,
		Signals:        signals,
		ProcessingTime: time.Since(start),
	}
}

// Reputation scores at or above these marks become signals
const (
	reputationWarnScore     = 60.0
	reputationCriticalScore = 85.0
)

func reputationSignals(report *core.ReputationReport) []core.Signal {
	var signals []core.Signal
	add := func(t core.SignalType, entities map[string]core.EntityReputation, label string) {
		var worst *core.EntityReputation
		for _, rep := range entities {
			if rep.Score < reputationWarnScore {
				continue
			}
			r := rep
			if worst == nil || r.Score > worst.Score {
				worst = &r
			}
		}
		if worst == nil {
			return
		}
		severity := core.SeverityWarning
		if worst.Score >= reputationCriticalScore {
			severity = core.SeverityCritical
		}
		signals = append(signals, core.Signal{
			Type:     t,
			Severity: severity,
			Score:    worst.Score * 0.25,
			Detail:   fmt.Sprintf("%s %q has poor reputation (%s, score %.0f)", label, worst.Entity, worst.Category, worst.Score),
			Metadata: map[string]any{"entity": worst.Entity, "category": worst.Category, "sources": worst.Sources},
		})
	}

	add(core.SignalDomainReputation, report.Domains, "domain")
	add(core.SignalIPReputation, report.IPs, "ip")
	add(core.SignalURLThreatIntel, report.URLs, "url")
	add(core.SignalEmailReputation, report.Emails, "sender")
	return signals
}

// scoringOptions resolves the engine's contextual flags from everything
// the pipeline learned about this email
func (o *Orchestrator) scoringOptions(ctx context.Context, email *core.Email, tenantID string, classification *core.Classification, reputation *core.ReputationReport, cfg core.DetectionConfig, allSignals []core.Signal) scoring.Options {
	opts := scoring.Options{
		Config:              cfg,
		SenderDomainAgeDays: email.SenderDomainAgeDays,
		SenderDomain:        senderDomain(email.From),
		Now:                 time.Now(),
	}

	if classification != nil {
		opts.MarketingFromKnownSender = classification.IsKnownSender &&
			strings.EqualFold(classification.Type, "marketing")
		if classification.SenderInfo != nil {
			opts.MarkedSafeAt = classification.SenderInfo.MarkedSafeAt
		}
		opts.SafeAttachmentKnownSender = classification.IsKnownSender &&
			len(email.Attachments) > 0 && !hasAttachmentRisk(allSignals)
	}

	if reputation != nil {
		if rep, ok := reputation.Domains[opts.SenderDomain]; ok {
			opts.KnownNonprofit = strings.EqualFold(rep.Category, "nonprofit")
		}
	}

	opts.SpoofSuspected = hasAnyType(allSignals,
		core.SignalAuthFailure, core.SignalDisplayNameMismatch, core.SignalLookalikeDomain)

	opts.ThreadReplyFromKnownParty = email.IsReply && senderInThread(email)

	if o.fpStats != nil {
		if samples, rate, err := o.fpStats.PatternStats(ctx, tenantID); err == nil {
			opts.FPSampleCount = samples
			opts.FPRate = rate
		}
	}

	return opts
}

// applyTrustDampening scales the final score for trusted senders.
// Reputation wins; the classifier's modifier applies only when reputation
// knows nothing about the sender.
func (o *Orchestrator) applyTrustDampening(score float64, classification *core.Classification, reputation *core.ReputationReport) (float64, *core.Signal) {
	if reputation != nil && reputation.SenderKnown && reputation.SenderTrustModifier < 1 {
		adjusted := score * reputation.SenderTrustModifier
		return adjusted, &core.Signal{
			Type:     core.SignalTrustAdjustment,
			Severity: core.SeverityInfo,
			Score:    0,
			Detail: fmt.Sprintf("score reduced from %.1f by sender reputation trust modifier %.2f",
				score, reputation.SenderTrustModifier),
			Metadata: map[string]any{"source": "reputation", "modifier": reputation.SenderTrustModifier},
		}
	}
	if classification != nil && classification.ThreatScoreModifier > 0 && classification.ThreatScoreModifier < 1 {
		adjusted := score * classification.ThreatScoreModifier
		return adjusted, &core.Signal{
			Type:     core.SignalTrustAdjustment,
			Severity: core.SeverityInfo,
			Score:    0,
			Detail: fmt.Sprintf("score reduced from %.1f by classification trust modifier %.2f",
				score, classification.ThreatScoreModifier),
			Metadata: map[string]any{"source": "classification", "modifier": classification.ThreatScoreModifier},
		}
	}
	return score, nil
}

// deliver hands the verdict to persistence and notification, fault-isolated
func (o *Orchestrator) deliver(ctx context.Context, verdict *core.EmailVerdict) {
	if o.store != nil {
		if err := o.store.StoreVerdict(ctx, verdict); err != nil {
			o.logger.Error("Failed to store verdict",
				zap.String("message_id", verdict.MessageID), zap.Error(err))
		}
	}
	if o.notifier != nil &&
		(verdict.Verdict == core.VerdictQuarantine || verdict.Verdict == core.VerdictBlock) {
		if err := o.notifier.SendThreatNotification(ctx, verdict); err != nil {
			o.logger.Error("Failed to send threat notification",
				zap.String("message_id", verdict.MessageID), zap.Error(err))
		}
	}
}

func explain(verdict core.Verdict, score float64, signals []core.Signal, compound []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "verdict %s with score %.0f", verdict, score)

	var top []string
	for _, s := range signals {
		if s.Severity == core.SeverityCritical || s.Severity == core.SeverityWarning {
			top = append(top, string(s.Type))
		}
		if len(top) == 5 {
			break
		}
	}
	if len(top) > 0 {
		fmt.Fprintf(&b, "; key findings: %s", strings.Join(top, ", "))
	}
	if len(compound) > 0 {
		fmt.Fprintf(&b, "; attack patterns: %s", strings.Join(compound, ", "))
	}
	return b.String()
}

func recommend(verdict core.Verdict) string {
	switch verdict {
	case core.VerdictBlock:
		return "reject delivery and alert the security team"
	case core.VerdictQuarantine:
		return "hold for review before delivery"
	case core.VerdictSuspicious:
		return "deliver with a warning banner"
	default:
		return "deliver normally"
	}
}

func hasCritical(signals []core.Signal) bool {
	for _, s := range signals {
		if s.Severity == core.SeverityCritical {
			return true
		}
	}
	return false
}

func hasAnyType(signals []core.Signal, types ...core.SignalType) bool {
	want := make(map[core.SignalType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	for _, s := range signals {
		if want[s.Type] {
			return true
		}
	}
	return false
}

func hasAttachmentRisk(signals []core.Signal) bool {
	return hasAnyType(signals, core.SignalRiskyAttachment, core.SignalMacroDocument, core.SignalSandboxDetonation)
}

func senderDomain(from string) string {
	parts := strings.Split(from, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}

func senderInThread(email *core.Email) bool {
	from := strings.ToLower(email.From)
	for _, p := range email.ThreadParticipants {
		if strings.ToLower(p) == from {
			return true
		}
	}
	return false
}

func collectDomains(email *core.Email) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(d string) {
		d = strings.ToLower(d)
		if d != "" && !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	add(senderDomain(email.From))
	for _, raw := range email.URLs {
		if parsed, err := url.Parse(raw); err == nil {
			add(parsed.Hostname())
		}
	}
	return out
}

var receivedIPRe = regexp.MustCompile(`\[(\d{1,3}(?:\.\d{1,3}){3})\]`)

func collectIPs(email *core.Email) []string {
	seen := make(map[string]bool)
	var out []string
	for _, received := range email.Headers["Received"] {
		for _, m := range receivedIPRe.FindAllStringSubmatch(received, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				out = append(out, m[1])
			}
		}
	}
	return out
}
