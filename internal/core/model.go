package core

import (
	"time"

	"github.com/google/uuid"
)

// Verdict is the final disposition of an analyzed email
type Verdict string

const (
	VerdictPass       Verdict = "pass"
	VerdictSuspicious Verdict = "suspicious"
	VerdictQuarantine Verdict = "quarantine"
	VerdictBlock      Verdict = "block"
)

// Severity classifies how strong a single piece of evidence is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Layer identifies one analysis stage in the pipeline
type Layer string

const (
	LayerDeterministic Layer = "deterministic"
	LayerReputation    Layer = "reputation"
	LayerML            Layer = "ml"
	LayerBEC           Layer = "bec"
	LayerLLM           Layer = "llm"
	LayerSandbox       Layer = "sandbox"
	LayerBehavioral    Layer = "behavioral"
)

// SignalType tags one kind of evidence a layer can emit
type SignalType string

const (
	SignalPolicyMatch         SignalType = "policy_match"
	SignalDisplayNameMismatch SignalType = "display_name_mismatch"
	SignalReplyToMismatch     SignalType = "reply_to_mismatch"
	SignalAuthFailure         SignalType = "auth_failure"
	SignalUrgencyLanguage     SignalType = "urgency_language"
	SignalFinancialRequest    SignalType = "financial_request"
	SignalWireTransferRequest SignalType = "wire_transfer_request"
	SignalGiftCardRequest     SignalType = "gift_card_request"
	SignalPayrollDiversion    SignalType = "payroll_diversion"
	SignalExecImpersonation   SignalType = "executive_impersonation"
	SignalVIPTargeting        SignalType = "vip_targeting"
	SignalLookalikeDomain     SignalType = "lookalike_domain"
	SignalSuspiciousURL       SignalType = "suspicious_url"
	SignalURLThreatIntel      SignalType = "url_threat_intel"
	SignalDomainReputation    SignalType = "domain_reputation"
	SignalIPReputation        SignalType = "ip_reputation"
	SignalEmailReputation     SignalType = "email_reputation"
	SignalFirstContact        SignalType = "first_contact"
	SignalSendTimeAnomaly     SignalType = "send_time_anomaly"
	SignalVolumeAnomaly       SignalType = "volume_anomaly"
	SignalRiskyAttachment     SignalType = "risky_attachment"
	SignalMacroDocument       SignalType = "macro_document"
	SignalSandboxDetonation   SignalType = "sandbox_detonation"
	SignalMLPhishing          SignalType = "ml_phishing"
	SignalLLMAssessment       SignalType = "llm_assessment"
	SignalTrustAdjustment     SignalType = "trust_adjustment"
	SignalQuotaExceeded       SignalType = "llm_quota_exceeded"
	SignalReputationGap       SignalType = "reputation_gap"
	SignalMalformedInput      SignalType = "malformed_input"
	SignalSecrecyPressure     SignalType = "secrecy_pressure"
	SignalNewDomain           SignalType = "new_domain"
)

// Signal is one atomic piece of evidence produced by a layer. Signals are
// immutable once created; score adjustments (amplification, dampening notes)
// produce new signals carrying provenance in Metadata.
type Signal struct {
	Type     SignalType
	Severity Severity
	Score    float64
	Detail   string
	Metadata map[string]any
}

// WithScore returns a copy of the signal with an adjusted score and the
// given provenance metadata merged in. The receiver is left untouched.
func (s Signal) WithScore(score float64, provenance map[string]any) Signal {
	out := s
	out.Score = score
	out.Metadata = make(map[string]any, len(s.Metadata)+len(provenance))
	for k, v := range s.Metadata {
		out.Metadata[k] = v
	}
	for k, v := range provenance {
		out.Metadata[k] = v
	}
	return out
}

// LayerResult is the outcome of one analyzer invocation for one email
type LayerResult struct {
	Layer          Layer
	Score          float64 // 0..100
	Confidence     float64 // 0..1
	Signals        []Signal
	ProcessingTime time.Duration
	Skipped        bool
	SkipReason     string
	Metadata       map[string]any
}

// SkippedLayer builds the LayerResult recorded when a layer did not run
func SkippedLayer(layer Layer, reason string) *LayerResult {
	return &LayerResult{Layer: layer, Skipped: true, SkipReason: reason}
}

// EmailVerdict is the terminal output of one pipeline run. Ownership
// transfers to the caller (persistence, notification) on return.
type EmailVerdict struct {
	ID             uuid.UUID
	MessageID      string
	TenantID       string
	Verdict        Verdict
	OverallScore   float64 // 0..100
	Confidence     float64 // 0..1
	Signals        []Signal
	LayerResults   []LayerResult
	Explanation    string
	Recommendation string
	ProcessingTime time.Duration
	AnalyzedAt     time.Time
	PolicyApplied  *PolicyDecision
	Classification *Classification
}

// Attachment carries metadata about one email attachment. Content bytes
// never enter the core; only the sandbox detonator sees them.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	SHA256      string
}

// Email is the normalized input record produced by an external parser.
// The core never parses raw transport formats.
type Email struct {
	MessageID       string
	From            string
	FromDisplayName string
	ReplyTo         string
	To              []string
	Subject         string
	TextBody        string
	HTMLBody        string
	Headers         map[string][]string
	Attachments     []Attachment
	URLs            []string
	ReceivedAt      time.Time

	// SenderDomainAgeDays is -1 when the registration age is unknown
	SenderDomainAgeDays int

	// ThreadParticipants lists senders seen earlier in the same thread,
	// empty when the email is not a reply
	ThreadParticipants []string
	IsReply            bool
}

// PolicyAction is what a matched tenant policy asks for
type PolicyAction string

const (
	PolicyAllow      PolicyAction = "allow"
	PolicyBlock      PolicyAction = "block"
	PolicyQuarantine PolicyAction = "quarantine"
	PolicyTag        PolicyAction = "tag"
)

// PolicyDecision is the outcome of the external policy engine
type PolicyDecision struct {
	Matched    bool
	Action     PolicyAction
	PolicyID   string
	PolicyName string
	Reason     string
}

// SenderInfo summarizes the recipient's history with a sender
type SenderInfo struct {
	Email        string
	MessageCount int
	FirstSeen    time.Time
	LastSeen     time.Time
	// RecentCount is how many messages arrived in the trailing hour,
	// the window the burst detector reasons over
	RecentCount  int
	MarkedSafeAt *time.Time
}

// Classification is the external classifier's view of an email
type Classification struct {
	Type                  string
	Confidence            float64
	IsKnownSender         bool
	SenderInfo            *SenderInfo
	ThreatScoreModifier   float64
	SkipBECDetection      bool
	SkipGiftCardDetection bool
}

// EntityReputation is the reputation lookup result for a single entity
type EntityReputation struct {
	Entity   string
	Score    float64 // 0..100, higher is worse
	Category string
	Sources  []string
}

// ReputationReport is the joined result of the per-entity reputation
// lookups for one email
type ReputationReport struct {
	Domains map[string]EntityReputation
	IPs     map[string]EntityReputation
	URLs    map[string]EntityReputation
	Emails  map[string]EntityReputation

	// SenderKnown reports whether the sender has an established reputation
	SenderKnown bool

	// SenderTrustModifier dampens the overall score for senders in good
	// standing; 1.0 means no adjustment
	SenderTrustModifier float64

	// TrackingDomains lists domains whose URLs are known marketing/tracking
	// redirectors and should not count as suspicious on their own
	TrackingDomains []string
}

// FeedVerdict is a single threat feed's categorical answer for a URL
type FeedVerdict string

const (
	FeedMalicious  FeedVerdict = "malicious"
	FeedSuspicious FeedVerdict = "suspicious"
	FeedClean      FeedVerdict = "clean"
	FeedUnknown    FeedVerdict = "unknown"
)

// FeedResult is one feed's scored answer for a URL
type FeedResult struct {
	Feed        string
	Verdict     FeedVerdict
	Score       float64 // 0..100
	Reliability float64 // 0..1
}

// ThreatIntelResult is the multi-feed consensus for a URL
type ThreatIntelResult struct {
	URL            string
	ConsensusScore float64
	Confidence     float64
	AgreementRatio float64
	Sources        []FeedResult
	Disagreement   bool
	FromCache      bool
	CheckedAt      time.Time
}

// AttackType classifies how a lookalike domain imitates its target brand
type AttackType string

const (
	AttackHomoglyph AttackType = "homoglyph"
	AttackTyposquat AttackType = "typosquat"
	AttackCousin    AttackType = "cousin"
)

// GeneralizedBrand marks a wildcard pattern applying to any brand
const GeneralizedBrand = "*"

// LearnedPattern is one entry in the lookalike learning store, keyed by
// (TargetBrand, AttackType). Patterns are never deleted, only generalized
// into a GeneralizedBrand wildcard once enough siblings share an affix.
type LearnedPattern struct {
	Pattern           string
	TargetBrand       string
	TargetDomain      string
	AttackType        AttackType
	Occurrences       int
	AverageConfidence float64 // time-weighted running average, 0..1
	IsGeneralized     bool
	LastSeen          time.Time
	FeedbackScore     float64 // -1..1
}

// FeedbackSource identifies who produced a lookalike feedback event
type FeedbackSource string

const (
	FeedbackAnalyst   FeedbackSource = "analyst"
	FeedbackUser      FeedbackSource = "user"
	FeedbackAutomated FeedbackSource = "automated"
)

// LookalikeMatch is the outcome of a lookalike domain check
type LookalikeMatch struct {
	IsLookalike     bool
	Domain          string
	TargetBrand     string
	TargetDomain    string
	AttackType      AttackType
	FinalConfidence float64
}
