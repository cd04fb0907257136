package core

import (
	"context"

	"github.com/google/uuid"
)

// PolicyEngine evaluates tenant policies before any analysis runs
type PolicyEngine interface {
	// Evaluate returns the first matching policy decision for the email
	Evaluate(ctx context.Context, email *Email, tenantID string) (*PolicyDecision, error)
}

// EmailClassifier categorizes an email and reports sender familiarity
type EmailClassifier interface {
	Classify(ctx context.Context, email *Email) (*Classification, error)
}

// ReputationService resolves reputation for the entities found in an email
type ReputationService interface {
	// LookupDomains resolves reputation for sender and URL domains
	LookupDomains(ctx context.Context, domains []string) (map[string]EntityReputation, error)
	// LookupIPs resolves reputation for originating IPs
	LookupIPs(ctx context.Context, ips []string) (map[string]EntityReputation, error)
	// LookupURLs resolves reputation for embedded URLs
	LookupURLs(ctx context.Context, urls []string) (map[string]EntityReputation, error)
	// LookupEmails resolves reputation for sender addresses
	LookupEmails(ctx context.Context, emails []string) (map[string]EntityReputation, error)
	// SenderTrust returns the sender trust modifier and whether the sender
	// has an established reputation at all
	SenderTrust(ctx context.Context, sender string) (modifier float64, known bool, err error)
	// TrackingDomains returns the known marketing/tracking domain allowlist
	TrackingDomains(ctx context.Context) ([]string, error)
}

// LayerAnalyzer is one analysis stage. PriorSignals carries the evidence
// accumulated by earlier layers so later ones can condition on it.
type LayerAnalyzer interface {
	Layer() Layer
	Analyze(ctx context.Context, email *Email, priorSignals []Signal) (*LayerResult, error)
}

// ThreatFeed is a single external threat-intelligence source
type ThreatFeed interface {
	Name() string
	Lookup(ctx context.Context, url string) (*FeedResult, error)
}

// Detonator submits an attachment for sandbox detonation
type Detonator interface {
	Detonate(ctx context.Context, att Attachment) (*Signal, error)
}

// VerdictStore persists final verdicts
type VerdictStore interface {
	StoreVerdict(ctx context.Context, verdict *EmailVerdict) error
	GetVerdict(ctx context.Context, id uuid.UUID) (*EmailVerdict, error)
}

// PatternStore persists learned lookalike patterns across restarts. The
// lookalike service remains the single writer; stores only load and save.
type PatternStore interface {
	LoadPatterns(ctx context.Context) ([]*LearnedPattern, error)
	SavePattern(ctx context.Context, p *LearnedPattern) error
}

// Notifier delivers threat notifications for quarantine/block verdicts
type Notifier interface {
	SendThreatNotification(ctx context.Context, verdict *EmailVerdict) error
}
