// Package tenant holds the config-backed implementations of the tenant
// policy engine and the email classifier.
package tenant

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/analyzers/behavioral"
	"github.com/mailsentry/mailsentry/internal/core"
)

// Rule is one tenant policy. Empty TenantID applies to every tenant.
// A rule matches when the sender address or its domain appears in the
// rule's matchers.
type Rule struct {
	ID            string
	Name          string
	TenantID      string
	Action        core.PolicyAction
	Senders       []string
	SenderDomains []string
	Reason        string
}

// Engine evaluates static policy rules in declaration order
type Engine struct {
	rules  []Rule
	logger *zap.Logger
}

func NewEngine(rules []Rule, logger *zap.Logger) *Engine {
	normalized := make([]Rule, len(rules))
	for i, r := range rules {
		r.TenantID = strings.ToLower(r.TenantID)
		for j, s := range r.Senders {
			r.Senders[j] = strings.ToLower(s)
		}
		for j, d := range r.SenderDomains {
			r.SenderDomains[j] = strings.ToLower(d)
		}
		normalized[i] = r
	}
	return &Engine{rules: normalized, logger: logger}
}

// Evaluate returns the first matching rule for the tenant, nil when none match
func (e *Engine) Evaluate(_ context.Context, email *core.Email, tenantID string) (*core.PolicyDecision, error) {
	sender := strings.ToLower(email.From)
	domain := ""
	if at := strings.LastIndex(sender, "@"); at >= 0 {
		domain = sender[at+1:]
	}
	tenantID = strings.ToLower(tenantID)

	for _, r := range e.rules {
		if r.TenantID != "" && r.TenantID != tenantID {
			continue
		}
		if !matches(r, sender, domain) {
			continue
		}
		e.logger.Debug("Policy rule matched",
			zap.String("policy_id", r.ID),
			zap.String("sender", sender),
			zap.String("action", string(r.Action)))
		return &core.PolicyDecision{
			Matched:    true,
			Action:     r.Action,
			PolicyID:   r.ID,
			PolicyName: r.Name,
			Reason:     r.Reason,
		}, nil
	}
	return nil, nil
}

func matches(r Rule, sender, domain string) bool {
	for _, s := range r.Senders {
		if s == sender {
			return true
		}
	}
	for _, d := range r.SenderDomains {
		if d == domain {
			return true
		}
	}
	return false
}

// ClassifierLists are the static domain lists the classifier consults
type ClassifierLists struct {
	MarketingDomains     []string
	TransactionalDomains []string

	// TrustedMessageCount is how many prior messages make a sender familiar
	// enough to skip BEC heuristics
	TrustedMessageCount int
}

// Classifier categorizes emails from static lists plus per-recipient
// sender history
type Classifier struct {
	history       behavioral.HistoryStore
	marketing     map[string]bool
	transactional map[string]bool
	trustedCount  int
	logger        *zap.Logger
}

func NewClassifier(history behavioral.HistoryStore, lists ClassifierLists, logger *zap.Logger) *Classifier {
	trusted := lists.TrustedMessageCount
	if trusted <= 0 {
		trusted = 25
	}
	return &Classifier{
		history:       history,
		marketing:     toSet(lists.MarketingDomains),
		transactional: toSet(lists.TransactionalDomains),
		trustedCount:  trusted,
		logger:        logger,
	}
}

func toSet(domains []string) map[string]bool {
	set := make(map[string]bool, len(domains))
	for _, d := range domains {
		set[strings.ToLower(d)] = true
	}
	return set
}

func (c *Classifier) Classify(ctx context.Context, email *core.Email) (*core.Classification, error) {
	domain := ""
	if at := strings.LastIndex(email.From, "@"); at >= 0 {
		domain = strings.ToLower(email.From[at+1:])
	}

	cls := &core.Classification{
		Type:                "general",
		Confidence:          0.5,
		ThreatScoreModifier: 1.0,
	}
	switch {
	case c.marketing[domain]:
		cls.Type = "marketing"
		cls.Confidence = 0.9
		cls.SkipGiftCardDetection = true
	case c.transactional[domain]:
		cls.Type = "transactional"
		cls.Confidence = 0.9
	}

	if c.history != nil {
		recipient := ""
		if len(email.To) > 0 {
			recipient = email.To[0]
		}
		info, err := c.history.SenderHistory(ctx, email.From, recipient)
		if err != nil {
			c.logger.Warn("Sender history lookup failed during classification",
				zap.String("sender", email.From), zap.Error(err))
		} else if info != nil && info.MessageCount > 0 {
			cls.IsKnownSender = true
			cls.SenderInfo = info
			if info.MessageCount >= c.trustedCount {
				cls.ThreatScoreModifier = 0.85
				cls.SkipBECDetection = true
			}
		}
	}

	return cls, nil
}
