// Package reputation resolves entity reputation from configured lists and
// the threat-intel consensus aggregator.
package reputation

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/core"
	"github.com/mailsentry/mailsentry/internal/intel"
)

// TrustedSender configures the trust dampening for one sender or domain
type TrustedSender struct {
	// Address is either a full email address or a bare domain
	Address  string
	Modifier float64 // 0..1, multiplied into the final score
}

// Lists is the static reputation configuration
type Lists struct {
	// BlockedDomains score 95 as known-bad
	BlockedDomains []string
	// SuspiciousDomains score 70
	SuspiciousDomains []string
	// NonprofitDomains are categorized for institutional dampening
	NonprofitDomains []string
	// BlockedIPs score 95
	BlockedIPs []string
	// TrustedSenders map to trust modifiers
	TrustedSenders []TrustedSender
	// TrackingDomains are marketing redirectors excluded from URL suspicion
	TrackingDomains []string
}

// Service implements core.ReputationService. Domain, IP and email answers
// come from the configured lists; URL answers come from the feed consensus.
type Service struct {
	aggregator *intel.Aggregator
	logger     *zap.Logger

	blocked    map[string]bool
	suspicious map[string]bool
	nonprofit  map[string]bool
	blockedIPs map[string]bool
	trusted    map[string]float64
	tracking   []string
}

func NewService(aggregator *intel.Aggregator, lists Lists, logger *zap.Logger) *Service {
	s := &Service{
		aggregator: aggregator,
		logger:     logger,
		blocked:    normalizeSet(lists.BlockedDomains),
		suspicious: normalizeSet(lists.SuspiciousDomains),
		nonprofit:  normalizeSet(lists.NonprofitDomains),
		blockedIPs: normalizeSet(lists.BlockedIPs),
		trusted:    make(map[string]float64, len(lists.TrustedSenders)),
		tracking:   lists.TrackingDomains,
	}
	for _, ts := range lists.TrustedSenders {
		s.trusted[strings.ToLower(strings.TrimSpace(ts.Address))] = ts.Modifier
	}
	return s
}

func (s *Service) LookupDomains(ctx context.Context, domains []string) (map[string]core.EntityReputation, error) {
	out := make(map[string]core.EntityReputation)
	for _, d := range domains {
		domain := strings.ToLower(d)
		switch {
		case s.blocked[domain]:
			out[domain] = core.EntityReputation{
				Entity: domain, Score: 95, Category: "blocked", Sources: []string{"local-blocklist"},
			}
		case s.suspicious[domain]:
			out[domain] = core.EntityReputation{
				Entity: domain, Score: 70, Category: "suspicious", Sources: []string{"local-blocklist"},
			}
		case s.nonprofit[domain]:
			out[domain] = core.EntityReputation{
				Entity: domain, Score: 0, Category: "nonprofit", Sources: []string{"local-directory"},
			}
		}
	}
	return out, nil
}

func (s *Service) LookupIPs(ctx context.Context, ips []string) (map[string]core.EntityReputation, error) {
	out := make(map[string]core.EntityReputation)
	for _, ip := range ips {
		if s.blockedIPs[ip] {
			out[ip] = core.EntityReputation{
				Entity: ip, Score: 95, Category: "blocked", Sources: []string{"local-blocklist"},
			}
		}
	}
	return out, nil
}

// LookupURLs asks the threat-intel consensus for each URL. Low-confidence
// or disagreeing consensus is reported with its own score; callers decide
// what to do with it.
func (s *Service) LookupURLs(ctx context.Context, urls []string) (map[string]core.EntityReputation, error) {
	out := make(map[string]core.EntityReputation)
	if s.aggregator == nil {
		return out, nil
	}
	for _, u := range urls {
		result := s.aggregator.Aggregate(ctx, u, intel.Options{})
		if result == nil || len(result.Sources) == 0 {
			continue
		}
		sources := make([]string, 0, len(result.Sources))
		for _, src := range result.Sources {
			sources = append(sources, src.Feed)
		}
		category := "threat-intel"
		if result.Disagreement {
			category = "threat-intel-disputed"
		}
		out[u] = core.EntityReputation{
			Entity:   u,
			Score:    result.ConsensusScore,
			Category: category,
			Sources:  sources,
		}
	}
	return out, nil
}

func (s *Service) LookupEmails(ctx context.Context, emails []string) (map[string]core.EntityReputation, error) {
	out := make(map[string]core.EntityReputation)
	for _, e := range emails {
		email := strings.ToLower(e)
		domain := domainOf(email)
		if s.blocked[domain] {
			out[email] = core.EntityReputation{
				Entity: email, Score: 95, Category: "blocked", Sources: []string{"local-blocklist"},
			}
		}
	}
	return out, nil
}

// SenderTrust resolves the configured trust modifier for a sender. A full
// address entry wins over its domain entry.
func (s *Service) SenderTrust(ctx context.Context, sender string) (float64, bool, error) {
	addr := strings.ToLower(strings.TrimSpace(sender))
	if modifier, ok := s.trusted[addr]; ok {
		return modifier, true, nil
	}
	if modifier, ok := s.trusted[domainOf(addr)]; ok {
		return modifier, true, nil
	}
	return 1, false, nil
}

func (s *Service) TrackingDomains(ctx context.Context) ([]string, error) {
	return s.tracking, nil
}

func normalizeSet(values []string) map[string]bool {
	out := make(map[string]bool, len(values))
	for _, v := range values {
		normalized := strings.ToLower(strings.TrimSpace(v))
		if normalized != "" {
			out[normalized] = true
		}
	}
	return out
}

func domainOf(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
