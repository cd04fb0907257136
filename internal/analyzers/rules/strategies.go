package rules

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/mailsentry/mailsentry/internal/core"
)

var embeddedEmailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// displayNameStrategy flags display names carrying an email address whose
// domain disagrees with the actual sender domain, the classic
// "Jane Doe <jane@company.com>" spoof sent from elsewhere.
type displayNameStrategy struct{}

func (s *displayNameStrategy) Name() string { return "display_name_mismatch" }

func (s *displayNameStrategy) Detect(email *core.Email, dctx *Context) []core.Signal {
	if email.FromDisplayName == "" {
		return nil
	}
	embedded := embeddedEmailRe.FindString(email.FromDisplayName)
	if embedded == "" {
		return nil
	}
	embeddedDomain := domainOf(embedded)
	senderDomain := domainOf(email.From)
	if embeddedDomain == "" || embeddedDomain == senderDomain {
		return nil
	}
	return []core.Signal{{
		Type:     core.SignalDisplayNameMismatch,
		Severity: core.SeverityWarning,
		Score:    15,
		Detail: fmt.Sprintf("display name contains %q but the email was sent from %q",
			embedded, senderDomain),
		Metadata: map[string]any{"embedded_domain": embeddedDomain, "sender_domain": senderDomain},
	}}
}

// replyToStrategy flags a Reply-To pointing at a different domain than the
// sender, which redirects the victim's reply to the attacker.
type replyToStrategy struct{}

func (s *replyToStrategy) Name() string { return "reply_to_mismatch" }

func (s *replyToStrategy) Detect(email *core.Email, dctx *Context) []core.Signal {
	if email.ReplyTo == "" {
		return nil
	}
	replyDomain := domainOf(email.ReplyTo)
	senderDomain := domainOf(email.From)
	if replyDomain == "" || replyDomain == senderDomain {
		return nil
	}
	return []core.Signal{{
		Type:     core.SignalReplyToMismatch,
		Severity: core.SeverityWarning,
		Score:    12,
		Detail: fmt.Sprintf("replies go to %q while the sender is %q",
			replyDomain, senderDomain),
	}}
}

// authFailureStrategy reads the upstream Authentication-Results header.
// SPF or DKIM failures are warnings; a DMARC failure is critical since the
// sending domain explicitly asked for enforcement.
type authFailureStrategy struct{}

func (s *authFailureStrategy) Name() string { return "auth_failures" }

func (s *authFailureStrategy) Detect(email *core.Email, dctx *Context) []core.Signal {
	results := strings.ToLower(strings.Join(email.Headers["Authentication-Results"], ";"))
	if results == "" {
		return nil
	}

	var failures []string
	for _, mech := range []string{"spf", "dkim", "dmarc"} {
		if strings.Contains(results, mech+"=fail") {
			failures = append(failures, mech)
		}
	}
	if len(failures) == 0 {
		return nil
	}

	severity := core.SeverityWarning
	score := 8.0 + 4.0*float64(len(failures)-1)
	for _, f := range failures {
		if f == "dmarc" {
			severity = core.SeverityCritical
			score += 6
		}
	}
	return []core.Signal{{
		Type:     core.SignalAuthFailure,
		Severity: severity,
		Score:    score,
		Detail:   fmt.Sprintf("email authentication failed: %s", strings.Join(failures, ", ")),
		Metadata: map[string]any{"failed_mechanisms": failures},
	}}
}

var urgencyKeywords = []string{
	"urgent", "immediately", "asap", "right away", "today", "before end of day",
	"time sensitive", "act now", "expires",
}

var financialKeywords = []string{
	"wire transfer", "bank transfer", "payment", "invoice", "iban",
	"routing number", "account number", "transfer funds", "remittance",
}

// urgencyFinancialStrategy pairs pressure language with money language.
// Either alone is a weak hint; together they are the classic fraud pattern.
type urgencyFinancialStrategy struct{}

func (s *urgencyFinancialStrategy) Name() string { return "urgency_financial" }

func (s *urgencyFinancialStrategy) Detect(email *core.Email, dctx *Context) []core.Signal {
	text := strings.ToLower(email.Subject + " " + email.TextBody)

	urgent := containsAny(text, urgencyKeywords)
	financial := containsAny(text, financialKeywords)

	var signals []core.Signal
	if urgent {
		severity := core.SeverityInfo
		score := 5.0
		if financial {
			severity = core.SeverityWarning
			score = 10
		}
		signals = append(signals, core.Signal{
			Type:     core.SignalUrgencyLanguage,
			Severity: severity,
			Score:    score,
			Detail:   "subject or body uses pressure language",
		})
	}
	if financial {
		signals = append(signals, core.Signal{
			Type:     core.SignalFinancialRequest,
			Severity: core.SeverityWarning,
			Score:    12,
			Detail:   "email requests or references a financial transaction",
		})
	}
	return signals
}

var riskyURLPathHints = []string{"login", "signin", "verify", "password", "account", "secure", "update"}

// suspiciousURLStrategy flags raw-IP links and credential-harvest shaped
// paths. Unparseable URLs degrade to a conservative mid-range signal
// instead of being dropped.
type suspiciousURLStrategy struct{}

func (s *suspiciousURLStrategy) Name() string { return "suspicious_urls" }

func (s *suspiciousURLStrategy) Detect(email *core.Email, dctx *Context) []core.Signal {
	var signals []core.Signal
	for _, raw := range email.URLs {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Hostname() == "" {
			signals = append(signals, core.Signal{
				Type:     core.SignalMalformedInput,
				Severity: core.SeverityWarning,
				Score:    10,
				Detail:   fmt.Sprintf("unparseable URL in body: %.80s", raw),
			})
			continue
		}

		host := parsed.Hostname()
		if isIPLiteral(host) {
			signals = append(signals, core.Signal{
				Type:     core.SignalSuspiciousURL,
				Severity: core.SeverityWarning,
				Score:    14,
				Detail:   fmt.Sprintf("link points at a raw IP address: %s", host),
				Metadata: map[string]any{"url": raw},
			})
			continue
		}
		if containsAny(strings.ToLower(parsed.Path), riskyURLPathHints) && !isInternalDomain(host, dctx.InternalDomains) {
			signals = append(signals, core.Signal{
				Type:     core.SignalSuspiciousURL,
				Severity: core.SeverityInfo,
				Score:    6,
				Detail:   fmt.Sprintf("external link with credential-related path: %s", host),
				Metadata: map[string]any{"url": raw},
			})
		}
	}
	return dedupByType(signals)
}

// lookalikeStrategy checks the sender domain and every URL host against the
// lookalike learning service.
type lookalikeStrategy struct{}

func (s *lookalikeStrategy) Name() string { return "lookalike_domains" }

func (s *lookalikeStrategy) Detect(email *core.Email, dctx *Context) []core.Signal {
	if dctx.Lookalikes == nil {
		return nil
	}

	candidates := []string{domainOf(email.From)}
	for _, raw := range email.URLs {
		if parsed, err := url.Parse(raw); err == nil && parsed.Hostname() != "" {
			candidates = append(candidates, parsed.Hostname())
		}
	}

	var signals []core.Signal
	seen := make(map[string]bool)
	for _, candidate := range candidates {
		if candidate == "" || seen[candidate] {
			continue
		}
		seen[candidate] = true

		match := dctx.Lookalikes.Detect(dctx.TenantID, candidate)
		if !match.IsLookalike {
			continue
		}
		signals = append(signals, core.Signal{
			Type:     core.SignalLookalikeDomain,
			Severity: core.SeverityCritical,
			Score:    20 + 15*match.FinalConfidence,
			Detail: fmt.Sprintf("domain %q imitates %q (%s, confidence %.2f)",
				match.Domain, match.TargetDomain, match.AttackType, match.FinalConfidence),
			Metadata: map[string]any{
				"domain":       match.Domain,
				"target_brand": match.TargetBrand,
				"attack_type":  string(match.AttackType),
				"confidence":   match.FinalConfidence,
			},
		})
	}
	return dedupByType(signals)
}

func domainOf(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}

func isInternalDomain(domain string, internal []string) bool {
	d := strings.ToLower(domain)
	for _, i := range internal {
		if d == strings.ToLower(i) {
			return true
		}
	}
	return false
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

var ipLiteralRe = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)

func isIPLiteral(host string) bool {
	return ipLiteralRe.MatchString(host) || strings.Contains(host, ":")
}

// dedupByType keeps the strongest signal per type within one strategy
func dedupByType(signals []core.Signal) []core.Signal {
	var out []core.Signal
	best := make(map[core.SignalType]int)
	for _, s := range signals {
		if idx, ok := best[s.Type]; ok {
			if s.Score > out[idx].Score {
				out[idx] = s
			}
			continue
		}
		best[s.Type] = len(out)
		out = append(out, s)
	}
	return out
}
