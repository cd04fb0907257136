package lookalike

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Visual substitutes an attacker can swap in for the brand's characters.
// ASCII confusables here; accented Unicode confusables are handled by the
// NFD fold before comparison.
var homoglyphSubstitutes = map[byte][]byte{
	'0': {'o'},
	'1': {'l', 'i'},
	'3': {'e'},
	'4': {'a'},
	'5': {'s'},
	'7': {'t'},
	'8': {'b'},
	'l': {'i', '1'},
	'i': {'l'},
	'u': {'v'},
	'v': {'u'},
	'q': {'g'},
	'g': {'q'},
}

// Generic affixes attackers bolt onto a brand to mint cousin domains
var cousinAffixes = []string{
	"secure-", "login-", "signin-", "account-", "verify-", "support-",
	"my-", "mail-", "portal-", "billing-",
	"-secure", "-login", "-signin", "-account", "-verify", "-support",
	"-online", "-portal", "-billing", "-update",
}

var asciiFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldDomain lowercases a domain and strips Unicode combining marks so
// accented confusables (pаypal with a Cyrillic а, gооgle with ó) collapse
// onto their ASCII shapes before byte-level comparison.
func foldDomain(domain string) string {
	folded, _, err := transform.String(asciiFolder, strings.ToLower(strings.TrimSpace(domain)))
	if err != nil {
		return strings.ToLower(domain)
	}
	return folded
}

// registrableLabel strips a leading www. and the TLD, leaving the label an
// attacker actually forges ("g00gle.com" -> "g00gle").
func registrableLabel(domain string) string {
	d := strings.TrimPrefix(foldDomain(domain), "www.")
	if i := strings.IndexByte(d, '.'); i > 0 {
		return d[:i]
	}
	return d
}

// detectHomoglyph reports whether candidate imitates brand by swapping
// visually similar characters. Both strings must be equal length and every
// differing position must be a registered substitute of the brand character.
// Confidence starts at 0.9 and drops 0.05 per substitution past the first.
func detectHomoglyph(candidate, brand string) (float64, bool) {
	if len(candidate) != len(brand) || candidate == brand {
		return 0, false
	}
	substitutions := 0
	for i := 0; i < len(brand); i++ {
		if candidate[i] == brand[i] {
			continue
		}
		if !isSubstitute(candidate[i], brand[i]) {
			return 0, false
		}
		substitutions++
	}
	if substitutions == 0 {
		return 0, false
	}
	conf := 0.9 - 0.05*float64(substitutions-1)
	if conf < 0.5 {
		conf = 0.5
	}
	return conf, true
}

func isSubstitute(candidate, original byte) bool {
	for _, sub := range homoglyphSubstitutes[candidate] {
		if sub == original {
			return true
		}
	}
	return false
}

// detectTyposquat reports whether candidate is a small-edit-distance
// mutation of brand. Brands shorter than 4 characters are skipped since
// nearly everything is within distance 2 of them.
func detectTyposquat(candidate, brand string) (float64, bool) {
	if len(brand) < 4 || candidate == brand {
		return 0, false
	}
	switch levenshtein(candidate, brand) {
	case 1:
		return 0.85, true
	case 2:
		return 0.70, true
	default:
		return 0, false
	}
}

// detectCousin reports whether candidate combines the brand with a generic
// affix, or merely embeds the brand with enough extra characters.
func detectCousin(candidate, brand string) (float64, bool) {
	if candidate == brand {
		return 0, false
	}
	for _, affix := range cousinAffixes {
		var composed string
		if strings.HasSuffix(affix, "-") {
			composed = affix + brand
		} else {
			composed = brand + affix
		}
		if candidate == composed || levenshtein(candidate, composed) == 1 {
			return 0.75, true
		}
	}
	if strings.Contains(candidate, brand) && len(candidate) >= len(brand)+3 {
		return 0.65, true
	}
	return 0, false
}

// levenshtein is the classic two-row edit distance
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
