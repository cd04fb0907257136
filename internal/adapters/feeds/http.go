// Package feeds implements threat-intelligence feed clients for the
// consensus aggregator.
package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/core"
)

// HTTPFeed queries a JSON threat-intel endpoint of the form
// GET {base}/lookup?url={target} returning {"verdict": "...", "score": N}.
type HTTPFeed struct {
	name        string
	baseURL     string
	apiKey      string
	reliability float64
	client      *http.Client
	logger      *zap.Logger
}

func NewHTTPFeed(name, baseURL, apiKey string, reliability float64, timeout time.Duration, logger *zap.Logger) *HTTPFeed {
	return &HTTPFeed{
		name:        name,
		baseURL:     baseURL,
		apiKey:      apiKey,
		reliability: core.ClampConfidence(reliability),
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

func (f *HTTPFeed) Name() string { return f.name }

func (f *HTTPFeed) Lookup(ctx context.Context, target string) (*core.FeedResult, error) {
	endpoint := fmt.Sprintf("%s/lookup?url=%s", f.baseURL, url.QueryEscape(target))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed %s request failed: %w", f.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status %d", f.name, resp.StatusCode)
	}

	var body struct {
		Verdict string  `json:"verdict"`
		Score   float64 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("feed %s returned invalid JSON: %w", f.name, err)
	}

	verdict := core.FeedVerdict(body.Verdict)
	switch verdict {
	case core.FeedMalicious, core.FeedSuspicious, core.FeedClean, core.FeedUnknown:
	default:
		f.logger.Warn("Feed returned unrecognized verdict",
			zap.String("feed", f.name), zap.String("verdict", body.Verdict))
		verdict = core.FeedUnknown
	}

	return &core.FeedResult{
		Feed:        f.name,
		Verdict:     verdict,
		Score:       core.ClampScore(body.Score),
		Reliability: f.reliability,
	}, nil
}

// StaticFeed answers lookups from a fixed table. Used for config-driven
// blocklists and in tests.
type StaticFeed struct {
	name        string
	reliability float64
	entries     map[string]core.FeedVerdict
}

func NewStaticFeed(name string, reliability float64, entries map[string]core.FeedVerdict) *StaticFeed {
	normalized := make(map[string]core.FeedVerdict, len(entries))
	for k, v := range entries {
		normalized[k] = v
	}
	return &StaticFeed{name: name, reliability: core.ClampConfidence(reliability), entries: normalized}
}

func (f *StaticFeed) Name() string { return f.name }

func (f *StaticFeed) Lookup(ctx context.Context, target string) (*core.FeedResult, error) {
	verdict, ok := f.entries[target]
	if !ok {
		verdict = core.FeedUnknown
	}
	return &core.FeedResult{
		Feed:        f.name,
		Verdict:     verdict,
		Score:       verdictScore(verdict),
		Reliability: f.reliability,
	}, nil
}

func verdictScore(v core.FeedVerdict) float64 {
	switch v {
	case core.FeedMalicious:
		return 90
	case core.FeedSuspicious:
		return 60
	case core.FeedClean:
		return 5
	default:
		return 50
	}
}
