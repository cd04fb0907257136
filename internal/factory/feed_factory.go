package factory

import (
	"time"

	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/adapters/feeds"
	"github.com/mailsentry/mailsentry/internal/config"
	"github.com/mailsentry/mailsentry/internal/core"
)

// FeedFactory creates threat intel feed clients
type FeedFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFeedFactory creates a new feed factory
func NewFeedFactory(cfg *config.Config, logger *zap.Logger) *FeedFactory {
	return &FeedFactory{cfg: cfg, logger: logger}
}

// CreateFeeds builds one HTTP feed client per configured endpoint.
// Feeds without a base URL are skipped with a warning rather than
// failing startup.
func (f *FeedFactory) CreateFeeds() []core.ThreatFeed {
	intelCfg := f.cfg.GetIntel()

	result := make([]core.ThreatFeed, 0, len(intelCfg.Feeds))
	for _, fc := range intelCfg.Feeds {
		if fc.BaseURL == "" {
			f.logger.Warn("Skipping feed without base URL", zap.String("feed", fc.Name))
			continue
		}
		result = append(result, feeds.NewHTTPFeed(
			fc.Name,
			fc.BaseURL,
			fc.APIKey,
			fc.Reliability,
			10*time.Second,
			f.logger,
		))
	}
	return result
}
