package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/adapters/httpapi"
	llmadapter "github.com/mailsentry/mailsentry/internal/adapters/llm"
	"github.com/mailsentry/mailsentry/internal/adapters/notify"
	"github.com/mailsentry/mailsentry/internal/adapters/reputation"
	"github.com/mailsentry/mailsentry/internal/adapters/smtpfilter"
	"github.com/mailsentry/mailsentry/internal/adapters/tenant"
	"github.com/mailsentry/mailsentry/internal/analyzers/bec"
	"github.com/mailsentry/mailsentry/internal/analyzers/behavioral"
	"github.com/mailsentry/mailsentry/internal/analyzers/rules"
	"github.com/mailsentry/mailsentry/internal/analyzers/sandbox"
	"github.com/mailsentry/mailsentry/internal/config"
	"github.com/mailsentry/mailsentry/internal/core"
	"github.com/mailsentry/mailsentry/internal/factory"
	"github.com/mailsentry/mailsentry/internal/intel"
	"github.com/mailsentry/mailsentry/internal/logging"
	"github.com/mailsentry/mailsentry/internal/lookalike"
	"github.com/mailsentry/mailsentry/internal/pipeline"
	"github.com/mailsentry/mailsentry/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewFeedFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return nil, err
	}

	// Register LLM client
	if err := container.Provide(func(f *factory.LLMFactory) (llmadapter.Client, error) {
		return f.CreateClient()
	}); err != nil {
		return nil, err
	}

	// Register stores
	if err := container.Provide(func(f *factory.StoreFactory) (core.PatternStore, error) {
		return f.CreatePatternStore()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.StoreFactory) (core.VerdictStore, error) {
		return f.CreateVerdictStore()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.StoreFactory) behavioral.HistoryStore {
		return f.Memory()
	}); err != nil {
		return nil, err
	}

	// Register threat intel feeds and the consensus aggregator
	if err := container.Provide(func(f *factory.FeedFactory) []core.ThreatFeed {
		return f.CreateFeeds()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(intel.NewAggregator); err != nil {
		return nil, err
	}

	// Register reputation service
	if err := container.Provide(func(cfg *config.Config, agg *intel.Aggregator, logger *zap.Logger) (core.ReputationService, error) {
		repCfg := cfg.GetReputation()
		var trusted []reputation.TrustedSender
		if err := cfg.GetViper().UnmarshalKey("reputation.trusted_senders", &trusted); err != nil {
			return nil, err
		}
		return reputation.NewService(agg, reputation.Lists{
			BlockedDomains:    repCfg.BlockedDomains,
			SuspiciousDomains: repCfg.SuspiciousDomains,
			NonprofitDomains:  repCfg.NonprofitDomains,
			BlockedIPs:        repCfg.BlockedIPs,
			TrustedSenders:    trusted,
			TrackingDomains:   repCfg.TrackingDomains,
		}, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register lookalike service, seeded with the configured brand registry
	if err := container.Provide(func(cfg *config.Config, store core.PatternStore, logger *zap.Logger) *lookalike.Service {
		svc := lookalike.NewService(store, logger)
		if brands := cfg.GetLookalike().ProtectedBrands; len(brands) > 0 {
			svc.RegisterTenantBrands(cfg.GetServer().TenantID, brands)
		}
		return svc
	}); err != nil {
		return nil, err
	}

	// Register tenant policy engine and classifier
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (core.PolicyEngine, error) {
		var policyRules []tenant.Rule
		if err := cfg.GetViper().UnmarshalKey("policies", &policyRules); err != nil {
			return nil, err
		}
		return tenant.NewEngine(policyRules, logger), nil
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config, history behavioral.HistoryStore, logger *zap.Logger) core.EmailClassifier {
		return tenant.NewClassifier(history, tenant.ClassifierLists{
			MarketingDomains:     cfg.GetStringSlice("classifier.marketing_domains"),
			TransactionalDomains: cfg.GetStringSlice("classifier.transactional_domains"),
			TrustedMessageCount:  cfg.GetInt("classifier.trusted_message_count"),
		}, logger)
	}); err != nil {
		return nil, err
	}

	// Register notifier
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) core.Notifier {
		if url := cfg.GetString("notify.webhook_url"); url != "" {
			return notify.NewWebhookNotifier(url, logger)
		}
		return notify.NewLogNotifier(logger)
	}); err != nil {
		return nil, err
	}

	// Register the analysis layers
	if err := container.Provide(func(
		cfg *config.Config,
		lookalikes *lookalike.Service,
		history behavioral.HistoryStore,
		llmClient llmadapter.Client,
		logger *zap.Logger,
	) pipeline.Analyzers {
		analyzers := pipeline.Analyzers{
			Deterministic: rules.NewAnalyzer(
				cfg.GetServer().TenantID,
				cfg.GetStringSlice("organization.internal_domains"),
				lookalikes,
				logger,
			),
			Behavioral: behavioral.NewAnalyzer(history, logger),
			BEC: bec.NewAnalyzer(
				cfg.GetStringSlice("organization.executives"),
				cfg.GetStringSlice("organization.vip_recipients"),
				logger,
			),
			Sandbox: sandbox.NewAnalyzer(nil, logger),
		}
		if llmClient != nil {
			analyzers.LLM = llmadapter.NewAnalyzer(llmClient, logger)
		}
		return analyzers
	}); err != nil {
		return nil, err
	}

	// Register LLM quota
	if err := container.Provide(func(cfg *config.Config) *pipeline.LLMQuota {
		return pipeline.NewLLMQuota(cfg.GetDetection().LLMDailyQuota)
	}); err != nil {
		return nil, err
	}

	// Register the orchestrator
	if err := container.Provide(func(
		cfg *config.Config,
		policy core.PolicyEngine,
		classifier core.EmailClassifier,
		reputationSvc core.ReputationService,
		analyzers pipeline.Analyzers,
		quota *pipeline.LLMQuota,
		store core.VerdictStore,
		notifier core.Notifier,
		logger *zap.Logger,
	) *pipeline.Orchestrator {
		return pipeline.NewOrchestrator(pipeline.Params{
			Policy:     policy,
			Classifier: classifier,
			Reputation: reputationSvc,
			Analyzers:  analyzers,
			Quota:      quota,
			Store:      store,
			Notifier:   notifier,
			Defaults:   cfg.GetDetection(),
			Logger:     logger,
		})
	}); err != nil {
		return nil, err
	}

	// Register transports
	if err := container.Provide(httpapi.NewServer); err != nil {
		return nil, err
	}
	if err := container.Provide(func(orch *pipeline.Orchestrator, cfg *config.Config, logger *zap.Logger) *smtpfilter.Filter {
		smtpCfg := cfg.GetSMTP()
		return smtpfilter.NewFilter(orch, smtpfilter.Config{
			ListenAddr:    smtpCfg.ListenAddress,
			TenantID:      cfg.GetServer().TenantID,
			RelayAddr:     smtpCfg.RelayAddress,
			RelayPort:     smtpCfg.RelayPort,
			RelayEnabled:  smtpCfg.RelayEnabled,
			RejectBlocked: smtpCfg.RejectBlocked,
			SubjectPrefix: smtpCfg.SubjectPrefix,
			ModifySubject: smtpCfg.ModifySubject,
			MaxConcurrent: int64(smtpCfg.MaxConcurrent),
		}, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
