// Package rules implements the deterministic first layer of the pipeline:
// cheap, explainable checks that run on every email and feed the quick-check
// fast path.
package rules

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/core"
	"github.com/mailsentry/mailsentry/internal/lookalike"
)

// Strategy is one deterministic check. Strategies return nil when nothing
// suspicious is found.
type Strategy interface {
	Name() string
	Detect(email *core.Email, dctx *Context) []core.Signal
}

// Context is the shared state strategies evaluate against
type Context struct {
	TenantID        string
	InternalDomains []string
	Lookalikes      *lookalike.Service
}

// Analyzer runs every registered strategy and folds their signals into one
// LayerResult
type Analyzer struct {
	strategies []Strategy
	logger     *zap.Logger
	tenantID   string
	internal   []string
	lookalikes *lookalike.Service
}

// NewAnalyzer builds the deterministic layer with the standard strategy set
func NewAnalyzer(tenantID string, internalDomains []string, lookalikes *lookalike.Service, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		strategies: []Strategy{
			&displayNameStrategy{},
			&replyToStrategy{},
			&authFailureStrategy{},
			&urgencyFinancialStrategy{},
			&suspiciousURLStrategy{},
			&lookalikeStrategy{},
		},
		logger:     logger,
		tenantID:   tenantID,
		internal:   internalDomains,
		lookalikes: lookalikes,
	}
}

func (a *Analyzer) Layer() core.Layer { return core.LayerDeterministic }

// Analyze runs all strategies. Deterministic checks cannot fail; the error
// return exists only to satisfy the LayerAnalyzer contract.
func (a *Analyzer) Analyze(ctx context.Context, email *core.Email, _ []core.Signal) (*core.LayerResult, error) {
	start := time.Now()
	dctx := &Context{
		TenantID:        a.tenantID,
		InternalDomains: a.internal,
		Lookalikes:      a.lookalikes,
	}

	var signals []core.Signal
	for _, strategy := range a.strategies {
		if found := strategy.Detect(email, dctx); len(found) > 0 {
			signals = append(signals, found...)
			a.logger.Debug("Deterministic strategy fired",
				zap.String("strategy", strategy.Name()),
				zap.Int("signals", len(found)))
		}
	}

	return &core.LayerResult{
		Layer:          core.LayerDeterministic,
		Score:          core.SumSignalScores(signals),
		Confidence:     layerConfidence(signals),
		Signals:        signals,
		ProcessingTime: time.Since(start),
	}, nil
}

// layerConfidence is high when the layer is decisive in either direction:
// rule hits are precise by construction, and a completely quiet rule set is
// strong evidence of a clean email.
func layerConfidence(signals []core.Signal) float64 {
	if len(signals) == 0 {
		return 0.9
	}
	conf := 0.75 + 0.05*float64(len(signals))
	return core.ClampConfidence(conf)
}
