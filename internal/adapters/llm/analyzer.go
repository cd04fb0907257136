package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/core"
)

// Scale from the model's 0..100 threat score to the assessment signal,
// so one LLM opinion cannot dominate the aggregate on its own
const signalScale = 0.3

// Analyzer exposes an LLM client as the pipeline's deep analysis layer
type Analyzer struct {
	client Client
	logger *zap.Logger
}

func NewAnalyzer(client Client, logger *zap.Logger) *Analyzer {
	return &Analyzer{client: client, logger: logger}
}

func (a *Analyzer) Layer() core.Layer { return core.LayerLLM }

func (a *Analyzer) Analyze(ctx context.Context, email *core.Email, _ []core.Signal) (*core.LayerResult, error) {
	start := time.Now()

	assessment, err := a.client.AnalyzeEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("llm analysis: %w", err)
	}

	var signals []core.Signal
	if assessment.ThreatScore > 0 {
		signals = append(signals, core.Signal{
			Type:     core.SignalLLMAssessment,
			Severity: assessmentSeverity(assessment),
			Score:    assessment.ThreatScore * signalScale,
			Detail:   assessment.Explanation,
			Metadata: map[string]any{
				"model":        a.client.ModelName(),
				"threat_score": assessment.ThreatScore,
				"categories":   assessment.Categories,
			},
		})
	}

	return &core.LayerResult{
		Layer:          core.LayerLLM,
		Score:          core.SumSignalScores(signals),
		Confidence:     assessment.Confidence,
		Signals:        signals,
		ProcessingTime: time.Since(start),
		Metadata: map[string]any{
			"model":       a.client.ModelName(),
			"explanation": assessment.Explanation,
		},
	}, nil
}

func assessmentSeverity(a *Assessment) core.Severity {
	switch {
	case a.ThreatScore >= 80 && a.Confidence >= 0.8:
		return core.SeverityCritical
	case a.ThreatScore >= 50:
		return core.SeverityWarning
	default:
		return core.SeverityInfo
	}
}
