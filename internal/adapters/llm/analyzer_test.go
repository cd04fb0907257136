package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/core"
)

type stubClient struct {
	assessment *Assessment
	err        error
}

func (c *stubClient) AnalyzeEmail(ctx context.Context, email *core.Email) (*Assessment, error) {
	return c.assessment, c.err
}

func (c *stubClient) ModelName() string { return "stub-model" }

func TestAnalyzeMapsAssessmentToSignal(t *testing.T) {
	a := NewAnalyzer(&stubClient{assessment: &Assessment{
		ThreatScore: 90,
		Confidence:  0.85,
		Explanation: "credential phishing with urgency framing",
		Categories:  []string{"phishing"},
	}}, zap.NewNop())

	lr, err := a.Analyze(context.Background(), &core.Email{From: "x@evil.example"}, nil)

	require.NoError(t, err)
	assert.Equal(t, core.LayerLLM, lr.Layer)
	require.Len(t, lr.Signals, 1)
	s := lr.Signals[0]
	assert.Equal(t, core.SignalLLMAssessment, s.Type)
	assert.Equal(t, core.SeverityCritical, s.Severity)
	assert.InDelta(t, 27.0, s.Score, 1e-9)
	assert.Equal(t, "stub-model", s.Metadata["model"])
	assert.Equal(t, 0.85, lr.Confidence)
}

func TestAnalyzeCleanAssessmentEmitsNoSignal(t *testing.T) {
	a := NewAnalyzer(&stubClient{assessment: &Assessment{
		ThreatScore: 0,
		Confidence:  0.95,
		Explanation: "routine correspondence",
		Categories:  []string{"clean"},
	}}, zap.NewNop())

	lr, err := a.Analyze(context.Background(), &core.Email{}, nil)

	require.NoError(t, err)
	assert.Empty(t, lr.Signals)
	assert.Zero(t, lr.Score)
}

func TestAnalyzeClientErrorPropagates(t *testing.T) {
	a := NewAnalyzer(&stubClient{err: errors.New("rate limited")}, zap.NewNop())

	lr, err := a.Analyze(context.Background(), &core.Email{}, nil)

	require.Error(t, err)
	assert.Nil(t, lr)
}

func TestAssessmentSeverity(t *testing.T) {
	tests := []struct {
		name string
		a    Assessment
		want core.Severity
	}{
		{"high score high confidence", Assessment{ThreatScore: 85, Confidence: 0.9}, core.SeverityCritical},
		{"high score low confidence", Assessment{ThreatScore: 85, Confidence: 0.5}, core.SeverityWarning},
		{"mid score", Assessment{ThreatScore: 60, Confidence: 0.9}, core.SeverityWarning},
		{"low score", Assessment{ThreatScore: 20, Confidence: 0.9}, core.SeverityInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, assessmentSeverity(&tt.a))
		})
	}
}

func TestParseAssessment(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{
			name:  "clean json",
			input: `{"threat_score": 72, "confidence": 0.8, "explanation": "x", "categories": ["bec"]}`,
			want:  72,
		},
		{
			name:  "json wrapped in prose",
			input: "Here is my assessment:\n{\"threat_score\": 40, \"confidence\": 0.6}\nLet me know.",
			want:  40,
		},
		{
			name:  "out of range score clamped",
			input: `{"threat_score": 140, "confidence": 1.7}`,
			want:  100,
		},
		{
			name:    "no json at all",
			input:   "I cannot analyze this email.",
			wantErr: true,
		},
		{
			name:    "malformed json",
			input:   `{"threat_score": oops}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := parseAssessment(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.ThreatScore)
		})
	}
}
