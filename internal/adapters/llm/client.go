// Package llm adapts hosted language models into the pipeline's deep
// analysis layer. All providers share one prompt and one response contract.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mailsentry/mailsentry/internal/core"
	"github.com/mailsentry/mailsentry/internal/utils"
)

// Assessment is the structured response every provider must produce
type Assessment struct {
	ThreatScore float64  `json:"threat_score"` // 0..100
	Confidence  float64  `json:"confidence"`   // 0..1
	Explanation string   `json:"explanation"`
	Categories  []string `json:"categories"`
}

// Client is a provider-specific LLM backend
type Client interface {
	// AnalyzeEmail submits the email for threat assessment
	AnalyzeEmail(ctx context.Context, email *core.Email) (*Assessment, error)
	// ModelName identifies the backing model for logging and metadata
	ModelName() string
}

const promptFormat = `You are an email threat detection system. Analyze the following email for phishing, business email compromise, malware delivery and scams.
Respond with a JSON object containing:
- threat_score: number between 0 and 100 (higher means more dangerous)
- confidence: number between 0 and 1 (how confident you are in your assessment)
- explanation: string (brief explanation of the assessment)
- categories: array of strings from: phishing, bec, malware, scam, spam, clean

Email:
From: %s (%s)
To: %s
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`

// buildPrompt formats the shared prompt. The body passes through the text
// processor so oversized or invalid UTF-8 content cannot reach a provider.
func buildPrompt(email *core.Email, tp *utils.TextProcessor, maxBodySize int) string {
	to := ""
	if len(email.To) > 0 {
		to = email.To[0]
		if len(email.To) > 1 {
			to += fmt.Sprintf(" and %d others", len(email.To)-1)
		}
	}
	body := tp.ProcessText(email.TextBody, maxBodySize)
	return fmt.Sprintf(promptFormat, email.From, email.FromDisplayName, to, email.Subject, body)
}

// parseAssessment decodes the model's JSON answer. Models wrap JSON in
// prose often enough that a brace-bounded retry is worth it.
func parseAssessment(responseText string) (*Assessment, error) {
	var a Assessment
	if err := json.Unmarshal([]byte(responseText), &a); err == nil {
		return clampAssessment(&a), nil
	}

	jsonStart := -1
	jsonEnd := -1
	for i := 0; i < len(responseText); i++ {
		if responseText[i] == '{' {
			jsonStart = i
			break
		}
	}
	for i := len(responseText) - 1; i >= 0; i-- {
		if responseText[i] == '}' {
			jsonEnd = i + 1
			break
		}
	}
	if jsonStart < 0 || jsonEnd <= jsonStart {
		return nil, fmt.Errorf("no JSON object in model response")
	}
	if err := json.Unmarshal([]byte(responseText[jsonStart:jsonEnd]), &a); err != nil {
		return nil, fmt.Errorf("failed to parse model response as JSON: %w", err)
	}
	return clampAssessment(&a), nil
}

func clampAssessment(a *Assessment) *Assessment {
	a.ThreatScore = core.ClampScore(a.ThreatScore)
	a.Confidence = core.ClampConfidence(a.Confidence)
	return a
}
