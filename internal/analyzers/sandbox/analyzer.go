// Package sandbox implements the attachment risk layer. Static
// extension/mime heuristics always run; actual detonation is delegated to
// an optional external Detonator.
package sandbox

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mailsentry/mailsentry/internal/core"
)

// Executable and script extensions that have no business arriving by email
var highRiskExtensions = map[string]bool{
	".exe": true, ".scr": true, ".pif": true, ".bat": true, ".cmd": true,
	".js": true, ".jse": true, ".vbs": true, ".vbe": true, ".ps1": true,
	".hta": true, ".msi": true, ".jar": true, ".com": true, ".cpl": true,
	".iso": true, ".img": true, ".lnk": true,
}

// Office formats that can carry macros
var macroExtensions = map[string]bool{
	".docm": true, ".xlsm": true, ".pptm": true, ".dotm": true, ".xltm": true,
}

// Archives that frequently smuggle the above past naive filters
var archiveExtensions = map[string]bool{
	".zip": true, ".rar": true, ".7z": true, ".ace": true, ".arj": true,
}

type Analyzer struct {
	detonator core.Detonator // nil disables detonation
	logger    *zap.Logger
}

func NewAnalyzer(detonator core.Detonator, logger *zap.Logger) *Analyzer {
	return &Analyzer{detonator: detonator, logger: logger}
}

func (a *Analyzer) Layer() core.Layer { return core.LayerSandbox }

func (a *Analyzer) Analyze(ctx context.Context, email *core.Email, _ []core.Signal) (*core.LayerResult, error) {
	start := time.Now()
	var signals []core.Signal

	for _, att := range email.Attachments {
		ext := strings.ToLower(filepath.Ext(att.Filename))

		switch {
		case highRiskExtensions[ext]:
			signals = append(signals, core.Signal{
				Type:     core.SignalRiskyAttachment,
				Severity: core.SeverityCritical,
				Score:    30,
				Detail:   fmt.Sprintf("attachment %q is an executable or script", att.Filename),
				Metadata: map[string]any{"filename": att.Filename, "sha256": att.SHA256},
			})
		case macroExtensions[ext]:
			signals = append(signals, core.Signal{
				Type:     core.SignalMacroDocument,
				Severity: core.SeverityWarning,
				Score:    18,
				Detail:   fmt.Sprintf("attachment %q is a macro-enabled document", att.Filename),
				Metadata: map[string]any{"filename": att.Filename, "sha256": att.SHA256},
			})
		case archiveExtensions[ext] && hasDoubleExtension(att.Filename):
			signals = append(signals, core.Signal{
				Type:     core.SignalRiskyAttachment,
				Severity: core.SeverityWarning,
				Score:    15,
				Detail:   fmt.Sprintf("archive %q uses a deceptive double extension", att.Filename),
			})
		}

		if a.detonator != nil && (highRiskExtensions[ext] || macroExtensions[ext]) {
			if s, err := a.detonator.Detonate(ctx, att); err != nil {
				a.logger.Warn("Sandbox detonation failed",
					zap.String("filename", att.Filename), zap.Error(err))
			} else if s != nil {
				signals = append(signals, *s)
			}
		}
	}

	return &core.LayerResult{
		Layer:          core.LayerSandbox,
		Score:          core.SumSignalScores(signals),
		Confidence:     sandboxConfidence(signals, a.detonator != nil),
		Signals:        signals,
		ProcessingTime: time.Since(start),
	}, nil
}

// hasDoubleExtension catches names like "invoice.pdf.zip"
func hasDoubleExtension(filename string) bool {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	return filepath.Ext(base) != ""
}

func sandboxConfidence(signals []core.Signal, detonated bool) float64 {
	if len(signals) == 0 {
		return 0.8
	}
	if detonated {
		return 0.95
	}
	return 0.7
}
