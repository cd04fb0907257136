package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/mail"
	"os"

	"go.uber.org/zap"

	llmadapter "github.com/mailsentry/mailsentry/internal/adapters/llm"
	"github.com/mailsentry/mailsentry/internal/adapters/smtpfilter"
	"github.com/mailsentry/mailsentry/internal/core"
	"github.com/mailsentry/mailsentry/internal/di"
	"github.com/mailsentry/mailsentry/internal/pipeline"
)

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

func run(
	flags *di.CLIFlags,
	logger *zap.Logger,
	orchestrator *pipeline.Orchestrator,
	llmClient llmadapter.Client,
) error {
	defer logger.Sync()

	// Read email from file or stdin
	var emailReader io.Reader
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", flags.InputFile))
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", flags.InputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	msg, err := mail.ReadMessage(bufio.NewReader(emailReader))
	if err != nil {
		logger.Fatal("Failed to parse email", zap.Error(err))
	}

	email, err := smtpfilter.ParseMessage(msg, "", nil)
	if err != nil {
		logger.Fatal("Failed to extract email content", zap.Error(err))
	}

	verdict := orchestrator.Analyze(context.Background(), email, flags.TenantID, nil)

	if flags.JSONOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(verdict); err != nil {
			logger.Fatal("Failed to encode verdict", zap.Error(err))
		}
	} else {
		printVerdict(email.From, email.Subject, verdict)
	}

	// Close any resources that need closing
	if closer, ok := llmClient.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close LLM client", zap.Error(err))
		}
	}
	return nil
}

func printVerdict(from, subject string, verdict *core.EmailVerdict) {
	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", from)
	fmt.Printf("Subject: %s\n", subject)

	fmt.Printf("\n=== Layers ===\n")
	for _, lr := range verdict.LayerResults {
		if lr.Skipped {
			fmt.Printf("%-13s skipped (%s)\n", lr.Layer, lr.SkipReason)
			continue
		}
		fmt.Printf("%-13s score %5.1f  confidence %.2f  signals %d\n",
			lr.Layer, lr.Score, lr.Confidence, len(lr.Signals))
	}

	fmt.Printf("\n=== Signals ===\n")
	for _, s := range verdict.Signals {
		fmt.Printf("[%s] %s (%.1f): %s\n", s.Severity, s.Type, s.Score, s.Detail)
	}

	fmt.Printf("\n=== Verdict ===\n")
	fmt.Printf("Verdict: %s\n", verdict.Verdict)
	fmt.Printf("Overall score: %.1f\n", verdict.OverallScore)
	fmt.Printf("Confidence: %.2f\n", verdict.Confidence)
	fmt.Printf("Explanation: %s\n", verdict.Explanation)
	fmt.Printf("Recommendation: %s\n", verdict.Recommendation)
	fmt.Printf("Processing time: %v\n", verdict.ProcessingTime)
}
