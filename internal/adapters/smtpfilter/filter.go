// Package smtpfilter runs the inline SMTP content filter: an MTA hands the
// message over SMTP, the pipeline analyzes it, and the message is either
// rejected or relayed back annotated with verdict headers.
package smtpfilter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/mailsentry/mailsentry/internal/core"
	"github.com/mailsentry/mailsentry/internal/pipeline"
)

const (
	verdictHeader = "X-MailSentry-Verdict"
	scoreHeader   = "X-MailSentry-Score"
	reasonHeader  = "X-MailSentry-Reason"
)

// Config tunes the SMTP filter
type Config struct {
	ListenAddr    string
	TenantID      string
	RelayAddr     string
	RelayPort     int
	RelayEnabled  bool
	RejectBlocked bool
	SubjectPrefix string
	ModifySubject bool
	// MaxConcurrent bounds in-flight analyses; 0 means 16
	MaxConcurrent int64
}

// Filter is the inline SMTP content filter
type Filter struct {
	orchestrator *pipeline.Orchestrator
	logger       *zap.Logger
	cfg          Config
	server       *smtp.Server
	sem          *semaphore.Weighted
}

func NewFilter(orchestrator *pipeline.Orchestrator, cfg Config, logger *zap.Logger) *Filter {
	if cfg.SubjectPrefix == "" && cfg.ModifySubject {
		cfg.SubjectPrefix = "[SUSPICIOUS] "
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	return &Filter{
		orchestrator: orchestrator,
		logger:       logger,
		cfg:          cfg,
		sem:          semaphore.NewWeighted(maxConcurrent),
	}
}

// Start brings the SMTP listener up and returns immediately
func (f *Filter) Start() error {
	f.server = smtp.NewServer(&backend{filter: f})
	f.server.Addr = f.cfg.ListenAddr
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024
	f.server.MaxRecipients = 50
	f.server.AllowInsecureAuth = true

	f.logger.Info("SMTP filter starting", zap.String("address", f.cfg.ListenAddr))

	go func() {
		if err := f.server.ListenAndServe(); err != nil && err != smtp.ErrServerClosed {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (f *Filter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// relay sends the annotated message onward to the downstream MTA
func (f *Filter) relay(sender string, recipients []string, data []byte) error {
	addr := fmt.Sprintf("%s:%d", f.cfg.RelayAddr, f.cfg.RelayPort)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to relay: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	accepted := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed",
				zap.String("recipient", recipient), zap.Error(err))
			continue
		}
		accepted = true
	}
	if !accepted {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		f.logger.Warn("QUIT failed after successful relay", zap.Error(err))
	}
	return nil
}

type backend struct {
	filter *Filter
}

func (b *backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &session{filter: b.filter}, nil
}

type session struct {
	filter     *Filter
	sender     string
	recipients []string
}

func (s *session) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *session) AuthPlain(_ []byte) error {
	return smtp.ErrAuthUnsupported
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

func (s *session) Logout() error { return nil }

// Data receives the message, runs the pipeline under the concurrency
// bound, and rejects, annotates or relays per the verdict.
func (s *session) Data(r io.Reader) error {
	f := s.filter

	rawData, err := io.ReadAll(r)
	if err != nil {
		f.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	msg, err := mail.ReadMessage(bytes.NewReader(rawData))
	if err != nil {
		f.logger.Error("Failed to parse message", zap.Error(err))
		return err
	}

	email, err := ParseMessage(msg, s.sender, s.recipients)
	if err != nil {
		f.logger.Error("Failed to extract message content", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("451 Filter overloaded, try again later")
	}
	verdict := f.orchestrator.Analyze(ctx, email, f.cfg.TenantID, nil)
	f.sem.Release(1)

	if verdict.Verdict == core.VerdictBlock && f.cfg.RejectBlocked {
		f.logger.Info("Rejecting blocked email",
			zap.String("from", email.From),
			zap.Float64("score", verdict.OverallScore),
			zap.String("reason", verdict.Explanation))
		return fmt.Errorf("550 Rejected by content filter (score: %.0f)", verdict.OverallScore)
	}

	annotated := annotate(rawData, msg, verdict, f.cfg)

	if f.cfg.RelayEnabled {
		if err := f.relay(s.sender, s.recipients, annotated); err != nil {
			f.logger.Error("Failed to relay message",
				zap.String("from", email.From), zap.Error(err))
			return err
		}
	} else {
		f.logger.Warn("Relay disabled, annotated message dropped")
	}

	f.logger.Info("Processed email",
		zap.String("from", email.From),
		zap.String("verdict", string(verdict.Verdict)),
		zap.Float64("score", verdict.OverallScore))
	return nil
}

// annotate rewrites the headers with the verdict, preserving the original
// body bytes so MIME parts and attachments pass through untouched.
func annotate(rawData []byte, msg *mail.Message, verdict *core.EmailVerdict, cfg Config) []byte {
	var out bytes.Buffer

	fmt.Fprintf(&out, "%s: %s\r\n", verdictHeader, verdict.Verdict)
	fmt.Fprintf(&out, "%s: %.1f\r\n", scoreHeader, verdict.OverallScore)
	fmt.Fprintf(&out, "%s: %s\r\n", reasonHeader, sanitizeHeaderValue(verdict.Explanation))

	prefixSubject := cfg.ModifySubject && cfg.SubjectPrefix != "" &&
		(verdict.Verdict == core.VerdictSuspicious || verdict.Verdict == core.VerdictQuarantine)

	for key, values := range msg.Header {
		if prefixSubject && strings.EqualFold(key, "Subject") {
			continue
		}
		for _, value := range values {
			fmt.Fprintf(&out, "%s: %s\r\n", key, value)
		}
	}
	if prefixSubject {
		subject := decodeHeader(msg.Header.Get("Subject"))
		if !strings.HasPrefix(subject, cfg.SubjectPrefix) {
			subject = cfg.SubjectPrefix + subject
		}
		fmt.Fprintf(&out, "Subject: %s\r\n", subject)
	}
	out.WriteString("\r\n")

	out.Write(bodyBytes(rawData, msg))
	return out.Bytes()
}

// bodyBytes returns the raw body after the header separator so the relayed
// message carries the original MIME structure byte for byte
func bodyBytes(rawData []byte, msg *mail.Message) []byte {
	if idx := bytes.Index(rawData, []byte("\r\n\r\n")); idx != -1 {
		return rawData[idx+4:]
	}
	if idx := bytes.Index(rawData, []byte("\n\n")); idx != -1 {
		return rawData[idx+2:]
	}
	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil
	}
	return body
}

func sanitizeHeaderValue(v string) string {
	v = strings.ReplaceAll(v, "\r", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	if len(v) > 500 {
		v = v[:500]
	}
	return v
}
