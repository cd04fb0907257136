package smtpfilter

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsentry/mailsentry/internal/core"
)

func parseMessage(t *testing.T, raw string) *mail.Message {
	t.Helper()
	msg, err := mail.ReadMessage(strings.NewReader(raw))
	require.NoError(t, err)
	return msg
}

func TestEmailFromPlainMessage(t *testing.T) {
	raw := "From: \"Pat Winters\" <pat@corp.example>\r\n" +
		"To: finance@corp.example\r\n" +
		"Reply-To: pat@elsewhere.example\r\n" +
		"Subject: Invoice attached\r\n" +
		"Message-Id: <abc-123@corp.example>\r\n" +
		"\r\n" +
		"Please review http://billing.example/pay and http://billing.example/pay.\r\n"

	msg := parseMessage(t, raw)
	email, err := ParseMessage(msg, "pat@corp.example", []string{"finance@corp.example"})
	require.NoError(t, err)

	assert.Equal(t, "pat@corp.example", email.From)
	assert.Equal(t, "Pat Winters", email.FromDisplayName)
	assert.Equal(t, "pat@elsewhere.example", email.ReplyTo)
	assert.Equal(t, "Invoice attached", email.Subject)
	assert.Equal(t, "abc-123@corp.example", email.MessageID)
	assert.Equal(t, -1, email.SenderDomainAgeDays)
	assert.False(t, email.IsReply)
	// duplicate URLs collapse, trailing punctuation drops
	assert.Equal(t, []string{"http://billing.example/pay"}, email.URLs)
}

func TestEmailFromMessageEnvelopeWinsOverHeader(t *testing.T) {
	raw := "From: spoofed@other.example\r\n" +
		"Subject: hi\r\n" +
		"\r\n" +
		"body\r\n"

	msg := parseMessage(t, raw)
	email, err := ParseMessage(msg, "real@corp.example", []string{"x@corp.example"})
	require.NoError(t, err)
	assert.Equal(t, "real@corp.example", email.From)
	assert.Equal(t, []string{"x@corp.example"}, email.To)
}

func TestEmailFromMessageReplyDetection(t *testing.T) {
	raw := "From: a@corp.example\r\n" +
		"In-Reply-To: <previous@corp.example>\r\n" +
		"Subject: Re: budget\r\n" +
		"\r\n" +
		"sure\r\n"

	msg := parseMessage(t, raw)
	email, err := ParseMessage(msg, "a@corp.example", nil)
	require.NoError(t, err)
	assert.True(t, email.IsReply)
}

func TestEmailFromMultipartMessage(t *testing.T) {
	raw := "From: sender@corp.example\r\n" +
		"Subject: report\r\n" +
		"Content-Type: multipart/mixed; boundary=\"BOUND\"\r\n" +
		"\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Quarterly numbers inside.\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>ignored</p>\r\n" +
		"--BOUND\r\n" +
		"Content-Type: application/pdf\r\n" +
		"Content-Disposition: attachment; filename=\"q3.pdf\"\r\n" +
		"\r\n" +
		"%PDF-1.4 fake\r\n" +
		"--BOUND--\r\n"

	msg := parseMessage(t, raw)
	email, err := ParseMessage(msg, "sender@corp.example", nil)
	require.NoError(t, err)

	assert.Contains(t, email.TextBody, "Quarterly numbers")
	assert.NotContains(t, email.TextBody, "ignored")
	require.Len(t, email.Attachments, 1)
	att := email.Attachments[0]
	assert.Equal(t, "q3.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.Greater(t, att.Size, int64(0))
	assert.Len(t, att.SHA256, 64)
}

func TestEmailFromQuotedPrintableBody(t *testing.T) {
	raw := "From: sender@corp.example\r\n" +
		"Subject: hi\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"caf=C3=A9 meeting\r\n"

	msg := parseMessage(t, raw)
	email, err := ParseMessage(msg, "sender@corp.example", nil)
	require.NoError(t, err)
	assert.Contains(t, email.TextBody, "café meeting")
}

func TestDecodeHeaderEncodedWord(t *testing.T) {
	assert.Equal(t, "Résumé", decodeHeader("=?utf-8?B?UsOpc3Vtw6k=?="))
	assert.Equal(t, "plain subject", decodeHeader("plain subject"))
}

func TestAnnotateInjectsHeadersAndPreservesBody(t *testing.T) {
	raw := []byte("From: a@corp.example\r\n" +
		"Subject: urgent\r\n" +
		"\r\n" +
		"original body bytes\r\n")
	msg := parseMessage(t, string(raw))

	verdict := &core.EmailVerdict{
		ID:           uuid.New(),
		Verdict:      core.VerdictSuspicious,
		OverallScore: 61.5,
		Explanation:  "display name mismatch\r\nwith newline",
	}
	out := annotate(raw, msg, verdict, Config{ModifySubject: true, SubjectPrefix: "[SUSPICIOUS] "})

	annotated, err := mail.ReadMessage(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "suspicious", annotated.Header.Get(verdictHeader))
	assert.Equal(t, "61.5", annotated.Header.Get(scoreHeader))
	assert.NotContains(t, annotated.Header.Get(reasonHeader), "\n")
	assert.Equal(t, "[SUSPICIOUS] urgent", annotated.Header.Get("Subject"))
	assert.True(t, bytes.HasSuffix(out, []byte("original body bytes\r\n")))
}

func TestAnnotatePassVerdictLeavesSubjectAlone(t *testing.T) {
	raw := []byte("From: a@corp.example\r\n" +
		"Subject: hello\r\n" +
		"\r\n" +
		"body\r\n")
	msg := parseMessage(t, string(raw))

	verdict := &core.EmailVerdict{Verdict: core.VerdictPass, OverallScore: 3}
	out := annotate(raw, msg, verdict, Config{ModifySubject: true, SubjectPrefix: "[SUSPICIOUS] "})

	annotated, err := mail.ReadMessage(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "hello", annotated.Header.Get("Subject"))
	assert.Equal(t, "pass", annotated.Header.Get(verdictHeader))
}
