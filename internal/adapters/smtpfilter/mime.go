package smtpfilter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"

	"github.com/mailsentry/mailsentry/internal/core"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// ParseMessage maps a parsed RFC 5322 message onto the pipeline's
// email model: envelope addresses win over header addresses, the text
// body comes from the first text/plain part, and attachments are
// reduced to metadata plus a content hash.
func ParseMessage(msg *mail.Message, envelopeFrom string, envelopeTo []string) (*core.Email, error) {
	from := envelopeFrom
	displayName := ""
	if addr, err := mail.ParseAddress(decodeHeader(msg.Header.Get("From"))); err == nil {
		displayName = addr.Name
		if from == "" {
			from = addr.Address
		}
	}

	to := envelopeTo
	if len(to) == 0 {
		if addrs, err := msg.Header.AddressList("To"); err == nil {
			for _, a := range addrs {
				to = append(to, a.Address)
			}
		}
	}

	replyTo := ""
	if addr, err := mail.ParseAddress(msg.Header.Get("Reply-To")); err == nil {
		replyTo = addr.Address
	}

	headers := make(map[string][]string, len(msg.Header))
	for k, v := range msg.Header {
		headers[k] = v
	}

	body, attachments, err := extractParts(msg)
	if err != nil {
		return nil, err
	}

	return &core.Email{
		MessageID:           strings.Trim(msg.Header.Get("Message-Id"), "<>"),
		From:                from,
		FromDisplayName:     displayName,
		ReplyTo:             replyTo,
		To:                  to,
		Subject:             decodeHeader(msg.Header.Get("Subject")),
		TextBody:            body,
		Headers:             headers,
		URLs:                extractURLs(body),
		Attachments:         attachments,
		IsReply:             msg.Header.Get("In-Reply-To") != "" || msg.Header.Get("References") != "",
		SenderDomainAgeDays: -1,
	}, nil
}

// extractParts walks the MIME structure collecting the text body and
// attachment metadata. Unparseable structures degrade to treating the
// whole body as plain text rather than failing the message.
func extractParts(msg *mail.Message) (string, []core.Attachment, error) {
	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		body, err := readBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
		return body, nil, err
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		body, err := readBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
		return body, nil, err
	}

	boundary := params["boundary"]
	if boundary == "" {
		body, err := io.ReadAll(msg.Body)
		return string(body), nil, err
	}

	var textBody strings.Builder
	var attachments []core.Attachment

	reader := multipart.NewReader(msg.Body, boundary)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		partType, partParams, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		filename := part.FileName()

		switch {
		case filename != "":
			att, err := attachmentFromPart(part, filename, partType)
			if err == nil {
				attachments = append(attachments, att)
			}
		case strings.HasPrefix(partType, "multipart/"):
			nested, nestedAtts := extractNested(part, partParams["boundary"])
			textBody.WriteString(nested)
			attachments = append(attachments, nestedAtts...)
		case partType == "text/plain" || partType == "":
			content, err := readBody(part, part.Header.Get("Content-Transfer-Encoding"))
			if err == nil {
				textBody.WriteString(content)
			}
		}
	}

	return textBody.String(), attachments, nil
}

func extractNested(part *multipart.Part, boundary string) (string, []core.Attachment) {
	if boundary == "" {
		return "", nil
	}
	var textBody strings.Builder
	var attachments []core.Attachment

	reader := multipart.NewReader(part, boundary)
	for {
		sub, err := reader.NextPart()
		if err != nil {
			break
		}
		subType, _, _ := mime.ParseMediaType(sub.Header.Get("Content-Type"))
		if filename := sub.FileName(); filename != "" {
			if att, err := attachmentFromPart(sub, filename, subType); err == nil {
				attachments = append(attachments, att)
			}
			continue
		}
		if subType == "text/plain" || subType == "" {
			if content, err := readBody(sub, sub.Header.Get("Content-Transfer-Encoding")); err == nil {
				textBody.WriteString(content)
			}
		}
	}
	return textBody.String(), attachments
}

func attachmentFromPart(part io.Reader, filename, contentType string) (core.Attachment, error) {
	content, err := io.ReadAll(part)
	if err != nil {
		return core.Attachment{}, fmt.Errorf("failed to read attachment %q: %w", filename, err)
	}
	sum := sha256.Sum256(content)
	return core.Attachment{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(content)),
		SHA256:      hex.EncodeToString(sum[:]),
	}, nil
}

func readBody(r io.Reader, transferEncoding string) (string, error) {
	if strings.EqualFold(transferEncoding, "quoted-printable") {
		r = quotedprintable.NewReader(r)
	}
	content, err := io.ReadAll(r)
	if err != nil && len(content) == 0 {
		return "", err
	}
	return string(content), nil
}

func extractURLs(body string) []string {
	matches := urlPattern.FindAllString(body, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:")
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		urls = append(urls, m)
	}
	return urls
}

// decodeHeader decodes RFC 2047 encoded words, returning the raw value
// when decoding fails
func decodeHeader(value string) string {
	decoder := &mime.WordDecoder{}
	decoded, err := decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
