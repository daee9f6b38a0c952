package email

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Attachment is a MIME part added with WithAttachment.
type Attachment struct {
	Filename    string
	ContentType string // application/octet-stream when empty
	Data        []byte // written base64-encoded
}

type field struct{ key, value string }

// MessageBuilder assembles RFC 5322 messages for tests. Lines end in \n
// unless CRLF is set, so output compares cleanly with raw string literals.
type MessageBuilder struct {
	from, to, cc string
	subject      string
	noSubject    bool
	date         string
	extra        []field

	contentType string
	body        string
	html        string
	attachments []Attachment
	boundary    string

	crlf bool
}

// NewMessage returns a builder for a plain-text message with fixed
// sender, recipient, date and subject.
func NewMessage() *MessageBuilder {
	return &MessageBuilder{
		from:     "sender@example.com",
		to:       "recipient@example.com",
		date:     "Mon, 01 Jan 2024 12:00:00 +0000",
		subject:  "Test Message",
		body:     "This is a test message body.",
		boundary: "boundary123",
	}
}

func (b *MessageBuilder) From(v string) *MessageBuilder { b.from = v; return b }
func (b *MessageBuilder) To(v string) *MessageBuilder { b.to = v; return b }
func (b *MessageBuilder) Cc(v string) *MessageBuilder { b.cc = v; return b }
func (b *MessageBuilder) Date(v string) *MessageBuilder { b.date = v; return b }
func (b *MessageBuilder) Body(v string) *MessageBuilder { b.body = v; return b }

// Subject sets the Subject header, undoing NoSubject.
func (b *MessageBuilder) Subject(v string) *MessageBuilder {
	b.subject, b.noSubject = v, false
	return b
}

// NoSubject leaves out the Subject header.
func (b *MessageBuilder) NoSubject() *MessageBuilder { b.noSubject = true; return b }

// ContentType replaces the text/plain type of a single-part message.
func (b *MessageBuilder) ContentType(v string) *MessageBuilder { b.contentType = v; return b }

// Header appends a header after the standard ones. Repeated keys are kept.
func (b *MessageBuilder) Header(key, value string) *MessageBuilder {
	b.extra = append(b.extra, field{key, value})
	return b
}

// Boundary sets the multipart/mixed boundary; the alternative part uses
// "alt-" plus the same value.
func (b *MessageBuilder) Boundary(v string) *MessageBuilder { b.boundary = v; return b }

// WithHTML turns the body into multipart/alternative with v as the
// text/html part.
func (b *MessageBuilder) WithHTML(v string) *MessageBuilder { b.html = v; return b }

// WithAttachment makes the message multipart/mixed and appends a
// base64-encoded attachment part.
func (b *MessageBuilder) WithAttachment(filename, contentType string, data []byte) *MessageBuilder {
	b.attachments = append(b.attachments, Attachment{Filename: filename, ContentType: contentType, Data: data})
	return b
}

// CRLF ends every line with \r\n.
func (b *MessageBuilder) CRLF() *MessageBuilder { b.crlf = true; return b }

// lineWriter joins lines with a fixed terminator.
type lineWriter struct {
	sb strings.Builder
	nl string
}

func (w *lineWriter) line(format string, args ...any) {
	if len(args) > 0 {
		format = fmt.Sprintf(format, args...)
	}
	w.sb.WriteString(format)
	w.sb.WriteString(w.nl)
}

func (b *MessageBuilder) headers() []field {
	hs := []field{{"From", b.from}, {"To", b.to}}
	if b.cc != "" {
		hs = append(hs, field{"Cc", b.cc})
	}
	if !b.noSubject {
		hs = append(hs, field{"Subject", b.subject})
	}
	if b.date != "" {
		hs = append(hs, field{"Date", b.date})
	}
	return append(hs, b.extra...)
}

// Bytes renders the message.
func (b *MessageBuilder) Bytes() []byte {
	w := &lineWriter{nl: "\n"}
	if b.crlf {
		w.nl = "\r\n"
	}
	for _, h := range b.headers() {
		w.line("%s: %s", h.key, h.value)
	}

	if len(b.attachments) == 0 {
		if b.html != "" {
			w.line("MIME-Version: 1.0")
		}
		b.writeText(w)
		return []byte(w.sb.String())
	}

	w.line("MIME-Version: 1.0")
	w.line("Content-Type: multipart/mixed; boundary=%q", b.boundary)
	w.line("")
	w.line("--%s", b.boundary)
	b.writeText(w)
	for _, att := range b.attachments {
		ct := att.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.line("--%s", b.boundary)
		w.line("Content-Type: %s; name=%q", ct, att.Filename)
		w.line("Content-Disposition: attachment; filename=%q", att.Filename)
		w.line("Content-Transfer-Encoding: base64")
		w.line("")
		w.line(base64.StdEncoding.EncodeToString(att.Data))
	}
	w.line("--%s--", b.boundary)
	return []byte(w.sb.String())
}

const textPlainUTF8 = `text/plain; charset="utf-8"`

// writeText writes the body part: plain text, or a multipart/alternative
// of plain and HTML.
func (b *MessageBuilder) writeText(w *lineWriter) {
	if b.html == "" {
		ct := b.contentType
		if ct == "" {
			ct = textPlainUTF8
		}
		w.line("Content-Type: " + ct)
		w.line("")
		w.line(b.body)
		return
	}

	alt := "alt-" + b.boundary
	w.line("Content-Type: multipart/alternative; boundary=%q", alt)
	w.line("")
	for _, p := range []struct{ ct, text string }{
		{textPlainUTF8, b.body},
		{`text/html; charset="utf-8"`, b.html},
	} {
		w.line("--" + alt)
		w.line("Content-Type: " + p.ct)
		w.line("")
		w.line(p.text)
	}
	w.line("--%s--", alt)
}
