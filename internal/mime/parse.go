// Package mime provides MIME message parsing using enmime and go-message.
package mime

import (
	"bufio"
	"bytes"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/textproto"
	"github.com/jhillyerd/enmime"

	"github.com/wesm/emlx/internal/textutil"
)

// Header is a single header field in message order.
type Header struct {
	// Key is the field name as it appeared in the message, without
	// canonicalization.
	Key string

	// Value is the RFC 2047 decoded value, or Raw if decoding failed.
	Value string

	// Raw is the undecoded value with line folding removed.
	Raw string
}

// Address represents an email address with optional display name.
type Address struct {
	Name  string
	Email string
}

// Attachment describes a non-body part. Content is not retained.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int
	IsInline    bool
}

// Document is a parsed MIME message.
type Document struct {
	Subject     string
	Date        time.Time
	From        []Address
	To          []Address
	Cc          []Address
	MessageID   string
	Attachments []Attachment
	Errors      []string // Non-fatal parsing errors

	raw     []byte
	headers []Header
	root    *enmime.Part
}

// Parse parses raw MIME data. It does not fail: problems reading the
// header block or the body structure are recorded in Errors and the
// corresponding parts of the Document are left empty.
func Parse(raw []byte) *Document {
	doc := &Document{raw: raw}

	headers, err := readHeaders(raw)
	if err != nil {
		doc.Errors = append(doc.Errors, "header: "+err.Error())
	}
	doc.headers = headers
	doc.Subject = doc.Get("Subject")
	doc.MessageID = doc.Get("Message-ID")
	if dateStr := doc.Get("Date"); dateStr != "" {
		if t, ok := parseDate(dateStr); ok {
			doc.Date = t
		}
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		doc.Errors = append(doc.Errors, "body: "+err.Error())
		return doc
	}
	doc.root = env.Root

	doc.From = parseAddressList(env, "From")
	doc.To = parseAddressList(env, "To")
	doc.Cc = parseAddressList(env, "Cc")

	for _, part := range env.Attachments {
		doc.Attachments = append(doc.Attachments, makeAttachment(part, false))
	}
	for _, part := range env.Inlines {
		if !isBodyPart(part) {
			doc.Attachments = append(doc.Attachments, makeAttachment(part, true))
		}
	}
	for _, e := range env.Errors {
		doc.Errors = append(doc.Errors, e.Error())
	}
	return doc
}

// readHeaders returns the header block in order. Each value is decoded
// on its own, so one malformed encoded-word only leaves that field raw.
func readHeaders(raw []byte) ([]Header, error) {
	th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return nil, err
	}

	h := message.Header{Header: th}
	var headers []Header
	fields := h.Fields()
	for fields.Next() {
		rawValue := unfold(fields.Value())
		value, err := fields.Text()
		if err != nil {
			value = rawValue
		} else {
			value = unfold(value)
		}
		headers = append(headers, Header{
			Key:   fieldName(fields),
			Value: textutil.EnsureUTF8(value),
			Raw:   rawValue,
		})
	}
	return headers, nil
}

// fieldName returns the current field's name as written. ReadHeader keeps
// the raw field bytes; Key is the canonical fallback.
func fieldName(fields message.HeaderFields) string {
	raw, err := fields.Raw()
	if err == nil {
		if colon := bytes.IndexByte(raw, ':'); colon > 0 {
			if name := strings.TrimSpace(string(raw[:colon])); name != "" {
				return name
			}
		}
	}
	return fields.Key()
}

var unfoldReplacer = strings.NewReplacer("\r\n", "", "\n", "")

func unfold(s string) string {
	return unfoldReplacer.Replace(s)
}

// Headers returns a copy of the decoded header fields in message order.
func (d *Document) Headers() []Header {
	out := make([]Header, len(d.headers))
	copy(out, d.headers)
	return out
}

// Lookup returns the decoded value of the first header whose name
// matches key case-insensitively.
func (d *Document) Lookup(key string) (string, bool) {
	for _, h := range d.headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value, true
		}
	}
	return "", false
}

// Get is Lookup without the presence flag.
func (d *Document) Get(key string) string {
	v, _ := d.Lookup(key)
	return v
}

// Raw returns the original MIME bytes.
func (d *Document) Raw() []byte {
	return d.raw
}

// BodyOfType returns the decoded content of the first non-attachment part
// with the given media type (e.g. "text/plain"), walking the part tree
// depth-first.
func (d *Document) BodyOfType(mediaType string) ([]byte, bool) {
	if d.root == nil {
		return nil, false
	}
	mediaType = strings.ToLower(mediaType)
	var walk func(p *enmime.Part) *enmime.Part
	walk = func(p *enmime.Part) *enmime.Part {
		for ; p != nil; p = p.NextSibling {
			if baseMediaType(p.ContentType) == mediaType && isBodyPart(p) {
				return p
			}
			if found := walk(p.FirstChild); found != nil {
				return found
			}
		}
		return nil
	}
	if part := walk(d.root); part != nil {
		return part.Content, true
	}
	return nil, false
}

// Text returns the first text/plain body, or "" if there is none.
func (d *Document) Text() string {
	b, _ := d.BodyOfType("text/plain")
	return string(b)
}

// HTML returns the first text/html body, or "" if there is none.
func (d *Document) HTML() string {
	b, _ := d.BodyOfType("text/html")
	return string(b)
}

// parseAddressList parses an address header using enmime's AddressList method.
func parseAddressList(env *enmime.Envelope, header string) []Address {
	list, err := env.AddressList(header)
	if err != nil || list == nil {
		return nil
	}

	addresses := make([]Address, 0, len(list))
	for _, addr := range list {
		if addr.Address == "" {
			continue
		}
		addresses = append(addresses, Address{
			Name:  addr.Name,
			Email: strings.ToLower(addr.Address),
		})
	}
	return addresses
}

// baseMediaType strips parameters: "text/plain; charset=utf-8" → "text/plain".
func baseMediaType(contentType string) string {
	contentType = strings.ToLower(contentType)
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(contentType)
}

// isBodyPart returns true if the part should be treated as body content
// rather than an attachment: text/plain or text/html without a filename
// or an explicit attachment disposition.
func isBodyPart(part *enmime.Part) bool {
	contentType := baseMediaType(part.ContentType)
	if contentType != "text/plain" && contentType != "text/html" {
		return false
	}
	if part.FileName != "" {
		return false
	}
	disposition := strings.ToLower(part.Disposition)
	if idx := strings.Index(disposition, ";"); idx >= 0 {
		disposition = strings.TrimSpace(disposition[:idx])
	}
	return disposition != "attachment"
}

func makeAttachment(part *enmime.Part, isInline bool) Attachment {
	return Attachment{
		Filename:    part.FileName,
		ContentType: part.ContentType,
		Size:        len(part.Content),
		IsInline:    isInline,
	}
}

// dateFormats lists common email date formats for parseDate.
var dateFormats = []string{
	time.RFC1123Z,                           // "Mon, 02 Jan 2006 15:04:05 -0700"
	time.RFC1123,                            // "Mon, 02 Jan 2006 15:04:05 MST"
	"Mon, 2 Jan 2006 15:04:05 -0700",        // Single-digit day
	"Mon, 2 Jan 2006 15:04:05 MST",          // Single-digit day with named TZ
	"2 Jan 2006 15:04:05 -0700",             // No weekday
	"02 Jan 2006 15:04:05 -0700",            // No weekday, zero-padded
	time.RFC822Z,                            // "02 Jan 06 15:04 -0700"
	time.RFC822,                             // "02 Jan 06 15:04 MST"
	time.ANSIC,                              // "Mon Jan _2 15:04:05 2006"
	"Mon, 02 Jan 2006 15:04:05 -0700 (MST)", // With parenthesized TZ
	time.RFC3339,                            // ISO 8601
}

// parseDate tries each of dateFormats and returns the time in UTC.
func parseDate(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")

	// Strip a trailing "(UTC)"-style comment, keeping the numeric offset.
	base := s
	if idx := strings.LastIndex(s, "("); idx > 0 {
		base = strings.TrimSpace(s[:idx])
	}

	for _, candidate := range []string{base, s} {
		for _, format := range dateFormats {
			if t, err := time.Parse(format, candidate); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}
