package emlx

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"howett.net/plist"

	"github.com/wesm/emlx/internal/mime"
)

// Record is a parsed .emlx file. It is not modified after Read returns.
type Record struct {
	// ByteCount is the length of the MIME segment.
	ByteCount int64

	// Message is the parsed MIME message. Nil in metadata-only mode and
	// when the byte count is zero.
	Message *mime.Document

	// MessageID is the Message-ID header, matched case-insensitively.
	// Empty when there is no message or no such header.
	MessageID string

	// URL is the Mail.app "message:" URL for MessageID, or empty.
	URL string

	// Plist holds the top-level plist entries with "flags" replaced by
	// its decoded FlagMap.
	Plist map[string]any

	// Flags is the decoded "flags" entry (same map as Plist["flags"]).
	Flags FlagMap

	// RawFlags is the undecoded "flags" integer, 0 if absent.
	RawFlags uint64
}

// Option configures Read.
type Option func(*options)

type options struct {
	metadataOnly bool
}

// MetadataOnly skips reading and parsing the MIME segment. The record
// still carries ByteCount and Plist.
func MetadataOnly() Option {
	return func(o *options) { o.metadataOnly = true }
}

// WithMetadataOnly is MetadataOnly controlled by a boolean, for callers
// that take the mode from configuration.
func WithMetadataOnly(enabled bool) Option {
	return func(o *options) { o.metadataOnly = enabled }
}

// Read parses an .emlx container from r. r is left open.
func Read(r io.ReadSeeker, opts ...Option) (*Record, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c, err := ReadContainer(r, o.metadataOnly)
	if err != nil {
		return nil, err
	}
	return assemble(c)
}

// Parse parses an .emlx file from its raw bytes.
func Parse(data []byte, opts ...Option) (*Record, error) {
	return Read(bytes.NewReader(data), opts...)
}

// ReadFile opens, parses and closes the .emlx file at path.
func ReadFile(path string, opts ...Option) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("emlx: open %q: %w", path, err)
	}
	defer f.Close()

	rec, err := Read(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

func assemble(c *Container) (*Record, error) {
	dict, err := decodePlist(c.Plist)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		ByteCount: c.ByteCount,
		Plist:     dict,
		RawFlags:  plistUint(dict["flags"]),
	}
	rec.Flags = DecodeFlags(rec.RawFlags)
	dict["flags"] = rec.Flags

	if len(c.MIME) > 0 {
		rec.Message = mime.Parse(c.MIME)
		if id, ok := rec.Message.Lookup("Message-ID"); ok && id != "" {
			rec.MessageID = id
			rec.URL = "message:" + id
		}
	}
	return rec, nil
}

// decodePlist accepts XML, binary and OpenStep plists whose top level is
// a dictionary.
func decodePlist(data []byte) (map[string]any, error) {
	var v any
	if _, err := plist.Unmarshal(data, &v); err != nil {
		return nil, formatErr(ErrInvalidPlist, err, "")
	}
	dict, ok := v.(map[string]any)
	if !ok {
		return nil, formatErr(ErrInvalidPlist, nil, "top-level value is %T, not a dictionary", v)
	}
	return dict, nil
}

// plistUint converts a plist number to uint64. Missing, negative and
// non-numeric values are 0.
func plistUint(v any) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case int64:
		if n > 0 {
			return uint64(n)
		}
	case int:
		if n > 0 {
			return uint64(n)
		}
	case float64:
		if n > 0 && n < math.MaxUint64 {
			return uint64(n)
		}
	}
	return 0
}

// Headers returns the decoded MIME headers in message order, or nil in
// metadata-only mode.
func (r *Record) Headers() []mime.Header {
	if r.Message == nil {
		return nil
	}
	return r.Message.Headers()
}

// Text returns the first text/plain body part, or "".
func (r *Record) Text() string {
	if r.Message == nil {
		return ""
	}
	return r.Message.Text()
}

// HTML returns the first text/html body part, or "".
func (r *Record) HTML() string {
	if r.Message == nil {
		return ""
	}
	return r.Message.HTML()
}

// DateReceived returns the plist "date-received" timestamp.
func (r *Record) DateReceived() time.Time { return r.plistTime("date-received") }

// DateSent returns the plist "date-sent" timestamp.
func (r *Record) DateSent() time.Time { return r.plistTime("date-sent") }

// DateLastViewed returns the plist "date-last-viewed" timestamp.
func (r *Record) DateLastViewed() time.Time { return r.plistTime("date-last-viewed") }

// plistTime reads a Unix-seconds timestamp (integer, real or native plist
// date). Zero if the key is absent or not a time.
func (r *Record) plistTime(key string) time.Time {
	switch v := r.Plist[key].(type) {
	case time.Time:
		return v.UTC()
	case float64:
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC()
	case nil:
		return time.Time{}
	default:
		if n := plistUint(v); n > 0 {
			return time.Unix(int64(n), 0).UTC()
		}
	}
	return time.Time{}
}
