// Package export writes scanned Apple Mail messages out as standard
// Maildir or mbox mailboxes.
package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wesm/emlx/internal/scan"
)

// Format selects the output layout.
type Format string

const (
	FormatMaildir Format = "maildir"
	FormatMbox    Format = "mbox"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatMaildir, FormatMbox:
		return f, nil
	}
	return "", fmt.Errorf("unknown export format %q (want maildir or mbox)", s)
}

// Exporter is a scan.Sink that writes messages under a destination
// directory. Close must be called to finish the output.
type Exporter interface {
	scan.Sink
	Close() error
	Result() Result
}

// New returns an Exporter for format writing under dest.
func New(format Format, dest string) (Exporter, error) {
	switch format {
	case FormatMaildir:
		return NewMaildir(dest)
	case FormatMbox:
		return NewMbox(dest)
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}

// Result summarizes an export.
type Result struct {
	Dest      string
	Mailboxes int
	Messages  int
	Bytes     int64

	// Skipped counts records without a MIME message (metadata-only
	// scans and zero byte counts).
	Skipped int
}

// String formats r for display.
func (r Result) String() string {
	if r.Messages == 0 {
		msg := "No messages exported."
		if r.Skipped > 0 {
			msg += fmt.Sprintf(" %d record(s) had no message content.", r.Skipped)
		}
		return msg
	}
	out := fmt.Sprintf("Exported %d message(s) from %d mailbox(es) (%s)\n\nSaved to:\n%s",
		r.Messages, r.Mailboxes, FormatBytesLong(r.Bytes), r.Dest)
	if r.Skipped > 0 {
		out += fmt.Sprintf("\n\nSkipped %d record(s) without message content.", r.Skipped)
	}
	return out
}

// labelPath maps a mailbox label such as "Archive/2019" to a relative
// path with each component sanitized.
func labelPath(label string) string {
	var parts []string
	for _, p := range strings.Split(label, "/") {
		p = SanitizeFilename(strings.TrimSpace(p))
		if p == "" || p == "." || p == ".." {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return "Unlabeled"
	}
	return filepath.Join(parts...)
}

// SanitizeFilename removes or replaces characters that are invalid in filenames.
func SanitizeFilename(s string) string {
	var result []rune
	for _, r := range s {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\n', '\r', '\t':
			result = append(result, '_')
		default:
			result = append(result, r)
		}
	}
	return string(result)
}

// FormatBytesLong formats bytes with full precision for export results.
func FormatBytesLong(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
