// Package scan parses every .emlx file under an Apple Mail directory
// concurrently and feeds the records to a Sink.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/wesm/emlx/internal/emlx"
	"github.com/wesm/emlx/internal/textutil"
)

// DefaultMaxFileBytes is the largest .emlx file Run will read.
const DefaultMaxFileBytes int64 = 128 << 20 // 128 MiB

// Entry is one successfully parsed file.
type Entry struct {
	Mailbox emlx.Mailbox
	Path    string
	Record  *emlx.Record
}

// Sink receives parsed entries. Run calls Add from a single goroutine, so
// implementations need no locking. Entries arrive in completion order.
type Sink interface {
	Add(ctx context.Context, e Entry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Entry) error

func (f SinkFunc) Add(ctx context.Context, e Entry) error { return f(ctx, e) }

// Options configures Run.
type Options struct {
	// Workers is the number of files parsed concurrently.
	// Defaults to runtime.NumCPU().
	Workers int

	// MetadataOnly skips the MIME segment of every file.
	MetadataOnly bool

	// MaxFileBytes skips larger files. Defaults to DefaultMaxFileBytes;
	// negative disables the check.
	MaxFileBytes int64

	// FilesPerSecond throttles file opens. Zero means unlimited.
	FilesPerSecond float64

	// Progress is called after each file with the number of files handled
	// so far and the total. It runs on the sink goroutine.
	Progress func(done, total int)

	// Logger is optional; defaults to slog.Default().
	Logger *slog.Logger
}

// Summary reports the results of a scan.
type Summary struct {
	Mailboxes int
	Files     int
	Parsed    int
	Skipped   int
	Errors    map[string]int // by emlx.KindOf

	Unread   int
	Flagged  int
	Junk     int
	Deleted  int
	Answered int

	MIMEBytes int64
	Duration  time.Duration
}

// ErrorCount is the total over all error kinds.
func (s *Summary) ErrorCount() int {
	n := 0
	for _, c := range s.Errors {
		n += c
	}
	return n
}

// LogAttrs returns the summary as slog key/value pairs.
func (s *Summary) LogAttrs() []any {
	attrs := []any{
		"mailboxes", s.Mailboxes,
		"files", s.Files,
		"parsed", s.Parsed,
		"skipped", s.Skipped,
		"errors", s.ErrorCount(),
		"unread", s.Unread,
		"flagged", s.Flagged,
		"mime_bytes", s.MIMEBytes,
		"duration", s.Duration.Round(time.Millisecond),
	}
	for _, kind := range errorKinds {
		if n := s.Errors[kind]; n > 0 {
			attrs = append(attrs, "errors_"+kind, n)
		}
	}
	return attrs
}

var errorKinds = []string{
	emlx.KindInvalidByteCount,
	emlx.KindTruncatedMIME,
	emlx.KindEmptyPlist,
	emlx.KindInvalidPlist,
	emlx.KindIO,
}

func (s *Summary) count(f emlx.FlagMap) {
	if !f.Has(emlx.FlagRead) {
		s.Unread++
	}
	if f.Has(emlx.FlagFlagged) {
		s.Flagged++
	}
	if f.Has(emlx.FlagIsJunk) {
		s.Junk++
	}
	if f.Has(emlx.FlagDeleted) {
		s.Deleted++
	}
	if f.Has(emlx.FlagAnswered) {
		s.Answered++
	}
}

type job struct {
	mailbox emlx.Mailbox
	path    string
}

type result struct {
	job
	rec     *emlx.Record
	err     error
	skipped bool
}

// Run discovers the mailboxes under root and parses their files. Per-file
// failures are counted in the summary and logged; they do not stop the
// scan. An error from sink or a cancelled context does, and Run then
// returns the summary so far together with the error. sink may be nil.
func Run(ctx context.Context, root string, opts Options, sink Sink) (*Summary, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MaxFileBytes == 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	start := time.Now()
	summary := &Summary{Errors: make(map[string]int)}

	mailboxes, err := emlx.DiscoverMailboxes(root)
	if err != nil {
		return nil, fmt.Errorf("discover mailboxes: %w", err)
	}
	summary.Mailboxes = len(mailboxes)
	summary.Files = emlx.TotalFiles(mailboxes)
	log.Debug("discovered mailboxes", "root", root, "mailboxes", summary.Mailboxes, "files", summary.Files)

	var limiter *rate.Limiter
	if opts.FilesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.FilesPerSecond), 1)
	}

	results := make(chan result, opts.Workers)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(results)
		return produce(gctx, mailboxes, opts, limiter, results)
	})

	g.Go(func() error {
		done := 0
		for r := range results {
			done++
			if err := consume(gctx, r, summary, sink, log); err != nil {
				return err
			}
			if opts.Progress != nil {
				opts.Progress(done, summary.Files)
			}
		}
		return nil
	})

	err = g.Wait()
	summary.Duration = time.Since(start)
	if err != nil {
		return summary, err
	}
	// Workers drop their results once ctx is done, so a late cancellation
	// still leaves the scan incomplete.
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// produce parses every file with at most opts.Workers in flight and sends
// the outcomes to results. Each worker opens its own file.
func produce(ctx context.Context, mailboxes []emlx.Mailbox, opts Options, limiter *rate.Limiter, results chan<- result) error {
	var workers errgroup.Group
	workers.SetLimit(opts.Workers)

	var err error
loop:
	for _, mb := range mailboxes {
		for _, name := range mb.Files {
			if err = ctx.Err(); err != nil {
				break loop
			}
			if limiter != nil {
				if err = limiter.Wait(ctx); err != nil {
					break loop
				}
			}
			j := job{mailbox: mb, path: mb.FilePath(name)}
			workers.Go(func() error {
				r := parseOne(j, opts)
				select {
				case results <- r:
				case <-ctx.Done():
				}
				return nil
			})
		}
	}
	_ = workers.Wait()
	return err
}

func parseOne(j job, opts Options) result {
	r := result{job: j}
	if opts.MaxFileBytes > 0 {
		info, err := os.Stat(j.path)
		if err != nil {
			r.err = fmt.Errorf("stat: %w", err)
			return r
		}
		if info.Size() > opts.MaxFileBytes {
			r.skipped = true
			return r
		}
	}
	r.rec, r.err = emlx.ReadFile(j.path, emlx.WithMetadataOnly(opts.MetadataOnly))
	return r
}

func consume(ctx context.Context, r result, summary *Summary, sink Sink, log *slog.Logger) error {
	switch {
	case r.skipped:
		summary.Skipped++
		log.Warn("skipping oversized file", "path", r.path)
		return nil
	case r.err != nil:
		kind := emlx.KindOf(r.err)
		summary.Errors[kind]++
		log.Warn("failed to parse emlx file",
			"path", r.path,
			"mailbox", r.mailbox.Label,
			"kind", kind,
			"error", textutil.FirstLine(r.err.Error()),
		)
		return nil
	}

	summary.Parsed++
	summary.MIMEBytes += r.rec.ByteCount
	summary.count(r.rec.Flags)

	if sink == nil {
		return nil
	}
	if err := sink.Add(ctx, Entry{Mailbox: r.mailbox, Path: r.path, Record: r.rec}); err != nil {
		return fmt.Errorf("sink %s: %w", r.path, err)
	}
	return nil
}
