package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

const progressInterval = 500 * time.Millisecond

// cliProgress prints a single, rewritten status line for scans.
type cliProgress struct {
	w         io.Writer
	startTime time.Time
	lastPrint time.Time
	printed   bool
}

func newCLIProgress(w io.Writer) *cliProgress {
	now := time.Now()
	return &cliProgress{w: w, startTime: now, lastPrint: now}
}

// Update matches scan.Options.Progress. Output is throttled except for the
// final file.
func (p *cliProgress) Update(done, total int) {
	if p.startTime.IsZero() {
		p.startTime = time.Now()
	}
	if done < total && time.Since(p.lastPrint) < progressInterval {
		return
	}
	p.lastPrint = time.Now()
	p.printed = true

	elapsed := time.Since(p.startTime)
	rate := 0.0
	if elapsed.Seconds() >= 1 {
		rate = float64(done) / elapsed.Seconds()
	}
	pct := 100.0
	if total > 0 {
		pct = float64(done) * 100 / float64(total)
	}
	fmt.Fprintf(p.w, "\r  Scanned: %d/%d (%.0f%%) | Rate: %.1f/s | Elapsed: %s    ",
		done, total, pct, rate, formatDuration(elapsed))
}

// Finish ends the status line.
func (p *cliProgress) Finish() {
	if p.printed {
		fmt.Fprintln(p.w)
	}
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// stderrProgress returns a progress printer on stderr, or nil when stderr
// is not a terminal so that logs and redirected output stay clean.
func stderrProgress() *cliProgress {
	if !isTerminal(os.Stderr) {
		return nil
	}
	return newCLIProgress(os.Stderr)
}
