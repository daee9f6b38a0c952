package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-mbox"

	"github.com/wesm/emlx/internal/emlx"
	"github.com/wesm/emlx/internal/fileutil"
	"github.com/wesm/emlx/internal/scan"
)

// mboxFallbackSender is the From_ line address for messages without a
// parseable From header.
const mboxFallbackSender = "MAILER-DAEMON"

type mboxFile struct {
	f *os.File
	w *mbox.Writer
}

// Mbox writes one <label>.mbox file per mailbox label under its root.
type Mbox struct {
	root   string
	files  map[string]*mboxFile
	result Result
}

// NewMbox returns an exporter rooted at dest, creating it if needed.
func NewMbox(dest string) (*Mbox, error) {
	if err := fileutil.MkdirPrivate(dest); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &Mbox{
		root:   dest,
		files:  make(map[string]*mboxFile),
		result: Result{Dest: dest},
	}, nil
}

func (m *Mbox) file(label string) (*mboxFile, error) {
	if mf, ok := m.files[label]; ok {
		return mf, nil
	}
	path := filepath.Join(m.root, labelPath(label)+".mbox")
	if err := fileutil.MkdirPrivate(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("create mbox parent: %w", err)
	}
	f, err := fileutil.CreatePrivate(path)
	if err != nil {
		return nil, fmt.Errorf("create mbox: %w", err)
	}
	mf := &mboxFile{f: f, w: mbox.NewWriter(f)}
	m.files[label] = mf
	m.result.Mailboxes++
	return mf, nil
}

// Add appends the message of e to the mbox file for its label.
func (m *Mbox) Add(ctx context.Context, e scan.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Record == nil || e.Record.Message == nil {
		m.result.Skipped++
		return nil
	}

	mf, err := m.file(e.Mailbox.Label)
	if err != nil {
		return err
	}
	w, err := mf.w.CreateMessage(mboxSender(e.Record), mboxDate(e.Record))
	if err != nil {
		return fmt.Errorf("start message %s: %w", e.Path, err)
	}
	raw := e.Record.Message.Raw()
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write %s: %w", e.Path, err)
	}

	m.result.Messages++
	m.result.Bytes += int64(len(raw))
	return nil
}

// Close finishes and closes every mbox file.
func (m *Mbox) Close() error {
	var errs []error
	for label, mf := range m.files {
		if err := mf.w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("finish %s: %w", label, err))
		}
		if err := mf.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", label, err))
		}
		delete(m.files, label)
	}
	return errors.Join(errs...)
}

// Result returns the export totals so far.
func (m *Mbox) Result() Result { return m.result }

func mboxSender(rec *emlx.Record) string {
	if from := rec.Message.From; len(from) > 0 && from[0].Email != "" {
		return from[0].Email
	}
	return mboxFallbackSender
}

// mboxDate prefers the time Mail.app received the message over its Date
// header.
func mboxDate(rec *emlx.Record) time.Time {
	if t := rec.DateReceived(); !t.IsZero() {
		return t
	}
	if !rec.Message.Date.IsZero() {
		return rec.Message.Date.UTC()
	}
	return time.Unix(0, 0).UTC()
}
