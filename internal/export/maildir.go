package export

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/emersion/go-maildir"

	"github.com/wesm/emlx/internal/emlx"
	"github.com/wesm/emlx/internal/fileutil"
	"github.com/wesm/emlx/internal/scan"
)

// emlxToMaildir maps Mail.app flags onto Maildir info flags.
var emlxToMaildir = []struct {
	name string
	flag maildir.Flag
}{
	{emlx.FlagDraft, maildir.FlagDraft},
	{emlx.FlagFlagged, maildir.FlagFlagged},
	{emlx.FlagForwarded, maildir.FlagPassed},
	{emlx.FlagAnswered, maildir.FlagReplied},
	{emlx.FlagRead, maildir.FlagSeen},
	{emlx.FlagDeleted, maildir.FlagTrashed},
}

// MaildirFlags returns the Maildir flags for decoded Mail.app flags.
func MaildirFlags(flags emlx.FlagMap) []maildir.Flag {
	var out []maildir.Flag
	for _, m := range emlxToMaildir {
		if flags.Has(m.name) {
			out = append(out, m.flag)
		}
	}
	return out
}

// Maildir writes one Maildir per mailbox label under its root.
type Maildir struct {
	root   string
	dirs   map[string]maildir.Dir
	result Result
}

// NewMaildir returns an exporter rooted at dest, creating it if needed.
func NewMaildir(dest string) (*Maildir, error) {
	if err := fileutil.MkdirPrivate(dest); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &Maildir{
		root:   dest,
		dirs:   make(map[string]maildir.Dir),
		result: Result{Dest: dest},
	}, nil
}

func (m *Maildir) dir(label string) (maildir.Dir, error) {
	if d, ok := m.dirs[label]; ok {
		return d, nil
	}
	d := maildir.Dir(filepath.Join(m.root, labelPath(label)))
	if err := fileutil.MkdirPrivate(filepath.Dir(string(d))); err != nil {
		return "", fmt.Errorf("create maildir parent: %w", err)
	}
	if err := d.Init(); err != nil {
		return "", fmt.Errorf("init maildir %s: %w", d, err)
	}
	m.dirs[label] = d
	m.result.Mailboxes++
	return d, nil
}

// Add delivers the message of e into the maildir for its label.
func (m *Maildir) Add(ctx context.Context, e scan.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Record == nil || e.Record.Message == nil {
		m.result.Skipped++
		return nil
	}

	d, err := m.dir(e.Mailbox.Label)
	if err != nil {
		return err
	}
	_, w, err := d.Create(MaildirFlags(e.Record.Flags))
	if err != nil {
		return fmt.Errorf("create message in %s: %w", d, err)
	}
	raw := e.Record.Message.Raw()
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", e.Path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("deliver %s: %w", e.Path, err)
	}

	m.result.Messages++
	m.result.Bytes += int64(len(raw))
	return nil
}

// Close is a no-op; messages are delivered as they are added.
func (m *Maildir) Close() error { return nil }

// Result returns the export totals so far.
func (m *Maildir) Result() Result { return m.result }
