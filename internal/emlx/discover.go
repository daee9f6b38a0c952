package emlx

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrNotDirectory is returned by DiscoverMailboxes when the root is a file.
var ErrNotDirectory = errors.New("not a directory")

// Mailbox is an Apple Mail mailbox directory containing .emlx files.
type Mailbox struct {
	// Path is the absolute path to the .mbox or .imapmbox directory.
	Path string

	// MsgDir holds the .emlx files: Path/Messages in legacy layouts,
	// Path/<GUID>/Data/Messages in Mail V10 and later.
	MsgDir string

	// Label is the mailbox name relative to the discovery root, e.g.
	// "Archive/2019" for Mailboxes/Archive.mbox/2019.mbox.
	Label string

	// Files contains sorted .emlx filenames within MsgDir.
	Files []string
}

// FilePath returns the absolute path of one of m.Files.
func (m Mailbox) FilePath(name string) string {
	return filepath.Join(m.MsgDir, name)
}

// TotalFiles sums the file counts of mailboxes.
func TotalFiles(mailboxes []Mailbox) int {
	n := 0
	for _, mb := range mailboxes {
		n += len(mb.Files)
	}
	return n
}

// DiscoverMailboxes walks an Apple Mail directory tree and returns every
// mailbox that holds at least one .emlx file, sorted by path. If rootDir
// is itself a mailbox only that mailbox is returned.
func DiscoverMailboxes(rootDir string) ([]Mailbox, error) {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("emlx discover: abs path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("emlx discover: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("emlx discover: %q: %w", root, ErrNotDirectory)
	}

	if isMailboxName(root) {
		mb, ok, err := loadMailbox(filepath.Dir(root), root)
		if err != nil {
			return nil, err
		}
		if ok {
			return []Mailbox{mb}, nil
		}
	}

	var mailboxes []Mailbox
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			// Unreadable subtrees are skipped, not fatal.
			return nil
		case !d.IsDir():
			return nil
		case d.Name() == "Messages":
			// loadMailbox lists these directly.
			return filepath.SkipDir
		case !isMailboxName(path):
			return nil
		}

		mb, ok, err := loadMailbox(root, path)
		if err == nil && ok {
			mailboxes = append(mailboxes, mb)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("emlx discover: walk: %w", err)
	}

	slices.SortFunc(mailboxes, func(a, b Mailbox) int {
		return strings.Compare(a.Path, b.Path)
	})
	return mailboxes, nil
}

// loadMailbox resolves the Messages directory of path and lists it. ok is
// false when path has no Messages directory or no .emlx files.
func loadMailbox(root, path string) (Mailbox, bool, error) {
	msgDir := findMessagesDir(path)
	if msgDir == "" {
		return Mailbox{}, false, nil
	}
	files, err := listEmlxFiles(msgDir)
	if err != nil || len(files) == 0 {
		return Mailbox{}, false, err
	}
	return Mailbox{
		Path:   path,
		MsgDir: msgDir,
		Label:  LabelFromPath(root, path),
		Files:  files,
	}, true, nil
}

// LabelFromPath derives a mailbox label from its path relative to root.
// Container directories (Mailboxes, IMAP-*, POP-*, V10 account GUIDs)
// are dropped and .mbox/.imapmbox suffixes are stripped.
func LabelFromPath(rootDir, mailboxPath string) string {
	rel, err := filepath.Rel(rootDir, mailboxPath)
	if err != nil {
		return stripMailboxSuffix(filepath.Base(mailboxPath))
	}

	var parts []string
	for _, p := range strings.Split(filepath.ToSlash(rel), "/") {
		if isContainerDir(p) {
			continue
		}
		parts = append(parts, stripMailboxSuffix(p))
	}
	if len(parts) == 0 {
		return stripMailboxSuffix(filepath.Base(mailboxPath))
	}
	return strings.Join(parts, "/")
}

func isContainerDir(name string) bool {
	return name == "Mailboxes" || name == "." ||
		strings.HasPrefix(name, "IMAP-") ||
		strings.HasPrefix(name, "POP-") ||
		isUUID(name)
}

var mailboxSuffixes = []string{".imapmbox", ".mbox"}

func isMailboxName(path string) bool {
	lower := strings.ToLower(filepath.Base(path))
	for _, suffix := range mailboxSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func stripMailboxSuffix(name string) string {
	lower := strings.ToLower(name)
	for _, suffix := range mailboxSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return name[:len(name)-len(suffix)]
		}
	}
	return name
}

// findMessagesDir returns the legacy Messages/ directory, or the first
// <subdir>/Data/Messages/ of the V10 layout, or "".
func findMessagesDir(mailboxPath string) string {
	if isDir(filepath.Join(mailboxPath, "Messages")) {
		return filepath.Join(mailboxPath, "Messages")
	}

	entries, err := os.ReadDir(mailboxPath)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		modern := filepath.Join(mailboxPath, e.Name(), "Data", "Messages")
		if isDir(modern) {
			return modern
		}
	}
	return ""
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// isUUID reports whether s has the 8-4-4-4-12 hex layout of the account
// directories Mail V10 creates.
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
			continue
		}
		if !isHex(c) {
			return false
		}
	}
	return true
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

// listEmlxFiles returns the sorted .emlx names in msgDir. Mail.app's
// .partial.emlx files (headers only, body fetched on demand) are skipped.
func listEmlxFiles(msgDir string) ([]string, error) {
	entries, err := os.ReadDir(msgDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read Messages dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		lower := strings.ToLower(e.Name())
		if !strings.HasSuffix(lower, ".emlx") || strings.HasSuffix(lower, ".partial.emlx") {
			continue
		}
		files = append(files, e.Name())
	}
	slices.Sort(files)
	return files, nil
}
