// Package storetest provides a Fixture and message builders for tests
// that exercise the index through its public API.
package storetest

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/wesm/emlx/internal/emlx"
	"github.com/wesm/emlx/internal/scan"
	"github.com/wesm/emlx/internal/store"
	"github.com/wesm/emlx/internal/testutil"
	testemail "github.com/wesm/emlx/internal/testutil/email"
)

// NewStore opens an index in a temporary directory with the schema
// applied. It is closed when the test completes.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	testutil.MustNoErr(t, err, "open store")
	t.Cleanup(func() { st.Close() })
	testutil.MustNoErr(t, st.InitSchema(), "init schema")
	return st
}

// Mailbox returns a mailbox with the given label under a fake Mail root.
func Mailbox(label string) emlx.Mailbox {
	path := "/Mail/Mailboxes/" + label + ".mbox"
	return emlx.Mailbox{Path: path, MsgDir: path + "/Messages", Label: label}
}

// Fixture holds common test state for store-level tests.
type Fixture struct {
	T          *testing.T
	Store      *store.Store
	msgCounter atomic.Int64
}

// New creates a Fixture with a fresh index.
func New(t *testing.T) *Fixture {
	t.Helper()
	return &Fixture{T: t, Store: NewStore(t)}
}

// NewMessage returns a builder for an Inbox message named "msg-N", with N
// counting from 1 per fixture.
func (f *Fixture) NewMessage() *MessageBuilder {
	n := f.msgCounter.Add(1)
	return &MessageBuilder{
		mailbox: Mailbox("Inbox"),
		name:    fmt.Sprintf("msg-%d", n),
		subject: "Test Message",
		from:    "sender@example.com",
	}
}

// MessageCount returns the number of indexed messages.
func (f *Fixture) MessageCount() int64 {
	f.T.Helper()
	stats, err := f.Store.Stats()
	testutil.MustNoErr(f.T, err, "Stats")
	return stats.MessageCount
}

// MessageBuilder builds scan entries backed by real .emlx bytes.
type MessageBuilder struct {
	mailbox      emlx.Mailbox
	name         string
	subject      string
	from         string
	flags        uint64
	received     int64
	metadataOnly bool
}

// WithName sets the file name (without .emlx) and Message-ID local part.
func (b *MessageBuilder) WithName(name string) *MessageBuilder {
	b.name = name
	return b
}

// WithMailbox places the message in the mailbox with the given label.
func (b *MessageBuilder) WithMailbox(label string) *MessageBuilder {
	b.mailbox = Mailbox(label)
	return b
}

func (b *MessageBuilder) WithSubject(s string) *MessageBuilder {
	b.subject = s
	return b
}

func (b *MessageBuilder) WithFrom(s string) *MessageBuilder {
	b.from = s
	return b
}

// WithFlags sets the raw plist flags integer.
func (b *MessageBuilder) WithFlags(raw uint64) *MessageBuilder {
	b.flags = raw
	return b
}

// WithReceived sets date-received in Unix seconds. Zero omits it.
func (b *MessageBuilder) WithReceived(unix int64) *MessageBuilder {
	b.received = unix
	return b
}

// MetadataOnly parses the entry without its MIME message.
func (b *MessageBuilder) MetadataOnly() *MessageBuilder {
	b.metadataOnly = true
	return b
}

// Entry encodes and parses the message as a scan would.
func (b *MessageBuilder) Entry(t testing.TB) scan.Entry {
	t.Helper()
	raw := testemail.NewMessage().
		Subject(b.subject).
		From(b.from).
		Header("Message-ID", "<"+b.name+"@example.com>").
		Bytes()
	pl := map[string]any{"flags": b.flags}
	if b.received > 0 {
		pl["date-received"] = uint64(b.received)
	}
	rec, err := emlx.Parse(testemail.Emlx(raw, testemail.XMLPlist(t, pl)), emlx.WithMetadataOnly(b.metadataOnly))
	if err != nil {
		t.Fatalf("parse %s: %v", b.name, err)
	}
	return scan.Entry{Mailbox: b.mailbox, Path: b.mailbox.FilePath(b.name + ".emlx"), Record: rec}
}

// Create indexes the message into st and returns its row ID.
func (b *MessageBuilder) Create(t testing.TB, st *store.Store) int64 {
	t.Helper()
	id, err := st.UpsertMessage(b.Entry(t))
	if err != nil {
		t.Fatalf("UpsertMessage %s: %v", b.name, err)
	}
	return id
}
