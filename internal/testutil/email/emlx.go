package email

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"howett.net/plist"
)

// Emlx wraps raw MIME bytes and a plist document in the .emlx container
// layout: "<len(raw)>\n" + raw + plistDoc.
func Emlx(raw, plistDoc []byte) []byte {
	out := fmt.Appendf(nil, "%d\n", len(raw))
	out = append(out, raw...)
	return append(out, plistDoc...)
}

// XMLPlist encodes v as an XML property list, as Mail.app writes it.
func XMLPlist(t testing.TB, v any) []byte {
	t.Helper()
	b, err := plist.MarshalIndent(v, plist.XMLFormat, "\t")
	if err != nil {
		t.Fatalf("marshal XML plist: %v", err)
	}
	return b
}

// BinaryPlist encodes v as a binary property list.
func BinaryPlist(t testing.TB, v any) []byte {
	t.Helper()
	b, err := plist.Marshal(v, plist.BinaryFormat)
	if err != nil {
		t.Fatalf("marshal binary plist: %v", err)
	}
	return b
}

// SamplePlistFlags is the flags integer of SamplePlist: read (bit 0),
// draft (bit 6), is_not_junk (bit 25) and Mail.app's undocumented bit 33.
const SamplePlistFlags uint64 = 1<<0 | 1<<6 | 1<<25 | 1<<33

// SamplePlist returns the metadata dictionary of a typical Mail.app
// message. A new map is returned on every call.
func SamplePlist() map[string]any {
	return map[string]any{
		"conversation-id":  uint64(123456),
		"date-last-viewed": uint64(1581111111),
		"date-received":    uint64(1581000000),
		"flags":            SamplePlistFlags,
		"remote-id":        "789",
	}
}

// WriteMailbox creates a legacy Apple Mail mailbox at base (base/Messages)
// holding the given files, keyed by name, and returns the Messages dir.
func WriteMailbox(t testing.TB, base string, files map[string][]byte) string {
	t.Helper()
	msgDir := filepath.Join(base, "Messages")
	if err := os.MkdirAll(msgDir, 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(msgDir, name), data, 0600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return msgDir
}

// EmlxWithFlags builds an .emlx file from raw MIME and a plist holding
// only the given flags integer.
func EmlxWithFlags(t testing.TB, raw []byte, flags uint64) []byte {
	t.Helper()
	return Emlx(raw, XMLPlist(t, map[string]any{"flags": flags}))
}

// Emlx renders the message in an .emlx container with plistDict as its
// XML metadata.
func (b *MessageBuilder) Emlx(t testing.TB, plistDict map[string]any) []byte {
	t.Helper()
	return Emlx(b.Bytes(), XMLPlist(t, plistDict))
}
