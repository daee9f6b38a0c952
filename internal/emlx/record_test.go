package emlx

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	testemail "github.com/wesm/emlx/internal/testutil/email"
)

const testMessageID = "<7A129E26-2C1F-4517-B6B5-39460ED50E12@example.com>"

// wantSamplePlist is testemail.SamplePlist after flag decoding.
func wantSamplePlist() map[string]any {
	want := testemail.SamplePlist()
	want["flags"] = FlagMap{FlagRead: true, FlagDraft: true, FlagIsNotJunk: true}
	return want
}

func sampleMessage() []byte {
	return testemail.NewMessage().
		From("Alice <alice@example.com>").
		Subject("Hello").
		Header("Message-Id", testMessageID).
		Body("This is a plain text message used to check that bodies are found.").
		Bytes()
}

func sampleEmlx(t *testing.T) []byte {
	t.Helper()
	return testemail.Emlx(sampleMessage(), testemail.XMLPlist(t, testemail.SamplePlist()))
}

func writeEmlx(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "12345.emlx")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func mustParse(t *testing.T, data []byte, opts ...Option) *Record {
	t.Helper()
	rec, err := Parse(data, opts...)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return rec
}

func TestParse_Sample(t *testing.T) {
	raw := sampleMessage()
	rec := mustParse(t, sampleEmlx(t))

	if rec.ByteCount != int64(len(raw)) {
		t.Errorf("ByteCount = %d, want %d", rec.ByteCount, len(raw))
	}
	if rec.MessageID != testMessageID {
		t.Errorf("MessageID = %q, want %q", rec.MessageID, testMessageID)
	}
	if want := "message:" + testMessageID; rec.URL != want {
		t.Errorf("URL = %q, want %q", rec.URL, want)
	}
	if diff := cmp.Diff(wantSamplePlist(), rec.Plist); diff != "" {
		t.Errorf("Plist mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantSamplePlist()["flags"], rec.Flags); diff != "" {
		t.Errorf("Flags mismatch (-want +got):\n%s", diff)
	}
	if rec.RawFlags != testemail.SamplePlistFlags {
		t.Errorf("RawFlags = %d, want %d", rec.RawFlags, testemail.SamplePlistFlags)
	}
	if rec.Message == nil {
		t.Fatal("Message = nil, want parsed document")
	}
	if !bytes.Equal(rec.Message.Raw(), raw) {
		t.Errorf("Message.Raw() differs from embedded MIME")
	}
	if got := strings.TrimSpace(rec.Text()); !strings.HasPrefix(got, "This is a plain text message") {
		t.Errorf("Text() = %q", got)
	}
	if rec.HTML() != "" {
		t.Errorf("HTML() = %q, want empty", rec.HTML())
	}
}

func TestParse_MessageIDScenario(t *testing.T) {
	head := "From: sender@example.com\n" +
		"To: recipient@example.com\n" +
		"Subject: Byte count\n" +
		"Message-Id: <X@example.com>\n" +
		"Content-Type: text/plain; charset=\"utf-8\"\n" +
		"\n"
	mime := head + strings.Repeat("y", 545-len(head)-1) + "\n"
	if len(mime) != 545 {
		t.Fatalf("fixture is %d bytes, want 545", len(mime))
	}
	data := testemail.Emlx([]byte(mime), testemail.XMLPlist(t, map[string]any{"flags": uint64(0)}))
	if !bytes.HasPrefix(data, []byte("545\n")) {
		t.Fatalf("container starts with %q", data[:8])
	}

	rec := mustParse(t, data)
	if rec.ByteCount != 545 {
		t.Errorf("ByteCount = %d, want 545", rec.ByteCount)
	}
	if rec.MessageID != "<X@example.com>" {
		t.Errorf("MessageID = %q, want %q", rec.MessageID, "<X@example.com>")
	}
	if rec.URL != "message:<X@example.com>" {
		t.Errorf("URL = %q, want %q", rec.URL, "message:<X@example.com>")
	}
}

func TestParse_MessageIDCaseInsensitive(t *testing.T) {
	for _, key := range []string{"Message-ID", "message-id", "MESSAGE-ID", "Message-Id"} {
		t.Run(key, func(t *testing.T) {
			raw := testemail.NewMessage().Header(key, "<ci@example.com>").Bytes()
			rec := mustParse(t, testemail.Emlx(raw, testemail.XMLPlist(t, map[string]any{})))
			if rec.MessageID != "<ci@example.com>" {
				t.Errorf("MessageID = %q, want %q", rec.MessageID, "<ci@example.com>")
			}
		})
	}
}

func TestParse_NoMessageID(t *testing.T) {
	raw := testemail.NewMessage().Bytes()
	rec := mustParse(t, testemail.Emlx(raw, testemail.XMLPlist(t, map[string]any{})))
	if rec.Message == nil {
		t.Fatal("Message = nil")
	}
	if rec.MessageID != "" || rec.URL != "" {
		t.Errorf("MessageID = %q, URL = %q, want both empty", rec.MessageID, rec.URL)
	}
}

func TestParse_MetadataOnlyEquivalence(t *testing.T) {
	data := sampleEmlx(t)
	full := mustParse(t, data)
	meta := mustParse(t, data, MetadataOnly())

	if meta.ByteCount != full.ByteCount {
		t.Errorf("ByteCount = %d, want %d", meta.ByteCount, full.ByteCount)
	}
	if diff := cmp.Diff(full.Plist, meta.Plist); diff != "" {
		t.Errorf("Plist differs between modes (-full +meta):\n%s", diff)
	}
	if meta.Message != nil {
		t.Error("metadata-only Message != nil")
	}
	if meta.MessageID != "" || meta.URL != "" {
		t.Errorf("metadata-only MessageID = %q, URL = %q, want empty", meta.MessageID, meta.URL)
	}
	if meta.Headers() != nil || meta.Text() != "" || meta.HTML() != "" {
		t.Error("metadata-only record exposes MIME content")
	}
	if full.MessageID == "" {
		t.Error("full-mode MessageID is empty")
	}

	off := mustParse(t, data, WithMetadataOnly(false))
	if off.Message == nil {
		t.Error("WithMetadataOnly(false) skipped the message")
	}
}

func TestParse_RoundTrip(t *testing.T) {
	plistData := testemail.XMLPlist(t, testemail.SamplePlist())
	for _, n := range []int{0, 1, 17, 545, 70000} {
		mime := bytes.Repeat([]byte("ab\r\n"), n/4+1)[:n]
		rec := mustParse(t, testemail.Emlx(mime, plistData))
		if rec.ByteCount != int64(n) {
			t.Errorf("n=%d: ByteCount = %d", n, rec.ByteCount)
		}
		if diff := cmp.Diff(wantSamplePlist(), rec.Plist); diff != "" {
			t.Errorf("n=%d: Plist mismatch (-want +got):\n%s", n, diff)
		}
		if n == 0 && rec.Message != nil {
			t.Errorf("n=0: Message != nil")
		}
	}
}

func TestParse_BinaryPlist(t *testing.T) {
	data := testemail.Emlx(sampleMessage(), testemail.BinaryPlist(t, testemail.SamplePlist()))
	rec := mustParse(t, data)

	if diff := cmp.Diff(wantSamplePlist()["flags"], rec.Flags); diff != "" {
		t.Errorf("Flags mismatch (-want +got):\n%s", diff)
	}
	if rec.Plist["remote-id"] != "789" {
		t.Errorf("remote-id = %v, want 789", rec.Plist["remote-id"])
	}
}

func TestParse_MissingFlags(t *testing.T) {
	data := testemail.Emlx(sampleMessage(), testemail.XMLPlist(t, map[string]any{"remote-id": "1"}))
	rec := mustParse(t, data)

	if diff := cmp.Diff(FlagMap{}, rec.Plist["flags"]); diff != "" {
		t.Errorf("flags mismatch (-want +got):\n%s", diff)
	}
	if rec.RawFlags != 0 {
		t.Errorf("RawFlags = %d, want 0", rec.RawFlags)
	}
}

func TestParse_InvalidPlist(t *testing.T) {
	mime := sampleMessage()
	tests := []struct {
		name  string
		plist string
	}{
		{"garbage", "\x00\x01\x02 this is not a property list <<<"},
		{"truncated XML", `<?xml version="1.0"?><plist version="1.0"><dict><key>flags</key>`},
		{"array at top level", `<?xml version="1.0"?><plist version="1.0"><array><integer>1</integer></array></plist>`},
		{"string at top level", `<?xml version="1.0"?><plist version="1.0"><string>hi</string></plist>`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(testemail.Emlx(mime, []byte(tc.plist)))
			if !errors.Is(err, ErrInvalidPlist) {
				t.Fatalf("err = %v, want ErrInvalidPlist", err)
			}
			var fe *FormatError
			if !errors.As(err, &fe) || fe.Kind != ErrInvalidPlist {
				t.Errorf("errors.As FormatError = %+v", fe)
			}
		})
	}
}

func TestParse_EncodedHeaders(t *testing.T) {
	raw := testemail.NewMessage().
		Subject("=?UTF-8?B?R3LDvMOfZQ==?=").
		Header("X-Latin", "=?ISO-8859-1?Q?Caf=E9?=").
		Header("X-Broken", "=?x-no-such-charset?Q?abc?=").
		Header("Message-ID", "<enc@example.com>").
		Bytes()
	rec := mustParse(t, testemail.Emlx(raw, testemail.XMLPlist(t, map[string]any{})))

	got := make(map[string]string)
	for _, h := range rec.Headers() {
		got[h.Key] = h.Value
	}
	want := map[string]string{
		"Subject":  "Grüße",
		"X-Latin":  "Café",
		"X-Broken": "=?x-no-such-charset?Q?abc?=",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("header %s = %q, want %q", k, got[k], v)
		}
	}
	if rec.MessageID != "<enc@example.com>" {
		t.Errorf("MessageID = %q", rec.MessageID)
	}
	if rec.Message.Subject != "Grüße" {
		t.Errorf("Subject = %q, want %q", rec.Message.Subject, "Grüße")
	}
}

func TestParse_HTMLOnly(t *testing.T) {
	html := "<html><body><p>Rich <b>text</b></p></body></html>"
	raw := testemail.NewMessage().ContentType(`text/html; charset="utf-8"`).Body(html).Bytes()
	rec := mustParse(t, testemail.Emlx(raw, testemail.XMLPlist(t, map[string]any{})))

	if rec.Text() != "" {
		t.Errorf("Text() = %q, want empty", rec.Text())
	}
	if got := strings.TrimSpace(rec.HTML()); got != html {
		t.Errorf("HTML() = %q, want %q", got, html)
	}
}

func TestParse_Alternative(t *testing.T) {
	raw := testemail.NewMessage().
		Body("plain version").
		WithHTML("<p>html version</p>").
		WithAttachment("notes.txt", "text/plain", []byte("attached text")).
		Bytes()
	rec := mustParse(t, testemail.Emlx(raw, testemail.XMLPlist(t, map[string]any{})))

	if got := strings.TrimSpace(rec.Text()); got != "plain version" {
		t.Errorf("Text() = %q, want %q", got, "plain version")
	}
	if got := strings.TrimSpace(rec.HTML()); got != "<p>html version</p>" {
		t.Errorf("HTML() = %q", got)
	}
	if len(rec.Message.Attachments) != 1 || rec.Message.Attachments[0].Filename != "notes.txt" {
		t.Errorf("Attachments = %+v, want notes.txt", rec.Message.Attachments)
	}
}

func TestParse_Dates(t *testing.T) {
	plistDoc := testemail.XMLPlist(t, map[string]any{
		"date-received":    uint64(1581000000),
		"date-sent":        float64(1580999999.5),
		"date-last-viewed": "not a date",
	})
	rec := mustParse(t, testemail.Emlx(sampleMessage(), plistDoc), MetadataOnly())

	if want := time.Unix(1581000000, 0).UTC(); !rec.DateReceived().Equal(want) {
		t.Errorf("DateReceived = %v, want %v", rec.DateReceived(), want)
	}
	if want := time.Unix(1580999999, 5e8).UTC(); !rec.DateSent().Equal(want) {
		t.Errorf("DateSent = %v, want %v", rec.DateSent(), want)
	}
	if !rec.DateLastViewed().IsZero() {
		t.Errorf("DateLastViewed = %v, want zero", rec.DateLastViewed())
	}
}

func TestReadFile(t *testing.T) {
	path := writeEmlx(t, sampleEmlx(t))

	for _, metadataOnly := range []bool{false, true} {
		rec, err := ReadFile(path, WithMetadataOnly(metadataOnly))
		if err != nil {
			t.Fatalf("ReadFile(metadataOnly=%v): %v", metadataOnly, err)
		}
		if diff := cmp.Diff(wantSamplePlist(), rec.Plist); diff != "" {
			t.Errorf("metadataOnly=%v: Plist mismatch (-want +got):\n%s", metadataOnly, diff)
		}
		if (rec.MessageID == "") != metadataOnly {
			t.Errorf("metadataOnly=%v: MessageID = %q", metadataOnly, rec.MessageID)
		}
	}
}

func TestReadFile_NotFound(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.emlx"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want fs.ErrNotExist", err)
	}
	if IsFormatError(err) {
		t.Errorf("missing file reported as format error")
	}
}

func TestReadFile_FormatErrorKeepsKind(t *testing.T) {
	path := writeEmlx(t, []byte("100\nshort"))
	_, err := ReadFile(path)
	if !errors.Is(err, ErrTruncatedMIME) {
		t.Fatalf("err = %v, want ErrTruncatedMIME", err)
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("error %q does not name the file", err)
	}
}

func TestRead_LeavesSourceOpen(t *testing.T) {
	path := writeEmlx(t, sampleEmlx(t))
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if _, err := Read(f, MetadataOnly()); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("source closed after Read: %v", err)
	}
	rec, err := Read(f)
	if err != nil {
		t.Fatalf("second Read: %v", err)
	}
	if rec.MessageID != testMessageID {
		t.Errorf("MessageID = %q", rec.MessageID)
	}
}
