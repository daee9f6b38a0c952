package email

import (
	"fmt"
	"strings"
	"testing"
)

func TestPlainMessage(t *testing.T) {
	got := string(NewMessage().Body("Hello world.").Bytes())

	want := strings.Join([]string{
		"From: sender@example.com",
		"To: recipient@example.com",
		"Subject: Test Message",
		"Date: Mon, 01 Jan 2024 12:00:00 +0000",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
		"Hello world.",
		"",
	}, "\n")

	if got != want {
		t.Errorf("plain message mismatch.\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestNoSubject(t *testing.T) {
	got := string(NewMessage().NoSubject().Bytes())
	if strings.Contains(got, "Subject:") {
		t.Error("expected no Subject header, but found one")
	}
}

func TestMultipartMessage(t *testing.T) {
	got := string(NewMessage().
		Body("See attached.").
		Boundary("BOUND").
		WithAttachment("test.txt", "text/plain", []byte("file data")).
		Bytes())

	// Check structural elements are present and in order.
	checks := []string{
		"Content-Type: multipart/mixed; boundary=\"BOUND\"",
		"--BOUND\n",
		"See attached.",
		"--BOUND\n",
		`Content-Disposition: attachment; filename="test.txt"`,
		"Content-Transfer-Encoding: base64",
		"--BOUND--",
	}
	for _, c := range checks {
		if !strings.Contains(got, c) {
			t.Errorf("multipart message missing %q\ngot:\n%s", c, got)
		}
	}
}

func TestHeaderOrder(t *testing.T) {
	got := string(NewMessage().
		Header("X-First", "1").
		Header("X-Second", "2").
		Header("X-Third", "3").
		Bytes())

	i1 := strings.Index(got, "X-First: 1")
	i2 := strings.Index(got, "X-Second: 2")
	i3 := strings.Index(got, "X-Third: 3")

	if i1 < 0 || i2 < 0 || i3 < 0 {
		t.Fatalf("missing headers in output:\n%s", got)
	}
	if !(i1 < i2 && i2 < i3) {
		t.Errorf("headers not in insertion order: positions %d, %d, %d", i1, i2, i3)
	}
}

func TestCRLF(t *testing.T) {
	got := NewMessage().CRLF().Bytes()
	for i, b := range got {
		if b == '\n' && (i == 0 || got[i-1] != '\r') {
			t.Fatalf("bare \\n at byte %d; expected all line endings to be \\r\\n", i)
		}
	}
	if !strings.Contains(string(got), "\r\n") {
		t.Error("expected at least one CRLF line ending")
	}
}

func TestHeaderAllowsDuplicates(t *testing.T) {
	got := string(NewMessage().
		Header("Received", "from server1").
		Header("Received", "from server2").
		Bytes())

	if strings.Count(got, "Received:") != 2 {
		t.Errorf("expected two Received headers, got:\n%s", got)
	}
}

func TestHTMLAlternative(t *testing.T) {
	got := string(NewMessage().
		Body("plain").
		WithHTML("<p>rich</p>").
		Boundary("B").
		Bytes())

	checks := []string{
		"MIME-Version: 1.0\n",
		`Content-Type: multipart/alternative; boundary="alt-B"`,
		"--alt-B\n" + `Content-Type: text/plain; charset="utf-8"` + "\n\nplain\n",
		"--alt-B\n" + `Content-Type: text/html; charset="utf-8"` + "\n\n<p>rich</p>\n",
		"--alt-B--\n",
	}
	for _, c := range checks {
		if !strings.Contains(got, c) {
			t.Errorf("alternative message missing %q\ngot:\n%s", c, got)
		}
	}
	if strings.Contains(got, "multipart/mixed") {
		t.Errorf("unexpected multipart/mixed without attachments:\n%s", got)
	}
}

func TestHTMLWithAttachment(t *testing.T) {
	got := string(NewMessage().
		WithHTML("<p>rich</p>").
		Boundary("B").
		WithAttachment("a.bin", "", []byte{1, 2, 3}).
		Bytes())

	mixed := strings.Index(got, `multipart/mixed; boundary="B"`)
	alt := strings.Index(got, `multipart/alternative; boundary="alt-B"`)
	att := strings.Index(got, `filename="a.bin"`)
	if mixed < 0 || alt < 0 || att < 0 {
		t.Fatalf("missing structure in output:\n%s", got)
	}
	if !(mixed < alt && alt < att) {
		t.Errorf("alternative not nested before attachment: positions %d, %d, %d", mixed, alt, att)
	}
	if !strings.Contains(got, "Content-Type: application/octet-stream; name=\"a.bin\"") {
		t.Errorf("default attachment content type missing:\n%s", got)
	}
}

func TestEmlx(t *testing.T) {
	raw := []byte("From: x\n\nbody\n")
	got := Emlx(raw, []byte("<plist/>"))
	want := "14\nFrom: x\n\nbody\n<plist/>"
	if string(got) != want {
		t.Errorf("Emlx = %q, want %q", got, want)
	}
}

func TestXMLPlist(t *testing.T) {
	got := string(XMLPlist(t, SamplePlist()))
	for _, c := range []string{
		"<key>flags</key>",
		"<integer>8623489089</integer>",
		"<key>remote-id</key>",
		"<string>789</string>",
	} {
		if !strings.Contains(got, c) {
			t.Errorf("XML plist missing %q\ngot:\n%s", c, got)
		}
	}
}

func TestMessageBuilderEmlx(t *testing.T) {
	b := NewMessage().Subject("Wrapped")
	raw := b.Bytes()
	got := string(b.Emlx(t, map[string]any{"flags": uint64(1)}))

	prefix := fmt.Sprintf("%d\n%s", len(raw), raw)
	if !strings.HasPrefix(got, prefix) {
		t.Fatalf("container does not start with count line and message:\n%s", got)
	}
	if !strings.Contains(got[len(prefix):], "<key>flags</key>") {
		t.Errorf("plist segment missing flags:\n%s", got[len(prefix):])
	}
}
