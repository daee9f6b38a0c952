// Package textutil repairs text of unknown encoding found in mail headers.
package textutil

import (
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// fallbackEncodings are tried in order when detection is inconclusive.
var fallbackEncodings = []encoding.Encoding{
	charmap.Windows1252,
	charmap.ISO8859_1,
	charmap.ISO8859_15,
	japanese.ShiftJIS,
	japanese.EUCJP,
	korean.EUCKR,
	simplifiedchinese.GBK,
	traditionalchinese.Big5,
}

// EnsureUTF8 returns s unchanged if it is valid UTF-8. Otherwise it tries
// chardet detection, then the fallback encodings, and finally replaces
// invalid bytes with U+FFFD.
func EnsureUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	data := []byte(s)

	// chardet is unreliable on short inputs; accept weaker guesses there.
	minConfidence := 30
	if len(data) > 50 {
		minConfidence = 50
	}
	if result, err := chardet.NewTextDetector().DetectBest(data); err == nil && result.Confidence >= minConfidence {
		if decoded, ok := decode(GetEncodingByName(result.Charset), data); ok {
			return decoded
		}
	}

	for _, enc := range fallbackEncodings {
		if decoded, ok := decode(enc, data); ok {
			return decoded
		}
	}
	return SanitizeUTF8(s)
}

func decode(enc encoding.Encoding, data []byte) (string, bool) {
	if enc == nil {
		return "", false
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil || !utf8.Valid(out) {
		return "", false
	}
	return string(out), true
}

// SanitizeUTF8 replaces each invalid byte with U+FFFD.
func SanitizeUTF8(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
		} else {
			sb.WriteString(s[i : i+size])
		}
		i += size
	}
	return sb.String()
}

var encodingsByName = map[string]encoding.Encoding{
	"windows-1252": charmap.Windows1252,
	"cp1252":       charmap.Windows1252,
	"iso-8859-1":   charmap.ISO8859_1,
	"latin1":       charmap.ISO8859_1,
	"latin-1":      charmap.ISO8859_1,
	"iso-8859-15":  charmap.ISO8859_15,
	"latin9":       charmap.ISO8859_15,
	"iso-8859-2":   charmap.ISO8859_2,
	"latin2":       charmap.ISO8859_2,
	"shift_jis":    japanese.ShiftJIS,
	"shift-jis":    japanese.ShiftJIS,
	"sjis":         japanese.ShiftJIS,
	"euc-jp":       japanese.EUCJP,
	"eucjp":        japanese.EUCJP,
	"iso-2022-jp":  japanese.ISO2022JP,
	"euc-kr":       korean.EUCKR,
	"euckr":        korean.EUCKR,
	"gb2312":       simplifiedchinese.GBK,
	"gbk":          simplifiedchinese.GBK,
	"gb18030":      simplifiedchinese.GB18030,
	"big5":         traditionalchinese.Big5,
	"big-5":        traditionalchinese.Big5,
	"koi8-r":       charmap.KOI8R,
	"koi8-u":       charmap.KOI8U,
}

// GetEncodingByName returns the encoding for an IANA charset name as
// reported by chardet, matched case-insensitively, or nil.
func GetEncodingByName(name string) encoding.Encoding {
	return encodingsByName[strings.ToLower(name)]
}

// FirstLine returns the first line of s after trimming leading newlines.
func FirstLine(s string) string {
	s = strings.TrimLeft(s, "\r\n")
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		return s[:idx]
	}
	return s
}
