// Package emlx parses Apple Mail .emlx files and discovers mailbox directories.
//
// The .emlx format stores one message per file:
//   - Line 1: decimal byte count of the raw MIME content
//   - Next N bytes: raw RFC 5322 MIME message
//   - Remainder: XML (or binary) plist with Apple Mail metadata,
//     including the packed message flags decoded by DecodeFlags
package emlx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxByteCountLine bounds the first line so that a non-emlx file is
// rejected without scanning it for a newline.
const maxByteCountLine = 32

// Container holds the three raw segments of an .emlx file.
type Container struct {
	// ByteCount is the MIME length declared on the first line.
	ByteCount int64

	// MIME is the raw message. Nil when the container was read in
	// metadata-only mode.
	MIME []byte

	// Plist is everything after the MIME segment. Never empty.
	Plist []byte
}

// ReadContainer splits r into its byte count, MIME and plist segments.
//
// With metadataOnly set the MIME segment is skipped by seeking forward
// instead of being read. r is only ever read or seeked forward, and it
// is never closed.
func ReadContainer(r io.ReadSeeker, metadataOnly bool) (*Container, error) {
	byteCount, err := readByteCount(r)
	if err != nil {
		return nil, err
	}

	c := &Container{ByteCount: byteCount}
	if metadataOnly {
		if _, err := r.Seek(byteCount, io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("emlx: skip %d MIME bytes: %w", byteCount, err)
		}
	} else {
		c.MIME, err = readMIME(r, byteCount)
		if err != nil {
			return nil, err
		}
	}

	c.Plist, err = io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("emlx: read plist: %w", err)
	}
	if len(c.Plist) == 0 {
		return nil, formatErr(ErrEmptyPlist, nil, "no bytes after %d-byte MIME segment", byteCount)
	}
	return c, nil
}

// readByteCount consumes the first line one byte at a time so that the
// source position ends exactly on the first MIME byte.
func readByteCount(r io.Reader) (int64, error) {
	var (
		line [maxByteCountLine]byte
		b    [1]byte
		n    int
	)
	for {
		_, err := io.ReadFull(r, b[:])
		if errors.Is(err, io.EOF) {
			if n == 0 {
				return 0, formatErr(ErrInvalidByteCount, nil, "empty file")
			}
			return 0, formatErr(ErrInvalidByteCount, nil, "no newline after byte count %q", line[:n])
		}
		if err != nil {
			return 0, fmt.Errorf("emlx: read byte count: %w", err)
		}
		if b[0] == '\n' {
			break
		}
		if n == len(line) {
			return 0, formatErr(ErrInvalidByteCount, nil, "first line longer than %d bytes", maxByteCountLine)
		}
		line[n] = b[0]
		n++
	}

	countStr := strings.TrimSpace(string(line[:n]))
	// ParseUint rejects signs, so "-1" and "+1" are both invalid.
	count, err := strconv.ParseUint(countStr, 10, 63)
	if err != nil {
		return 0, formatErr(ErrInvalidByteCount, err, "%q", countStr)
	}
	return int64(count), nil
}

// readMIME reads exactly n bytes. The buffer grows with the data actually
// read, so a bogus huge count fails with ErrTruncatedMIME rather than a
// giant allocation.
func readMIME(r io.Reader, n int64) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(min(n, 64<<10)))
	got, err := io.CopyN(&buf, r, n)
	if errors.Is(err, io.EOF) {
		return nil, formatErr(ErrTruncatedMIME, nil, "byte count %d exceeds available data (%d bytes)", n, got)
	}
	if err != nil {
		return nil, fmt.Errorf("emlx: read MIME: %w", err)
	}
	return buf.Bytes(), nil
}
