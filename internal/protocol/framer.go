package protocol

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	headerSeparator     = "\r\n\r\n"
	contentLengthHeader = "content-length"
)

// Framer reassembles Content-Length framed payloads from arbitrary byte
// chunks. It is not safe for concurrent use; the session feeds it from a
// single read loop, which also gives the strict arrival-order guarantee.
type Framer struct {
	buf []byte
}

// Push appends a chunk to the internal buffer and returns every payload
// that is now complete, in stream order. Partial frames stay buffered
// until the header and the full declared payload length are available.
// Header blocks without a parseable Content-Length are skipped so a
// single bad header cannot wedge the stream.
func (f *Framer) Push(chunk []byte) [][]byte {
	f.buf = append(f.buf, chunk...)
	var payloads [][]byte
	for {
		sep := bytes.Index(f.buf, []byte(headerSeparator))
		if sep < 0 {
			return payloads
		}
		length, ok := parseContentLength(f.buf[:sep])
		if !ok {
			// Resync past the malformed header block.
			f.buf = f.buf[sep+len(headerSeparator):]
			continue
		}
		start := sep + len(headerSeparator)
		if len(f.buf) < start+length {
			return payloads
		}
		payload := make([]byte, length)
		copy(payload, f.buf[start:start+length])
		payloads = append(payloads, payload)
		f.buf = f.buf[start+length:]
	}
}

// Buffered returns the number of bytes waiting for frame completion.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// parseContentLength scans a header block for the Content-Length header.
// Extra headers before the separator are tolerated and ignored.
func parseContentLength(header []byte) (int, bool) {
	for _, line := range strings.Split(string(header), "\r\n") {
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		if strings.ToLower(strings.TrimSpace(name)) != contentLengthHeader {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// WriteFrame writes one framed payload. Callers serialize writes; the
// session guards this with its writer mutex.
func WriteFrame(w io.Writer, payload []byte) error {
	header := fmt.Sprintf("Content-Length: %d%s", len(payload), headerSeparator)
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}
