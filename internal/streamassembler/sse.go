package streamassembler

import (
	"bufio"
	"io"
	"strings"
)

// DoneMarker is the literal terminator line's payload, per §6.
const DoneMarker = "[DONE]"

// LineReader frames the upstream byte stream into successive
// "data: <json>" payloads, grounded on the teacher's SSEParser
// (pkg/providerutils/streaming/sse.go) but narrowed to the literal
// data-line-plus-terminator wire format this spec's aggregator uses,
// rather than full multi-field SSE (event:/id:/retry:).
type LineReader struct {
	scanner *bufio.Scanner
}

func NewLineReader(r io.Reader) *LineReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &LineReader{scanner: s}
}

// Next returns the next data payload (without the "data: " prefix), or
// io.EOF when the stream ends without a terminator, or (payload,
// true, nil) when the terminator itself is read.
func (l *LineReader) Next() (payload string, done bool, err error) {
	for l.scanner.Scan() {
		line := l.scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == DoneMarker {
			return data, true, nil
		}
		return data, false, nil
	}
	if err := l.scanner.Err(); err != nil {
		return "", false, err
	}
	return "", false, io.EOF
}
