package smtp

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// ErrUnexpectedEndOfData is returned when the stream ends before the "."
// sentinel line. It wraps io.ErrUnexpectedEOF.
var ErrUnexpectedEndOfData = fmt.Errorf("data ended before end of message: %w", io.ErrUnexpectedEOF)

var (
	sentinelCRLF = []byte(".\r\n")
	sentinelLF   = []byte(".\n")
)

// ReadBody reads a DATA payload up to the sentinel line "." (CRLF or LF).
// Lines are kept verbatim with their terminators; no dot-unstuffing is done.
func (lr *LineReader) ReadBody() (string, error) {
	return lr.ReadBodyFunc(nil)
}

// ReadBodyFunc is ReadBody with beforeLine called ahead of every line read,
// e.g. to push a connection deadline forward.
func (lr *LineReader) ReadBodyFunc(beforeLine func()) (string, error) {
	var body strings.Builder
	for {
		if beforeLine != nil {
			beforeLine()
		}
		line, err := lr.ReadRawLine()
		if err == io.EOF {
			return "", ErrUnexpectedEndOfData
		}
		if err != nil {
			return "", err
		}
		if bytes.Equal(line, sentinelCRLF) || bytes.Equal(line, sentinelLF) {
			return body.String(), nil
		}
		body.Write(line)
	}
}
