package smtp

import (
	"bufio"
	"io"
)

// LineReader frames a byte stream into protocol lines. Command lines and
// DATA lines are read through the same buffer so nothing read ahead is lost.
type LineReader struct {
	r *bufio.Reader
}

// NewLineReader wraps r. An existing *bufio.Reader is reused as is.
func NewLineReader(r io.Reader) *LineReader {
	if br, ok := r.(*bufio.Reader); ok {
		return &LineReader{r: br}
	}
	return &LineReader{r: bufio.NewReader(r)}
}

// ReadLine returns the next line without its CRLF or LF terminator.
// It returns io.EOF once the stream is exhausted. A final line without a
// terminator is returned unchanged and io.EOF follows on the next call.
func (lr *LineReader) ReadLine() ([]byte, error) {
	line, err := lr.ReadRawLine()
	if err != nil {
		return nil, err
	}
	return StripNewline(line), nil
}

// ReadRawLine returns the next line with its terminator still attached.
func (lr *LineReader) ReadRawLine() ([]byte, error) {
	line, err := lr.r.ReadBytes('\n')
	switch {
	case err == nil:
		return line, nil
	case err == io.EOF && len(line) > 0:
		// a partial last line is still a line
		return line, nil
	default:
		return nil, err
	}
}

// StripNewline removes a trailing CRLF or LF. Anything else is returned as is.
func StripNewline(line []byte) []byte {
	n := len(line)
	if n == 0 || line[n-1] != '\n' {
		return line
	}
	if n >= 2 && line[n-2] == '\r' {
		return line[:n-2]
	}
	return line[:n-1]
}
