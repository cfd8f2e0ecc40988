package storage

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrCorruptBody is returned when compressed data cannot be decoded.
var ErrCorruptBody = errors.New("corrupt compressed body")

// CompressBody encodes body the way MySQL COMPRESS() does: the uncompressed
// length as 4 little-endian bytes followed by a zlib stream. The empty string
// encodes to an empty slice.
func CompressBody(body string) []byte {
	if body == "" {
		return []byte{}
	}

	var buf bytes.Buffer
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(body)))
	buf.Write(size[:])

	zw := zlib.NewWriter(&buf)
	// writes to a bytes.Buffer cannot fail
	_, _ = io.WriteString(zw, body)
	_ = zw.Close()
	return buf.Bytes()
}

// DecompressBody reverses CompressBody and MySQL COMPRESS().
func DecompressBody(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if len(data) < 5 {
		return "", ErrCorruptBody
	}

	size := binary.LittleEndian.Uint32(data[:4])
	zr, err := zlib.NewReader(bytes.NewReader(data[4:]))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptBody, err)
	}
	defer func() {
		_ = zr.Close()
	}()

	out, err := io.ReadAll(io.LimitReader(zr, int64(size)+1))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptBody, err)
	}
	if uint32(len(out)) != size {
		return "", fmt.Errorf("%w: expected %d bytes, got %d", ErrCorruptBody, size, len(out))
	}
	return string(out), nil
}
