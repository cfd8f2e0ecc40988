package storage

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressBodyRoundTrip(t *testing.T) {
	bodies := []string{
		"hello\r\n",
		"Subject: hi\r\n\r\n..leading dot kept\r\n",
		strings.Repeat("void ", 10000),
	}
	for _, body := range bodies {
		data := CompressBody(body)
		assert.Equal(t, uint32(len(body)), binary.LittleEndian.Uint32(data[:4]))

		got, err := DecompressBody(data)
		require.NoError(t, err)
		assert.Equal(t, body, got)
	}
}

func TestCompressBodyEmpty(t *testing.T) {
	assert.Empty(t, CompressBody(""))

	got, err := DecompressBody(nil)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestDecompressBodyCorrupt(t *testing.T) {
	_, err := DecompressBody([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorruptBody)

	_, err = DecompressBody([]byte{5, 0, 0, 0, 'n', 'o', 'p', 'e'})
	assert.ErrorIs(t, err, ErrCorruptBody)

	data := CompressBody("hello")
	binary.LittleEndian.PutUint32(data[:4], 3)
	_, err = DecompressBody(data)
	assert.ErrorIs(t, err, ErrCorruptBody)
}
