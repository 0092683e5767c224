package xio_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/aptpod/multipath-go/internal/xio"
)

func TestCountReader(t *testing.T) {
	rd := NewCountReader(strings.NewReader("0123456789"))
	buf := make([]byte, 4)
	_, err := io.ReadFull(rd, buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), rd.Count())

	rest, err := io.ReadAll(rd)
	require.NoError(t, err)
	assert.Equal(t, "456789", string(rest))
	assert.Equal(t, uint64(10), rd.Count())

	var nilReader *CountReader
	assert.Zero(t, nilReader.Count())
}

func TestCountWriter(t *testing.T) {
	var buf bytes.Buffer
	wr := NewCountWriter(&buf)
	_, err := wr.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = wr.Write([]byte("de"))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), wr.Count())
	assert.Equal(t, "abcde", buf.String())

	var nilWriter *CountWriter
	assert.Zero(t, nilWriter.Count())
}
