package objectstore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rebind/ha"
)

func TestCompression_RoundTrip(t *testing.T) {
	inputs := [][]byte{
		{},
		[]byte("x"),
		bytes.Repeat([]byte(`{"id":"E1","type":"entity"}`), 100),
	}
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		for _, in := range inputs {
			frame, err := c.Compress(in)
			require.NoError(t, err)
			out, err := c.Decompress(frame)
			require.NoError(t, err)
			assert.Equal(t, len(in), len(out), c.String())
			assert.True(t, bytes.Equal(in, out), c.String())
		}
	}
}

func TestCompression_ShrinksRepetitiveData(t *testing.T) {
	in := bytes.Repeat([]byte("abcdefgh"), 512)
	for _, c := range []Compression{CompressionLZ4, CompressionZstd} {
		frame, err := c.Compress(in)
		require.NoError(t, err)
		assert.Less(t, len(frame), len(in)/4, c.String())
	}
}

func TestCompression_CorruptFrame(t *testing.T) {
	_, err := CompressionZstd.Decompress([]byte{1})
	assert.Error(t, err)
	_, err = CompressionLZ4.Decompress([]byte{0, 5, 'a'})
	assert.Error(t, err)
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, c)
	assert.Equal(t, ".zst", c.Suffix())

	c, err = ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, c)
	assert.Empty(t, c.Suffix())

	_, err = ParseCompression("gzip")
	assert.Error(t, err)
}

func TestBase_Prepare(t *testing.T) {
	var b Base
	assert.ErrorIs(t, b.CheckWritable(), ErrNotPrepared)

	assert.False(t, b.Prepare(ha.PersistDisabled, ha.HADisabled))
	assert.NoError(t, b.CheckWritable())
	assert.False(t, b.IsShared())

	assert.True(t, b.Prepare(ha.PersistClean, ha.HAAuto))
	assert.True(t, b.IsShared())
	assert.False(t, b.Prepare(ha.PersistClean, ha.HAHotStandby))
}
