package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("segment-state "), 512)
	random := []byte{0x01, 0xfe, 0x33, 0x7a}

	for _, typ := range []Type{None, LZ4, ZSTD} {
		for name, data := range map[string][]byte{"compressible": compressible, "tiny": random, "empty": {}} {
			t.Run(typ.String()+"/"+name, func(t *testing.T) {
				frame, err := Encode(data, typ)
				require.NoError(t, err)

				out, err := Decode(frame)
				require.NoError(t, err)
				assert.Equal(t, len(data), len(out))
				assert.True(t, bytes.Equal(data, out))
			})
		}
	}

	frame, err := Encode(compressible, ZSTD)
	require.NoError(t, err)
	assert.Less(t, len(frame), len(compressible))
}

func TestDecodeDetectsCorruption(t *testing.T) {
	frame, err := Encode(bytes.Repeat([]byte("abc"), 100), LZ4)
	require.NoError(t, err)

	flipped := bytes.Clone(frame)
	flipped[len(flipped)-1] ^= 0xff
	_, err = Decode(flipped)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Decode([]byte("nope"))
	assert.ErrorIs(t, err, ErrCorrupt)

	plain, err := Encode([]byte("hello"), None)
	require.NoError(t, err)
	plain[headerSize] = 'j'
	_, err = Decode(plain)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{None, LZ4, ZSTD} {
		got, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseType("snappy")
	assert.Error(t, err)
}
