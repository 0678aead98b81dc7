package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string    `json:"name"`
	Vector []float32 `json:"vector"`
}

func TestCodecsAgree(t *testing.T) {
	in := sample{Name: "a", Vector: []float32{0.1, 1.0 / 3.0, -2.5e-8}}

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			b, err := c.Marshal(in)
			require.NoError(t, err)

			var out sample
			require.NoError(t, c.Unmarshal(b, &out))
			assert.Equal(t, in, out)

			byName, ok := ByName(c.Name())
			require.True(t, ok)
			assert.Equal(t, c, byName)
		})
	}

	_, ok := ByName("msgpack")
	assert.False(t, ok)
}
