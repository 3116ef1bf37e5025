package qr

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "qr-test-secret-0123456789"

func TestPayload_Deterministic(t *testing.T) {
	g, err := NewGenerator(secret)
	require.NoError(t, err)

	first := g.Payload(101)
	assert.Equal(t, first, g.Payload(101))
	assert.NotEqual(t, first, g.Payload(102))
	assert.Regexp(t, `^T101\.[A-Za-z0-9_-]{22}$`, first)

	other, _ := NewGenerator("another-secret-0123456789")
	assert.NotEqual(t, first, other.Payload(101))
}

func TestVerify(t *testing.T) {
	g, _ := NewGenerator(secret)

	id, err := g.Verify(g.Payload(101))
	require.NoError(t, err)
	assert.Equal(t, int64(101), id)

	payload := g.Payload(101)
	forged := "T102" + payload[len("T101"):]
	for _, bad := range []string{"", "101", "T.abc", "Tabc.def", forged, "T-1.abcdefghijklmnopqrstuv"} {
		_, err := g.Verify(bad)
		assert.True(t, errors.Is(err, ErrInvalidPayload), "%q", bad)
	}
}

func TestPNG(t *testing.T) {
	g, _ := NewGenerator(secret)
	png, err := g.PNG(g.Payload(101))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}
