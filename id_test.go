package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	id := NewID()
	assert.Len(t, id, 32)
	assert.Regexp(t, `^[0-9a-f]{32}$`, id)
	assert.NotEqual(t, id, NewID())
}

func TestParseID(t *testing.T) {
	const hex = "6ba7b8109dad11d180b400c04fd430c8"

	for _, in := range []string{
		"6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		"6BA7B810-9DAD-11D1-80B4-00C04FD430C8",
		hex,
	} {
		got, err := ParseID(in)
		require.NoError(t, err, in)
		assert.Equal(t, hex, got)
	}
}

func TestParseID_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "6ba7b810-9dad-11d1-80b4", "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"} {
		_, err := ParseID(in)
		assert.ErrorIs(t, err, ErrInvalidID, in)
	}
}

func TestCanonicalID(t *testing.T) {
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", CanonicalID("6ba7b8109dad11d180b400c04fd430c8"))
	assert.Equal(t, "not-an-id", CanonicalID("not-an-id"))

	id := NewID()
	back, err := ParseID(CanonicalID(id))
	require.NoError(t, err)
	assert.Equal(t, id, back)
}
