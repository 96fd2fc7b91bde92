package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIfHeader(t *testing.T) {
	t.Run("UntaggedToken", func(t *testing.T) {
		h, err := parseIfHeader("(<urn:uuid:1234>)")
		require.NoError(t, err)
		require.Len(t, h.lists, 1)

		assert.Equal(t, "", h.lists[0].resourceTag)
		assert.Equal(t, []string{"urn:uuid:1234"}, h.tokens())
	})

	t.Run("TaggedLists", func(t *testing.T) {
		h, err := parseIfHeader(`<http://example.com/a> (<urn:uuid:a> ["etag-a"]) (Not <DAV:no-lock>) <http://example.com/b> (<urn:uuid:b>)`)
		require.NoError(t, err)
		require.Len(t, h.lists, 3)

		assert.Equal(t, "http://example.com/a", h.lists[0].resourceTag)
		assert.Equal(t, "http://example.com/a", h.lists[1].resourceTag)
		assert.Equal(t, "http://example.com/b", h.lists[2].resourceTag)

		assert.Equal(t, `"etag-a"`, h.lists[0].conditions[1].ETag)
		assert.True(t, h.lists[1].conditions[0].Not)

		assert.Equal(t, []string{"urn:uuid:a", "urn:uuid:b"}, h.tokens())
	})

	t.Run("Malformed", func(t *testing.T) {
		for _, raw := range []string{"", "()", "(<urn:uuid:1234>", "<http://example.com>", "(Not)", "token"} {
			_, err := parseIfHeader(raw)
			assert.ErrorIs(t, err, ErrInvalidHeader, raw)
		}
	})
}
