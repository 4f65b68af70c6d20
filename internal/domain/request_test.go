package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryContentIdentity(t *testing.T) {
	t.Parallel()

	data := []byte("%PDF-1.7 fake body")

	t.Run("digest computed, explicit reference kept", func(t *testing.T) {
		t.Parallel()
		c := BinaryContent(data, "uploads/invoice.pdf")
		assert.Equal(t, "uploads/invoice.pdf", c.Reference)
		assert.True(t, strings.HasPrefix(c.Digest, "sha256:"))
	})

	t.Run("digest becomes reference when none given", func(t *testing.T) {
		t.Parallel()
		c := BinaryContent(data, "")
		assert.Equal(t, c.Digest, c.Reference)
		assert.NotEmpty(t, c.Reference)
	})

	t.Run("same bytes same digest", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, BinaryContent(data, "").Digest, BinaryContent(append([]byte{}, data...), "").Digest)
	})
}

// Сырые байты в журнал не пишутся, но персистентная запись обязана
// сохранять ключ и дайджест блоба, чтобы вход был восстановим после рестарта.
func TestBinaryContentSurvivesPersistence(t *testing.T) {
	t.Parallel()

	c := BinaryContent([]byte("%PDF-1.7 fake body"), "")
	raw, err := json.Marshal(c)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "fake body")

	var restored Content
	require.NoError(t, json.Unmarshal(raw, &restored))
	assert.Nil(t, restored.Binary)
	assert.Equal(t, c.Reference, restored.Reference)
	assert.Equal(t, c.Digest, restored.Digest)
	assert.False(t, restored.Empty())
}
