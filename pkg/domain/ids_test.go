package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "permit/pkg/domain-errors"
)

func TestParseUserID(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		raw := uuid.New()
		parsed, err := ParseUserID(raw.String())
		require.NoError(t, err)
		assert.Equal(t, raw.String(), parsed.String())
		assert.False(t, parsed.IsNil())
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ParseUserID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		assert.Contains(t, err.Error(), "user_id is required")
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ParseUserID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("nil uuid rejected", func(t *testing.T) {
		_, err := ParseUserID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestParseGroupID(t *testing.T) {
	_, err := ParseGroupID("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group_id must be a valid UUID")

	parsed, err := ParseGroupID(uuid.New().String())
	require.NoError(t, err)
	assert.False(t, parsed.IsNil())
}

func TestIsNil(t *testing.T) {
	assert.True(t, UserID(uuid.Nil).IsNil())
	assert.False(t, UserID(uuid.New()).IsNil())
	assert.True(t, TemplateID(uuid.Nil).IsNil())
}
