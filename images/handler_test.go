package images

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestGroupIDFromKey(t *testing.T) {
	groupID := uuid.New()

	t.Run("valid key", func(t *testing.T) {
		got, ok := groupIDFromKey("groups/" + groupID.String() + "/object-name")
		assert.True(t, ok)
		assert.Equal(t, groupID, got)
	})

	t.Run("wrong prefix", func(t *testing.T) {
		_, ok := groupIDFromKey("avatars/" + groupID.String() + "/object-name")
		assert.False(t, ok)
	})

	t.Run("not a uuid", func(t *testing.T) {
		_, ok := groupIDFromKey("groups/not-a-uuid/object-name")
		assert.False(t, ok)
	})

	t.Run("missing object segment", func(t *testing.T) {
		_, ok := groupIDFromKey("groups/" + groupID.String())
		assert.False(t, ok)
	})

	t.Run("empty object segment", func(t *testing.T) {
		_, ok := groupIDFromKey("groups/" + groupID.String() + "/")
		assert.False(t, ok)
	})

	t.Run("extra path segments", func(t *testing.T) {
		_, ok := groupIDFromKey("groups/" + groupID.String() + "/a/b")
		assert.False(t, ok)
	})
}
