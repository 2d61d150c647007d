package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventIDIsUniqueAndSortableLength(t *testing.T) {
	a, err := newEventID()
	require.NoError(t, err)
	b, err := newEventID()
	require.NoError(t, err)

	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}
