package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetThenGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", time.Minute))

	var got string
	require.NoError(t, m.Get(ctx, "k", &got))
	assert.Equal(t, "v", got)
}

func TestMemory_ExpiredEntryMisses(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", -time.Second))

	var got string
	assert.Error(t, m.Get(ctx, "k", &got))
}

func TestMemory_DeleteRemovesEntry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, m.Delete(ctx, "k"))

	var got string
	assert.Error(t, m.Get(ctx, "k", &got))
}

func TestMemory_MissingKeyMisses(t *testing.T) {
	m := NewMemory()
	var got string
	assert.Error(t, m.Get(context.Background(), "missing", &got))
}
