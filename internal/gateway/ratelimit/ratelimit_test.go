package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmit_AllowsUpToCapacityThenRejects(t *testing.T) {
	l := New()
	fixed := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return fixed }

	d1 := l.Admit("key-a", 2, 60)
	d2 := l.Admit("key-a", 2, 60)
	d3 := l.Admit("key-a", 2, 60)

	assert.True(t, d1.Allowed)
	assert.True(t, d2.Allowed)
	require.False(t, d3.Allowed)
	assert.Equal(t, 0, d3.Remaining)
	assert.Equal(t, fixed.Unix()+30, d3.ResetEpoch)
}

func TestAdmit_RefillsOverTime(t *testing.T) {
	l := New()
	start := time.Unix(1_700_000_000, 0)
	cur := start
	l.now = func() time.Time { return cur }

	d := l.Admit("key-b", 2, 60)
	require.True(t, d.Allowed)
	d = l.Admit("key-b", 2, 60)
	require.True(t, d.Allowed)
	d = l.Admit("key-b", 2, 60)
	require.False(t, d.Allowed)

	// advance half the window: refill rate is capacity/window, so 30s
	// at 2/60 tokens-per-second refills exactly one token.
	cur = start.Add(30 * time.Second)
	d = l.Admit("key-b", 2, 60)
	assert.True(t, d.Allowed)
}

func TestAdmit_DistinctKeysIndependent(t *testing.T) {
	l := New()
	fixed := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return fixed }

	l.Admit("key-c", 1, 60)
	d := l.Admit("key-c", 1, 60)
	require.False(t, d.Allowed)

	other := l.Admit("key-d", 1, 60)
	assert.True(t, other.Allowed)
}

func TestReap_EvictsIdleBuckets(t *testing.T) {
	l := New()
	start := time.Unix(1_700_000_000, 0)
	cur := start
	l.now = func() time.Time { return cur }

	l.Admit("key-e", 10, 60)
	s := l.shardFor("key-e")
	require.Contains(t, s.buckets, "key-e")

	cur = start.Add(601 * time.Second) // > 10 * window(60s)
	l.now = func() time.Time { return cur }
	l.Reap()

	assert.NotContains(t, s.buckets, "key-e")
}
