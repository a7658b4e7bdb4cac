package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Dispatch/internal/core"
	"github.com/dkeye/Dispatch/internal/domain"
)

func TestCallsCreateAndIndex(t *testing.T) {
	c := NewCalls()
	s := c.Create("a", "b", "ca", "cb", core.Signal(`{"sdp":"x"}`))
	require.NotEmpty(t, s.ID)
	assert.Equal(t, domain.CallRinging, s.State)
	assert.Equal(t, 1, c.Len())

	got, ok := c.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	for _, pair := range [][2]domain.UserID{{"a", "b"}, {"b", "a"}} {
		found, ok := c.Between(pair[0], pair[1])
		require.True(t, ok)
		assert.Equal(t, s.ID, found.ID)
	}
	_, ok = c.Between("a", "c")
	assert.False(t, ok)

	assert.Len(t, c.OfUser("a"), 1)
	assert.Len(t, c.OfUser("b"), 1)
	assert.Len(t, c.OfConn("ca"), 1)
	assert.Len(t, c.OfConn("cb"), 1)
	assert.Empty(t, c.OfConn("other"))
}

func TestCallsIgnoreTerminalSessions(t *testing.T) {
	c := NewCalls()
	s := c.Create("a", "b", "ca", "cb", nil)
	require.NoError(t, s.Transition(domain.CallRejected))

	_, ok := c.Between("a", "b")
	assert.False(t, ok)
	assert.Empty(t, c.OfUser("a"))
	assert.Empty(t, c.OfConn("cb"))
}

func TestCallsRemove(t *testing.T) {
	c := NewCalls()
	s := c.Create("a", "b", "ca", "cb", nil)
	c.Remove(s.ID)
	c.Remove(s.ID)

	assert.Equal(t, 0, c.Len())
	_, ok := c.Get(s.ID)
	assert.False(t, ok)
	assert.Empty(t, c.byUser)
	assert.Empty(t, c.byConn)
}

func TestCallsRebindTarget(t *testing.T) {
	c := NewCalls()
	s := c.Create("a", "b", "ca", "cb1", nil)
	c.RebindTarget(s.ID, "cb2")

	assert.Equal(t, core.ConnID("cb2"), s.TargetConn)
	assert.Empty(t, c.OfConn("cb1"))
	assert.Len(t, c.OfConn("cb2"), 1)

	c.Remove(s.ID)
	assert.Empty(t, c.byConn)
}

func TestCallsSeveralPerUser(t *testing.T) {
	c := NewCalls()
	c.Create("a", "b", "ca", "cb", nil)
	c.Create("c", "a", "cc", "ca", nil)

	assert.Len(t, c.OfUser("a"), 2)
	assert.Len(t, c.OfConn("ca"), 2)
	ab, ok := c.Between("b", "a")
	require.True(t, ok)
	ca, ok := c.Between("a", "c")
	require.True(t, ok)
	assert.NotEqual(t, ab.ID, ca.ID)
}
