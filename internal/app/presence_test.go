package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Dispatch/internal/core"
	"github.com/dkeye/Dispatch/internal/domain"
)

func TestPresencePublish(t *testing.T) {
	r := NewRegistry()
	ok1, full, closed := &fakeConn{}, &fakeConn{full: true}, &fakeConn{closed: true}
	r.Attach("ok", ok1, "")
	r.Attach("full", full, "")
	r.Attach("closed", closed, "")
	_, err := r.Register("ok", user("a"))
	require.NoError(t, err)
	require.True(t, r.UpdateLocation("a", domain.Location{Lat: 10, Lng: 20}))

	p := NewPresence(r)
	res := p.Publish(r.Snapshot())

	assert.Equal(t, 1, res.SentTo)
	assert.Equal(t, []core.ConnID{"full"}, res.Dropped)

	msgs := ok1.decoded(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, core.TypeOnlineUsers, msgs[0]["type"])
	users := msgs[0]["users"].([]any)
	require.Len(t, users, 1)
	entry := users[0].(map[string]any)
	assert.Equal(t, "a", entry["userId"])
	assert.Equal(t, 10.0, entry["lat"])
	assert.Equal(t, 20.0, entry["lng"])
}

func TestPresenceOmitsUnknownLocation(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	r.Attach("c1", conn, "")
	_, err := r.Register("c1", user("a"))
	require.NoError(t, err)

	NewPresence(r).Publish(r.Snapshot())
	entry := conn.decoded(t)[0]["users"].([]any)[0].(map[string]any)
	assert.NotContains(t, entry, "lat")
	assert.NotContains(t, entry, "lng")
}
