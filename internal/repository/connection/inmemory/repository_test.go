package inmemory

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchtogether/server/internal/repository/connection"
)

func TestAddAndRemove(t *testing.T) {
	r := NewRepo()
	conn := &websocket.Conn{}

	r.Add(conn, "u1")

	clientId, err := r.GetClientId(conn)
	require.NoError(t, err)
	assert.Equal(t, "u1", clientId)

	require.NoError(t, r.Remove(conn))
	_, err = r.GetClientId(conn)
	assert.ErrorIs(t, err, connection.ErrConnNotFound)
	assert.ErrorIs(t, r.Remove(conn), connection.ErrConnNotFound)
}

func TestSubscriptionsDeduplicated(t *testing.T) {
	r := NewRepo()
	conn := &websocket.Conn{}
	r.Add(conn, "u1")

	require.NoError(t, r.AddSubscription(conn, "rooms/AAAAAA"))
	require.NoError(t, r.AddSubscription(conn, "rooms/AAAAAA"))

	affected := r.GetAffected("rooms/AAAAAA")
	assert.Len(t, affected[conn], 1)
}

func TestGetAffected(t *testing.T) {
	r := NewRepo()
	ancestor := &websocket.Conn{}
	descendant := &websocket.Conn{}
	unrelated := &websocket.Conn{}
	r.Add(ancestor, "u1")
	r.Add(descendant, "u2")
	r.Add(unrelated, "u3")

	require.NoError(t, r.AddSubscription(ancestor, "rooms/AAAAAA"))
	require.NoError(t, r.AddSubscription(descendant, "rooms/AAAAAA/videoState/nested"))
	require.NoError(t, r.AddSubscription(unrelated, "rooms/BBBBBB"))

	affected := r.GetAffected("rooms/AAAAAA/videoState")
	assert.Contains(t, affected, ancestor, "a change below the subscription affects it")
	assert.Contains(t, affected, descendant, "replacing an ancestor affects the subscription")
	assert.NotContains(t, affected, unrelated)

	// a sibling with a shared name prefix is not related
	require.NoError(t, r.AddSubscription(unrelated, "rooms/AAAAAA/video"))
	affected = r.GetAffected("rooms/AAAAAA/videoState")
	assert.NotContains(t, affected, unrelated)
}

func TestSubscribeSnapshotHoldsWriteSlot(t *testing.T) {
	r := NewRepo()
	conn := &websocket.Conn{}
	r.Add(conn, "u1")

	// appends are serialized by the conn's write slot
	var frames []string
	r.send = func(_ *websocket.Conn, v any) error {
		frames = append(frames, v.(string))
		return nil
	}

	fanout := make(chan error, 1)
	require.NoError(t, r.SubscribeAndSend(conn, "rooms/AAAAAA", func() (any, error) {
		go func() { fanout <- r.Send(conn, "newer") }()
		time.Sleep(20 * time.Millisecond)
		return "snapshot", nil
	}))
	require.NoError(t, <-fanout)

	assert.Equal(t, []string{"snapshot", "newer"}, frames,
		"a frame racing the subscription must queue behind the snapshot")

	affected := r.GetAffected("rooms/AAAAAA")
	assert.Len(t, affected[conn], 1)
}

func TestDirectives(t *testing.T) {
	r := NewRepo()
	conn := &websocket.Conn{}
	r.Add(conn, "u1")

	require.NoError(t, r.AddDirective(conn, connection.Directive{
		Path:  "rooms/AAAAAA/users/u1",
		Value: json.RawMessage(`{"online":false}`),
	}))
	require.NoError(t, r.AddDirective(conn, connection.Directive{
		Path: "rooms/AAAAAA/typing/u1",
	}))

	directives := r.PopDirectives(conn)
	require.Len(t, directives, 2)
	assert.Equal(t, "rooms/AAAAAA/users/u1", directives[0].Path)
	assert.Nil(t, directives[1].Value)

	assert.Empty(t, r.PopDirectives(conn), "pop clears the queue")
}
