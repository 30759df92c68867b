package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchtogether/server/internal/repository/store"
)

func newTestRepo(t *testing.T) *repo {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	return NewRepo(rc, 10*time.Minute)
}

func getJSON(t *testing.T, r *repo, path string) map[string]any {
	t.Helper()

	raw, err := r.GetSubtree(context.Background(), path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	return doc
}

func TestSetAndGetDoc(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.SetDoc(ctx, "rooms/AAAAAA", json.RawMessage(`{"host_id":"u1","created_at":5}`)))

	doc := getJSON(t, r, "rooms/AAAAAA")
	assert.Equal(t, "u1", doc["host_id"])
	assert.Equal(t, float64(5), doc["created_at"])
}

func TestGetAbsentDoc(t *testing.T) {
	r := newTestRepo(t)

	_, err := r.GetSubtree(context.Background(), "rooms/ZZZZZZ")
	assert.ErrorIs(t, err, store.ErrDocNotFound)
}

func TestSubtreeAssembly(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.SetDoc(ctx, "rooms/AAAAAA/users/u1", json.RawMessage(`{"name":"Alice"}`)))
	require.NoError(t, r.SetDoc(ctx, "rooms/AAAAAA/users/u2", json.RawMessage(`{"name":"Bob"}`)))

	doc := getJSON(t, r, "rooms/AAAAAA/users")
	require.Contains(t, doc, "u1")
	require.Contains(t, doc, "u2")
	assert.Equal(t, "Alice", doc["u1"].(map[string]any)["name"])

	// the room root sees the users branch too
	root := getJSON(t, r, "rooms/AAAAAA")
	assert.Contains(t, root, "users")
}

func TestWriteReplacesDescendants(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.SetDoc(ctx, "rooms/AAAAAA/users/u1", json.RawMessage(`{"name":"Alice"}`)))
	require.NoError(t, r.SetDoc(ctx, "rooms/AAAAAA/users", json.RawMessage(`{"u2":{"name":"Bob"}}`)))

	doc := getJSON(t, r, "rooms/AAAAAA/users")
	assert.NotContains(t, doc, "u1", "write must drop previous descendants")
	assert.Contains(t, doc, "u2")
}

func TestMergeKeepsUnnamedFields(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.SetDoc(ctx, "rooms/AAAAAA/videoState", json.RawMessage(`{"video_id":"abc","is_playing":false,"current_time":10}`)))
	require.NoError(t, r.MergeDoc(ctx, "rooms/AAAAAA/videoState", map[string]json.RawMessage{
		"is_playing": json.RawMessage(`true`),
	}))

	doc := getJSON(t, r, "rooms/AAAAAA/videoState")
	assert.Equal(t, true, doc["is_playing"])
	assert.Equal(t, "abc", doc["video_id"], "merge must not drop other fields")
	assert.Equal(t, float64(10), doc["current_time"])
}

func TestMergeBelowWholeDoc(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	// the room is stored as one document, then a leaf inside it is merged
	require.NoError(t, r.SetDoc(ctx, "rooms/AAAAAA", json.RawMessage(
		`{"host_id":"u1","users":{"u1":{"name":"Alice","online":true}}}`)))
	require.NoError(t, r.MergeDoc(ctx, "rooms/AAAAAA/users/u1", map[string]json.RawMessage{
		"online": json.RawMessage(`false`),
	}))

	doc := getJSON(t, r, "rooms/AAAAAA")
	assert.Equal(t, "u1", doc["host_id"])
	u1 := doc["users"].(map[string]any)["u1"].(map[string]any)
	assert.Equal(t, false, u1["online"])
	assert.Equal(t, "Alice", u1["name"], "nested merge must keep sibling fields")
}

func TestReadBelowWholeDoc(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.SetDoc(ctx, "rooms/AAAAAA", json.RawMessage(
		`{"host_id":"u1","videoState":{"video_id":"abc","is_playing":true}}`)))

	// values written as part of an ancestor document are readable at
	// their own paths
	doc := getJSON(t, r, "rooms/AAAAAA/videoState")
	assert.Equal(t, "abc", doc["video_id"])

	raw, err := r.GetSubtree(ctx, "rooms/AAAAAA/videoState/video_id")
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(raw))

	_, err = r.GetSubtree(ctx, "rooms/AAAAAA/videoState/missing")
	assert.ErrorIs(t, err, store.ErrDocNotFound)

	_, err = r.GetSubtree(ctx, "rooms/BBBBBB/videoState")
	assert.ErrorIs(t, err, store.ErrDocNotFound)
}

func TestAppendChild(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.AppendChild(ctx, "rooms/AAAAAA/messages", "m1", json.RawMessage(`{"text":"hi"}`)))
	require.NoError(t, r.AppendChild(ctx, "rooms/AAAAAA/messages", "m2", json.RawMessage(`{"text":"yo"}`)))

	doc := getJSON(t, r, "rooms/AAAAAA/messages")
	assert.Len(t, doc, 2)
	assert.Equal(t, "hi", doc["m1"].(map[string]any)["text"])
}

func TestRemoveSubtree(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.SetDoc(ctx, "rooms/AAAAAA", json.RawMessage(`{"typing":{"u1":{"name":"Alice"}},"host_id":"u1"}`)))
	require.NoError(t, r.RemoveSubtree(ctx, "rooms/AAAAAA/typing/u1"))

	doc := getJSON(t, r, "rooms/AAAAAA")
	assert.Equal(t, "u1", doc["host_id"])
	if typing, ok := doc["typing"].(map[string]any); ok {
		assert.NotContains(t, typing, "u1")
	}

	// removing again is harmless
	require.NoError(t, r.RemoveSubtree(ctx, "rooms/AAAAAA/typing/u1"))
}

func TestRemoveWholeRoom(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.SetDoc(ctx, "rooms/AAAAAA", json.RawMessage(`{"host_id":"u1"}`)))
	require.NoError(t, r.SetDoc(ctx, "rooms/AAAAAA/users/u1", json.RawMessage(`{"name":"Alice"}`)))
	require.NoError(t, r.RemoveSubtree(ctx, "rooms/AAAAAA"))

	_, err := r.GetSubtree(ctx, "rooms/AAAAAA")
	assert.ErrorIs(t, err, store.ErrDocNotFound)
}
