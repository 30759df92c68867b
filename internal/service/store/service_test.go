package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchtogether/server/internal/repository/connection"
	storeredis "github.com/watchtogether/server/internal/repository/store/redis"
	"github.com/watchtogether/server/pkg/msgbroker"
)

// loopbackBroker delivers published messages to the handler in the
// publishing goroutine, which makes fanout synchronous in tests.
type loopbackBroker struct {
	handlers map[string]msgbroker.MessageHandler
}

func newLoopbackBroker() *loopbackBroker {
	return &loopbackBroker{handlers: make(map[string]msgbroker.MessageHandler)}
}

func (b *loopbackBroker) Publish(_ context.Context, channel string, msg []byte) error {
	if handler, ok := b.handlers[channel]; ok {
		handler(&msgbroker.Message{Channel: channel, Data: msg})
	}
	return nil
}

func (b *loopbackBroker) Subscribe(_ context.Context, channel string, cb msgbroker.MessageHandler) error {
	b.handlers[channel] = cb
	return nil
}

func (b *loopbackBroker) Close() error { return nil }

type fakeConnRepo struct {
	clients       map[*websocket.Conn]string
	subscriptions map[*websocket.Conn][]string
	directives    map[*websocket.Conn][]connection.Directive
	sent          map[*websocket.Conn][]Output
}

func newFakeConnRepo() *fakeConnRepo {
	return &fakeConnRepo{
		clients:       make(map[*websocket.Conn]string),
		subscriptions: make(map[*websocket.Conn][]string),
		directives:    make(map[*websocket.Conn][]connection.Directive),
		sent:          make(map[*websocket.Conn][]Output),
	}
}

func (f *fakeConnRepo) Add(conn *websocket.Conn, clientId string) {
	f.clients[conn] = clientId
}

func (f *fakeConnRepo) Remove(conn *websocket.Conn) error {
	if _, ok := f.clients[conn]; !ok {
		return connection.ErrConnNotFound
	}
	delete(f.clients, conn)
	delete(f.subscriptions, conn)
	delete(f.directives, conn)
	return nil
}

func (f *fakeConnRepo) GetClientId(conn *websocket.Conn) (string, error) {
	clientId, ok := f.clients[conn]
	if !ok {
		return "", connection.ErrConnNotFound
	}
	return clientId, nil
}

func (f *fakeConnRepo) SubscribeAndSend(conn *websocket.Conn, path string, frame func() (any, error)) error {
	f.subscriptions[conn] = append(f.subscriptions[conn], path)

	v, err := frame()
	if err != nil {
		return err
	}
	return f.Send(conn, v)
}

func (f *fakeConnRepo) AddDirective(conn *websocket.Conn, directive connection.Directive) error {
	f.directives[conn] = append(f.directives[conn], directive)
	return nil
}

func (f *fakeConnRepo) PopDirectives(conn *websocket.Conn) []connection.Directive {
	directives := f.directives[conn]
	f.directives[conn] = nil
	return directives
}

func (f *fakeConnRepo) GetAffected(path string) map[*websocket.Conn][]string {
	affected := make(map[*websocket.Conn][]string)
	for conn, subs := range f.subscriptions {
		for _, sub := range subs {
			if sub == path ||
				len(path) > len(sub) && path[:len(sub)+1] == sub+"/" ||
				len(sub) > len(path) && sub[:len(path)+1] == path+"/" {
				affected[conn] = append(affected[conn], sub)
			}
		}
	}
	return affected
}

func (f *fakeConnRepo) Send(conn *websocket.Conn, v any) error {
	f.sent[conn] = append(f.sent[conn], v.(Output))
	return nil
}

func newTestService(t *testing.T) (*service, *fakeConnRepo) {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	connRepo := newFakeConnRepo()
	svc, err := NewService(storeredis.NewRepo(rc, 10*time.Minute), connRepo, newLoopbackBroker(), slog.Default())
	require.NoError(t, err)

	return svc, connRepo
}

func lastUpdate(t *testing.T, connRepo *fakeConnRepo, conn *websocket.Conn) StoreUpdate {
	t.Helper()

	sent := connRepo.sent[conn]
	require.NotEmpty(t, sent)
	out := sent[len(sent)-1]
	require.Equal(t, MessageTypeStoreUpdate, out.Type)

	return out.Payload.(StoreUpdate)
}

func TestSubscribeSendsSnapshot(t *testing.T) {
	svc, connRepo := newTestService(t)
	ctx := context.Background()
	conn := &websocket.Conn{}
	svc.Connect(conn, "u1")

	require.NoError(t, svc.Write(ctx, &WriteParams{
		Path:  "rooms/AAAAAA/videoState",
		Value: json.RawMessage(`{"is_playing":true}`),
	}))

	require.NoError(t, svc.Subscribe(ctx, conn, "rooms/AAAAAA/videoState"))

	update := lastUpdate(t, connRepo, conn)
	assert.Equal(t, "rooms/AAAAAA/videoState", update.Path)
	assert.JSONEq(t, `{"is_playing":true}`, string(update.Value))
}

func TestSubscribeToAbsentPathSendsNull(t *testing.T) {
	svc, connRepo := newTestService(t)
	conn := &websocket.Conn{}
	svc.Connect(conn, "u1")

	require.NoError(t, svc.Subscribe(context.Background(), conn, "rooms/ZZZZZZ"))

	update := lastUpdate(t, connRepo, conn)
	assert.Nil(t, update.Value)
}

func TestWriteFansOutToAncestorSubscriber(t *testing.T) {
	svc, connRepo := newTestService(t)
	ctx := context.Background()
	conn := &websocket.Conn{}
	svc.Connect(conn, "u1")

	require.NoError(t, svc.Subscribe(ctx, conn, "rooms/AAAAAA"))
	require.NoError(t, svc.Write(ctx, &WriteParams{
		Path:  "rooms/AAAAAA/videoState",
		Value: json.RawMessage(`{"is_playing":true}`),
	}))

	update := lastUpdate(t, connRepo, conn)
	assert.Equal(t, "rooms/AAAAAA", update.Path)

	var room map[string]any
	require.NoError(t, json.Unmarshal(update.Value, &room))
	assert.Contains(t, room, "videoState", "subscriber gets the reassembled subtree")
}

func TestWriteFansOutToDescendantSubscriber(t *testing.T) {
	svc, connRepo := newTestService(t)
	ctx := context.Background()
	conn := &websocket.Conn{}
	svc.Connect(conn, "u1")

	require.NoError(t, svc.Subscribe(ctx, conn, "rooms/AAAAAA/videoState"))
	require.NoError(t, svc.Write(ctx, &WriteParams{
		Path:  "rooms/AAAAAA",
		Value: json.RawMessage(`{"videoState":{"is_playing":true},"host_id":"u1"}`),
	}))

	update := lastUpdate(t, connRepo, conn)
	assert.Equal(t, "rooms/AAAAAA/videoState", update.Path)
	assert.JSONEq(t, `{"is_playing":true}`, string(update.Value))
}

func TestUnrelatedPathIsNotPushed(t *testing.T) {
	svc, connRepo := newTestService(t)
	ctx := context.Background()
	conn := &websocket.Conn{}
	svc.Connect(conn, "u1")

	require.NoError(t, svc.Subscribe(ctx, conn, "rooms/AAAAAA"))
	before := len(connRepo.sent[conn])

	require.NoError(t, svc.Write(ctx, &WriteParams{
		Path:  "rooms/BBBBBB/videoState",
		Value: json.RawMessage(`{"is_playing":true}`),
	}))

	assert.Len(t, connRepo.sent[conn], before)
}

func TestAppendGeneratesKey(t *testing.T) {
	svc, connRepo := newTestService(t)
	ctx := context.Background()
	conn := &websocket.Conn{}
	svc.Connect(conn, "u1")
	require.NoError(t, svc.Subscribe(ctx, conn, "rooms/AAAAAA/messages"))

	key, err := svc.Append(ctx, &AppendParams{
		Path:  "rooms/AAAAAA/messages",
		Value: json.RawMessage(`{"text":"hi"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, key)

	update := lastUpdate(t, connRepo, conn)
	assert.Equal(t, "rooms/AAAAAA/messages", update.Path)

	var messages map[string]any
	require.NoError(t, json.Unmarshal(update.Value, &messages))
	assert.Contains(t, messages, key)
}

func TestRemoveFansOutNull(t *testing.T) {
	svc, connRepo := newTestService(t)
	ctx := context.Background()
	conn := &websocket.Conn{}
	svc.Connect(conn, "u1")

	require.NoError(t, svc.Write(ctx, &WriteParams{
		Path:  "rooms/AAAAAA/typing/u2",
		Value: json.RawMessage(`{"name":"Bob"}`),
	}))
	require.NoError(t, svc.Subscribe(ctx, conn, "rooms/AAAAAA/typing/u2"))

	require.NoError(t, svc.Remove(ctx, "rooms/AAAAAA/typing/u2"))

	update := lastUpdate(t, connRepo, conn)
	assert.Nil(t, update.Value)
}

func TestPathValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, path := range []string{
		"",
		"rooms//AAAAAA",
		"rooms/AAA AAA",
		"a/b/c/d/e/f/g/h/i",
		"rooms/AAAAAA/../BBBBBB/x",
	} {
		err := svc.Write(ctx, &WriteParams{Path: path, Value: json.RawMessage(`{}`)})
		assert.ErrorIs(t, err, ErrInvalidPath, "path %q", path)
	}
}

func TestMergeRejectsNonObject(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.Merge(context.Background(), &MergeParams{
		Path:  "rooms/AAAAAA/videoState",
		Value: json.RawMessage(`[1,2,3]`),
	})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestDisconnectAppliesDirectives(t *testing.T) {
	svc, connRepo := newTestService(t)
	ctx := context.Background()
	conn := &websocket.Conn{}
	svc.Connect(conn, "u1")

	require.NoError(t, svc.Write(ctx, &WriteParams{
		Path:  "rooms/AAAAAA/users/u1",
		Value: json.RawMessage(`{"name":"Alice","online":true}`),
	}))
	require.NoError(t, svc.Write(ctx, &WriteParams{
		Path:  "rooms/AAAAAA/typing/u1",
		Value: json.RawMessage(`{"name":"Alice"}`),
	}))

	require.NoError(t, svc.RegisterDisconnect(ctx, conn, "rooms/AAAAAA/users/u1", json.RawMessage(`{"online":false}`)))
	require.NoError(t, svc.RegisterDisconnect(ctx, conn, "rooms/AAAAAA/typing/u1", nil))

	svc.Disconnect(ctx, conn)

	user, err := svc.Read(ctx, "rooms/AAAAAA/users/u1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Alice","online":false}`, string(user))

	_, err = svc.Read(ctx, "rooms/AAAAAA/typing/u1")
	assert.ErrorIs(t, err, ErrDocNotFound)

	_, err = connRepo.GetClientId(conn)
	assert.ErrorIs(t, err, connection.ErrConnNotFound)
}

func TestRegisterDisconnectRejectsNonObject(t *testing.T) {
	svc, _ := newTestService(t)
	conn := &websocket.Conn{}
	svc.Connect(conn, "u1")

	err := svc.RegisterDisconnect(context.Background(), conn, "rooms/AAAAAA/users/u1", json.RawMessage(`"offline"`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
