package inmemory

import (
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/watchtogether/server/internal/repository/connection"
)

type connState struct {
	clientId      string
	subscriptions []string
	directives    []connection.Directive
	writeMu       sync.Mutex
}

// repo tracks live websocket connections, their subscription paths and
// their disconnect directives. Everything lives in process memory and
// dies with the instance, which matches the lifetime of a socket.
type repo struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]*connState

	// swappable for tests; always invoked under the conn's write slot
	send func(conn *websocket.Conn, v any) error
}

func NewRepo() *repo {
	return &repo{
		conns: make(map[*websocket.Conn]*connState),
		send:  (*websocket.Conn).WriteJSON,
	}
}

func (r *repo) Add(conn *websocket.Conn, clientId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn] = &connState{clientId: clientId}
}

func (r *repo) Remove(conn *websocket.Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn]; !ok {
		return connection.ErrConnNotFound
	}
	delete(r.conns, conn)

	return nil
}

func (r *repo) GetClientId(conn *websocket.Conn) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.conns[conn]
	if !ok {
		return "", connection.ErrConnNotFound
	}

	return state.clientId, nil
}

func (r *repo) AddSubscription(conn *websocket.Conn, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.conns[conn]
	if !ok {
		return connection.ErrConnNotFound
	}

	for _, existing := range state.subscriptions {
		if existing == path {
			return nil
		}
	}
	state.subscriptions = append(state.subscriptions, path)

	return nil
}

// SubscribeAndSend registers path for conn, then produces and writes
// the initial frame while still holding the connection's write slot. A
// fanout triggered between registration and the snapshot queues behind
// it instead of slipping in front with a frame the snapshot then
// overwrites.
func (r *repo) SubscribeAndSend(conn *websocket.Conn, path string, frame func() (any, error)) error {
	r.mu.RLock()
	state, ok := r.conns[conn]
	r.mu.RUnlock()
	if !ok {
		return connection.ErrConnNotFound
	}

	state.writeMu.Lock()
	defer state.writeMu.Unlock()

	if err := r.AddSubscription(conn, path); err != nil {
		return err
	}

	v, err := frame()
	if err != nil {
		return err
	}

	return r.send(conn, v)
}

func (r *repo) AddDirective(conn *websocket.Conn, directive connection.Directive) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.conns[conn]
	if !ok {
		return connection.ErrConnNotFound
	}
	state.directives = append(state.directives, directive)

	return nil
}

// PopDirectives returns and clears the disconnect directives of conn.
func (r *repo) PopDirectives(conn *websocket.Conn) []connection.Directive {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.conns[conn]
	if !ok {
		return nil
	}

	directives := state.directives
	state.directives = nil

	return directives
}

// GetAffected returns, per connection, the subscription paths whose
// assembled value can change when path changes. A subscription is
// affected when it equals the changed path, contains it, or sits
// inside the replaced subtree.
func (r *repo) GetAffected(path string) map[*websocket.Conn][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	affected := make(map[*websocket.Conn][]string)
	for conn, state := range r.conns {
		for _, sub := range state.subscriptions {
			if pathsRelated(sub, path) {
				affected[conn] = append(affected[conn], sub)
			}
		}
	}

	return affected
}

// Send serializes writes per connection. gorilla/websocket permits a
// single concurrent writer, and fanout arrives from broker goroutines.
func (r *repo) Send(conn *websocket.Conn, v any) error {
	r.mu.RLock()
	state, ok := r.conns[conn]
	r.mu.RUnlock()
	if !ok {
		return connection.ErrConnNotFound
	}

	state.writeMu.Lock()
	defer state.writeMu.Unlock()

	return r.send(conn, v)
}

func pathsRelated(a, b string) bool {
	return a == b || strings.HasPrefix(b, a+"/") || strings.HasPrefix(a, b+"/")
}
