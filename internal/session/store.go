package session

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrAbsent is returned by Store.Read when no value exists at the path.
var ErrAbsent = errors.New("no value at path")

// Store is the realtime key-path store the session runs against. Write
// fully replaces the value at path, Merge shallow-merges into it, Append
// adds a uniquely-keyed child and returns the key. Subscribe invokes fn
// with the current value immediately and again on every change to the
// path or its descendants, in store emission order; subscriptions live
// for the lifetime of the connection. OnDisconnect registers a merge the
// store applies by itself if this client drops uncleanly.
type Store interface {
	Read(ctx context.Context, path string) (json.RawMessage, error)
	Subscribe(ctx context.Context, path string, fn func(value json.RawMessage)) error
	Write(ctx context.Context, path string, value any) error
	Merge(ctx context.Context, path string, value any) error
	Append(ctx context.Context, path string, value any) (string, error)
	Remove(ctx context.Context, path string) error
	OnDisconnect(ctx context.Context, path string, value any) error
}

func roomPath(roomId string) string         { return "rooms/" + roomId }
func videoStatePath(roomId string) string   { return "rooms/" + roomId + "/videoState" }
func messagesPath(roomId string) string     { return "rooms/" + roomId + "/messages" }
func usersPath(roomId string) string        { return "rooms/" + roomId + "/users" }
func userPath(roomId, uid string) string    { return "rooms/" + roomId + "/users/" + uid }
func typingPath(roomId string) string       { return "rooms/" + roomId + "/typing" }
func typingUserPath(roomId, uid string) string { return "rooms/" + roomId + "/typing/" + uid }
