package store

import "encoding/json"

const (
	UpdatesChannel = "store:updates"

	MessageTypeStoreUpdate = "STORE_UPDATE"
)

// Output is a server-to-client websocket frame.
type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Update is the cross-instance change notification carried over the
// message broker.
type Update struct {
	Path string `json:"path"`
}

// StoreUpdate is the frame pushed to subscribers when the value under
// one of their subscription paths changes. A null value means the
// subtree is gone.
type StoreUpdate struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

type WriteParams struct {
	Path  string
	Value json.RawMessage
}

type MergeParams struct {
	Path  string
	Value json.RawMessage
}

type AppendParams struct {
	Path  string
	Value json.RawMessage
}
