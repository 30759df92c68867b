package connection

import (
	"encoding/json"
	"errors"
)

var ErrConnNotFound = errors.New("connection not found")

// Directive is a mutation the server applies on behalf of a client
// when its connection drops. A nil Value removes the subtree, an
// object value is merged into it.
type Directive struct {
	Path  string
	Value json.RawMessage
}
