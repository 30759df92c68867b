package wsrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
)

var ErrUnknownMessageType = errors.New("unknown message type")

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type HandlerFunc func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error

type Middleware func(next HandlerFunc) HandlerFunc

// Sender writes a frame to conn. Routers default to conn.WriteJSON;
// callers that serialize writes elsewhere should install their own.
type Sender func(conn *websocket.Conn, v any) error

type WSRouter struct {
	routes      map[string]HandlerFunc
	middlewares []Middleware
	send        Sender
}

func New() *WSRouter {
	return &WSRouter{
		routes: make(map[string]HandlerFunc),
		send: func(conn *websocket.Conn, v any) error {
			return conn.WriteJSON(v)
		},
	}
}

func (r *WSRouter) SetSender(send Sender) {
	r.send = send
}

// Use appends mw to the chain applied to every handler. Must be called
// before the router starts serving connections.
func (r *WSRouter) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *WSRouter) Handle(messageType string, handler HandlerFunc) {
	r.routes[messageType] = handler
}

// ServeConn reads messages from conn until the read fails and dispatches
// each to the registered handler. Handler errors are returned to the peer
// as error frames without tearing the connection down.
func (r *WSRouter) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		if err := r.dispatch(ctx, conn, &msg); err != nil {
			r.send(conn, map[string]any{
				"type":    "ERROR",
				"payload": map[string]string{"message": err.Error()},
			})
		}
	}
}

func (r *WSRouter) dispatch(ctx context.Context, conn *websocket.Conn, msg *message) error {
	handler, exists := r.routes[msg.Type]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownMessageType, msg.Type)
	}

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	ctx = context.WithValue(ctx, messageTypeKey, msg.Type)

	return handler(ctx, conn, msg.Payload)
}
