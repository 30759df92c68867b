// Package wsstore implements the session store over the server's
// websocket protocol. One goroutine owns the read side and delivers
// subscription callbacks sequentially, which is the ordering contract
// the session relies on.
package wsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/watchtogether/server/internal/session"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type storeUpdate struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

type readResult struct {
	RequestId string          `json:"request_id"`
	Path      string          `json:"path"`
	Value     json.RawMessage `json:"value"`
}

type appendResult struct {
	RequestId string `json:"request_id"`
	Key       string `json:"key"`
}

type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu            sync.Mutex
	pendingReads  map[string]chan json.RawMessage
	pendingAppend map[string]chan string
	subs          map[string][]func(value json.RawMessage)

	done chan struct{}
}

// Dial connects to serverURL (ws:// or wss://) authenticating with
// token and starts the read loop.
func Dial(ctx context.Context, serverURL, token string, logger *slog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, serverURL+"/ws?token="+token, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	c := &Client{
		conn:          conn,
		logger:        logger,
		pendingReads:  make(map[string]chan json.RawMessage),
		pendingAppend: make(map[string]chan string),
		subs:          make(map[string][]func(value json.RawMessage)),
		done:          make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Done closes when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		var msg frame
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("connection closed", "error", err)
			}
			return
		}

		switch msg.Type {
		case "STORE_UPDATE":
			var update storeUpdate
			if err := json.Unmarshal(msg.Payload, &update); err != nil {
				c.logger.Warn("failed to decode store update", "error", err)
				continue
			}

			c.mu.Lock()
			callbacks := append(([]func(json.RawMessage))(nil), c.subs[update.Path]...)
			c.mu.Unlock()

			for _, fn := range callbacks {
				fn(update.Value)
			}

		case "READ_RESULT":
			var result readResult
			if err := json.Unmarshal(msg.Payload, &result); err != nil {
				c.logger.Warn("failed to decode read result", "error", err)
				continue
			}

			c.mu.Lock()
			ch, ok := c.pendingReads[result.RequestId]
			delete(c.pendingReads, result.RequestId)
			c.mu.Unlock()
			if ok {
				ch <- result.Value
			}

		case "APPEND_RESULT":
			var result appendResult
			if err := json.Unmarshal(msg.Payload, &result); err != nil {
				c.logger.Warn("failed to decode append result", "error", err)
				continue
			}

			c.mu.Lock()
			ch, ok := c.pendingAppend[result.RequestId]
			delete(c.pendingAppend, result.RequestId)
			c.mu.Unlock()
			if ok {
				ch <- result.Key
			}

		case "ERROR":
			c.logger.Warn("server error", "payload", string(msg.Payload))

		default:
			c.logger.Warn("unknown message type", "type", msg.Type)
		}
	}
}

func (c *Client) send(messageType string, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteJSON(map[string]any{
		"type":    messageType,
		"payload": payload,
	}); err != nil {
		return fmt.Errorf("failed to send %s: %w", messageType, err)
	}

	return nil
}

func (c *Client) Read(ctx context.Context, path string) (json.RawMessage, error) {
	requestId := uuid.NewString()
	ch := make(chan json.RawMessage, 1)

	c.mu.Lock()
	c.pendingReads[requestId] = ch
	c.mu.Unlock()

	if err := c.send("READ", map[string]any{
		"request_id": requestId,
		"path":       path,
	}); err != nil {
		c.mu.Lock()
		delete(c.pendingReads, requestId)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case value := <-ch:
		if value == nil || string(value) == "null" {
			return nil, session.ErrAbsent
		}
		return value, nil
	case <-c.done:
		return nil, fmt.Errorf("connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe registers fn for path. The server pushes the current value
// immediately, so fn fires once before this call's update stream.
func (c *Client) Subscribe(ctx context.Context, path string, fn func(value json.RawMessage)) error {
	c.mu.Lock()
	c.subs[path] = append(c.subs[path], fn)
	c.mu.Unlock()

	return c.send("SUBSCRIBE", map[string]any{"path": path})
}

func (c *Client) Write(ctx context.Context, path string, value any) error {
	return c.send("WRITE", map[string]any{"path": path, "value": value})
}

func (c *Client) Merge(ctx context.Context, path string, value any) error {
	return c.send("MERGE", map[string]any{"path": path, "value": value})
}

func (c *Client) Append(ctx context.Context, path string, value any) (string, error) {
	requestId := uuid.NewString()
	ch := make(chan string, 1)

	c.mu.Lock()
	c.pendingAppend[requestId] = ch
	c.mu.Unlock()

	if err := c.send("APPEND", map[string]any{
		"request_id": requestId,
		"path":       path,
		"value":      value,
	}); err != nil {
		c.mu.Lock()
		delete(c.pendingAppend, requestId)
		c.mu.Unlock()
		return "", err
	}

	select {
	case key := <-ch:
		return key, nil
	case <-c.done:
		return "", fmt.Errorf("connection closed")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Client) Remove(ctx context.Context, path string) error {
	return c.send("REMOVE", map[string]any{"path": path})
}

func (c *Client) OnDisconnect(ctx context.Context, path string, value any) error {
	return c.send("ON_DISCONNECT", map[string]any{"path": path, "value": value})
}
