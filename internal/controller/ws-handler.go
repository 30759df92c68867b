package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/watchtogether/server/internal/service/store"
	"github.com/watchtogether/server/pkg/ctxlogger"
	"github.com/watchtogether/server/pkg/rest"
	"github.com/watchtogether/server/pkg/wsrouter"
)

// serveWS authenticates the ?token= credential, upgrades the request
// and pumps messages until the connection drops. The disconnect
// directives run after the read loop ends, whatever the reason.
func (c *controller) serveWS(w http.ResponseWriter, r *http.Request) {
	userId, err := c.authService.ParseToken(r.URL.Query().Get("token"))
	if err != nil {
		rest.WriteJSON(w, http.StatusUnauthorized, rest.Envelope{"error": rest.Envelope{
			"code":    "invalid_credential",
			"message": "invalid credential",
		}})
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to upgrade connection", "error", err)
		return
	}

	c.storeService.Connect(conn, userId)

	ctx := ctxlogger.AppendCtx(context.Background(), slog.String("client_id", userId))
	ctx = context.WithValue(ctx, clientIdCtxKey, userId)

	c.logger.InfoContext(ctx, "client connected", "remote_addr", r.RemoteAddr)

	if err := c.getWSRouter().ServeConn(ctx, conn); err != nil {
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.logger.InfoContext(ctx, "connection closed", "error", err)
		}
	}

	c.storeService.Disconnect(ctx, conn)
	conn.Close()

	c.logger.InfoContext(ctx, "client disconnected")
}

func (c *controller) wsLoggingMw(next wsrouter.HandlerFunc) wsrouter.HandlerFunc {
	return func(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
		c.logger.DebugContext(ctx, "message", "type", wsrouter.GetMessageTypeFromCtx(ctx))
		return next(ctx, conn, payload)
	}
}

func (c *controller) handleAlive(ctx context.Context, conn *websocket.Conn, _ json.RawMessage) error {
	return nil
}

type subscribeInput struct {
	Path string `json:"path"`
}

func (c *controller) handleSubscribe(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input subscribeInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	return c.storeService.Subscribe(ctx, conn, input.Path)
}

type readInput struct {
	RequestId string `json:"request_id"`
	Path      string `json:"path"`
}

type readResult struct {
	RequestId string          `json:"request_id"`
	Path      string          `json:"path"`
	Value     json.RawMessage `json:"value"`
}

func (c *controller) handleRead(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input readInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	value, err := c.storeService.Read(ctx, input.Path)
	if err != nil && !errors.Is(err, store.ErrDocNotFound) {
		return fmt.Errorf("failed to read: %w", err)
	}

	return c.storeService.Send(conn, store.Output{
		Type: "READ_RESULT",
		Payload: readResult{
			RequestId: input.RequestId,
			Path:      input.Path,
			Value:     value,
		},
	})
}

type writeInput struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

func (c *controller) handleWrite(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input writeInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	if err := c.storeService.Write(ctx, &store.WriteParams{
		Path:  input.Path,
		Value: input.Value,
	}); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}

	return nil
}

func (c *controller) handleMerge(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input writeInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	if err := c.storeService.Merge(ctx, &store.MergeParams{
		Path:  input.Path,
		Value: input.Value,
	}); err != nil {
		return fmt.Errorf("failed to merge: %w", err)
	}

	return nil
}

type appendInput struct {
	RequestId string          `json:"request_id"`
	Path      string          `json:"path"`
	Value     json.RawMessage `json:"value"`
}

type appendResult struct {
	RequestId string `json:"request_id"`
	Path      string `json:"path"`
	Key       string `json:"key"`
}

func (c *controller) handleAppend(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input appendInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	key, err := c.storeService.Append(ctx, &store.AppendParams{
		Path:  input.Path,
		Value: input.Value,
	})
	if err != nil {
		return fmt.Errorf("failed to append: %w", err)
	}

	return c.storeService.Send(conn, store.Output{
		Type: "APPEND_RESULT",
		Payload: appendResult{
			RequestId: input.RequestId,
			Path:      input.Path,
			Key:       key,
		},
	})
}

type removeInput struct {
	Path string `json:"path"`
}

func (c *controller) handleRemove(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input removeInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	if err := c.storeService.Remove(ctx, input.Path); err != nil {
		return fmt.Errorf("failed to remove: %w", err)
	}

	return nil
}

type onDisconnectInput struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

func (c *controller) handleOnDisconnect(ctx context.Context, conn *websocket.Conn, payload json.RawMessage) error {
	var input onDisconnectInput
	if err := json.Unmarshal(payload, &input); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	if err := c.storeService.RegisterDisconnect(ctx, conn, input.Path, input.Value); err != nil {
		return fmt.Errorf("failed to register disconnect: %w", err)
	}

	return nil
}
