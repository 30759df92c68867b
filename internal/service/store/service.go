package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/watchtogether/server/internal/repository/connection"
	storerepo "github.com/watchtogether/server/internal/repository/store"
	"github.com/watchtogether/server/pkg/msgbroker"
)

const (
	maxPathLength   = 200
	maxPathSegments = 8
)

var pathSegmentRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type iDocRepo interface {
	SetDoc(ctx context.Context, path string, value json.RawMessage) error
	MergeDoc(ctx context.Context, path string, fields map[string]json.RawMessage) error
	AppendChild(ctx context.Context, path, key string, value json.RawMessage) error
	RemoveSubtree(ctx context.Context, path string) error
	GetSubtree(ctx context.Context, path string) (json.RawMessage, error)
}

type iConnRepo interface {
	Add(conn *websocket.Conn, clientId string)
	Remove(conn *websocket.Conn) error
	GetClientId(conn *websocket.Conn) (string, error)
	SubscribeAndSend(conn *websocket.Conn, path string, frame func() (any, error)) error
	AddDirective(conn *websocket.Conn, directive connection.Directive) error
	PopDirectives(conn *websocket.Conn) []connection.Directive
	GetAffected(path string) map[*websocket.Conn][]string
	Send(conn *websocket.Conn, v any) error
}

// service is the realtime document store. Mutations land in the doc
// repo, a change notification goes over the broker, and every instance
// refreshes the subscriptions the change can affect. The publishing
// instance receives its own notification, so local and remote fanout
// share one code path.
type service struct {
	docRepo  iDocRepo
	connRepo iConnRepo
	broker   msgbroker.MessageBroker
	logger   *slog.Logger

	generateId func() string
}

func NewService(docRepo iDocRepo, connRepo iConnRepo, broker msgbroker.MessageBroker, logger *slog.Logger) (*service, error) {
	s := &service{
		docRepo:    docRepo,
		connRepo:   connRepo,
		broker:     broker,
		logger:     logger,
		generateId: uuid.NewString,
	}

	if err := broker.Subscribe(context.Background(), UpdatesChannel, s.handleUpdate); err != nil {
		return nil, fmt.Errorf("failed to subscribe to updates channel: %w", err)
	}

	return s, nil
}

func validatePath(path string) error {
	if path == "" || len(path) > maxPathLength {
		return ErrInvalidPath
	}

	segments := strings.Split(path, "/")
	if len(segments) > maxPathSegments {
		return ErrInvalidPath
	}
	for _, segment := range segments {
		if !pathSegmentRegexp.MatchString(segment) {
			return ErrInvalidPath
		}
	}

	return nil
}

func (s *service) Connect(conn *websocket.Conn, clientId string) {
	s.connRepo.Add(conn, clientId)
}

func (s *service) ClientId(conn *websocket.Conn) (string, error) {
	return s.connRepo.GetClientId(conn)
}

// Send writes a frame to conn through the per-connection serializer.
func (s *service) Send(conn *websocket.Conn, v any) error {
	return s.connRepo.Send(conn, v)
}

func (s *service) Write(ctx context.Context, params *WriteParams) error {
	if err := validatePath(params.Path); err != nil {
		return err
	}
	if !json.Valid(params.Value) {
		return ErrInvalidPayload
	}

	if err := s.docRepo.SetDoc(ctx, params.Path, params.Value); err != nil {
		return fmt.Errorf("failed to write doc: %w", err)
	}

	return s.publish(ctx, params.Path)
}

func (s *service) Merge(ctx context.Context, params *MergeParams) error {
	if err := validatePath(params.Path); err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(params.Value, &fields); err != nil {
		return ErrInvalidPayload
	}

	if err := s.docRepo.MergeDoc(ctx, params.Path, fields); err != nil {
		return fmt.Errorf("failed to merge doc: %w", err)
	}

	return s.publish(ctx, params.Path)
}

// Append stores the value under a fresh generated key and returns it.
func (s *service) Append(ctx context.Context, params *AppendParams) (string, error) {
	if err := validatePath(params.Path); err != nil {
		return "", err
	}
	if !json.Valid(params.Value) {
		return "", ErrInvalidPayload
	}

	key := s.generateId()
	if err := s.docRepo.AppendChild(ctx, params.Path, key, params.Value); err != nil {
		return "", fmt.Errorf("failed to append doc: %w", err)
	}

	if err := s.publish(ctx, params.Path+"/"+key); err != nil {
		return "", err
	}

	return key, nil
}

func (s *service) Remove(ctx context.Context, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}

	if err := s.docRepo.RemoveSubtree(ctx, path); err != nil {
		return fmt.Errorf("failed to remove doc: %w", err)
	}

	return s.publish(ctx, path)
}

func (s *service) Read(ctx context.Context, path string) (json.RawMessage, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	value, err := s.docRepo.GetSubtree(ctx, path)
	if err != nil {
		if errors.Is(err, storerepo.ErrDocNotFound) {
			return nil, ErrDocNotFound
		}
		return nil, fmt.Errorf("failed to read doc: %w", err)
	}

	return value, nil
}

// Subscribe registers the path for conn and pushes the current value
// right away, so the client starts from a consistent snapshot.
// Registration, read and push happen under the connection's write slot:
// a concurrent fanout cannot deliver a newer frame that the snapshot
// then overwrites with a stale one.
func (s *service) Subscribe(ctx context.Context, conn *websocket.Conn, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}

	err := s.connRepo.SubscribeAndSend(conn, path, func() (any, error) {
		value, err := s.Read(ctx, path)
		if err != nil && !errors.Is(err, ErrDocNotFound) {
			return nil, err
		}

		return Output{
			Type:    MessageTypeStoreUpdate,
			Payload: StoreUpdate{Path: path, Value: value},
		}, nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	return nil
}

// RegisterDisconnect queues a mutation the server applies when conn
// drops. A null value removes the subtree, an object is merged.
func (s *service) RegisterDisconnect(ctx context.Context, conn *websocket.Conn, path string, value json.RawMessage) error {
	if err := validatePath(path); err != nil {
		return err
	}

	if value != nil && string(value) != "null" {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(value, &fields); err != nil {
			return ErrInvalidPayload
		}
	} else {
		value = nil
	}

	if err := s.connRepo.AddDirective(conn, connection.Directive{Path: path, Value: value}); err != nil {
		return fmt.Errorf("failed to add disconnect directive: %w", err)
	}

	return nil
}

// Disconnect applies the queued directives for conn and forgets it.
func (s *service) Disconnect(ctx context.Context, conn *websocket.Conn) {
	for _, directive := range s.connRepo.PopDirectives(conn) {
		var err error
		if directive.Value == nil {
			err = s.Remove(ctx, directive.Path)
		} else {
			err = s.Merge(ctx, &MergeParams{Path: directive.Path, Value: directive.Value})
		}
		if err != nil {
			s.logger.WarnContext(ctx, "failed to apply disconnect directive",
				"path", directive.Path, "error", err)
		}
	}

	if err := s.connRepo.Remove(conn); err != nil && !errors.Is(err, connection.ErrConnNotFound) {
		s.logger.WarnContext(ctx, "failed to remove connection", "error", err)
	}
}

func (s *service) publish(ctx context.Context, path string) error {
	payload, err := json.Marshal(Update{Path: path})
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	if err := s.broker.Publish(ctx, UpdatesChannel, payload); err != nil {
		return fmt.Errorf("failed to publish update: %w", err)
	}

	return nil
}

func (s *service) handleUpdate(msg *msgbroker.Message) {
	var update Update
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		s.logger.Warn("failed to decode update", "error", err)
		return
	}

	s.fanOut(context.Background(), update.Path)
}

// fanOut refreshes every subscription the changed path can affect and
// pushes the reassembled value to its connection.
func (s *service) fanOut(ctx context.Context, path string) {
	for conn, subs := range s.connRepo.GetAffected(path) {
		for _, sub := range subs {
			value, err := s.Read(ctx, sub)
			if err != nil && !errors.Is(err, ErrDocNotFound) {
				s.logger.WarnContext(ctx, "failed to reread subscription", "path", sub, "error", err)
				continue
			}

			if err := s.connRepo.Send(conn, Output{
				Type:    MessageTypeStoreUpdate,
				Payload: StoreUpdate{Path: sub, Value: value},
			}); err != nil {
				s.logger.WarnContext(ctx, "failed to push update", "path", sub, "error", err)
			}
		}
	}
}
