package controller

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/watchtogether/server/internal/service/auth"
	"github.com/watchtogether/server/internal/service/store"
	"github.com/watchtogether/server/pkg/validator"
	"github.com/watchtogether/server/pkg/ytsearch"
)

type iStoreService interface {
	Connect(conn *websocket.Conn, clientId string)
	ClientId(conn *websocket.Conn) (string, error)
	Send(conn *websocket.Conn, v any) error
	Write(ctx context.Context, params *store.WriteParams) error
	Merge(ctx context.Context, params *store.MergeParams) error
	Append(ctx context.Context, params *store.AppendParams) (string, error)
	Remove(ctx context.Context, path string) error
	Read(ctx context.Context, path string) (json.RawMessage, error)
	Subscribe(ctx context.Context, conn *websocket.Conn, path string) error
	RegisterDisconnect(ctx context.Context, conn *websocket.Conn, path string, value json.RawMessage) error
	Disconnect(ctx context.Context, conn *websocket.Conn)
}

type iAuthService interface {
	SignUp(ctx context.Context, params *auth.SignUpParams) (auth.AuthResponse, error)
	SignIn(ctx context.Context, params *auth.SignInParams) (auth.AuthResponse, error)
	Profile(ctx context.Context, userId string) (auth.User, error)
	UpdateProfile(ctx context.Context, params *auth.UpdateProfileParams) (auth.User, error)
	ParseToken(tokenString string) (string, error)
}

type iVideoSearcher interface {
	Search(ctx context.Context, query string) ([]ytsearch.Result, error)
}

type controller struct {
	storeService  iStoreService
	authService   iAuthService
	videoSearcher iVideoSearcher
	upgrader      websocket.Upgrader
	validate      *validator.Validator
	logger        *slog.Logger
}

func NewController(storeService iStoreService, authService iAuthService, videoSearcher iVideoSearcher, logger *slog.Logger) *controller {
	return &controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		storeService:  storeService,
		authService:   authService,
		videoSearcher: videoSearcher,
		validate:      validator.NewValidator(),
		logger:        logger,
	}
}
