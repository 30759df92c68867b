package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/watchtogether/server/internal/controller"
	conninmemory "github.com/watchtogether/server/internal/repository/connection/inmemory"
	storeredis "github.com/watchtogether/server/internal/repository/store/redis"
	userredis "github.com/watchtogether/server/internal/repository/user/redis"
	"github.com/watchtogether/server/internal/service/auth"
	"github.com/watchtogether/server/internal/service/store"
	"github.com/watchtogether/server/pkg/ctxlogger"
	"github.com/watchtogether/server/pkg/msgbroker"
	"github.com/watchtogether/server/pkg/redisclient"
	"github.com/watchtogether/server/pkg/ytsearch"
)

const (
	docExpireDuration = 24 * 14 * time.Hour
	tokenTTL          = 24 * 30 * time.Hour
)

type AppConfig struct {
	Secret        string `json:"-"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	LogLevel      string `json:"log_level"`
	RedisPort     int    `json:"redis_port"`
	RedisHost     string `json:"redis_host"`
	RedisPassword string `json:"-"`
	YouTubeAPIKey string `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Secret == "" {
		return fmt.Errorf("secret must be set")
	}
	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	logger := slog.New(&h)

	rc, err := redisclient.NewRedisClient(&redisclient.Config{
		Port:     cfg.RedisPort,
		Host:     cfg.RedisHost,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	broker := msgbroker.NewRedisBroker(rc)
	defer broker.Close()

	docRepo := storeredis.NewRepo(rc, docExpireDuration)
	connectionRepo := conninmemory.NewRepo()
	userRepo := userredis.NewRepo(rc)

	storeService, err := store.NewService(docRepo, connectionRepo, broker, logger)
	if err != nil {
		return fmt.Errorf("failed to create store service: %w", err)
	}
	authService := auth.NewService(userRepo, cfg.Secret, tokenTTL)
	videoSearcher := ytsearch.NewClient(cfg.YouTubeAPIKey)

	controller := controller.NewController(storeService, authService, videoSearcher, logger)
	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: controller.Mux()}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
