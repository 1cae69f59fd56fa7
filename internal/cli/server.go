package cli

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-quiz-service/internal/app"
	"chat-quiz-service/internal/config"
	"chat-quiz-service/internal/domain"
	"chat-quiz-service/internal/infra/memory"
	"chat-quiz-service/internal/infra/openai"
	"chat-quiz-service/internal/infra/postgres"
	redissession "chat-quiz-service/internal/infra/redis"
	"chat-quiz-service/internal/infra/sqlite"
	transport "chat-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := resolvePort(portFlag, cfg)

	results, closeResults, err := openResultStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeResults.Close()

	var store app.SessionRepository
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		store = redissession.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	} else {
		store = memory.NewSessionStore()
	}

	service := app.NewChatService(store, results, newCompletionClient(cfg), nil, chatDefaults(cfg))

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, cfg.CORS.Origins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting chat service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// resolvePort prefers --port/$PORT, then server.port, then 8080.
func resolvePort(flag string, cfg config.Config) string {
	if flag != "" {
		return flag
	}
	if cfg.Server.Port != "" {
		return cfg.Server.Port
	}
	return "8080"
}

// openResultStore picks postgres, then sqlite, then memory.
func openResultStore(ctx context.Context, cfg config.Config) (app.ResultStore, io.Closer, error) {
	switch {
	case cfg.Postgres.URL != "":
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("recording quiz results in postgres")
		return postgres.NewResultStore(pool), closerFunc(func() error { pool.Close(); return nil }), nil
	case cfg.SQLite.Path != "":
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("recording quiz results in %s", cfg.SQLite.Path)
		return store, store, nil
	default:
		return memory.NewResultStore(), closerFunc(func() error { return nil }), nil
	}
}

func newCompletionClient(cfg config.Config) *openai.Client {
	return openai.NewClient(cfg.OpenAI.BaseURL, config.TTLDuration(cfg.OpenAI.Timeout, 120*time.Second))
}

func chatDefaults(cfg config.Config) domain.ModelConfig {
	defaults := domain.DefaultModelConfig()
	defaults.Model = cfg.Chat.Model
	defaults.MaxTokens = cfg.Chat.MaxTokens
	if cfg.Chat.Temperature != nil {
		defaults.Temperature = *cfg.Chat.Temperature
	}
	if err := defaults.Validate(); err != nil {
		log.Printf("chat defaults rejected (%v), using built-in defaults", err)
		return domain.DefaultModelConfig()
	}
	return defaults
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
