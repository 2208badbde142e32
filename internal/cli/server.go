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

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/infra/contentapi"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/infra/postgres"
	rediscache "quiz-attempt-service/internal/infra/redis"
	"quiz-attempt-service/internal/infra/sqlite"
	transport "quiz-attempt-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the attempt service",
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

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	attempts, loader, closers, err := buildStores(ctx, cfg)
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Printf("close: %v", err)
			}
		}
	}()
	if err != nil {
		return err
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, client)
		quizRepo = rediscache.NewQuizRepository(client, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	service := app.NewAttemptService(attempts, quizRepo, app.Options{
		ReshuffleOnEachCall: cfg.Attempt.ReshuffleOnLoad,
		AutoSubmitGrace:     config.TTLDuration(cfg.Attempt.AutoSubmitGrace, app.DefaultAutoSubmitGrace),
	})
	router := transport.NewRouter(
		transport.NewAttemptHandler(service),
		transport.NewTimerHandler(service, config.TTLDuration(cfg.Attempt.Tick, time.Second)),
		transport.NewAuthenticator(cfg.Auth.JWTSecret),
	)
	if cfg.Auth.JWTSecret == "" {
		log.Printf("auth.jwt_secret not set; trusting X-User-ID header")
	}

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would cut long-lived timer sockets.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("starting attempt service on :%s", finalPort)
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

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// buildStores picks the attempt store and the content loader from config.
// Postgres wins over SQLite, which wins over memory; content follows the same order
// with the content API standing in when no database holds quizzes.
func buildStores(ctx context.Context, cfg config.Config) (app.AttemptRepository, memory.QuizLoader, []io.Closer, error) {
	var closers []io.Closer

	if cfg.Postgres.URL != "" {
		db, err := openBun(cfg)
		if err != nil {
			return nil, nil, closers, err
		}
		closers = append(closers, db)
		if err := runMigrations(ctx, db); err != nil {
			return nil, nil, closers, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, closers, err
		}
		closers = append(closers, closerFunc(func() error { pool.Close(); return nil }))
		log.Printf("attempts and content in postgres")
		return postgres.NewAttemptStore(db), postgres.NewQuizLoader(pool), closers, nil
	}

	var attempts app.AttemptRepository = memory.NewAttemptStore()
	if cfg.SQLite.Path != "" {
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, nil, closers, err
		}
		closers = append(closers, store)
		attempts = store
		log.Printf("attempts in sqlite at %s", cfg.SQLite.Path)
	} else {
		log.Printf("attempts in memory; they are lost on restart")
	}

	if cfg.Content.URL != "" {
		timeout := config.TTLDuration(cfg.Content.Timeout, 5*time.Second)
		log.Printf("quiz content from %s", cfg.Content.URL)
		return attempts, contentapi.NewLoader(cfg.Content.URL, cfg.Content.Token, timeout), closers, nil
	}
	log.Printf("serving bundled sample quizzes")
	return attempts, memory.NewStaticQuizLoader(memory.SampleQuizzes()), closers, nil
}
