package cli

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/infra/postgres"
	rediscache "quiz-attempt-service/internal/infra/redis"
)

// NewSeedCmd loads the bundled sample quizzes into the Postgres content tables and, when
// Redis is configured, replaces any cached copies with the freshly written content.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load sample quizzes into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			db, err := openBun(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := runMigrations(cmd.Context(), db); err != nil {
				return err
			}

			quizzes := memory.SampleQuizzes()
			ids := make([]string, 0, len(quizzes))
			for id := range quizzes {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			content := postgres.NewContentStore(db)
			for _, id := range ids {
				if err := content.SaveQuiz(cmd.Context(), quizzes[id]); err != nil {
					return err
				}
				log.Printf("seeded quiz %s", id)
			}

			if cfg.Redis.Addr == "" {
				return nil
			}
			return refreshCachedQuizzes(cmd.Context(), cfg, ids)
		},
	}
}

// refreshCachedQuizzes drops stale cached content and reloads it through the
// Postgres loader so running servers pick up the new version.
func refreshCachedQuizzes(ctx context.Context, cfg config.Config, ids []string) error {
	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	cache := rediscache.NewQuizRepository(client, postgres.NewQuizLoader(pool), config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute))
	for _, id := range ids {
		if err := cache.Invalidate(ctx, id); err != nil {
			return err
		}
		if _, err := cache.GetQuiz(ctx, id); err != nil {
			return err
		}
		log.Printf("refreshed cached quiz %s", id)
	}
	return nil
}

