package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/postgres"
	pgmigrations "quiz-attempt-service/internal/infra/postgres/migrations"
	infraredis "quiz-attempt-service/internal/infra/redis"
)

func TestAttemptEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openAndMigrate(t, ctx, pgURL)
	defer db.Close()
	if err := postgres.NewContentStore(db).SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	quizRepo := infraredis.NewQuizRepository(redisClient, postgres.NewQuizLoader(pool), 5*time.Minute)
	store := postgres.NewAttemptStore(db)
	service := app.NewAttemptService(store, quizRepo, app.Options{})

	loaded, err := quizRepo.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("load quiz: %v", err)
	}
	if len(loaded.Questions) != 2 || loaded.Questions[0].ID != "q1" || len(loaded.Questions[0].Options) != 2 {
		t.Fatalf("unexpected quiz content %+v", loaded)
	}

	// Concurrent starts must converge on one open attempt.
	var wg sync.WaitGroup
	ids := make([]string, 6)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			attempt, err := service.StartOrResume(ctx, "u1", "quiz-1")
			if err != nil {
				t.Errorf("start: %v", err)
				return
			}
			ids[i] = attempt.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected a single open attempt, got %v", ids)
		}
	}
	attemptID := ids[0]

	spent := 5
	if err := service.RecordAnswer(ctx, "u1", attemptID, "q1", "o1", &spent); err != nil {
		t.Fatalf("answer q1: %v", err)
	}
	if err := service.RecordAnswer(ctx, "u1", attemptID, "q1", "o2", nil); err != nil {
		t.Fatalf("re-answer q1: %v", err)
	}
	if err := service.RecordAnswer(ctx, "u1", attemptID, "q2", "o3", nil); err != nil {
		t.Fatalf("answer q2: %v", err)
	}

	// Manual and automatic submission race; exactly one grades.
	results := make(chan error, 2)
	for _, mode := range []domain.SubmitMode{domain.SubmitManual, domain.SubmitAuto} {
		go func(mode domain.SubmitMode) {
			_, err := service.Submit(ctx, "u1", attemptID, mode)
			results <- err
		}(mode)
	}
	var succeeded int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrAttemptAlreadySubmitted):
		default:
			t.Fatalf("submit: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful submit, got %d", succeeded)
	}

	result, err := service.Result(ctx, "u1", attemptID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if got := result.Attempt.Score.Decimal.StringFixed(2); got != "50.00" {
		t.Fatalf("expected score 50.00, got %s", got)
	}
	if *result.Attempt.CorrectCount != 1 || *result.Attempt.WrongCount != 1 {
		t.Fatalf("unexpected counts %+v", result.Attempt)
	}
	if len(result.Answers) != 2 || result.Answers[0].TimeSpentSeconds == nil || *result.Answers[0].TimeSpentSeconds != 5 {
		t.Fatalf("unexpected answers %+v", result.Answers)
	}

	if _, err := service.StartOrResume(ctx, "u1", "quiz-1"); !errors.Is(err, domain.ErrNotAllowed) {
		t.Fatalf("expected retake to be refused, got %v", err)
	}
	if err := service.RecordAnswer(ctx, "u1", attemptID, "q2", "o4", nil); !errors.Is(err, domain.ErrAttemptAlreadySubmitted) {
		t.Fatalf("expected write after submit to fail, got %v", err)
	}
	// The store enforces the retake rule on its own, past the service's eligibility check.
	retake := domain.Attempt{ID: "retake", UserID: "u1", QuizID: "quiz-1", StartedAt: time.Now().UTC()}
	if err := store.CreateAttempt(ctx, retake, false); !errors.Is(err, domain.ErrNotAllowed) {
		t.Fatalf("expected store to refuse a retake, got %v", err)
	}

	history, err := service.History(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != attemptID {
		t.Fatalf("unexpected history %+v", history)
	}

	// Rewritten content is served once its cached copy is dropped.
	revised := sampleQuiz()
	revised.Title = "Arithmetic, revised"
	if err := postgres.NewContentStore(db).SaveQuiz(ctx, revised); err != nil {
		t.Fatalf("save revised quiz: %v", err)
	}
	if err := quizRepo.Invalidate(ctx, "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	reloaded, err := quizRepo.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("reload quiz: %v", err)
	}
	if reloaded.Title != revised.Title {
		t.Fatalf("expected revised title, got %q", reloaded.Title)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func openAndMigrate(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Arithmetic",
		Questions: []domain.Question{
			{
				ID:         "q1",
				Text:       "What is 2 + 2?",
				Difficulty: domain.DifficultyEasy,
				Options: []domain.Option{
					{ID: "o1", Text: "3", Order: 1},
					{ID: "o2", Text: "4", Correct: true, Order: 2},
				},
			},
			{
				ID:   "q2",
				Text: "What is 3 + 3?",
				Options: []domain.Option{
					{ID: "o3", Text: "5", Order: 1},
					{ID: "o4", Text: "6", Correct: true, Order: 2},
				},
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
