package integration

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"rater-tracker-service/internal/app"
	"rater-tracker-service/internal/domain"
	pgledger "rater-tracker-service/internal/infra/postgres"
	pgmigrations "rater-tracker-service/internal/infra/postgres/migrations"
	infraredis "rater-tracker-service/internal/infra/redis"
)

func TestEventFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	applyMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	ledger := pgledger.NewLedger(pool)
	store := infraredis.NewSessionStore(redisClient, 5*time.Minute)
	service := app.NewTrackerService(store, ledger, log)
	cache := infraredis.NewSummaryCache(redisClient, service, time.Minute)

	start := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)
	var sessionID string
	for _, step := range []struct {
		typ domain.EventType
		at  time.Duration
	}{
		{domain.EventNext, 0},
		{domain.EventPause, 60 * time.Second},
		{domain.EventPause, 90 * time.Second},
		{domain.EventNext, 150 * time.Second},
		{domain.EventNext, 480 * time.Second},
		{domain.EventUndo, 500 * time.Second},
		{domain.EventNext, 480 * time.Second},
		{domain.EventExit, 600 * time.Second},
	} {
		res, err := service.HandleEvent(ctx, "rater-1", app.EventInput{
			Type:      step.typ,
			Timestamp: start.Add(step.at),
		})
		if err != nil {
			t.Fatalf("%s: %v", step.typ, err)
		}
		sessionID = res.SessionID
	}

	summary, err := service.SessionSummary(ctx, sessionID)
	if err != nil {
		t.Fatalf("session summary: %v", err)
	}
	if summary.IsActive {
		t.Fatalf("expected closed session, got %+v", summary)
	}
	if summary.TotalQuestions != 3 {
		t.Fatalf("expected 3 questions, got %d", summary.TotalQuestions)
	}
	if summary.Questions[0].ActiveSeconds != 120 || summary.Questions[0].ActiveMMSS != "02:00" {
		t.Fatalf("expected first question 02:00 active, got %+v", summary.Questions[0])
	}
	for i, q := range summary.Questions {
		if q.Index != i+1 {
			t.Fatalf("expected contiguous indices after undo, got %+v", summary.Questions)
		}
	}

	day, err := cache.DaySummary(ctx, "rater-1", start, time.UTC)
	if err != nil {
		t.Fatalf("day summary: %v", err)
	}
	if day.TotalSessions != 1 || day.TotalQuestions != 3 {
		t.Fatalf("expected one session with 3 questions, got %+v", day)
	}

	// Cached copy round-trips through Redis.
	again, err := cache.DaySummary(ctx, "rater-1", start, time.UTC)
	if err != nil {
		t.Fatalf("cached day summary: %v", err)
	}
	if again.TotalQuestions != day.TotalQuestions {
		t.Fatalf("cache mismatch: %+v vs %+v", again, day)
	}
}

func applyMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "tracker", "POSTGRES_PASSWORD": "trackerpass", "POSTGRES_DB": "trackerdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
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
	dsn := fmt.Sprintf("postgres://tracker:trackerpass@%s:%s/trackerdb?sslmode=disable", host, port.Port())
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

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
