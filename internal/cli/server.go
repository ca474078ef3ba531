package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"rater-tracker-service/internal/app"
	"rater-tracker-service/internal/config"
	"rater-tracker-service/internal/infra/memory"
	pgledger "rater-tracker-service/internal/infra/postgres"
	redisinfra "rater-tracker-service/internal/infra/redis"
	"rater-tracker-service/internal/logger"
	transport "rater-tracker-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the tracker server",
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
	log := logger.New()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var ledger app.Ledger = memory.NewLedger()
	if pool != nil {
		ledger = pgledger.NewLedger(pool)
	}

	var store app.SessionStore = memory.NewSessionStore()
	if redisClient != nil {
		sessionTTL := config.TTLDuration(cfg.Redis.TTL, 12*time.Hour)
		store = redisinfra.NewSessionStore(redisClient, sessionTTL)
	}

	opts := []app.Option{
		app.WithTargetMinutes(cfg.Tracker.TargetMinutes),
		app.WithMaxFutureSkew(config.TTLDuration(cfg.Tracker.MaxFutureSkew, 10*time.Minute)),
	}
	service := app.NewTrackerService(store, ledger, log, opts...)

	loc := time.UTC
	if cfg.Tracker.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Tracker.Timezone)
		if err != nil {
			return err
		}
	}

	var summaries transport.DaySummaryProvider
	var invalidator transport.SummaryInvalidator
	if redisClient != nil {
		summaryTTL := config.TTLDuration(cfg.Redis.SummaryTTL, time.Minute)
		cache := redisinfra.NewSummaryCache(redisClient, service, summaryTTL)
		summaries = cache
		invalidator = cache
	}

	wsHandler := transport.NewWSHandler(service, invalidator, loc, log)
	apiHandler := transport.NewAPIHandler(service, summaries, loc, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	apiHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Infof("starting tracker service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
