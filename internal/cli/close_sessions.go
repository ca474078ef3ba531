package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"rater-tracker-service/internal/config"
	pgledger "rater-tracker-service/internal/infra/postgres"
	"rater-tracker-service/internal/logger"
)

// NewCloseSessionsCmd force-closes every active session in the ledger.
// Meant for cleanup after a crash or before a schema migration, when widgets
// may have left sessions dangling.
func NewCloseSessionsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "close-sessions",
		Short: "Force-close all active sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCloseSessions(cmd.Context(), *configPath)
		},
	}
}

func runCloseSessions(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	log := logger.New()

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	closed, err := pgledger.NewLedger(pool).CloseActiveSessions(ctx, time.Now())
	if err != nil {
		return err
	}
	log.WithField("closed", closed).Info("active sessions closed")
	return nil
}
