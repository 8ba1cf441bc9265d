package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/runway-dev/runway/internal/cascade"
	"github.com/runway-dev/runway/internal/config"
	"github.com/runway-dev/runway/internal/model"
	"github.com/runway-dev/runway/internal/store/postgres"
)

func newRefreshCommand() *cobra.Command {
	var (
		configPath string
		once       bool
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Recalculate stored balance series on a schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(cmd.Context(), configPath, once)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "runway.yaml", "config file")
	cmd.Flags().BoolVar(&once, "once", false, "run a single refresh and exit")

	return cmd
}

func runRefresh(ctx context.Context, configPath string, once bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return model.ValidationError{Field: "database_url", Message: "must be set for refresh"}
	}
	log := newLogger(cfg.LogLevel)

	st, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}

	svc := cascade.NewService(st, log, ".")

	refresh := func() {
		if err := refreshAll(ctx, st, svc, cfg.Projection.HorizonDays); err != nil {
			log.WithError(err).Error("refresh failed")
		}
	}

	refresh()
	if once {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Refresh.Schedule, refresh); err != nil {
		return fmt.Errorf("parsing refresh schedule %q: %w", cfg.Refresh.Schedule, err)
	}
	c.Start()
	log.WithField("schedule", cfg.Refresh.Schedule).Info("refresh scheduler started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	stopped := c.Stop()
	<-stopped.Done()
	log.Info("refresh scheduler stopped")
	return nil
}

// refreshAll recalculates every account's series from today through the
// projection horizon under the stored default scenario.
func refreshAll(ctx context.Context, st *postgres.Store, svc *cascade.Service, horizonDays int) error {
	state, err := svc.ScenarioState(ctx)
	if err != nil {
		return err
	}
	accounts, err := st.Accounts(ctx)
	if err != nil {
		return err
	}

	today := model.Day(time.Now().UTC())
	for _, a := range accounts {
		start := today
		if start.Before(a.OpeningDate) {
			start = a.OpeningDate
		}
		end := start.AddDate(0, 0, horizonDays)
		if _, err := svc.Recalculate(ctx, "scheduled-refresh", a.ID, start, end, state); err != nil {
			return fmt.Errorf("refreshing account %s: %w", a.ID, err)
		}
	}
	return nil
}
