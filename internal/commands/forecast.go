package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/runway-dev/runway/internal/calendar"
	"github.com/runway-dev/runway/internal/cascade"
	"github.com/runway-dev/runway/internal/config"
	"github.com/runway-dev/runway/internal/model"
	"github.com/runway-dev/runway/internal/planfile"
	"github.com/runway-dev/runway/internal/rules"
	"github.com/runway-dev/runway/internal/scenario"
	"github.com/runway-dev/runway/internal/store"
)

func newForecastCommand() *cobra.Command {
	var (
		configPath string
		planPath   string
		accountID  string
		fromStr    string
		toStr      string
		scenarioID string
		csvPath    string
	)

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Project daily balances from a plan file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := model.ParseDay(fromStr)
			if err != nil {
				return fmt.Errorf("parsing --from: %w", err)
			}
			to, err := model.ParseDay(toStr)
			if err != nil {
				return fmt.Errorf("parsing --to: %w", err)
			}
			return runForecast(cmd, configPath, planPath, accountID, scenarioID, csvPath, from, to)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "runway.yaml", "config file (optional)")
	cmd.Flags().StringVar(&planPath, "plan", "plan.yaml", "plan file")
	cmd.Flags().StringVar(&accountID, "account", "", "account to project (default: all)")
	cmd.Flags().StringVar(&fromStr, "from", "", "first day of the range, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&toStr, "to", "", "last day of the range, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&scenarioID, "scenario", "", "scenario to apply (default: the plan's default scenario)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "write the series as CSV to this file instead of printing")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runForecast(cmd *cobra.Command, configPath, planPath, accountID, scenarioID, csvPath string,
	from, to time.Time) error {
	ctx := cmd.Context()

	cfg := loadConfigOrDefault(configPath)
	log := newLogger(cfg.LogLevel)

	cal, err := loadCalendar(cfg.HolidayFile)
	if err != nil {
		return err
	}

	st := store.NewMemory()
	ruleSvc := rules.NewService(st, cal, cfg.Projection.MaxOccurrences, log)
	castSvc := cascade.NewService(st, log, "")

	plan, err := planfile.Load(planPath)
	if err != nil {
		return err
	}
	if err := plan.Seed(ctx, st, ruleSvc); err != nil {
		return fmt.Errorf("loading plan: %w", err)
	}

	state, err := resolveState(ctx, castSvc, st, plan, scenarioID)
	if err != nil {
		return err
	}

	accounts, err := st.Accounts(ctx)
	if err != nil {
		return err
	}
	if accountID != "" {
		a, err := st.Account(ctx, accountID)
		if err != nil {
			return err
		}
		accounts = []model.Account{a}
	}

	var rows []model.DailyBalance
	for _, a := range accounts {
		series, err := castSvc.ComputeDailyBalances(ctx, a.ID, from, to, state)
		if err != nil {
			return fmt.Errorf("projecting account %s: %w", a.ID, err)
		}
		rows = append(rows, series...)
	}

	if csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return fmt.Errorf("creating csv file: %w", err)
		}
		defer f.Close()
		return cascade.WriteSeries(f, rows)
	}
	return printSeries(cmd, rows)
}

// resolveState picks the scenario state for the run: an explicitly named
// scenario from the plan, or the stored default.
func resolveState(ctx context.Context, castSvc *cascade.Service, st store.Store,
	plan *planfile.Plan, scenarioID string) (scenario.State, error) {
	if scenarioID == "" {
		return castSvc.ScenarioState(ctx)
	}
	for _, s := range plan.Scenarios {
		if s.ID == scenarioID {
			paths, err := st.DecisionPaths(ctx)
			if err != nil {
				return nil, err
			}
			set := model.ScenarioSet{ID: s.ID, Name: s.Name, Flags: s.Flags}
			return scenario.BuildState(paths, &set), nil
		}
	}
	return nil, model.NotFoundError{Kind: "scenario", ID: scenarioID}
}

func printSeries(cmd *cobra.Command, rows []model.DailyBalance) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tACCOUNT\tEXPECTED\tACTUAL")
	for _, row := range rows {
		actual := ""
		if row.Actual != nil {
			actual = row.Actual.StringFixed(2)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			model.DayKey(row.Date), row.AccountID, row.Expected.StringFixed(2), actual)
	}
	return w.Flush()
}

// loadConfigOrDefault reads the config file if it exists, otherwise falls
// back to defaults so forecast works in a bare directory.
func loadConfigOrDefault(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Default()
	}
	return cfg
}

func loadCalendar(holidayFile string) (*calendar.Policy, error) {
	if holidayFile == "" {
		return calendar.NewPolicy(nil)
	}
	cal, err := calendar.NewPolicy(calendar.FileSource{Path: holidayFile})
	if err != nil {
		return nil, fmt.Errorf("loading holiday calendar: %w", err)
	}
	return cal, nil
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
