package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/runway-dev/runway/internal/config"
)

const samplePlan = `accounts:
  - id: current
    name: Current account
    opening_balance: "1000.00"
    opening_date: "2026-03-02"

decision_paths:
  - id: new-job
    name: Take the new job

scenarios:
  - id: cautious
    name: Cautious
    default: true
    flags:
      new-job: false

rules:
  - name: Groceries
    value: "100.00"
    direction: expense
    certainty: certain
    counterparty: Supermarket
    start_date: "2026-03-02"
    end_date: "2026-03-29"
    frequency: weekly
    account: current
  - name: New salary
    value: "2500.00"
    direction: incoming
    certainty: likely
    counterparty: New employer
    start_date: "2026-03-27"
    end_date: "2026-12-31"
    frequency: monthly
    decision_path: new-job
    account: current

events:
  - name: Car repair
    value: "250.00"
    direction: expense
    certainty: certain
    date: "2026-03-18"
    account: current
`

const sampleHolidays = `holidays:
  - "2026-04-03"
  - "2026-04-06"
  - "2026-05-04"
  - "2026-05-25"
  - "2026-08-31"
  - "2026-12-25"
  - "2026-12-28"
`

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new Runway project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(absDir)
		},
	}

	return cmd
}

func runInit(dir string) error {
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return fmt.Errorf("creating logs directory: %w", err)
	}

	// Write runway.yaml.
	cfg := config.Default()
	cfg.HolidayFile = "holidays.yaml"
	if err := config.Save(filepath.Join(dir, "runway.yaml"), cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Write a starter plan and holiday calendar.
	if err := os.WriteFile(filepath.Join(dir, "plan.yaml"), []byte(samplePlan), 0o644); err != nil {
		return fmt.Errorf("writing plan: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "holidays.yaml"), []byte(sampleHolidays), 0o644); err != nil {
		return fmt.Errorf("writing holidays: %w", err)
	}

	fmt.Printf("Initialized Runway project at %s\n", dir)
	return nil
}
