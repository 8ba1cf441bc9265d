package cascade

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/runway-dev/runway/internal/model"
	"github.com/runway-dev/runway/internal/runlog"
	"github.com/runway-dev/runway/internal/scenario"
	"github.com/runway-dev/runway/internal/store"
)

// Service runs balance computations against the store and persists the
// resulting series. All I/O happens before the fold begins: the fold sees
// one consistent snapshot of the event set.
type Service struct {
	store  store.Store
	log    *logrus.Logger
	logDir string // optional root for the recalculation run log
}

// NewService creates a cascade Service. logDir may be empty to disable the
// run log.
func NewService(st store.Store, log *logrus.Logger, logDir string) *Service {
	return &Service{store: st, log: log, logDir: logDir}
}

// ComputeDailyBalances computes the series for one account and range under
// the given scenario state, without persisting anything.
func (s *Service) ComputeDailyBalances(ctx context.Context, accountID string, start, end time.Time,
	state scenario.State) ([]model.DailyBalance, error) {
	in, err := s.gather(ctx, accountID, start, end, state)
	if err != nil {
		return nil, err
	}
	return Compute(in)
}

// Recalculate recomputes the series and replaces the range's stored rows
// in one atomic write, so readers never observe a half-updated series.
// trigger names what caused the run, for the run log.
func (s *Service) Recalculate(ctx context.Context, trigger, accountID string, start, end time.Time,
	state scenario.State) (int, error) {
	rows, err := s.ComputeDailyBalances(ctx, accountID, start, end, state)
	if err != nil {
		return 0, err
	}
	if err := s.store.ReplaceDailyBalances(ctx, accountID, start, end, rows); err != nil {
		return 0, fmt.Errorf("replacing balance series: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"trigger": trigger,
		"account": accountID,
		"from":    model.DayKey(start),
		"to":      model.DayKey(end),
		"rows":    len(rows),
	}).Info("balances recalculated")

	if s.logDir != "" {
		entry := runlog.Entry{
			Timestamp: time.Now().UTC(),
			Trigger:   trigger,
			AccountID: accountID,
			Start:     model.Day(start),
			End:       model.Day(end),
			Rows:      len(rows),
		}
		if err := runlog.Append(s.logDir, []runlog.Entry{entry}); err != nil {
			s.log.WithError(err).Warn("writing recalculation log")
		}
	}
	return len(rows), nil
}

// SetActualBalance records a user-confirmed balance for a day, then
// recalculates from that day through the end of the stored series so the
// new anchor propagates forward.
func (s *Service) SetActualBalance(ctx context.Context, accountID string, date time.Time,
	value decimal.Decimal, state scenario.State) error {
	if err := s.store.SetActualBalance(ctx, accountID, date, value); err != nil {
		return err
	}
	return s.recalcForward(ctx, "actual-balance-set", accountID, date, state)
}

// ClearActualBalance removes a confirmed balance and recalculates forward.
func (s *Service) ClearActualBalance(ctx context.Context, accountID string, date time.Time,
	state scenario.State) error {
	if err := s.store.ClearActualBalance(ctx, accountID, date); err != nil {
		return err
	}
	return s.recalcForward(ctx, "actual-balance-cleared", accountID, date, state)
}

// ScenarioState assembles the active scenario state from the store: every
// known decision path enabled, overlaid with the default scenario set's
// flags.
func (s *Service) ScenarioState(ctx context.Context) (scenario.State, error) {
	paths, err := s.store.DecisionPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading decision paths: %w", err)
	}
	set, err := s.store.DefaultScenarioSet(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading default scenario: %w", err)
	}
	return scenario.BuildState(paths, set), nil
}

func (s *Service) recalcForward(ctx context.Context, trigger, accountID string, from time.Time,
	state scenario.State) error {
	latest, ok, err := s.store.LatestBalanceDate(ctx, accountID)
	if err != nil {
		return fmt.Errorf("finding series end: %w", err)
	}
	if !ok || latest.Before(model.Day(from)) {
		// Nothing materialized past this date; the next full
		// recalculation will pick the anchor up.
		return nil
	}
	_, err = s.Recalculate(ctx, trigger, accountID, from, latest, state)
	return err
}

// gather fetches the consistent snapshot a fold needs: the account, every
// event from its opening date through the range end, and the confirmed
// balances that can re-anchor the fold.
func (s *Service) gather(ctx context.Context, accountID string, start, end time.Time,
	state scenario.State) (Input, error) {
	account, err := s.store.Account(ctx, accountID)
	if err != nil {
		return Input{}, err
	}

	opening := model.Day(account.OpeningDate)
	events, err := s.store.EventsInRange(ctx, accountID, opening, end)
	if err != nil {
		return Input{}, fmt.Errorf("loading events: %w", err)
	}
	actuals, err := s.store.ActualBalances(ctx, accountID, opening.AddDate(0, 0, -1), end)
	if err != nil {
		return Input{}, fmt.Errorf("loading actual balances: %w", err)
	}

	return Input{
		Account: account,
		Start:   start,
		End:     end,
		Events:  events,
		Actuals: actuals,
		State:   state,
	}, nil
}
