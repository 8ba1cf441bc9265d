// Package store defines the persistence contract consumed by the rule and
// cascade services, plus an in-memory implementation. A postgres-backed
// implementation lives in the postgres subpackage.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/runway-dev/runway/internal/model"
)

// Store is the persistence boundary of the projection engine. Compound
// operations (insert-rule-with-events, replace, revision, cascade delete)
// are atomic: a failure never leaves a partial mix of old and new rows,
// and readers never observe a half-written series.
type Store interface {
	// Accounts.
	UpsertAccount(ctx context.Context, a model.Account) error
	Account(ctx context.Context, id string) (model.Account, error)
	Accounts(ctx context.Context) ([]model.Account, error)

	// Decision paths and scenario sets.
	UpsertDecisionPath(ctx context.Context, p model.DecisionPath) error
	DecisionPaths(ctx context.Context) ([]model.DecisionPath, error)
	UpsertScenarioSet(ctx context.Context, s model.ScenarioSet) error
	DefaultScenarioSet(ctx context.Context) (*model.ScenarioSet, error)

	// Recurring rules. Event mutations ride in the same transaction as
	// their rule so regeneration is all-or-nothing.
	Rule(ctx context.Context, id string) (model.RecurringRule, error)
	RulesInChain(ctx context.Context, rootID string) ([]model.RecurringRule, error)
	InsertRuleWithEvents(ctx context.Context, rule model.RecurringRule, events []model.ProjectionEvent) error
	UpdateRuleWithEvents(ctx context.Context, rule model.RecurringRule, events []model.ProjectionEvent) error
	DeleteRulesWithEvents(ctx context.Context, ruleIDs []string) error
	ApplyRevision(ctx context.Context, base model.RecurringRule, baseEvents []model.ProjectionEvent,
		revision model.RecurringRule, revisionEvents []model.ProjectionEvent) error

	// Projection events. EventsInRange returns events ordered by date,
	// then name, then ID, so downstream folds are deterministic.
	Event(ctx context.Context, id string) (model.ProjectionEvent, error)
	InsertEvent(ctx context.Context, e model.ProjectionEvent) error
	DeleteEvent(ctx context.Context, id string) error
	EventsInRange(ctx context.Context, accountID string, start, end time.Time) ([]model.ProjectionEvent, error)

	// Actual balances, keyed by (account, day).
	SetActualBalance(ctx context.Context, accountID string, date time.Time, value decimal.Decimal) error
	ClearActualBalance(ctx context.Context, accountID string, date time.Time) error
	ActualBalances(ctx context.Context, accountID string, start, end time.Time) (map[string]decimal.Decimal, error)

	// Daily balances. ReplaceDailyBalances swaps the whole range in one
	// atomic write.
	ReplaceDailyBalances(ctx context.Context, accountID string, start, end time.Time, rows []model.DailyBalance) error
	DailyBalances(ctx context.Context, accountID string, start, end time.Time) ([]model.DailyBalance, error)
	LatestBalanceDate(ctx context.Context, accountID string) (time.Time, bool, error)
}
