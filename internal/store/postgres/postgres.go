// Package postgres implements the store contract over PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/runway-dev/runway/internal/model"
)

// Store is a PostgreSQL-backed store. Compound writes run inside a single
// transaction, so regeneration and series replacement are all-or-nothing.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	return &Store{db: db}, nil
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			opening_balance NUMERIC(14,2) NOT NULL,
			opening_date DATE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS decision_paths (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scenario_sets (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			flags JSONB NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS recurring_rules (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			value NUMERIC(14,2) NOT NULL,
			direction TEXT NOT NULL,
			certainty TEXT NOT NULL,
			counterparty TEXT NOT NULL DEFAULT '',
			start_date DATE NOT NULL,
			end_date DATE NOT NULL,
			frequency TEXT NOT NULL,
			decision_path_id TEXT NOT NULL DEFAULT '',
			account_id TEXT NOT NULL REFERENCES accounts(id),
			base_rule_id TEXT NOT NULL DEFAULT '',
			is_base_rule BOOLEAN NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS projection_events (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			value NUMERIC(14,2) NOT NULL,
			direction TEXT NOT NULL,
			certainty TEXT NOT NULL,
			date DATE NOT NULL,
			decision_path_id TEXT NOT NULL DEFAULT '',
			account_id TEXT NOT NULL REFERENCES accounts(id),
			rule_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS projection_events_account_date
			ON projection_events (account_id, date)`,
		`CREATE TABLE IF NOT EXISTS actual_balances (
			account_id TEXT NOT NULL REFERENCES accounts(id),
			date DATE NOT NULL,
			value NUMERIC(14,2) NOT NULL,
			PRIMARY KEY (account_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS daily_balances (
			account_id TEXT NOT NULL REFERENCES accounts(id),
			date DATE NOT NULL,
			expected NUMERIC(14,2) NOT NULL,
			actual NUMERIC(14,2),
			PRIMARY KEY (account_id, date)
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *Store) UpsertAccount(ctx context.Context, a model.Account) error {
	query := `
		INSERT INTO accounts (id, name, opening_balance, opening_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    opening_balance = EXCLUDED.opening_balance,
		    opening_date = EXCLUDED.opening_date`
	_, err := s.db.ExecContext(ctx, query, a.ID, a.Name, a.OpeningBalance.String(), model.Day(a.OpeningDate))
	if err != nil {
		return fmt.Errorf("upserting account: %w", err)
	}
	return nil
}

func (s *Store) Account(ctx context.Context, id string) (model.Account, error) {
	query := `SELECT id, name, opening_balance, opening_date FROM accounts WHERE id = $1`
	var (
		a       model.Account
		balance string
		opening time.Time
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.Name, &balance, &opening)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, model.NotFoundError{Kind: "account", ID: id}
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("loading account: %w", err)
	}
	a.OpeningBalance, err = decimal.NewFromString(balance)
	if err != nil {
		return model.Account{}, fmt.Errorf("parsing opening balance: %w", err)
	}
	a.OpeningDate = model.Day(opening)
	return a, nil
}

func (s *Store) Accounts(ctx context.Context) ([]model.Account, error) {
	query := `SELECT id, name, opening_balance, opening_date FROM accounts ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		var (
			a       model.Account
			balance string
			opening time.Time
		)
		if err := rows.Scan(&a.ID, &a.Name, &balance, &opening); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		a.OpeningBalance, err = decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("parsing opening balance: %w", err)
		}
		a.OpeningDate = model.Day(opening)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpsertDecisionPath(ctx context.Context, p model.DecisionPath) error {
	query := `
		INSERT INTO decision_paths (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
	if _, err := s.db.ExecContext(ctx, query, p.ID, p.Name); err != nil {
		return fmt.Errorf("upserting decision path: %w", err)
	}
	return nil
}

func (s *Store) DecisionPaths(ctx context.Context) ([]model.DecisionPath, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM decision_paths ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing decision paths: %w", err)
	}
	defer rows.Close()

	var out []model.DecisionPath
	for rows.Next() {
		var p model.DecisionPath
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scanning decision path: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpsertScenarioSet(ctx context.Context, set model.ScenarioSet) error {
	flags, err := json.Marshal(set.Flags)
	if err != nil {
		return fmt.Errorf("encoding scenario flags: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if set.Default {
			if _, err := tx.ExecContext(ctx,
				`UPDATE scenario_sets SET is_default = FALSE WHERE id <> $1`, set.ID); err != nil {
				return fmt.Errorf("clearing previous default scenario: %w", err)
			}
		}
		query := `
			INSERT INTO scenario_sets (id, name, is_default, flags)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
			    is_default = EXCLUDED.is_default,
			    flags = EXCLUDED.flags`
		if _, err := tx.ExecContext(ctx, query, set.ID, set.Name, set.Default, flags); err != nil {
			return fmt.Errorf("upserting scenario set: %w", err)
		}
		return nil
	})
}

func (s *Store) DefaultScenarioSet(ctx context.Context) (*model.ScenarioSet, error) {
	query := `SELECT id, name, is_default, flags FROM scenario_sets WHERE is_default LIMIT 1`
	var (
		set   model.ScenarioSet
		flags []byte
	)
	err := s.db.QueryRowContext(ctx, query).Scan(&set.ID, &set.Name, &set.Default, &flags)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading default scenario: %w", err)
	}
	if err := json.Unmarshal(flags, &set.Flags); err != nil {
		return nil, fmt.Errorf("decoding scenario flags: %w", err)
	}
	return &set, nil
}

const ruleColumns = `id, name, value, direction, certainty, counterparty,
	start_date, end_date, frequency, decision_path_id, account_id, base_rule_id, is_base_rule`

func scanRule(scan func(...any) error) (model.RecurringRule, error) {
	var (
		r          model.RecurringRule
		value      string
		start, end time.Time
	)
	err := scan(&r.ID, &r.Name, &value, &r.Direction, &r.Certainty, &r.Counterparty,
		&start, &end, &r.Frequency, &r.DecisionPathID, &r.AccountID, &r.BaseRuleID, &r.IsBaseRule)
	if err != nil {
		return model.RecurringRule{}, err
	}
	r.Value, err = decimal.NewFromString(value)
	if err != nil {
		return model.RecurringRule{}, fmt.Errorf("parsing rule value: %w", err)
	}
	r.StartDate = model.Day(start)
	r.EndDate = model.Day(end)
	return r, nil
}

func (s *Store) Rule(ctx context.Context, id string) (model.RecurringRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM recurring_rules WHERE id = $1`, id)
	r, err := scanRule(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RecurringRule{}, model.NotFoundError{Kind: "rule", ID: id}
	}
	if err != nil {
		return model.RecurringRule{}, fmt.Errorf("loading rule: %w", err)
	}
	return r, nil
}

func (s *Store) RulesInChain(ctx context.Context, rootID string) ([]model.RecurringRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM recurring_rules
		 WHERE id = $1 OR base_rule_id = $1
		 ORDER BY start_date`, rootID)
	if err != nil {
		return nil, fmt.Errorf("loading revision chain: %w", err)
	}
	defer rows.Close()

	var out []model.RecurringRule
	for rows.Next() {
		r, err := scanRule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func insertRule(ctx context.Context, tx *sql.Tx, r model.RecurringRule) error {
	query := `
		INSERT INTO recurring_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := tx.ExecContext(ctx, query, r.ID, r.Name, r.Value.String(), r.Direction, r.Certainty,
		r.Counterparty, model.Day(r.StartDate), model.Day(r.EndDate), r.Frequency,
		r.DecisionPathID, r.AccountID, r.BaseRuleID, r.IsBaseRule)
	if err != nil {
		return fmt.Errorf("inserting rule: %w", err)
	}
	return nil
}

func updateRule(ctx context.Context, tx *sql.Tx, r model.RecurringRule) error {
	query := `
		UPDATE recurring_rules
		SET name = $2, value = $3, direction = $4, certainty = $5, counterparty = $6,
		    start_date = $7, end_date = $8, frequency = $9, decision_path_id = $10,
		    account_id = $11, base_rule_id = $12, is_base_rule = $13
		WHERE id = $1`
	res, err := tx.ExecContext(ctx, query, r.ID, r.Name, r.Value.String(), r.Direction, r.Certainty,
		r.Counterparty, model.Day(r.StartDate), model.Day(r.EndDate), r.Frequency,
		r.DecisionPathID, r.AccountID, r.BaseRuleID, r.IsBaseRule)
	if err != nil {
		return fmt.Errorf("updating rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update: %w", err)
	}
	if n == 0 {
		return model.NotFoundError{Kind: "rule", ID: r.ID}
	}
	return nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, events []model.ProjectionEvent) error {
	query := `
		INSERT INTO projection_events
			(id, name, value, direction, certainty, date, decision_path_id, account_id, rule_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, e := range events {
		if _, err := tx.ExecContext(ctx, query, e.ID, e.Name, e.Value.String(), e.Direction,
			e.Certainty, model.Day(e.Date), e.DecisionPathID, e.AccountID, e.RuleID); err != nil {
			return fmt.Errorf("inserting event: %w", err)
		}
	}
	return nil
}

func deleteEventsForRules(ctx context.Context, tx *sql.Tx, ruleIDs []string) error {
	for _, id := range ruleIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM projection_events WHERE rule_id = $1`, id); err != nil {
			return fmt.Errorf("deleting events for rule %s: %w", id, err)
		}
	}
	return nil
}

func (s *Store) InsertRuleWithEvents(ctx context.Context, rule model.RecurringRule, events []model.ProjectionEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertRule(ctx, tx, rule); err != nil {
			return err
		}
		return insertEvents(ctx, tx, events)
	})
}

func (s *Store) UpdateRuleWithEvents(ctx context.Context, rule model.RecurringRule, events []model.ProjectionEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateRule(ctx, tx, rule); err != nil {
			return err
		}
		if err := deleteEventsForRules(ctx, tx, []string{rule.ID}); err != nil {
			return err
		}
		return insertEvents(ctx, tx, events)
	})
}

func (s *Store) DeleteRulesWithEvents(ctx context.Context, ruleIDs []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteEventsForRules(ctx, tx, ruleIDs); err != nil {
			return err
		}
		for _, id := range ruleIDs {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM recurring_rules WHERE id = $1`, id); err != nil {
				return fmt.Errorf("deleting rule %s: %w", id, err)
			}
		}
		return nil
	})
}

func (s *Store) ApplyRevision(ctx context.Context, base model.RecurringRule, baseEvents []model.ProjectionEvent,
	revision model.RecurringRule, revisionEvents []model.ProjectionEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateRule(ctx, tx, base); err != nil {
			return err
		}
		if err := insertRule(ctx, tx, revision); err != nil {
			return err
		}
		if err := deleteEventsForRules(ctx, tx, []string{base.ID}); err != nil {
			return err
		}
		if err := insertEvents(ctx, tx, baseEvents); err != nil {
			return err
		}
		return insertEvents(ctx, tx, revisionEvents)
	})
}

const eventColumns = `id, name, value, direction, certainty, date, decision_path_id, account_id, rule_id`

func scanEvent(scan func(...any) error) (model.ProjectionEvent, error) {
	var (
		e     model.ProjectionEvent
		value string
		date  time.Time
	)
	err := scan(&e.ID, &e.Name, &value, &e.Direction, &e.Certainty, &date,
		&e.DecisionPathID, &e.AccountID, &e.RuleID)
	if err != nil {
		return model.ProjectionEvent{}, err
	}
	e.Value, err = decimal.NewFromString(value)
	if err != nil {
		return model.ProjectionEvent{}, fmt.Errorf("parsing event value: %w", err)
	}
	e.Date = model.Day(date)
	return e, nil
}

func (s *Store) Event(ctx context.Context, id string) (model.ProjectionEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM projection_events WHERE id = $1`, id)
	e, err := scanEvent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ProjectionEvent{}, model.NotFoundError{Kind: "event", ID: id}
	}
	if err != nil {
		return model.ProjectionEvent{}, fmt.Errorf("loading event: %w", err)
	}
	return e, nil
}

func (s *Store) InsertEvent(ctx context.Context, e model.ProjectionEvent) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertEvents(ctx, tx, []model.ProjectionEvent{e})
	})
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projection_events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete: %w", err)
	}
	if n == 0 {
		return model.NotFoundError{Kind: "event", ID: id}
	}
	return nil
}

func (s *Store) EventsInRange(ctx context.Context, accountID string, start, end time.Time) ([]model.ProjectionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM projection_events
		 WHERE account_id = $1 AND date >= $2 AND date <= $3
		 ORDER BY date, name, id`, accountID, model.Day(start), model.Day(end))
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	defer rows.Close()

	var out []model.ProjectionEvent
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) SetActualBalance(ctx context.Context, accountID string, date time.Time, value decimal.Decimal) error {
	query := `
		INSERT INTO actual_balances (account_id, date, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, date) DO UPDATE SET value = EXCLUDED.value`
	if _, err := s.db.ExecContext(ctx, query, accountID, model.Day(date), value.String()); err != nil {
		return fmt.Errorf("setting actual balance: %w", err)
	}
	return nil
}

func (s *Store) ClearActualBalance(ctx context.Context, accountID string, date time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM actual_balances WHERE account_id = $1 AND date = $2`,
		accountID, model.Day(date))
	if err != nil {
		return fmt.Errorf("clearing actual balance: %w", err)
	}
	return nil
}

func (s *Store) ActualBalances(ctx context.Context, accountID string, start, end time.Time) (map[string]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, value FROM actual_balances
		 WHERE account_id = $1 AND date >= $2 AND date <= $3`,
		accountID, model.Day(start), model.Day(end))
	if err != nil {
		return nil, fmt.Errorf("loading actual balances: %w", err)
	}
	defer rows.Close()

	out := make(map[string]decimal.Decimal)
	for rows.Next() {
		var (
			date  time.Time
			value string
		)
		if err := rows.Scan(&date, &value); err != nil {
			return nil, fmt.Errorf("scanning actual balance: %w", err)
		}
		v, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("parsing actual balance: %w", err)
		}
		out[model.DayKey(date)] = v
	}
	return out, rows.Err()
}

func (s *Store) ReplaceDailyBalances(ctx context.Context, accountID string, start, end time.Time, rows []model.DailyBalance) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM daily_balances WHERE account_id = $1 AND date >= $2 AND date <= $3`,
			accountID, model.Day(start), model.Day(end)); err != nil {
			return fmt.Errorf("clearing balance range: %w", err)
		}
		query := `
			INSERT INTO daily_balances (account_id, date, expected, actual)
			VALUES ($1, $2, $3, $4)`
		for _, row := range rows {
			var actual any
			if row.Actual != nil {
				actual = row.Actual.String()
			}
			if _, err := tx.ExecContext(ctx, query,
				row.AccountID, model.Day(row.Date), row.Expected.String(), actual); err != nil {
				return fmt.Errorf("inserting balance row: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) DailyBalances(ctx context.Context, accountID string, start, end time.Time) ([]model.DailyBalance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_id, date, expected, actual FROM daily_balances
		 WHERE account_id = $1 AND date >= $2 AND date <= $3
		 ORDER BY date`, accountID, model.Day(start), model.Day(end))
	if err != nil {
		return nil, fmt.Errorf("loading balances: %w", err)
	}
	defer rows.Close()

	var out []model.DailyBalance
	for rows.Next() {
		var (
			row      model.DailyBalance
			date     time.Time
			expected string
			actual   sql.NullString
		)
		if err := rows.Scan(&row.AccountID, &date, &expected, &actual); err != nil {
			return nil, fmt.Errorf("scanning balance row: %w", err)
		}
		row.Date = model.Day(date)
		row.Expected, err = decimal.NewFromString(expected)
		if err != nil {
			return nil, fmt.Errorf("parsing expected balance: %w", err)
		}
		if actual.Valid {
			v, err := decimal.NewFromString(actual.String)
			if err != nil {
				return nil, fmt.Errorf("parsing actual balance: %w", err)
			}
			row.Actual = &v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) LatestBalanceDate(ctx context.Context, accountID string) (time.Time, bool, error) {
	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM daily_balances WHERE account_id = $1`, accountID).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("finding latest balance date: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return model.Day(latest.Time), true, nil
}
