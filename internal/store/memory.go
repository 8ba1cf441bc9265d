package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/runway-dev/runway/internal/model"
)

// Memory is an in-memory Store. A single mutex guards every operation, so
// each method (including the compound ones) is atomic with respect to
// every other: two overlapping recalculations cannot interleave their
// writes.
type Memory struct {
	mu        sync.RWMutex
	accounts  map[string]model.Account
	paths     map[string]model.DecisionPath
	scenarios map[string]model.ScenarioSet
	rules     map[string]model.RecurringRule
	events    map[string]model.ProjectionEvent
	actuals   map[string]map[string]decimal.Decimal // account -> day key -> value
	balances  map[string]map[string]model.DailyBalance
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts:  make(map[string]model.Account),
		paths:     make(map[string]model.DecisionPath),
		scenarios: make(map[string]model.ScenarioSet),
		rules:     make(map[string]model.RecurringRule),
		events:    make(map[string]model.ProjectionEvent),
		actuals:   make(map[string]map[string]decimal.Decimal),
		balances:  make(map[string]map[string]model.DailyBalance),
	}
}

func (m *Memory) UpsertAccount(_ context.Context, a model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
	return nil
}

func (m *Memory) Account(_ context.Context, id string) (model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return model.Account{}, model.NotFoundError{Kind: "account", ID: id}
	}
	return a, nil
}

func (m *Memory) Accounts(_ context.Context) ([]model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpsertDecisionPath(_ context.Context, p model.DecisionPath) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths[p.ID] = p
	return nil
}

func (m *Memory) DecisionPaths(_ context.Context) ([]model.DecisionPath, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.DecisionPath, 0, len(m.paths))
	for _, p := range m.paths {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpsertScenarioSet(_ context.Context, s model.ScenarioSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Default {
		// At most one default set.
		for id, other := range m.scenarios {
			if other.Default && id != s.ID {
				other.Default = false
				m.scenarios[id] = other
			}
		}
	}
	m.scenarios[s.ID] = s
	return nil
}

func (m *Memory) DefaultScenarioSet(_ context.Context) (*model.ScenarioSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.scenarios {
		if s.Default {
			out := s
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) Rule(_ context.Context, id string) (model.RecurringRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return model.RecurringRule{}, model.NotFoundError{Kind: "rule", ID: id}
	}
	return r, nil
}

func (m *Memory) RulesInChain(_ context.Context, rootID string) ([]model.RecurringRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.RecurringRule
	for _, r := range m.rules {
		if r.ID == rootID || r.BaseRuleID == rootID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *Memory) InsertRuleWithEvents(_ context.Context, rule model.RecurringRule, events []model.ProjectionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ID] = rule
	for _, e := range events {
		m.events[e.ID] = e
	}
	return nil
}

func (m *Memory) UpdateRuleWithEvents(_ context.Context, rule model.RecurringRule, events []model.ProjectionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[rule.ID]; !ok {
		return model.NotFoundError{Kind: "rule", ID: rule.ID}
	}
	m.rules[rule.ID] = rule
	m.deleteEventsForRulesLocked([]string{rule.ID})
	for _, e := range events {
		m.events[e.ID] = e
	}
	return nil
}

func (m *Memory) DeleteRulesWithEvents(_ context.Context, ruleIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ruleIDs {
		delete(m.rules, id)
	}
	m.deleteEventsForRulesLocked(ruleIDs)
	return nil
}

func (m *Memory) ApplyRevision(_ context.Context, base model.RecurringRule, baseEvents []model.ProjectionEvent,
	revision model.RecurringRule, revisionEvents []model.ProjectionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[base.ID]; !ok {
		return model.NotFoundError{Kind: "rule", ID: base.ID}
	}
	m.rules[base.ID] = base
	m.rules[revision.ID] = revision
	m.deleteEventsForRulesLocked([]string{base.ID})
	for _, e := range baseEvents {
		m.events[e.ID] = e
	}
	for _, e := range revisionEvents {
		m.events[e.ID] = e
	}
	return nil
}

func (m *Memory) deleteEventsForRulesLocked(ruleIDs []string) {
	ids := make(map[string]struct{}, len(ruleIDs))
	for _, id := range ruleIDs {
		ids[id] = struct{}{}
	}
	for eid, e := range m.events {
		if e.RuleID == "" {
			continue
		}
		if _, hit := ids[e.RuleID]; hit {
			delete(m.events, eid)
		}
	}
}

func (m *Memory) Event(_ context.Context, id string) (model.ProjectionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return model.ProjectionEvent{}, model.NotFoundError{Kind: "event", ID: id}
	}
	return e, nil
}

func (m *Memory) InsertEvent(_ context.Context, e model.ProjectionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = e
	return nil
}

func (m *Memory) DeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return model.NotFoundError{Kind: "event", ID: id}
	}
	delete(m.events, id)
	return nil
}

func (m *Memory) EventsInRange(_ context.Context, accountID string, start, end time.Time) ([]model.ProjectionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	startD, endD := model.Day(start), model.Day(end)
	var out []model.ProjectionEvent
	for _, e := range m.events {
		d := model.Day(e.Date)
		if e.AccountID == accountID && !d.Before(startD) && !d.After(endD) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := model.Day(out[i].Date), model.Day(out[j].Date)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) SetActualBalance(_ context.Context, accountID string, date time.Time, value decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[accountID]; !ok {
		return model.NotFoundError{Kind: "account", ID: accountID}
	}
	if m.actuals[accountID] == nil {
		m.actuals[accountID] = make(map[string]decimal.Decimal)
	}
	m.actuals[accountID][model.DayKey(date)] = value
	return nil
}

func (m *Memory) ClearActualBalance(_ context.Context, accountID string, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[accountID]; !ok {
		return model.NotFoundError{Kind: "account", ID: accountID}
	}
	delete(m.actuals[accountID], model.DayKey(date))
	return nil
}

func (m *Memory) ActualBalances(_ context.Context, accountID string, start, end time.Time) (map[string]decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	startD, endD := model.Day(start), model.Day(end)
	out := make(map[string]decimal.Decimal)
	for key, v := range m.actuals[accountID] {
		d, err := model.ParseDay(key)
		if err != nil {
			continue
		}
		if !d.Before(startD) && !d.After(endD) {
			out[key] = v
		}
	}
	return out, nil
}

func (m *Memory) ReplaceDailyBalances(_ context.Context, accountID string, start, end time.Time, rows []model.DailyBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[accountID] == nil {
		m.balances[accountID] = make(map[string]model.DailyBalance)
	}
	startD, endD := model.Day(start), model.Day(end)
	for key := range m.balances[accountID] {
		d, err := model.ParseDay(key)
		if err != nil {
			continue
		}
		if !d.Before(startD) && !d.After(endD) {
			delete(m.balances[accountID], key)
		}
	}
	for _, row := range rows {
		m.balances[accountID][model.DayKey(row.Date)] = row
	}
	return nil
}

func (m *Memory) DailyBalances(_ context.Context, accountID string, start, end time.Time) ([]model.DailyBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	startD, endD := model.Day(start), model.Day(end)
	var out []model.DailyBalance
	for _, row := range m.balances[accountID] {
		d := model.Day(row.Date)
		if !d.Before(startD) && !d.After(endD) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) LatestBalanceDate(_ context.Context, accountID string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest time.Time
	found := false
	for _, row := range m.balances[accountID] {
		if !found || row.Date.After(latest) {
			latest = model.Day(row.Date)
			found = true
		}
	}
	return latest, found, nil
}
