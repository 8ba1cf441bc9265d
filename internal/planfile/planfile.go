// Package planfile reads a projection plan: accounts, decision paths,
// scenarios, recurring rules, one-off events, and confirmed balances, all
// in one YAML document. A plan is the file-backed equivalent of the
// persistent store, convenient for the CLI and for tests.
package planfile

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/runway-dev/runway/internal/model"
	"github.com/runway-dev/runway/internal/rules"
	"github.com/runway-dev/runway/internal/store"
)

// Plan is the parsed plan document.
type Plan struct {
	Accounts      []Account      `yaml:"accounts"`
	DecisionPaths []DecisionPath `yaml:"decision_paths,omitempty"`
	Scenarios     []Scenario     `yaml:"scenarios,omitempty"`
	Rules         []Rule         `yaml:"rules,omitempty"`
	Events        []Event        `yaml:"events,omitempty"`
	Actuals       []Actual       `yaml:"actual_balances,omitempty"`
}

// Account declares a bank account with its opening anchor.
type Account struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	OpeningBalance string `yaml:"opening_balance"`
	OpeningDate    string `yaml:"opening_date"`
}

// DecisionPath declares a named what-if toggle.
type DecisionPath struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Scenario declares a saved combination of decision-path flags.
type Scenario struct {
	ID      string          `yaml:"id"`
	Name    string          `yaml:"name"`
	Default bool            `yaml:"default,omitempty"`
	Flags   map[string]bool `yaml:"flags,omitempty"`
}

// Rule declares a recurring cash flow.
type Rule struct {
	Name         string `yaml:"name"`
	Value        string `yaml:"value"`
	Direction    string `yaml:"direction"`
	Certainty    string `yaml:"certainty"`
	Counterparty string `yaml:"counterparty,omitempty"`
	StartDate    string `yaml:"start_date"`
	EndDate      string `yaml:"end_date"`
	Frequency    string `yaml:"frequency"`
	DecisionPath string `yaml:"decision_path,omitempty"`
	Account      string `yaml:"account"`
}

// Event declares a one-off cash flow.
type Event struct {
	Name         string `yaml:"name"`
	Value        string `yaml:"value"`
	Direction    string `yaml:"direction"`
	Certainty    string `yaml:"certainty"`
	Date         string `yaml:"date"`
	DecisionPath string `yaml:"decision_path,omitempty"`
	Account      string `yaml:"account"`
}

// Actual declares a user-confirmed balance.
type Actual struct {
	Account string `yaml:"account"`
	Date    string `yaml:"date"`
	Value   string `yaml:"value"`
}

// Load reads and parses a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	return &p, nil
}

// Seed loads the plan into a store, running every rule through the rule
// service so validation and expansion behave exactly as they would for
// interactive edits.
func (p *Plan) Seed(ctx context.Context, st store.Store, svc *rules.Service) error {
	for i, a := range p.Accounts {
		balance, err := decimal.NewFromString(a.OpeningBalance)
		if err != nil {
			return fmt.Errorf("account %d (%s): parsing opening balance: %w", i+1, a.ID, err)
		}
		opening, err := model.ParseDay(a.OpeningDate)
		if err != nil {
			return fmt.Errorf("account %d (%s): parsing opening date: %w", i+1, a.ID, err)
		}
		account := model.Account{ID: a.ID, Name: a.Name, OpeningBalance: balance, OpeningDate: opening}
		if err := st.UpsertAccount(ctx, account); err != nil {
			return fmt.Errorf("account %d (%s): %w", i+1, a.ID, err)
		}
	}

	for i, d := range p.DecisionPaths {
		if err := st.UpsertDecisionPath(ctx, model.DecisionPath{ID: d.ID, Name: d.Name}); err != nil {
			return fmt.Errorf("decision path %d (%s): %w", i+1, d.ID, err)
		}
	}

	for i, sc := range p.Scenarios {
		set := model.ScenarioSet{ID: sc.ID, Name: sc.Name, Default: sc.Default, Flags: sc.Flags}
		if err := st.UpsertScenarioSet(ctx, set); err != nil {
			return fmt.Errorf("scenario %d (%s): %w", i+1, sc.ID, err)
		}
	}

	for i, r := range p.Rules {
		params, err := r.params()
		if err != nil {
			return fmt.Errorf("rule %d (%s): %w", i+1, r.Name, err)
		}
		if _, _, err := svc.CreateRule(ctx, params); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i+1, r.Name, err)
		}
	}

	for i, e := range p.Events {
		params, err := e.params()
		if err != nil {
			return fmt.Errorf("event %d (%s): %w", i+1, e.Name, err)
		}
		if _, err := svc.CreateOneOff(ctx, params); err != nil {
			return fmt.Errorf("event %d (%s): %w", i+1, e.Name, err)
		}
	}

	for i, a := range p.Actuals {
		value, err := decimal.NewFromString(a.Value)
		if err != nil {
			return fmt.Errorf("actual balance %d: parsing value: %w", i+1, err)
		}
		date, err := model.ParseDay(a.Date)
		if err != nil {
			return fmt.Errorf("actual balance %d: parsing date: %w", i+1, err)
		}
		if err := st.SetActualBalance(ctx, a.Account, date, value); err != nil {
			return fmt.Errorf("actual balance %d: %w", i+1, err)
		}
	}

	return nil
}

func (r Rule) params() (rules.RuleParams, error) {
	value, err := decimal.NewFromString(r.Value)
	if err != nil {
		return rules.RuleParams{}, fmt.Errorf("parsing value: %w", err)
	}
	start, err := model.ParseDay(r.StartDate)
	if err != nil {
		return rules.RuleParams{}, fmt.Errorf("parsing start date: %w", err)
	}
	end, err := model.ParseDay(r.EndDate)
	if err != nil {
		return rules.RuleParams{}, fmt.Errorf("parsing end date: %w", err)
	}
	return rules.RuleParams{
		Name:           r.Name,
		Value:          value,
		Direction:      model.Direction(r.Direction),
		Certainty:      model.Certainty(r.Certainty),
		Counterparty:   r.Counterparty,
		StartDate:      start,
		EndDate:        end,
		Frequency:      model.Frequency(r.Frequency),
		DecisionPathID: r.DecisionPath,
		AccountID:      r.Account,
	}, nil
}

func (e Event) params() (rules.EventParams, error) {
	value, err := decimal.NewFromString(e.Value)
	if err != nil {
		return rules.EventParams{}, fmt.Errorf("parsing value: %w", err)
	}
	date, err := model.ParseDay(e.Date)
	if err != nil {
		return rules.EventParams{}, fmt.Errorf("parsing date: %w", err)
	}
	return rules.EventParams{
		Name:           e.Name,
		Value:          value,
		Direction:      model.Direction(e.Direction),
		Certainty:      model.Certainty(e.Certainty),
		Date:           date,
		DecisionPathID: e.DecisionPath,
		AccountID:      e.Account,
	}, nil
}
