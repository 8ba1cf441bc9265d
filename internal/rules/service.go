// Package rules owns the recurring-rule lifecycle: validation, expansion
// into projection events, value revisions, and cascade deletion.
package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/runway-dev/runway/internal/calendar"
	"github.com/runway-dev/runway/internal/expand"
	"github.com/runway-dev/runway/internal/model"
	"github.com/runway-dev/runway/internal/store"
)

// Service materializes recurring rules into stored projection events.
type Service struct {
	store          store.Store
	cal            *calendar.Policy
	maxOccurrences int
	log            *logrus.Logger
}

// NewService creates a rule Service. maxOccurrences <= 0 selects the
// default expansion cap.
func NewService(st store.Store, cal *calendar.Policy, maxOccurrences int, log *logrus.Logger) *Service {
	if maxOccurrences <= 0 {
		maxOccurrences = expand.DefaultMaxOccurrences
	}
	return &Service{store: st, cal: cal, maxOccurrences: maxOccurrences, log: log}
}

// RuleParams holds the user-supplied definition of a recurring rule.
type RuleParams struct {
	Name           string
	Value          decimal.Decimal
	Direction      model.Direction
	Certainty      model.Certainty
	Counterparty   string
	StartDate      time.Time
	EndDate        time.Time
	Frequency      model.Frequency
	DecisionPathID string
	AccountID      string
}

// EventParams holds the user-supplied definition of a one-off event.
type EventParams struct {
	Name           string
	Value          decimal.Decimal
	Direction      model.Direction
	Certainty      model.Certainty
	Date           time.Time
	DecisionPathID string
	AccountID      string
}

// Overrides are the attributes a revision may change besides its value.
// Nil fields inherit from the base rule.
type Overrides struct {
	Name           *string
	Certainty      *model.Certainty
	Counterparty   *string
	DecisionPathID *string
}

// CreateRule validates a definition, expands it, and stores the rule with
// its generated events in one atomic write. Returns the stored rule and
// the number of generated events.
func (s *Service) CreateRule(ctx context.Context, p RuleParams) (model.RecurringRule, int, error) {
	if err := validateRule(p); err != nil {
		return model.RecurringRule{}, 0, err
	}
	if err := s.checkRefs(ctx, p.AccountID, p.DecisionPathID); err != nil {
		return model.RecurringRule{}, 0, err
	}

	rule := model.RecurringRule{
		ID:             uuid.New().String(),
		Name:           p.Name,
		Value:          p.Value,
		Direction:      p.Direction,
		Certainty:      p.Certainty,
		Counterparty:   p.Counterparty,
		StartDate:      model.Day(p.StartDate),
		EndDate:        model.Day(p.EndDate),
		Frequency:      p.Frequency,
		DecisionPathID: p.DecisionPathID,
		AccountID:      p.AccountID,
		IsBaseRule:     true,
	}

	events, err := s.materialize(rule)
	if err != nil {
		return model.RecurringRule{}, 0, err
	}
	if err := s.store.InsertRuleWithEvents(ctx, rule, events); err != nil {
		return model.RecurringRule{}, 0, fmt.Errorf("storing rule: %w", err)
	}

	s.log.WithFields(logrus.Fields{"rule": rule.ID, "events": len(events)}).Info("rule created")
	return rule, len(events), nil
}

// UpdateRule replaces a rule's definition and regenerates its event set
// atomically, so a failure never leaves a mix of old and new events.
func (s *Service) UpdateRule(ctx context.Context, id string, p RuleParams) (model.RecurringRule, int, error) {
	existing, err := s.store.Rule(ctx, id)
	if err != nil {
		return model.RecurringRule{}, 0, err
	}
	if err := validateRule(p); err != nil {
		return model.RecurringRule{}, 0, err
	}
	if err := s.checkRefs(ctx, p.AccountID, p.DecisionPathID); err != nil {
		return model.RecurringRule{}, 0, err
	}

	rule := existing
	rule.Name = p.Name
	rule.Value = p.Value
	rule.Direction = p.Direction
	rule.Certainty = p.Certainty
	rule.Counterparty = p.Counterparty
	rule.StartDate = model.Day(p.StartDate)
	rule.EndDate = model.Day(p.EndDate)
	rule.Frequency = p.Frequency
	rule.DecisionPathID = p.DecisionPathID
	rule.AccountID = p.AccountID

	// An edited window must still fit its revision chain: re-validate the
	// chain with the new window substituted before anything is written.
	chain, err := s.store.RulesInChain(ctx, rule.ChainRootID())
	if err != nil {
		return model.RecurringRule{}, 0, fmt.Errorf("loading revision chain: %w", err)
	}
	if len(chain) > 1 {
		updated := make([]model.RecurringRule, 0, len(chain))
		for _, r := range chain {
			if r.ID == rule.ID {
				r = rule
			}
			updated = append(updated, r)
		}
		if err := validateChain(updated); err != nil {
			return model.RecurringRule{}, 0, err
		}
	}

	events, err := s.materialize(rule)
	if err != nil {
		return model.RecurringRule{}, 0, err
	}
	if err := s.store.UpdateRuleWithEvents(ctx, rule, events); err != nil {
		return model.RecurringRule{}, 0, fmt.Errorf("regenerating rule: %w", err)
	}

	s.log.WithFields(logrus.Fields{"rule": rule.ID, "events": len(events)}).Info("rule regenerated")
	return rule, len(events), nil
}

// DeleteRule removes a rule and its generated events. Deleting a chain's
// root removes every revision built on it. Revisions are refused: removing
// one would tear a hole in the chain's coverage of the original window.
func (s *Service) DeleteRule(ctx context.Context, id string) error {
	rule, err := s.store.Rule(ctx, id)
	if err != nil {
		return err
	}
	if !rule.IsBaseRule {
		return model.ValidationError{
			Field: "rule", Message: "revisions cannot be deleted directly; delete the chain's root rule"}
	}

	chain, err := s.store.RulesInChain(ctx, rule.ID)
	if err != nil {
		return fmt.Errorf("loading revision chain: %w", err)
	}
	ids := make([]string, 0, len(chain))
	for _, r := range chain {
		ids = append(ids, r.ID)
	}

	if err := s.store.DeleteRulesWithEvents(ctx, ids); err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	s.log.WithFields(logrus.Fields{"rule": id, "rules_removed": len(ids)}).Info("rule deleted")
	return nil
}

// RevisionResult reports what a revision changed.
type RevisionResult struct {
	Revision           model.RecurringRule
	BaseEventCount     int
	RevisionEventCount int
}

// CreateRevision changes a rule's value from a future date onward. The
// base rule's window is truncated to the day before revisionStartDate and
// its events regenerated; a new rule covering the remainder of the
// original window is created with the new value, pointing at the chain's
// root. Both event sets are swapped in a single atomic write.
func (s *Service) CreateRevision(ctx context.Context, baseID string, revisionStart time.Time,
	newValue decimal.Decimal, ov Overrides) (RevisionResult, error) {
	base, err := s.store.Rule(ctx, baseID)
	if err != nil {
		return RevisionResult{}, err
	}

	start := model.Day(revisionStart)
	if !start.After(model.Day(base.StartDate)) {
		return RevisionResult{}, model.ValidationError{
			Field: "revisionStartDate", Message: "must be strictly after the base rule's startDate"}
	}
	if start.After(model.Day(base.EndDate)) {
		return RevisionResult{}, model.ValidationError{
			Field: "revisionStartDate", Message: "must be on or before the base rule's endDate"}
	}
	if !newValue.IsPositive() {
		return RevisionResult{}, model.ValidationError{Field: "value", Message: "must be strictly positive"}
	}

	originalEnd := model.Day(base.EndDate)

	truncated := base
	truncated.EndDate = start.AddDate(0, 0, -1)

	revision := base
	revision.ID = uuid.New().String()
	revision.Value = newValue
	revision.StartDate = start
	revision.EndDate = originalEnd
	// The chain root is propagated, never re-nested: a revision of a
	// revision still points at the root.
	revision.BaseRuleID = base.ChainRootID()
	revision.IsBaseRule = false
	if ov.Name != nil {
		revision.Name = *ov.Name
	}
	if ov.Certainty != nil {
		revision.Certainty = *ov.Certainty
	}
	if ov.Counterparty != nil {
		revision.Counterparty = *ov.Counterparty
	}
	if ov.DecisionPathID != nil {
		revision.DecisionPathID = *ov.DecisionPathID
		if err := s.checkRefs(ctx, revision.AccountID, revision.DecisionPathID); err != nil {
			return RevisionResult{}, err
		}
	}

	chain, err := s.store.RulesInChain(ctx, revision.BaseRuleID)
	if err != nil {
		return RevisionResult{}, fmt.Errorf("loading revision chain: %w", err)
	}
	updated := make([]model.RecurringRule, 0, len(chain)+1)
	for _, r := range chain {
		if r.ID == base.ID {
			r = truncated
		}
		updated = append(updated, r)
	}
	updated = append(updated, revision)
	if err := validateChain(updated); err != nil {
		return RevisionResult{}, err
	}

	baseEvents, err := s.materialize(truncated)
	if err != nil {
		return RevisionResult{}, err
	}
	revisionEvents, err := s.materialize(revision)
	if err != nil {
		return RevisionResult{}, err
	}

	if err := s.store.ApplyRevision(ctx, truncated, baseEvents, revision, revisionEvents); err != nil {
		return RevisionResult{}, fmt.Errorf("applying revision: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"base":            base.ID,
		"revision":        revision.ID,
		"effective":       start.Format(model.DayFormat),
		"base_events":     len(baseEvents),
		"revision_events": len(revisionEvents),
	}).Info("revision applied")

	return RevisionResult{
		Revision:           revision,
		BaseEventCount:     len(baseEvents),
		RevisionEventCount: len(revisionEvents),
	}, nil
}

// CreateOneOff stores a single dated event not backed by any rule.
func (s *Service) CreateOneOff(ctx context.Context, p EventParams) (model.ProjectionEvent, error) {
	if err := validateEvent(p); err != nil {
		return model.ProjectionEvent{}, err
	}
	if err := s.checkRefs(ctx, p.AccountID, p.DecisionPathID); err != nil {
		return model.ProjectionEvent{}, err
	}

	event := model.ProjectionEvent{
		ID:             uuid.New().String(),
		Name:           p.Name,
		Value:          p.Value,
		Direction:      p.Direction,
		Certainty:      p.Certainty,
		Date:           model.Day(p.Date),
		DecisionPathID: p.DecisionPathID,
		AccountID:      p.AccountID,
	}
	if err := s.store.InsertEvent(ctx, event); err != nil {
		return model.ProjectionEvent{}, fmt.Errorf("storing event: %w", err)
	}
	return event, nil
}

// DeleteEvent removes a one-off event. Generated events are refused: they
// live and die with their rule.
func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	event, err := s.store.Event(ctx, id)
	if err != nil {
		return err
	}
	if event.RuleID != "" {
		return model.ValidationError{
			Field: "event", Message: "generated events cannot be deleted directly; edit or delete the rule"}
	}
	return s.store.DeleteEvent(ctx, id)
}

// materialize expands a rule into its concrete events, all carrying the
// rule's attributes and ID.
func (s *Service) materialize(rule model.RecurringRule) ([]model.ProjectionEvent, error) {
	dates, err := expand.Dates(rule, s.cal, s.maxOccurrences)
	if err != nil {
		return nil, err
	}

	events := make([]model.ProjectionEvent, 0, len(dates))
	for _, d := range dates {
		events = append(events, model.ProjectionEvent{
			ID:             uuid.New().String(),
			Name:           rule.Name,
			Value:          rule.Value,
			Direction:      rule.Direction,
			Certainty:      rule.Certainty,
			Date:           d,
			DecisionPathID: rule.DecisionPathID,
			AccountID:      rule.AccountID,
			RuleID:         rule.ID,
		})
	}
	return events, nil
}

// checkRefs verifies the account and optional decision path exist.
func (s *Service) checkRefs(ctx context.Context, accountID, pathID string) error {
	if _, err := s.store.Account(ctx, accountID); err != nil {
		return err
	}
	if pathID == "" {
		return nil
	}
	paths, err := s.store.DecisionPaths(ctx)
	if err != nil {
		return fmt.Errorf("loading decision paths: %w", err)
	}
	for _, p := range paths {
		if p.ID == pathID {
			return nil
		}
	}
	return model.NotFoundError{Kind: "decision path", ID: pathID}
}
