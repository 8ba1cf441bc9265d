package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction indicates which way money moves.
type Direction string

const (
	DirectionExpense  Direction = "expense"
	DirectionIncoming Direction = "incoming"
)

// Valid reports whether the direction is a known value.
func (d Direction) Valid() bool {
	return d == DirectionExpense || d == DirectionIncoming
}

// Certainty is a confidence tag on a rule or event. Only CertaintyUnlikely
// has a hard effect: unlikely events are excluded from balance math entirely.
type Certainty string

const (
	CertaintyCertain  Certainty = "certain"
	CertaintyLikely   Certainty = "likely"
	CertaintyUnlikely Certainty = "unlikely"
)

// Valid reports whether the certainty is a known value.
func (c Certainty) Valid() bool {
	return c == CertaintyCertain || c == CertaintyLikely || c == CertaintyUnlikely
}

// Frequency is the repeat interval of a recurring rule.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyBiannual  Frequency = "biannual"
	FrequencyAnnual    Frequency = "annual"
)

// Valid reports whether the frequency is a known value.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly,
		FrequencyQuarterly, FrequencyBiannual, FrequencyAnnual:
		return true
	}
	return false
}

// RecurringRule is a template for a repeating cash flow. Concrete dated
// occurrences are generated from it and stored as ProjectionEvents tagged
// with the rule's ID.
//
// Value revisions form a chain: the root rule carries IsBaseRule=true and
// every revision's BaseRuleID points at the root (never at an intermediate
// revision). Chain windows never overlap and leave no gap.
type RecurringRule struct {
	ID             string
	Name           string
	Value          decimal.Decimal // always positive; Direction carries the sign
	Direction      Direction
	Certainty      Certainty
	Counterparty   string
	StartDate      time.Time
	EndDate        time.Time // inclusive, strictly after StartDate
	Frequency      Frequency
	DecisionPathID string // empty = not tied to any decision path
	AccountID      string
	BaseRuleID     string // empty unless this rule is a revision
	IsBaseRule     bool
}

// ChainRootID returns the ID of the revision chain's root rule.
func (r RecurringRule) ChainRootID() string {
	if r.BaseRuleID != "" {
		return r.BaseRuleID
	}
	return r.ID
}
