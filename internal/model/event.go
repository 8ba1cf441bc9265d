package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectionEvent is one concrete, dated expected cash flow. Events are
// either generated from a recurring rule (RuleID set) or created directly
// as one-offs (RuleID empty). Generated events are never edited in place;
// they are deleted and regenerated with their rule.
type ProjectionEvent struct {
	ID             string
	Name           string
	Value          decimal.Decimal // always positive
	Direction      Direction
	Certainty      Certainty
	Date           time.Time
	DecisionPathID string
	AccountID      string
	RuleID         string // empty = one-off
}

// Signed returns the event's contribution to a balance: positive for
// incoming, negative for expense.
func (e ProjectionEvent) Signed() decimal.Decimal {
	if e.Direction == DirectionExpense {
		return e.Value.Neg()
	}
	return e.Value
}
