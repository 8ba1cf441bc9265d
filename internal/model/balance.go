package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account scopes rules, events, and balances to one bank account.
// OpeningBalance is the known balance carried into OpeningDate, before that
// day's events are applied.
type Account struct {
	ID             string
	Name           string
	OpeningBalance decimal.Decimal
	OpeningDate    time.Time
}

// DailyBalance is one row of a projected balance series, unique per
// (date, account). Expected is the computed post-fold value for the day.
// Actual, when set by the user, re-anchors the fold for the following day
// but never overwrites Expected.
type DailyBalance struct {
	AccountID string
	Date      time.Time
	Expected  decimal.Decimal
	Actual    *decimal.Decimal
}
