package cascade

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/runway-dev/runway/internal/model"
)

// Header is the CSV header for an exported balance series.
const Header = "date,account_id,expected_balance,actual_balance"

const (
	numFields   = 4
	colDate     = 0
	colAccount  = 1
	colExpected = 2
	colActual   = 3
)

// WriteSeries exports a balance series as CSV. The actual column is empty
// for days without a confirmed balance.
func WriteSeries(w io.Writer, rows []model.DailyBalance) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, row := range rows {
		rec := make([]string, numFields)
		rec[colDate] = model.DayKey(row.Date)
		rec[colAccount] = row.AccountID
		rec[colExpected] = row.Expected.StringFixed(2)
		if row.Actual != nil {
			rec[colActual] = row.Actual.StringFixed(2)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	return cw.Error()
}

// ReadSeries parses a CSV exported by WriteSeries.
func ReadSeries(r io.Reader) ([]model.DailyBalance, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading balance CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	var rows []model.DailyBalance
	for i, rec := range records[1:] {
		d, err := model.ParseDay(rec[colDate])
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing date %q: %w", i+2, rec[colDate], err)
		}
		expected, err := decimal.NewFromString(rec[colExpected])
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing expected balance %q: %w", i+2, rec[colExpected], err)
		}
		row := model.DailyBalance{AccountID: rec[colAccount], Date: d, Expected: expected}
		if rec[colActual] != "" {
			actual, err := decimal.NewFromString(rec[colActual])
			if err != nil {
				return nil, fmt.Errorf("row %d: parsing actual balance %q: %w", i+2, rec[colActual], err)
			}
			row.Actual = &actual
		}
		rows = append(rows, row)
	}
	return rows, nil
}
