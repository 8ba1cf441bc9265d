// Package runlog keeps an append-only audit trail of balance
// recalculation runs.
package runlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/runway-dev/runway/internal/model"
)

// Entry is one recalculation run.
type Entry struct {
	Timestamp time.Time
	Trigger   string
	AccountID string
	Start     time.Time
	End       time.Time
	Rows      int
}

// Header is the CSV header for recalc-log.csv.
const Header = "timestamp,trigger,account_id,start,end,rows"

const (
	numFields    = 6
	logDir       = "logs"
	logFile      = "logs/recalc-log.csv"
	colTimestamp = 0
	colTrigger   = 1
	colAccountID = 2
	colStart     = 3
	colEnd       = 4
	colRows      = 5
)

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colTrigger] = e.Trigger
	row[colAccountID] = e.AccountID
	row[colStart] = model.DayKey(e.Start)
	row[colEnd] = model.DayKey(e.End)
	row[colRows] = strconv.Itoa(e.Rows)
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}
	start, err := model.ParseDay(record[colStart])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing start %q: %w", record[colStart], err)
	}
	end, err := model.ParseDay(record[colEnd])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing end %q: %w", record[colEnd], err)
	}
	rows, err := strconv.Atoi(record[colRows])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing row count %q: %w", record[colRows], err)
	}

	return Entry{
		Timestamp: ts,
		Trigger:   record[colTrigger],
		AccountID: record[colAccountID],
		Start:     start,
		End:       end,
		Rows:      rows,
	}, nil
}

// Append writes entries to <root>/logs/recalc-log.csv, creating the file
// and header if needed.
func Append(root string, entries []Entry) error {
	dir := filepath.Join(root, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := filepath.Join(root, logFile)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening recalc log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	return cw.Error()
}

// Read returns all entries from <root>/logs/recalc-log.csv. Returns an
// empty slice if the file does not exist.
func Read(root string) ([]Entry, error) {
	path := filepath.Join(root, logFile)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening recalc log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading recalc log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
