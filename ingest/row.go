package ingest

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NormalizedRow is one parsed transaction. Rows are derived entirely from the
// uploaded bytes, consumed by Detect and then discarded; only the resulting
// leakage entries persist.
type NormalizedRow struct {
	// Index is the zero-based position of the row among the source data rows
	// (header excluded), preserved through parsing.
	Index    int
	Date     time.Time
	Amount   decimal.Decimal
	Category string
	// MissingFields lists canonical fields that resolved to an empty cell
	// (or had no resolvable source column at all). Rows missing date or
	// amount never get here; those are skipped during parsing.
	MissingFields []string
}

// Fingerprint derives the duplicate-detection key. Two rows with the same
// date, amount and category are considered the same transaction.
func (r NormalizedRow) Fingerprint() string {
	return strings.Join([]string{
		r.Date.Format("2006-01-02"),
		r.Amount.String(),
		strings.ToLower(strings.TrimSpace(r.Category)),
	}, "|")
}
