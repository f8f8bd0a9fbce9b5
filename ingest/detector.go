package ingest

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Rule identifiers, in evaluation order.
const (
	RuleDuplicate        = "duplicate"
	RuleAnomalousAmount  = "anomalous_amount"
	RuleIncompleteRecord = "incomplete_record"
)

// ruleOrder is the fixed, documented evaluation order. Rules are independent:
// a row may trigger several, each producing its own finding.
var ruleOrder = []string{RuleDuplicate, RuleAnomalousAmount, RuleIncompleteRecord}

// Finding is one flagged anomaly, later persisted as a leakage entry.
type Finding struct {
	Rule        string
	Severity    string
	Description string
	RowIndex    int
	Impact      decimal.Decimal
}

// Summary aggregates one Detect invocation.
type Summary struct {
	RowsProcessed int
	TotalFlagged  int
	// TotalImpact is the sum of finding impact estimates.
	TotalImpact decimal.Decimal
	// TotalAmount is the sum of all row amounts, used for percentage metrics.
	TotalAmount decimal.Decimal
	ByRule      map[string]int
}

// Detect scans normalized rows against the fixed rule list and returns the
// findings plus an aggregate summary. It performs no I/O and is deterministic
// for identical input. The duplicate-fingerprint set lives and dies inside
// this call; nothing is shared across invocations.
func Detect(rows []NormalizedRow, cfg Config) ([]Finding, Summary) {
	findings := []Finding{}
	summary := Summary{
		RowsProcessed: len(rows),
		TotalImpact:   decimal.Zero,
		TotalAmount:   decimal.Zero,
		ByRule:        map[string]int{},
	}
	for _, rule := range ruleOrder {
		summary.ByRule[rule] = 0
	}

	seen := make(map[string]struct{}, len(rows))

	for _, row := range rows {
		summary.TotalAmount = summary.TotalAmount.Add(row.Amount)

		if f, ok := checkDuplicate(row, seen); ok {
			findings = append(findings, f)
		}
		if f, ok := checkAnomalousAmount(row, cfg.AmountCeiling); ok {
			findings = append(findings, f)
		}
		if f, ok := checkIncompleteRecord(row); ok {
			findings = append(findings, f)
		}
	}

	for _, f := range findings {
		summary.ByRule[f.Rule]++
		summary.TotalImpact = summary.TotalImpact.Add(f.Impact)
	}
	summary.TotalFlagged = len(findings)

	return findings, summary
}

// checkDuplicate flags every repeat of a fingerprint after its first
// occurrence. Fingerprints accumulate in row order within this call only.
func checkDuplicate(row NormalizedRow, seen map[string]struct{}) (Finding, bool) {
	fp := row.Fingerprint()
	if _, dup := seen[fp]; dup {
		return Finding{
			Rule:        RuleDuplicate,
			Severity:    "high",
			Description: fmt.Sprintf("duplicate transaction: same date, amount and category as an earlier row (%s)", fp),
			RowIndex:    row.Index,
			Impact:      row.Amount.Abs(),
		}, true
	}
	seen[fp] = struct{}{}
	return Finding{}, false
}

// checkAnomalousAmount flags magnitudes strictly above the ceiling; an amount
// exactly at the ceiling passes.
func checkAnomalousAmount(row NormalizedRow, ceiling decimal.Decimal) (Finding, bool) {
	magnitude := row.Amount.Abs()
	if !magnitude.GreaterThan(ceiling) {
		return Finding{}, false
	}
	return Finding{
		Rule:        RuleAnomalousAmount,
		Severity:    "medium",
		Description: fmt.Sprintf("amount %s exceeds the configured ceiling %s", row.Amount.String(), ceiling.String()),
		RowIndex:    row.Index,
		Impact:      magnitude.Sub(ceiling),
	}, true
}

func checkIncompleteRecord(row NormalizedRow) (Finding, bool) {
	if len(row.MissingFields) == 0 {
		return Finding{}, false
	}
	return Finding{
		Rule:        RuleIncompleteRecord,
		Severity:    "low",
		Description: fmt.Sprintf("record is missing %v", row.MissingFields),
		RowIndex:    row.Index,
		Impact:      decimal.Zero,
	}, true
}
