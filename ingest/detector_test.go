package ingest

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return d
}

func row(t *testing.T, idx int, date string, amount string, category string) NormalizedRow {
	t.Helper()
	return NormalizedRow{
		Index:    idx,
		Date:     mustDate(t, date),
		Amount:   decimal.RequireFromString(amount),
		Category: category,
	}
}

func findingsByRule(findings []Finding, rule string) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Rule == rule {
			out = append(out, f)
		}
	}
	return out
}

func TestDetect_DuplicateFlagsEveryRepeatAfterFirst(t *testing.T) {
	rows := []NormalizedRow{
		row(t, 0, "2025-01-01", "100", "Retail"),
		row(t, 1, "2025-01-01", "100", "Retail"),
		row(t, 2, "2025-01-02", "100", "Retail"), // different date, not a dup
		row(t, 3, "2025-01-01", "100", "Retail"),
	}

	findings, summary := Detect(rows, testConfig())

	dups := findingsByRule(findings, RuleDuplicate)
	if len(dups) != 2 {
		t.Fatalf("got %d duplicate findings, want 2", len(dups))
	}
	if dups[0].RowIndex != 1 || dups[1].RowIndex != 3 {
		t.Errorf("duplicate rows = %d,%d, want 1,3", dups[0].RowIndex, dups[1].RowIndex)
	}
	if summary.ByRule[RuleDuplicate] != 2 {
		t.Errorf("ByRule[duplicate] = %d, want 2", summary.ByRule[RuleDuplicate])
	}
}

func TestDetect_FingerprintScopedToSingleCall(t *testing.T) {
	rows := []NormalizedRow{row(t, 0, "2025-01-01", "100", "Retail")}

	// Same row again in a fresh invocation must not be treated as a repeat.
	for i := 0; i < 2; i++ {
		findings, _ := Detect(rows, testConfig())
		if len(findingsByRule(findings, RuleDuplicate)) != 0 {
			t.Fatalf("run %d: unexpected duplicate finding across invocations", i)
		}
	}
}

func TestDetect_ThresholdIsStrict(t *testing.T) {
	cfg := testConfig() // ceiling 10000
	cases := []struct {
		name    string
		amount  string
		flagged bool
	}{
		{"below ceiling", "9999.99", false},
		{"exactly at ceiling", "10000", false},
		{"one unit above", "10001", true},
		{"negative above ceiling magnitude", "-10001", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			findings, _ := Detect([]NormalizedRow{row(t, 0, "2025-01-01", tc.amount, "x")}, cfg)
			got := len(findingsByRule(findings, RuleAnomalousAmount)) == 1
			if got != tc.flagged {
				t.Errorf("amount %s flagged = %v, want %v", tc.amount, got, tc.flagged)
			}
		})
	}
}

func TestDetect_AnomalousImpactIsExcessOverCeiling(t *testing.T) {
	findings, _ := Detect([]NormalizedRow{row(t, 0, "2025-01-01", "10250.50", "x")}, testConfig())
	anomalous := findingsByRule(findings, RuleAnomalousAmount)
	if len(anomalous) != 1 {
		t.Fatalf("got %d anomalous findings, want 1", len(anomalous))
	}
	if anomalous[0].Impact.String() != "250.5" {
		t.Errorf("impact = %s, want 250.5", anomalous[0].Impact)
	}
}

func TestDetect_IncompleteRecord(t *testing.T) {
	r := row(t, 4, "2025-01-01", "50", "")
	r.MissingFields = []string{FieldCategory}

	findings, summary := Detect([]NormalizedRow{r}, testConfig())

	inc := findingsByRule(findings, RuleIncompleteRecord)
	if len(inc) != 1 {
		t.Fatalf("got %d incomplete findings, want 1", len(inc))
	}
	if inc[0].RowIndex != 4 || !inc[0].Impact.IsZero() {
		t.Errorf("finding = %+v", inc[0])
	}
	if summary.ByRule[RuleIncompleteRecord] != 1 {
		t.Errorf("ByRule[incomplete_record] = %d, want 1", summary.ByRule[RuleIncompleteRecord])
	}
}

func TestDetect_RowMayTriggerMultipleRules(t *testing.T) {
	dup := row(t, 0, "2025-01-01", "20000", "")
	dup.MissingFields = []string{FieldCategory}
	repeat := dup
	repeat.Index = 1

	_, summary := Detect([]NormalizedRow{dup, repeat}, testConfig())

	// Row 1 triggers duplicate + anomalous + incomplete; row 0 anomalous + incomplete.
	if summary.TotalFlagged != 5 {
		t.Fatalf("TotalFlagged = %d, want 5", summary.TotalFlagged)
	}
	if summary.ByRule[RuleDuplicate] != 1 || summary.ByRule[RuleAnomalousAmount] != 2 || summary.ByRule[RuleIncompleteRecord] != 2 {
		t.Errorf("ByRule = %v", summary.ByRule)
	}
}

func TestDetect_Deterministic(t *testing.T) {
	rows := []NormalizedRow{
		row(t, 0, "2025-01-01", "100", "Retail"),
		row(t, 1, "2025-01-01", "100", "Retail"),
		row(t, 2, "2025-01-02", "15000", "Online"),
	}

	f1, s1 := Detect(rows, testConfig())
	f2, s2 := Detect(rows, testConfig())

	if !reflect.DeepEqual(f1, f2) {
		t.Errorf("findings differ between identical runs:\n%+v\n%+v", f1, f2)
	}
	if !reflect.DeepEqual(s1, s2) {
		t.Errorf("summaries differ between identical runs:\n%+v\n%+v", s1, s2)
	}
}

func TestDetect_SummaryTotals(t *testing.T) {
	rows := []NormalizedRow{
		row(t, 0, "2025-01-01", "100", "a"),
		row(t, 1, "2025-01-01", "100", "a"),  // duplicate, impact 100
		row(t, 2, "2025-01-02", "10500", "b"), // anomalous, impact 500
	}

	_, summary := Detect(rows, testConfig())

	if summary.RowsProcessed != 3 {
		t.Errorf("RowsProcessed = %d, want 3", summary.RowsProcessed)
	}
	if summary.TotalAmount.String() != "10700" {
		t.Errorf("TotalAmount = %s, want 10700", summary.TotalAmount)
	}
	if summary.TotalImpact.String() != "600" {
		t.Errorf("TotalImpact = %s, want 600", summary.TotalImpact)
	}
	if summary.TotalFlagged != 2 {
		t.Errorf("TotalFlagged = %d, want 2", summary.TotalFlagged)
	}
}

// End-to-end over the pure pipeline: a comma-delimited file with five rows,
// one duplicate pair and one amount above the ceiling, using an explicit
// column mapping.
func TestParseAndDetect_EndToEnd(t *testing.T) {
	csvData := "Txn Date,Total Amount,Category\n" +
		"2025-04-01,100.00,Retail\n" +
		"2025-04-01,100.00,Retail\n" +
		"2025-04-02,10500.00,Online\n" +
		"2025-04-03,75.00,Retail\n" +
		"2025-04-04,80.00,Online\n"

	mapping := map[string]string{"amount": "Total Amount", "date": "Txn Date"}
	res, err := Parse([]byte(csvData), "april.csv", "", mapping, testConfig())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Rows) != 5 || res.Skipped != 0 {
		t.Fatalf("got %d rows %d skipped, want 5/0", len(res.Rows), res.Skipped)
	}

	findings, summary := Detect(res.Rows, testConfig())

	if summary.RowsProcessed != 5 {
		t.Errorf("rows_processed = %d, want 5", summary.RowsProcessed)
	}
	if summary.TotalFlagged != 2 {
		t.Errorf("total_flagged = %d, want 2", summary.TotalFlagged)
	}
	if len(findingsByRule(findings, RuleDuplicate)) != 1 {
		t.Errorf("want exactly one duplicate finding, got %+v", findings)
	}
	if len(findingsByRule(findings, RuleAnomalousAmount)) != 1 {
		t.Errorf("want exactly one anomalous_amount finding, got %+v", findings)
	}
}
