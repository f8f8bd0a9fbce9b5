// Package alerting compares user-defined threshold rules against the
// aggregate metrics of a processed upload and drafts the notifications to
// persist. It never touches storage; the caller owns persistence, and repeat
// firings across uploads are deliberately not deduplicated here.
package alerting

import (
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/advisor_backend/ingest"
	"github.com/shopspring/decimal"
)

// Comparator names follow the stored rule configuration.
type Comparator string

const (
	CompGreaterThan Comparator = "greater_than"
	CompLessThan    Comparator = "less_than"
	CompEquals      Comparator = "equals"
	CompNotEquals   Comparator = "not_equals"
)

func (c Comparator) IsValid() bool {
	switch c {
	case CompGreaterThan, CompLessThan, CompEquals, CompNotEquals:
		return true
	}
	return false
}

// equality on metric values tolerates small float drift in stored thresholds
var equalityTolerance = decimal.NewFromFloat(0.01)

// Rule is the evaluator's view of a stored alert rule.
type Rule struct {
	Name        string
	Metric      string
	Comparator  Comparator
	Threshold   decimal.Decimal
	Severity    string
	NotifyInApp bool
}

// Notification is a draft. NotifyInApp false means the firing is reported in
// the upload response but the caller must not store a row for it.
type Notification struct {
	Title       string `json:"title"`
	Message     string `json:"message"`
	Severity    string `json:"severity"`
	NotifyInApp bool   `json:"notify_in_app"`
}

// Metrics maps metric names to their current values.
type Metrics map[string]decimal.Decimal

// Metric names computable from an upload summary.
const (
	MetricRevenueTotal      = "revenue_total"
	MetricLeakageTotal      = "leakage_total"
	MetricLeakagePercentage = "leakage_percentage"
	MetricLeakageCount      = "leakage_count"
	MetricDuplicates        = "duplicate_transactions"
	MetricAnomalousAmounts  = "anomalous_amounts"
	MetricIncompleteRecords = "incomplete_records"
	MetricRowsProcessed     = "rows_processed"
	MetricRowsSkipped       = "rows_skipped"
	MetricDataQualityScore  = "data_quality_score"
)

// MetricInfo describes one selectable metric for rule-builder UIs.
type MetricInfo struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Unit  string `json:"unit"`
}

// Catalogue lists every metric the evaluator understands.
func Catalogue() []MetricInfo {
	return []MetricInfo{
		{Value: MetricRevenueTotal, Label: "Total Revenue", Unit: "currency"},
		{Value: MetricLeakageTotal, Label: "Revenue Leakage", Unit: "currency"},
		{Value: MetricLeakagePercentage, Label: "Leakage Percentage", Unit: "percentage"},
		{Value: MetricLeakageCount, Label: "Leakage Count", Unit: "count"},
		{Value: MetricDuplicates, Label: "Duplicate Transactions", Unit: "count"},
		{Value: MetricAnomalousAmounts, Label: "Anomalous Amounts", Unit: "count"},
		{Value: MetricIncompleteRecords, Label: "Incomplete Records", Unit: "count"},
		{Value: MetricRowsProcessed, Label: "Rows Processed", Unit: "count"},
		{Value: MetricRowsSkipped, Label: "Rows Skipped", Unit: "count"},
		{Value: MetricDataQualityScore, Label: "Data Quality Score", Unit: "percentage"},
	}
}

// MetricsFromSummary derives the full metric set for one upload.
func MetricsFromSummary(sum ingest.Summary, skipped int) Metrics {
	m := Metrics{
		MetricRevenueTotal:      sum.TotalAmount,
		MetricLeakageTotal:      sum.TotalImpact,
		MetricLeakageCount:      decimal.NewFromInt(int64(sum.TotalFlagged)),
		MetricDuplicates:        decimal.NewFromInt(int64(sum.ByRule[ingest.RuleDuplicate])),
		MetricAnomalousAmounts:  decimal.NewFromInt(int64(sum.ByRule[ingest.RuleAnomalousAmount])),
		MetricIncompleteRecords: decimal.NewFromInt(int64(sum.ByRule[ingest.RuleIncompleteRecord])),
		MetricRowsProcessed:     decimal.NewFromInt(int64(sum.RowsProcessed)),
		MetricRowsSkipped:       decimal.NewFromInt(int64(skipped)),
	}

	hundred := decimal.NewFromInt(100)

	leakagePct := decimal.Zero
	if sum.TotalAmount.IsPositive() {
		leakagePct = sum.TotalImpact.Div(sum.TotalAmount).Mul(hundred).Round(2)
	}
	m[MetricLeakagePercentage] = leakagePct

	quality := hundred
	if sum.RowsProcessed > 0 {
		errPct := decimal.NewFromInt(int64(sum.TotalFlagged)).
			Div(decimal.NewFromInt(int64(sum.RowsProcessed))).Mul(hundred)
		quality = hundred.Sub(errPct).Round(2)
		if quality.IsNegative() {
			quality = decimal.Zero
		}
	}
	m[MetricDataQualityScore] = quality

	return m
}

// Evaluate applies each rule's comparator against its metric. It returns one
// notification per satisfied rule plus advisories for rules that reference a
// metric this build does not compute; those rules are skipped, never fatal.
// source names the triggering upload for the notification message.
func Evaluate(rules []Rule, metrics Metrics, source string) ([]Notification, []string) {
	var notifications []Notification
	var advisories []string

	for _, rule := range rules {
		value, ok := metrics[rule.Metric]
		if !ok {
			advisories = append(advisories, fmt.Sprintf("alert %q references unknown metric %q and was skipped", rule.Name, rule.Metric))
			continue
		}
		if !satisfied(rule.Comparator, value, rule.Threshold) {
			continue
		}

		unit := metricUnit(rule.Metric)
		message := fmt.Sprintf("Alert %q triggered!\nCurrent value: %s\nThreshold: %s %s",
			rule.Name,
			formatMetricValue(unit, value),
			strings.ReplaceAll(string(rule.Comparator), "_", " "),
			formatMetricValue(unit, rule.Threshold),
		)
		if source != "" {
			message += "\nFile: " + source
		}

		notifications = append(notifications, Notification{
			Title:       fmt.Sprintf("%s: %s", strings.ToUpper(rule.Severity), rule.Name),
			Message:     message,
			Severity:    rule.Severity,
			NotifyInApp: rule.NotifyInApp,
		})
	}

	return notifications, advisories
}

func satisfied(comp Comparator, value, threshold decimal.Decimal) bool {
	switch comp {
	case CompGreaterThan:
		return value.GreaterThan(threshold)
	case CompLessThan:
		return value.LessThan(threshold)
	case CompEquals:
		return value.Sub(threshold).Abs().LessThan(equalityTolerance)
	case CompNotEquals:
		return value.Sub(threshold).Abs().GreaterThanOrEqual(equalityTolerance)
	default:
		return false
	}
}

func metricUnit(metric string) string {
	for _, info := range Catalogue() {
		if info.Value == metric {
			return info.Unit
		}
	}
	return "count"
}

func formatMetricValue(unit string, v decimal.Decimal) string {
	switch unit {
	case "currency":
		return "$" + groupThousands(v.StringFixed(2))
	case "percentage":
		return v.StringFixed(1) + "%"
	default:
		return v.Round(0).String()
	}
}

// groupThousands inserts comma separators into a plain fixed-point number.
func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, fracPart, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	for i, ch := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}

	out := b.String()
	if hasFrac {
		out += "." + fracPart
	}
	if neg {
		out = "-" + out
	}
	return out
}
