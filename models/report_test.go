package models_test

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/advisor_backend/models"
	"github.com/shopspring/decimal"
)

func TestDataQualityScore(t *testing.T) {
	cases := []struct {
		name    string
		rows    int
		flagged int
		want    string
	}{
		{"no rows", 0, 0, "100"},
		{"clean file", 100, 0, "100"},
		{"five percent flagged", 100, 5, "95"},
		{"third flagged", 3, 1, "66.67"},
		{"more findings than rows floors at zero", 2, 5, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := models.DataQualityScore(tc.rows, tc.flagged)
			want, _ := decimal.NewFromString(tc.want)
			if got.Cmp(want) != 0 {
				t.Fatalf("DataQualityScore(%d, %d) = %s, want %s", tc.rows, tc.flagged, got.String(), tc.want)
			}
		})
	}
}

func TestBuildLeakageWorkbook(t *testing.T) {
	record := &models.UploadRecord{
		UploadId:     "UPLOAD-20260301-abcd1234",
		FileName:     "march.xlsx",
		RowCount:     5,
		SkippedCount: 1,
		TotalFlagged: 2,
		TotalImpact:  decimal.NewFromInt(600),
		TotalAmount:  decimal.NewFromInt(10700),
		CreatedAt:    time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	entries := []*models.LeakageEntry{
		{Rule: "duplicate", Severity: models.SeverityHigh, Description: "duplicate transaction", RowIndex: 2, Impact: decimal.NewFromInt(100)},
		{Rule: "anomalous_amount", Severity: models.SeverityMedium, Description: "amount exceeds ceiling", RowIndex: 4, Impact: decimal.NewFromInt(500)},
	}

	f, err := models.BuildLeakageWorkbook(record, entries)
	if err != nil {
		t.Fatalf("BuildLeakageWorkbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 || sheets[0] != "Summary" || sheets[1] != "Entries" {
		t.Fatalf("unexpected sheets: %v", sheets)
	}

	uploadId, err := f.GetCellValue("Summary", "B1")
	if err != nil {
		t.Fatalf("GetCellValue: %v", err)
	}
	if uploadId != record.UploadId {
		t.Fatalf("summary B1 = %q, want %q", uploadId, record.UploadId)
	}

	flagged, _ := f.GetCellValue("Summary", "B6")
	if flagged != "2" {
		t.Fatalf("summary B6 = %q, want 2", flagged)
	}

	rule, _ := f.GetCellValue("Entries", "B2")
	if rule != "duplicate" {
		t.Fatalf("entries B2 = %q, want duplicate", rule)
	}
	impact, _ := f.GetCellValue("Entries", "E3")
	if impact != "500" {
		t.Fatalf("entries E3 = %q, want 500", impact)
	}
}
