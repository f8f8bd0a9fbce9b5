package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/advisor_backend/config"
	"bitbucket.org/mmdatafocus/advisor_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// Report tracks one exported workbook so the history page can list past
// exports. The workbook itself is rebuilt from the upload on download.
type Report struct {
	ID             int       `gorm:"primary_key" json:"id"`
	ReportId       string    `gorm:"size:64;not null;uniqueIndex" json:"report_id"`
	UserId         int       `gorm:"index;not null" json:"user_id"`
	UploadRecordId int       `gorm:"index;not null" json:"upload_record_id"`
	Title          string    `gorm:"size:255" json:"title"`
	FileName       string    `gorm:"size:255" json:"file_name"`
	Format         string    `gorm:"size:16;default:xlsx" json:"format"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func NewReportId() string {
	return fmt.Sprintf("REPORT-%s", uuid.NewString()[:8])
}

func CreateReport(ctx context.Context, report *Report) error {
	db := config.GetDB()
	return db.WithContext(ctx).Create(report).Error
}

func ListReports(ctx context.Context, userId int) ([]*Report, error) {
	db := config.GetDB()
	var reports []*Report
	err := db.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("created_at DESC").
		Find(&reports).Error
	return reports, err
}

func GetReport(ctx context.Context, userId int, reportId string) (*Report, error) {
	db := config.GetDB()
	var report Report
	err := db.WithContext(ctx).
		Where("report_id = ? AND user_id = ?", reportId, userId).
		First(&report).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &report, nil
}

// BuildLeakageWorkbook renders one upload's results as an xlsx with a
// Summary sheet and an Entries sheet.
func BuildLeakageWorkbook(record *UploadRecord, entries []*LeakageEntry) (*excelize.File, error) {
	f := excelize.NewFile()

	summarySheet := "Summary"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}

	f.SetCellValue(summarySheet, "A1", "Upload ID")
	f.SetCellValue(summarySheet, "B1", record.UploadId)
	f.SetCellValue(summarySheet, "A2", "File")
	f.SetCellValue(summarySheet, "B2", record.FileName)
	f.SetCellValue(summarySheet, "A3", "Uploaded At")
	f.SetCellValue(summarySheet, "B3", record.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	f.SetCellValue(summarySheet, "A4", "Rows Processed")
	f.SetCellValue(summarySheet, "B4", record.RowCount)
	f.SetCellValue(summarySheet, "A5", "Rows Skipped")
	f.SetCellValue(summarySheet, "B5", record.SkippedCount)
	f.SetCellValue(summarySheet, "A6", "Total Flagged")
	f.SetCellValue(summarySheet, "B6", record.TotalFlagged)
	f.SetCellValue(summarySheet, "A7", "Total Impact")
	f.SetCellValue(summarySheet, "B7", record.TotalImpact.InexactFloat64())
	f.SetCellValue(summarySheet, "A8", "Data Quality Score")
	f.SetCellValue(summarySheet, "B8", DataQualityScore(record.RowCount, record.TotalFlagged).InexactFloat64())

	entriesSheet := "Entries"
	if _, err := f.NewSheet(entriesSheet); err != nil {
		return nil, err
	}

	f.SetCellValue(entriesSheet, "A1", "Row")
	f.SetCellValue(entriesSheet, "B1", "Rule")
	f.SetCellValue(entriesSheet, "C1", "Severity")
	f.SetCellValue(entriesSheet, "D1", "Description")
	f.SetCellValue(entriesSheet, "E1", "Impact")

	for i, entry := range entries {
		f.SetCellValue(entriesSheet, "A"+fmt.Sprint(i+2), entry.RowIndex)
		f.SetCellValue(entriesSheet, "B"+fmt.Sprint(i+2), entry.Rule)
		f.SetCellValue(entriesSheet, "C"+fmt.Sprint(i+2), string(entry.Severity))
		f.SetCellValue(entriesSheet, "D"+fmt.Sprint(i+2), entry.Description)
		f.SetCellValue(entriesSheet, "E"+fmt.Sprint(i+2), entry.Impact.InexactFloat64())
	}

	return f, nil
}

// DataQualityScore is 100 minus the flagged share of rows, floored at zero.
func DataQualityScore(rowCount, totalFlagged int) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	if rowCount <= 0 {
		return hundred
	}
	flagged := decimal.NewFromInt(int64(totalFlagged))
	rows := decimal.NewFromInt(int64(rowCount))
	score := hundred.Sub(flagged.Div(rows).Mul(hundred)).Round(2)
	if score.IsNegative() {
		return decimal.Zero
	}
	return score
}
