package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/advisor_backend/config"
	"bitbucket.org/mmdatafocus/advisor_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UploadRecord identifies one ingested file. Normalized rows are never
// persisted; only the summary columns here and the associated leakage
// entries survive processing.
type UploadRecord struct {
	ID            int               `gorm:"primary_key" json:"id"`
	UploadId      string            `gorm:"size:64;not null;uniqueIndex" json:"upload_id"`
	UserId        int               `gorm:"index;not null" json:"user_id"`
	FileName      string            `gorm:"size:255;not null" json:"file_name"`
	FileSize      int64             `json:"file_size"`
	FileType      string            `gorm:"size:16" json:"file_type"`
	SelectedSheet string            `gorm:"size:64" json:"selected_sheet"`
	ColumnMapping map[string]string `gorm:"serializer:json" json:"column_mapping"`
	RowCount      int               `json:"row_count"`
	SkippedCount  int               `json:"skipped_count"`
	TotalFlagged  int               `json:"total_flagged"`
	TotalImpact   decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"total_impact"`
	TotalAmount   decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	RuleBreakdown map[string]int    `gorm:"serializer:json" json:"rule_breakdown"`
	Status        UploadStatus      `gorm:"size:16;index;default:pending" json:"status"`
	ErrorMessage  string            `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewUploadId mints a public upload id, e.g. UPLOAD-20250412-1a2b3c4d.
func NewUploadId() string {
	return fmt.Sprintf("UPLOAD-%s-%s", time.Now().UTC().Format("20060102"), uuid.NewString()[:8])
}

// CreateUploadWithResults persists the finished upload, its leakage entries
// and the triggered notifications in one transaction. Nothing is written
// until the whole pipeline has completed.
func CreateUploadWithResults(ctx context.Context, record *UploadRecord, entries []*LeakageEntry, notifications []*Notification) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		for _, entry := range entries {
			entry.UploadRecordId = record.ID
		}
		if len(entries) > 0 {
			if err := tx.Create(&entries).Error; err != nil {
				return err
			}
		}
		return CreateNotifications(ctx, tx, notifications)
	})
}

// CreateFailedUpload records a parse failure for the upload history. No rows
// or entries accompany it.
func CreateFailedUpload(ctx context.Context, record *UploadRecord) error {
	db := config.GetDB()
	record.Status = UploadStatusFailed
	return db.WithContext(ctx).Create(record).Error
}

func GetUploadByPublicId(ctx context.Context, userId int, uploadId string) (*UploadRecord, error) {
	db := config.GetDB()
	var record UploadRecord
	err := db.WithContext(ctx).
		Where("upload_id = ? AND user_id = ?", uploadId, userId).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func ListUploads(ctx context.Context, userId int) ([]*UploadRecord, error) {
	db := config.GetDB()
	var records []*UploadRecord
	err := db.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}

// UploadTotals aggregates a user's completed uploads for the dashboard.
type UploadTotals struct {
	TotalUploads int             `json:"total_uploads"`
	TotalRows    int             `json:"total_rows"`
	TotalFlagged int             `json:"total_flagged"`
	TotalImpact  decimal.Decimal `json:"total_impact"`
}

func GetUploadTotals(ctx context.Context, userId int) (*UploadTotals, error) {
	db := config.GetDB()
	var totals UploadTotals
	err := db.WithContext(ctx).Model(&UploadRecord{}).
		Select("COUNT(*) AS total_uploads, COALESCE(SUM(row_count),0) AS total_rows, COALESCE(SUM(total_flagged),0) AS total_flagged, COALESCE(SUM(total_impact),0) AS total_impact").
		Where("user_id = ? AND status = ?", userId, UploadStatusDone).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return &totals, nil
}
