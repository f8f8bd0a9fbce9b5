package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/advisor_backend/config"
	"github.com/shopspring/decimal"
)

// LeakageEntry is one flagged anomaly. Entries belong to exactly one upload
// and are immutable after creation.
type LeakageEntry struct {
	ID             int             `gorm:"primary_key" json:"id"`
	UploadRecordId int             `gorm:"index;not null" json:"upload_record_id"`
	Rule           string          `gorm:"size:32;index;not null" json:"rule"`
	Severity       Severity        `gorm:"size:16" json:"severity"`
	Description    string          `gorm:"type:text" json:"description"`
	RowIndex       int             `json:"row_index"`
	Impact         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"impact"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func ListLeakageEntries(ctx context.Context, uploadRecordId int) ([]*LeakageEntry, error) {
	db := config.GetDB()
	var entries []*LeakageEntry
	err := db.WithContext(ctx).
		Where("upload_record_id = ?", uploadRecordId).
		Order("row_index ASC, id ASC").
		Find(&entries).Error
	return entries, err
}
