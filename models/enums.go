package models

// Severity ranks leakage entries, alert rules and notifications.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// UploadStatus tracks one upload through the pipeline. A record is immutable
// once processing completes except for this column.
type UploadStatus string

const (
	UploadStatusPending UploadStatus = "pending"
	UploadStatusDone    UploadStatus = "done"
	UploadStatusFailed  UploadStatus = "failed"
)
