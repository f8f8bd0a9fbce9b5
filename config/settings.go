package config

import (
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// Settings carries the tunable limits of the upload analysis pipeline.
// Handlers build the pipeline configuration from this value instead of
// reading process-wide state, so tests can run with varied limits.
type Settings struct {
	// MaxUploadBytes caps the raw file size. Checked before any parsing work.
	MaxUploadBytes int64
	// AmountCeiling is the magnitude above which a transaction amount is
	// flagged as anomalous. Strict inequality.
	AmountCeiling decimal.Decimal
	// UploadRateLimit is the per-user number of uploads allowed per minute.
	UploadRateLimit int64
}

const defaultMaxUploadBytes = 10 * 1024 * 1024 // 10MB

// DefaultSettings resolves settings from env with production defaults.
//
// Env overrides (optional):
// - MAX_UPLOAD_BYTES (default 10485760)
// - AMOUNT_CEILING (default 1000000)
// - UPLOAD_RATE_LIMIT (default 30)
func DefaultSettings() Settings {
	return Settings{
		MaxUploadBytes:  int64(intFromEnv("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),
		AmountCeiling:   decimalFromEnv("AMOUNT_CEILING", decimal.NewFromInt(1_000_000)),
		UploadRateLimit: int64(intFromEnv("UPLOAD_RATE_LIMIT", 30)),
	}
}

func decimalFromEnv(key string, def decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def
	}
	return d
}
