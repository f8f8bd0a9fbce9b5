package ingest

import "github.com/shopspring/decimal"

// Canonical field names that source columns are mapped onto.
const (
	FieldDate     = "date"
	FieldAmount   = "amount"
	FieldCategory = "category"
)

// Config carries every tunable the pipeline reads. Callers pass it explicitly
// so a single test can run the same input against different limits.
type Config struct {
	// MaxUploadBytes is enforced before any parsing work begins.
	MaxUploadBytes int64
	// AmountCeiling flags any amount whose magnitude is strictly greater.
	AmountCeiling decimal.Decimal
	// HeaderAliases lists, per canonical field, the source headers accepted
	// when no explicit column mapping is supplied. Matching is
	// case-insensitive on trimmed header text.
	HeaderAliases map[string][]string
}

// DefaultConfig returns the production defaults. The alias table is policy,
// not contract: deployments tune it per customer data shape.
func DefaultConfig() Config {
	return Config{
		MaxUploadBytes: 10 * 1024 * 1024,
		AmountCeiling:  decimal.NewFromInt(1_000_000),
		HeaderAliases: map[string][]string{
			FieldDate:     {"date", "txn date", "transaction date", "invoice date", "order date"},
			FieldAmount:   {"amount", "total", "total amount", "revenue", "sales", "price", "value", "net amount"},
			FieldCategory: {"category", "type", "segment", "product category", "channel"},
		},
	}
}
