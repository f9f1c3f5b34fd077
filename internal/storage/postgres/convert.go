// internal/storage/postgres/convert.go
package postgres

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimals travel as text; pgx sends Go strings in text format which
// postgres parses into NUMERIC.

func decText(d decimal.Decimal) string {
	return d.String()
}

func nullDecText(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseDec(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse numeric %q: %w", s, err)
	}
	return d, nil
}

func parseNullDec(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseDec(*s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func toInt64(v uint64) int64 {
	return int64(v)
}

func toUint64(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
