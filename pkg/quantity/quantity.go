// Package quantity normalises and rounds feed quantities and prices.
//
// All arithmetic runs on shopspring/decimal so that repeated two-decimal
// operations never drift the way binary floats do.
package quantity

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimals every stored quantity carries.
const Scale int32 = 2

var zero = decimal.Zero

// Column capacities: quantities are numeric(12,2), unit prices numeric(12,4)
// and amounts numeric(14,2).
var (
	MaxKg        = decimal.RequireFromString("9999999999.99")
	MaxUnitPrice = decimal.RequireFromString("99999999.9999")
	MaxAmount    = decimal.RequireFromString("999999999999.99")
)

// Parse converts a loosely typed input into a decimal. Strings may use a
// comma or a dot as the decimal separator. Empty, nil, unparsable and
// non-finite inputs yield zero.
func Parse(raw any) decimal.Decimal {
	switch v := raw.(type) {
	case nil:
		return zero
	case decimal.Decimal:
		return v
	case *decimal.Decimal:
		if v == nil {
			return zero
		}
		return *v
	case decimal.NullDecimal:
		if !v.Valid {
			return zero
		}
		return v.Decimal
	case string:
		return parseString(v)
	case *string:
		if v == nil {
			return zero
		}
		return parseString(*v)
	case json.Number:
		return parseString(v.String())
	case float64:
		return fromFloat(v)
	case *float64:
		if v == nil {
			return zero
		}
		return fromFloat(*v)
	case float32:
		return fromFloat(float64(v))
	case int:
		return decimal.NewFromInt(int64(v))
	case int8:
		return decimal.NewFromInt(int64(v))
	case int16:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt(int64(v))
	case int64:
		return decimal.NewFromInt(v)
	case uint:
		return parseString(strconv.FormatUint(uint64(v), 10))
	case uint8:
		return decimal.NewFromInt(int64(v))
	case uint16:
		return decimal.NewFromInt(int64(v))
	case uint32:
		return decimal.NewFromInt(int64(v))
	case uint64:
		return parseString(strconv.FormatUint(v, 10))
	default:
		return zero
	}
}

func parseString(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return zero
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return zero
	}
	return d
}

func fromFloat(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return zero
	}
	return decimal.NewFromFloat(f)
}

// Round rounds half away from zero to the given number of decimals.
func Round(v decimal.Decimal, decimals int32) decimal.Decimal {
	return v.Round(decimals)
}

// Kg rounds v to the stored two-decimal scale.
func Kg(v decimal.Decimal) decimal.Decimal {
	return v.Round(Scale)
}

// Multiply returns the exact product a*b rounded to two decimals. Operands
// keep their full precision, so sub-cent unit prices are honoured.
func Multiply(a, b decimal.Decimal) decimal.Decimal {
	return Kg(a.Mul(b))
}

// Sum adds values left to right, rounding every running total to two decimals.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := zero
	for _, v := range values {
		total = Kg(total.Add(Kg(v)))
	}
	return total
}

// Divide returns a/b rounded to decimals, or zero when b is zero.
func Divide(a, b decimal.Decimal, decimals int32) decimal.Decimal {
	if b.IsZero() {
		return zero
	}
	return a.DivRound(b, decimals+4).Round(decimals)
}

// IsPositive reports whether v is strictly greater than zero once rounded to
// the stored scale.
func IsPositive(v decimal.Decimal) bool {
	return Kg(v).GreaterThan(zero)
}

// Format renders v with exactly two decimals, as stored.
func Format(v decimal.Decimal) string {
	return v.StringFixed(Scale)
}
