package codec

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/buffquant/simrun/internal/apierr"
)

// QuantizeDigits is the fixed fractional-digit precision of the numeric
// policy (spec.md §4.A). It is not configurable.
const QuantizeDigits = 8

func init() {
	// HALF_UP (round half away from zero) matches the spec's rounding rule.
	decimal.DivisionPrecision = QuantizeDigits + 4
}

// Quantize rounds f to QuantizeDigits fractional digits using HALF_UP and
// returns the resulting float64. Non-finite inputs fail with DATA_INVALID,
// as does a non-finite result (which should be unreachable for finite
// inputs but is checked defensively since downstream writers rely on it).
func Quantize(f float64) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, apierr.DataInvalid("non-finite numeric value")
	}
	d := decimal.NewFromFloat(f).Round(QuantizeDigits)
	out, _ := d.Float64()
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, apierr.DataInvalid("non-finite numeric value after quantization")
	}
	return out, nil
}

// MustQuantize panics on a non-finite input. It is only used at call sites
// where the value is already known-finite (e.g. constants), never on
// user- or data-derived values.
func MustQuantize(f float64) float64 {
	v, err := Quantize(f)
	if err != nil {
		panic(err)
	}
	return v
}

// QuantizeDecimal rounds a decimal.Decimal to the numeric policy's precision
// and returns it unchanged in type, for callers that carry accounting state
// as decimal.Decimal end to end (internal/engine) and only need quantization
// at intermediate checkpoints (e.g. before comparing to a golden value).
func QuantizeDecimal(d decimal.Decimal) decimal.Decimal {
	return d.Round(QuantizeDigits)
}

// DecimalToFloat64 converts a decimal.Decimal to float64 through the same
// quantization step used everywhere else, so that every float ever written
// to an artifact passed through exactly one code path.
func DecimalToFloat64(d decimal.Decimal) (float64, error) {
	out, _ := d.Round(QuantizeDigits).Float64()
	return Quantize(out)
}
