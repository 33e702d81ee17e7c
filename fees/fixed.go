package fees

import (
	"math"
	"strings"

	"github.com/holiman/uint256"
)

var (
	// accuracy is the FixedU128 scaling factor: 18 decimal places.
	accuracy = uint256.NewInt(1_000_000_000_000_000_000)
	// accuracySquared is the numerator of a reciprocal: 1/x has inner value 10^36 / x.inner.
	accuracySquared = new(uint256.Int).Mul(accuracy, accuracy)

	maxU128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
	maxU64  = uint256.NewInt(math.MaxUint64)
)

// MaxU128 returns 2^128-1, the ceiling of every fee returned by this package.
func MaxU128() *uint256.Int {
	return new(uint256.Int).Set(maxU128)
}

// FixedU128 is an unsigned fixed-point number with 18 decimal places whose
// inner representation is capped at 2^128-1. All arithmetic saturates and
// truncates toward zero, so the same inputs always give the same bits.
type FixedU128 struct {
	inner uint256.Int
}

// FixedFromInner builds a FixedU128 from its raw scaled value, saturating at 2^128-1.
func FixedFromInner(v *uint256.Int) FixedU128 {
	var f FixedU128
	f.inner.Set(v)
	saturate(&f.inner, maxU128)
	return f
}

// FixedFromInt returns n as a FixedU128.
func FixedFromInt(n uint64) FixedU128 {
	return FixedFromRational(uint256.NewInt(n), uint256.NewInt(1))
}

// FixedFromRational returns n/d truncated to 18 decimal places. d must be non-zero.
func FixedFromRational(n, d *uint256.Int) FixedU128 {
	if d.IsZero() {
		panic("fees: FixedFromRational with zero denominator")
	}
	return FixedFromInner(mulDiv(n, accuracy, d))
}

// Inner returns a copy of the raw scaled value.
func (f FixedU128) Inner() *uint256.Int {
	return new(uint256.Int).Set(&f.inner)
}

func (f FixedU128) IsZero() bool {
	return f.inner.IsZero()
}

func (f FixedU128) Cmp(o FixedU128) int {
	return f.inner.Cmp(&o.inner)
}

// SaturatingMul multiplies two fixed-point numbers.
func (f FixedU128) SaturatingMul(o FixedU128) FixedU128 {
	return FixedFromInner(mulDiv(&f.inner, &o.inner, accuracy))
}

// SaturatingMulInt returns floor(f * n), saturating at limit.
func (f FixedU128) SaturatingMulInt(n, limit *uint256.Int) *uint256.Int {
	out := mulDiv(&f.inner, n, accuracy)
	saturate(out, limit)
	return out
}

// Reciprocal returns 1/f. The second result is false when f is zero.
func (f FixedU128) Reciprocal() (FixedU128, bool) {
	if f.inner.IsZero() {
		return FixedU128{}, false
	}
	return FixedFromInner(new(uint256.Int).Div(accuracySquared, &f.inner)), true
}

// String renders the value in decimal with all 18 fractional digits.
func (f FixedU128) String() string {
	whole, frac := new(uint256.Int).DivMod(&f.inner, accuracy, new(uint256.Int))
	digits := frac.Dec()
	return whole.Dec() + "." + strings.Repeat("0", 18-len(digits)) + digits
}

// mulDiv computes x*y/d with a 512-bit intermediate. A quotient that does not
// fit 256 bits is reported as 2^256-1 so callers saturate it away.
func mulDiv(x, y, d *uint256.Int) *uint256.Int {
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return z
}

func saturate(v, limit *uint256.Int) {
	if v.Gt(limit) {
		v.Set(limit)
	}
}
