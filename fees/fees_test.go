package fees

import (
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mezonai/devnode/errors"
)

var testLimits = BlockLimits{
	MaxRefTime:   2_000_000_000,
	MaxProofSize: 5_000_000,
}

func newTestFee(t *testing.T) *BlockRatioFee {
	t.Helper()
	f, err := NewBlockRatioFee(1, 100, testLimits)
	require.NoError(t, err)
	return f
}

func TestNewBlockRatioFeeRejectsZeroRatio(t *testing.T) {
	tests := []struct {
		name string
		p, q uint64
	}{
		{"zero numerator", 0, 100},
		{"zero denominator", 1, 0},
		{"both zero", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewBlockRatioFee(tt.p, tt.q, testLimits)
			require.Error(t, err)
			assert.Nil(t, f)
			assert.Equal(t, errors.ErrCodeInvalidConfig, errors.CodeOf(err))
		})
	}
}

func TestNewBlockRatioFeeRejectsDegenerateLimits(t *testing.T) {
	_, err := NewBlockRatioFee(1, 100, BlockLimits{MaxRefTime: 1, MaxProofSize: 0})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))

	// ref_time/proof_size ratio of zero leaves nothing to invert
	_, err = NewBlockRatioFee(1, 100, BlockLimits{MaxRefTime: 0, MaxProofSize: 10})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))

	// 1/2^64 is below the 18 decimal places of precision
	_, err = NewBlockRatioFee(1, math.MaxUint64, testLimits)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig))
}

func TestCoefficients(t *testing.T) {
	f := newTestFee(t)

	assert.Equal(t, "0.010000000000000000", f.RefTimeToFee().String())
	assert.Equal(t, "4.000000000000000000", f.ProofSizeToFee().String())
	assert.Equal(t, testLimits, f.Limits())
}

func TestWeightToFeeTakesMaxOfDimensions(t *testing.T) {
	f := newTestFee(t)

	// ref_time dominates: 1e9 * 0.01 = 1e7 > 1e6 * 4
	fee := f.WeightToFee(Weight{RefTime: 1_000_000_000, ProofSize: 1_000_000})
	assert.Equal(t, uint64(10_000_000), fee.Uint64())

	// proof_size dominates: 1e6 * 4 > 1e6 * 0.01
	fee = f.WeightToFee(Weight{RefTime: 1_000_000, ProofSize: 1_000_000})
	assert.Equal(t, uint64(4_000_000), fee.Uint64())

	assert.True(t, f.WeightToFee(Weight{}).IsZero())

	// a full block costs the same on either axis
	fullRef := f.WeightToFee(Weight{RefTime: testLimits.MaxRefTime})
	fullProof := f.WeightToFee(Weight{ProofSize: testLimits.MaxProofSize})
	assert.Equal(t, fullRef, fullProof)
}

func TestWeightToFeeTruncates(t *testing.T) {
	f := newTestFee(t)

	// 199 * 0.01 = 1.99
	assert.Equal(t, uint64(1), f.WeightToFee(Weight{RefTime: 199}).Uint64())
	assert.Equal(t, uint64(0), f.WeightToFee(Weight{RefTime: 99}).Uint64())
}

func TestRoundTripReproducesDominantAxisOnly(t *testing.T) {
	f := newTestFee(t)
	in := Weight{RefTime: 1_000_000_000, ProofSize: 1_000_000}

	fee := f.WeightToFee(in)
	require.True(t, fee.IsUint64())
	out := f.FeeToWeight(fee.Uint64())

	assert.Equal(t, in.RefTime, out.RefTime)
	assert.Equal(t, uint64(2_500_000), out.ProofSize)
	assert.NotEqual(t, in, out)

	in = Weight{RefTime: 1_000_000, ProofSize: 1_000_000}
	out = f.FeeToWeight(f.WeightToFee(in).Uint64())
	assert.Equal(t, in.ProofSize, out.ProofSize)
	assert.Equal(t, uint64(400_000_000), out.RefTime)
}

func TestWeightToFeeMonotonicPerAxis(t *testing.T) {
	f := newTestFee(t)
	values := []uint64{0, 1, 2, 99, 100, 101, 12_345, 1_000_000, 5_000_000, 2_000_000_000, math.MaxUint32, math.MaxUint64 - 1, math.MaxUint64}

	for _, fixed := range values {
		prevRef := f.WeightToFee(Weight{RefTime: values[0], ProofSize: fixed})
		prevProof := f.WeightToFee(Weight{RefTime: fixed, ProofSize: values[0]})
		for _, v := range values[1:] {
			ref := f.WeightToFee(Weight{RefTime: v, ProofSize: fixed})
			proof := f.WeightToFee(Weight{RefTime: fixed, ProofSize: v})
			assert.False(t, ref.Lt(prevRef), "ref_time %d with proof_size %d", v, fixed)
			assert.False(t, proof.Lt(prevProof), "proof_size %d with ref_time %d", v, fixed)
			prevRef, prevProof = ref, proof
		}
	}
}

func TestWeightToFeeSaturatesAtU128(t *testing.T) {
	f, err := NewBlockRatioFee(math.MaxUint64, 1, BlockLimits{MaxRefTime: math.MaxUint64, MaxProofSize: 1})
	require.NoError(t, err)

	assert.Equal(t, MaxU128(), f.ProofSizeToFee().Inner())
	assert.Equal(t, MaxU128(), f.WeightToFee(Weight{ProofSize: math.MaxUint64}))
}

func TestFeeToWeightSaturatesAtU64(t *testing.T) {
	f, err := NewBlockRatioFee(1, 1_000_000_000_000_000_000, testLimits)
	require.NoError(t, err)

	w := f.FeeToWeight(math.MaxUint64)
	assert.Equal(t, uint64(math.MaxUint64), w.RefTime)
}

func TestConversionIsDeterministic(t *testing.T) {
	a := newTestFee(t)
	b := newTestFee(t)
	w := Weight{RefTime: 123_456_789_012, ProofSize: 98_765}

	assert.Equal(t, a.WeightToFee(w), b.WeightToFee(w))
	assert.Equal(t, a.FeeToWeight(987_654_321), b.FeeToWeight(987_654_321))
}

func TestFixedReciprocal(t *testing.T) {
	_, ok := FixedU128{}.Reciprocal()
	assert.False(t, ok)

	four := FixedFromInt(4)
	inv, ok := four.Reciprocal()
	require.True(t, ok)
	assert.Equal(t, "0.250000000000000000", inv.String())
	assert.Equal(t, uint256.NewInt(250_000_000_000_000_000), inv.Inner())
}
