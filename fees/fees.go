package fees

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/mezonai/devnode/errors"
	"github.com/mezonai/devnode/logx"
)

// Weight is a two-dimensional resource cost.
type Weight struct {
	RefTime   uint64 `json:"ref_time"`
	ProofSize uint64 `json:"proof_size"`
}

// BlockLimits is the resource envelope of a single block.
type BlockLimits struct {
	MaxRefTime   uint64 `json:"max_ref_time"`
	MaxProofSize uint64 `json:"max_proof_size"`
}

// BlockRatioFee maps weight to fee with a P/Q ref_time coefficient and a
// proof_size coefficient scaled by the block's ref_time/proof_size ratio, so
// that filling either dimension of a block costs the same.
type BlockRatioFee struct {
	p, q        uint64
	limits      BlockLimits
	refTimeFee  FixedU128
	proofFee    FixedU128
	refTimeInv  FixedU128
	proofFeeInv FixedU128
}

// NewBlockRatioFee validates the ratio and derives both coefficients once.
func NewBlockRatioFee(p, q uint64, limits BlockLimits) (*BlockRatioFee, error) {
	if p == 0 || q == 0 {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, errors.ErrMsgZeroFeeRatio)
	}
	if limits.MaxProofSize == 0 {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, errors.ErrMsgZeroProofSize)
	}

	refTimeFee := FixedFromRational(uint256.NewInt(p), uint256.NewInt(q))
	ratio := FixedFromRational(uint256.NewInt(limits.MaxRefTime), uint256.NewInt(limits.MaxProofSize))
	proofFee := refTimeFee.SaturatingMul(ratio)

	refTimeInv, ok := refTimeFee.Reciprocal()
	if !ok {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, errors.ErrMsgZeroFeeCoefficient)
	}
	proofFeeInv, ok := proofFee.Reciprocal()
	if !ok {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, errors.ErrMsgZeroFeeCoefficient)
	}

	logx.Info("FEES", fmt.Sprintf("Fee converter ready | p=%d | q=%d | ref_time_fee=%s | proof_size_fee=%s",
		p, q, refTimeFee, proofFee))

	return &BlockRatioFee{
		p:           p,
		q:           q,
		limits:      limits,
		refTimeFee:  refTimeFee,
		proofFee:    proofFee,
		refTimeInv:  refTimeInv,
		proofFeeInv: proofFeeInv,
	}, nil
}

// RefTimeToFee is the P/Q coefficient.
func (f *BlockRatioFee) RefTimeToFee() FixedU128 {
	return f.refTimeFee
}

// ProofSizeToFee is P/Q * max_ref_time / max_proof_size.
func (f *BlockRatioFee) ProofSizeToFee() FixedU128 {
	return f.proofFee
}

func (f *BlockRatioFee) Limits() BlockLimits {
	return f.limits
}

// WeightToFee charges the more expensive of the two dimensions. The result never exceeds 2^128-1.
func (f *BlockRatioFee) WeightToFee(w Weight) *uint256.Int {
	refTime := f.refTimeFee.SaturatingMulInt(uint256.NewInt(w.RefTime), maxU128)
	proofSize := f.proofFee.SaturatingMulInt(uint256.NewInt(w.ProofSize), maxU128)
	if proofSize.Gt(refTime) {
		return proofSize
	}
	return refTime
}

// FeeToWeight inverts each coefficient independently. It is not the inverse of
// WeightToFee: only the dimension that dominated the fee comes back intact.
func (f *BlockRatioFee) FeeToWeight(fee uint64) Weight {
	n := uint256.NewInt(fee)
	return Weight{
		RefTime:   f.refTimeInv.SaturatingMulInt(n, maxU64).Uint64(),
		ProofSize: f.proofFeeInv.SaturatingMulInt(n, maxU64).Uint64(),
	}
}
