package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"github.com/mezonai/devnode/fees"
)

// quantity is a u64 sent as a hex string ("0x1a"). Decoding also accepts a
// decimal string or a bare JSON number.
type quantity uint64

func (q quantity) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + strconv.FormatUint(uint64(q), 16))
}

func (q *quantity) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return fmt.Errorf("quantity cannot be null")
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}

	var (
		v   uint64
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if len(s) == 2 {
			return fmt.Errorf("empty hex quantity")
		}
		v, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		v, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return fmt.Errorf("invalid quantity %s: %w", string(data), err)
	}
	*q = quantity(v)
	return nil
}

// bigQuantity is a u256 in the same encodings as quantity.
type bigQuantity struct {
	uint256.Int
}

func (q *bigQuantity) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		// SetFromHex rejects leading zeros, quantity does not
		digits := strings.TrimLeft(s[2:], "0")
		if digits == "" {
			if len(s) == 2 {
				return fmt.Errorf("empty hex quantity")
			}
			digits = "0"
		}
		return q.Int.SetFromHex("0x" + digits)
	}
	return q.Int.SetFromDecimal(s)
}

// noParams accepts an absent or empty positional parameter list.
type noParams []json.RawMessage

func (p noParams) check() error {
	if len(p) != 0 {
		return fmt.Errorf("method takes no parameters, got %d", len(p))
	}
	return nil
}

// quantityParams is a positional list holding exactly one quantity.
type quantityParams []quantity

func (p quantityParams) single() (uint64, error) {
	if len(p) != 1 {
		return 0, fmt.Errorf("expected 1 parameter, got %d", len(p))
	}
	return uint64(p[0]), nil
}

type baseFeeParams []bigQuantity

type weightParams struct {
	RefTime   uint64 `json:"ref_time"`
	ProofSize uint64 `json:"proof_size"`
}

type feeParams struct {
	Fee uint64 `json:"fee"`
}

type weightToFeeResponse struct {
	Fee string `json:"fee"`
}

type feeToWeightResponse = fees.Weight

type healthResponse struct {
	Status      string   `json:"status"`
	BlockNumber quantity `json:"block_number"`
	Snapshots   int      `json:"snapshots"`
}
