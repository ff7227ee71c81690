package escrow

import (
	"fmt"
	"math/big"

	"swapescrow/native/token"
)

// Escrow is the persisted record describing one swap agreement. It is created
// once by Initialize, never mutated in place, and destroyed by exactly one of
// Cancel or Exchange. The record is stored at the address derived from
// (StateTag, Seed); Bump is the nonce that made that derivation valid and
// must rederive to the storage address on every subsequent access.
type Escrow struct {
	Initializer       [20]byte
	Taker             [20]byte
	MintA             string
	MintB             string
	InitializerAmount *big.Int
	TakerAmount       *big.Int
	Seed              uint64
	Bump              uint8
	CreatedAt         int64
}

// Clone returns a deep copy of the escrow record so callers can safely mutate
// the copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	clone.InitializerAmount = cloneAmount(e.InitializerAmount)
	clone.TakerAmount = cloneAmount(e.TakerAmount)
	return &clone
}

// SanitizeEscrow validates and normalises the supplied record, returning a
// cloned instance with canonical mint casing and non-nil amounts. The
// original value is not mutated.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("escrow: nil record")
	}
	clone := e.Clone()
	mintA, err := token.NormalizeMint(clone.MintA)
	if err != nil {
		return nil, fmt.Errorf("%w: mint A: %v", ErrInvalidAsset, err)
	}
	mintB, err := token.NormalizeMint(clone.MintB)
	if err != nil {
		return nil, fmt.Errorf("%w: mint B: %v", ErrInvalidAsset, err)
	}
	clone.MintA = mintA
	clone.MintB = mintB
	if clone.InitializerAmount.Sign() <= 0 || clone.TakerAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return clone, nil
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
