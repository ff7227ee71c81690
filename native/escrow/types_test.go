package escrow

import (
	"errors"
	"math/big"
	"testing"
)

func validRecord() *Escrow {
	return &Escrow{
		Initializer:       alice,
		Taker:             bob,
		MintA:             "alpha",
		MintB:             " beta ",
		InitializerAmount: big.NewInt(400),
		TakerAmount:       big.NewInt(900),
		Seed:              7,
		Bump:              255,
		CreatedAt:         1_700_000_000,
	}
}

func TestSanitizeEscrowNormalisesMints(t *testing.T) {
	sanitized, err := SanitizeEscrow(validRecord())
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if sanitized.MintA != "ALPHA" || sanitized.MintB != "BETA" {
		t.Fatalf("mints not normalised: %q %q", sanitized.MintA, sanitized.MintB)
	}
}

func TestSanitizeEscrowRejectsBadRecords(t *testing.T) {
	if _, err := SanitizeEscrow(nil); err == nil {
		t.Fatalf("nil record accepted")
	}
	rec := validRecord()
	rec.MintA = "  "
	if _, err := SanitizeEscrow(rec); !errors.Is(err, ErrInvalidAsset) {
		t.Fatalf("empty mint: got %v", err)
	}
	rec = validRecord()
	rec.InitializerAmount = big.NewInt(0)
	if _, err := SanitizeEscrow(rec); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: got %v", err)
	}
	rec = validRecord()
	rec.TakerAmount = nil
	if _, err := SanitizeEscrow(rec); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("nil amount: got %v", err)
	}
}

func TestEscrowCloneIsDeep(t *testing.T) {
	original := validRecord()
	clone := original.Clone()
	clone.InitializerAmount.SetInt64(1)
	clone.MintA = "OTHER"
	if original.InitializerAmount.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("clone shares amount storage with original")
	}
	if original.MintA != "alpha" {
		t.Fatalf("clone shares fields with original")
	}
}
