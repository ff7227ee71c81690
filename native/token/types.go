package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	// ErrUnknownMint indicates the asset type is not registered, so its
	// decimal precision cannot be resolved.
	ErrUnknownMint = errors.New("token: unknown mint")
	// ErrMintMismatch indicates an account is bound to a different asset
	// type than the transfer declares.
	ErrMintMismatch = errors.New("token: account mint mismatch")
	// ErrDecimalsMismatch indicates the declared decimal precision does not
	// match the registered mint metadata.
	ErrDecimalsMismatch = errors.New("token: declared decimals mismatch")
	// ErrAccountNotFound indicates no holding account exists at the address.
	ErrAccountNotFound = errors.New("token: account not found")
	// ErrAccountExists indicates a holding account already occupies the
	// address.
	ErrAccountExists = errors.New("token: account already exists")
	// ErrInsufficientFunds indicates the source balance is below the amount
	// a transfer requires.
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	// ErrNonEmptyAccount indicates an account with a remaining balance
	// cannot be closed.
	ErrNonEmptyAccount = errors.New("token: account balance must be zero to close")
	// ErrInsufficientStorageCredit indicates the payer cannot cover the
	// storage deposit a new account requires.
	ErrInsufficientStorageCredit = errors.New("token: insufficient storage credit")
	// ErrInvalidAmount indicates a negative or nil amount.
	ErrInvalidAmount = errors.New("token: invalid amount")
)

// MintMetadata describes a registered fungible asset type.
type MintMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// Account is a holding account for a single asset type. Rent is the storage
// deposit charged when the account was opened; it is credited back to a
// designated recipient when the account closes.
type Account struct {
	Owner   [20]byte
	Mint    string
	Balance *big.Int
	Rent    *big.Int
}

// Clone returns a deep copy so callers can mutate freely.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Balance = cloneAmount(a.Balance)
	clone.Rent = cloneAmount(a.Rent)
	return &clone
}

// NormalizeMint canonicalises an asset symbol: trimmed, uppercased and
// non-empty.
func NormalizeMint(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrUnknownMint)
	}
	return trimmed, nil
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
