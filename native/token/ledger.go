package token

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// DefaultAccountRent is the storage deposit charged for each new holding
// account, in storage-credit units.
var DefaultAccountRent = big.NewInt(2_039_280)

var associatedPrefix = []byte("swapescrow/associated-account")

// LedgerState is the persistence surface the ledger operates on.
type LedgerState interface {
	Mint(symbol string) (*MintMetadata, bool, error)
	TokenAccountPut(addr [20]byte, acc *Account) error
	TokenAccountGet(addr [20]byte) (*Account, bool, error)
	TokenAccountDelete(addr [20]byte) error
	StorageCreditBalance(addr [20]byte) (*big.Int, error)
	SetStorageCredit(addr [20]byte, amount *big.Int) error
}

// Ledger implements the checked asset-transfer collaborator: per-owner
// per-mint holding accounts, transfers that validate asset type and decimal
// precision before moving value, and storage deposits reclaimed on close.
type Ledger struct {
	state LedgerState
	rent  *big.Int
}

// NewLedger creates a ledger bound to the supplied state backend.
func NewLedger(state LedgerState) *Ledger {
	return &Ledger{state: state, rent: new(big.Int).Set(DefaultAccountRent)}
}

// SetAccountRent overrides the storage deposit charged per account, primarily
// for tests.
func (l *Ledger) SetAccountRent(cost *big.Int) {
	if cost == nil || cost.Sign() < 0 {
		l.rent = new(big.Int).Set(DefaultAccountRent)
		return
	}
	l.rent = new(big.Int).Set(cost)
}

// AccountRent returns the storage deposit a new account requires.
func (l *Ledger) AccountRent() *big.Int {
	return new(big.Int).Set(l.rent)
}

// Associated resolves the canonical holding-account address for an owner and
// asset type. The mapping is deterministic so any party can recompute it.
func Associated(owner [20]byte, mint string) [20]byte {
	normalized, err := NormalizeMint(mint)
	if err != nil {
		normalized = mint
	}
	buf := make([]byte, 0, len(associatedPrefix)+1+len(normalized)+1+len(owner))
	buf = append(buf, associatedPrefix...)
	buf = append(buf, ':')
	buf = append(buf, normalized...)
	buf = append(buf, ':')
	buf = append(buf, owner[:]...)
	hash := ethcrypto.Keccak256(buf)
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// Associated is the method form of the package-level resolver.
func (l *Ledger) Associated(owner [20]byte, mint string) [20]byte {
	return Associated(owner, mint)
}

// Decimals resolves the registered decimal precision for a mint.
func (l *Ledger) Decimals(mint string) (uint8, error) {
	normalized, err := NormalizeMint(mint)
	if err != nil {
		return 0, err
	}
	meta, ok, err := l.state.Mint(normalized)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownMint, normalized)
	}
	return meta.Decimals, nil
}

// Account loads the holding account stored at the address.
func (l *Ledger) Account(addr [20]byte) (*Account, error) {
	acc, ok, err := l.state.TokenAccountGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

// Balance returns the balance held by the account at the address.
func (l *Ledger) Balance(addr [20]byte) (*big.Int, error) {
	acc, err := l.Account(addr)
	if err != nil {
		return nil, err
	}
	return cloneAmount(acc.Balance), nil
}

// OpenAccount allocates the canonical holding account for (owner, mint),
// charging the storage deposit to the payer. Allocation fails when the
// address is already occupied.
func (l *Ledger) OpenAccount(owner [20]byte, mint string, payer [20]byte) ([20]byte, error) {
	normalized, err := NormalizeMint(mint)
	if err != nil {
		return [20]byte{}, err
	}
	if _, err := l.Decimals(normalized); err != nil {
		return [20]byte{}, err
	}
	addr := Associated(owner, normalized)
	if _, ok, err := l.state.TokenAccountGet(addr); err != nil {
		return [20]byte{}, err
	} else if ok {
		return [20]byte{}, fmt.Errorf("%w: %x", ErrAccountExists, addr)
	}
	if err := l.ChargeStorage(payer, l.rent); err != nil {
		return [20]byte{}, err
	}
	acc := &Account{
		Owner:   owner,
		Mint:    normalized,
		Balance: big.NewInt(0),
		Rent:    new(big.Int).Set(l.rent),
	}
	if err := l.state.TokenAccountPut(addr, acc); err != nil {
		return [20]byte{}, err
	}
	return addr, nil
}

// EnsureAccount resolves the canonical holding account for (owner, mint),
// allocating it at the payer's expense when missing.
func (l *Ledger) EnsureAccount(owner [20]byte, mint string, payer [20]byte) ([20]byte, error) {
	normalized, err := NormalizeMint(mint)
	if err != nil {
		return [20]byte{}, err
	}
	addr := Associated(owner, normalized)
	if _, ok, err := l.state.TokenAccountGet(addr); err != nil {
		return [20]byte{}, err
	} else if ok {
		return addr, nil
	}
	return l.OpenAccount(owner, normalized, payer)
}

// TransferChecked moves amount between two holding accounts after validating
// that both accounts hold the declared mint and that the declared decimal
// precision matches the registered metadata.
func (l *Ledger) TransferChecked(from, to [20]byte, mint string, amount *big.Int, decimals uint8) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	normalized, err := NormalizeMint(mint)
	if err != nil {
		return err
	}
	registered, err := l.Decimals(normalized)
	if err != nil {
		return err
	}
	if registered != decimals {
		return fmt.Errorf("%w: %s declared %d registered %d", ErrDecimalsMismatch, normalized, decimals, registered)
	}
	fromAcc, err := l.Account(from)
	if err != nil {
		return err
	}
	toAcc, err := l.Account(to)
	if err != nil {
		return err
	}
	if fromAcc.Mint != normalized || toAcc.Mint != normalized {
		return fmt.Errorf("%w: %s", ErrMintMismatch, normalized)
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s need %s have %s", ErrInsufficientFunds, normalized, amount, fromAcc.Balance)
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := l.state.TokenAccountPut(from, fromAcc); err != nil {
		return err
	}
	return l.state.TokenAccountPut(to, toAcc)
}

// MintTo credits freshly minted units to the holding account at the address.
func (l *Ledger) MintTo(addr [20]byte, mint string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	normalized, err := NormalizeMint(mint)
	if err != nil {
		return err
	}
	if _, err := l.Decimals(normalized); err != nil {
		return err
	}
	acc, err := l.Account(addr)
	if err != nil {
		return err
	}
	if acc.Mint != normalized {
		return fmt.Errorf("%w: %s", ErrMintMismatch, normalized)
	}
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return l.state.TokenAccountPut(addr, acc)
}

// CloseAccount deallocates an empty holding account and credits its storage
// deposit to the recipient.
func (l *Ledger) CloseAccount(addr [20]byte, reclaimTo [20]byte) error {
	acc, err := l.Account(addr)
	if err != nil {
		return err
	}
	if acc.Balance.Sign() != 0 {
		return fmt.Errorf("%w: %x holds %s", ErrNonEmptyAccount, addr, acc.Balance)
	}
	if err := l.state.TokenAccountDelete(addr); err != nil {
		return err
	}
	return l.ReclaimStorage(reclaimTo, acc.Rent)
}

// ChargeStorage debits a storage deposit from the payer's credit balance.
func (l *Ledger) ChargeStorage(payer [20]byte, cost *big.Int) error {
	if cost == nil || cost.Sign() < 0 {
		return ErrInvalidAmount
	}
	if cost.Sign() == 0 {
		return nil
	}
	balance, err := l.state.StorageCreditBalance(payer)
	if err != nil {
		return err
	}
	if balance.Cmp(cost) < 0 {
		return fmt.Errorf("%w: need %s have %s", ErrInsufficientStorageCredit, cost, balance)
	}
	return l.state.SetStorageCredit(payer, new(big.Int).Sub(balance, cost))
}

// ReclaimStorage credits a reclaimed storage deposit to the recipient.
func (l *Ledger) ReclaimStorage(recipient [20]byte, cost *big.Int) error {
	if cost == nil || cost.Sign() < 0 {
		return ErrInvalidAmount
	}
	if cost.Sign() == 0 {
		return nil
	}
	balance, err := l.state.StorageCreditBalance(recipient)
	if err != nil {
		return err
	}
	return l.state.SetStorageCredit(recipient, new(big.Int).Add(balance, cost))
}
