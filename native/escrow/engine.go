package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"swapescrow/core/events"
	"swapescrow/native/token"
)

var (
	errNilState  = errors.New("escrow engine: state not configured")
	errNilLedger = errors.New("escrow engine: token ledger not configured")
)

// DefaultRecordRent is the storage deposit backing one escrow record, in
// storage-credit units.
var DefaultRecordRent = big.NewInt(1_893_840)

type engineState interface {
	EscrowPut(addr [20]byte, esc *Escrow) error
	EscrowGet(addr [20]byte) (*Escrow, bool)
	EscrowHas(addr [20]byte) (bool, error)
	EscrowDelete(addr [20]byte) error
}

// TokenLedger is the checked asset-transfer collaborator the engine moves
// funds through. Custody vaults are the derived authority's associated
// accounts on this ledger.
type TokenLedger interface {
	Decimals(mint string) (uint8, error)
	Associated(owner [20]byte, mint string) [20]byte
	OpenAccount(owner [20]byte, mint string, payer [20]byte) ([20]byte, error)
	EnsureAccount(owner [20]byte, mint string, payer [20]byte) ([20]byte, error)
	Balance(addr [20]byte) (*big.Int, error)
	TransferChecked(from, to [20]byte, mint string, amount *big.Int, decimals uint8) error
	CloseAccount(addr [20]byte, reclaimTo [20]byte) error
	ChargeStorage(payer [20]byte, cost *big.Int) error
	ReclaimStorage(recipient [20]byte, cost *big.Int) error
}

// Engine implements the escrow state machine: Initialize opens an escrow and
// takes custody of the initializer's funds, Cancel refunds and tears an open
// escrow down, Exchange settles the swap. Each operation is a single
// indivisible unit of work; callers run it against a staged state and commit
// only on success.
type Engine struct {
	state      engineState
	ledger     TokenLedger
	emitter    events.Emitter
	nowFn      func() int64
	recordRent *big.Int
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter:    events.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
		recordRent: new(big.Int).Set(DefaultRecordRent),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the token ledger the engine settles against.
func (e *Engine) SetLedger(ledger TokenLedger) { e.ledger = ledger }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for record timestamps. Primarily
// intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetRecordRent overrides the storage deposit charged per escrow record.
func (e *Engine) SetRecordRent(cost *big.Int) {
	if cost == nil || cost.Sign() < 0 {
		e.recordRent = new(big.Int).Set(DefaultRecordRent)
		return
	}
	e.recordRent = new(big.Int).Set(cost)
}

func (e *Engine) emit(evt *Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return nil
}

// ResolveAddress recomputes the record address and bump for a seed without
// touching state.
func ResolveAddress(seed uint64) ([20]byte, uint8, error) {
	return DeriveAuthority(StateTag, seed)
}

// Initialize opens a new escrow: it derives the record address from the seed,
// allocates the record and both custody vaults, and moves initializerAmount
// of mintA from the caller's holding account into vault_a. takerAmount of
// mintB is what the named taker is expected to fund before Exchange.
func (e *Engine) Initialize(caller [20]byte, seed uint64, mintA, mintB string, initializerAmount, takerAmount *big.Int, taker [20]byte) (*Escrow, [20]byte, error) {
	if err := e.ready(); err != nil {
		return nil, [20]byte{}, err
	}
	if initializerAmount == nil || initializerAmount.Sign() <= 0 {
		return nil, [20]byte{}, fmt.Errorf("%w: initializer amount", ErrInvalidAmount)
	}
	if takerAmount == nil || takerAmount.Sign() <= 0 {
		return nil, [20]byte{}, fmt.Errorf("%w: taker amount", ErrInvalidAmount)
	}
	normalizedA, err := token.NormalizeMint(mintA)
	if err != nil {
		return nil, [20]byte{}, fmt.Errorf("%w: %v", ErrInvalidAsset, err)
	}
	normalizedB, err := token.NormalizeMint(mintB)
	if err != nil {
		return nil, [20]byte{}, fmt.Errorf("%w: %v", ErrInvalidAsset, err)
	}
	decimalsA, err := e.ledger.Decimals(normalizedA)
	if err != nil {
		return nil, [20]byte{}, fmt.Errorf("%w: %v", ErrInvalidAsset, err)
	}
	if _, err := e.ledger.Decimals(normalizedB); err != nil {
		return nil, [20]byte{}, fmt.Errorf("%w: %v", ErrInvalidAsset, err)
	}

	addr, bump, err := DeriveAuthority(StateTag, seed)
	if err != nil {
		return nil, [20]byte{}, err
	}
	occupied, err := e.state.EscrowHas(addr)
	if err != nil {
		return nil, [20]byte{}, err
	}
	if occupied {
		return nil, [20]byte{}, fmt.Errorf("%w: seed %d", ErrAlreadyInitialized, seed)
	}

	if err := e.ledger.ChargeStorage(caller, e.recordRent); err != nil {
		return nil, [20]byte{}, err
	}
	vaultA, err := e.ledger.OpenAccount(addr, normalizedA, caller)
	if err != nil {
		if errors.Is(err, token.ErrAccountExists) {
			return nil, [20]byte{}, fmt.Errorf("%w: seed %d", ErrAlreadyInitialized, seed)
		}
		return nil, [20]byte{}, err
	}
	if _, err := e.ledger.OpenAccount(addr, normalizedB, caller); err != nil {
		if errors.Is(err, token.ErrAccountExists) {
			return nil, [20]byte{}, fmt.Errorf("%w: seed %d", ErrAlreadyInitialized, seed)
		}
		return nil, [20]byte{}, err
	}

	source := e.ledger.Associated(caller, normalizedA)
	if err := e.ledger.TransferChecked(source, vaultA, normalizedA, initializerAmount, decimalsA); err != nil {
		return nil, [20]byte{}, err
	}

	esc := &Escrow{
		Initializer:       caller,
		Taker:             taker,
		MintA:             normalizedA,
		MintB:             normalizedB,
		InitializerAmount: new(big.Int).Set(initializerAmount),
		TakerAmount:       new(big.Int).Set(takerAmount),
		Seed:              seed,
		Bump:              bump,
		CreatedAt:         e.now(),
	}
	if err := e.state.EscrowPut(addr, esc); err != nil {
		return nil, [20]byte{}, err
	}
	e.emit(NewInitializedEvent(addr, esc))
	return esc.Clone(), addr, nil
}

// Cancel refunds both vaults per their current balances and tears the escrow
// down. The initializer or the taker may cancel; taker-initiated cancellation
// before settlement is intentional. Vault storage and the record's storage
// are reclaimed to the initializer.
func (e *Engine) Cancel(caller [20]byte, addr [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, ok := e.state.EscrowGet(addr)
	if !ok {
		return fmt.Errorf("%w: %x", ErrNotFound, addr)
	}
	if caller != esc.Initializer && caller != esc.Taker {
		return fmt.Errorf("%w: %x", ErrUnauthorized, caller)
	}
	if !VerifyAuthority(addr, StateTag, esc.Seed, esc.Bump) {
		return fmt.Errorf("%w: seed %d bump %d", ErrAuthorityMismatch, esc.Seed, esc.Bump)
	}

	vaultA := e.ledger.Associated(addr, esc.MintA)
	vaultB := e.ledger.Associated(addr, esc.MintB)
	refundedA, err := e.drainVault(vaultA, esc.MintA, esc.Initializer, caller)
	if err != nil {
		return err
	}
	refundedB, err := e.drainVault(vaultB, esc.MintB, esc.Taker, caller)
	if err != nil {
		return err
	}

	if err := e.closeEscrow(addr, esc, vaultA, vaultB); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(addr, esc, refundedA, refundedB))
	return nil
}

// Exchange settles the swap. Any caller may trigger settlement once the taker
// has funded vault_b to at least 95% of the requested amount: the taker
// receives the initializer's locked mintA, the initializer receives the
// entire live vault_b balance (overpayment forwarded in full, in-band
// shortfall accepted as final), and the escrow is torn down.
func (e *Engine) Exchange(caller [20]byte, addr [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	esc, ok := e.state.EscrowGet(addr)
	if !ok {
		return fmt.Errorf("%w: %x", ErrNotFound, addr)
	}
	if !VerifyAuthority(addr, StateTag, esc.Seed, esc.Bump) {
		return fmt.Errorf("%w: seed %d bump %d", ErrAuthorityMismatch, esc.Seed, esc.Bump)
	}

	vaultA := e.ledger.Associated(addr, esc.MintA)
	vaultB := e.ledger.Associated(addr, esc.MintB)
	liveB, err := e.ledger.Balance(vaultB)
	if err != nil {
		return err
	}
	minAcceptable := minAcceptableAmount(esc.TakerAmount)
	if liveB.Cmp(minAcceptable) < 0 {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientTakerTokens, liveB, minAcceptable)
	}

	decimalsA, err := e.ledger.Decimals(esc.MintA)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAsset, err)
	}
	decimalsB, err := e.ledger.Decimals(esc.MintB)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAsset, err)
	}

	takerDest, err := e.ledger.EnsureAccount(esc.Taker, esc.MintA, caller)
	if err != nil {
		return err
	}
	if err := e.ledger.TransferChecked(vaultA, takerDest, esc.MintA, esc.InitializerAmount, decimalsA); err != nil {
		return err
	}
	initializerDest, err := e.ledger.EnsureAccount(esc.Initializer, esc.MintB, caller)
	if err != nil {
		return err
	}
	// Settle on the live balance, not the requested amount.
	if err := e.ledger.TransferChecked(vaultB, initializerDest, esc.MintB, liveB, decimalsB); err != nil {
		return err
	}

	if err := e.closeEscrow(addr, esc, vaultA, vaultB); err != nil {
		return err
	}
	e.emit(NewExchangedEvent(addr, esc, liveB))
	return nil
}

// drainVault transfers the vault's full balance to the recipient's holding
// account. A vault with zero balance skips the transfer; it is still closed
// by the caller afterwards.
func (e *Engine) drainVault(vault [20]byte, mint string, recipient [20]byte, payer [20]byte) (*big.Int, error) {
	balance, err := e.ledger.Balance(vault)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return balance, nil
	}
	decimals, err := e.ledger.Decimals(mint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAsset, err)
	}
	dest, err := e.ledger.EnsureAccount(recipient, mint, payer)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.TransferChecked(vault, dest, mint, balance, decimals); err != nil {
		return nil, err
	}
	return balance, nil
}

// closeEscrow closes both vaults and deletes the record, reclaiming all
// backing storage to the initializer. Terminal: the escrow cannot be
// accessed again.
func (e *Engine) closeEscrow(addr [20]byte, esc *Escrow, vaultA, vaultB [20]byte) error {
	if err := e.ledger.CloseAccount(vaultA, esc.Initializer); err != nil {
		return err
	}
	if err := e.ledger.CloseAccount(vaultB, esc.Initializer); err != nil {
		return err
	}
	if err := e.state.EscrowDelete(addr); err != nil {
		return err
	}
	return e.ledger.ReclaimStorage(esc.Initializer, e.recordRent)
}

// minAcceptableAmount computes ceil(takerAmount * 95 / 100), the smallest
// vault_b balance Exchange accepts.
func minAcceptableAmount(takerAmount *big.Int) *big.Int {
	if takerAmount == nil || takerAmount.Sign() <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(takerAmount, big.NewInt(95))
	quo, rem := new(big.Int).QuoRem(num, big.NewInt(100), new(big.Int))
	if rem.Sign() > 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}
