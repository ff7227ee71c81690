package core

import (
	"encoding/hex"
	"errors"
	"log/slog"
	"math/big"
	"sync"

	"swapescrow/core/events"
	"swapescrow/core/state"
	"swapescrow/native/escrow"
	"swapescrow/native/token"
	"swapescrow/storage"
)

// ErrEscrowNotFound is returned when an escrow record is missing from state.
var ErrEscrowNotFound = errors.New("escrow not found")

// Node is the central controller, wiring storage, ledger and escrow engine
// together. Every operation runs against a staged overlay that is committed
// in a single batch on success and discarded on failure, so a rejected
// operation leaves no trace in the backing database.
type Node struct {
	db          storage.Database
	logger      *slog.Logger
	stateMu     sync.Mutex
	eventLog    []events.Event
	recordRent  *big.Int
	accountRent *big.Int
}

// NewNode creates a node on top of the provided database.
func NewNode(db storage.Database, logger *slog.Logger) (*Node, error) {
	if db == nil {
		return nil, errors.New("core: node requires a database")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{
		db:          db,
		logger:      logger,
		recordRent:  new(big.Int).Set(escrow.DefaultRecordRent),
		accountRent: new(big.Int).Set(token.DefaultAccountRent),
	}, nil
}

// SetRecordRent overrides the storage deposit charged per escrow record.
func (n *Node) SetRecordRent(cost *big.Int) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if cost != nil && cost.Sign() >= 0 {
		n.recordRent = new(big.Int).Set(cost)
	}
}

// SetAccountRent overrides the storage deposit charged per holding account.
func (n *Node) SetAccountRent(cost *big.Int) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if cost != nil && cost.Sign() >= 0 {
		n.accountRent = new(big.Int).Set(cost)
	}
}

func (n *Node) newLedger(manager *state.Manager) *token.Ledger {
	ledger := token.NewLedger(manager)
	ledger.SetAccountRent(n.accountRent)
	return ledger
}

func (n *Node) newEscrowEngine(manager *state.Manager, emitter events.Emitter) *escrow.Engine {
	engine := escrow.NewEngine()
	engine.SetState(manager)
	engine.SetLedger(n.newLedger(manager))
	engine.SetEmitter(emitter)
	engine.SetRecordRent(n.recordRent)
	return engine
}

// withStaged runs fn against an overlay on the backing database. The overlay
// is committed only when fn succeeds; events emitted by fn reach the node's
// event log only after the commit lands. Callers hold stateMu.
func (n *Node) withStaged(fn func(engine *escrow.Engine, manager *state.Manager) error) error {
	staged := state.NewStaged(n.db)
	buffer := events.NewMemoryEmitter(0)
	manager := state.NewManager(staged)
	engine := n.newEscrowEngine(manager, buffer)
	if err := fn(engine, manager); err != nil {
		staged.Discard()
		return err
	}
	if err := staged.Commit(); err != nil {
		staged.Discard()
		return err
	}
	n.eventLog = append(n.eventLog, buffer.Events()...)
	return nil
}

// EscrowInitialize opens a new escrow: it derives the custody authority for
// the seed, locks the initializer's deposit in the first vault and persists
// the record.
func (n *Node) EscrowInitialize(caller [20]byte, seed uint64, mintA, mintB string, initializerAmount, takerAmount *big.Int, taker [20]byte) (*escrow.Escrow, [20]byte, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	var (
		esc  *escrow.Escrow
		addr [20]byte
	)
	err := n.withStaged(func(engine *escrow.Engine, _ *state.Manager) error {
		created, derived, err := engine.Initialize(caller, seed, mintA, mintB, initializerAmount, takerAmount, taker)
		if err != nil {
			return err
		}
		esc, addr = created, derived
		return nil
	})
	if err != nil {
		return nil, [20]byte{}, err
	}
	n.logger.Info("escrow initialized",
		"address", addrHex(addr),
		"seed", seed,
		"initializer", addrHex(caller),
	)
	return esc, addr, nil
}

// EscrowCancel unwinds the escrow at the address, refunding both vaults.
func (n *Node) EscrowCancel(caller [20]byte, addr [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	err := n.withStaged(func(engine *escrow.Engine, _ *state.Manager) error {
		return engine.Cancel(caller, addr)
	})
	if err != nil {
		return err
	}
	n.logger.Info("escrow cancelled", "address", addrHex(addr), "caller", addrHex(caller))
	return nil
}

// EscrowExchange settles the escrow at the address, swapping both legs.
func (n *Node) EscrowExchange(caller [20]byte, addr [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	err := n.withStaged(func(engine *escrow.Engine, _ *state.Manager) error {
		return engine.Exchange(caller, addr)
	})
	if err != nil {
		return err
	}
	n.logger.Info("escrow exchanged", "address", addrHex(addr), "caller", addrHex(caller))
	return nil
}

// EscrowGet loads the escrow record stored at the address.
func (n *Node) EscrowGet(addr [20]byte) (*escrow.Escrow, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	esc, ok := manager.EscrowGet(addr)
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return esc, nil
}

// EscrowAddress derives the custody authority address and bump for a seed
// without touching state.
func (n *Node) EscrowAddress(seed uint64) ([20]byte, uint8, error) {
	return escrow.ResolveAddress(seed)
}

// RegisterMint records metadata for a fungible asset type.
func (n *Node) RegisterMint(symbol, name string, decimals uint8) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	return n.withStaged(func(_ *escrow.Engine, manager *state.Manager) error {
		return manager.RegisterMint(symbol, name, decimals)
	})
}

// MintInfo returns the metadata registered for a mint symbol.
func (n *Node) MintInfo(symbol string) (*token.MintMetadata, bool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	return manager.Mint(symbol)
}

// FundAccount credits freshly minted units to the owner's holding account,
// allocating the account at the owner's expense when missing. Intended for
// genesis allocations and local testing.
func (n *Node) FundAccount(owner [20]byte, mint string, amount *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	return n.withStaged(func(_ *escrow.Engine, manager *state.Manager) error {
		ledger := n.newLedger(manager)
		addr, err := ledger.EnsureAccount(owner, mint, owner)
		if err != nil {
			return err
		}
		return ledger.MintTo(addr, mint, amount)
	})
}

// TokenTransfer moves amount from the caller's holding account to the exact
// destination address. Takers use it to deposit into an escrow's second vault.
func (n *Node) TokenTransfer(caller [20]byte, to [20]byte, mint string, amount *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	return n.withStaged(func(_ *escrow.Engine, manager *state.Manager) error {
		ledger := n.newLedger(manager)
		decimals, err := ledger.Decimals(mint)
		if err != nil {
			return err
		}
		return ledger.TransferChecked(token.Associated(caller, mint), to, mint, amount, decimals)
	})
}

// TokenBalance returns the balance the owner holds in the given mint. A
// missing holding account reads as zero.
func (n *Node) TokenBalance(owner [20]byte, mint string) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	balance, err := n.newLedger(manager).Balance(token.Associated(owner, mint))
	if errors.Is(err, token.ErrAccountNotFound) {
		return big.NewInt(0), nil
	}
	return balance, err
}

// VaultBalance returns the balance held by the holding account at the exact
// address, custody vaults included.
func (n *Node) VaultBalance(addr [20]byte) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := state.NewManager(n.db)
	balance, err := n.newLedger(manager).Balance(addr)
	if errors.Is(err, token.ErrAccountNotFound) {
		return big.NewInt(0), nil
	}
	return balance, err
}

// StorageCredit returns the storage-credit balance for an address.
func (n *Node) StorageCredit(addr [20]byte) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	return state.NewManager(n.db).StorageCreditBalance(addr)
}

// CreditStorage tops up the storage-credit balance for an address. Intended
// for genesis allocations and local testing.
func (n *Node) CreditStorage(addr [20]byte, amount *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	if amount == nil || amount.Sign() < 0 {
		return errors.New("core: storage credit must be non-negative")
	}
	return n.withStaged(func(_ *escrow.Engine, manager *state.Manager) error {
		balance, err := manager.StorageCreditBalance(addr)
		if err != nil {
			return err
		}
		return manager.SetStorageCredit(addr, new(big.Int).Add(balance, amount))
	})
}

// Events returns a snapshot of every committed event, oldest first.
func (n *Node) Events() []events.Event {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	snapshot := make([]events.Event, len(n.eventLog))
	copy(snapshot, n.eventLog)
	return snapshot
}

func addrHex(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}
