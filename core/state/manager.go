package state

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"swapescrow/native/escrow"
	"swapescrow/native/token"
	"swapescrow/storage"
)

// Backend is the key-value surface the manager reads and writes. Both
// storage.Database implementations and the Staged overlay satisfy it.
type Backend interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Put(key, value []byte) error
	Delete(key []byte) error
}

// Manager provides typed access to the persisted escrow ledger state. Keys are
// hashed with keccak256 under a domain prefix and values are RLP encoded.
type Manager struct {
	kv Backend
}

// NewManager creates a state manager operating on the provided backend.
func NewManager(kv Backend) *Manager {
	return &Manager{kv: kv}
}

var (
	mintPrefix          = []byte("mint:")
	tokenAccountPrefix  = []byte("token-account:")
	storageCreditPrefix = []byte("storage-credit:")
	escrowRecordPrefix  = []byte("escrow:")
)

func mintKey(symbol string) []byte {
	buf := make([]byte, len(mintPrefix)+len(symbol))
	copy(buf, mintPrefix)
	copy(buf[len(mintPrefix):], symbol)
	return ethcrypto.Keccak256(buf)
}

func tokenAccountKey(addr [20]byte) []byte {
	buf := make([]byte, len(tokenAccountPrefix)+len(addr))
	copy(buf, tokenAccountPrefix)
	copy(buf[len(tokenAccountPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func storageCreditKey(addr [20]byte) []byte {
	buf := make([]byte, len(storageCreditPrefix)+len(addr))
	copy(buf, storageCreditPrefix)
	copy(buf[len(storageCreditPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func escrowRecordKey(addr [20]byte) []byte {
	buf := make([]byte, len(escrowRecordPrefix)+len(addr))
	copy(buf, escrowRecordPrefix)
	copy(buf[len(escrowRecordPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) load(key []byte, out interface{}) (bool, error) {
	data, err := m.kv.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) store(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.kv.Put(key, encoded)
}

// --- Mint registry ---

// RegisterMint stores the metadata for a fungible asset type. Registering the
// same symbol twice is rejected.
func (m *Manager) RegisterMint(symbol, name string, decimals uint8) error {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return fmt.Errorf("state: mint symbol must not be empty")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("state: mint %s: name must not be empty", normalized)
	}
	key := mintKey(normalized)
	exists, err := m.kv.Has(key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("state: mint %s already registered", normalized)
	}
	meta := &token.MintMetadata{Symbol: normalized, Name: name, Decimals: decimals}
	return m.store(key, meta)
}

// Mint retrieves metadata for a registered asset type. The boolean reports
// whether the mint exists.
func (m *Manager) Mint(symbol string) (*token.MintMetadata, bool, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	meta := new(token.MintMetadata)
	ok, err := m.load(mintKey(normalized), meta)
	if err != nil || !ok {
		return nil, false, err
	}
	return meta, true, nil
}

// --- Token accounts ---

type storedTokenAccount struct {
	Owner   [20]byte
	Mint    string
	Balance *big.Int
	Rent    *big.Int
}

// TokenAccountPut persists a token holding account under its resolved address.
func (m *Manager) TokenAccountPut(addr [20]byte, acc *token.Account) error {
	if acc == nil {
		return fmt.Errorf("state: nil token account")
	}
	stored := &storedTokenAccount{
		Owner:   acc.Owner,
		Mint:    acc.Mint,
		Balance: cloneOrZero(acc.Balance),
		Rent:    cloneOrZero(acc.Rent),
	}
	return m.store(tokenAccountKey(addr), stored)
}

// TokenAccountGet loads the token account stored under the provided address.
func (m *Manager) TokenAccountGet(addr [20]byte) (*token.Account, bool, error) {
	stored := new(storedTokenAccount)
	ok, err := m.load(tokenAccountKey(addr), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &token.Account{
		Owner:   stored.Owner,
		Mint:    stored.Mint,
		Balance: cloneOrZero(stored.Balance),
		Rent:    cloneOrZero(stored.Rent),
	}, true, nil
}

// TokenAccountDelete removes the token account stored under the address.
func (m *Manager) TokenAccountDelete(addr [20]byte) error {
	return m.kv.Delete(tokenAccountKey(addr))
}

// --- Storage credits ---

// StorageCreditBalance returns the storage credit held by the address.
func (m *Manager) StorageCreditBalance(addr [20]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.load(storageCreditKey(addr), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// SetStorageCredit stores the storage credit balance for the address.
func (m *Manager) SetStorageCredit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: storage credit must be non-negative")
	}
	return m.store(storageCreditKey(addr), amount)
}

// --- Escrow records ---

type storedEscrow struct {
	Initializer       [20]byte
	Taker             [20]byte
	MintA             string
	MintB             string
	InitializerAmount *big.Int
	TakerAmount       *big.Int
	Seed              uint64
	Bump              uint8
	CreatedAt         *big.Int
}

// EscrowPut persists the escrow record under its derived address.
func (m *Manager) EscrowPut(addr [20]byte, esc *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(esc)
	if err != nil {
		return err
	}
	stored := &storedEscrow{
		Initializer:       sanitized.Initializer,
		Taker:             sanitized.Taker,
		MintA:             sanitized.MintA,
		MintB:             sanitized.MintB,
		InitializerAmount: sanitized.InitializerAmount,
		TakerAmount:       sanitized.TakerAmount,
		Seed:              sanitized.Seed,
		Bump:              sanitized.Bump,
		CreatedAt:         big.NewInt(sanitized.CreatedAt),
	}
	return m.store(escrowRecordKey(addr), stored)
}

// EscrowGet loads the escrow record stored under the derived address.
func (m *Manager) EscrowGet(addr [20]byte) (*escrow.Escrow, bool) {
	stored := new(storedEscrow)
	ok, err := m.load(escrowRecordKey(addr), stored)
	if err != nil || !ok {
		return nil, false
	}
	esc := &escrow.Escrow{
		Initializer:       stored.Initializer,
		Taker:             stored.Taker,
		MintA:             stored.MintA,
		MintB:             stored.MintB,
		InitializerAmount: cloneOrZero(stored.InitializerAmount),
		TakerAmount:       cloneOrZero(stored.TakerAmount),
		Seed:              stored.Seed,
		Bump:              stored.Bump,
	}
	if stored.CreatedAt != nil {
		esc.CreatedAt = stored.CreatedAt.Int64()
	}
	return esc, true
}

// EscrowHas reports whether a record occupies the derived address.
func (m *Manager) EscrowHas(addr [20]byte) (bool, error) {
	return m.kv.Has(escrowRecordKey(addr))
}

// EscrowDelete removes the escrow record. Deletion is how a record reaches its
// terminal state; there is no tombstone to resurrect.
func (m *Manager) EscrowDelete(addr [20]byte) error {
	return m.kv.Delete(escrowRecordKey(addr))
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
