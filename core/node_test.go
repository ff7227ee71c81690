package core

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"swapescrow/native/escrow"
	"swapescrow/native/token"
	"swapescrow/storage"
)

var (
	alice = fillAddr(0xA1)
	bob   = fillAddr(0xB2)
	carol = fillAddr(0xC3)
)

func fillAddr(b byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = b
	}
	return addr
}

func newTestNode(t *testing.T) *Node {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	node, err := NewNode(storage.NewMemDB(), logger)
	require.NoError(t, err)
	node.SetAccountRent(big.NewInt(10))
	node.SetRecordRent(big.NewInt(25))

	require.NoError(t, node.RegisterMint("GOLD", "Gold", 6))
	require.NoError(t, node.RegisterMint("IRON", "Iron", 9))
	for _, addr := range [][20]byte{alice, bob, carol} {
		require.NoError(t, node.CreditStorage(addr, big.NewInt(1_000)))
	}
	require.NoError(t, node.FundAccount(alice, "GOLD", big.NewInt(500)))
	require.NoError(t, node.FundAccount(bob, "IRON", big.NewInt(2_000)))
	return node
}

func requireBalance(t *testing.T, node *Node, owner [20]byte, mint string, want int64) {
	t.Helper()
	balance, err := node.TokenBalance(owner, mint)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(want), balance)
}

func requireCredit(t *testing.T, node *Node, addr [20]byte, want int64) {
	t.Helper()
	credit, err := node.StorageCredit(addr)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(want), credit)
}

func TestNodeExchangeEndToEnd(t *testing.T) {
	node := newTestNode(t)

	esc, addr, err := node.EscrowInitialize(alice, 7, "GOLD", "IRON", big.NewInt(400), big.NewInt(900), bob)
	require.NoError(t, err)
	require.Equal(t, alice, esc.Initializer)
	require.Equal(t, bob, esc.Taker)

	// Record rent plus two vault deposits come out of the initializer's
	// storage credit.
	requireCredit(t, node, alice, 990-25-20)
	requireBalance(t, node, alice, "GOLD", 100)

	vaultA := token.Associated(addr, "GOLD")
	vaultB := token.Associated(addr, "IRON")
	locked, err := node.VaultBalance(vaultA)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(400), locked)

	require.NoError(t, node.TokenTransfer(bob, vaultB, "IRON", big.NewInt(900)))
	requireBalance(t, node, bob, "IRON", 1_100)

	// Settlement may be triggered by anyone once the vault is funded.
	require.NoError(t, node.EscrowExchange(carol, addr))

	requireBalance(t, node, bob, "GOLD", 400)
	requireBalance(t, node, alice, "IRON", 900)

	// Vault and record deposits flow back to the initializer; carol paid for
	// the two settlement destination accounts.
	requireCredit(t, node, alice, 990)
	requireCredit(t, node, carol, 980)

	_, err = node.EscrowGet(addr)
	require.ErrorIs(t, err, ErrEscrowNotFound)
	for _, vault := range [][20]byte{vaultA, vaultB} {
		balance, err := node.VaultBalance(vault)
		require.NoError(t, err)
		require.Zero(t, balance.Sign())
	}

	evts := node.Events()
	require.Len(t, evts, 2)
	require.Equal(t, escrow.EventTypeInitialized, evts[0].EventType())
	require.Equal(t, escrow.EventTypeExchanged, evts[1].EventType())
}

func TestNodeCancelRefundsBothSides(t *testing.T) {
	node := newTestNode(t)

	_, addr, err := node.EscrowInitialize(alice, 3, "GOLD", "IRON", big.NewInt(400), big.NewInt(900), bob)
	require.NoError(t, err)

	vaultB := token.Associated(addr, "IRON")
	require.NoError(t, node.TokenTransfer(bob, vaultB, "IRON", big.NewInt(300)))

	// The taker may cancel too.
	require.NoError(t, node.EscrowCancel(bob, addr))

	requireBalance(t, node, alice, "GOLD", 500)
	requireBalance(t, node, bob, "IRON", 2_000)
	requireCredit(t, node, alice, 990)

	_, err = node.EscrowGet(addr)
	require.ErrorIs(t, err, ErrEscrowNotFound)

	require.ErrorIs(t, node.EscrowCancel(alice, addr), escrow.ErrNotFound)
}

func TestNodeCancelRejectsStrangers(t *testing.T) {
	node := newTestNode(t)

	_, addr, err := node.EscrowInitialize(alice, 4, "GOLD", "IRON", big.NewInt(100), big.NewInt(200), bob)
	require.NoError(t, err)

	require.ErrorIs(t, node.EscrowCancel(carol, addr), escrow.ErrUnauthorized)

	esc, err := node.EscrowGet(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(4), esc.Seed)
}

func TestNodeExchangeBelowThreshold(t *testing.T) {
	node := newTestNode(t)

	_, addr, err := node.EscrowInitialize(alice, 5, "GOLD", "IRON", big.NewInt(400), big.NewInt(900), bob)
	require.NoError(t, err)

	vaultB := token.Associated(addr, "IRON")
	// 854 < ceil(900 * 95 / 100) = 855.
	require.NoError(t, node.TokenTransfer(bob, vaultB, "IRON", big.NewInt(854)))
	require.ErrorIs(t, node.EscrowExchange(carol, addr), escrow.ErrInsufficientTakerTokens)

	// The deposit stays in the vault and the escrow stays open.
	live, err := node.VaultBalance(vaultB)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(854), live)
	_, err = node.EscrowGet(addr)
	require.NoError(t, err)

	// One more unit crosses the threshold.
	require.NoError(t, node.TokenTransfer(bob, vaultB, "IRON", big.NewInt(1)))
	require.NoError(t, node.EscrowExchange(carol, addr))
	requireBalance(t, node, alice, "IRON", 855)
}

func TestNodeRejectedOperationLeavesNoTrace(t *testing.T) {
	node := newTestNode(t)

	// The deposit transfer fails after the record rent was charged and both
	// vaults were allocated inside the overlay. None of it may persist.
	_, addr, err := node.EscrowInitialize(alice, 9, "GOLD", "IRON", big.NewInt(10_000), big.NewInt(900), bob)
	require.ErrorIs(t, err, token.ErrInsufficientFunds)

	requireCredit(t, node, alice, 990)
	requireBalance(t, node, alice, "GOLD", 500)

	derived, _, err := node.EscrowAddress(9)
	require.NoError(t, err)
	require.Equal(t, [20]byte{}, addr)
	_, err = node.EscrowGet(derived)
	require.ErrorIs(t, err, ErrEscrowNotFound)
	for _, mint := range []string{"GOLD", "IRON"} {
		balance, err := node.VaultBalance(token.Associated(derived, mint))
		require.NoError(t, err)
		require.Zero(t, balance.Sign())
	}
	require.Empty(t, node.Events())
}

func TestNodeSeedReuseRejected(t *testing.T) {
	node := newTestNode(t)

	_, _, err := node.EscrowInitialize(alice, 11, "GOLD", "IRON", big.NewInt(100), big.NewInt(200), bob)
	require.NoError(t, err)
	_, _, err = node.EscrowInitialize(alice, 11, "GOLD", "IRON", big.NewInt(50), big.NewInt(60), bob)
	require.ErrorIs(t, err, escrow.ErrAlreadyInitialized)
}

func TestNodeTokenBalanceForUnknownAccountIsZero(t *testing.T) {
	node := newTestNode(t)
	requireBalance(t, node, carol, "GOLD", 0)
}
