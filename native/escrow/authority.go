package escrow

import (
	"encoding/binary"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// StateTag is the namespace tag under which escrow record addresses are
// derived.
const StateTag = "state"

var authorityDomain = []byte("swapescrow/authority")

// ErrNoUsableBump indicates no bump value yields a usable authority address
// for the seed. With a 256-value search space this is not reachable in
// practice, but the contract is explicit about it.
var ErrNoUsableBump = errors.New("escrow: no usable bump for seed")

var errReservedAuthority = errors.New("escrow: derived address falls in the reserved range")

func authorityCandidate(tag string, seed uint64, bump uint8) [20]byte {
	var seedBytes [8]byte
	binary.LittleEndian.PutUint64(seedBytes[:], seed)
	buf := make([]byte, 0, len(authorityDomain)+1+len(tag)+1+len(seedBytes)+1)
	buf = append(buf, authorityDomain...)
	buf = append(buf, ':')
	buf = append(buf, tag...)
	buf = append(buf, ':')
	buf = append(buf, seedBytes[:]...)
	buf = append(buf, bump)
	hash := ethcrypto.Keccak256(buf)
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// reservedAuthority reports whether the candidate collides with the reserved
// low address range, which is set aside for system use and must never act as
// a custody authority.
func reservedAuthority(addr [20]byte) bool {
	for _, b := range addr[:18] {
		if b != 0 {
			return false
		}
	}
	return true
}

// AuthorityAddress recomputes the derived authority address for a known bump.
// It fails when the candidate is reserved, so a stored bump can only verify
// against an address the creation-time search would have accepted.
func AuthorityAddress(tag string, seed uint64, bump uint8) ([20]byte, error) {
	addr := authorityCandidate(tag, seed, bump)
	if reservedAuthority(addr) {
		return [20]byte{}, fmt.Errorf("%w: tag %q seed %d bump %d", errReservedAuthority, tag, seed, bump)
	}
	return addr, nil
}

// DeriveAuthority maps (tag, seed) to a deterministic custody-authority
// address and the bump that made the derivation valid. The address is the
// image of a domain-separated keccak256 hash, so no private key exists for
// it; only code that can reproduce this derivation may authorize transfers
// from accounts it owns. The bump search runs once, at creation time, from
// 255 downward.
func DeriveAuthority(tag string, seed uint64) ([20]byte, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		addr, err := AuthorityAddress(tag, seed, uint8(bump))
		if err != nil {
			continue
		}
		return addr, uint8(bump), nil
	}
	return [20]byte{}, 0, fmt.Errorf("%w: tag %q seed %d", ErrNoUsableBump, tag, seed)
}

// VerifyAuthority recomputes the derivation from (tag, seed, bump) and checks
// it against the claimed address. This is how every operation proves it is
// authorized to move vault funds; it replaces signature checks for custody
// accounts.
func VerifyAuthority(addr [20]byte, tag string, seed uint64, bump uint8) bool {
	derived, err := AuthorityAddress(tag, seed, bump)
	if err != nil {
		return false
	}
	return derived == addr
}
