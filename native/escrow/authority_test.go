package escrow

import "testing"

func TestDeriveAuthorityDeterministic(t *testing.T) {
	addr1, bump1, err := DeriveAuthority(StateTag, 42)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	addr2, bump2, err := DeriveAuthority(StateTag, 42)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if addr1 != addr2 || bump1 != bump2 {
		t.Fatalf("derivation is not deterministic")
	}
	if addr1 == ([20]byte{}) {
		t.Fatalf("derived the zero address")
	}
}

func TestDeriveAuthorityDistinguishesSeedsAndTags(t *testing.T) {
	addrA, _, err := DeriveAuthority(StateTag, 1)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	addrB, _, err := DeriveAuthority(StateTag, 2)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if addrA == addrB {
		t.Fatalf("distinct seeds collided")
	}
	addrC, _, err := DeriveAuthority("vault", 1)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if addrA == addrC {
		t.Fatalf("distinct tags collided")
	}
}

func TestVerifyAuthority(t *testing.T) {
	addr, bump, err := DeriveAuthority(StateTag, 99)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !VerifyAuthority(addr, StateTag, 99, bump) {
		t.Fatalf("fresh derivation failed to verify")
	}
	if VerifyAuthority(addr, StateTag, 99, bump-1) {
		t.Fatalf("wrong bump verified")
	}
	if VerifyAuthority(addr, StateTag, 98, bump) {
		t.Fatalf("wrong seed verified")
	}
	if VerifyAuthority(addr, "vault", 99, bump) {
		t.Fatalf("wrong tag verified")
	}
	var other [20]byte
	other[0] = 0x01
	if VerifyAuthority(other, StateTag, 99, bump) {
		t.Fatalf("foreign address verified")
	}
}

func TestAuthorityAddressMatchesSearchResult(t *testing.T) {
	addr, bump, err := DeriveAuthority(StateTag, 7)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	recomputed, err := AuthorityAddress(StateTag, 7, bump)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if recomputed != addr {
		t.Fatalf("single-bump recomputation disagrees with the search")
	}
}
