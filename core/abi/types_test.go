// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package abi

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestParseTypeRoundTrip(t *testing.T) {
	cases := []string{
		"uint256", "int8", "bool", "address", "bytes32", "bytes", "string",
		"address[]", "uint256[3]", "uint256[2][]", "(uint256,bytes)",
	}
	for _, s := range cases {
		ty, err := ParseType(s)
		if err != nil {
			t.Fatalf("ParseType(%q): %v", s, err)
		}
		if got := ty.String(); got != s {
			t.Errorf("ParseType(%q).String() = %q; want %q", s, got, s)
		}
	}
}

func TestParseTypeRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "uint257", "foo", "bytes33"} {
		if _, err := ParseType(s); err == nil {
			t.Errorf("ParseType(%q) expected error, got none", s)
		}
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	sig, err := ParseSignature("transfer(address,uint256)")
	if err != nil {
		t.Fatal(err)
	}
	if got := sig.String(); got != "transfer(address,uint256)" {
		t.Errorf("got %q", got)
	}
}

func TestScorePrefersShorterLessNumeric(t *testing.T) {
	a := Score("transfer(address,uint256)")
	b := Score("transfer_77059df9(address,uint256)")
	if a <= b {
		t.Errorf("expected named signature to outscore a hash-suffixed one: %d vs %d", a, b)
	}
}

func TestBestCandidateTieBreaksByOrder(t *testing.T) {
	cands := []Candidate{
		{Name: "a", Signature: "f(uint256)"},
		{Name: "b", Signature: "f(uint256)"},
	}
	best, ok := BestCandidate(cands)
	if !ok || best.Name != "a" {
		t.Errorf("expected first candidate to win tie, got %+v", best)
	}
}

func TestEncodeDecodeHexRoundTrip(t *testing.T) {
	cases := []string{"", "deadbeef", "00ff00"}
	for _, s := range cases {
		b, err := DecodeHex(s)
		if err != nil {
			t.Fatalf("DecodeHex(%q): %v", s, err)
		}
		if got := EncodeHex(b); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}

func TestEncodeHexReducedZero(t *testing.T) {
	if got := EncodeHexReduced(uint256.NewInt(0)); got != "0" {
		t.Errorf("got %q", got)
	}
}

func TestEncodeHexReducedNonZeroNoLeadingZeroByte(t *testing.T) {
	v := uint256.NewInt(0x2a)
	got := EncodeHexReduced(v)
	if got != "0x2a" {
		t.Errorf("got %q", got)
	}
}

func TestCoverageTrackerDoubleClaimOnReadConflict(t *testing.T) {
	ct := NewCoverageTracker()
	if err := ct.Claim(2, "argA.offset"); err != nil {
		t.Fatal(err)
	}
	if err := ct.Use(2); err != nil {
		t.Fatal(err)
	}
	if err := ct.Claim(2, "argB.offset"); err == nil {
		t.Error("expected double-claim error once the first claim was read")
	}
}

func TestCoverageTrackerUnclaimedRead(t *testing.T) {
	ct := NewCoverageTracker()
	if err := ct.Use(5); err == nil {
		t.Error("expected error using an unclaimed word")
	}
}

func TestCoverageTrackerCheckAllClaimedFlagsUnread(t *testing.T) {
	ct := NewCoverageTracker()
	ct.Claim(1, "argA.length")
	errs := ct.CheckAllClaimed()
	if len(errs) != 1 {
		t.Fatalf("expected 1 unread claim, got %d", len(errs))
	}
}

func word(hexBytes ...byte) [32]byte {
	var w [32]byte
	copy(w[32-len(hexBytes):], hexBytes)
	return w
}

func TestDetectDynamicBytesShortValue(t *testing.T) {
	words := [][32]byte{
		word(0x20),                   // word 0: pointer -> offset 1
		word(3),                      // word 1: length = 3
		{0xab, 0xcd, 0xef},           // word 2: data, right-padded
	}
	res := DetectDynamic(words, 0)
	if res == nil || res.Type != "bytes" {
		t.Fatalf("expected bytes, got %+v", res)
	}
	for _, want := range []uint64{0, 1, 2} {
		found := false
		for _, c := range res.Coverages {
			if c == want {
				found = true
			}
		}
		if !found {
			t.Errorf("expected coverage to include word %d: %v", want, res.Coverages)
		}
	}
}

func TestDetectDynamicRejectsMisalignedOffset(t *testing.T) {
	words := [][32]byte{word(0x15)}
	if res := DetectDynamic(words, 0); res != nil {
		t.Errorf("expected nil for non-32-aligned offset, got %+v", res)
	}
}

func TestDetectDynamicArrayOfAddresses(t *testing.T) {
	addr1 := word(0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11,
		0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11, 0x11)
	addr2 := addr1
	words := [][32]byte{
		word(0x20), // pointer -> offset 1
		word(2),    // length = 2
		addr1,
		addr2,
	}
	res := DetectDynamic(words, 0)
	if res == nil || res.Type != "address[]" {
		t.Fatalf("expected address[], got %+v", res)
	}
}

func TestChunkWordsPadsToMultiple(t *testing.T) {
	data := []byte{1, 2, 3}
	words := ChunkWords(data)
	if len(words) != 1 {
		t.Fatalf("expected 1 word, got %d", len(words))
	}
	if words[0][0] != 1 || words[0][31] != 0 {
		t.Errorf("unexpected padding: %v", words[0])
	}
}
