// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package decompile

import (
	"context"
	"testing"

	"github.com/probechain/evmdecompiler/core/abi"
)

type staticProvider struct{ code []byte }

func (p staticProvider) Fetch(ctx context.Context, t TargetSpec) ([]byte, error) { return p.code, nil }

type emptyResolver struct{}

func (emptyResolver) Resolve(ctx context.Context, selector [4]byte) ([]abi.Candidate, error) {
	return nil, nil
}

func TestDecompileSimpleReturnFunction(t *testing.T) {
	// PUSH1 0x2a PUSH1 0 MSTORE PUSH1 0x20 PUSH1 0 RETURN; no dispatcher,
	// so only the pc=0 fallback selector gets analyzed.
	code := []byte{
		0x60, 0x2a, // PUSH1 0x2a
		0x60, 0x00, // PUSH1 0
		0x52,       // MSTORE
		0x60, 0x20, // PUSH1 0x20
		0x60, 0x00, // PUSH1 0
		0xf3, // RETURN
	}

	result, err := Decompile(context.Background(), staticProvider{code: code}, emptyResolver{}, TargetSpec{Hex: "00"}, Options{SkipResolving: true})
	if err != nil {
		t.Fatalf("Decompile: %v", err)
	}
	if len(result.Functions) == 0 {
		t.Fatal("expected at least the pc=0 fallback selector to be analyzed")
	}
	if len(result.Source) == 0 {
		t.Fatal("expected non-empty rendered source")
	}
}

func TestCacheKeyFormat(t *testing.T) {
	got := CacheKey([4]byte{0xaa, 0xbb, 0xcc, 0xdd})
	want := "selector.aabbccdd"
	if got != want {
		t.Errorf("got %q; want %q", got, want)
	}
}

func TestSignatureCacheRoundTrip(t *testing.T) {
	c := NewSignatureCache(4)
	sel := [4]byte{1, 2, 3, 4}
	c.Put(sel, []abi.Candidate{{Name: "foo", Signature: "foo()"}})
	got, ok := c.Get(sel)
	if !ok || len(got) != 1 || got[0].Name != "foo" {
		t.Errorf("got %+v, %v", got, ok)
	}
}

func TestDetectCompilerSolcPrefix(t *testing.T) {
	code := []byte{0x60, 0x80, 0x60, 0x40, 0x52}
	family, version := DetectCompiler(code)
	if family != "solc" || version != "0.4.22+" {
		t.Errorf("got (%q, %q)", family, version)
	}
}

func TestDetectCompilerUnknown(t *testing.T) {
	family, _ := DetectCompiler([]byte{0x00, 0x01, 0x02})
	if family != "" {
		t.Errorf("expected no match, got %q", family)
	}
}
