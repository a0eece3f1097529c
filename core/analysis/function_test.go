// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package analysis

import (
	"strings"
	"testing"

	"github.com/probechain/evmdecompiler/core/trace"
	"github.com/probechain/evmdecompiler/core/vm"
)

func push(v uint64) []byte { return []byte{0x60, byte(v)} }
func program(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestAnalyzeSstoreEmitsStorageLine(t *testing.T) {
	code := program(push(99), push(0), []byte{byte(vm.SSTORE)}, []byte{byte(vm.STOP)})
	v := vm.New(code, nil, 1_000_000)
	root := &trace.VMTrace{}
	for i := 0; i < 3; i++ {
		_, inst, err := v.Step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		root.Operations = append(root.Operations, inst)
	}

	fn := AnalyzeSolidity(root, 0xdeadbeef)
	if len(fn.Storage) != 1 {
		t.Fatalf("expected 1 storage capture, got %d", len(fn.Storage))
	}
	found := false
	for _, line := range fn.Logic {
		if strings.Contains(line, "storage[") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a storage[...] assignment line, got %v", fn.Logic)
	}
}

func TestAnalyzePurityClearedBySload(t *testing.T) {
	code := program(push(0), []byte{byte(vm.SLOAD)}, []byte{byte(vm.STOP)})
	v := vm.New(code, nil, 1_000_000)
	root := &trace.VMTrace{}
	for i := 0; i < 2; i++ {
		_, inst, err := v.Step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		root.Operations = append(root.Operations, inst)
	}

	fn := AnalyzeSolidity(root, 1)
	if fn.Pure {
		t.Error("SLOAD should clear Pure")
	}
	if !fn.View {
		t.Error("SLOAD alone should not clear View (read-only)")
	}
}

func TestAnalyzeMutatingClearsView(t *testing.T) {
	code := program(push(1), push(0), []byte{byte(vm.SSTORE)}, []byte{byte(vm.STOP)})
	v := vm.New(code, nil, 1_000_000)
	root := &trace.VMTrace{}
	for i := 0; i < 3; i++ {
		_, inst, err := v.Step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		root.Operations = append(root.Operations, inst)
	}
	fn := AnalyzeSolidity(root, 2)
	if fn.View || fn.Pure {
		t.Error("SSTORE should clear both Pure and View")
	}
}

func TestVerifyBalancedBraces(t *testing.T) {
	fn := NewFunction(3)
	fn.emit("if (x) {")
	fn.emit("y = 1;")
	fn.emit("}")
	if errs := Verify(fn); len(errs) != 0 {
		t.Errorf("expected no verify errors, got %v", errs)
	}
}

func TestVerifyFlagsOpenConditional(t *testing.T) {
	fn := NewFunction(4)
	fn.openConditionals = append(fn.openConditionals, "x")
	fn.emit("if (x) {")
	errs := Verify(fn)
	if len(errs) == 0 {
		t.Fatal("expected a verify error for an unclosed conditional")
	}
}

func TestByteSizeToType(t *testing.T) {
	cases := []struct {
		n      int
		signed bool
		want   string
	}{
		{1, false, "uint8"},
		{1, true, "int8"},
		{32, false, "uint256"},
		{4, false, "uint32"},
	}
	for _, c := range cases {
		if got := byteSizeToType(c.n, c.signed); got != c.want {
			t.Errorf("byteSizeToType(%d, %v) = %q; want %q", c.n, c.signed, got, c.want)
		}
	}
}
