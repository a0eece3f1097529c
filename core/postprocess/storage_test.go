// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package postprocess

import (
	"fmt"
	"strings"
	"testing"

	"github.com/holiman/uint256"

	"github.com/probechain/evmdecompiler/core/analysis"
	"github.com/probechain/evmdecompiler/core/vm"
)

func literalOp(v uint64) vm.WrappedOpcode { return vm.Literal(uint256.NewInt(v)) }

// hashSlot builds the keccak256(memory[0:0x40])-shaped WrappedOpcode a
// mapping-slot SSTORE's key always is; the actual key values a
// StorageCapture carries live in its reconstructed Keys field, not in
// this node's own (uninformative) offset/size operands.
func hashSlot() vm.WrappedOpcode {
	return vm.WrappedOpcode{
		Opcode: vm.SHA3,
		Inputs: []vm.WrappedInput{vm.RawInput(uint256.NewInt(0)), vm.RawInput(uint256.NewInt(0x40))},
	}
}

func TestInferStorageDirectSlot(t *testing.T) {
	slot := literalOp(5)
	val := literalOp(7)
	fn := analysis.NewFunction(1)
	fn.Storage = []analysis.StorageCapture{{Key: slot, Value: val}}
	fn.Logic = []string{fmt.Sprintf("storage[%s] = %s;", slot.Solidify(), val.Solidify())}

	sn := NewStorageNamer()
	out := InferStorage(fn, sn)
	if len(out) != 1 || !strings.HasPrefix(out[0], "store_") {
		t.Fatalf("expected a direct store_ rewrite, got %v", out)
	}
	decls := sn.Declarations()
	if len(decls) != 1 || !strings.Contains(decls[0], "bytes32") {
		t.Errorf("expected a bytes32 direct-slot declaration, got %v", decls)
	}
}

func TestInferStorageSingleMapping(t *testing.T) {
	callerOp := vm.WrappedOpcode{Opcode: vm.CALLER}
	hashed := hashSlot()
	val := vm.WrappedOpcode{Opcode: vm.CALLDATALOAD, Inputs: []vm.WrappedInput{vm.RawInput(uint256.NewInt(36))}}

	fn := analysis.NewFunction(2)
	fn.Storage = []analysis.StorageCapture{{
		Key:   hashed,
		Value: val,
		Keys:  []vm.WrappedOpcode{callerOp},
	}}
	fn.Logic = []string{fmt.Sprintf("storage[%s] = %s;", hashed.Solidify(), val.Solidify())}

	sn := NewStorageNamer()
	out := InferStorage(fn, sn)
	if len(out) != 1 || !strings.Contains(out[0], "storage_map_a[msg.sender]") {
		t.Fatalf("expected storage_map_a[msg.sender] rewrite, got %v", out)
	}
	decls := sn.Declarations()
	found := false
	for _, d := range decls {
		if d == "mapping(address => uint256) storage_map_a;" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an address-keyed uint256 mapping declaration, got %v", decls)
	}
}

func TestInferStorageNestedMapping(t *testing.T) {
	callerOp := vm.WrappedOpcode{Opcode: vm.CALLER}
	arg0 := vm.WrappedOpcode{Opcode: vm.CALLDATALOAD, Inputs: []vm.WrappedInput{vm.RawInput(uint256.NewInt(4))}}
	val := vm.WrappedOpcode{Opcode: vm.CALLDATALOAD, Inputs: []vm.WrappedInput{vm.RawInput(uint256.NewInt(36))}}
	slot2 := hashSlot()

	fn := analysis.NewFunction(3)
	fn.Storage = []analysis.StorageCapture{{
		Key:   slot2,
		Value: val,
		Keys:  []vm.WrappedOpcode{callerOp, arg0},
	}}
	fn.Logic = []string{fmt.Sprintf("storage[%s] = %s;", slot2.Solidify(), val.Solidify())}

	sn := NewStorageNamer()
	out := InferStorage(fn, sn)
	if len(out) != 1 || !strings.Contains(out[0], "storage_map_a[msg.sender][arg0]") {
		t.Fatalf("expected storage_map_a[msg.sender][arg0] rewrite, got %v", out)
	}
	decls := sn.Declarations()
	found := false
	for _, d := range decls {
		if d == "mapping(address => mapping(address => uint256)) storage_map_a;" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the nested mapping declaration, got %v", decls)
	}
}
