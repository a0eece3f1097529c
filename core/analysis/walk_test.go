// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package analysis

import (
	"testing"

	"github.com/probechain/evmdecompiler/core/trace"
	"github.com/probechain/evmdecompiler/core/vm"
)

func runSteps(t *testing.T, code []byte, n int) *trace.VMTrace {
	t.Helper()
	v := vm.New(code, nil, 1_000_000)
	root := &trace.VMTrace{}
	for i := 0; i < n; i++ {
		_, inst, err := v.Step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		root.Operations = append(root.Operations, inst)
	}
	return root
}

func TestRefineArgTypeNarrowsMaskedArgument(t *testing.T) {
	code := program(
		push(4), []byte{byte(vm.CALLDATALOAD)},
		push(0xff), []byte{byte(vm.AND)},
		[]byte{byte(vm.STOP)},
	)
	root := runSteps(t, code, 4)

	fn := AnalyzeSolidity(root, 0x11111111)
	frame, ok := fn.CalldataArgs[0]
	if !ok {
		t.Fatal("expected argument 0 to be discovered")
	}
	if frame.MaskSize != 1 {
		t.Errorf("expected MaskSize 1 after an 0xff mask, got %d", frame.MaskSize)
	}
	types := fn.ArgTypes()
	if len(types) != 1 || types[0].Type != "uint8" {
		t.Errorf("expected arg0 resolved to uint8, got %v", types)
	}
}

func TestRefineArgTypeIszeroNarrowsToBool(t *testing.T) {
	code := program(
		push(4), []byte{byte(vm.CALLDATALOAD)},
		[]byte{byte(vm.ISZERO)},
		[]byte{byte(vm.STOP)},
	)
	root := runSteps(t, code, 3)

	fn := AnalyzeSolidity(root, 0x44444444)
	types := fn.ArgTypes()
	if len(types) != 1 || types[0].Type != "bool" {
		t.Errorf("expected arg0 resolved to bool, got %v", types)
	}
}

func TestArgTypesUnrefinedKeepsFullCandidateSet(t *testing.T) {
	code := program(
		push(4), []byte{byte(vm.CALLDATALOAD)},
		[]byte{byte(vm.POP)},
		[]byte{byte(vm.STOP)},
	)
	root := runSteps(t, code, 3)

	fn := AnalyzeSolidity(root, 0x55555555)
	frame := fn.CalldataArgs[0]
	if frame.MaskSize != 32 {
		t.Errorf("expected an untouched argument to keep the full 32-byte mask, got %d", frame.MaskSize)
	}
	for _, want := range []string{"bytes", "uint256", "int256", "string", "bytes32"} {
		if !frame.Candidates[want] {
			t.Errorf("expected an untouched argument to still carry candidate %q, got %v", want, frame.Candidates)
		}
	}
}

// TestMappingKeySequenceSingleLevel reproduces the bytecode shape solc
// emits for a single mapping write, `m[msg.sender] = 7` at declared
// slot 5: MSTORE(0, msg.sender); MSTORE(0x20, 5); SHA3(0, 0x40);
// SSTORE(hash, 7).
func TestMappingKeySequenceSingleLevel(t *testing.T) {
	code := program(
		[]byte{byte(vm.CALLER)}, push(0), []byte{byte(vm.MSTORE)},
		push(5), push(0x20), []byte{byte(vm.MSTORE)},
		push(7), push(0x40), push(0), []byte{byte(vm.SHA3)},
		[]byte{byte(vm.SSTORE)},
		[]byte{byte(vm.STOP)},
	)
	root := runSteps(t, code, 11)

	fn := AnalyzeSolidity(root, 0x22222222)
	if len(fn.Storage) != 1 {
		t.Fatalf("expected 1 storage capture, got %d", len(fn.Storage))
	}
	keys := fn.Storage[0].Keys
	if len(keys) != 1 {
		t.Fatalf("expected a single reconstructed key, got %d: %v", len(keys), keys)
	}
	if keys[0].Opcode != vm.CALLER {
		t.Errorf("expected the key to be msg.sender, got opcode %v", keys[0].Opcode)
	}
}

// TestMappingKeySequenceNested reproduces a nested mapping write,
// `m[msg.sender][arg0] = 7` at declared slot 9:
//
//	MSTORE(0, msg.sender); MSTORE(0x20, 9); slot1 = SHA3(0, 0x40)
//	MSTORE(0, arg0); MSTORE(0x20, slot1); slot2 = SHA3(0, 0x40)
//	SSTORE(slot2, 7)
//
// The intervening MSTORE(0, arg0) overwrites offset 0 between
// computing slot1 and storing it, which is exactly the pattern a
// backward scan of the memory-write list gets confused by; this test
// exercises the live-snapshot reconstruction instead.
func TestMappingKeySequenceNested(t *testing.T) {
	code := program(
		[]byte{byte(vm.CALLER)}, push(0), []byte{byte(vm.MSTORE)},
		push(9), push(0x20), []byte{byte(vm.MSTORE)},
		push(0x40), push(0), []byte{byte(vm.SHA3)},
		push(4), []byte{byte(vm.CALLDATALOAD)},
		push(0), []byte{byte(vm.MSTORE)},
		push(0x20), []byte{byte(vm.MSTORE)},
		push(7), push(0x40), push(0), []byte{byte(vm.SHA3)},
		[]byte{byte(vm.SSTORE)},
		[]byte{byte(vm.STOP)},
	)
	root := runSteps(t, code, 20)

	fn := AnalyzeSolidity(root, 0x33333333)
	if len(fn.Storage) != 1 {
		t.Fatalf("expected 1 storage capture, got %d", len(fn.Storage))
	}
	keys := fn.Storage[0].Keys
	if len(keys) != 2 {
		t.Fatalf("expected a nested 2-entry key sequence, got %d: %v", len(keys), keys)
	}
	if keys[0].Opcode != vm.CALLER {
		t.Errorf("expected the outer key to be msg.sender, got opcode %v", keys[0].Opcode)
	}
	if keys[1].Opcode != vm.CALLDATALOAD {
		t.Errorf("expected the inner key to be a calldata argument, got opcode %v", keys[1].Opcode)
	}
}

func TestMappingKeySequenceNilForDirectSlot(t *testing.T) {
	code := program(push(1), push(0), []byte{byte(vm.SSTORE)}, []byte{byte(vm.STOP)})
	root := runSteps(t, code, 3)

	fn := AnalyzeSolidity(root, 0x66666666)
	if len(fn.Storage) != 1 {
		t.Fatalf("expected 1 storage capture, got %d", len(fn.Storage))
	}
	if fn.Storage[0].Keys != nil {
		t.Errorf("expected a direct slot to have no reconstructed keys, got %v", fn.Storage[0].Keys)
	}
}
