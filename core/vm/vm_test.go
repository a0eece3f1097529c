// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ProbeChain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ProbeChain. If not, see <http://www.gnu.org/licenses/>.

package vm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

// ---- Bytecode builder helpers -----------------------------------------------

// push returns a PUSHn instruction encoding a big-endian immediate of
// minimal width for v (PUSH1 for v <= 0xff, up to PUSH8 for a full uint64).
func push(v uint64) []byte {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (56 - 8*i))
	}
	start := 0
	for start < 7 && buf[start] == 0 {
		start++
	}
	n := 8 - start
	out := make([]byte, 1+n)
	out[0] = byte(int(PUSH1) + n - 1)
	copy(out[1:], buf[start:])
	return out
}

// pushBytes encodes a PUSH32 of a left-padded 32-byte literal.
func pushBytes(b []byte) []byte {
	var word [32]byte
	copy(word[32-len(b):], b)
	return append([]byte{byte(PUSH32)}, word[:]...)
}

// op1 returns the single byte for a zero-operand opcode.
func op1(o Opcode) []byte { return []byte{byte(o)} }

// program concatenates instruction byte slices into one bytecode blob.
func program(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// newTestVM builds a VM with a generous gas budget and no calldata.
func newTestVM(code []byte) *VM {
	return New(code, nil, 10_000_000)
}

// runToHalt steps v until it halts, failing the test if it never does
// within a generous step ceiling (a runaway program is a test bug, not
// a VM bug worth silently hanging on).
func runToHalt(t *testing.T, v *VM) {
	t.Helper()
	for i := 0; i < 10_000; i++ {
		if v.Halted {
			return
		}
		if _, _, err := v.Step(); err != nil && v.Halted {
			return
		}
	}
	t.Fatalf("program did not halt within step ceiling")
}

func topValue(t *testing.T, v *VM) *uint256.Int {
	t.Helper()
	f, err := v.Stack.PeekN(0)
	if err != nil {
		t.Fatalf("stack empty: %v", err)
	}
	return f.Value
}

// ---- Opcode metadata --------------------------------------------------------

func TestOpcodeString(t *testing.T) {
	cases := []struct {
		op   Opcode
		want string
	}{
		{ADD, "ADD"},
		{SUB, "SUB"},
		{MUL, "MUL"},
		{DIV, "DIV"},
		{SHA3, "SHA3"},
		{JUMPDEST, "JUMPDEST"},
		{PUSH1, "PUSH1"},
		{DUP1, "DUP1"},
		{SWAP1, "SWAP1"},
		{LOG0, "LOG0"},
		{SELFDESTRUCT, "SELFDESTRUCT"},
	}
	for _, tc := range cases {
		if got := tc.op.String(); got != tc.want {
			t.Errorf("Opcode(0x%x).String() = %q; want %q", byte(tc.op), got, tc.want)
		}
	}
}

func TestOpcodeUnknown(t *testing.T) {
	if got := Opcode(0x0c).String(); got != "UNKNOWN(0x0c)" {
		t.Errorf("unknown opcode String = %q; want UNKNOWN(0x0c)", got)
	}
}

// ---- Seed scenario S1: literal folding --------------------------------------

func TestAddLiteralProgramHalts(t *testing.T) {
	code := program(push(10), push(32), op1(ADD), op1(STOP))
	v := newTestVM(code)
	runToHalt(t, v)

	if v.ExitCode != ExitStop {
		t.Fatalf("exit code = %d; want ExitStop", v.ExitCode)
	}
}

func TestAddFoldsToLiteralPush32(t *testing.T) {
	code := program(push(10), push(32))
	v := newTestVM(code)
	if _, _, err := v.Step(); err != nil {
		t.Fatalf("step 1: %v", err)
	}
	if _, _, err := v.Step(); err != nil {
		t.Fatalf("step 2: %v", err)
	}
	if _, _, err := v.Step(); err == nil {
		// ADD is not in this program; a fresh VM below steps it instead.
	}

	// Build a fresh VM and execute ADD explicitly, then inspect the result
	// node: a folded sum of two literals must render as a bare literal,
	// not as "10 + 32".
	v2 := newTestVM(program(push(10), push(32), op1(ADD), op1(STOP)))
	for i := 0; i < 3; i++ {
		if _, _, err := v2.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	top := topValue(t, v2)
	if top.Uint64() != 42 {
		t.Fatalf("ADD result = %d; want 42", top.Uint64())
	}
	f, _ := v2.Stack.PeekN(0)
	if got := f.Operation.Solidify(); got != "0x2a" {
		t.Errorf("folded ADD solidifies to %q; want \"0x2a\"", got)
	}
}

// ---- Seed scenario S2: SHA3 over memory -------------------------------------

func TestSHA3OverMemory(t *testing.T) {
	// MSTORE the literal 0x01 at offset 0, then SHA3(0, 32).
	code := program(
		push(1), push(0), op1(MSTORE),
		push(32), push(0), op1(SHA3),
		op1(STOP),
	)
	v := newTestVM(code)
	runToHalt(t, v)

	expected := Keccak256(append(make([]byte, 31), 0x01))
	// Re-run to inspect the pushed digest directly.
	v2 := newTestVM(code)
	for i := 0; i < 6; i++ {
		if _, _, err := v2.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	top := topValue(t, v2)
	got := top.Bytes32()
	if !bytes.Equal(got[:], expected) {
		t.Errorf("SHA3 digest mismatch: got %x want %x", got, expected)
	}
	f, _ := v2.Stack.PeekN(0)
	if f.Operation.Opcode != SHA3 {
		t.Errorf("expected SHA3 provenance on stack top, got %s", f.Operation.Opcode)
	}
}

// ---- Seed scenario S3: JUMP to a non-JUMPDEST target ------------------------

func TestJumpToInvalidDestination(t *testing.T) {
	// PUSH 0x05 (not a JUMPDEST), JUMP.
	code := program(push(5), op1(JUMP), op1(JUMPDEST), op1(STOP))
	v := newTestVM(code)
	for {
		_, _, err := v.Step()
		if v.Halted {
			if err == nil || !errors.Is(err, ErrInvalidJumpDestination) {
				t.Fatalf("expected ErrInvalidJumpDestination, got %v", err)
			}
			break
		}
	}
	if v.ExitCode != ExitInvalidJumpDestination {
		t.Errorf("exit code = %d; want %d", v.ExitCode, ExitInvalidJumpDestination)
	}
}

func TestJumpToValidDestination(t *testing.T) {
	// PUSH 4, JUMP at pc=2, (skipped STOP at pc=3), JUMPDEST at pc=4, STOP at pc=5.
	code := program(push(4), op1(JUMP), op1(STOP), op1(JUMPDEST), op1(STOP))
	v := newTestVM(code)
	runToHalt(t, v)
	if v.ExitCode != ExitStop {
		t.Fatalf("exit code = %d; want ExitStop", v.ExitCode)
	}
}

// ---- Stack depth and underflow invariants -----------------------------------

func TestStackUnderflowHalts(t *testing.T) {
	code := program(op1(ADD), op1(STOP))
	v := newTestVM(code)
	_, _, err := v.Step()
	if err == nil {
		t.Fatal("expected an error popping from an empty stack")
	}
	if !v.Halted || v.ExitCode != ExitReverted {
		t.Errorf("stack underflow should halt with ExitReverted; halted=%v exit=%d", v.Halted, v.ExitCode)
	}
}

func TestStackDepthBookkeeping(t *testing.T) {
	code := program(push(1), push(2), push(3), op1(POP), op1(STOP))
	v := newTestVM(code)
	for i := 0; i < 4; i++ {
		if _, _, err := v.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if v.Stack.Len() != 2 {
		t.Errorf("stack depth = %d; want 2", v.Stack.Len())
	}
}

// ---- DUP / SWAP --------------------------------------------------------------

func TestDup1(t *testing.T) {
	code := program(push(7), op1(DUP1), op1(STOP))
	v := newTestVM(code)
	for i := 0; i < 2; i++ {
		if _, _, err := v.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if v.Stack.Len() != 2 {
		t.Fatalf("stack depth = %d; want 2", v.Stack.Len())
	}
	top, _ := v.Stack.PeekN(0)
	second, _ := v.Stack.PeekN(1)
	if top.Value.Uint64() != 7 || second.Value.Uint64() != 7 {
		t.Errorf("DUP1 did not duplicate top: top=%d second=%d", top.Value.Uint64(), second.Value.Uint64())
	}
}

func TestSwap1(t *testing.T) {
	code := program(push(1), push(2), op1(SWAP1), op1(STOP))
	v := newTestVM(code)
	for i := 0; i < 3; i++ {
		if _, _, err := v.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	top, _ := v.Stack.PeekN(0)
	if top.Value.Uint64() != 1 {
		t.Errorf("SWAP1 top = %d; want 1", top.Value.Uint64())
	}
}

// ---- Storage: persistent across Reset, transient cleared --------------------

func TestStorageDemo(t *testing.T) {
	code := program(push(99), push(0), op1(SSTORE), push(0), op1(SLOAD), op1(STOP))
	v := newTestVM(code)
	for i := 0; i < 5; i++ {
		if _, _, err := v.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	top := topValue(t, v)
	if top.Uint64() != 99 {
		t.Errorf("SLOAD after SSTORE = %d; want 99", top.Uint64())
	}
}

func TestResetPreservesStorageClearsTransient(t *testing.T) {
	v := newTestVM(nil)
	key := uint256.NewInt(1)
	v.Storage.Store(key, StorageFrame{Value: uint256.NewInt(42)})
	v.Storage.TStore(key, StorageFrame{Value: uint256.NewInt(7)})

	v.Reset()

	frame, _ := v.Storage.Load(key)
	if frame.Value.Uint64() != 42 {
		t.Errorf("persistent storage not preserved across Reset: got %d", frame.Value.Uint64())
	}
	tframe := v.Storage.TLoad(key)
	if !tframe.Value.IsZero() {
		t.Errorf("transient storage not cleared by Reset: got %d", tframe.Value.Uint64())
	}
}

// ---- CALLDATALOAD / arg naming -----------------------------------------------

func TestCalldataloadStandardArgOffset(t *testing.T) {
	calldata := make([]byte, 4+32)
	v := New(program(push(36), op1(CALLDATALOAD), op1(STOP)), calldata, 1_000_000)
	for i := 0; i < 2; i++ {
		if _, _, err := v.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	f, _ := v.Stack.PeekN(0)
	if got := f.Operation.Solidify(); got != "arg1" {
		t.Errorf("CALLDATALOAD(36).Solidify() = %q; want \"arg1\"", got)
	}
}

// ---- Gas metering -------------------------------------------------------------

func TestOutOfGasHalts(t *testing.T) {
	v := New(program(push(1), push(2), op1(ADD), op1(STOP)), nil, 21000)
	v.GasRemaining = 1 // force exhaustion on the very first PUSH

	_, _, err := v.Step()
	if err == nil || !errors.Is(err, ErrOutOfGas) {
		t.Fatalf("expected ErrOutOfGas, got %v", err)
	}
	if v.ExitCode != ExitOutOfGas {
		t.Errorf("exit code = %d; want ExitOutOfGas", v.ExitCode)
	}
}

func TestMemoryExpansionChargesGas(t *testing.T) {
	code := program(push(1), push(0), op1(MSTORE), op1(STOP))
	v := newTestVM(code)
	runToHalt(t, v)
	if v.GasUsed == 0 {
		t.Error("expected non-zero gas used for a program with memory expansion")
	}
}

// ---- REVERT / RETURN exit codes ----------------------------------------------

func TestReturnSetsReturnData(t *testing.T) {
	code := program(push(1), push(0), op1(MSTORE), push(32), push(0), op1(RETURN))
	v := newTestVM(code)
	runToHalt(t, v)
	if v.ExitCode != ExitSuccess {
		t.Fatalf("exit code = %d; want ExitSuccess", v.ExitCode)
	}
	if len(v.ReturnData) != 32 {
		t.Fatalf("return data length = %d; want 32", len(v.ReturnData))
	}
}

func TestRevertSetsExitCode(t *testing.T) {
	code := program(push(0), push(0), op1(REVERT))
	v := newTestVM(code)
	runToHalt(t, v)
	if v.ExitCode != ExitReverted {
		t.Errorf("exit code = %d; want ExitReverted", v.ExitCode)
	}
}

// ---- Clone independence -------------------------------------------------------

func TestCloneIsIndependent(t *testing.T) {
	v := newTestVM(program(push(1), op1(STOP)))
	if _, _, err := v.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	clone := v.Clone()
	clone.Stack.Push(StackFrame{Value: uint256.NewInt(999)})

	if v.Stack.Len() == clone.Stack.Len() {
		t.Fatalf("mutating the clone's stack should not affect the original")
	}
}

// ---- Disassembly ---------------------------------------------------------------

func TestDisassemble(t *testing.T) {
	code := program(push(42), op1(ADD), op1(STOP))
	out := Disassemble(code)
	for _, want := range []string{"PUSH1", "ADD", "STOP"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("Disassemble output missing %q:\n%s", want, out)
		}
	}
}

// ---- Wrapped expression rendering ---------------------------------------------

func TestSolidifyCallvalueAndCaller(t *testing.T) {
	code := program(op1(CALLVALUE), op1(CALLER), op1(STOP))
	v := newTestVM(code)
	for i := 0; i < 2; i++ {
		if _, _, err := v.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	top, _ := v.Stack.PeekN(0)
	if got := top.Operation.Solidify(); got != "msg.sender" {
		t.Errorf("CALLER.Solidify() = %q; want msg.sender", got)
	}
	second, _ := v.Stack.PeekN(1)
	if got := second.Operation.Solidify(); got != "msg.value" {
		t.Errorf("CALLVALUE.Solidify() = %q; want msg.value", got)
	}
}

func TestYulifyMatchesPrefixForm(t *testing.T) {
	code := program(push(2), push(3), op1(ADD), op1(STOP))
	// ADD of two literals folds to a literal, so yulify a non-foldable
	// expression instead: CALLVALUE + 1.
	v := newTestVM(program(op1(CALLVALUE), push(1), op1(ADD), op1(STOP)))
	for i := 0; i < 3; i++ {
		if _, _, err := v.Step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	top, _ := v.Stack.PeekN(0)
	if got := top.Operation.Yulify(); got != "add(0x1, callvalue())" {
		t.Errorf("Yulify() = %q; want add(0x1, callvalue())", got)
	}
	_ = v.Storage
	_ = code
}
