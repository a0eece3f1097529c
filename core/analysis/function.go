// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// Package analysis folds a VMTrace tree into a Function record: the
// shared walk rules live here; solidity.go and yul.go supply the two
// rendering variants the walk dispatches to.
package analysis

import (
	"fmt"

	"github.com/probechain/evmdecompiler/core/trace"
	"github.com/probechain/evmdecompiler/core/vm"
)

// Mode selects which source dialect the walk renders expressions in.
type Mode int

const (
	Solidity Mode = iota
	Yul
)

// StorageCapture records one SSTORE observed during the walk: the slot
// key expression, the value assigned, and — when the key is a
// keccak256 over a memory range — the ordered key sequence
// reconstructed from the function's memory-write history (outer key
// first, inner key last for a nested mapping). Keys is nil for a
// direct (non-mapping) slot.
type StorageCapture struct {
	Key   vm.WrappedOpcode
	Value vm.WrappedOpcode
	Keys  []vm.WrappedOpcode
}

// MemoryCapture records one MSTORE the same way, keyed by a rendered
// offset string so repeated constant offsets collapse to one entry.
type MemoryCapture struct {
	Offset vm.WrappedOpcode
	Value  vm.WrappedOpcode
}

// CalldataFrame is what's known about one CALLDATALOAD-derived
// argument slot: its candidate ABI types, narrowed as more uses of it
// are observed during the walk.
type CalldataFrame struct {
	Index      uint64
	MaskSize   int
	Candidates map[string]bool
}

// ArgType pairs a discovered calldata argument's index with its
// resolved type, for surfacing §4.4's type-refinement result in the
// rendered function.
type ArgType struct {
	Index uint64
	Type  string
}

// ArgTypes returns the resolved type of every discovered calldata
// argument, ordered by index.
func (f *Function) ArgTypes() []ArgType {
	if len(f.CalldataArgs) == 0 {
		return nil
	}
	out := make([]ArgType, 0, len(f.CalldataArgs))
	for idx, frame := range f.CalldataArgs {
		out = append(out, ArgType{Index: idx, Type: frame.ResolvedType()})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Index < out[j-1].Index; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Function is the decompiler's output record for one selector.
type Function struct {
	Selector uint32
	Pure     bool
	View     bool
	Payable  bool

	Logic []string

	Events map[string]bool // "Event_selector8" seen
	Errors map[string]bool // "CustomError_selector8" seen

	Storage []StorageCapture
	Memory  []MemoryCapture

	CalldataArgs map[uint64]*CalldataFrame

	Notices []string

	openConditionals []string // stack of still-open "if (cond)" texts, innermost last
}

// NewFunction returns a Function seeded pure/view/payable, per the
// walk's "clear flags only when a mutating opcode is observed" rule;
// Payable is cleared when the walk meets the compiler's !msg.value guard.
func NewFunction(selector uint32) *Function {
	return &Function{
		Selector:     selector,
		Pure:         true,
		View:         true,
		Payable:      true,
		Events:       make(map[string]bool),
		Errors:       make(map[string]bool),
		CalldataArgs: make(map[uint64]*CalldataFrame),
	}
}

func (f *Function) emit(line string) { f.Logic = append(f.Logic, line) }

func (f *Function) notice(msg string) { f.Notices = append(f.Notices, msg) }

// Name returns the canonical placeholder name used before a
// signature-resolver substitutes a real one (core/postprocess item 9).
func (f *Function) Name() string { return fmt.Sprintf("Func_%08x", f.Selector) }

// Analyze folds t into a Function using the given rendering mode.
func Analyze(t *trace.VMTrace, selector uint32, mode Mode) *Function {
	f := NewFunction(selector)
	w := &walker{fn: f, mode: mode, liveMem: make(map[uint64]vm.WrappedOpcode)}
	w.walk(t)
	for range f.openConditionals {
		f.emit("}")
	}
	f.openConditionals = nil
	return f
}

type walker struct {
	fn   *Function
	mode Mode

	// liveMem is the current value written to each literal memory
	// offset seen so far, kept live during the walk (not a history
	// search) so a keccak hash can snapshot its true key inputs at the
	// moment it executes. mappingSnapshots records one (key, base)
	// pair per two-word keccak hash, in execution order, so a nested
	// mapping's outer key can be recovered from the snapshot taken
	// just before the one that fed the final SSTORE.
	liveMem          map[uint64]vm.WrappedOpcode
	mappingSnapshots [][2]vm.WrappedOpcode
}

func (w *walker) render(op vm.WrappedOpcode) string {
	if w.mode == Yul {
		return op.Yulify()
	}
	return op.Solidify()
}

func (w *walker) walk(t *trace.VMTrace) {
	if t.Loop != nil {
		w.fn.notice("while loop detected: " + w.render(t.Loop.Bound))
	}
	for _, inst := range t.Operations {
		w.step(inst)
	}
	for _, child := range t.Children {
		w.walk(child)
	}
}

func (w *walker) step(inst vm.Instruction) {
	applyPurityFlags(w.fn, inst.Opcode)
	w.refineArgFromConsumer(inst)

	switch {
	case inst.Opcode.IsLog():
		w.emitEvent(inst)
	case inst.Opcode == vm.REVERT:
		w.emitRevert(inst)
	case inst.Opcode == vm.JUMPI:
		w.emitConditional(inst)
	case inst.Opcode == vm.RETURN:
		w.emitReturn(inst)
	case inst.Opcode == vm.SSTORE:
		w.captureStorage(inst)
	case inst.Opcode == vm.MSTORE || inst.Opcode == vm.MSTORE8:
		w.captureMemory(inst)
	case inst.Opcode == vm.SHA3:
		w.captureKeccak(inst)
	case inst.Opcode == vm.CALLDATALOAD:
		w.discoverArg(inst)
	case inst.Opcode == vm.CALL || inst.Opcode == vm.CALLCODE ||
		inst.Opcode == vm.DELEGATECALL || inst.Opcode == vm.STATICCALL:
		w.emitExternalCall(inst)
	}
}
