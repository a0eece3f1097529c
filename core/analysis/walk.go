// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package analysis

import (
	"fmt"
	"strings"

	"github.com/probechain/evmdecompiler/core/vm"
)

// panicSelector is the 4-byte prefix of a compiler-injected Panic(uint256)
// revert, dropped silently per the revert taxonomy.
var panicSelector = [4]byte{0x4e, 0x48, 0x7b, 0x71}

// requireStringSelector is the 4-byte prefix of Error(string), the
// shape produced by `require(cond, "msg")`.
var requireStringSelector = [4]byte{0x08, 0xc3, 0x79, 0xa0}

func (w *walker) emitEvent(inst vm.Instruction) {
	if len(inst.InputOperations) < 2 {
		return
	}
	topics := inst.InputOperations[2:]
	var topicSelector uint32
	if len(topics) > 0 {
		if lit, ok := topics[0].AsLiteral(); ok {
			topicSelector = uint32(lit.Uint64())
		}
	}
	name := fmt.Sprintf("Event_%08x", topicSelector)
	w.fn.Events[name] = true

	args := make([]string, 0, len(topics))
	for _, t := range topics {
		args = append(args, w.render(t))
	}
	offset, size := w.render(inst.InputOperations[0]), w.render(inst.InputOperations[1])
	args = append(args, fmt.Sprintf("memory[%s:%s+%s]", offset, offset, size))
	w.fn.emit(fmt.Sprintf("%s(%s);", name, strings.Join(args, ", ")))
}

func (w *walker) emitRevert(inst vm.Instruction) {
	data := w.revertData(inst)

	switch {
	case len(data) == 0:
		w.closeOrBareRevert("", false)
	case len(data) >= 4 && [4]byte{data[0], data[1], data[2], data[3]} == panicSelector:
		// compiler panic: dropped silently, per the revert taxonomy.
	case len(data) >= 4 && [4]byte{data[0], data[1], data[2], data[3]} == requireStringSelector:
		msg := decodeABIString(data[4:])
		w.closeOrBareRevert(msg, true)
	default:
		var sel uint32
		if len(data) >= 4 {
			sel = uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
		}
		name := fmt.Sprintf("CustomError_%08x", sel)
		w.fn.Errors[name] = true
		w.closeOrBareRevert(name+"()", true)
	}
}

// revertData is a best-effort static read of the reverted bytes: REVERT's
// data pointer is captured in InputOperations, but only a literal-offset,
// literal-size memory write feeding it can be statically decoded here —
// anything else degrades to the empty-data branch, matching the "any
// other notice" fallback for data this walk can't resolve.
func (w *walker) revertData(inst vm.Instruction) []byte {
	if len(w.fn.Memory) == 0 || len(inst.Inputs) < 1 {
		return nil
	}
	offset := inst.Inputs[0].Uint64()
	for i := len(w.fn.Memory) - 1; i >= 0; i-- {
		m := w.fn.Memory[i]
		if lit, ok := m.Offset.AsLiteral(); ok && lit.Uint64() == offset {
			if v, ok := m.Value.AsLiteral(); ok {
				return v.Bytes()
			}
		}
	}
	return nil
}

func decodeABIString(tail []byte) string {
	if len(tail) < 64 {
		return ""
	}
	length := 0
	for _, b := range tail[32:64] {
		length = length<<8 | int(b)
	}
	if 64+length > len(tail) || length < 0 {
		return ""
	}
	return string(tail[64 : 64+length])
}

// closeOrBareRevert retro-fits a require() over the innermost still-open
// conditional when one exists — a scope whose closing "}" has already
// been emitted is no longer a target — otherwise falls back to a bare
// revert(), per decision #1.
func (w *walker) closeOrBareRevert(msg string, withMsg bool) {
	if len(w.fn.openConditionals) == 0 {
		if withMsg {
			w.fn.emit(fmt.Sprintf("revert(%q);", msg))
		} else {
			w.fn.emit("revert();")
		}
		return
	}
	cond := w.fn.openConditionals[len(w.fn.openConditionals)-1]
	w.fn.openConditionals = w.fn.openConditionals[:len(w.fn.openConditionals)-1]
	// drop the line that opened this conditional ("if (cond) {")
	opener := fmt.Sprintf("if (%s) {", cond)
	for i := len(w.fn.Logic) - 1; i >= 0; i-- {
		if w.fn.Logic[i] == opener {
			w.fn.Logic = append(w.fn.Logic[:i], w.fn.Logic[i+1:]...)
			break
		}
	}
	if withMsg {
		w.fn.emit(fmt.Sprintf("require(%s, %q);", cond, msg))
	} else {
		w.fn.emit(fmt.Sprintf("require(%s);", cond))
	}
}

// nonPayableGuardOp recognizes the compiler-injected `!msg.value` check
// solidifies to, so it can be skipped instead of emitted.
func nonPayableGuardOp(cond vm.WrappedOpcode) bool {
	return cond.Opcode == vm.ISZERO && len(cond.Inputs) == 1 &&
		!cond.Inputs[0].IsRaw() && cond.Inputs[0].Nested.Opcode == vm.CALLVALUE
}

// calldataSizeGuard recognizes `msg.data.length < 0x04`-shaped guards.
func calldataSizeGuard(cond vm.WrappedOpcode) bool {
	if cond.Opcode != vm.LT {
		return false
	}
	for _, in := range cond.Inputs {
		if !in.IsRaw() && in.Nested.Opcode == vm.CALLDATASIZE {
			return true
		}
	}
	return false
}

func (w *walker) emitConditional(inst vm.Instruction) {
	if len(inst.InputOperations) < 2 {
		return
	}
	cond := inst.InputOperations[1]
	if nonPayableGuardOp(cond) {
		w.fn.Payable = false
		return
	}
	if calldataSizeGuard(cond) {
		return
	}
	rendered := w.render(cond)
	w.fn.openConditionals = append(w.fn.openConditionals, rendered)
	w.fn.emit(fmt.Sprintf("if (%s) {", rendered))
}

func (w *walker) emitReturn(inst vm.Instruction) {
	if len(inst.InputOperations) < 2 {
		return
	}
	offset, size := w.render(inst.InputOperations[0]), w.render(inst.InputOperations[1])
	w.fn.emit(fmt.Sprintf("return memory[%s:%s+%s]; // %s", offset, offset, size, w.inferReturnType(inst)))
}

// inferReturnType applies the RETURN-handling heuristics: a lone
// ISZERO-rooted value is bool; >32 bytes is bytes memory; otherwise the
// byte width the value was last known to occupy maps to the narrowest
// value type.
func (w *walker) inferReturnType(inst vm.Instruction) string {
	if len(inst.Inputs) < 2 {
		return "bytes memory"
	}
	size := inst.Inputs[1].Uint64()
	if size > 32 {
		return "bytes memory"
	}
	offset := inst.Inputs[0].Uint64()
	for i := len(w.fn.Memory) - 1; i >= 0; i-- {
		m := w.fn.Memory[i]
		lit, ok := m.Offset.AsLiteral()
		if !ok || lit.Uint64() != offset {
			continue
		}
		if m.Value.Opcode == vm.ISZERO {
			return "bool"
		}
		break
	}
	return byteSizeToType(int(size), false)
}

func (w *walker) captureStorage(inst vm.Instruction) {
	if len(inst.InputOperations) < 2 {
		return
	}
	k := inst.InputOperations[0]
	w.fn.Storage = append(w.fn.Storage, StorageCapture{
		Key:   k,
		Value: inst.InputOperations[1],
		Keys:  w.mappingKeySequence(k),
	})
	key, val := w.render(inst.InputOperations[0]), w.render(inst.InputOperations[1])
	w.fn.emit(fmt.Sprintf("storage[%s] = %s;", key, val))
}

// mappingKeySequence returns the ordered key expressions feeding a
// keccak256(memory[0:0x40])-derived slot, read from the snapshot
// captureKeccak took at the moment this hash actually executed — not
// from the hash's own stack operands, which are just its literal
// offset/size, nor from a backward scan of the memory-write list,
// which an intervening unrelated write to the same scratch offsets
// would corrupt. Returns nil when key isn't such a hash.
func (w *walker) mappingKeySequence(key vm.WrappedOpcode) []vm.WrappedOpcode {
	if key.Opcode != vm.SHA3 {
		return nil
	}
	n := len(w.mappingSnapshots)
	if n == 0 {
		return nil
	}
	snap := w.mappingSnapshots[n-1]
	inner, base := snap[0], snap[1]
	if base.Opcode != vm.SHA3 || n < 2 {
		return []vm.WrappedOpcode{inner}
	}
	outer := w.mappingSnapshots[n-2][0]
	return []vm.WrappedOpcode{outer, inner}
}

// captureKeccak snapshots the live values at memory offsets 0 and 0x20
// whenever a two-word (64-byte) keccak256 hash executes — the shape
// Solidity emits for a mapping slot lookup, keccak256(key . slot).
// Recorded in execution order so mappingKeySequence can later tell a
// nested mapping's outer key apart from its inner one.
func (w *walker) captureKeccak(inst vm.Instruction) {
	if len(inst.Inputs) < 2 || inst.Inputs[1].Uint64() != 64 {
		return
	}
	off := inst.Inputs[0].Uint64()
	w.mappingSnapshots = append(w.mappingSnapshots, [2]vm.WrappedOpcode{
		w.liveMem[off], w.liveMem[off+32],
	})
}

func (w *walker) captureMemory(inst vm.Instruction) {
	if len(inst.InputOperations) < 2 {
		return
	}
	w.fn.Memory = append(w.fn.Memory, MemoryCapture{
		Offset: inst.InputOperations[0],
		Value:  inst.InputOperations[1],
	})
	if lit, ok := inst.InputOperations[0].AsLiteral(); ok {
		w.liveMem[lit.Uint64()] = inst.InputOperations[1]
	}
	off, val := w.render(inst.InputOperations[0]), w.render(inst.InputOperations[1])
	w.fn.emit(fmt.Sprintf("memory[%s] = %s;", off, val))
}

func (w *walker) discoverArg(inst vm.Instruction) {
	if len(inst.Inputs) < 1 {
		return
	}
	off := inst.Inputs[0].Uint64()
	if off < 4 || (off-4)%32 != 0 {
		return
	}
	idx := (off - 4) / 32
	if _, ok := w.fn.CalldataArgs[idx]; ok {
		return
	}
	w.fn.CalldataArgs[idx] = &CalldataFrame{
		Index:    idx,
		MaskSize: 32,
		Candidates: map[string]bool{
			"bytes": true, "uint256": true, "int256": true,
			"string": true, "bytes32": true,
		},
	}
}

// argSourceOpcodes are the consumers §4.4's type-refinement heuristics
// react to; refineArgFromConsumer only scans an instruction's operands
// when its own opcode is one of these.
var argSourceOpcodes = map[vm.Opcode]bool{
	vm.ISZERO: true, vm.AND: true, vm.OR: true,
	vm.MUL: true, vm.MULMOD: true, vm.ADDMOD: true, vm.MOD: true,
	vm.DIV: true, vm.SDIV: true, vm.SMOD: true, vm.EXP: true,
	vm.LT: true, vm.GT: true, vm.SLT: true, vm.SGT: true, vm.SIGNEXTEND: true,
	vm.SHR: true, vm.SHL: true, vm.SAR: true, vm.XOR: true, vm.BYTE: true,
}

// refineArgFromConsumer detects whether inst directly consumes a
// discovered calldata argument (its operand tree roots in a
// CALLDATALOAD at a known argument slot) and, if so, calls
// RefineArgType with the consuming opcode and, for AND/OR, the
// sibling operand's literal mask bytes.
func (w *walker) refineArgFromConsumer(inst vm.Instruction) {
	if !argSourceOpcodes[inst.Opcode] {
		return
	}
	for i, operand := range inst.InputOperations {
		idx, ok := argIndexOf(operand)
		if !ok {
			continue
		}
		var mask []byte
		if inst.Opcode == vm.AND || inst.Opcode == vm.OR {
			mask = siblingMask(inst.InputOperations, i)
		}
		w.fn.RefineArgType(idx, inst.Opcode, mask)
	}
}

// argIndexOf reports the calldata argument index a WrappedOpcode tree
// roots in, when it is a direct CALLDATALOAD of a 32-byte-aligned
// argument slot, mirroring discoverArg's own offset arithmetic.
func argIndexOf(op vm.WrappedOpcode) (uint64, bool) {
	if op.Opcode != vm.CALLDATALOAD || len(op.Inputs) != 1 || !op.Inputs[0].IsRaw() {
		return 0, false
	}
	off := op.Inputs[0].Raw.Uint64()
	if off < 4 || (off-4)%32 != 0 {
		return 0, false
	}
	return (off - 4) / 32, true
}

// siblingMask returns the literal mask bytes from the operand of an
// AND/OR pair other than self, or nil when that sibling isn't literal.
func siblingMask(operands []vm.WrappedOpcode, self int) []byte {
	for i, op := range operands {
		if i == self {
			continue
		}
		if lit, ok := op.AsLiteral(); ok {
			return lit.Bytes()
		}
	}
	return nil
}

// RefineArgType narrows the candidate set for calldata argument idx
// given that its value flows into consumer, per §4.4's type-refinement
// heuristics. Invoked by refineArgFromConsumer once a direct consumer
// of a discovered argument is recognized during the walk.
func (f *Function) RefineArgType(idx uint64, consumer vm.Opcode, mask []byte) {
	frame, ok := f.CalldataArgs[idx]
	if !ok {
		return
	}
	switch consumer {
	case vm.ISZERO:
		intersect(frame.Candidates, map[string]bool{"bool": true, "bytes1": true, "uint8": true, "int8": true})
	case vm.AND, vm.OR:
		if mask != nil {
			n, cands := convertBitmask(mask)
			frame.MaskSize = n
			intersect(frame.Candidates, cands)
		}
	case vm.MUL, vm.MULMOD, vm.ADDMOD, vm.MOD, vm.DIV, vm.SDIV, vm.SMOD,
		vm.EXP, vm.LT, vm.GT, vm.SLT, vm.SGT, vm.SIGNEXTEND:
		intersect(frame.Candidates, map[string]bool{"uint256": true, "int256": true})
	case vm.SHR, vm.SHL, vm.SAR, vm.XOR, vm.BYTE:
		intersect(frame.Candidates, map[string]bool{"bytes32": true, "bytes": true})
	}
}

// intersect narrows dst to its overlap with allowed. The initial
// CalldataFrame seed is a generic, word-wide candidate set disjoint
// from the specific-width sets a bitmask or ISZERO heuristic produces;
// a plain set intersection against it would zero out every argument's
// first narrowing. So the first heuristic to touch an argument (no
// overlap yet) replaces the seed outright; every heuristic after that
// narrows by real intersection, compounding consistently.
func intersect(dst, allowed map[string]bool) {
	overlap := false
	for k := range dst {
		if allowed[k] {
			overlap = true
			break
		}
	}
	if !overlap {
		for k := range dst {
			delete(dst, k)
		}
		for k := range allowed {
			dst[k] = true
		}
		return
	}
	for k := range dst {
		if !allowed[k] {
			delete(dst, k)
		}
	}
}

func (w *walker) emitExternalCall(inst vm.Instruction) {
	destIdx := 1
	if destIdx >= len(inst.InputOperations) {
		return
	}
	dest := inst.InputOperations[destIdx]
	rendered := w.render(vm.WrappedOpcode{Opcode: inst.Opcode, Inputs: wrapOps(inst.InputOperations)})
	if lit, ok := dest.AsLiteral(); ok && precompileDest(lit.Uint64()) {
		w.fn.emit(fmt.Sprintf("// precompile call to 0x%x\n(bool success, bytes memory ret0) = %s;", lit.Uint64(), rendered))
		return
	}
	w.fn.emit(fmt.Sprintf("(bool success, bytes memory ret0) = %s;", rendered))
}

func precompileDest(addr uint64) bool { return addr == 1 || addr == 2 || addr == 3 }

func wrapOps(ops []vm.WrappedOpcode) []vm.WrappedInput {
	out := make([]vm.WrappedInput, len(ops))
	for i := range ops {
		out[i] = vm.NestedInput(ops[i])
	}
	return out
}
