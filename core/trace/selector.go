// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package trace

import "github.com/probechain/evmdecompiler/core/vm"

// push4 is PUSH4 — not individually named in the opcode table (only
// PUSH1 and PUSH32 are), so derive it the same way the table itself
// does (PUSH1 + n).
var push4 = vm.Opcode(int(vm.PUSH1) + 3)

// DiscoverSelectors scans bytecode for the standard dispatcher pattern
// — PUSH4 selector, EQ against CALLDATALOAD(0) >> 224 (or the
// equivalent DIV-by-constant shift some compilers emit), PUSH of the
// entry pc, JUMPI — and returns a selector -> entry_pc mapping. A
// fallback entry at pc 0 is always included so callers with no
// recognizable dispatcher still get a starting point.
func DiscoverSelectors(code []byte) map[uint32]uint64 {
	found := make(map[uint32]uint64)
	jumpdests := scanJumpdestsLocal(code)

	pcs := make([]uint64, 0, len(code))
	for pc := 0; pc < len(code); {
		pcs = append(pcs, uint64(pc))
		o := vm.Opcode(code[pc])
		if o.IsPush() {
			pc += 1 + int(o.PushSize())
			continue
		}
		pc++
	}

	for i, pc := range pcs {
		o := vm.Opcode(code[pc])
		if o != push4 {
			continue
		}
		selBytes, ok := pushImmediate(code, pc)
		if !ok {
			continue
		}
		var sel uint32
		for _, b := range selBytes {
			sel = sel<<8 | uint32(b)
		}

		// Look ahead a short, bounded window for EQ then PUSH<n> then
		// JUMPI; compilers interleave a DUP/SWAP of the calldata
		// selector in between, so this walks opcodes rather than
		// assuming fixed byte offsets.
		entry, ok := scanForDispatchTail(code, pcs, i+1)
		if !ok {
			continue
		}
		if jumpdests[entry] {
			found[sel] = entry
		}
	}

	found[0] = 0
	return found
}

// scanForDispatchTail looks forward from pcs[from] for an EQ, then a
// PUSH of a jump target, then a JUMPI, within a small instruction
// window — tolerating the DUP2/SWAP1 shuffling real compilers emit
// around the comparison.
func scanForDispatchTail(code []byte, pcs []uint64, from int) (uint64, bool) {
	const window = 6
	var sawEQ bool
	var candidate uint64
	var haveCandidate bool
	for i := from; i < len(pcs) && i < from+window; i++ {
		pc := pcs[i]
		o := vm.Opcode(code[pc])
		switch {
		case o == vm.EQ:
			sawEQ = true
		case o.IsPush() && sawEQ:
			imm, ok := pushImmediate(code, pc)
			if ok {
				candidate = bytesToUint64(imm)
				haveCandidate = true
			}
		case o == vm.JUMPI && sawEQ && haveCandidate:
			return candidate, true
		}
	}
	return 0, false
}

func pushImmediate(code []byte, pc uint64) ([]byte, bool) {
	o := vm.Opcode(code[pc])
	if !o.IsPush() {
		return nil, false
	}
	n := int(o.PushSize())
	start := int(pc) + 1
	if start+n > len(code) {
		return nil, false
	}
	return code[start : start+n], true
}

func bytesToUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func scanJumpdestsLocal(code []byte) map[uint64]bool {
	dests := make(map[uint64]bool)
	for i := 0; i < len(code); {
		o := vm.Opcode(code[i])
		if o == vm.JUMPDEST {
			dests[uint64(i)] = true
		}
		if o.IsPush() {
			i += 1 + int(o.PushSize())
			continue
		}
		i++
	}
	return dests
}
