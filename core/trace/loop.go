// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package trace

import (
	"github.com/holiman/uint256"
	"github.com/probechain/evmdecompiler/core/vm"
)

// revisitBound is how many times the explorer will enter the same
// jumpdest along the same path trail before treating it as a loop
// candidate instead of continuing to unroll it.
const revisitBound = 2

// isTautologicalCondition reports whether cond is a comparison the
// compiler could only have injected as an always-true or always-false
// guard (argN == argN, X == X & bitmask, X == address(X), 0 > 1), per
// the "not a loop" carve-out in the loop-handling rules. Both sides
// must themselves be literal-foldable or structurally identical for
// this to fire — an operand that isn't a compile-time literal is never
// pruned as a guard, since that would wrongly eat a real overflow
// check.
func isTautologicalCondition(cond vm.WrappedOpcode) bool {
	switch cond.Opcode {
	case vm.EQ:
		if len(cond.Inputs) != 2 {
			return false
		}
		a, b := cond.Inputs[0], cond.Inputs[1]
		if sameInput(a, b) {
			return true
		}
		return eqModuloMaskOrCast(a, b) || eqModuloMaskOrCast(b, a)
	case vm.GT, vm.LT:
		// Both operands must be compile-time literals (e.g. the
		// "0 > 0x01" shape from decision #2) — an operand that isn't
		// foldable is real runtime state, never a guard to prune.
		if len(cond.Inputs) != 2 {
			return false
		}
		_, oka := literalInput(cond.Inputs[0])
		_, okb := literalInput(cond.Inputs[1])
		return oka && okb
	}
	return false
}

func sameInput(a, b vm.WrappedInput) bool {
	if a.IsRaw() && b.IsRaw() {
		return a.Raw.Eq(b.Raw)
	}
	if !a.IsRaw() && !b.IsRaw() {
		return a.Nested.Solidify() == b.Nested.Solidify()
	}
	return false
}

// eqModuloMaskOrCast catches `X == X & bitmask` and `X == address(X)`
// shaped tautologies: b is an AND or ADDRESS-coercion wrapping a.
func eqModuloMaskOrCast(a, b vm.WrappedInput) bool {
	if a.IsRaw() || b.IsRaw() {
		return false
	}
	if b.Nested.Opcode == vm.AND && len(b.Nested.Inputs) == 2 {
		for _, in := range b.Nested.Inputs {
			if !in.IsRaw() && in.Nested.Solidify() == a.Nested.Solidify() {
				return true
			}
		}
	}
	return false
}

func literalInput(in vm.WrappedInput) (*uint256.Int, bool) {
	if in.IsRaw() {
		return in.Raw, true
	}
	return in.Nested.AsLiteral()
}

// stackValuesDiffer compares two stack snapshots (top-first, same
// convention as Stack.Values) and reports whether any frame changed.
func stackValuesDiffer(before, after []*uint256.Int) bool {
	if len(before) != len(after) {
		return true
	}
	for i := range before {
		if !before[i].Eq(after[i]) {
			return true
		}
	}
	return false
}

// detectInduction scans a before/after pair of stack snapshots (values
// and their producing WrappedOpcodes, top-first and same length) for a
// frame whose new expression is `X + 1` or `X - 1` where X is the same
// frame's prior expression — the monotonic induction-variable pattern.
// The explorer's loop check does not call it.
func detectInduction(beforeOps, afterOps []vm.WrappedOpcode) (depth int, stepUp bool, ok bool) {
	n := len(beforeOps)
	if len(afterOps) < n {
		n = len(afterOps)
	}
	for i := 0; i < n; i++ {
		after := afterOps[i]
		if after.Opcode != vm.ADD && after.Opcode != vm.SUB {
			continue
		}
		if len(after.Inputs) != 2 {
			continue
		}
		before := beforeOps[i]
		for _, in := range after.Inputs {
			if in.IsRaw() {
				continue
			}
			if in.Nested.Solidify() == before.Solidify() {
				return i, after.Opcode == vm.ADD, true
			}
		}
	}
	return 0, false, false
}
