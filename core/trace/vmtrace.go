// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package trace builds and analyzes the VMTrace tree: the basic-block
// tree produced by symbolically executing one selector's entry point,
// forking at every JUMPI into a taken and a fallthrough child.
package trace

import (
	"github.com/holiman/uint256"
	"github.com/probechain/evmdecompiler/core/vm"
)

// VMTrace is one basic block of a symbolic execution: the straight-line
// run of Instructions between a jump target and the next JUMPI (or a
// terminating opcode), plus the children reached from that JUMPI.
type VMTrace struct {
	Operations []vm.Instruction
	Children   []*VMTrace
	Loop       *LoopInfo
}

// LoopInfo records a loop detected while exploring a jumpdest that
// would otherwise be visited more than the revisit bound. The explorer
// fills in only Bound (the JUMPI condition); Variable, Init, Step and
// StepUp are left at their zero values.
type LoopInfo struct {
	Variable string
	Init     *uint256.Int
	Step     *uint256.Int
	Bound    vm.WrappedOpcode
	StepUp   bool // true for X+1, false for X-1
}

// Sentinel jumpdest count for an exploration that hit the wall-clock
// budget before reaching a natural terminator. Nothing in this package
// records it on a VMTrace; Explorer.TimedOut reports the timeout.
const TimedOutJumpdestCount = 0

// IsTerminal reports whether t ended the path (zero children) rather
// than forking at a JUMPI.
func (t *VMTrace) IsTerminal() bool {
	return len(t.Children) == 0
}

// ExitCode returns the halting exit code of the last instruction in
// this block, or -1 if the block has no operations yet (possible for a
// timed-out partial trace).
func (t *VMTrace) ExitCode() int {
	if len(t.Operations) == 0 {
		return -1
	}
	last := t.Operations[len(t.Operations)-1]
	switch last.Opcode {
	case vm.STOP:
		return vm.ExitStop
	case vm.RETURN:
		return vm.ExitSuccess
	case vm.REVERT, vm.INVALID, vm.SELFDESTRUCT:
		return vm.ExitReverted
	case vm.JUMP, vm.JUMPI:
		// A terminal block whose last recorded op is the jump itself
		// (no children) means the jump target was rejected.
		if t.IsTerminal() {
			return vm.ExitInvalidJumpDestination
		}
	}
	return -1
}

// Walk visits t and every descendant in pre-order.
func (t *VMTrace) Walk(fn func(*VMTrace)) {
	fn(t)
	for _, c := range t.Children {
		c.Walk(fn)
	}
}

// CountJumpdests returns the number of JUMPDEST operations anywhere in
// the tree rooted at t, including a budget-expired partial trace; this
// count never substitutes TimedOutJumpdestCount, and the explorer does
// not set that sentinel either.
func (t *VMTrace) CountJumpdests() int {
	n := 0
	t.Walk(func(n2 *VMTrace) {
		for _, inst := range n2.Operations {
			if inst.Opcode == vm.JUMPDEST {
				n++
			}
		}
	})
	return n
}
