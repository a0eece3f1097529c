// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package analysis

import (
	"fmt"

	"github.com/probechain/evmdecompiler/core/vm"
)

// viewClearingOps are opcodes that read environment/chain state; any
// of them appearing in a function's trace means it can't be `pure`.
var viewClearingOps = map[vm.Opcode]bool{
	vm.BALANCE: true, vm.ORIGIN: true, vm.CALLER: true, vm.GASPRICE: true,
	vm.EXTCODESIZE: true, vm.EXTCODECOPY: true, vm.EXTCODEHASH: true,
	vm.BLOCKHASH: true, vm.COINBASE: true, vm.TIMESTAMP: true, vm.NUMBER: true,
	vm.DIFFICULTY: true, vm.GASLIMIT: true, vm.CHAINID: true, vm.SELFBALANCE: true,
	vm.BASEFEE: true, vm.SLOAD: true,
}

// mutatingOps is the tighter subset that also clears `view` — anything
// that writes state or sends value.
var mutatingOps = map[vm.Opcode]bool{
	vm.SSTORE: true, vm.CREATE: true, vm.CREATE2: true, vm.SELFDESTRUCT: true,
	vm.CALL: true, vm.CALLCODE: true, vm.DELEGATECALL: true, vm.STATICCALL: true,
	vm.LOG0: true, vm.LOG1: true, vm.LOG2: true, vm.LOG3: true, vm.LOG4: true,
}

func applyPurityFlags(f *Function, op vm.Opcode) {
	if viewClearingOps[op] {
		f.Pure = false
	}
	if mutatingOps[op] {
		f.Pure = false
		f.View = false
	}
}

// byteSizeToType maps a byte count inferred from a bitmask to the
// narrowest Solidity value type of that width, per §4.4's RETURN-type
// inference and argument type-refinement rules.
func byteSizeToType(n int, signed bool) string {
	if n <= 0 || n > 32 {
		return "uint256"
	}
	if n == 32 {
		if signed {
			return "int256"
		}
		return "uint256"
	}
	bits := n * 8
	if signed {
		return fmt.Sprintf("int%d", bits)
	}
	return fmt.Sprintf("uint%d", bits)
}

// ResolvedType picks one concrete type out of a CalldataFrame's
// surviving candidate set for display purposes, preferring the
// narrowest/most specific entry still standing: bool or address first,
// then the width implied by MaskSize, then the dynamic-type and
// full-word fallbacks §4.4 seeds every argument with.
func (c *CalldataFrame) ResolvedType() string {
	switch {
	case c.Candidates["bool"]:
		return "bool"
	case c.Candidates["address"]:
		return "address"
	}
	if c.MaskSize > 0 && c.MaskSize < 32 {
		if t := fmt.Sprintf("uint%d", c.MaskSize*8); c.Candidates[t] {
			return t
		}
		if t := fmt.Sprintf("bytes%d", c.MaskSize); c.Candidates[t] {
			return t
		}
	}
	switch {
	case c.Candidates["string"]:
		return "string"
	case c.Candidates["bytes32"]:
		return "bytes32"
	case c.Candidates["uint256"]:
		return "uint256"
	case c.Candidates["int256"]:
		return "int256"
	case c.Candidates["bytes"]:
		return "bytes"
	}
	return "uint256"
}

// convertBitmask inspects a literal AND mask and returns the number of
// contiguous non-zero low bytes plus the narrowed candidate type set,
// e.g. 0xff -> (1, {uint8, int8, bytes1}).
func convertBitmask(mask []byte) (int, map[string]bool) {
	n := 0
	for i := len(mask) - 1; i >= 0; i-- {
		if mask[i] == 0 {
			break
		}
		n++
	}
	if n == 0 {
		n = 1
	}
	return n, map[string]bool{
		byteSizeToType(n, false): true,
		byteSizeToType(n, true):  true,
		fmt.Sprintf("bytes%d", n): true,
	}
}
