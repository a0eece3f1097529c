// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import "errors"

// ErrInvalidJumpDestination is returned when JUMP/JUMPI targets a pc
// whose byte is not JUMPDEST.
var ErrInvalidJumpDestination = errors.New("vm: invalid jump destination")

// ErrOutOfGas is returned when gas_remaining would go negative.
var ErrOutOfGas = errors.New("vm: out of gas")

// Exit codes recorded on VM halt. These are not Go errors — they are
// the VM's own state, since §7 requires recoverable execution faults
// to become state transitions rather than unwinding errors, so that
// containing VMTrace nodes stay well-formed.
const (
	ExitSuccess               = 0
	ExitReverted              = 1
	ExitOutOfGas              = 9
	ExitStop                  = 10
	ExitInvalidJumpDestination = 790
)
