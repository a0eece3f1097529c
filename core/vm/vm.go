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
	"fmt"
	"time"

	"github.com/holiman/uint256"
)

// ErrHalted is returned when Step is called on a VM that already halted.
var ErrHalted = fmt.Errorf("vm: already halted")

// Instruction is the trace record produced by one Step call: the
// concrete inputs/outputs and the symbolic expressions that produced
// them, which the branch explorer appends to the current VMTrace
// basic block's operations list.
type Instruction struct {
	PC               uint64
	Opcode           Opcode
	Inputs           []*uint256.Int
	Outputs          []*uint256.Int
	InputOperations  []WrappedOpcode
	OutputOperations []WrappedOpcode
}

// Event is one LOG0..LOG4 emission captured during execution.
type Event struct {
	Topics []WrappedOpcode
	Data   []byte
	DataOp WrappedOpcode
}

// State is returned after every Step: a snapshot sufficient for
// tracing and for deciding the explorer's next move.
type State struct {
	LastInstruction Instruction
	GasUsed         uint64
	GasRemaining    uint64
	Stack           *Stack
	Memory          *Memory
	Storage         *Storage
	Events          []Event
}

// VM is the symbolic execution context for one call into a contract.
// Every field mutated by Step is either copy-on-write safe (the
// pointer-valued Stack/Memory/Storage are replaced wholesale by Clone)
// or a plain value, so Clone produces two VMs that share no mutable
// state — the copy-on-fork discipline the branch explorer depends on.
type VM struct {
	Stack         *Stack
	Memory        *Memory
	Storage       *Storage
	WarmAddresses *WarmAddressSet

	PC uint64

	Bytecode []byte // immutable within a run; safe to share across clones
	Calldata []byte // immutable within a run; safe to share across clones

	Address [20]byte
	Origin  [20]byte
	Caller  [20]byte
	Value   *uint256.Int

	GasRemaining uint64
	GasUsed      uint64

	Events     []Event
	ReturnData []byte
	ExitCode   int
	Halted     bool

	jumpdests map[uint64]bool

	now time.Time // fixed at construction so TIMESTAMP is stable across a clone tree
}

// New creates a VM ready to execute bytecode from pc 0. gasLimit is a
// soft exploration budget, not a consensus gas schedule; per §4.2 the
// starting floor is max(limit, 21000) − 21000.
func New(bytecode, calldata []byte, gasLimit uint64) *VM {
	if gasLimit < 21000 {
		gasLimit = 21000
	}
	return &VM{
		Stack:         NewStack(),
		Memory:        NewMemory(0),
		Storage:       NewStorage(),
		WarmAddresses: NewWarmAddressSet(),
		Bytecode:      bytecode,
		Calldata:      calldata,
		Value:         uint256.NewInt(0),
		GasRemaining:  gasLimit - 21000,
		jumpdests:     scanJumpdests(bytecode),
		now:           time.Now(),
	}
}

// scanJumpdests precomputes the set of pc offsets holding a genuine
// JUMPDEST opcode, skipping over PUSH immediate bytes so a 0x5b byte
// embedded inside a PUSH argument is never mistaken for a jump target.
func scanJumpdests(code []byte) map[uint64]bool {
	dests := make(map[uint64]bool)
	for i := 0; i < len(code); {
		op := Opcode(code[i])
		if op == JUMPDEST {
			dests[uint64(i)] = true
		}
		if op.IsPush() {
			i += 1 + int(op.PushSize())
			continue
		}
		i++
	}
	return dests
}

// Reset clears transient per-call state (stack, memory, pc, events,
// return data) while preserving persistent storage, matching "storage
// state is retained between calls of the same VM instance until
// reset()".
func (vm *VM) Reset() {
	vm.Stack = NewStack()
	vm.Memory = NewMemory(0)
	vm.Storage.Reset()
	vm.WarmAddresses = NewWarmAddressSet()
	vm.PC = 0
	vm.Events = nil
	vm.ReturnData = nil
	vm.ExitCode = 0
	vm.Halted = false
}

// Clone deep-copies the mutable state (stack, memory, storage,
// warm-address set) while sharing the immutable bytecode/calldata
// slices and the jumpdest table, giving the branch explorer's JUMPI
// fork two VMs that can diverge without racing.
func (vm *VM) Clone() *VM {
	cp := *vm
	cp.Stack = vm.Stack.Snapshot()
	cp.Memory = &Memory{
		data:  append([]byte(nil), vm.Memory.data...),
		prov:  make(map[uint64]WrappedOpcode, len(vm.Memory.prov)),
		limit: vm.Memory.limit,
	}
	for k, v := range vm.Memory.prov {
		cp.Memory.prov[k] = v
	}
	cp.Storage = vm.Storage.Snapshot()
	cp.WarmAddresses = vm.WarmAddresses.Snapshot()
	cp.Events = append([]Event(nil), vm.Events...)
	cp.ReturnData = append([]byte(nil), vm.ReturnData...)
	return &cp
}

func (vm *VM) fetchOp() (Opcode, bool) {
	if vm.PC >= uint64(len(vm.Bytecode)) {
		return STOP, false
	}
	return Opcode(vm.Bytecode[vm.PC]), true
}

// useGas deducts cost from the remaining budget, halting the VM with
// exitcode 9 (OutOfGas) if it would go negative.
func (vm *VM) useGas(cost uint64) error {
	if cost > vm.GasRemaining {
		vm.GasRemaining = 0
		vm.Halted = true
		vm.ExitCode = ExitOutOfGas
		return ErrOutOfGas
	}
	vm.GasRemaining -= cost
	vm.GasUsed += cost
	return nil
}

func (vm *VM) push(v *uint256.Int, op WrappedOpcode) error {
	return vm.Stack.Push(StackFrame{Value: v, Operation: op})
}

// popN pops n frames, returning their values and operations ordered
// top-first, matching the "input_operations snapshotted from the
// top-n frames" contract.
func (vm *VM) popN(n int) ([]*uint256.Int, []WrappedOpcode, error) {
	vals := make([]*uint256.Int, n)
	ops := make([]WrappedOpcode, n)
	for i := 0; i < n; i++ {
		f, err := vm.Stack.Pop()
		if err != nil {
			return nil, nil, err
		}
		vals[i] = f.Value
		ops[i] = f.Operation
	}
	return vals, ops, nil
}

// inputsOf converts popped operand provenance into WrappedInputs: a
// literal push folds to a raw constant, anything else nests the tree.
func inputsOf(ops []WrappedOpcode, vals []*uint256.Int) []WrappedInput {
	in := make([]WrappedInput, len(ops))
	for i, op := range ops {
		if lit, ok := op.AsLiteral(); ok {
			in[i] = RawInput(lit)
			continue
		}
		in[i] = NestedInput(op)
	}
	return in
}

// Step executes exactly one opcode at the current PC, returning the
// resulting state snapshot and the Instruction record for the branch
// explorer to append to the current basic block.
func (vm *VM) Step() (*State, Instruction, error) {
	if vm.Halted {
		return nil, Instruction{}, ErrHalted
	}

	op, ok := vm.fetchOp()
	pc := vm.PC
	if !ok {
		vm.Halted = true
		vm.ExitCode = ExitStop
		return vm.snapshot(Instruction{PC: pc, Opcode: STOP}), Instruction{PC: pc, Opcode: STOP}, nil
	}

	if err := vm.useGas(op.MinGas()); err != nil {
		inst := Instruction{PC: pc, Opcode: op}
		return vm.snapshot(inst), inst, err
	}

	inst, err := vm.dispatch(op, pc)
	if err != nil {
		return vm.snapshot(inst), inst, err
	}
	return vm.snapshot(inst), inst, nil
}

func (vm *VM) snapshot(inst Instruction) *State {
	return &State{
		LastInstruction: inst,
		GasUsed:         vm.GasUsed,
		GasRemaining:    vm.GasRemaining,
		Stack:           vm.Stack,
		Memory:          vm.Memory,
		Storage:         vm.Storage,
		Events:          vm.Events,
	}
}

func (vm *VM) advance(n uint64) { vm.PC += n }

// dispatch executes the decoded opcode and returns its Instruction
// trace record. Any malformed-bytecode condition (bad jump, stack
// fault) halts the VM with an exit code and the error is also returned
// to the caller; containing VMTrace nodes stay well-formed even when
// one branch dies early.
func (vm *VM) dispatch(op Opcode, pc uint64) (Instruction, error) {
	inst := Instruction{PC: pc, Opcode: op}

	binary := func(fold func(a, b *uint256.Int) *uint256.Int) error {
		vals, ops, err := vm.popN(2)
		if err != nil {
			return vm.fault(err)
		}
		result := fold(vals[0], vals[1])
		wop := NewWrappedOpcode(op, inputsOf(ops, vals), result)
		if err := vm.push(result, wop); err != nil {
			return vm.fault(err)
		}
		inst.Inputs, inst.InputOperations = vals, ops
		inst.Outputs, inst.OutputOperations = []*uint256.Int{result}, []WrappedOpcode{wop}
		return nil
	}

	unary := func(fold func(a *uint256.Int) *uint256.Int) error {
		vals, ops, err := vm.popN(1)
		if err != nil {
			return vm.fault(err)
		}
		result := fold(vals[0])
		wop := NewWrappedOpcode(op, inputsOf(ops, vals), result)
		if err := vm.push(result, wop); err != nil {
			return vm.fault(err)
		}
		inst.Inputs, inst.InputOperations = vals, ops
		inst.Outputs, inst.OutputOperations = []*uint256.Int{result}, []WrappedOpcode{wop}
		return nil
	}

	environmental := func(v uint64) error {
		result := uint256.NewInt(v)
		wop := WrappedOpcode{Opcode: op}
		if err := vm.push(result, wop); err != nil {
			return vm.fault(err)
		}
		inst.Outputs, inst.OutputOperations = []*uint256.Int{result}, []WrappedOpcode{wop}
		return nil
	}

	var err error
	switch {
	case op.IsPush():
		err = vm.execPush(op, &inst)
		goto advance
	case op.IsDup():
		err = vm.execDup(op, &inst)
		goto advance
	case op.IsSwap():
		err = vm.execSwap(op, &inst)
		goto advance
	case op.IsLog():
		err = vm.execLog(op, &inst)
		goto advance
	}

	switch op {
	case STOP:
		vm.Halted = true
		vm.ExitCode = ExitStop
	case ADD:
		err = binary(func(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).Add(a, b) })
	case MUL:
		err = binary(func(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).Mul(a, b) })
	case SUB:
		err = binary(func(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).Sub(a, b) })
	case DIV:
		err = binary(func(a, b *uint256.Int) *uint256.Int {
			if b.IsZero() {
				return uint256.NewInt(0)
			}
			return new(uint256.Int).Div(a, b)
		})
	case SDIV:
		err = binary(func(a, b *uint256.Int) *uint256.Int {
			if b.IsZero() {
				return uint256.NewInt(0)
			}
			return new(uint256.Int).SDiv(a, b)
		})
	case MOD:
		err = binary(func(a, b *uint256.Int) *uint256.Int {
			if b.IsZero() {
				return uint256.NewInt(0)
			}
			return new(uint256.Int).Mod(a, b)
		})
	case SMOD:
		err = binary(func(a, b *uint256.Int) *uint256.Int {
			if b.IsZero() {
				return uint256.NewInt(0)
			}
			return new(uint256.Int).SMod(a, b)
		})
	case ADDMOD:
		vals, ops, perr := vm.popN(3)
		if perr != nil {
			err = vm.fault(perr)
			break
		}
		result := new(uint256.Int)
		if vals[2].IsZero() {
			result.Clear()
		} else {
			result.AddMod(vals[0], vals[1], vals[2])
		}
		wop := NewWrappedOpcode(op, inputsOf(ops, vals), result)
		if perr := vm.push(result, wop); perr != nil {
			err = vm.fault(perr)
			break
		}
		inst.Inputs, inst.InputOperations = vals, ops
		inst.Outputs, inst.OutputOperations = []*uint256.Int{result}, []WrappedOpcode{wop}
	case MULMOD:
		vals, ops, perr := vm.popN(3)
		if perr != nil {
			err = vm.fault(perr)
			break
		}
		result := new(uint256.Int)
		if vals[2].IsZero() {
			result.Clear()
		} else {
			result.MulMod(vals[0], vals[1], vals[2])
		}
		wop := NewWrappedOpcode(op, inputsOf(ops, vals), result)
		if perr := vm.push(result, wop); perr != nil {
			err = vm.fault(perr)
			break
		}
		inst.Inputs, inst.InputOperations = vals, ops
		inst.Outputs, inst.OutputOperations = []*uint256.Int{result}, []WrappedOpcode{wop}
	case EXP:
		vals, ops, perr := vm.popN(2)
		if perr != nil {
			err = vm.fault(perr)
			break
		}
		if gerr := vm.useGas(expCost(uint64(byteLen(vals[1])))); gerr != nil {
			err = gerr
			break
		}
		result := new(uint256.Int).Exp(vals[0], vals[1])
		wop := NewWrappedOpcode(op, inputsOf(ops, vals), result)
		if perr := vm.push(result, wop); perr != nil {
			err = vm.fault(perr)
			break
		}
		inst.Inputs, inst.InputOperations = vals, ops
		inst.Outputs, inst.OutputOperations = []*uint256.Int{result}, []WrappedOpcode{wop}
	case SIGNEXTEND:
		err = binary(func(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).ExtendSign(b, a) })
	case LT:
		err = binary(func(a, b *uint256.Int) *uint256.Int { return boolInt(a.Lt(b)) })
	case GT:
		err = binary(func(a, b *uint256.Int) *uint256.Int { return boolInt(a.Gt(b)) })
	case SLT:
		err = binary(func(a, b *uint256.Int) *uint256.Int { return boolInt(a.Slt(b)) })
	case SGT:
		err = binary(func(a, b *uint256.Int) *uint256.Int { return boolInt(a.Sgt(b)) })
	case EQ:
		err = binary(func(a, b *uint256.Int) *uint256.Int { return boolInt(a.Eq(b)) })
	case ISZERO:
		err = unary(func(a *uint256.Int) *uint256.Int { return boolInt(a.IsZero()) })
	case AND:
		err = binary(func(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).And(a, b) })
	case OR:
		err = binary(func(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).Or(a, b) })
	case XOR:
		err = binary(func(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).Xor(a, b) })
	case NOT:
		err = unary(func(a *uint256.Int) *uint256.Int { return new(uint256.Int).Not(a) })
	case BYTE:
		err = binary(func(i, x *uint256.Int) *uint256.Int { return new(uint256.Int).Set(x).Byte(i) })
	case SHL:
		err = binary(func(shift, val *uint256.Int) *uint256.Int { return new(uint256.Int).Lsh(val, uint(shift.Uint64())) })
	case SHR:
		err = binary(func(shift, val *uint256.Int) *uint256.Int { return new(uint256.Int).Rsh(val, uint(shift.Uint64())) })
	case SAR:
		err = binary(func(shift, val *uint256.Int) *uint256.Int { return new(uint256.Int).SRsh(val, uint(shift.Uint64())) })
	case SHA3:
		err = vm.execSHA3(&inst)
	case ADDRESS:
		err = environmental(0)
	case BALANCE:
		vals, ops, perr := vm.popN(1)
		if perr != nil {
			err = vm.fault(perr)
			break
		}
		result := uint256.NewInt(1) // simplification: BALANCE always returns 1
		wop := NewWrappedOpcode(op, inputsOf(ops, vals), nil)
		if perr := vm.push(result, wop); perr != nil {
			err = vm.fault(perr)
			break
		}
		inst.Inputs, inst.InputOperations = vals, ops
		inst.Outputs, inst.OutputOperations = []*uint256.Int{result}, []WrappedOpcode{wop}
	case ORIGIN, CALLER:
		err = environmental(0)
	case CALLVALUE:
		v := new(uint256.Int).Set(vm.Value)
		wop := WrappedOpcode{Opcode: op}
		if perr := vm.push(v, wop); perr != nil {
			err = vm.fault(perr)
			break
		}
		inst.Outputs, inst.OutputOperations = []*uint256.Int{v}, []WrappedOpcode{wop}
	case CALLDATALOAD:
		err = vm.execCalldataload(&inst)
	case CALLDATASIZE:
		err = environmental(uint64(len(vm.Calldata)))
	case CALLDATACOPY:
		err = vm.execCalldatacopy(&inst)
	case CODESIZE:
		err = environmental(uint64(len(vm.Bytecode)))
	case CODECOPY:
		err = vm.execCodecopy(&inst)
	case GASPRICE:
		err = environmental(1)
	case EXTCODESIZE, RETURNDATASIZE:
		vals, ops, perr := vm.popIfCallLike(op)
		if perr != nil {
			err = perr
			break
		}
		result := uint256.NewInt(1)
		wop := NewWrappedOpcode(op, inputsOf(ops, vals), nil)
		if len(vals) == 0 {
			wop = WrappedOpcode{Opcode: op}
		}
		if perr := vm.push(result, wop); perr != nil {
			err = vm.fault(perr)
			break
		}
		inst.Inputs, inst.InputOperations = vals, ops
		inst.Outputs, inst.OutputOperations = []*uint256.Int{result}, []WrappedOpcode{wop}
	case EXTCODECOPY:
		_, _, perr := vm.popN(4)
		if perr != nil {
			err = vm.fault(perr)
		}
	case RETURNDATACOPY:
		err = vm.execReturndatacopy(&inst)
	case EXTCODEHASH, BLOCKHASH:
		vals, ops, perr := vm.popN(1)
		if perr != nil {
			err = vm.fault(perr)
			break
		}
		result := uint256.NewInt(0)
		wop := NewWrappedOpcode(op, inputsOf(ops, vals), nil)
		if perr := vm.push(result, wop); perr != nil {
			err = vm.fault(perr)
			break
		}
		inst.Inputs, inst.InputOperations = vals, ops
		inst.Outputs, inst.OutputOperations = []*uint256.Int{result}, []WrappedOpcode{wop}
	case COINBASE:
		err = environmental(0xc01bec0)
	case TIMESTAMP:
		err = environmental(uint64(vm.now.Unix()))
	case NUMBER, DIFFICULTY, GASLIMIT, CHAINID, SELFBALANCE, BASEFEE, BLOBHASH, BLOBBASEFEE:
		err = environmental(1)
	case POP:
		_, _, perr := vm.popN(1)
		if perr != nil {
			err = vm.fault(perr)
		}
	case MLOAD:
		err = vm.execMload(&inst)
	case MSTORE:
		err = vm.execMstore(&inst, 32)
	case MSTORE8:
		err = vm.execMstore(&inst, 1)
	case SLOAD:
		err = vm.execSload(&inst)
	case SSTORE:
		err = vm.execSstore(&inst)
	case JUMP:
		err = vm.execJump(&inst, false)
	case JUMPI:
		err = vm.execJump(&inst, true)
	case PC:
		err = environmental(pc)
	case MSIZE:
		err = environmental(vm.Memory.Len())
	case GAS:
		err = environmental(vm.GasRemaining)
	case JUMPDEST:
		// no-op marker
	case TLOAD:
		err = vm.execTload(&inst)
	case TSTORE:
		err = vm.execTstore(&inst)
	case MCOPY:
		err = vm.execMcopy(&inst)
	case RETURN:
		err = vm.execReturnRevert(&inst, ExitSuccess)
	case REVERT:
		err = vm.execReturnRevert(&inst, ExitReverted)
	case INVALID:
		vm.Halted = true
		vm.ExitCode = ExitReverted
	case SELFDESTRUCT:
		_, _, perr := vm.popN(1)
		if perr != nil {
			err = vm.fault(perr)
			break
		}
		vm.Halted = true
		vm.ExitCode = ExitReverted
	case CALL, CALLCODE, DELEGATECALL, STATICCALL:
		err = vm.execExternalCall(op, &inst)
	case CREATE, CREATE2:
		err = vm.execCreate(op, &inst)
	default:
		vm.Halted = true
		vm.ExitCode = ExitReverted
	}

advance:
	if err == nil && !vm.Halted && op != JUMP && op != JUMPI {
		vm.advance(1 + uint64(op.PushSize()))
	}
	return inst, err
}

// fault converts a stack error into a VM halt (ExitReverted) and hands
// the same error back for the caller to return.
func (vm *VM) fault(err error) error {
	vm.Halted = true
	vm.ExitCode = ExitReverted
	return err
}

func boolInt(b bool) *uint256.Int {
	if b {
		return uint256.NewInt(1)
	}
	return uint256.NewInt(0)
}

func byteLen(v *uint256.Int) int {
	return len(v.Bytes())
}

func (vm *VM) execPush(op Opcode, inst *Instruction) error {
	n := int(op.PushSize())
	var buf [32]byte
	start := vm.PC + 1
	if op == PUSH0 {
		n = 0
	}
	for i := 0; i < n; i++ {
		idx := start + uint64(i)
		if idx < uint64(len(vm.Bytecode)) {
			buf[32-n+i] = vm.Bytecode[idx]
		}
	}
	v := new(uint256.Int).SetBytes(buf[:])
	wop := Literal(v)
	if op == PUSH0 {
		wop = WrappedOpcode{Opcode: PUSH0}
	}
	if err := vm.push(v, wop); err != nil {
		return vm.fault(err)
	}
	inst.Outputs, inst.OutputOperations = []*uint256.Int{v}, []WrappedOpcode{wop}
	return nil
}

func (vm *VM) execDup(op Opcode, inst *Instruction) error {
	n := int(op.DupN())
	f, err := vm.Stack.PeekN(n - 1)
	if err != nil {
		return vm.fault(err)
	}
	if err := vm.push(f.Value, f.Operation); err != nil {
		return vm.fault(err)
	}
	inst.Outputs, inst.OutputOperations = []*uint256.Int{f.Value}, []WrappedOpcode{f.Operation}
	return nil
}

func (vm *VM) execSwap(op Opcode, inst *Instruction) error {
	n := int(op.SwapN())
	if err := vm.Stack.SwapN(n); err != nil {
		return vm.fault(err)
	}
	return nil
}

func (vm *VM) execLog(op Opcode, inst *Instruction) error {
	topicCount := int(op.LogTopics())
	vals, ops, err := vm.popN(2 + topicCount)
	if err != nil {
		return vm.fault(err)
	}
	offset, size := vals[0].Uint64(), vals[1].Uint64()
	if gerr := vm.useGas(logCost(uint64(topicCount), size)); gerr != nil {
		return gerr
	}
	data, newWords, merr := vm.Memory.Read(offset, size)
	if merr != nil {
		return vm.fault(merr)
	}
	if gerr := vm.useGas(memoryExpansionCost((vm.Memory.Len())/wordSize, newWords)); gerr != nil {
		return gerr
	}
	topics := append([]WrappedOpcode(nil), ops[2:]...)
	dataOp, _ := vm.Memory.ProvenanceAt(offset)
	vm.Events = append(vm.Events, Event{Topics: topics, Data: data, DataOp: dataOp})
	inst.Inputs, inst.InputOperations = vals, ops
	return nil
}

func (vm *VM) execSHA3(inst *Instruction) error {
	vals, ops, err := vm.popN(2)
	if err != nil {
		return vm.fault(err)
	}
	offset, size := vals[0].Uint64(), vals[1].Uint64()
	if gerr := vm.useGas(sha3Cost(size)); gerr != nil {
		return gerr
	}
	data, newWords, merr := vm.Memory.Read(offset, size)
	if merr != nil {
		return vm.fault(merr)
	}
	if gerr := vm.useGas(memoryExpansionCost(vm.Memory.Len()/wordSize, newWords)); gerr != nil {
		return gerr
	}
	digest := Keccak256(data)
	result := new(uint256.Int).SetBytes(digest)
	wop := NewWrappedOpcode(SHA3, inputsOf(ops, vals), nil)
	if perr := vm.push(result, wop); perr != nil {
		return vm.fault(perr)
	}
	inst.Inputs, inst.InputOperations = vals, ops
	inst.Outputs, inst.OutputOperations = []*uint256.Int{result}, []WrappedOpcode{wop}
	return nil
}

func (vm *VM) execCalldataload(inst *Instruction) error {
	vals, ops, err := vm.popN(1)
	if err != nil {
		return vm.fault(err)
	}
	off := clampUsize(vals[0])
	var buf [32]byte
	for i := 0; i < 32; i++ {
		idx := off + uint64(i)
		if idx < uint64(len(vm.Calldata)) {
			buf[i] = vm.Calldata[idx]
		}
	}
	result := new(uint256.Int).SetBytes(buf[:])
	wop := NewWrappedOpcode(CALLDATALOAD, inputsOf(ops, vals), nil)
	if perr := vm.push(result, wop); perr != nil {
		return vm.fault(perr)
	}
	inst.Inputs, inst.InputOperations = vals, ops
	inst.Outputs, inst.OutputOperations = []*uint256.Int{result}, []WrappedOpcode{wop}
	return nil
}

func (vm *VM) execCalldatacopy(inst *Instruction) error {
	vals, ops, err := vm.popN(3)
	if err != nil {
		return vm.fault(err)
	}
	destOff, srcOff, size := vals[0].Uint64(), vals[1].Uint64(), vals[2].Uint64()
	data := safeCopyData(vm.Calldata, srcOff, size)
	wop := NewWrappedOpcode(CALLDATACOPY, inputsOf(ops, vals), nil)
	newWords, merr := vm.Memory.Write(destOff, data, wop)
	if merr != nil {
		return vm.fault(merr)
	}
	if gerr := vm.useGas(memoryExpansionCost(vm.Memory.Len()/wordSize, newWords)); gerr != nil {
		return gerr
	}
	inst.Inputs, inst.InputOperations = vals, ops
	return nil
}

func (vm *VM) execCodecopy(inst *Instruction) error {
	vals, ops, err := vm.popN(3)
	if err != nil {
		return vm.fault(err)
	}
	destOff, srcOff, size := vals[0].Uint64(), vals[1].Uint64(), vals[2].Uint64()
	data := safeCopyData(vm.Bytecode, srcOff, size)
	wop := NewWrappedOpcode(CODECOPY, inputsOf(ops, vals), nil)
	newWords, merr := vm.Memory.Write(destOff, data, wop)
	if merr != nil {
		return vm.fault(merr)
	}
	if gerr := vm.useGas(memoryExpansionCost(vm.Memory.Len()/wordSize, newWords)); gerr != nil {
		return gerr
	}
	inst.Inputs, inst.InputOperations = vals, ops
	return nil
}

func (vm *VM) execReturndatacopy(inst *Instruction) error {
	vals, ops, err := vm.popN(3)
	if err != nil {
		return vm.fault(err)
	}
	destOff, srcOff, size := vals[0].Uint64(), vals[1].Uint64(), vals[2].Uint64()
	data := safeCopyData(vm.ReturnData, srcOff, size)
	wop := NewWrappedOpcode(RETURNDATACOPY, inputsOf(ops, vals), nil)
	newWords, merr := vm.Memory.Write(destOff, data, wop)
	if merr != nil {
		return vm.fault(merr)
	}
	if gerr := vm.useGas(memoryExpansionCost(vm.Memory.Len()/wordSize, newWords)); gerr != nil {
		return gerr
	}
	inst.Inputs, inst.InputOperations = vals, ops
	return nil
}

func (vm *VM) execMload(inst *Instruction) error {
	vals, ops, err := vm.popN(1)
	if err != nil {
		return vm.fault(err)
	}
	offset := vals[0].Uint64()
	data, newWords, merr := vm.Memory.Read(offset, 32)
	if merr != nil {
		return vm.fault(merr)
	}
	if gerr := vm.useGas(memoryExpansionCost(vm.Memory.Len()/wordSize, newWords)); gerr != nil {
		return gerr
	}
	result := new(uint256.Int).SetBytes(data)
	wop := NewWrappedOpcode(MLOAD, inputsOf(ops, vals), nil)
	if perr := vm.push(result, wop); perr != nil {
		return vm.fault(perr)
	}
	inst.Inputs, inst.InputOperations = vals, ops
	inst.Outputs, inst.OutputOperations = []*uint256.Int{result}, []WrappedOpcode{wop}
	return nil
}

func (vm *VM) execMstore(inst *Instruction, width int) error {
	vals, ops, err := vm.popN(2)
	if err != nil {
		return vm.fault(err)
	}
	offset := vals[0].Uint64()
	wop := NewWrappedOpcode(inst.Opcode, inputsOf(ops, vals), nil)
	var newWords uint64
	var merr error
	if width == 32 {
		b := vals[1].Bytes32()
		newWords, merr = vm.Memory.WriteWord(offset, b, wop)
	} else {
		b := vals[1].Bytes32()
		newWords, merr = vm.Memory.Write(offset, b[31:32], wop)
	}
	if merr != nil {
		return vm.fault(merr)
	}
	if gerr := vm.useGas(memoryExpansionCost(vm.Memory.Len()/wordSize, newWords)); gerr != nil {
		return gerr
	}
	inst.Inputs, inst.InputOperations = vals, ops
	return nil
}

func (vm *VM) execSload(inst *Instruction) error {
	vals, ops, err := vm.popN(1)
	if err != nil {
		return vm.fault(err)
	}
	frame, warm := vm.Storage.Load(vals[0])
	if gerr := vm.useGas(accessCost(warm, coldSloadGas, warmSloadGas)); gerr != nil {
		return gerr
	}
	wop := NewWrappedOpcode(SLOAD, inputsOf(ops, vals), nil)
	result := frame.Value
	if perr := vm.push(result, wop); perr != nil {
		return vm.fault(perr)
	}
	inst.Inputs, inst.InputOperations = vals, ops
	inst.Outputs, inst.OutputOperations = []*uint256.Int{result}, []WrappedOpcode{wop}
	return nil
}

func (vm *VM) execSstore(inst *Instruction) error {
	vals, ops, err := vm.popN(2)
	if err != nil {
		return vm.fault(err)
	}
	wop := NewWrappedOpcode(SSTORE, inputsOf(ops, vals), nil)
	warm := vm.Storage.Store(vals[0], StorageFrame{Value: vals[1], Operation: ops[1]})
	if gerr := vm.useGas(accessCost(warm, coldSloadGas, warmSloadGas)); gerr != nil {
		return gerr
	}
	_ = wop
	inst.Inputs, inst.InputOperations = vals, ops
	return nil
}

func (vm *VM) execTload(inst *Instruction) error {
	vals, ops, err := vm.popN(1)
	if err != nil {
		return vm.fault(err)
	}
	frame := vm.Storage.TLoad(vals[0])
	wop := NewWrappedOpcode(TLOAD, inputsOf(ops, vals), nil)
	if perr := vm.push(frame.Value, wop); perr != nil {
		return vm.fault(perr)
	}
	inst.Inputs, inst.InputOperations = vals, ops
	inst.Outputs, inst.OutputOperations = []*uint256.Int{frame.Value}, []WrappedOpcode{wop}
	return nil
}

func (vm *VM) execTstore(inst *Instruction) error {
	vals, ops, err := vm.popN(2)
	if err != nil {
		return vm.fault(err)
	}
	vm.Storage.TStore(vals[0], StorageFrame{Value: vals[1], Operation: ops[1]})
	inst.Inputs, inst.InputOperations = vals, ops
	return nil
}

func (vm *VM) execMcopy(inst *Instruction) error {
	vals, ops, err := vm.popN(3)
	if err != nil {
		return vm.fault(err)
	}
	destOff, srcOff, size := vals[0].Uint64(), vals[1].Uint64(), vals[2].Uint64()
	data, _, merr := vm.Memory.Read(srcOff, size)
	if merr != nil {
		return vm.fault(merr)
	}
	wop := NewWrappedOpcode(MCOPY, inputsOf(ops, vals), nil)
	newWords, werr := vm.Memory.Write(destOff, data, wop)
	if werr != nil {
		return vm.fault(werr)
	}
	if gerr := vm.useGas(memoryExpansionCost(vm.Memory.Len()/wordSize, newWords)); gerr != nil {
		return gerr
	}
	inst.Inputs, inst.InputOperations = vals, ops
	return nil
}

// execJump handles both JUMP and JUMPI. JUMPI's condition is returned
// to the caller via inst so the branch explorer can fork on it; this
// function itself only ever takes the "true" branch deterministically
// (condition != 0), since forking both ways is the explorer's job, not
// the VM's — a bare Step call through a conditional always advances as
// if running linearly once.
func (vm *VM) execJump(inst *Instruction, conditional bool) error {
	var vals []*uint256.Int
	var ops []WrappedOpcode
	var err error
	if conditional {
		vals, ops, err = vm.popN(2)
	} else {
		vals, ops, err = vm.popN(1)
	}
	if err != nil {
		return vm.fault(err)
	}
	inst.Inputs, inst.InputOperations = vals, ops

	target := vals[0].Uint64()
	take := true
	if conditional {
		take = !vals[1].IsZero()
	}
	if !take {
		vm.advance(1)
		return nil
	}
	if !vm.jumpdests[target] {
		vm.Halted = true
		vm.ExitCode = ExitInvalidJumpDestination
		return fmt.Errorf("%w: target=0x%x", ErrInvalidJumpDestination, target)
	}
	vm.PC = target
	return nil
}

// ForceCondition overrides the condition operand of a pending JUMPI —
// the second frame from the top, since JUMPI pops its jump target
// before its condition — letting the branch explorer step the same
// JUMPI down both the taken and fallthrough paths from cloned VMs.
func (vm *VM) ForceCondition(taken bool) error {
	f, err := vm.Stack.PeekN(1)
	if err != nil {
		return err
	}
	v := uint256.NewInt(0)
	if taken {
		v = uint256.NewInt(1)
	}
	vm.Stack.frames[len(vm.Stack.frames)-2] = StackFrame{Value: v, Operation: f.Operation}
	return nil
}

func (vm *VM) execReturnRevert(inst *Instruction, exitCode int) error {
	vals, ops, err := vm.popN(2)
	if err != nil {
		return vm.fault(err)
	}
	offset, size := vals[0].Uint64(), vals[1].Uint64()
	data, newWords, merr := vm.Memory.Read(offset, size)
	if merr != nil {
		return vm.fault(merr)
	}
	if gerr := vm.useGas(memoryExpansionCost(vm.Memory.Len()/wordSize, newWords)); gerr != nil {
		return gerr
	}
	vm.ReturnData = data
	vm.ExitCode = exitCode
	vm.Halted = true
	inst.Inputs, inst.InputOperations = vals, ops
	return nil
}

// popIfCallLike pops the single address argument for EXTCODESIZE but
// leaves the stack untouched for RETURNDATASIZE, which (per §4.2's
// simplification) takes no arguments and always returns 1.
func (vm *VM) popIfCallLike(op Opcode) ([]*uint256.Int, []WrappedOpcode, error) {
	if op == RETURNDATASIZE {
		return nil, nil, nil
	}
	vals, ops, err := vm.popN(1)
	if err != nil {
		return nil, nil, vm.fault(err)
	}
	return vals, ops, nil
}

// execExternalCall handles CALL/CALLCODE/DELEGATECALL/STATICCALL: it
// consumes the opcode's full input arity, charges a warm/cold access
// fee for the destination address, and always pushes success (1), per
// the documented simplification that external calls are not actually
// followed.
func (vm *VM) execExternalCall(op Opcode, inst *Instruction) error {
	n := int(op.Inputs())
	vals, ops, err := vm.popN(n)
	if err != nil {
		return vm.fault(err)
	}
	destIdx := 1
	var addr [20]byte
	if destIdx < len(vals) {
		b := vals[destIdx].Bytes20()
		addr = b
	}
	warm := vm.WarmAddresses.Touch(addr)
	if gerr := vm.useGas(accessCost(warm, coldAccessGas, warmAccessGas)); gerr != nil {
		return gerr
	}
	result := uint256.NewInt(1)
	wop := NewWrappedOpcode(op, inputsOf(ops, vals), nil)
	if perr := vm.push(result, wop); perr != nil {
		return vm.fault(perr)
	}
	inst.Inputs, inst.InputOperations = vals, ops
	inst.Outputs, inst.OutputOperations = []*uint256.Int{result}, []WrappedOpcode{wop}
	return nil
}

// createSentinelAddress is the fixed address this core reports for any
// CREATE/CREATE2, since actually deriving the deployed address
// requires following nonce/init-code semantics this core does not
// model.
var createSentinelAddress = uint256.NewInt(0xc4ea7e)

func (vm *VM) execCreate(op Opcode, inst *Instruction) error {
	n := int(op.Inputs())
	vals, ops, err := vm.popN(n)
	if err != nil {
		return vm.fault(err)
	}
	wop := NewWrappedOpcode(op, inputsOf(ops, vals), nil)
	result := new(uint256.Int).Set(createSentinelAddress)
	if perr := vm.push(result, wop); perr != nil {
		return vm.fault(perr)
	}
	inst.Inputs, inst.InputOperations = vals, ops
	inst.Outputs, inst.OutputOperations = []*uint256.Int{result}, []WrappedOpcode{wop}
	return nil
}

// clampUsize saturates a u256 to a usize-range uint64, per the "every
// conversion from u256 to a native pointer-sized integer saturates"
// clamping discipline.
func clampUsize(v *uint256.Int) uint64 {
	if !v.IsUint64() {
		return ^uint64(0)
	}
	return v.Uint64()
}

// safeCopyData returns size bytes of source starting at off,
// zero-padding beyond source length — the §4.2 clamping discipline
// for CALLDATACOPY/CODECOPY/RETURNDATACOPY.
func safeCopyData(source []byte, off, size uint64) []byte {
	out := make([]byte, size)
	if off >= uint64(len(source)) {
		return out
	}
	n := uint64(len(source)) - off
	if n > size {
		n = size
	}
	copy(out, source[off:off+n])
	return out
}

// Disassemble returns a human-readable listing of the bytecode,
// skipping PUSH immediate bytes so offsets line up with real pcs.
func Disassemble(code []byte) string {
	out := ""
	for i := 0; i < len(code); {
		op := Opcode(code[i])
		if op.IsPush() {
			n := int(op.PushSize())
			end := i + 1 + n
			if end > len(code) {
				end = len(code)
			}
			out += fmt.Sprintf("[%04d] %-12s 0x%x\n", i, op, code[i+1:end])
			i = end
			continue
		}
		out += fmt.Sprintf("[%04d] %s\n", i, op)
		i++
	}
	return out
}
