// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package trace

import (
	"time"

	mapset "github.com/deckarep/golang-set"

	"github.com/probechain/evmdecompiler/core/vm"
)

// Explorer builds a VMTrace tree by symbolically executing one entry
// point, forking the VM at every JUMPI. One Explorer serves one
// symbolic_exec_selector call; it is not safe for concurrent reuse —
// the caller fans out across selectors by constructing one Explorer
// (and one freshly constructed VM) per selector.
type Explorer struct {
	deadline time.Time
	visits   map[uint64]int
	warm     mapset.Set
	timedOut bool
}

// NewExplorer returns an Explorer bounded by the given wall-clock
// budget, measured from now.
func NewExplorer(budget time.Duration) *Explorer {
	return &Explorer{
		deadline: time.Now().Add(budget),
		visits:   make(map[uint64]int),
		warm:     mapset.NewSet(),
	}
}

// TimedOut reports whether the last Explore call returned a partial
// tree because the wall-clock budget expired.
func (e *Explorer) TimedOut() bool { return e.timedOut }

// Explore runs v from its current pc, producing the VMTrace rooted at
// that point. v is consumed: callers that need the VM afterward should
// pass a Clone.
func (e *Explorer) Explore(v *vm.VM) *VMTrace {
	return e.run(&VMTrace{}, v)
}

// run appends to node every Instruction executed from v's current pc
// until a JUMPI (where it hands off to fork) or a halt.
func (e *Explorer) run(node *VMTrace, v *vm.VM) *VMTrace {
	for {
		if time.Now().After(e.deadline) {
			e.timedOut = true
			return node
		}
		if v.Halted {
			return node
		}
		if v.PC < uint64(len(v.Bytecode)) && vm.Opcode(v.Bytecode[v.PC]) == vm.JUMPI {
			return e.fork(v, node)
		}

		_, inst, err := v.Step()
		node.Operations = append(node.Operations, inst)
		if err != nil || v.Halted {
			return node
		}
	}
}

// fork handles a pending JUMPI at v.PC: it probes the condition
// expression on a throwaway clone (so the real branches still see an
// un-stepped JUMPI), decides whether this jumpdest trail has looped,
// and otherwise steps two clones of v — one with the condition forced
// true, one forced false — each continuing into its own child VMTrace.
func (e *Explorer) fork(v *vm.VM, node *VMTrace) *VMTrace {
	jumpiPC := v.PC
	probe := v.Clone()
	_, probedInst, _ := probe.Step()
	if len(probedInst.InputOperations) < 2 {
		node.Operations = append(node.Operations, probedInst)
		return node
	}
	cond := probedInst.InputOperations[1]

	if loop := e.checkLoop(jumpiPC, cond); loop != nil {
		node.Operations = append(node.Operations, probedInst)
		node.Loop = loop
		return node
	}

	// visit counts are per path: the fallthrough branch starts from the
	// counts as they stood at this fork, not from the taken branch's
	saved := make(map[uint64]int, len(e.visits))
	for k, n := range e.visits {
		saved[k] = n
	}
	if taken := v.Clone(); taken.ForceCondition(true) == nil {
		node.Children = append(node.Children, e.stepForcedJumpi(taken))
	}
	e.visits = saved
	if fall := v.Clone(); fall.ForceCondition(false) == nil {
		node.Children = append(node.Children, e.stepForcedJumpi(fall))
	}
	return node
}

// stepForcedJumpi executes the JUMPI whose condition was just forced
// (consuming it, unlike the probe clone in fork) and continues
// exploring the resulting child from there.
func (e *Explorer) stepForcedJumpi(v *vm.VM) *VMTrace {
	child := &VMTrace{}
	_, inst, err := v.Step()
	child.Operations = append(child.Operations, inst)
	if err != nil || v.Halted {
		return child
	}
	return e.run(child, v)
}

// checkLoop applies the revisit-bound + tautology rule from §4.3's
// loop-handling protocol. Returns non-nil only when the jumpdest at pc
// has been visited enough times, along this path, that it should stop
// being unrolled. The returned LoopInfo carries only the JUMPI condition
// as Bound; no induction variable is looked for and no stack snapshots
// are compared, so Variable, Init and Step stay unset.
func (e *Explorer) checkLoop(pc uint64, cond vm.WrappedOpcode) *LoopInfo {
	e.visits[pc]++
	if e.visits[pc] <= revisitBound {
		return nil
	}
	if isTautologicalCondition(cond) {
		return nil
	}
	return &LoopInfo{Bound: cond}
}
