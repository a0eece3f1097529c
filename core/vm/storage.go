// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import "github.com/holiman/uint256"

// StorageFrame pairs a stored value with the expression that produced
// it, mirroring StackFrame — the analyzer renders `storage[k] = v;`
// from the value but keeps the WrappedOpcode so a later postprocessor
// pass can ask what wrote it.
type StorageFrame struct {
	Value     *uint256.Int
	Operation WrappedOpcode
}

// Storage holds a VM's persistent and transient (EIP-1153) key-value
// maps plus the address-warmth bookkeeping used for SLOAD/SSTORE gas.
// Persistent storage survives across calls to the same VM instance,
// Reset included; transient storage is cleared every Reset since it is
// scoped to a single top-level transaction in the real EVM.
type Storage struct {
	slots  map[[32]byte]StorageFrame
	tslots map[[32]byte]StorageFrame
	warm   map[[32]byte]bool
}

// NewStorage returns an empty Storage.
func NewStorage() *Storage {
	return &Storage{
		slots:  make(map[[32]byte]StorageFrame),
		tslots: make(map[[32]byte]StorageFrame),
		warm:   make(map[[32]byte]bool),
	}
}

// Load reads the persistent slot at key, returning the zero frame if
// never written, and reports whether the access was warm (already
// touched this execution) for gas accounting.
func (s *Storage) Load(key *uint256.Int) (StorageFrame, bool) {
	k := key.Bytes32()
	warm := s.warm[k]
	s.warm[k] = true
	f, ok := s.slots[k]
	if !ok {
		return StorageFrame{Value: uint256.NewInt(0)}, warm
	}
	return f, warm
}

// Store writes the persistent slot at key.
func (s *Storage) Store(key *uint256.Int, f StorageFrame) bool {
	k := key.Bytes32()
	warm := s.warm[k]
	s.warm[k] = true
	s.slots[k] = f
	return warm
}

// TLoad reads the transient slot at key (EIP-1153).
func (s *Storage) TLoad(key *uint256.Int) StorageFrame {
	f, ok := s.tslots[key.Bytes32()]
	if !ok {
		return StorageFrame{Value: uint256.NewInt(0)}
	}
	return f
}

// TStore writes the transient slot at key.
func (s *Storage) TStore(key *uint256.Int, f StorageFrame) {
	s.tslots[key.Bytes32()] = f
}

// Reset clears transient storage and the warm-access set for a fresh
// top-level call, while preserving persistent storage — matching the
// spec's "storage state is retained between calls of the same VM
// instance until reset()".
func (s *Storage) Reset() {
	s.tslots = make(map[[32]byte]StorageFrame)
	s.warm = make(map[[32]byte]bool)
}

// Snapshot returns an independent copy for use by a forked VM. Values
// are immutable once written, so a shallow copy of each map suffices.
func (s *Storage) Snapshot() *Storage {
	cp := &Storage{
		slots:  make(map[[32]byte]StorageFrame, len(s.slots)),
		tslots: make(map[[32]byte]StorageFrame, len(s.tslots)),
		warm:   make(map[[32]byte]bool, len(s.warm)),
	}
	for k, v := range s.slots {
		cp.slots[k] = v
	}
	for k, v := range s.tslots {
		cp.tslots[k] = v
	}
	for k, v := range s.warm {
		cp.warm[k] = v
	}
	return cp
}

// WarmAddressSet tracks which 20-byte addresses have been accessed by
// BALANCE/EXTCODE*/CALL* opcodes this execution, for the 2600-cold /
// 100-warm access-cost split.
type WarmAddressSet struct {
	seen map[[20]byte]bool
}

// NewWarmAddressSet returns an empty set.
func NewWarmAddressSet() *WarmAddressSet {
	return &WarmAddressSet{seen: make(map[[20]byte]bool)}
}

// Touch marks addr as accessed and reports whether it was already warm.
func (w *WarmAddressSet) Touch(addr [20]byte) (wasWarm bool) {
	wasWarm = w.seen[addr]
	w.seen[addr] = true
	return wasWarm
}

// Snapshot returns an independent copy for a forked VM.
func (w *WarmAddressSet) Snapshot() *WarmAddressSet {
	cp := &WarmAddressSet{seen: make(map[[20]byte]bool, len(w.seen))}
	for k, v := range w.seen {
		cp.seen[k] = v
	}
	return cp
}
