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
	"errors"
)

const (
	// DefaultMemoryLimit bounds how far a single run may expand memory
	// before MemoryExpansion reports it as implausible (16 MiB of EVM
	// word-addressable memory; real chains bound this via gas, we bound
	// it directly since gas here is only an exploration budget).
	DefaultMemoryLimit uint64 = 16 * 1024 * 1024

	wordSize uint64 = 32
)

// ErrOutOfMemory is returned when an access would expand memory past
// the configured limit.
var ErrOutOfMemory = errors.New("vm: out of memory")

// Memory is the EVM's byte-addressable linear memory: a single flat
// region that grows in 32-byte words on demand. Unlike the PROBE
// language's allocation-tracked heap, the EVM has no explicit
// alloc/free — any read or write simply expands memory to cover the
// accessed range, and the unwritten tail reads as zero.
//
// Each word written also carries provenance: the WrappedOpcode whose
// evaluation produced it, used by the analyzer to render
// `memory[off]` as `keccak256(...)`, `msg.sender`, etc. instead of a
// bare symbol.
type Memory struct {
	data  []byte
	prov  map[uint64]WrappedOpcode // word-aligned offset -> producing expression
	limit uint64
}

// NewMemory creates an empty Memory with the given expansion limit.
// If limit is 0, DefaultMemoryLimit is used.
func NewMemory(limit uint64) *Memory {
	if limit == 0 {
		limit = DefaultMemoryLimit
	}
	return &Memory{
		data:  make([]byte, 0, 1024),
		prov:  make(map[uint64]WrappedOpcode),
		limit: limit,
	}
}

// Len returns the current size of memory in bytes (always a multiple
// of 32 once any access has occurred).
func (m *Memory) Len() uint64 { return uint64(len(m.data)) }

// expand grows memory to cover [0, end), rounding up to the next word
// boundary, and returns the number of newly-touched words (used by the
// gas model's quadratic expansion cost).
func (m *Memory) expand(end uint64) (newWords uint64, err error) {
	if end <= uint64(len(m.data)) {
		return 0, nil
	}
	rounded := roundUpWord(end)
	if rounded > m.limit {
		return 0, ErrOutOfMemory
	}
	prevWords := uint64(len(m.data)) / wordSize
	grown := make([]byte, rounded)
	copy(grown, m.data)
	m.data = grown
	return rounded/wordSize - prevWords, nil
}

// Read returns size bytes starting at offset, expanding memory (with
// zero fill) if the range extends past the current length. Mirrors
// safe_copy_data's clamping discipline: reads past the current length
// read as zero and do not fail unless the expansion exceeds the memory
// limit, in which case the expansion error is returned.
func (m *Memory) Read(offset, size uint64) ([]byte, uint64, error) {
	if size == 0 {
		return []byte{}, 0, nil
	}
	newWords, err := m.expand(offset + size)
	if err != nil {
		return nil, 0, err
	}
	return append([]byte(nil), m.data[offset:offset+size]...), newWords, nil
}

// Write stores data at offset, expanding memory as needed, and records
// op as the provenance for every word touched by the write.
func (m *Memory) Write(offset uint64, data []byte, op WrappedOpcode) (uint64, error) {
	if len(data) == 0 {
		return 0, nil
	}
	newWords, err := m.expand(offset + uint64(len(data)))
	if err != nil {
		return 0, err
	}
	copy(m.data[offset:], data)
	for w := (offset / wordSize) * wordSize; w < offset+uint64(len(data)); w += wordSize {
		m.prov[w] = op
	}
	return newWords, nil
}

// WriteWord stores a single 32-byte word at a word-aligned offset,
// recording its provenance. This is the MSTORE fast path.
func (m *Memory) WriteWord(offset uint64, word [32]byte, op WrappedOpcode) (uint64, error) {
	newWords, err := m.expand(offset + wordSize)
	if err != nil {
		return 0, err
	}
	copy(m.data[offset:offset+wordSize], word[:])
	m.prov[(offset/wordSize)*wordSize] = op
	return newWords, nil
}

// ProvenanceAt returns the WrappedOpcode that produced the word
// containing offset, if any write has ever touched it.
func (m *Memory) ProvenanceAt(offset uint64) (WrappedOpcode, bool) {
	op, ok := m.prov[(offset/wordSize)*wordSize]
	return op, ok
}

// roundUpWord rounds n up to the next multiple of 32.
func roundUpWord(n uint64) uint64 {
	return (n + wordSize - 1) &^ (wordSize - 1)
}
