// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package vm

import (
	"hash"

	"golang.org/x/crypto/sha3"
)

// KeccakState is a Keccak hash.Hash that can also squeeze output of
// arbitrary length via Read, matching go-ethereum's crypto.KeccakState
// — used so callers can absorb the SHA3 opcode's input once and read
// exactly 32 bytes of digest.
type KeccakState interface {
	hash.Hash
	Read([]byte) (int, error)
}

// NewKeccakState returns a fresh legacy-Keccak256 sponge.
func NewKeccakState() KeccakState {
	return sha3.NewLegacyKeccak256().(KeccakState)
}

// Keccak256 hashes the concatenation of all data slices and returns
// the 32-byte digest, exactly as the SHA3 opcode handler needs it.
func Keccak256(data ...[]byte) []byte {
	h := NewKeccakState()
	for _, b := range data {
		h.Write(b)
	}
	out := make([]byte, 32)
	h.Read(out)
	return out
}
