// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// Bounded LRU cache in front of the signature-resolver collaborator,
// so repeated decompile runs against overlapping selectors (a common
// case: most contracts share ERC-20/ERC-721 boilerplate) don't re-hit
// the resolver for the same 4-byte selector. Grounded on the teacher's
// use of golang-lru for its own chain-data caches (e.g. block/receipt
// LRUs in core/blockchain.go).
package decompile

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/probechain/evmdecompiler/core/abi"
)

// SignatureCache wraps a hashicorp/golang-lru cache keyed by the §6
// cache-key format: "selector." + selector_hex_8.
type SignatureCache struct {
	lru *lru.Cache
}

// NewSignatureCache returns a cache holding up to size resolved
// selector candidate lists.
func NewSignatureCache(size int) *SignatureCache {
	c, err := lru.New(size)
	if err != nil {
		// lru.New only errors on size <= 0; callers always pass a
		// positive constant, so fall back to the smallest valid size
		// rather than propagate an error from a cache constructor.
		c, _ = lru.New(1)
	}
	return &SignatureCache{lru: c}
}

// CacheKey implements §6's cache key format for a 4-byte selector.
func CacheKey(selector [4]byte) string {
	return fmt.Sprintf("selector.%08x", selector)
}

// Get returns the cached candidate list for selector, if present.
func (sc *SignatureCache) Get(selector [4]byte) ([]abi.Candidate, bool) {
	v, ok := sc.lru.Get(CacheKey(selector))
	if !ok {
		return nil, false
	}
	return v.([]abi.Candidate), true
}

// Put stores the resolver's result for selector.
func (sc *SignatureCache) Put(selector [4]byte, candidates []abi.Candidate) {
	sc.lru.Add(CacheKey(selector), candidates)
}
