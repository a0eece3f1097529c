// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// Word coverage tracker for the calldata region following a 4-byte
// selector. The detector enforces the following invariants over a
// candidate head/tail decoding of a function's arguments:
//
//  1. Every word in the claimed tail range must be consumed by exactly
//     one field's decoding (no two dynamic fields may claim the same
//     word — an overlap means the candidate decoding is wrong).
//  2. A word claimed as a pointer target must actually be read before
//     the candidate decoding is accepted (an unread claim means the
//     offset was guessed, not confirmed by the trace).
//  3. Any word inside the declared calldata length that is never
//     claimed by any field is allowed — trailing padding and unused
//     words are common — but is reported so callers can decide whether
//     it indicates a wrong field count.
//
// This mirrors the teacher's LinearChecker Bind/Use/CheckAllConsumed
// idiom, applied to calldata words instead of resource bindings.
package abi

import "fmt"

// CoverageErrorCode classifies a word-coverage violation.
type CoverageErrorCode int

const (
	// ErrDoubleClaim is returned when a word is claimed a second time by
	// a different field after the first claim has already been read.
	ErrDoubleClaim CoverageErrorCode = iota

	// ErrUnclaimedRead is returned when Use is called on a word index
	// that was never Claimed.
	ErrUnclaimedRead
)

func (c CoverageErrorCode) String() string {
	switch c {
	case ErrDoubleClaim:
		return "double-claim"
	case ErrUnclaimedRead:
		return "unclaimed-read"
	default:
		return fmt.Sprintf("coverage-error(%d)", int(c))
	}
}

// CoverageError records a single word-coverage violation.
type CoverageError struct {
	Code  CoverageErrorCode
	Word  uint64
	Field string
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("calldata coverage error [%s] for field %q at word %d", e.Code, e.Field, e.Word)
}

// wordState tracks the claim state of a single 32-byte calldata word.
type wordState struct {
	field string
	read  bool
}

// CoverageTracker verifies that a candidate head/tail decoding of a
// function's dynamic arguments claims and reads calldata words without
// overlap.
//
// Usage:
//
//	ct := NewCoverageTracker()
//	ct.Claim(2, "arg1.offset")       // field claims a word
//	if err := ct.Use(2); err != nil { ... }  // trace confirms a read
//	errs := ct.CheckAllClaimed()     // every claim must have been read
type CoverageTracker struct {
	words map[uint64]*wordState
}

// NewCoverageTracker returns a fresh tracker with no claimed words.
func NewCoverageTracker() *CoverageTracker {
	return &CoverageTracker{words: make(map[uint64]*wordState)}
}

// Claim registers that field owns the calldata word at the given word
// index (offset/32). Returns an error if another field already claims
// that word and its claim has already been read — an unread claim is
// silently reassigned, since speculative pointer arithmetic
// during candidate generation routinely probes the same word twice.
func (ct *CoverageTracker) Claim(word uint64, field string) error {
	if existing, ok := ct.words[word]; ok && existing.read && existing.field != field {
		return &CoverageError{Code: ErrDoubleClaim, Word: word, Field: field}
	}
	ct.words[word] = &wordState{field: field}
	return nil
}

// Use marks the word as actually consumed by the symbolic trace,
// confirming the claim was not just a guess.
func (ct *CoverageTracker) Use(word uint64) error {
	w, ok := ct.words[word]
	if !ok {
		return &CoverageError{Code: ErrUnclaimedRead, Word: word}
	}
	w.read = true
	return nil
}

// CheckAllClaimed returns one CoverageError per claimed-but-never-read
// word — a claim the trace never actually confirmed.
func (ct *CoverageTracker) CheckAllClaimed() []CoverageError {
	var errs []CoverageError
	for word, w := range ct.words {
		if !w.read {
			errs = append(errs, CoverageError{Code: ErrUnclaimedRead, Word: word, Field: w.field})
		}
	}
	return errs
}

// ClaimedWords returns the set of word indices currently claimed,
// regardless of read state.
func (ct *CoverageTracker) ClaimedWords() []uint64 {
	out := make([]uint64, 0, len(ct.words))
	for w := range ct.words {
		out = append(out, w)
	}
	return out
}
