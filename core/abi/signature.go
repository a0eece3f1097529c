// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// Function signature parsing/rendering and the selector-resolution
// candidate scoring function used to pick one human-readable signature
// per 4-byte selector out of a resolver's candidate list.
package abi

import (
	"fmt"
	"strings"
)

// Signature is a parsed function signature: a name plus its ordered
// parameter types. Rendering a Signature reproduces the exact string a
// selector hash would be computed over.
type Signature struct {
	Name   string
	Inputs []Type
}

// ParseSignature parses "name(type1,type2,...)" into a Signature.
func ParseSignature(s string) (*Signature, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 || s[len(s)-1] != ')' {
		return nil, fmt.Errorf("abi: malformed signature %q", s)
	}
	name := s[:open]
	fields, err := splitTuple(s[open+1 : len(s)-1])
	if err != nil {
		return nil, err
	}
	inputs := make([]Type, 0, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		t, err := ParseType(f)
		if err != nil {
			return nil, fmt.Errorf("abi: signature %q: %w", s, err)
		}
		inputs = append(inputs, t)
	}
	return &Signature{Name: name, Inputs: inputs}, nil
}

// String renders the signature back to its canonical form, the exact
// input to the selector hash.
func (s *Signature) String() string {
	parts := make([]string, len(s.Inputs))
	for i, t := range s.Inputs {
		parts[i] = t.String()
	}
	return fmt.Sprintf("%s(%s)", s.Name, strings.Join(parts, ","))
}

// Candidate is one signature-resolver hit for a given selector.
type Candidate struct {
	Name      string
	Signature string
	Inputs    []string
}

// Score implements the deterministic selector-signature scoring
// function: shorter signatures with fewer digits (less likely to be an
// auto-generated name like "transfer_77059df9") score higher.
func Score(sig string) int {
	digits := 0
	for _, r := range sig {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return 1000 - len(sig) - 3*digits
}

// BestCandidate picks the highest-scoring candidate from a resolver's
// result list, breaking ties by insertion order (first match wins).
func BestCandidate(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := 0
	bestScore := Score(candidates[0].Signature)
	for i := 1; i < len(candidates); i++ {
		if s := Score(candidates[i].Signature); s > bestScore {
			best, bestScore = i, s
		}
	}
	return candidates[best], true
}
