// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package abi defines the Solidity ABI type system used to render function
// signatures, score calldata-argument candidates, and detect dynamic
// (pointer-indirected) parameters from a symbolic trace.
//
// Design principles:
//   - Every type knows its own canonical name (the string a selector hash
//     is computed over) and whether it occupies a fixed 32-byte head slot
//     or an indirected, dynamically-sized tail slot.
//   - Types are immutable value descriptions; there is no notion of
//     ownership or linearity — unlike a resource-oriented VM, calldata
//     words are freely readable any number of times.
package abi

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind categorizes the fundamental shape of an ABI type.
type Kind int

const (
	KindBool Kind = iota
	KindUint
	KindInt
	KindAddress
	KindBytesN  // bytes1..bytes32, fixed width
	KindBytes   // dynamic bytes
	KindString  // dynamic UTF-8 string
	KindArray   // T[] dynamic-length array
	KindFixed   // T[N] fixed-length array
	KindTuple   // (T1, T2, ...)
)

var kindNames = [...]string{
	KindBool:    "bool",
	KindUint:    "uint",
	KindInt:     "int",
	KindAddress: "address",
	KindBytesN:  "bytesN",
	KindBytes:   "bytes",
	KindString:  "string",
	KindArray:   "array",
	KindFixed:   "fixed-array",
	KindTuple:   "tuple",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Type is the interface every ABI type implements.
type Type interface {
	// Kind returns the fundamental category of this type.
	Kind() Kind

	// String returns the canonical ABI name, the exact string a selector
	// hash is computed over (e.g. "uint256", "bytes32", "address[]").
	String() string

	// Equals reports whether two types are structurally identical.
	Equals(other Type) bool

	// IsDynamic reports whether values of this type are encoded via a
	// 32-byte offset in the head, with the actual payload in the tail.
	IsDynamic() bool

	// HeadWords is the number of 32-byte words this type occupies in the
	// head region: 1 for every primitive type and every dynamic type
	// (which stores just its tail offset there); a static fixed array or
	// tuple occupies the combined head words of its elements.
	HeadWords() int
}

// ---- Primitive types -------------------------------------------------------

// UintType is uintN for N in {8,16,...,256}, step 8.
type UintType struct{ Bits int }

func (u UintType) Kind() Kind         { return KindUint }
func (u UintType) IsDynamic() bool    { return false }
func (u UintType) HeadWords() int     { return 1 }
func (u UintType) String() string     { return fmt.Sprintf("uint%d", u.Bits) }
func (u UintType) Equals(o Type) bool { v, ok := o.(UintType); return ok && v.Bits == u.Bits }

// IntType is intN, the signed counterpart of UintType.
type IntType struct{ Bits int }

func (i IntType) Kind() Kind         { return KindInt }
func (i IntType) IsDynamic() bool    { return false }
func (i IntType) HeadWords() int     { return 1 }
func (i IntType) String() string     { return fmt.Sprintf("int%d", i.Bits) }
func (i IntType) Equals(o Type) bool { v, ok := o.(IntType); return ok && v.Bits == i.Bits }

// BoolType is bool, encoded as a 32-byte word holding 0 or 1.
type BoolType struct{}

func (BoolType) Kind() Kind         { return KindBool }
func (BoolType) IsDynamic() bool    { return false }
func (BoolType) HeadWords() int     { return 1 }
func (BoolType) String() string     { return "bool" }
func (BoolType) Equals(o Type) bool { _, ok := o.(BoolType); return ok }

// AddressType is a 20-byte account address, left-padded to 32 bytes.
type AddressType struct{}

func (AddressType) Kind() Kind         { return KindAddress }
func (AddressType) IsDynamic() bool    { return false }
func (AddressType) HeadWords() int     { return 1 }
func (AddressType) String() string     { return "address" }
func (AddressType) Equals(o Type) bool { _, ok := o.(AddressType); return ok }

// BytesNType is bytesN for N in 1..32, right-padded to 32 bytes.
type BytesNType struct{ N int }

func (b BytesNType) Kind() Kind         { return KindBytesN }
func (b BytesNType) IsDynamic() bool    { return false }
func (b BytesNType) HeadWords() int     { return 1 }
func (b BytesNType) String() string     { return fmt.Sprintf("bytes%d", b.N) }
func (b BytesNType) Equals(o Type) bool { v, ok := o.(BytesNType); return ok && v.N == b.N }

// BytesType is dynamic bytes: a tail offset in the head, then a length
// word and the raw bytes (right-padded to a word multiple) in the tail.
type BytesType struct{}

func (BytesType) Kind() Kind         { return KindBytes }
func (BytesType) IsDynamic() bool    { return true }
func (BytesType) HeadWords() int     { return 1 }
func (BytesType) String() string     { return "bytes" }
func (BytesType) Equals(o Type) bool { _, ok := o.(BytesType); return ok }

// StringType is a dynamic UTF-8 string, encoded identically to BytesType.
type StringType struct{}

func (StringType) Kind() Kind         { return KindString }
func (StringType) IsDynamic() bool    { return true }
func (StringType) HeadWords() int     { return 1 }
func (StringType) String() string     { return "string" }
func (StringType) Equals(o Type) bool { _, ok := o.(StringType); return ok }

// ---- Composite types -------------------------------------------------------

// ArrayType is T[], a dynamic-length array: an offset in the head, a
// length word in the tail, followed by that many encoded elements.
type ArrayType struct{ Elem Type }

func (a ArrayType) Kind() Kind      { return KindArray }
func (a ArrayType) IsDynamic() bool { return true }
func (a ArrayType) HeadWords() int  { return 1 }
func (a ArrayType) String() string  { return a.Elem.String() + "[]" }
func (a ArrayType) Equals(o Type) bool {
	v, ok := o.(ArrayType)
	return ok && v.Elem.Equals(a.Elem)
}

// FixedArrayType is T[N]. It is dynamic only if its element type is —
// a fixed-length array of a static type is itself static and inlined
// directly into the head.
type FixedArrayType struct {
	Elem Type
	Len  int
}

func (a FixedArrayType) Kind() Kind      { return KindFixed }
func (a FixedArrayType) IsDynamic() bool { return a.Elem.IsDynamic() }
func (a FixedArrayType) HeadWords() int {
	if a.IsDynamic() {
		return 1
	}
	return a.Elem.HeadWords() * a.Len
}
func (a FixedArrayType) String() string { return fmt.Sprintf("%s[%d]", a.Elem, a.Len) }
func (a FixedArrayType) Equals(o Type) bool {
	v, ok := o.(FixedArrayType)
	return ok && v.Len == a.Len && v.Elem.Equals(a.Elem)
}

// TupleType is (T1, T2, ...), Solidity's ABI encoding of a struct.
// It is dynamic if any component is.
type TupleType struct{ Fields []Type }

func (t TupleType) Kind() Kind { return KindTuple }
func (t TupleType) IsDynamic() bool {
	for _, f := range t.Fields {
		if f.IsDynamic() {
			return true
		}
	}
	return false
}
func (t TupleType) HeadWords() int {
	if t.IsDynamic() {
		return 1
	}
	n := 0
	for _, f := range t.Fields {
		n += f.HeadWords()
	}
	return n
}
func (t TupleType) String() string {
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		parts[i] = f.String()
	}
	return "(" + strings.Join(parts, ",") + ")"
}
func (t TupleType) Equals(o Type) bool {
	v, ok := o.(TupleType)
	if !ok || len(v.Fields) != len(t.Fields) {
		return false
	}
	for i := range t.Fields {
		if !t.Fields[i].Equals(v.Fields[i]) {
			return false
		}
	}
	return true
}

// ---- Singletons & common constructors --------------------------------------

var (
	Bool        Type = BoolType{}
	Address     Type = AddressType{}
	Bytes       Type = BytesType{}
	String      Type = StringType{}
	Uint256     Type = UintType{Bits: 256}
	Int256      Type = IntType{Bits: 256}
	Bytes32     Type = BytesNType{N: 32}
)

// ParseType parses a canonical ABI type string (as produced by Type.String,
// or as it appears in a human-written function signature) into a Type.
// It supports the scalar family, bytesN, dynamic bytes/string, and the
// array suffixes "[]" and "[N]" — nested arbitrarily deep.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("abi: empty type string")
	}

	// Peel off trailing array suffixes right-to-left so "uint256[2][]"
	// parses as ArrayType{FixedArrayType{Uint256, 2}}.
	if s[len(s)-1] == ']' {
		open := strings.LastIndexByte(s, '[')
		if open < 0 {
			return nil, fmt.Errorf("abi: malformed array type %q", s)
		}
		elem, err := ParseType(s[:open])
		if err != nil {
			return nil, err
		}
		inner := s[open+1 : len(s)-1]
		if inner == "" {
			return ArrayType{Elem: elem}, nil
		}
		n, err := strconv.Atoi(inner)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("abi: malformed array length in %q", s)
		}
		return FixedArrayType{Elem: elem, Len: n}, nil
	}

	switch {
	case s == "bool":
		return Bool, nil
	case s == "address":
		return Address, nil
	case s == "bytes":
		return Bytes, nil
	case s == "string":
		return String, nil
	case s == "uint":
		return Uint256, nil
	case s == "int":
		return Int256, nil
	case strings.HasPrefix(s, "uint"):
		n, err := strconv.Atoi(s[4:])
		if err != nil || n <= 0 || n > 256 || n%8 != 0 {
			return nil, fmt.Errorf("abi: invalid uint width in %q", s)
		}
		return UintType{Bits: n}, nil
	case strings.HasPrefix(s, "int"):
		n, err := strconv.Atoi(s[3:])
		if err != nil || n <= 0 || n > 256 || n%8 != 0 {
			return nil, fmt.Errorf("abi: invalid int width in %q", s)
		}
		return IntType{Bits: n}, nil
	case strings.HasPrefix(s, "bytes"):
		n, err := strconv.Atoi(s[5:])
		if err != nil || n <= 0 || n > 32 {
			return nil, fmt.Errorf("abi: invalid bytesN width in %q", s)
		}
		return BytesNType{N: n}, nil
	case s[0] == '(' && s[len(s)-1] == ')':
		fields, err := splitTuple(s[1 : len(s)-1])
		if err != nil {
			return nil, err
		}
		types := make([]Type, len(fields))
		for i, f := range fields {
			t, err := ParseType(f)
			if err != nil {
				return nil, err
			}
			types[i] = t
		}
		return TupleType{Fields: types}, nil
	}
	return nil, fmt.Errorf("abi: unrecognized type %q", s)
}

// splitTuple splits a comma-separated tuple field list, respecting
// nested parentheses (for nested tuples).
func splitTuple(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var parts []string
	depth := 0
	start := 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("abi: unbalanced parens in tuple %q", s)
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("abi: unbalanced parens in tuple %q", s)
	}
	parts = append(parts, s[start:])
	return parts, nil
}
