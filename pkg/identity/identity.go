// Package identity derives short deterministic ids for scraped content.
//
// The hash is a 32-bit rolling hash over at most the first 500 UTF-16 code
// units of the content followed by the decimal discovery index. It is an
// in-run dedup key only: two elements with the same leading content at the
// same index collide and the second is treated as a duplicate.
package identity

import (
	"strconv"
	"unicode/utf16"
)

const (
	// MaxContentUnits is how much of the content feeds the hash
	MaxContentUnits = 500
	// MaxLength caps the rendered id
	MaxLength = 12
)

// ID returns the identifier for content found at discoveryIndex
func ID(content string, discoveryIndex int) string {
	units := utf16.Encode([]rune(content))
	if len(units) > MaxContentUnits {
		units = units[:MaxContentUnits]
	}

	var hash int32
	for _, u := range units {
		hash = (hash << 5) - hash + int32(u)
	}
	for _, c := range strconv.Itoa(discoveryIndex) {
		hash = (hash << 5) - hash + int32(c)
	}

	abs := int64(hash)
	if abs < 0 {
		abs = -abs
	}

	id := strconv.FormatInt(abs, 36)
	if len(id) > MaxLength {
		id = id[:MaxLength]
	}
	return id
}

// Set tracks ids seen during one run
type Set struct {
	seen map[string]struct{}
}

// NewSet creates an empty Set
func NewSet() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Add records id and reports whether it was new
func (s *Set) Add(id string) bool {
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

// Len returns the number of distinct ids recorded
func (s *Set) Len() int {
	return len(s.seen)
}
