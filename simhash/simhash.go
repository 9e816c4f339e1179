// Package simhash fingerprints text so near-duplicate pages can be spotted
// without keeping their content.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"sync"
)

// Fingerprint computes a 64-bit SimHash of text from FNV-64a hashes of its
// lower-cased words. Empty text fingerprints to 0.
func Fingerprint(text string) uint64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}

	var vector [64]int
	h := fnv.New64a()
	for _, word := range words {
		h.Reset()
		h.Write([]byte(word))
		sum := h.Sum64()
		for i := range 64 {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i, v := range vector {
		if v > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether a and b are at most threshold bits apart.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// Set remembers fingerprints and answers whether new text is a near
// duplicate of anything seen. It is safe for concurrent use.
type Set struct {
	mu        sync.Mutex
	threshold int
	prints    []uint64
}

// NewSet creates a Set that treats fingerprints at most threshold bits apart
// as duplicates.
func NewSet(threshold int) *Set {
	return &Set{threshold: threshold}
}

// Add records text and reports whether a near duplicate was already present.
// Empty text is never a duplicate and is not recorded.
func (s *Set) Add(text string) bool {
	fp := Fingerprint(text)
	if fp == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seen := range s.prints {
		if Similar(fp, seen, s.threshold) {
			return true
		}
	}
	s.prints = append(s.prints, fp)
	return false
}

// Len reports how many distinct fingerprints were recorded.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prints)
}
