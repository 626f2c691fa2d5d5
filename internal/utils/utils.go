package utils

import (
	"math/rand"
	"strconv"
)

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// RollDie returns a uniform value in [lo, hi].
func RollDie(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rand.Intn(hi-lo+1)
}

// PickRandom returns a uniformly chosen element, false when items is empty.
func PickRandom[T any](items []T) (T, bool) {
	var zero T
	if len(items) == 0 {
		return zero, false
	}
	return items[rand.Intn(len(items))], true
}

// ParseLimit parses a positive integer query value, falling back to def.
func ParseLimit(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
