// Package rng provides the deterministic random stream used to pick jackpot winners.
// Given the same seed the stream is identical on every run, which is what makes a
// published draw seed verifiable.
package rng

import "unicode/utf16"

const (
	modulus    = 2147483647 // 2^31 - 1
	multiplier = 16807
)

// Seeded is a Park-Miller minimal standard generator.
type Seeded struct {
	state int64
}

// FromSeed derives the initial state from the sum of the seed's UTF-16 code units.
func FromSeed(seed string) *Seeded {
	var sum int64
	for _, u := range utf16.Encode([]rune(seed)) {
		sum += int64(u)
	}
	state := sum % modulus
	if state <= 0 {
		state += modulus - 1
	}
	return &Seeded{state: state}
}

// NextFloat advances the state and returns a value in [0, 1).
func (s *Seeded) NextFloat() float64 {
	s.state = s.state * multiplier % modulus
	return float64(s.state-1) / float64(modulus-1)
}

// Intn returns an integer in [0, n).
func (s *Seeded) Intn(n int) int {
	return int(s.NextFloat() * float64(n))
}

// Shuffle permutes n elements with Fisher-Yates, walking from the last index down.
func (s *Seeded) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := s.Intn(i + 1)
		swap(i, j)
	}
}

// Shuffle is a convenience for FromSeed(seed).Shuffle(n, swap).
func Shuffle(n int, seed string, swap func(i, j int)) {
	FromSeed(seed).Shuffle(n, swap)
}
