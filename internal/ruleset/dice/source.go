package dice

import (
	"math/rand"
	"sync"
)

// Source is the randomness provider for dice rolls.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	Intn(n int) int
}

// NewSeededSource returns a deterministic source for the given seed.
func NewSeededSource(seed int64) Source {
	return &lockedSource{rng: rand.New(rand.NewSource(seed))}
}

// lockedSource serializes access to a math/rand generator.
type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *lockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// SequenceSource replays a fixed list of 1-based faces. It wraps around when
// the list is exhausted and counts every draw, which makes forced-face
// scenarios reproducible.
type SequenceSource struct {
	Faces []int
	Draws int
}

// NewSequenceSource builds a source forcing faces in order.
func NewSequenceSource(faces ...int) *SequenceSource {
	return &SequenceSource{Faces: faces}
}

// Intn returns the next forced face as a 0-based index, clamped into [0, n).
func (s *SequenceSource) Intn(n int) int {
	if len(s.Faces) == 0 || n <= 0 {
		s.Draws++
		return 0
	}
	face := s.Faces[s.Draws%len(s.Faces)]
	s.Draws++
	index := face - 1
	if index < 0 {
		index = 0
	}
	if index >= n {
		index = n - 1
	}
	return index
}
