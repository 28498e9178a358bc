package loreline

import "math/rand/v2"

// rngState wraps math/rand/v2's PCG source: the only PRNG in reach that
// exposes MarshalBinary/UnmarshalBinary, which save/restore (spec
// §4.6) needs to snapshot and reconstruct the exact draw sequence
// (see DESIGN.md's standard-library-exception entry for this choice).
type rngState struct {
	src *rand.PCG
	r   *rand.Rand
}

func newRNGFromSeed(seed1, seed2 uint64) *rngState {
	src := rand.NewPCG(seed1, seed2)
	return &rngState{src: src, r: rand.New(src)}
}

// chance returns true with probability 1/n, n >= 1.
func (s *rngState) chance(n int64) bool {
	if n <= 1 {
		return true
	}
	return s.r.Int64N(n) == 0
}

func (s *rngState) marshal() ([]byte, error) {
	return s.src.MarshalBinary()
}

func (s *rngState) restore(data []byte) error {
	if err := s.src.UnmarshalBinary(data); err != nil {
		return err
	}
	s.r = rand.New(s.src)
	return nil
}
