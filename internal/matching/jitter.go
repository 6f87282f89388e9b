package matching

import "math/rand"

// Ad-hoc score bounds. Digest scoring has its own cap and never jitters.
const (
	AdHocScoreFloor    = 30
	AdHocScoreCeiling  = 99
	DefaultJitterBound = 10
)

// RandSource yields uniform integers in [0, n). Injected so tests can
// substitute a deterministic stub; production uses math/rand, which is
// deliberate — reproducibility across calls is not wanted here.
type RandSource interface {
	Intn(n int) int
}

// Jitter applies bounded noise to ad-hoc scores so repeated queries by the
// same member don't produce a static leaderboard.
type Jitter struct {
	src     RandSource
	bound   int
	floor   int
	ceiling int
}

// NewJitter creates a Jitter with the given noise bound and clamp range.
func NewJitter(src RandSource, bound, floor, ceiling int) *Jitter {
	if src == nil {
		src = rand.New(rand.NewSource(rand.Int63()))
	}
	if bound <= 0 {
		bound = DefaultJitterBound
	}
	return &Jitter{src: src, bound: bound, floor: floor, ceiling: ceiling}
}

// NewDefaultJitter returns the production jitter: uniform noise in [-10, +10],
// clamped to [30, 99].
func NewDefaultJitter() *Jitter {
	return NewJitter(nil, DefaultJitterBound, AdHocScoreFloor, AdHocScoreCeiling)
}

// Apply adds a uniform random integer in [-bound, +bound] and clamps the
// result to [floor, ceiling].
func (j *Jitter) Apply(score int) int {
	noise := j.src.Intn(2*j.bound+1) - j.bound
	return clamp(score+noise, j.floor, j.ceiling)
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
