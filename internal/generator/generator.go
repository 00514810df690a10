// Package generator produces synthetic longitudinal blood-test data:
// demographic patient profiles, reference-range-aware CBC panels,
// trend-injected test series, and patient-level NORMAL/ABNORMAL labels.
// All randomness flows through an explicitly seeded Generator so that a
// fixed seed reproduces a dataset byte for byte.
package generator

import (
	"math"
	"math/rand"
	"strings"
	"time"
)

const base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"

// Generator holds the random source used by all generation functions.
// It is not safe for concurrent use; callers that parallelize across
// patients must give each worker its own Generator.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

// New returns a generator seeded for reproducibility. If seed is 0 a
// time-based seed is chosen.
func New(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
}

// SetClock overrides the wall clock used for relative date draws.
// Intended for tests that need fully reproducible dates.
func (g *Generator) SetClock(now func() time.Time) {
	g.now = now
}

// FloatInRange draws a uniform float in [min, max).
func (g *Generator) FloatInRange(min, max float64) float64 {
	return min + g.rng.Float64()*(max-min)
}

// IntInRange draws a uniform integer in [min, max], inclusive. Fractional
// bounds are snapped toward each other (ceil(min), floor(max)) before the
// draw; this snapping is an intentional clamp, not an error.
func (g *Generator) IntInRange(min, max float64) int {
	lo := int(math.Ceil(min))
	hi := int(math.Floor(max))
	if hi < lo {
		return lo
	}
	return lo + g.rng.Intn(hi-lo+1)
}

// NewID returns prefix + "-" + length base36 characters. Tokens are not
// globally unique; collision tolerance is acceptable for synthetic data
// and this must not be used for identity-critical systems.
func (g *Generator) NewID(prefix string, length int) string {
	var b strings.Builder
	b.Grow(len(prefix) + 1 + length)
	b.WriteString(prefix)
	b.WriteByte('-')
	for i := 0; i < length; i++ {
		b.WriteByte(base36Chars[g.rng.Intn(len(base36Chars))])
	}
	return b.String()
}

// DateInPastMonths draws a uniform date between (today - months) and today
// and formats it as an ISO date-only string.
func (g *Generator) DateInPastMonths(months int) string {
	end := g.now()
	start := end.AddDate(0, -months, 0)
	span := end.Unix() - start.Unix()
	if span <= 0 {
		return end.Format("2006-01-02")
	}
	at := start.Unix() + g.rng.Int63n(span)
	return time.Unix(at, 0).UTC().Format("2006-01-02")
}

// ValueWithTrend evolves base one step in the given direction (+1 or -1):
// base + base*trendFactor*direction + uniform(-base*noiseLevel, base*noiseLevel).
func (g *Generator) ValueWithTrend(base, trendFactor, noiseLevel, direction float64) float64 {
	noise := g.FloatInRange(-base*noiseLevel, base*noiseLevel)
	return base + base*trendFactor*direction + noise
}

// Chance returns true with probability p.
func (g *Generator) Chance(p float64) bool {
	return g.rng.Float64() < p
}

// Round rounds x to the given decimal precision.
func Round(x float64, precision int) float64 {
	pow := math.Pow(10, float64(precision))
	return math.Round(x*pow) / pow
}
