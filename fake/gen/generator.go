// Package gen generates random values in the skewed distributions real
// listening data tends to have: a few artists, songs and users account for
// most of the activity.
package gen

import (
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"hash"
	"math/rand"
	"time"
)

// Generator holds state for generating random data in certain distributions.
// It is not safe for concurrent use.
type Generator struct {
	r     *rand.Rand
	zs    map[int]*rand.Zipf
	times map[time.Time]time.Duration
	hsh   hash.Hash
}

// NewGenerator gets a new Generator. The same seed gives the same values.
func NewGenerator(seed int64) *Generator {
	r := rand.New(rand.NewSource(seed))
	return &Generator{
		r:     r,
		zs:    make(map[int]*rand.Zipf),
		times: make(map[time.Time]time.Duration),
		hsh:   sha1.New(),
	}
}

// Key deterministically maps n to an upper case alphanumeric string of the
// given length (at most 32). Distinct n give distinct keys with
// overwhelming probability.
func (g *Generator) Key(n uint64, length int) string {
	if length > 32 {
		length = 32
	}
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	_, _ = g.hsh.Write(b)
	hashed := g.hsh.Sum(nil)
	g.hsh.Reset()
	return base32.StdEncoding.EncodeToString(hashed)[:length]
}

// String gets a zipfian random string from a set with the given cardinality.
func (g *Generator) String(length, cardinality int) string {
	return g.Key(g.Uint64(cardinality), length)
}

// Uint64 gets a zipfian random uint64 in [0, cardinality).
func (g *Generator) Uint64(cardinality int) uint64 {
	if cardinality <= 1 {
		return 0
	}
	z, ok := g.zs[cardinality]
	if !ok {
		// rand.Zipf generates values in [0, imax]
		imax := uint64(cardinality) - 1
		v := 0.05 * float64(imax)
		if v < 1.0 {
			v = 1.0
		}
		z = rand.NewZipf(g.r, 1.1, v, imax)
		g.zs[cardinality] = z
	}
	return z.Uint64()
}

// Pick gets a zipfian random element of list, so earlier elements are
// picked more often.
func (g *Generator) Pick(list []string) string {
	return list[g.Uint64(len(list))]
}

// Uniform gets a uniformly random int in [0, n).
func (g *Generator) Uniform(n int) int {
	return g.r.Intn(n)
}

// Chance returns true with probability p.
func (g *Generator) Chance(p float64) bool {
	return g.r.Float64() < p
}

// Float64 gets a uniformly random float in [min, max).
func (g *Generator) Float64(min, max float64) float64 {
	return min + g.r.Float64()*(max-min)
}

// Time returns a time increasing from the "from" time with a random delta of
// at most maxDelta from the previous time returned for "from".
func (g *Generator) Time(from time.Time, maxDelta time.Duration) time.Time {
	delta := g.times[from] + time.Duration(g.r.Uint64()%uint64(maxDelta))
	g.times[from] = delta
	return from.Add(delta)
}
