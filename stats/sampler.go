package stats

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/pdok/tilesieve/tile"
)

// Sampler selects a deterministic share of the tile coordinates. Whether a coordinate is
// selected only depends on the coordinate and the fraction, not on enumeration order.
type Sampler struct {
	fraction  float64
	threshold uint64
	all       bool
}

func NewSampler(fraction float64) (*Sampler, error) {
	if math.IsNaN(fraction) || fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("sample fraction should be in (0,1], got %v", fraction)
	}
	s := &Sampler{fraction: fraction, all: fraction == 1}
	if !s.all {
		s.threshold = uint64(math.Ldexp(fraction, 64))
	}
	return s, nil
}

func (s *Sampler) Fraction() float64 {
	return s.fraction
}

// Selected reports whether xxhash64(zoom, quadkey) / 2^64 < fraction.
func (s *Sampler) Selected(c tile.Coord) bool {
	if s.all {
		return true
	}
	var key [12]byte
	binary.BigEndian.PutUint32(key[:4], c.Zoom)
	binary.BigEndian.PutUint64(key[4:], c.Quadkey())
	return xxhash.Sum64(key[:]) < s.threshold
}
