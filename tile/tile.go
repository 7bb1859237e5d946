// Package tile holds the identity of a tile inside a tiled container.
package tile

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MaxZoom is the highest zoom level a Coord can address.
const MaxZoom = 30

// Coord identifies a tile the way the container stores it.
// Row counts from the bottom (TMS), as in MBTiles.
type Coord struct {
	Zoom   uint32
	Column uint32
	Row    uint32
}

func New(zoom, column, row uint32) Coord {
	return Coord{Zoom: zoom, Column: column, Row: row}
}

// FromXYZ converts a slippy map (top-left origin) tile to a container coordinate.
func FromXYZ(t maptile.Tile) Coord {
	return Coord{Zoom: uint32(t.Z), Column: t.X, Row: flip(t.Y, uint32(t.Z))}
}

func (c Coord) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Zoom, c.Column, c.Row)
}

// Valid reports whether column and row fit in the zoom level.
func (c Coord) Valid() bool {
	return c.Zoom <= MaxZoom && c.Column < pow2(c.Zoom) && c.Row < pow2(c.Zoom)
}

// XYZ returns the slippy map tile (top-left origin) for this coordinate.
func (c Coord) XYZ() maptile.Tile {
	return maptile.New(c.Column, flip(c.Row, c.Zoom), maptile.Zoom(c.Zoom))
}

// Bound is the WGS84 bound of the tile.
func (c Coord) Bound() orb.Bound {
	return c.XYZ().Bound()
}

// Quadkey is the Z-order code of the slippy map column and row. It is stable for a
// coordinate and unique within a zoom level.
func (c Coord) Quadkey() uint64 {
	return interleave(c.Column, flip(c.Row, c.Zoom))
}

func flip(y, z uint32) uint32 {
	return pow2(z) - 1 - y
}

func pow2(n uint32) uint32 {
	return 1 << n
}
