package processing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-spatial/geom"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pdok/tilesieve/tile"
)

// Tile is a blob as stored in a container.
type Tile struct {
	Coord tile.Coord
	Data  []byte
}

// Source is a tile container that is read from.
type Source interface {
	CountTiles(ctx context.Context) (int64, error)
	// ListTiles sends every tile coordinate to out. It returns early when ctx is done
	// and does not close out.
	ListTiles(ctx context.Context, out chan<- tile.Coord) error
	ReadTile(ctx context.Context, coord tile.Coord) ([]byte, error)
	Metadata() (*Metadata, error)
}

// Target is a tile container that is written to.
type Target interface {
	// WriteBatch stores the tiles in one transaction.
	WriteBatch(tiles []Tile) error
	WriteMetadata(m *Metadata) error
}

// ZoomSize is the exact tile count and byte size of one zoom level.
type ZoomSize struct {
	Zoom     uint32
	Tiles    int64
	Bytes    int64
	MaxBytes int64
}

// ZoomSizer is a Source that can size its zoom levels without reading every tile.
type ZoomSizer interface {
	ZoomSizes(ctx context.Context) ([]ZoomSize, error)
}

// Metadata holds the name/value rows of a container in their stored order,
// plus the rows that have a known meaning.
type Metadata struct {
	Rows    *orderedmap.OrderedMap[string, string]
	Name    string
	Format  string
	MinZoom *uint32
	MaxZoom *uint32
	// Bounds in WGS84 degrees as minx, miny, maxx, maxy
	Bounds *geom.Extent
}

// NewMetadata parses the well known rows. Unparsable values are left unset.
func NewMetadata(rows *orderedmap.OrderedMap[string, string]) *Metadata {
	if rows == nil {
		rows = orderedmap.New[string, string]()
	}
	m := &Metadata{Rows: rows}
	m.Name, _ = rows.Get("name")
	m.Format, _ = rows.Get("format")
	m.MinZoom = parseZoom(rows, "minzoom")
	m.MaxZoom = parseZoom(rows, "maxzoom")
	if v, ok := rows.Get("bounds"); ok {
		if b, err := ParseBounds(v); err == nil {
			m.Bounds = &b
		}
	}
	return m
}

func parseZoom(rows *orderedmap.OrderedMap[string, string], name string) *uint32 {
	v, ok := rows.Get(name)
	if !ok {
		return nil
	}
	z, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
	if err != nil || z > tile.MaxZoom {
		return nil
	}
	zoom := uint32(z)
	return &zoom
}

// ParseBounds parses a "west,south,east,north" value.
func ParseBounds(v string) (geom.Extent, error) {
	var e geom.Extent
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return e, fmt.Errorf("bounds should have 4 values, got %d", len(parts))
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return e, fmt.Errorf("invalid bounds value %q: %w", p, err)
		}
		e[i] = f
	}
	if e[0] > e[2] || e[1] > e[3] {
		return e, fmt.Errorf("bounds %q have min above max", v)
	}
	return e, nil
}

// FormatBounds is the inverse of ParseBounds.
func FormatBounds(e geom.Extent) string {
	parts := make([]string, 4)
	for i, f := range e {
		parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}
