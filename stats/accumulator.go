package stats

import (
	"slices"
	"sync"

	"github.com/go-spatial/geom"
	"github.com/paulmach/orb"
	"golang.org/x/exp/maps"

	"github.com/pdok/tilesieve/mvt"
	"github.com/pdok/tilesieve/tile"
)

type GeometryCounts struct {
	Unknown    int64 `json:"unknown"`
	Point      int64 `json:"point"`
	LineString int64 `json:"linestring"`
	Polygon    int64 `json:"polygon"`
}

func (g *GeometryCounts) add(t mvt.GeomType, n int64) {
	switch t {
	case mvt.Point:
		g.Point += n
	case mvt.LineString:
		g.LineString += n
	case mvt.Polygon:
		g.Polygon += n
	default:
		g.Unknown += n
	}
}

func (g *GeometryCounts) merge(o GeometryCounts) {
	g.Unknown += o.Unknown
	g.Point += o.Point
	g.LineString += o.LineString
	g.Polygon += o.Polygon
}

type zoomRange struct {
	min, max uint32
	set      bool
}

func (r *zoomRange) add(z uint32) {
	if !r.set {
		r.min, r.max, r.set = z, z, true
		return
	}
	r.min = min(r.min, z)
	r.max = max(r.max, z)
}

func (r *zoomRange) merge(o zoomRange) {
	if o.set {
		r.add(o.min)
		r.add(o.max)
	}
}

type sizes struct {
	tiles    int64
	bytes    int64
	maxBytes int64
}

func (s *sizes) add(n int64) {
	s.tiles++
	s.bytes += n
	s.maxBytes = max(s.maxBytes, n)
}

func (s *sizes) merge(o sizes) {
	s.tiles += o.tiles
	s.bytes += o.bytes
	s.maxBytes = max(s.maxBytes, o.maxBytes)
}

type layerAcc struct {
	tiles    int64
	features int64
	vertices int64
	geometry GeometryCounts
	keys     map[string]struct{}
	zooms    zoomRange
}

// Accumulator collects tile statistics. Every field merges commutatively, so tiles can be
// added in any order and partial accumulators merged in any order.
// Use a fresh Accumulator per tile and Merge it into a shared one; Merge is safe for
// concurrent use, the Add methods are not.
type Accumulator struct {
	mu     sync.Mutex
	total  sizes
	failed int64
	zooms  zoomRange
	bound  orb.Bound
	// bound is only meaningful when hasBound is set
	hasBound bool
	perZoom  map[uint32]*sizes
	layers   map[string]*layerAcc
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		perZoom: make(map[uint32]*sizes),
		layers:  make(map[string]*layerAcc),
	}
}

// AddBlob records the stored size of the tile at c.
func (a *Accumulator) AddBlob(c tile.Coord, size int) {
	a.total.add(int64(size))
	a.zooms.add(c.Zoom)
	z, ok := a.perZoom[c.Zoom]
	if !ok {
		z = &sizes{}
		a.perZoom[c.Zoom] = z
	}
	z.add(int64(size))
	b := c.Bound()
	if a.hasBound {
		a.bound = a.bound.Union(b)
	} else {
		a.bound, a.hasBound = b, true
	}
}

// AddFailed counts a tile that could not be decoded.
func (a *Accumulator) AddFailed() {
	a.failed++
}

// AddTile folds the layers of a decoded tile at zoom into the accumulator.
func (a *Accumulator) AddTile(zoom uint32, t *mvt.Tile) {
	for _, l := range t.Layers {
		acc, ok := a.layers[l.Name]
		if !ok {
			acc = &layerAcc{keys: make(map[string]struct{})}
			a.layers[l.Name] = acc
		}
		acc.tiles++
		acc.features += int64(len(l.Features))
		acc.zooms.add(zoom)
		used := make([]bool, len(l.Keys))
		for i := range l.Features {
			f := &l.Features[i]
			acc.geometry.add(f.Type, 1)
			acc.vertices += int64(f.VertexCount())
			for _, tag := range f.Tags {
				if int(tag.Key) < len(used) {
					used[tag.Key] = true
				}
			}
		}
		for i, k := range l.Keys {
			if used[i] {
				acc.keys[k] = struct{}{}
			}
		}
	}
}

// Merge adds the counts of o. o must not be used concurrently.
func (a *Accumulator) Merge(o *Accumulator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total.merge(o.total)
	a.failed += o.failed
	a.zooms.merge(o.zooms)
	if o.hasBound {
		if a.hasBound {
			a.bound = a.bound.Union(o.bound)
		} else {
			a.bound, a.hasBound = o.bound, true
		}
	}
	for z, s := range o.perZoom {
		mine, ok := a.perZoom[z]
		if !ok {
			mine = &sizes{}
			a.perZoom[z] = mine
		}
		mine.merge(*s)
	}
	for name, l := range o.layers {
		mine, ok := a.layers[name]
		if !ok {
			mine = &layerAcc{keys: make(map[string]struct{}, len(l.keys))}
			a.layers[name] = mine
		}
		mine.tiles += l.tiles
		mine.features += l.features
		mine.vertices += l.vertices
		mine.geometry.merge(l.geometry)
		mine.zooms.merge(l.zooms)
		for k := range l.keys {
			mine.keys[k] = struct{}{}
		}
	}
}

// Summary is the tileset wide part of the statistics.
type Summary struct {
	Tiles       int64 `json:"tiles"`
	Bytes       int64 `json:"bytes"`
	MaxBytes    int64 `json:"maxBytes"`
	FailedTiles int64 `json:"failedTiles"`
	// MinZoom and MaxZoom are nil when no tile was visited.
	MinZoom *uint32 `json:"minZoom"`
	MaxZoom *uint32 `json:"maxZoom"`
	// Bounds is minx, miny, maxx, maxy in WGS84 degrees.
	Bounds *geom.Extent `json:"bounds"`
	// BoundsFromTiles is set when the bounds are the union of the visited tiles.
	BoundsFromTiles bool `json:"boundsFromTiles,omitempty"`
}

type ZoomStats struct {
	Zoom     uint32 `json:"zoom"`
	Tiles    int64  `json:"tiles"`
	Bytes    int64  `json:"bytes"`
	MaxBytes int64  `json:"maxBytes"`
}

type LayerStats struct {
	Name     string         `json:"name"`
	Tiles    int64          `json:"tiles"`
	Features int64          `json:"features"`
	Vertices int64          `json:"vertices"`
	Keys     int            `json:"keys"`
	Geometry GeometryCounts `json:"geometry"`
	MinZoom  uint32         `json:"minZoom"`
	MaxZoom  uint32         `json:"maxZoom"`
}

// Snapshot returns the collected statistics, zooms ascending and layers by name.
func (a *Accumulator) Snapshot() (Summary, []ZoomStats, []LayerStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Summary{
		Tiles:       a.total.tiles,
		Bytes:       a.total.bytes,
		MaxBytes:    a.total.maxBytes,
		FailedTiles: a.failed,
	}
	if a.zooms.set {
		minZoom, maxZoom := a.zooms.min, a.zooms.max
		s.MinZoom, s.MaxZoom = &minZoom, &maxZoom
	}
	if a.hasBound {
		s.Bounds = &geom.Extent{a.bound.Min.Lon(), a.bound.Min.Lat(), a.bound.Max.Lon(), a.bound.Max.Lat()}
		s.BoundsFromTiles = true
	}

	zoomLevels := maps.Keys(a.perZoom)
	slices.Sort(zoomLevels)
	zooms := make([]ZoomStats, 0, len(zoomLevels))
	for _, z := range zoomLevels {
		zs := a.perZoom[z]
		zooms = append(zooms, ZoomStats{Zoom: z, Tiles: zs.tiles, Bytes: zs.bytes, MaxBytes: zs.maxBytes})
	}

	names := maps.Keys(a.layers)
	slices.Sort(names)
	layers := make([]LayerStats, 0, len(names))
	for _, name := range names {
		l := a.layers[name]
		layers = append(layers, LayerStats{
			Name:     name,
			Tiles:    l.tiles,
			Features: l.features,
			Vertices: l.vertices,
			Keys:     len(l.keys),
			Geometry: l.geometry,
			MinZoom:  l.zooms.min,
			MaxZoom:  l.zooms.max,
		})
	}
	return s, zooms, layers
}
