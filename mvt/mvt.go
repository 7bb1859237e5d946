// Package mvt decodes and encodes Mapbox Vector Tiles.
//
// A decoded Tile is a plain value structure: features reference their layer's key and value
// tables by index, so filtering features never touches the tables. Encode rebuilds the tables
// from the tags that are still referenced.
package mvt

import "fmt"

// DefaultExtent is the extent a layer has when the encoded layer does not carry one.
const DefaultExtent = 4096

// DefaultVersion is the layer version assumed when the encoded layer does not carry one.
const DefaultVersion = 1

type GeomType uint8

const (
	Unknown    GeomType = 0
	Point      GeomType = 1
	LineString GeomType = 2
	Polygon    GeomType = 3
)

func (g GeomType) String() string {
	switch g {
	case Unknown:
		return "unknown"
	case Point:
		return "point"
	case LineString:
		return "linestring"
	case Polygon:
		return "polygon"
	default:
		return fmt.Sprintf("GeomType(%d)", g)
	}
}

// Tile is a decoded vector tile. Layer order is paint order.
type Tile struct {
	// Compression of the blob the tile was decoded from, re-applied by Encode.
	Compression Compression
	Layers      []*Layer
}

// Layer returns the layer with the given name, or nil.
func (t *Tile) Layer(name string) *Layer {
	for _, l := range t.Layers {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// LayerNames returns the layer names in tile order.
func (t *Tile) LayerNames() []string {
	names := make([]string, len(t.Layers))
	for i, l := range t.Layers {
		names[i] = l.Name
	}
	return names
}

func (t *Tile) FeatureCount() int {
	n := 0
	for _, l := range t.Layers {
		n += len(l.Features)
	}
	return n
}

type Layer struct {
	Version  uint32
	Name     string
	Extent   uint32
	Keys     []string
	Values   []Value
	Features []Feature
}

// Properties resolves the tags of f against the layer tables.
// Tags pointing outside the tables are left out.
func (l *Layer) Properties(f *Feature) map[string]Value {
	props := make(map[string]Value, len(f.Tags))
	for _, tag := range f.Tags {
		if int(tag.Key) >= len(l.Keys) || int(tag.Value) >= len(l.Values) {
			continue
		}
		props[l.Keys[tag.Key]] = l.Values[tag.Value]
	}
	return props
}

// Filter keeps the features for which keep returns true, preserving their order,
// and returns the number of removed features.
func (l *Layer) Filter(keep func(*Feature) bool) int {
	kept := l.Features[:0]
	for i := range l.Features {
		if keep(&l.Features[i]) {
			kept = append(kept, l.Features[i])
		}
	}
	removed := len(l.Features) - len(kept)
	// release references held by the tail
	for i := len(kept); i < len(l.Features); i++ {
		l.Features[i] = Feature{}
	}
	l.Features = kept
	return removed
}

// Compact rebuilds the key and value tables from the tags the features still reference.
// Entries are numbered by first reference; equal values share one entry.
func (l *Layer) Compact() error {
	tbl, err := l.compacted()
	if err != nil {
		return err
	}
	l.Keys = tbl.keys
	l.Values = tbl.values
	for i := range l.Features {
		l.Features[i].Tags = tbl.tags[i]
	}
	return nil
}

// Tag is a pair of indices into the layer's key and value tables.
type Tag struct {
	Key   uint32
	Value uint32
}

type Feature struct {
	ID       uint64
	HasID    bool
	Type     GeomType
	Geometry []Command
	Tags     []Tag
}
