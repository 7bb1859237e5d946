// Package style holds the part of a Mapbox GL style that decides which source-layers
// a vector tileset has to carry: source-layer, zoom range, visibility, paint and filter.
package style

import (
	"math"

	"github.com/goccy/go-json"

	"github.com/pdok/tilesieve/mvt"
)

// Filter decides whether a feature of a live source-layer is kept.
type Filter interface {
	Keep(geomType mvt.GeomType, props map[string]mvt.Value) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(geomType mvt.GeomType, props map[string]mvt.Value) bool

func (f FilterFunc) Keep(geomType mvt.GeomType, props map[string]mvt.Value) bool {
	return f(geomType, props)
}

// anyFilter keeps a feature when one of its filters does.
type anyFilter []Filter

func (a anyFilter) Keep(geomType mvt.GeomType, props map[string]mvt.Value) bool {
	for _, f := range a {
		if f.Keep(geomType, props) {
			return true
		}
	}
	return false
}

// NoMaxZoom is the MaxZoom of a layer without an upper zoom bound.
var NoMaxZoom = math.Inf(1)

// Layer is a style layer that draws from a vector source-layer.
type Layer struct {
	ID          string
	SourceLayer string
	// MinZoom and MaxZoom are both inclusive.
	MinZoom float64
	MaxZoom float64
	Hidden  bool
	// Paint holds the zero-checked paint properties that have a constant or stops value.
	Paint map[string]PaintValue
	// Filter is nil when the layer draws every feature.
	Filter Filter
	// RawFilter is the filter expression as it appeared in the style document.
	RawFilter json.RawMessage
}

// LiveAt reports whether the layer draws anything at zoom.
func (l *Layer) LiveAt(zoom uint32) bool {
	z := float64(zoom)
	if l.Hidden || z < l.MinZoom || z > l.MaxZoom {
		return false
	}
	for _, p := range l.Paint {
		if p.ZeroAt(zoom) {
			return false
		}
	}
	return true
}

// ZeroCheckedPaint lists the paint properties that make a layer invisible when zero.
var ZeroCheckedPaint = []string{
	"fill-opacity",
	"fill-outline-color",
	"line-opacity",
	"line-width",
	"icon-size",
	"text-size",
	"text-max-width",
	"text-opacity",
	"raster-opacity",
	"circle-radius",
	"circle-opacity",
	"fill-extrusion-opacity",
	"heatmap-opacity",
}

type Stop struct {
	Zoom  uint32
	Value float64
}

// PaintValue is either a constant or a list of zoom stops.
type PaintValue struct {
	Constant *float64
	Stops    []Stop
}

func Constant(v float64) PaintValue {
	return PaintValue{Constant: &v}
}

// ZeroAt reports whether the value is the constant 0, or has a stop at exactly zoom with value 0.
func (p PaintValue) ZeroAt(zoom uint32) bool {
	if p.Constant != nil {
		return *p.Constant == 0
	}
	for _, s := range p.Stops {
		if s.Zoom == zoom {
			return s.Value == 0
		}
	}
	return false
}
