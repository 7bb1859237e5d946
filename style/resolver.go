package style

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pdok/tilesieve/tile"
)

// Resolver answers per source-layer and zoom which features a style draws.
// It is built once and safe for concurrent use.
type Resolver struct {
	sources *orderedmap.OrderedMap[string, *sourceIndex]
}

type sourceIndex struct {
	layers []*Layer
	zooms  [tile.MaxZoom + 1]zoomEntry
}

type zoomEntry struct {
	live bool
	// nil keeps all features
	filter Filter
}

// NewResolver indexes layers by source-layer and zoom.
func NewResolver(layers []Layer) *Resolver {
	r := &Resolver{sources: orderedmap.New[string, *sourceIndex]()}
	layers = append([]Layer(nil), layers...)
	for i := range layers {
		l := &layers[i]
		idx, ok := r.sources.Get(l.SourceLayer)
		if !ok {
			idx = &sourceIndex{}
			r.sources.Set(l.SourceLayer, idx)
		}
		idx.layers = append(idx.layers, l)
	}
	for pair := r.sources.Oldest(); pair != nil; pair = pair.Next() {
		idx := pair.Value
		for z := range idx.zooms {
			idx.zooms[z] = resolve(idx.layers, uint32(z))
		}
	}
	return r
}

func resolve(layers []*Layer, zoom uint32) zoomEntry {
	var e zoomEntry
	var filters anyFilter
	keepAll := false
	for _, l := range layers {
		if !l.LiveAt(zoom) {
			continue
		}
		e.live = true
		if l.Filter == nil {
			keepAll = true
			continue
		}
		filters = append(filters, l.Filter)
	}
	switch {
	case !e.live || keepAll:
	case len(filters) == 1:
		e.filter = filters[0]
	default:
		e.filter = filters
	}
	return e
}

func (r *Resolver) entry(sourceLayer string, zoom uint32) zoomEntry {
	idx, ok := r.sources.Get(sourceLayer)
	if !ok {
		return zoomEntry{}
	}
	if zoom < uint32(len(idx.zooms)) {
		return idx.zooms[zoom]
	}
	return resolve(idx.layers, zoom)
}

// IsSourceLayerLive reports whether some style layer draws sourceLayer at zoom.
func (r *Resolver) IsSourceLayerLive(sourceLayer string, zoom uint32) bool {
	return r.entry(sourceLayer, zoom).live
}

// FeatureFilter returns the filter for the features of sourceLayer at zoom.
// It is nil when every feature is kept or when the source-layer is not live.
func (r *Resolver) FeatureFilter(sourceLayer string, zoom uint32) Filter {
	return r.entry(sourceLayer, zoom).filter
}

// SourceLayers returns the referenced source-layers in order of first appearance.
func (r *Resolver) SourceLayers() []string {
	names := make([]string, 0, r.sources.Len())
	for pair := r.sources.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// LiveAtAnyZoom reports whether sourceLayer is live at some zoom up to tile.MaxZoom.
func (r *Resolver) LiveAtAnyZoom(sourceLayer string) bool {
	idx, ok := r.sources.Get(sourceLayer)
	if !ok {
		return false
	}
	for _, e := range idx.zooms {
		if e.live {
			return true
		}
	}
	return false
}
