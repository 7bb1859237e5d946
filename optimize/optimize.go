// Package optimize removes the layers and features a style never draws from a tileset.
package optimize

import (
	"github.com/pdok/tilesieve/mvt"
	"github.com/pdok/tilesieve/style"
)

// Optimizer strips single tiles. It is safe for concurrent use.
type Optimizer struct {
	resolver *style.Resolver
}

func New(resolver *style.Resolver) *Optimizer {
	return &Optimizer{resolver: resolver}
}

// LayerResult counts the features of one layer of one tile.
// Removed + Retained always equals Original.
type LayerResult struct {
	Name     string
	Original int
	Removed  int
	Retained int
	// Dropped is set when the layer is not in the output tile.
	Dropped bool
}

type TileResult struct {
	Layers        []LayerResult
	RemovedLayers int
}

// Empty reports whether no layer is left, in which case the tile is not written.
func (r TileResult) Empty() bool {
	return r.RemovedLayers == len(r.Layers)
}

// OptimizeTile removes from t, in place, the layers that are not live at zoom and the
// features the style filters out. A layer emptied by the filter is removed too.
// Layer order is kept.
func (o *Optimizer) OptimizeTile(zoom uint32, t *mvt.Tile) TileResult {
	res := TileResult{Layers: make([]LayerResult, 0, len(t.Layers))}
	kept := t.Layers[:0]
	for _, l := range t.Layers {
		lr := LayerResult{Name: l.Name, Original: len(l.Features)}
		live := o.resolver.IsSourceLayerLive(l.Name, zoom)
		if live {
			if filter := o.resolver.FeatureFilter(l.Name, zoom); filter != nil {
				lr.Removed = l.Filter(func(f *mvt.Feature) bool {
					return filter.Keep(f.Type, l.Properties(f))
				})
			}
			lr.Retained = len(l.Features)
		} else {
			lr.Removed = lr.Original
		}
		// a live layer that arrived without features is kept as is
		if !live || (lr.Removed > 0 && lr.Retained == 0) {
			lr.Dropped = true
			res.RemovedLayers++
		} else {
			kept = append(kept, l)
		}
		res.Layers = append(res.Layers, lr)
	}
	for i := len(kept); i < len(t.Layers); i++ {
		t.Layers[i] = nil
	}
	t.Layers = kept
	return res
}
