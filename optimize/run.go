package optimize

import (
	"context"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"

	"github.com/pdok/tilesieve/mvt"
	"github.com/pdok/tilesieve/processing"
	"github.com/pdok/tilesieve/style"
)

type Options struct {
	// Strict makes an undecodable tile fatal.
	Strict bool
	// KeepFailed copies undecodable tiles to the output unchanged.
	KeepFailed bool
	Workers    int
	BatchSize  int
	Progress   bool
	Logger     logrus.FieldLogger
}

// LayerReport sums the LayerResults of one source-layer over a run.
type LayerReport struct {
	Name          string `json:"name"`
	Original      int64  `json:"original"`
	Removed       int64  `json:"removed"`
	Retained      int64  `json:"retained"`
	RemovedLayers int64  `json:"removedLayers"`
}

type Report struct {
	TilesProcessed int64 `json:"tilesProcessed"`
	TilesWritten   int64 `json:"tilesWritten"`
	TilesDropped   int64 `json:"tilesDropped"`
	FailedTiles    int64 `json:"failedTiles"`
	// PassedThrough counts failed tiles copied unchanged.
	PassedThrough int64         `json:"passedThrough"`
	RemovedLayers int64         `json:"removedLayers"`
	Layers        []LayerReport `json:"layers,omitempty"`
	InputBytes    int64         `json:"inputBytes"`
	OutputBytes   int64         `json:"outputBytes"`
}

// ByteDelta is negative when the output is smaller.
func (r *Report) ByteDelta() int64 {
	return r.OutputBytes - r.InputBytes
}

type tally struct {
	mu     sync.Mutex
	report Report
	layers map[string]*LayerReport
	// zoom range of the tiles handed to the writer
	written          bool
	minZoom, maxZoom uint32
}

func (t *tally) wrote(zoom uint32) {
	if !t.written {
		t.written = true
		t.minZoom, t.maxZoom = zoom, zoom
		return
	}
	t.minZoom = min(t.minZoom, zoom)
	t.maxZoom = max(t.maxZoom, zoom)
}

func (t *tally) failed(zoom uint32, inputBytes int, passed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.TilesProcessed++
	t.report.FailedTiles++
	t.report.InputBytes += int64(inputBytes)
	if passed {
		t.report.PassedThrough++
		t.report.OutputBytes += int64(inputBytes)
		t.wrote(zoom)
	}
}

func (t *tally) optimized(zoom uint32, res TileResult, inputBytes, outputBytes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.TilesProcessed++
	if !res.Empty() {
		t.wrote(zoom)
	}
	t.report.InputBytes += int64(inputBytes)
	t.report.OutputBytes += int64(outputBytes)
	t.report.RemovedLayers += int64(res.RemovedLayers)
	if res.Empty() {
		t.report.TilesDropped++
	}
	for _, lr := range res.Layers {
		l, ok := t.layers[lr.Name]
		if !ok {
			l = &LayerReport{Name: lr.Name}
			t.layers[lr.Name] = l
		}
		l.Original += int64(lr.Original)
		l.Removed += int64(lr.Removed)
		l.Retained += int64(lr.Retained)
		if lr.Dropped {
			l.RemovedLayers++
		}
	}
}

func (t *tally) finish(written int64) *Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.report
	r.TilesWritten = written
	names := maps.Keys(t.layers)
	slices.Sort(names)
	for _, name := range names {
		r.Layers = append(r.Layers, *t.layers[name])
	}
	return &r
}

// Run optimizes every tile of source into target and copies the metadata, pruned of
// source-layers the style never draws. After a complete run the minzoom and maxzoom rows
// describe the written tiles. The report is returned along with an error when
// the run was interrupted.
func Run(ctx context.Context, source processing.Source, target processing.Target, resolver *style.Resolver, opts Options) (*Report, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	md, err := source.Metadata()
	if err != nil {
		return nil, err
	}
	md, err = PruneMetadata(md, resolver.LiveAtAnyZoom)
	if err != nil {
		log.Warnf("metadata json is left as is: %v", err)
	}
	if err = target.WriteMetadata(md); err != nil {
		return nil, err
	}

	o := New(resolver)
	t := &tally{layers: make(map[string]*LayerReport)}
	popts := processing.Options{
		Workers:   opts.Workers,
		BatchSize: opts.BatchSize,
		Progress:  opts.Progress,
		Logger:    log,
	}
	res, err := processing.ProcessTiles(ctx, source, target, popts, func(pt processing.Tile) ([]byte, error) {
		decoded, err := mvt.Decode(pt.Data)
		if err != nil {
			if opts.Strict {
				return nil, err
			}
			log.WithField("tile", pt.Coord.String()).Debugf("failed tile: %v", err)
			t.failed(pt.Coord.Zoom, len(pt.Data), opts.KeepFailed)
			if opts.KeepFailed {
				return pt.Data, nil
			}
			return nil, nil
		}
		tr := o.OptimizeTile(pt.Coord.Zoom, decoded)
		if tr.Empty() {
			t.optimized(pt.Coord.Zoom, tr, len(pt.Data), 0)
			return nil, nil
		}
		out, err := mvt.Encode(decoded)
		if err != nil {
			return nil, err
		}
		t.optimized(pt.Coord.Zoom, tr, len(pt.Data), len(out))
		return out, nil
	})
	report := t.finish(res.Written)
	if err == nil && t.written {
		err = target.WriteMetadata(withZoomRange(md, t.minZoom, t.maxZoom))
	}
	log.Infof("optimized %d tiles: %d written, %d dropped, %d failed, %d layers removed, %d bytes saved",
		report.TilesProcessed, report.TilesWritten, report.TilesDropped, report.FailedTiles,
		report.RemovedLayers, -report.ByteDelta())
	return report, err
}
