// Package stats summarizes the contents of a tileset, either from every tile or from a
// deterministic sample of the tiles.
package stats

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pdok/tilesieve/mvt"
	"github.com/pdok/tilesieve/processing"
)

type Section string

const (
	SectionSummary  Section = "summary"
	SectionZooms    Section = "zooms"
	SectionLayers   Section = "layers"
	SectionGeometry Section = "geometry"
)

var AllSections = []Section{SectionSummary, SectionZooms, SectionLayers, SectionGeometry}

// ParseSections parses a comma separated list of sections, keeping the given order.
func ParseSections(list string) ([]Section, error) {
	var sections []Section
	seen := make(map[Section]bool)
	for _, part := range strings.Split(list, ",") {
		s := Section(strings.ToLower(strings.TrimSpace(part)))
		if s == "" || seen[s] {
			continue
		}
		switch s {
		case SectionSummary, SectionZooms, SectionLayers, SectionGeometry:
		default:
			return nil, fmt.Errorf("unknown stats section %q", s)
		}
		seen[s] = true
		sections = append(sections, s)
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("no stats sections in %q", list)
	}
	return sections, nil
}

type Options struct {
	// Sample visits only the share SampleFraction of the tiles.
	Sample         bool
	SampleFraction float64
	// Strict makes an undecodable tile fatal.
	Strict   bool
	Workers  int
	Progress bool
	Logger   logrus.FieldLogger
}

// Report is the outcome of an inspection.
type Report struct {
	Sections []Section `json:"-"`
	// Sampled is set when only a sample of the tiles was visited. Counts are then
	// sample counts; Estimate scales them to the whole tileset.
	Sampled        bool    `json:"sampled"`
	SampleFraction float64 `json:"sampleFraction"`
	// ContainerTiles is the exact number of tiles in the container.
	ContainerTiles int64   `json:"containerTiles"`
	Summary        Summary `json:"summary"`
	// ExactZooms is set when the per-zoom stats of a sampled run were read from the
	// container and need no estimation.
	ExactZooms bool         `json:"exactZooms,omitempty"`
	Zooms      []ZoomStats  `json:"zooms"`
	Layers     []LayerStats `json:"layers"`
}

// Estimate scales a count over the visited tiles to the whole tileset.
func (r *Report) Estimate(n int64) int64 {
	if !r.Sampled || r.Summary.Tiles == 0 {
		return n
	}
	return int64(math.Round(float64(n) * float64(r.ContainerTiles) / float64(r.Summary.Tiles)))
}

// Has reports whether section was requested.
func (r *Report) Has(section Section) bool {
	for _, s := range r.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// Inspect visits the tiles of source, or a sample of them, and collects statistics.
func Inspect(ctx context.Context, source processing.Source, sections []Section, opts Options) (*Report, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	report := &Report{Sections: sections, SampleFraction: 1}
	popts := processing.Options{Workers: opts.Workers, Progress: opts.Progress, Logger: log}
	if opts.Sample {
		sampler, err := NewSampler(opts.SampleFraction)
		if err != nil {
			return nil, err
		}
		popts.Sample = sampler.Selected
		report.Sampled = true
		report.SampleFraction = sampler.Fraction()
	}

	total, err := source.CountTiles(ctx)
	if err != nil {
		return nil, err
	}
	report.ContainerTiles = total

	acc := NewAccumulator()
	_, err = processing.ProcessTiles(ctx, source, nil, popts, func(t processing.Tile) ([]byte, error) {
		partial := NewAccumulator()
		partial.AddBlob(t.Coord, len(t.Data))
		decoded, err := mvt.Decode(t.Data)
		if err != nil {
			if opts.Strict {
				return nil, err
			}
			log.WithField("tile", t.Coord.String()).Debugf("skipping tile: %v", err)
			partial.AddFailed()
		} else {
			partial.AddTile(t.Coord.Zoom, decoded)
		}
		acc.Merge(partial)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	report.Summary, report.Zooms, report.Layers = acc.Snapshot()
	if sizer, ok := source.(processing.ZoomSizer); ok && report.Sampled && report.Has(SectionZooms) {
		sizes, err := sizer.ZoomSizes(ctx)
		if err != nil {
			return nil, err
		}
		report.Zooms = make([]ZoomStats, len(sizes))
		for i, s := range sizes {
			report.Zooms[i] = ZoomStats(s)
		}
		report.ExactZooms = true
	}
	md, err := source.Metadata()
	if err != nil {
		return nil, err
	}
	if md.Bounds != nil {
		b := *md.Bounds
		report.Summary.Bounds = &b
		report.Summary.BoundsFromTiles = false
	}
	log.Infof("inspected %d tiles, %d failed, %d layers", report.Summary.Tiles, report.Summary.FailedTiles, len(report.Layers))
	return report, nil
}
