package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/padding"
	"github.com/muesli/reflow/truncate"

	"github.com/pdok/tilesieve/optimize"
	"github.com/pdok/tilesieve/processing"
	"github.com/pdok/tilesieve/stats"
)

const (
	bodyIndent   = 2
	maxNameWidth = 32
	// marks a number scaled up from a sample
	estimateMark = "~"
)

// table lays out rows in left aligned columns.
type table struct {
	rows [][]string
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) String() string {
	var widths []int
	for _, row := range t.rows {
		for i, cell := range row {
			if i == len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], len([]rune(cell)))
		}
	}
	var b strings.Builder
	for _, row := range t.rows {
		for i, cell := range row {
			if i == len(row)-1 {
				b.WriteString(cell)
				break
			}
			b.WriteString(padding.String(cell, uint(widths[i]+2)))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

type section struct {
	w   io.Writer
	err error
}

func (s *section) write(title string, body fmt.Stringer) {
	if s.err != nil {
		return
	}
	_, s.err = fmt.Fprintf(s.w, "%s\n%s\n", title, indent.String(body.String(), bodyIndent))
}

func name(s string) string {
	return truncate.StringWithTail(s, maxNameWidth, "...")
}

func num(n int64) string {
	return strconv.FormatInt(n, 10)
}

func zoom(z *uint32) string {
	if z == nil {
		return "-"
	}
	return strconv.FormatUint(uint64(*z), 10)
}

// counter formats counts that scale with the number of visited tiles.
type counter struct {
	r *stats.Report
}

func (c counter) count(n int64) string {
	if !c.r.Sampled {
		return num(n)
	}
	return estimateMark + num(c.r.Estimate(n))
}

func writeInspectText(w io.Writer, r *stats.Report) error {
	s := &section{w: w}
	c := counter{r}
	if r.Sampled {
		if _, err := fmt.Fprintf(w, "Sampled %d of %d tiles (fraction %g); %s marks estimates\n\n",
			r.Summary.Tiles, r.ContainerTiles, r.SampleFraction, estimateMark); err != nil {
			return err
		}
	}
	if r.Has(stats.SectionSummary) {
		t := &table{}
		t.add("tiles", c.count(r.Summary.Tiles))
		t.add("bytes", c.count(r.Summary.Bytes))
		t.add("largest tile", num(r.Summary.MaxBytes))
		t.add("failed tiles", c.count(r.Summary.FailedTiles))
		t.add("zoom", zoom(r.Summary.MinZoom)+" - "+zoom(r.Summary.MaxZoom))
		bounds := "-"
		if r.Summary.Bounds != nil {
			bounds = processing.FormatBounds(*r.Summary.Bounds)
			if r.Summary.BoundsFromTiles {
				bounds += " (from tiles)"
			}
		}
		t.add("bounds", bounds)
		s.write("Summary", t)
	}
	if r.Has(stats.SectionZooms) {
		zc := c
		if r.ExactZooms {
			zc = counter{&stats.Report{}}
		}
		t := &table{}
		t.add("zoom", "tiles", "bytes", "largest")
		for _, z := range r.Zooms {
			t.add(strconv.FormatUint(uint64(z.Zoom), 10), zc.count(z.Tiles), zc.count(z.Bytes), num(z.MaxBytes))
		}
		s.write("Zooms", t)
	}
	if r.Has(stats.SectionLayers) {
		t := &table{}
		t.add("layer", "tiles", "features", "vertices", "keys", "zooms")
		for _, l := range r.Layers {
			t.add(name(l.Name), c.count(l.Tiles), c.count(l.Features), c.count(l.Vertices), strconv.Itoa(l.Keys),
				fmt.Sprintf("%d - %d", l.MinZoom, l.MaxZoom))
		}
		s.write("Layers", t)
	}
	if r.Has(stats.SectionGeometry) {
		t := &table{}
		t.add("layer", "point", "linestring", "polygon", "unknown")
		for _, l := range r.Layers {
			g := l.Geometry
			t.add(name(l.Name), c.count(g.Point), c.count(g.LineString), c.count(g.Polygon), c.count(g.Unknown))
		}
		s.write("Geometry", t)
	}
	return s.err
}

func writeOptimizeText(w io.Writer, r *optimize.Report) error {
	s := &section{w: w}
	t := &table{}
	t.add("tiles processed", num(r.TilesProcessed))
	t.add("tiles written", num(r.TilesWritten))
	t.add("tiles dropped", num(r.TilesDropped))
	t.add("failed tiles", num(r.FailedTiles))
	if r.PassedThrough > 0 {
		t.add("passed through", num(r.PassedThrough))
	}
	t.add("removed layers", num(r.RemovedLayers))
	t.add("input bytes", num(r.InputBytes))
	t.add("output bytes", num(r.OutputBytes))
	t.add("byte delta", fmt.Sprintf("%+d", r.ByteDelta()))
	s.write("Summary", t)

	lt := &table{}
	lt.add("layer", "original", "removed", "retained", "removed layers")
	for _, l := range r.Layers {
		lt.add(name(l.Name), num(l.Original), num(l.Removed), num(l.Retained), num(l.RemovedLayers))
	}
	s.write("Layers", lt)
	return s.err
}
