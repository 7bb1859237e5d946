package report

import (
	"io"

	"github.com/goccy/go-json"

	"github.com/pdok/tilesieve/optimize"
	"github.com/pdok/tilesieve/stats"
)

// Every NDJSON line is one record with a type field. Records of a sampled inspection
// carry estimated:true and the scaled counts under estimate.

type summaryRecord struct {
	Type           string  `json:"type"`
	Sampled        bool    `json:"sampled"`
	SampleFraction float64 `json:"sampleFraction,omitempty"`
	ContainerTiles int64   `json:"containerTiles"`
	stats.Summary
	Estimated bool      `json:"estimated,omitempty"`
	Estimate  *estimate `json:"estimate,omitempty"`
}

type zoomRecord struct {
	Type string `json:"type"`
	stats.ZoomStats
	Estimated bool      `json:"estimated,omitempty"`
	Estimate  *estimate `json:"estimate,omitempty"`
}

type layerRecord struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Tiles    int64  `json:"tiles"`
	Features int64  `json:"features"`
	Vertices int64  `json:"vertices"`
	Keys     int    `json:"keys"`
	MinZoom  uint32 `json:"minZoom"`
	MaxZoom  uint32 `json:"maxZoom"`

	Estimated bool      `json:"estimated,omitempty"`
	Estimate  *estimate `json:"estimate,omitempty"`
}

type geometryRecord struct {
	Type     string               `json:"type"`
	Layer    string               `json:"layer"`
	Geometry stats.GeometryCounts `json:"geometry"`

	Estimated bool                  `json:"estimated,omitempty"`
	Estimate  *stats.GeometryCounts `json:"estimate,omitempty"`
}

type estimate struct {
	Tiles       int64 `json:"tiles"`
	Bytes       int64 `json:"bytes,omitempty"`
	Features    int64 `json:"features,omitempty"`
	Vertices    int64 `json:"vertices,omitempty"`
	FailedTiles int64 `json:"failedTiles,omitempty"`
}

func writeInspectNDJSON(w io.Writer, r *stats.Report) error {
	enc := json.NewEncoder(w)
	if r.Has(stats.SectionSummary) {
		rec := summaryRecord{
			Type:           "summary",
			Sampled:        r.Sampled,
			SampleFraction: r.SampleFraction,
			ContainerTiles: r.ContainerTiles,
			Summary:        r.Summary,
		}
		if r.Sampled {
			rec.Estimated = true
			rec.Estimate = &estimate{
				Tiles:       r.Estimate(r.Summary.Tiles),
				Bytes:       r.Estimate(r.Summary.Bytes),
				FailedTiles: r.Estimate(r.Summary.FailedTiles),
			}
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	if r.Has(stats.SectionZooms) {
		for _, z := range r.Zooms {
			rec := zoomRecord{Type: "zoom", ZoomStats: z}
			if r.Sampled && !r.ExactZooms {
				rec.Estimated = true
				rec.Estimate = &estimate{Tiles: r.Estimate(z.Tiles), Bytes: r.Estimate(z.Bytes)}
			}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
	}
	if r.Has(stats.SectionLayers) {
		for _, l := range r.Layers {
			rec := layerRecord{
				Type:     "layer",
				Name:     l.Name,
				Tiles:    l.Tiles,
				Features: l.Features,
				Vertices: l.Vertices,
				Keys:     l.Keys,
				MinZoom:  l.MinZoom,
				MaxZoom:  l.MaxZoom,
			}
			if r.Sampled {
				rec.Estimated = true
				rec.Estimate = &estimate{
					Tiles:    r.Estimate(l.Tiles),
					Features: r.Estimate(l.Features),
					Vertices: r.Estimate(l.Vertices),
				}
			}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
	}
	if r.Has(stats.SectionGeometry) {
		for _, l := range r.Layers {
			rec := geometryRecord{Type: "geometry", Layer: l.Name, Geometry: l.Geometry}
			if r.Sampled {
				rec.Estimated = true
				rec.Estimate = &stats.GeometryCounts{
					Unknown:    r.Estimate(l.Geometry.Unknown),
					Point:      r.Estimate(l.Geometry.Point),
					LineString: r.Estimate(l.Geometry.LineString),
					Polygon:    r.Estimate(l.Geometry.Polygon),
				}
			}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

type optimizeRecord struct {
	Type string `json:"type"`
	optimize.Report
	ByteDelta int64 `json:"byteDelta"`
}

type optimizeLayerRecord struct {
	Type string `json:"type"`
	optimize.LayerReport
}

func writeOptimizeNDJSON(w io.Writer, r *optimize.Report) error {
	enc := json.NewEncoder(w)
	summary := optimizeRecord{Type: "summary", Report: *r, ByteDelta: r.ByteDelta()}
	summary.Layers = nil
	if err := enc.Encode(summary); err != nil {
		return err
	}
	for _, l := range r.Layers {
		if err := enc.Encode(optimizeLayerRecord{Type: "layer", LayerReport: l}); err != nil {
			return err
		}
	}
	return nil
}
