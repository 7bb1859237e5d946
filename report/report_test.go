package report

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/go-spatial/geom"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdok/tilesieve/optimize"
	"github.com/pdok/tilesieve/stats"
)

func inspectReport(sampled bool) *stats.Report {
	minZoom, maxZoom := uint32(3), uint32(5)
	r := &stats.Report{
		Sections:       stats.AllSections,
		ContainerTiles: 40,
		Summary: stats.Summary{
			Tiles:       20,
			Bytes:       2000,
			MaxBytes:    180,
			FailedTiles: 2,
			MinZoom:     &minZoom,
			MaxZoom:     &maxZoom,
			Bounds:      &geom.Extent{4, 51, 6, 53},
		},
		Zooms: []stats.ZoomStats{
			{Zoom: 3, Tiles: 8, Bytes: 800, MaxBytes: 120},
			{Zoom: 5, Tiles: 12, Bytes: 1200, MaxBytes: 180},
		},
		Layers: []stats.LayerStats{
			{Name: "roads", Tiles: 18, Features: 39, Vertices: 78, Keys: 2, MinZoom: 3, MaxZoom: 5,
				Geometry: stats.GeometryCounts{LineString: 39}},
			{Name: strings.Repeat("long_layer_name_", 4), Tiles: 1, Features: 1, Vertices: 4, MinZoom: 5, MaxZoom: 5,
				Geometry: stats.GeometryCounts{Polygon: 1}},
		},
	}
	if sampled {
		r.Sampled = true
		r.SampleFraction = 0.5
	} else {
		r.ContainerTiles = 20
	}
	return r
}

func records(t *testing.T, out []byte) []map[string]interface{} {
	t.Helper()
	var recs []map[string]interface{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec), scanner.Text())
		recs = append(recs, rec)
	}
	require.NoError(t, scanner.Err())
	return recs
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "text", want: Text},
		{in: " NDJSON ", want: NDJSON},
		{in: "csv", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInspectText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInspect(&buf, Text, inspectReport(false)))
	out := buf.String()

	for _, title := range []string{"Summary\n", "Zooms\n", "Layers\n", "Geometry\n"} {
		assert.Contains(t, out, title)
	}
	assert.Contains(t, out, "4,51,6,53")
	assert.Contains(t, out, "3 - 5")
	assert.Contains(t, out, "  roads")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, strings.Repeat("long_layer_name_", 4))
	assert.NotContains(t, out, estimateMark)
}

func TestInspectTextSampled(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInspect(&buf, Text, inspectReport(true)))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Sampled 20 of 40 tiles"), out)
	assert.Contains(t, out, estimateMark+"40")
	assert.Contains(t, out, estimateMark+"78")
}

func TestInspectTextSections(t *testing.T) {
	r := inspectReport(false)
	r.Sections = []stats.Section{stats.SectionZooms}
	var buf bytes.Buffer
	require.NoError(t, WriteInspect(&buf, Text, r))
	assert.True(t, strings.HasPrefix(buf.String(), "Zooms\n"))
	assert.NotContains(t, buf.String(), "Summary")
	assert.NotContains(t, buf.String(), "roads")
}

func TestInspectNDJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInspect(&buf, NDJSON, inspectReport(false)))
	recs := records(t, buf.Bytes())
	require.Len(t, recs, 1+2+2+2)

	var types []string
	for _, rec := range recs {
		types = append(types, rec["type"].(string))
		assert.NotContains(t, rec, "estimated")
	}
	assert.Equal(t, []string{"summary", "zoom", "zoom", "layer", "layer", "geometry", "geometry"}, types)
	assert.Equal(t, float64(20), recs[0]["tiles"])
	assert.Equal(t, false, recs[0]["sampled"])
	assert.Equal(t, "roads", recs[3]["name"])
	assert.Equal(t, float64(39), recs[3]["features"])
	assert.NotContains(t, recs[3], "geometry")
	assert.Equal(t, map[string]interface{}{"unknown": 0.0, "point": 0.0, "linestring": 39.0, "polygon": 0.0}, recs[5]["geometry"])
}

func TestInspectNDJSONSampled(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInspect(&buf, NDJSON, inspectReport(true)))
	recs := records(t, buf.Bytes())
	for _, rec := range recs {
		assert.Equal(t, true, rec["estimated"], rec["type"])
		assert.Contains(t, rec, "estimate")
	}
	assert.Equal(t, 0.5, recs[0]["sampleFraction"])
	assert.Equal(t, float64(40), recs[0]["estimate"].(map[string]interface{})["tiles"])
	assert.Equal(t, float64(78), recs[3]["estimate"].(map[string]interface{})["features"])
}

func TestExactZooms(t *testing.T) {
	r := inspectReport(true)
	r.ExactZooms = true
	r.Sections = []stats.Section{stats.SectionZooms}

	var buf bytes.Buffer
	require.NoError(t, WriteInspect(&buf, Text, r))
	zooms := buf.String()[strings.Index(buf.String(), "Zooms\n"):]
	assert.NotContains(t, zooms, estimateMark)
	assert.Contains(t, zooms, "1200")

	buf.Reset()
	require.NoError(t, WriteInspect(&buf, NDJSON, r))
	for _, rec := range records(t, buf.Bytes()) {
		assert.Equal(t, "zoom", rec["type"])
		assert.NotContains(t, rec, "estimated")
	}
}

func optimizeReport() *optimize.Report {
	return &optimize.Report{
		TilesProcessed: 100,
		TilesWritten:   95,
		FailedTiles:    5,
		RemovedLayers:  190,
		InputBytes:     10000,
		OutputBytes:    4000,
		Layers: []optimize.LayerReport{
			{Name: "buildings", Original: 95, Removed: 95, RemovedLayers: 95},
			{Name: "roads", Original: 285, Retained: 285},
		},
	}
}

func TestOptimizeText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOptimize(&buf, Text, optimizeReport()))
	out := buf.String()
	assert.Contains(t, out, "-6000")
	assert.Contains(t, out, "buildings")
	assert.NotContains(t, out, "passed through")
}

func TestOptimizeNDJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOptimize(&buf, NDJSON, optimizeReport()))
	recs := records(t, buf.Bytes())
	require.Len(t, recs, 3)
	assert.Equal(t, "summary", recs[0]["type"])
	assert.Equal(t, float64(-6000), recs[0]["byteDelta"])
	assert.Equal(t, float64(5), recs[0]["failedTiles"])
	assert.NotContains(t, recs[0], "layers")
	assert.Equal(t, "layer", recs[1]["type"])
	assert.Equal(t, "buildings", recs[1]["name"])
	assert.Equal(t, float64(95), recs[1]["removedLayers"])
}

func TestUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteInspect(&buf, Format("xml"), inspectReport(false)))
	assert.Error(t, WriteOptimize(&buf, Format("xml"), optimizeReport()))
}
