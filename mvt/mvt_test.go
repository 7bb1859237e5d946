package mvt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// sampleTile has compact tables, numbered by first reference, so it survives
// an encode/decode cycle unchanged.
func sampleTile(c Compression) *Tile {
	return &Tile{
		Compression: c,
		Layers: []*Layer{
			{
				Version: 2,
				Name:    "roads",
				Extent:  4096,
				Keys:    []string{"class", "lanes"},
				Values:  []Value{NewString("primary"), NewSint(2), NewString("secondary")},
				Features: []Feature{
					{
						ID: 1, HasID: true, Type: LineString,
						Geometry: []Command{{MoveTo, 2, 2}, {LineTo, 10, 0}, {LineTo, 0, 10}},
						Tags:     []Tag{{0, 0}, {1, 1}},
					},
					{
						ID: 2, HasID: true, Type: LineString,
						Geometry: []Command{{MoveTo, 100, 100}, {LineTo, -50, 3}, {MoveTo, 7, 7}, {LineTo, 1, 1}},
						Tags:     []Tag{{0, 2}},
					},
				},
			},
			{
				Version: 2,
				Name:    "buildings",
				Extent:  512,
				Keys:    []string{"height"},
				Values:  []Value{NewDouble(12.5)},
				Features: []Feature{
					{
						Type: Polygon,
						Geometry: []Command{
							{MoveTo, 0, 0}, {LineTo, 10, 0}, {LineTo, 0, 10}, {LineTo, -10, 0}, {Op: ClosePath},
							{MoveTo, 2, -8}, {LineTo, 0, 5}, {LineTo, 5, 0}, {Op: ClosePath},
						},
						Tags: []Tag{{0, 0}},
					},
				},
			},
			{
				Version: 1,
				Name:    "pois",
				Extent:  4096,
				Keys:    []string{"open", "rank", "delta", "score", "id"},
				Values:  []Value{NewBool(true), NewUint(7), NewInt(-3), NewFloat(1.5)},
				Features: []Feature{
					{
						ID: 9, HasID: true, Type: Point,
						Geometry: []Command{{MoveTo, 5, 5}, {MoveTo, 3, -2}},
						Tags:     []Tag{{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 1}},
					},
					{
						Type:     Point,
						Geometry: []Command{{MoveTo, 4000, 4000}},
					},
				},
			},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, c := range []Compression{None, Gzip, Zlib, Zstd} {
		t.Run(c.String(), func(t *testing.T) {
			want := sampleTile(c)
			blob, err := Encode(want)
			require.NoError(t, err)
			require.Equal(t, c, DetectCompression(blob))

			got, err := Decode(blob)
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}
}

func TestEncodeDeterministic(t *testing.T) {
	for _, c := range []Compression{None, Gzip, Zlib, Zstd} {
		t.Run(c.String(), func(t *testing.T) {
			tile := sampleTile(c)
			first, err := Encode(tile)
			require.NoError(t, err)
			second, err := Encode(tile)
			require.NoError(t, err)
			require.Equal(t, first, second)
			require.Equal(t, sampleTile(c), tile, "encode must not modify the tile")
		})
	}
}

func TestReencodeIsStable(t *testing.T) {
	blob, err := Encode(sampleTile(Gzip))
	require.NoError(t, err)
	tile, err := Decode(blob)
	require.NoError(t, err)
	again, err := Encode(tile)
	require.NoError(t, err)
	assert.Equal(t, blob, again)
}

func TestEncodeCompactsTables(t *testing.T) {
	tile := &Tile{Layers: []*Layer{{
		Name:   "water",
		Extent: 4096,
		Keys:   []string{"unused", "kind", "kind"},
		Values: []Value{NewString("lake"), NewInt(1), NewString("lake"), NewString("orphan")},
		Features: []Feature{
			{Type: Point, Geometry: []Command{{MoveTo, 1, 1}}, Tags: []Tag{{2, 2}}},
			{Type: Point, Geometry: []Command{{MoveTo, 2, 2}}, Tags: []Tag{{1, 0}}},
		},
	}}}
	blob, err := Encode(tile)
	require.NoError(t, err)
	got, err := Decode(blob)
	require.NoError(t, err)

	water := got.Layer("water")
	require.NotNil(t, water)
	assert.Equal(t, []string{"kind"}, water.Keys)
	assert.Equal(t, []Value{NewString("lake")}, water.Values)
	for i := range water.Features {
		assert.Equal(t, map[string]Value{"kind": NewString("lake")}, water.Properties(&water.Features[i]))
	}
	assert.Equal(t, uint32(DefaultVersion), water.Version)
}

func TestLayerCompact(t *testing.T) {
	l := &Layer{
		Name:   "landuse",
		Extent: 4096,
		Keys:   []string{"a", "b", "c"},
		Values: []Value{NewString("x"), NewString("y"), NewString("z")},
		Features: []Feature{
			{Type: Polygon, Tags: []Tag{{2, 2}}},
			{Type: Polygon, Tags: []Tag{{1, 1}, {2, 2}}},
		},
	}
	removed := l.Filter(func(f *Feature) bool { return len(f.Tags) == 1 })
	require.Equal(t, 1, removed)
	require.NoError(t, l.Compact())
	assert.Equal(t, []string{"c"}, l.Keys)
	assert.Equal(t, []Value{NewString("z")}, l.Values)
	assert.Equal(t, []Tag{{0, 0}}, l.Features[0].Tags)

	require.NoError(t, l.Compact())
	assert.Equal(t, []string{"c"}, l.Keys)
}

func TestLayerFilterKeepsOrder(t *testing.T) {
	l := &Layer{Name: "l", Extent: 4096}
	for i := 0; i < 6; i++ {
		l.Features = append(l.Features, Feature{ID: uint64(i), HasID: true, Type: Point})
	}
	removed := l.Filter(func(f *Feature) bool { return f.ID%2 == 0 })
	assert.Equal(t, 3, removed)
	var ids []uint64
	for _, f := range l.Features {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []uint64{0, 2, 4}, ids)
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		layer *Layer
		want  error
	}{
		{
			name: "dangling key",
			layer: &Layer{Name: "l", Extent: 4096, Keys: []string{"a"}, Values: []Value{NewBool(true)},
				Features: []Feature{{Type: Point, Tags: []Tag{{3, 0}}}}},
			want: ErrDanglingIndex,
		},
		{
			name: "dangling value",
			layer: &Layer{Name: "l", Extent: 4096, Keys: []string{"a"},
				Features: []Feature{{Type: Point, Tags: []Tag{{0, 0}}}}},
			want: ErrDanglingIndex,
		},
		{
			name:  "empty name",
			layer: &Layer{Extent: 4096},
			want:  ErrEmptyName,
		},
		{
			name:  "zero extent",
			layer: &Layer{Name: "l"},
			want:  ErrExtent,
		},
		{
			name: "untyped value",
			layer: &Layer{Name: "l", Extent: 4096, Keys: []string{"a"}, Values: []Value{{}},
				Features: []Feature{{Type: Point, Tags: []Tag{{0, 0}}}}},
			want: ErrValue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(&Tile{Layers: []*Layer{tt.layer}})
			require.Error(t, err)
			var ee *EncodeError
			require.ErrorAs(t, err, &ee)
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("duplicate layer", func(t *testing.T) {
		_, err := Encode(&Tile{Layers: []*Layer{{Name: "a", Extent: 1}, {Name: "a", Extent: 1}}})
		require.ErrorIs(t, err, ErrDuplicateLayer)
	})
}

func bytesField(num protowire.Number, payload []byte) []byte {
	b := protowire.AppendTag(nil, num, protowire.BytesType)
	return protowire.AppendBytes(b, payload)
}

func varintField(num protowire.Number, v uint64) []byte {
	b := protowire.AppendTag(nil, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func concat(parts ...[]byte) []byte {
	var b []byte
	for _, p := range parts {
		b = append(b, p...)
	}
	return b
}

func rawTile(layers ...[]byte) []byte {
	var b []byte
	for _, l := range layers {
		b = append(b, bytesField(tileLayers, l)...)
	}
	return b
}

func rawPoint() []byte {
	return concat(varintField(featureType, uint64(Point)), appendPacked(nil, featureGeometry, []uint32{9, 2, 2}))
}

func TestDecodeErrors(t *testing.T) {
	valid, err := Encode(sampleTile(None))
	require.NoError(t, err)

	tests := []struct {
		name string
		blob []byte
		want error
	}{
		{
			name: "truncated",
			blob: valid[:len(valid)-3],
			want: ErrTruncated,
		},
		{
			name: "layer with wrong wire type",
			blob: varintField(tileLayers, 1),
			want: ErrWireType,
		},
		{
			name: "missing name",
			blob: rawTile(bytesField(layerFeatures, rawPoint())),
			want: ErrMissingName,
		},
		{
			name: "duplicate layer",
			blob: rawTile(bytesField(layerName, []byte("a")), bytesField(layerName, []byte("a"))),
			want: ErrDuplicateLayer,
		},
		{
			name: "zero extent",
			blob: rawTile(concat(bytesField(layerName, []byte("a")), varintField(layerExtent, 0))),
			want: ErrExtent,
		},
		{
			name: "tag index out of range",
			blob: rawTile(concat(
				bytesField(layerName, []byte("a")),
				bytesField(layerFeatures, concat(rawPoint(), appendPacked(nil, featureTags, []uint32{0, 5}))),
				bytesField(layerKeys, []byte("k")),
				bytesField(layerValues, varintField(protowire.Number(TypeBool), 1)),
			)),
			want: ErrTagIndex,
		},
		{
			name: "odd tags",
			blob: rawTile(concat(
				bytesField(layerName, []byte("a")),
				bytesField(layerFeatures, concat(rawPoint(), appendPacked(nil, featureTags, []uint32{0}))),
			)),
			want: ErrTags,
		},
		{
			name: "two typed fields in value",
			blob: rawTile(concat(
				bytesField(layerName, []byte("a")),
				bytesField(layerValues, concat(
					varintField(protowire.Number(TypeBool), 1),
					varintField(protowire.Number(TypeUint), 1))),
			)),
			want: ErrValue,
		},
		{
			name: "empty value",
			blob: rawTile(concat(bytesField(layerName, []byte("a")), bytesField(layerValues, nil))),
			want: ErrValue,
		},
		{
			name: "unterminated geometry",
			blob: rawTile(concat(
				bytesField(layerName, []byte("a")),
				bytesField(layerFeatures, concat(
					varintField(featureType, uint64(LineString)),
					appendPacked(nil, featureGeometry, []uint32{9, 2, 2, 18, 2, 2})),
				),
			)),
			want: ErrGeometry,
		},
		{
			name: "unknown command",
			blob: rawTile(concat(
				bytesField(layerName, []byte("a")),
				bytesField(layerFeatures, concat(
					varintField(featureType, uint64(LineString)),
					appendPacked(nil, featureGeometry, []uint32{9, 2, 2, 11, 2, 2})),
				),
			)),
			want: ErrGeometry,
		},
		{
			name: "close path count",
			blob: rawTile(concat(
				bytesField(layerName, []byte("a")),
				bytesField(layerFeatures, concat(
					varintField(featureType, uint64(Polygon)),
					appendPacked(nil, featureGeometry, []uint32{9, 2, 2, 26, 2, 2, 2, 2, 4, 4, 23})),
				),
			)),
			want: ErrGeometry,
		},
		{
			name: "line in point geometry",
			blob: rawTile(concat(
				bytesField(layerName, []byte("a")),
				bytesField(layerFeatures, concat(
					varintField(featureType, uint64(Point)),
					appendPacked(nil, featureGeometry, []uint32{9, 2, 2, 10, 2, 2})),
				),
			)),
			want: ErrGeometry,
		},
		{
			name: "unknown geometry type",
			blob: rawTile(concat(
				bytesField(layerName, []byte("a")),
				bytesField(layerFeatures, varintField(featureType, 9)),
			)),
			want: ErrGeomType,
		},
		{
			name: "corrupt gzip",
			blob: []byte{0x1f, 0x8b, 0x08, 0x00, 0xde, 0xad, 0xbe, 0xef},
			want: ErrCompression,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.blob)
			require.Error(t, err)
			require.True(t, IsDecodeError(err), "want *DecodeError, got %T", err)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	blob := concat(
		varintField(1, 42),
		rawTile(concat(
			bytesField(layerName, []byte("a")),
			varintField(9, 1),
			bytesField(layerFeatures, concat(rawPoint(), varintField(7, 3))),
		)),
	)
	tile, err := Decode(blob)
	require.NoError(t, err)
	require.Len(t, tile.Layers, 1)
	a := tile.Layer("a")
	require.NotNil(t, a)
	assert.Equal(t, uint32(DefaultExtent), a.Extent)
	assert.Equal(t, uint32(DefaultVersion), a.Version)
	require.Len(t, a.Features, 1)
	assert.Equal(t, []Command{{MoveTo, 1, 1}}, a.Features[0].Geometry)
}

func TestDecodeRawTileWithZlibLikeHeader(t *testing.T) {
	blob := concat(
		varintField(15, 1),
		rawTile(concat(bytesField(layerName, []byte("a")), bytesField(layerFeatures, rawPoint()))),
	)
	require.Equal(t, Zlib, DetectCompression(blob))

	tile, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, None, tile.Compression)
	assert.Equal(t, []string{"a"}, tile.LayerNames())
	require.Len(t, tile.Layer("a").Features, 1)
}

func TestDecodeUnpackedRepeated(t *testing.T) {
	feature := concat(
		varintField(featureType, uint64(Point)),
		varintField(featureGeometry, 9), varintField(featureGeometry, 4), varintField(featureGeometry, 3),
		varintField(featureTags, 0), varintField(featureTags, 0),
	)
	blob := rawTile(concat(
		bytesField(layerName, []byte("a")),
		bytesField(layerFeatures, feature),
		bytesField(layerKeys, []byte("k")),
		bytesField(layerValues, bytesField(protowire.Number(TypeString), []byte("v"))),
	))
	tile, err := Decode(blob)
	require.NoError(t, err)
	f := tile.Layers[0].Features[0]
	assert.Equal(t, []Command{{MoveTo, 2, -2}}, f.Geometry)
	assert.Equal(t, map[string]Value{"k": NewString("v")}, tile.Layers[0].Properties(&f))
}

func TestTileHelpers(t *testing.T) {
	tile := sampleTile(None)
	assert.Equal(t, []string{"roads", "buildings", "pois"}, tile.LayerNames())
	assert.Equal(t, 5, tile.FeatureCount())
	assert.Nil(t, tile.Layer("water"))

	pois := tile.Layer("pois")
	props := pois.Properties(&pois.Features[0])
	assert.Equal(t, true, props["open"].Interface())
	assert.Equal(t, uint64(7), props["id"].Interface())
	assert.Equal(t, "-3", props["delta"].Text())
	assert.Equal(t, "1.5", props["score"].Text())
}

func TestDecodeEmpty(t *testing.T) {
	tile, err := Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, tile.Layers)

	blob, err := Encode(tile)
	require.NoError(t, err)
	assert.Empty(t, blob)
}
