package mbtiles

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pdok/tilesieve/processing"
	"github.com/pdok/tilesieve/tile"
)

func fixture(t *testing.T) (string, []processing.Tile) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.mbtiles")
	m, err := Create(path, false)
	require.NoError(t, err)

	tiles := []processing.Tile{
		{Coord: tile.New(0, 0, 0), Data: []byte("z0")},
		{Coord: tile.New(1, 1, 0), Data: []byte("z1 a")},
		{Coord: tile.New(1, 0, 1), Data: []byte("z1 bb")},
		{Coord: tile.New(2, 3, 3), Data: []byte("z2")},
	}
	require.NoError(t, m.WriteBatch(tiles[:2]))
	require.NoError(t, m.WriteBatch(tiles[2:]))

	rows := orderedmap.New[string, string]()
	rows.Set("name", "fixture")
	rows.Set("format", "pbf")
	rows.Set("minzoom", "0")
	rows.Set("maxzoom", "2")
	rows.Set("bounds", "4,51,6,53")
	require.NoError(t, m.WriteMetadata(processing.NewMetadata(rows)))
	require.NoError(t, m.Close())
	return path, tiles
}

func TestRoundTrip(t *testing.T) {
	path, tiles := fixture(t)
	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()
	ctx := context.Background()

	n, err := m.CountTiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	out := make(chan tile.Coord, 10)
	require.NoError(t, m.ListTiles(ctx, out))
	close(out)
	var coords []tile.Coord
	for c := range out {
		coords = append(coords, c)
	}
	assert.Equal(t, []tile.Coord{
		tile.New(0, 0, 0), tile.New(1, 0, 1), tile.New(1, 1, 0), tile.New(2, 3, 3),
	}, coords)

	for _, want := range tiles {
		data, err := m.ReadTile(ctx, want.Coord)
		require.NoError(t, err)
		assert.Equal(t, want.Data, data)
	}

	md, err := m.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "fixture", md.Name)
	assert.Equal(t, "pbf", md.Format)
	require.NotNil(t, md.MaxZoom)
	assert.Equal(t, uint32(2), *md.MaxZoom)
	require.NotNil(t, md.Bounds)
	var names []string
	for pair := md.Rows.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	assert.Equal(t, []string{"name", "format", "minzoom", "maxzoom", "bounds"}, names)

	sizes, err := m.ZoomSizes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []processing.ZoomSize{
		{Zoom: 0, Tiles: 1, Bytes: 2, MaxBytes: 2},
		{Zoom: 1, Tiles: 2, Bytes: 9, MaxBytes: 5},
		{Zoom: 2, Tiles: 1, Bytes: 2, MaxBytes: 2},
	}, sizes)
}

func TestReadMissingTile(t *testing.T) {
	path, _ := fixture(t)
	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.ReadTile(context.Background(), tile.New(5, 1, 1))
	var ce *ContainerError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenIsReadOnly(t *testing.T) {
	path, _ := fixture(t)
	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	err = m.WriteBatch([]processing.Tile{{Coord: tile.New(0, 0, 0), Data: []byte("changed")}})
	var ce *ContainerError
	require.ErrorAs(t, err, &ce)

	data, err := m.ReadTile(context.Background(), tile.New(0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, []byte("z0"), data)
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain.mbtiles")
	db, err := sql.Open("sqlite3", plain)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE other (id INTEGER)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	tests := []struct {
		name string
		path string
		want error
	}{
		{name: "extension", path: filepath.Join(dir, "tiles.gpkg"), want: ErrExtension},
		{name: "missing", path: filepath.Join(dir, "missing.mbtiles"), want: os.ErrNotExist},
		{name: "schema", path: plain, want: ErrSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.path)
			var ce *ContainerError
			require.ErrorAs(t, err, &ce)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestCreate(t *testing.T) {
	path, _ := fixture(t)

	_, err := Create(path, false)
	require.ErrorIs(t, err, ErrExists)

	m, err := Create(path, true)
	require.NoError(t, err)
	n, err := m.CountTiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	require.NoError(t, m.Close())

	_, err = Create(filepath.Join(t.TempDir(), "out.sqlite"), false)
	require.ErrorIs(t, err, ErrExtension)
}

func TestWriteBatchReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replace.MBTiles")
	m, err := Create(path, false)
	require.NoError(t, err)
	c := tile.New(3, 2, 1)
	require.NoError(t, m.WriteBatch([]processing.Tile{{Coord: c, Data: []byte("first")}}))
	require.NoError(t, m.WriteBatch([]processing.Tile{{Coord: c, Data: []byte("second")}}))

	data, err := m.ReadTile(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
	require.NoError(t, m.Close())
}

func TestListTilesCanceled(t *testing.T) {
	path, _ := fixture(t)
	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan tile.Coord)
	cancel()
	err = m.ListTiles(ctx, out)
	require.Error(t, err)
}
