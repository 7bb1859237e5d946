// Package mbtiles reads and writes MBTiles containers: SQLite databases with a tiles and
// a metadata table, rows in TMS order.
package mbtiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	_ "github.com/mattn/go-sqlite3" // sqlite driver
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/pdok/tilesieve/processing"
	"github.com/pdok/tilesieve/tile"
)

const Extension = ".mbtiles"

var (
	ErrExtension = errors.New("only " + Extension + " paths are supported")
	ErrExists    = errors.New("file already exists")
	ErrNotFound  = errors.New("tile not found")
	ErrSchema    = errors.New("not an mbtiles database")
	ErrCoord     = errors.New("invalid tile coordinate")
)

// ContainerError is returned for every failure to open, read or write a container.
type ContainerError struct {
	Path string
	Op   string
	Err  error
}

func (e *ContainerError) Error() string {
	return fmt.Sprintf("mbtiles %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *ContainerError) Unwrap() error {
	return e.Err
}

// MBTiles is an open container. Reads are safe for concurrent use; writes are meant to
// come from a single goroutine.
type MBTiles struct {
	path     string
	db       *sql.DB
	readOnly bool
}

var (
	_ processing.Source    = (*MBTiles)(nil)
	_ processing.Target    = (*MBTiles)(nil)
	_ processing.ZoomSizer = (*MBTiles)(nil)
)

func checkExtension(path string) error {
	if !strings.EqualFold(filepath.Ext(path), Extension) {
		return &ContainerError{Path: path, Op: "open", Err: ErrExtension}
	}
	return nil
}

// Open opens an existing container read-only.
func Open(path string) (*MBTiles, error) {
	if err := checkExtension(path); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &ContainerError{Path: path, Op: "open", Err: err}
	}
	dsn := "file:" + path + "?mode=ro&_query_only=true&_cache_size=-200000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &ContainerError{Path: path, Op: "open", Err: err}
	}
	m := &MBTiles{path: path, db: db, readOnly: true}
	if err = m.checkSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *MBTiles) checkSchema() error {
	var n int
	err := m.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
		WHERE type IN ('table', 'view') AND name IN ('tiles', 'metadata')`).Scan(&n)
	if err != nil {
		return m.error("open", err)
	}
	if n != 2 {
		return m.error("open", ErrSchema)
	}
	return nil
}

// Create creates a new container. An existing file is an error unless overwrite is set,
// in which case it is removed first.
func Create(path string, overwrite bool) (*MBTiles, error) {
	if err := checkExtension(path); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		if !overwrite {
			return nil, &ContainerError{Path: path, Op: "create", Err: ErrExists}
		}
		err = os.Remove(path)
		var pathError *os.PathError
		if err != nil && !(errors.As(err, &pathError) && errors.Is(pathError.Err, syscall.ENOENT)) {
			return nil, &ContainerError{Path: path, Op: "create", Err: err}
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &ContainerError{Path: path, Op: "create", Err: err}
	}
	// one connection so the pragmas hold for every statement
	db.SetMaxOpenConns(1)
	m := &MBTiles{path: path, db: db}
	statements := []string{
		"PRAGMA synchronous=OFF",
		"PRAGMA journal_mode=DELETE",
		"CREATE TABLE metadata (name TEXT, value TEXT)",
		"CREATE UNIQUE INDEX name ON metadata (name)",
		"CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB)",
		"CREATE UNIQUE INDEX tile_index ON tiles (zoom_level, tile_column, tile_row)",
	}
	for _, s := range statements {
		if _, err = db.Exec(s); err != nil {
			db.Close()
			return nil, m.error("create", err)
		}
	}
	return m, nil
}

func (m *MBTiles) error(op string, err error) error {
	return &ContainerError{Path: m.path, Op: op, Err: err}
}

func (m *MBTiles) Path() string {
	return m.path
}

// Close closes the database. A written container is analyzed first.
func (m *MBTiles) Close() error {
	if !m.readOnly {
		if _, err := m.db.Exec("ANALYZE"); err != nil {
			m.db.Close()
			return m.error("close", err)
		}
	}
	if err := m.db.Close(); err != nil {
		return m.error("close", err)
	}
	return nil
}

func (m *MBTiles) CountTiles(ctx context.Context) (int64, error) {
	var n int64
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tiles").Scan(&n); err != nil {
		return 0, m.error("count tiles", err)
	}
	return n, nil
}

// ListTiles sends the tile coordinates ordered by zoom, column and row.
func (m *MBTiles) ListTiles(ctx context.Context, out chan<- tile.Coord) error {
	rows, err := m.db.QueryContext(ctx,
		"SELECT zoom_level, tile_column, tile_row FROM tiles ORDER BY zoom_level, tile_column, tile_row")
	if err != nil {
		return m.error("list tiles", err)
	}
	defer rows.Close()
	for rows.Next() {
		var z, x, y int64
		if err = rows.Scan(&z, &x, &y); err != nil {
			return m.error("list tiles", err)
		}
		if z < 0 || z > tile.MaxZoom || x < 0 || y < 0 {
			return m.error("list tiles", fmt.Errorf("%w: %d/%d/%d", ErrCoord, z, x, y))
		}
		c := tile.New(uint32(z), uint32(x), uint32(y))
		if !c.Valid() {
			return m.error("list tiles", fmt.Errorf("%w: %s", ErrCoord, c))
		}
		select {
		case out <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err = rows.Err(); err != nil {
		return m.error("list tiles", err)
	}
	return nil
}

func (m *MBTiles) ReadTile(ctx context.Context, c tile.Coord) ([]byte, error) {
	var data []byte
	err := m.db.QueryRowContext(ctx,
		"SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?",
		c.Zoom, c.Column, c.Row).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, m.error("read tile "+c.String(), ErrNotFound)
	}
	if err != nil {
		return nil, m.error("read tile "+c.String(), err)
	}
	return data, nil
}

// WriteBatch inserts or replaces the tiles in one transaction.
func (m *MBTiles) WriteBatch(tiles []processing.Tile) error {
	tx, err := m.db.Begin()
	if err != nil {
		return m.error("write tiles", err)
	}
	stmt, err := tx.Prepare(
		"INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return m.error("write tiles", err)
	}
	defer stmt.Close()
	for _, t := range tiles {
		if _, err = stmt.Exec(t.Coord.Zoom, t.Coord.Column, t.Coord.Row, t.Data); err != nil {
			_ = tx.Rollback()
			return m.error("write tile "+t.Coord.String(), err)
		}
	}
	if err = tx.Commit(); err != nil {
		return m.error("write tiles", err)
	}
	return nil
}

// Metadata reads the metadata rows in storage order.
func (m *MBTiles) Metadata() (*processing.Metadata, error) {
	rows, err := m.db.Query("SELECT name, value FROM metadata ORDER BY rowid")
	if err != nil {
		return nil, m.error("read metadata", err)
	}
	defer rows.Close()
	values := orderedmap.New[string, string]()
	for rows.Next() {
		var name string
		var value sql.NullString
		if err = rows.Scan(&name, &value); err != nil {
			return nil, m.error("read metadata", err)
		}
		values.Set(name, value.String)
	}
	if err = rows.Err(); err != nil {
		return nil, m.error("read metadata", err)
	}
	return processing.NewMetadata(values), nil
}

// WriteMetadata replaces all metadata rows.
func (m *MBTiles) WriteMetadata(md *processing.Metadata) error {
	tx, err := m.db.Begin()
	if err != nil {
		return m.error("write metadata", err)
	}
	if _, err = tx.Exec("DELETE FROM metadata"); err != nil {
		_ = tx.Rollback()
		return m.error("write metadata", err)
	}
	for pair := md.Rows.Oldest(); pair != nil; pair = pair.Next() {
		if _, err = tx.Exec("INSERT INTO metadata (name, value) VALUES (?, ?)", pair.Key, pair.Value); err != nil {
			_ = tx.Rollback()
			return m.error("write metadata", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return m.error("write metadata", err)
	}
	return nil
}

// ZoomSizes aggregates the stored blob sizes per zoom level without reading the blobs.
func (m *MBTiles) ZoomSizes(ctx context.Context) ([]processing.ZoomSize, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT zoom_level, COUNT(*), COALESCE(SUM(LENGTH(tile_data)), 0),
		COALESCE(MAX(LENGTH(tile_data)), 0) FROM tiles GROUP BY zoom_level ORDER BY zoom_level`)
	if err != nil {
		return nil, m.error("zoom sizes", err)
	}
	defer rows.Close()
	var sizes []processing.ZoomSize
	for rows.Next() {
		var s processing.ZoomSize
		if err = rows.Scan(&s.Zoom, &s.Tiles, &s.Bytes, &s.MaxBytes); err != nil {
			return nil, m.error("zoom sizes", err)
		}
		sizes = append(sizes, s)
	}
	if err = rows.Err(); err != nil {
		return nil, m.error("zoom sizes", err)
	}
	return sizes, nil
}
