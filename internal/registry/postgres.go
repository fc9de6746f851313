package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/nucleus/tileindex/internal/dbmigrate"
	"github.com/nucleus/tileindex/internal/errs"
	"github.com/nucleus/tileindex/internal/schema"
)

// PostgresStore implements Store backed by Postgres via database/sql + lib/pq,
// matching the donor codebase's registry-client driver choice.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens dsn, applies the baseline migrations under
// migrationsPath, and ensures the tiles table carries every C8 catalog
// column.
func NewPostgresStore(dsn, migrationsPath string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)
	if migrationsPath != "" {
		if err := dbmigrate.Up(db, migrationsPath); err != nil {
			return nil, err
		}
	}
	s := &PostgresStore{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreFromDB reuses an existing *sql.DB, used by tests that
// share a connection pool across stores.
func NewPostgresStoreFromDB(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureSchema creates the baseline tiles table and its status and
// image_id indexes if they are absent, walks the C8 catalog adding any
// column the table is missing, and then indexes indexed_at once that
// column exists. It never drops or alters an existing column, matching the
// "schema is additive" invariant.
func (s *PostgresStore) ensureSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tiles (
  tile_id text PRIMARY KEY,
  image_id bigint NOT NULL,
  status text NOT NULL DEFAULT 'READY_FOR_INDEXING',
  created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS tiles_status_idx ON tiles (status, tile_id);
CREATE INDEX IF NOT EXISTS tiles_image_id_idx ON tiles (image_id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("registry: ensure baseline schema: %w", err)
	}
	for _, col := range schema.TileColumns {
		if col.Name == "tile_id" || col.Name == "image_id" || col.Name == "status" {
			continue // part of the baseline DDL above
		}
		sqlType := pgTypeFor(col.Kind)
		stmt := fmt.Sprintf(`ALTER TABLE tiles ADD COLUMN IF NOT EXISTS %s %s`, col.Name, sqlType)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("registry: add catalog column %s: %w", col.Name, err)
		}
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS tiles_indexed_at_idx ON tiles (indexed_at)`); err != nil {
		return fmt.Errorf("registry: ensure indexed_at index: %w", err)
	}
	return nil
}

func pgTypeFor(kind schema.ColumnKind) string {
	switch kind {
	case schema.KindInt64:
		return "bigint"
	case schema.KindInt32:
		return "integer"
	case schema.KindFloat64, schema.KindFloat32:
		return "double precision"
	default:
		return "text"
	}
}

func (s *PostgresStore) Close() error { return s.db.Close() }

// UpsertTiles inserts or updates rows by tile_id.
func (s *PostgresStore) UpsertTiles(ctx context.Context, tiles []Tile) error {
	if len(tiles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const stmt = `
INSERT INTO tiles
  (tile_id, image_id, source, tile_store, image_path, raster_path, pixel_polygon,
   geo_polygon, lat, lon, utm_zone, width, height, status, indexed_at, embedder_model)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (tile_id) DO UPDATE SET
  image_id=EXCLUDED.image_id, source=EXCLUDED.source, tile_store=EXCLUDED.tile_store,
  image_path=EXCLUDED.image_path, raster_path=EXCLUDED.raster_path,
  pixel_polygon=EXCLUDED.pixel_polygon, geo_polygon=EXCLUDED.geo_polygon,
  lat=EXCLUDED.lat, lon=EXCLUDED.lon, utm_zone=EXCLUDED.utm_zone,
  width=EXCLUDED.width, height=EXCLUDED.height, status=EXCLUDED.status,
  indexed_at=EXCLUDED.indexed_at, embedder_model=EXCLUDED.embedder_model;
`
	for _, t := range tiles {
		if t.Status == "" {
			t.Status = StatusReadyForIndexing
		}
		if _, err := tx.ExecContext(ctx, stmt,
			t.TileID, t.ImageID, nullIfEmpty(t.Source), nullIfEmpty(t.TileStore),
			nullIfEmpty(t.ImagePath), nullIfEmpty(t.RasterPath), nullIfEmpty(t.PixelPolygon),
			nullIfEmpty(t.GeoPolygon), t.Lat, t.Lon, nullIfEmpty(t.UTMZone),
			nullZeroInt32(t.Width), nullZeroInt32(t.Height), string(t.Status), t.IndexedAt,
			nullIfEmpty(t.EmbedderModel),
		); err != nil {
			return fmt.Errorf("registry: upsert %s: %w", t.TileID, err)
		}
	}
	return tx.Commit()
}

// ListByStatus pages through tiles in a given status, ordered by tile_id.
func (s *PostgresStore) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]Tile, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` FROM tiles WHERE status = $1 ORDER BY tile_id LIMIT $2 OFFSET $3`,
		string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTiles(rows)
}

// UpdateStatus batch-transitions ids to status. The whole batch is
// validated before any row is written: if any current status cannot
// legally move to the target, the call fails with errs.ErrInvalidState
// and nothing is changed.
func (s *PostgresStore) UpdateStatus(ctx context.Context, ids []string, status Status) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT tile_id, status FROM tiles WHERE tile_id = ANY($1) FOR UPDATE`, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	current := make(map[string]Status, len(ids))
	for rows.Next() {
		var id, st string
		if err := rows.Scan(&id, &st); err != nil {
			rows.Close()
			return 0, err
		}
		current[id] = Status(st)
	}
	rows.Close()

	var toUpdate []string
	now := time.Now().Unix()
	for _, id := range ids {
		cur, ok := current[id]
		if !ok {
			continue // unknown id: silently skipped, matches delete-by-id semantics elsewhere
		}
		if cur == status {
			continue // idempotent no-op, not counted as changed
		}
		if !CanTransition(cur, status) {
			return 0, fmt.Errorf("registry: %s %s -> %s: %w", id, cur, status, errs.ErrInvalidState)
		}
		toUpdate = append(toUpdate, id)
	}
	if len(toUpdate) == 0 {
		return 0, tx.Commit()
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE tiles SET status = $1, indexed_at = CASE WHEN $1 = 'INDEXED' THEN $2 ELSE NULL END WHERE tile_id = ANY($3)`,
		string(status), now, pq.Array(toUpdate))
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Get returns a single tile by id.
func (s *PostgresStore) Get(ctx context.Context, tileID string) (Tile, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` FROM tiles WHERE tile_id = $1`, tileID)
	if err != nil {
		return Tile{}, err
	}
	defer rows.Close()
	tiles, err := scanTiles(rows)
	if err != nil {
		return Tile{}, err
	}
	if len(tiles) == 0 {
		return Tile{}, errs.ErrNotFound
	}
	return tiles[0], nil
}

// Delete removes tiles by id.
func (s *PostgresStore) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM tiles WHERE tile_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StatusCounts returns the number of tiles in each status.
func (s *PostgresStore) StatusCounts(ctx context.Context) (StatusCounts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, count(*) FROM tiles GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := StatusCounts{}
	for rows.Next() {
		var st string
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[Status(st)] = n
	}
	return out, rows.Err()
}

// ListExpired returns tiles with indexed_at <= cutoffEpoch, for the C9 TTL sweep.
func (s *PostgresStore) ListExpired(ctx context.Context, cutoffEpoch int64, limit int) ([]Tile, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` FROM tiles WHERE indexed_at IS NOT NULL AND indexed_at <= $1 ORDER BY tile_id LIMIT $2`,
		cutoffEpoch, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTiles(rows)
}

const selectColumns = `SELECT tile_id, image_id, COALESCE(source,''), COALESCE(tile_store,''),
  COALESCE(image_path,''), COALESCE(raster_path,''), COALESCE(pixel_polygon,''),
  COALESCE(geo_polygon,''), lat, lon, COALESCE(utm_zone,''), COALESCE(width,0),
  COALESCE(height,0), status, indexed_at, COALESCE(embedder_model,'')`

func scanTiles(rows *sql.Rows) ([]Tile, error) {
	var out []Tile
	for rows.Next() {
		var t Tile
		var status string
		if err := rows.Scan(&t.TileID, &t.ImageID, &t.Source, &t.TileStore, &t.ImagePath,
			&t.RasterPath, &t.PixelPolygon, &t.GeoPolygon, &t.Lat, &t.Lon, &t.UTMZone,
			&t.Width, &t.Height, &status, &t.IndexedAt, &t.EmbedderModel); err != nil {
			return nil, err
		}
		t.Status = Status(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullZeroInt32(v int32) any {
	if v == 0 {
		return nil
	}
	return v
}
