// Package catalog is the durable, row-oriented store behind the
// similarity engine: one row per library path, holding tags and
// per-analyzer feature payloads. The schema and access patterns below
// are deliberately simple — single-writer, batched commits, full table
// scans for index construction — since the catalog never serves more
// than one analysis run or one similarity index build at a time.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/stojg/musim/internal/model"
)

// Catalog owns the single database/sql handle backing the track table.
// The analysis pipeline opens it read-write; the server opens it
// read-only once at startup and shares that handle across all
// requests; it is not re-opened per request.
type Catalog struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS tracks (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	path          TEXT NOT NULL UNIQUE,
	title         TEXT NOT NULL DEFAULT '',
	artist        TEXT NOT NULL DEFAULT '',
	album         TEXT NOT NULL DEFAULT '',
	albumartist   TEXT NOT NULL DEFAULT '',
	genres        TEXT NOT NULL DEFAULT '',
	duration      INTEGER NOT NULL DEFAULT 0,
	ignore        INTEGER NOT NULL DEFAULT 0,
	timbre_blob   BLOB,
	descriptor    TEXT,
	bpm           INTEGER,
	key           TEXT,
	hl            TEXT
);
CREATE INDEX IF NOT EXISTS idx_tracks_path ON tracks(path);
`

// Open creates the schema if needed and returns a Catalog backed by the
// SQLite-compatible file at path.
func Open(path string) (*Catalog, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create catalog dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer; sqlite serializes writers anyway

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate catalog schema: %w", err)
	}

	return &Catalog{db: db}, nil
}

// OpenReadOnly opens an existing catalog file without creating it; the
// server uses this so a missing catalog is a startup error, not an
// implicitly-created empty library.
func OpenReadOnly(path string) (*Catalog, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog read-only: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog %s not reachable: %w", path, err)
	}
	return &Catalog{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error { return c.db.Close() }

// FeatureUpdate carries only the fields upsert_features should write;
// nil pointers mean "leave this field untouched".
type FeatureUpdate struct {
	Timbre     []byte
	Descriptor []float64
	BPM        *int
	Key        *string
	HighLevel  *model.HighLevel
}

// Tx is a batch of pending writes accumulated by a caller (typically the
// analysis pipeline) before a single Commit. This mirrors the catalog's
// recommended batching contract: accumulate N upserts, then commit.
type Tx struct {
	c       *Catalog
	tx      *sql.Tx
	pending int
}

// Begin starts a new batch.
func (c *Catalog) Begin(ctx context.Context) (*Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin catalog tx: %w", err)
	}
	return &Tx{c: c, tx: tx}, nil
}

// Pending reports how many upserts have accumulated since the last
// commit; callers use this against COMMIT_INTERVAL to decide when to
// flush (see the analysis pipeline's batching policy).
func (t *Tx) Pending() int { return t.pending }

// UpsertTags creates the row if missing and writes the tag fields.
func (t *Tx) UpsertTags(path string, title, artist, album, albumArtist string, genres []string, duration int) error {
	path = normalizePath(path)
	genreStr := strings.Join(genres, "|")

	_, err := t.tx.Exec(`
		INSERT INTO tracks (path, title, artist, album, albumartist, genres, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title=excluded.title, artist=excluded.artist, album=excluded.album,
			albumartist=excluded.albumartist, genres=excluded.genres, duration=excluded.duration
	`, path, title, artist, album, albumArtist, genreStr, duration)
	if err != nil {
		return fmt.Errorf("upsert tags %s: %w", path, err)
	}
	t.pending++
	return nil
}

// UpsertFeatures creates the row if missing and writes only the
// analyzer fields that are present in update.
func (t *Tx) UpsertFeatures(path string, update FeatureUpdate) error {
	path = normalizePath(path)

	if _, err := t.tx.Exec(`INSERT INTO tracks (path) VALUES (?) ON CONFLICT(path) DO NOTHING`, path); err != nil {
		return fmt.Errorf("ensure row %s: %w", path, err)
	}

	if update.Timbre != nil {
		if _, err := t.tx.Exec(`UPDATE tracks SET timbre_blob=? WHERE path=?`, update.Timbre, path); err != nil {
			return fmt.Errorf("upsert timbre %s: %w", path, err)
		}
	}
	if update.Descriptor != nil {
		b, err := json.Marshal(update.Descriptor)
		if err != nil {
			return fmt.Errorf("marshal descriptor %s: %w", path, err)
		}
		if _, err := t.tx.Exec(`UPDATE tracks SET descriptor=? WHERE path=?`, string(b), path); err != nil {
			return fmt.Errorf("upsert descriptor %s: %w", path, err)
		}
	}
	if update.BPM != nil {
		if _, err := t.tx.Exec(`UPDATE tracks SET bpm=? WHERE path=?`, *update.BPM, path); err != nil {
			return fmt.Errorf("upsert bpm %s: %w", path, err)
		}
	}
	if update.Key != nil {
		if _, err := t.tx.Exec(`UPDATE tracks SET key=? WHERE path=?`, *update.Key, path); err != nil {
			return fmt.Errorf("upsert key %s: %w", path, err)
		}
	}
	if update.HighLevel != nil {
		b, err := json.Marshal(update.HighLevel)
		if err != nil {
			return fmt.Errorf("marshal highlevel %s: %w", path, err)
		}
		if _, err := t.tx.Exec(`UPDATE tracks SET hl=? WHERE path=?`, string(b), path); err != nil {
			return fmt.Errorf("upsert highlevel %s: %w", path, err)
		}
	}

	t.pending++
	return nil
}

// Commit flushes the batch. The analysis pipeline calls this every
// COMMIT_INTERVAL successful inserts and once more at the end.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog batch: %w", err)
	}
	t.pending = 0
	return nil
}

// Rollback discards the batch, used when the caller aborts mid-batch.
func (t *Tx) Rollback() error { return t.tx.Rollback() }

func normalizePath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// GetByID returns the full row for id.
func (c *Catalog) GetByID(ctx context.Context, id int64) (*model.Track, error) {
	row := c.db.QueryRowContext(ctx, selectCols+` WHERE id = ?`, id)
	return scanTrack(row)
}

// GetByPath returns the full row for path, or nil with no error if the
// path is not present.
func (c *Catalog) GetByPath(ctx context.Context, path string) (*model.Track, error) {
	row := c.db.QueryRowContext(ctx, selectCols+` WHERE path = ?`, normalizePath(path))
	tr, err := scanTrack(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return tr, err
}

const selectCols = `
	SELECT id, path, title, artist, album, albumartist, genres, duration, ignore,
	       timbre_blob, descriptor, bpm, key, hl
	FROM tracks`

func scanTrack(row *sql.Row) (*model.Track, error) {
	var (
		t                                   model.Track
		genres                              string
		ignore                              int
		timbre                              []byte
		descriptor, key, hl                 sql.NullString
		bpm                                 sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.Path, &t.Title, &t.Artist, &t.Album, &t.AlbumArtist,
		&genres, &t.Duration, &ignore, &timbre, &descriptor, &bpm, &key, &hl); err != nil {
		return nil, err
	}
	hydrate(&t, genres, ignore, timbre, descriptor, bpm, key, hl)
	return &t, nil
}

func hydrate(t *model.Track, genres string, ignore int, timbre []byte, descriptor sql.NullString, bpm sql.NullInt64, key, hl sql.NullString) {
	if genres != "" {
		t.Genres = strings.Split(genres, "|")
	}
	t.Ignore = ignore != 0
	t.TimbreBlob = timbre

	if descriptor.Valid {
		var vec []float64
		if err := json.Unmarshal([]byte(descriptor.String), &vec); err == nil {
			t.HasDescriptor = true
			t.Descriptor = vec
		}
	}
	if bpm.Valid {
		t.HasBPM = true
		t.BPM = int(bpm.Int64)
	}
	if key.Valid && key.String != "" {
		t.HasKey = true
		t.Key = key.String
	}
	if hl.Valid && hl.String != "" {
		var h model.HighLevel
		if err := json.Unmarshal([]byte(hl.String), &h); err == nil {
			t.HighLevel = &h
		}
	}
}

// ScanOrdered iterates every row in id-ascending order, which is the
// order the similarity index is built in: index position i corresponds
// to id i+1.
func (c *Catalog) ScanOrdered(ctx context.Context) ([]*model.Track, error) {
	rows, err := c.db.QueryContext(ctx, selectCols+` ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("scan catalog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Track
	for rows.Next() {
		var (
			t                    model.Track
			genres               string
			ignore               int
			timbre               []byte
			descriptor, key, hl  sql.NullString
			bpm                  sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.Path, &t.Title, &t.Artist, &t.Album, &t.AlbumArtist,
			&genres, &t.Duration, &ignore, &timbre, &descriptor, &bpm, &key, &hl); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		hydrate(&t, genres, ignore, timbre, descriptor, bpm, key, hl)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// HasFeature reports whether the given analyzer kind has already
// produced output for path. kind is one of "timbre", "descriptor", "bpm"
// (attribute analyzer's bpm/key output is tracked jointly), "hl".
func (c *Catalog) HasFeature(ctx context.Context, path string, kind string) (bool, error) {
	var col string
	switch kind {
	case "timbre":
		col = "timbre_blob"
	case "descriptor":
		col = "descriptor"
	case "bpm":
		col = "bpm"
	case "hl":
		col = "hl"
	default:
		return false, fmt.Errorf("unknown feature kind %q", kind)
	}

	var present sql.NullString
	err := c.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM tracks WHERE path = ?`, col), normalizePath(path)).Scan(&present)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has feature %s %s: %w", kind, path, err)
	}
	return present.Valid, nil
}

// ForgetMissing removes rows whose root/path no longer exists on disk,
// then re-packs ids to be contiguous from 1. Returns whether anything
// was removed.
func (c *Catalog) ForgetMissing(ctx context.Context, root string) (bool, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, path FROM tracks ORDER BY id ASC`)
	if err != nil {
		return false, fmt.Errorf("forget missing scan: %w", err)
	}

	type row struct {
		id   int64
		path string
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.path); err != nil {
			_ = rows.Close()
			return false, fmt.Errorf("forget missing row scan: %w", err)
		}
		all = append(all, r)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}

	var toRemove []int64
	for _, r := range all {
		if _, statErr := os.Stat(filepath.Join(root, r.path)); os.IsNotExist(statErr) {
			toRemove = append(toRemove, r.id)
		}
	}
	if len(toRemove) == 0 {
		return false, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("forget missing begin: %w", err)
	}

	for _, id := range toRemove {
		if _, err := tx.Exec(`DELETE FROM tracks WHERE id = ?`, id); err != nil {
			_ = tx.Rollback()
			return false, fmt.Errorf("forget missing delete %d: %w", id, err)
		}
	}

	if err := repackIDs(tx); err != nil {
		_ = tx.Rollback()
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("forget missing commit: %w", err)
	}

	return true, nil
}

// repackIDs reassigns ids 1..N in existing id order inside an open transaction,
// restoring the dense-id invariant that the similarity index's
// RowId->IndexPos table depends on.
func repackIDs(tx *sql.Tx) error {
	rows, err := tx.Query(`SELECT id FROM tracks ORDER BY id ASC`)
	if err != nil {
		return fmt.Errorf("repack scan: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return fmt.Errorf("repack row scan: %w", err)
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	// Shift every id far out of range first so the renumbering pass
	// below can never collide with the UNIQUE(id) primary key.
	offset := int64(1 << 31)
	for _, id := range ids {
		if _, err := tx.Exec(`UPDATE tracks SET id = ? WHERE id = ?`, id+offset, id); err != nil {
			return fmt.Errorf("repack shift %d: %w", id, err)
		}
	}
	for i, id := range ids {
		if _, err := tx.Exec(`UPDATE tracks SET id = ? WHERE id = ?`, i+1, id+offset); err != nil {
			return fmt.Errorf("repack assign %d: %w", id, err)
		}
	}
	return nil
}

// AllGenresSorted returns the sorted set of every distinct genre present
// in the catalog.
func (c *Catalog) AllGenresSorted(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT genres FROM tracks WHERE genres != ''`)
	if err != nil {
		return nil, fmt.Errorf("all genres: %w", err)
	}
	defer func() { _ = rows.Close() }()

	seen := map[string]bool{}
	for rows.Next() {
		var genres string
		if err := rows.Scan(&genres); err != nil {
			return nil, fmt.Errorf("all genres scan: %w", err)
		}
		for _, g := range strings.Split(genres, "|") {
			if g != "" {
				seen[g] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out, rows.Err()
}

// ScalarConstraints bounds the attrmix endpoint's pure catalog query:
// duration/bpm ranges plus per-high-level-attribute thresholds.
type ScalarConstraints struct {
	MinDuration, MaxDuration int
	MinBPM, MaxBPM           int
	HLMin                    map[string]float64 // attribute name -> minimum value required
	HLMax                    map[string]float64 // attribute name -> maximum value allowed
	Genres                   []string
}

// SelectWhere returns the ids of every row matching the scalar
// constraints, for the attrmix endpoint.
func (c *Catalog) SelectWhere(ctx context.Context, cons ScalarConstraints) ([]int64, error) {
	tracks, err := c.ScanOrdered(ctx)
	if err != nil {
		return nil, err
	}

	wantGenres := map[string]bool{}
	for _, g := range cons.Genres {
		wantGenres[g] = true
	}

	var out []int64
	for _, t := range tracks {
		if t.Ignore {
			continue
		}
		if cons.MinDuration > 0 && t.Duration < cons.MinDuration {
			continue
		}
		if cons.MaxDuration > 0 && t.Duration > cons.MaxDuration {
			continue
		}
		if cons.MinBPM > 0 && (!t.HasBPM || t.BPM < cons.MinBPM) {
			continue
		}
		if cons.MaxBPM > 0 && (!t.HasBPM || t.BPM > cons.MaxBPM) {
			continue
		}
		if len(wantGenres) > 0 && !genreIntersects(t.Genres, wantGenres) {
			continue
		}
		if !matchesHL(t.HighLevel, cons.HLMin, cons.HLMax) {
			continue
		}
		out = append(out, t.ID)
	}
	return out, nil
}

func genreIntersects(genres []string, want map[string]bool) bool {
	for _, g := range genres {
		if want[g] {
			return true
		}
	}
	return false
}

func matchesHL(hl *model.HighLevel, min, max map[string]float64) bool {
	if len(min) == 0 && len(max) == 0 {
		return true
	}
	if hl == nil {
		return false
	}
	values := map[string]float64{}
	for _, a := range hl.Attrs() {
		values[a.Name] = a.Value
	}
	for name, m := range min {
		if values[name] < m {
			return false
		}
	}
	for name, m := range max {
		if values[name] > m {
			return false
		}
	}
	return true
}
