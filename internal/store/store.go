// Package store keeps a history of planned routes in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"terrainroute/internal/pathfinding"
	"terrainroute/internal/store/migrations"
	"terrainroute/internal/terrain"
)

var ErrNotFound = errors.New("store: route not found")

// Record is one stored search outcome.
type Record struct {
	ID          string                 `json:"id"`
	CreatedAt   time.Time              `json:"createdAt"`
	Fingerprint string                 `json:"fingerprint"`
	Start       terrain.Cell           `json:"start"`
	Goal        terrain.Cell           `json:"goal"`
	MaskRadius  float64                `json:"maskRadius"`
	Status      pathfinding.Status     `json:"status"`
	Cost        float64                `json:"cost"`
	Expanded    int                    `json:"expanded"`
	Reopened    int                    `json:"reopened"`
	Elapsed     time.Duration          `json:"elapsed"`
	Waypoints   []pathfinding.Waypoint `json:"waypoints"`
}

type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies pending
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("apply %q: %w", p, err)
		}
	}
	return nil
}

// migrate applies pending migrations through a provider owned by this
// call, so stores opened concurrently share no goose state.
func migrate(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRoute inserts rec, assigning an ID and creation time when they are
// unset, and returns the stored record.
func (s *Store) SaveRoute(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Microsecond)
	if math.IsInf(rec.Cost, 0) || math.IsNaN(rec.Cost) {
		rec.Cost = math.MaxFloat64
	}

	waypoints := rec.Waypoints
	if waypoints == nil {
		waypoints = []pathfinding.Waypoint{}
	}
	encoded, err := json.Marshal(waypoints)
	if err != nil {
		return Record{}, fmt.Errorf("encode waypoints: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO routes
		(id, created_at, fingerprint, start_row, start_col, goal_row, goal_col,
		 mask_radius, status, cost, expanded, reopened, elapsed_ns, waypoints)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.UnixMicro(), rec.Fingerprint,
		rec.Start.Row, rec.Start.Col, rec.Goal.Row, rec.Goal.Col,
		rec.MaskRadius, rec.Status.String(), rec.Cost, rec.Expanded, rec.Reopened,
		int64(rec.Elapsed), string(encoded),
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert route %s: %w", rec.ID, err)
	}
	return rec, nil
}

const selectColumns = `id, created_at, fingerprint, start_row, start_col, goal_row, goal_col,
	mask_radius, status, cost, expanded, reopened, elapsed_ns, waypoints`

// Route loads the record with the given id.
func (s *Store) Route(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM routes WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM routes ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent routes: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent routes: %w", err)
	}
	return records, nil
}

// Counts tallies stored records by status.
func (s *Store) Counts(ctx context.Context) (map[pathfinding.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM routes GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count routes: %w", err)
	}
	defer rows.Close()

	counts := make(map[pathfinding.Status]int)
	for rows.Next() {
		var (
			label string
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan route count: %w", err)
		}
		status, err := pathfinding.ParseStatus(label)
		if err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec       Record
		created   int64
		status    string
		elapsed   int64
		waypoints string
	)
	err := row.Scan(&rec.ID, &created, &rec.Fingerprint,
		&rec.Start.Row, &rec.Start.Col, &rec.Goal.Row, &rec.Goal.Col,
		&rec.MaskRadius, &status, &rec.Cost, &rec.Expanded, &rec.Reopened,
		&elapsed, &waypoints)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan route: %w", err)
	}
	rec.CreatedAt = time.UnixMicro(created).UTC()
	rec.Elapsed = time.Duration(elapsed)
	if rec.Status, err = pathfinding.ParseStatus(status); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(waypoints), &rec.Waypoints); err != nil {
		return Record{}, fmt.Errorf("decode waypoints for %s: %w", rec.ID, err)
	}
	if len(rec.Waypoints) == 0 {
		rec.Waypoints = nil
	}
	return rec, nil
}
