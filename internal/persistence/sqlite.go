package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"arbfinder/internal/rates"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// System state keys.
const (
	StateLastSnapshot  = "last_snapshot_id"
	StateLastDetection = "last_detection_at"
)

// Store provides SQLite-based persistence for rate snapshots and detection runs.
type Store struct {
	db *sql.DB
}

// SnapshotInfo describes a stored snapshot without its rates.
type SnapshotInfo struct {
	ID        string
	Source    string
	RateCount int
	CreatedAt time.Time
}

// Snapshot is a stored rate table in the order it was recorded.
type Snapshot struct {
	SnapshotInfo
	Quotes []rates.Quote
}

// Table returns the snapshot's quotes as a rate table.
func (s *Snapshot) Table() rates.RateTable {
	return rates.FromQuotes(s.Quotes)
}

// DetectionRecord is the outcome of one detection run over a snapshot.
type DetectionRecord struct {
	ID           int64
	SnapshotID   string
	Found        bool
	Path         []string
	CycleKey     string
	ProfitFactor float64
	SlippagePct  float64
	CreatedAt    time.Time
}

// NewStore creates a new SQLite store and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS snapshot_rates (
			snapshot_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			base TEXT NOT NULL,
			quote TEXT NOT NULL,
			rate REAL NOT NULL,
			PRIMARY KEY (snapshot_id, position),
			FOREIGN KEY (snapshot_id) REFERENCES snapshots(id)
		)`,
		`CREATE TABLE IF NOT EXISTS detections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			snapshot_id TEXT NOT NULL,
			found INTEGER NOT NULL DEFAULT 0,
			path TEXT NOT NULL DEFAULT 'null',
			cycle_key TEXT NOT NULL DEFAULT '',
			profit_factor REAL NOT NULL DEFAULT 0,
			slippage_pct REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (snapshot_id) REFERENCES snapshots(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_snapshot ON detections(snapshot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_detections_cycle ON detections(cycle_key)`,
		`CREATE TABLE IF NOT EXISTS system_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	log.Debug().Msg("Database migrations completed")
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot stores quotes under a new snapshot id and returns the id.
// Quote order is preserved.
func (s *Store) SaveSnapshot(ctx context.Context, source string, quotes []rates.Quote) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, source, created_at) VALUES (?, ?, ?)`,
		id, source, now); err != nil {
		return "", fmt.Errorf("inserting snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_rates (snapshot_id, position, base, quote, rate) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for i, q := range quotes {
		if _, err := stmt.ExecContext(ctx, id, i, q.Base, q.Quote, q.Rate); err != nil {
			return "", fmt.Errorf("inserting rate %s/%s: %w", q.Base, q.Quote, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO system_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		StateLastSnapshot, id, now); err != nil {
		return "", fmt.Errorf("updating system state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing snapshot: %w", err)
	}

	return id, nil
}

// GetSnapshot retrieves a snapshot by id. It returns nil if none exists.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, created_at FROM snapshots WHERE id = ?`, id,
	).Scan(&snap.ID, &snap.Source, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT base, quote, rate FROM snapshot_rates WHERE snapshot_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("querying rates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var q rates.Quote
		if err := rows.Scan(&q.Base, &q.Quote, &q.Rate); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		snap.Quotes = append(snap.Quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	snap.RateCount = len(snap.Quotes)
	return &snap, nil
}

// LatestSnapshot retrieves the most recently saved snapshot, or nil if the
// store is empty.
func (s *Store) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	id, err := s.GetSystemState(ctx, StateLastSnapshot)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}
	return s.GetSnapshot(ctx, id)
}

// ListSnapshots returns up to limit snapshots, newest first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	query := `SELECT s.id, s.source, s.created_at, COUNT(r.position)
		FROM snapshots s
		LEFT JOIN snapshot_rates r ON r.snapshot_id = s.id
		GROUP BY s.id
		ORDER BY s.created_at DESC, s.rowid DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.ID, &info.Source, &info.CreatedAt, &info.RateCount); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		infos = append(infos, info)
	}

	return infos, rows.Err()
}

// RecordDetection stores the outcome of a detection run.
func (s *Store) RecordDetection(ctx context.Context, rec DetectionRecord) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	path, err := json.Marshal(rec.Path)
	if err != nil {
		return 0, fmt.Errorf("encoding path: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO detections (snapshot_id, found, path, cycle_key, profit_factor, slippage_pct, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SnapshotID, rec.Found, string(path), rec.CycleKey, rec.ProfitFactor, rec.SlippagePct, rec.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("inserting detection: %w", err)
	}

	if err := s.SetSystemState(ctx, StateLastDetection, rec.CreatedAt.Format(time.RFC3339Nano)); err != nil {
		return 0, fmt.Errorf("updating system state: %w", err)
	}

	return res.LastInsertId()
}

// ListDetections returns the detection runs recorded for a snapshot, oldest first.
func (s *Store) ListDetections(ctx context.Context, snapshotID string) ([]DetectionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, snapshot_id, found, path, cycle_key, profit_factor, slippage_pct, created_at
		FROM detections WHERE snapshot_id = ? ORDER BY id`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("querying detections: %w", err)
	}
	defer rows.Close()

	var records []DetectionRecord
	for rows.Next() {
		var (
			rec  DetectionRecord
			path string
		)
		if err := rows.Scan(&rec.ID, &rec.SnapshotID, &rec.Found, &path, &rec.CycleKey,
			&rec.ProfitFactor, &rec.SlippagePct, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if err := json.Unmarshal([]byte(path), &rec.Path); err != nil {
			return nil, fmt.Errorf("decoding path of detection %d: %w", rec.ID, err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// SetSystemState stores a key-value pair in system state.
func (s *Store) SetSystemState(ctx context.Context, key, value string) error {
	query := `INSERT INTO system_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query, key, value, time.Now())
	return err
}

// GetSystemState retrieves a value from system state.
func (s *Store) GetSystemState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM system_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}
