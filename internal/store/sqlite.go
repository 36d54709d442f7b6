// Package store persists metric records of one run in a SQLite database.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/spachava753/nsoran/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - records + record_fields
const currentSchemaVersion = 1

// DatabaseFile is the name of the store inside a run directory.
const DatabaseFile = "database.db"

// ErrReleased is returned when a batch is used after Release.
var ErrReleased = errors.New("batch already released")

// Reader reads records back. Store and Batch both implement it.
type Reader interface {
	// ReadSince returns the records with timestamp >= watermark ordered by
	// timestamp, cell, kind and then file position. Empty kinds selects every kind; empty fields
	// selects every field.
	ReadSince(ctx context.Context, watermark int64, kinds []models.RecordKind, fields []string) ([]models.MetricRecord, error)
}

// Store is the metric store of one run. Access is exclusive: at most one
// Batch is open at a time and plain reads wait for it to be released.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Open creates or opens the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: a batch transaction owns it for its lifetime.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// AcquireExclusive locks the store and opens a transaction. The caller must
// Release the batch on every path; Commit before Release to keep the writes.
func (s *Store) AcquireExclusive(ctx context.Context) (*Batch, error) {
	s.mu.Lock()
	if s.db == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("store closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Batch{store: s, tx: tx}, nil
}

// ReadSince implements Reader outside of any batch.
func (s *Store) ReadSince(ctx context.Context, watermark int64, kinds []models.RecordKind, fields []string) ([]models.MetricRecord, error) {
	b, err := s.AcquireExclusive(ctx)
	if err != nil {
		return nil, err
	}
	defer b.Release()
	return b.ReadSince(ctx, watermark, kinds, fields)
}

// Batch is an exclusive, transactional view of the store.
type Batch struct {
	store     *Store
	tx        *sql.Tx
	committed bool
	released  bool
	inserted  int
	created   int
}

// Insert stores one record and reports whether it is new. A record is keyed by
// kind, timestamp, cell, source and line; storing the same key again
// overwrites its fields one by one.
func (b *Batch) Insert(ctx context.Context, rec models.MetricRecord) (bool, error) {
	if b.released {
		return false, ErrReleased
	}

	created := true
	var id int64
	err := b.tx.QueryRowContext(ctx, `
		INSERT INTO records (kind, timestamp, cell_id, source, line) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (kind, timestamp, cell_id, source, line) DO NOTHING
		RETURNING id`,
		string(rec.Kind), rec.Timestamp, rec.CellID, rec.Source, rec.Line,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		created = false
		err = b.tx.QueryRowContext(ctx, `
			SELECT id FROM records
			WHERE kind = ? AND timestamp = ? AND cell_id = ? AND source = ? AND line = ?`,
			string(rec.Kind), rec.Timestamp, rec.CellID, rec.Source, rec.Line,
		).Scan(&id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert %s record: %w", rec.Kind, err)
	}

	for name, value := range rec.Fields {
		if _, err := b.tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO record_fields (record_id, name, value) VALUES (?, ?, ?)`,
			id, name, value,
		); err != nil {
			return false, fmt.Errorf("failed to insert field %s: %w", name, err)
		}
	}

	b.inserted++
	if created {
		b.created++
	}
	return created, nil
}

// Inserted returns how many records were written through the batch,
// overwrites included.
func (b *Batch) Inserted() int {
	return b.inserted
}

// Created returns how many records the batch added that were not stored
// before.
func (b *Batch) Created() int {
	return b.created
}

// ReadSince implements Reader inside the batch transaction.
func (b *Batch) ReadSince(ctx context.Context, watermark int64, kinds []models.RecordKind, fields []string) ([]models.MetricRecord, error) {
	if b.released {
		return nil, ErrReleased
	}

	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`
		SELECT r.id, r.kind, r.timestamp, r.cell_id, r.source, r.line, f.name, f.value
		FROM records r
		LEFT JOIN record_fields f ON f.record_id = r.id`)
	if len(fields) > 0 {
		query.WriteString(" AND f.name IN (" + placeholders(len(fields)) + ")")
		for _, f := range fields {
			args = append(args, f)
		}
	}
	query.WriteString(" WHERE r.timestamp >= ?")
	args = append(args, watermark)
	if len(kinds) > 0 {
		query.WriteString(" AND r.kind IN (" + placeholders(len(kinds)) + ")")
		for _, k := range kinds {
			args = append(args, string(k))
		}
	}
	query.WriteString(" ORDER BY r.timestamp, r.cell_id, r.kind, r.source, r.line, r.id")

	rows, err := b.tx.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var (
		out    []models.MetricRecord
		lastID int64 = -1
	)
	for rows.Next() {
		var (
			id    int64
			kind  string
			rec   models.MetricRecord
			name  sql.NullString
			value sql.NullFloat64
		)
		if err := rows.Scan(&id, &kind, &rec.Timestamp, &rec.CellID, &rec.Source, &rec.Line, &name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if id != lastID {
			rec.Kind = models.RecordKind(kind)
			rec.Fields = map[string]float64{}
			out = append(out, rec)
			lastID = id
		}
		if name.Valid {
			out[len(out)-1].Fields[name.String] = value.Float64
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return out, nil
}

// Savepoint runs fn inside a nested savepoint of the batch. When fn fails its
// writes are undone while earlier writes of the batch are kept.
func (b *Batch) Savepoint(ctx context.Context, name string, fn func() error) error {
	if b.released {
		return ErrReleased
	}
	if _, err := b.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to open savepoint %s: %w", name, err)
	}

	if fnErr := fn(); fnErr != nil {
		if _, err := b.tx.ExecContext(ctx, "ROLLBACK TO "+name); err != nil {
			return errors.Join(fnErr, fmt.Errorf("failed to roll back savepoint %s: %w", name, err))
		}
		if _, err := b.tx.ExecContext(ctx, "RELEASE "+name); err != nil {
			return errors.Join(fnErr, fmt.Errorf("failed to release savepoint %s: %w", name, err))
		}
		return fnErr
	}

	if _, err := b.tx.ExecContext(ctx, "RELEASE "+name); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	return nil
}

// Commit makes the batch's writes durable. The batch stays locked until
// Release.
func (b *Batch) Commit() error {
	if b.released {
		return ErrReleased
	}
	if b.committed {
		return nil
	}
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	b.committed = true
	return nil
}

// Release rolls back uncommitted writes and unlocks the store. It is safe to
// call more than once and is meant to be deferred right after
// AcquireExclusive.
func (b *Batch) Release() {
	if b.released {
		return
	}
	b.released = true
	if !b.committed {
		if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Warn("rolling back metric batch", "error", err)
		}
	}
	b.store.mu.Unlock()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Latest merges, per cell, the fields of the records carrying that cell's
// most recent timestamp. The result is ordered by cell id.
func Latest(records []models.MetricRecord) []models.MetricRecord {
	byCell := make(map[int]*models.MetricRecord)
	for _, rec := range records {
		cur, ok := byCell[rec.CellID]
		if !ok || rec.Timestamp > cur.Timestamp {
			merged := rec
			merged.Fields = make(map[string]float64, len(rec.Fields))
			for k, v := range rec.Fields {
				merged.Fields[k] = v
			}
			byCell[rec.CellID] = &merged
			continue
		}
		if rec.Timestamp == cur.Timestamp {
			for k, v := range rec.Fields {
				cur.Fields[k] = v
			}
		}
	}

	out := make([]models.MetricRecord, 0, len(byCell))
	for _, rec := range byCell {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CellID < out[j].CellID })
	return out
}
