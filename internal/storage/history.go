// Package storage keeps the extraction history in SQLite or Postgres.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical/table-extractor/internal/domain"
)

// ErrNotFound is returned when no record matches.
var ErrNotFound = errors.New("record not found")

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 20

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Options selects a history backend.
type Options struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

const schema = `
	CREATE TABLE IF NOT EXISTS extractions (
		id TEXT PRIMARY KEY,
		image_name TEXT NOT NULL,
		model TEXT NOT NULL,
		location TEXT NOT NULL,
		column_names TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		column_count INTEGER NOT NULL,
		status TEXT NOT NULL,
		stage TEXT NOT NULL,
		reason TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL
	)`

const indexSchema = `CREATE INDEX IF NOT EXISTS idx_extractions_started_at ON extractions (started_at)`

// History stores one row per extraction run.
type History struct {
	db     DB
	closer func() error
}

// Open connects to the configured database and creates the schema.
func Open(ctx context.Context, opts Options) (*History, error) {
	var (
		driverName string
		dsn        string
	)
	switch opts.Driver {
	case "", DriverSQLite:
		if opts.SQLitePath == "" {
			return nil, domain.ConfigError("history sqlite path is required", nil)
		}
		if opts.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(opts.SQLitePath), 0o755); err != nil {
				return nil, domain.StorageError("failed to create history directory", err)
			}
		}
		driverName, dsn = "sqlite3", opts.SQLitePath
	case DriverPostgres:
		if opts.PostgresDSN == "" {
			return nil, domain.ConfigError("history postgres dsn is required", nil)
		}
		driverName, dsn = "postgres", opts.PostgresDSN
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown history driver %q", opts.Driver), nil)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, domain.StorageError("failed to open history database", err)
	}
	if driverName == "sqlite3" {
		// One writer at a time; also keeps :memory: on a single connection.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, domain.StorageError("failed to connect to history database", err)
	}

	h, err := NewHistory(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	h.closer = db.Close
	return h, nil
}

// NewHistory wraps an open database and makes sure the schema exists.
func NewHistory(ctx context.Context, db DB) (*History, error) {
	for _, stmt := range []string{schema, indexSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, domain.StorageError("failed to migrate history schema", err)
		}
	}
	return &History{db: db}, nil
}

// Record implements domain.Recorder.
func (h *History) Record(ctx context.Context, rec domain.ExtractionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	columns := rec.Columns
	if columns == nil {
		columns = []string{}
	}
	columnsJSON, err := json.Marshal(columns)
	if err != nil {
		return domain.StorageError("failed to encode columns", err)
	}

	query := `
		INSERT INTO extractions (id, image_name, model, location, column_names,
			row_count, column_count, status, stage, reason, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = h.db.ExecContext(ctx, query,
		rec.ID.String(), rec.ImageName, rec.Model, rec.Location, string(columnsJSON),
		rec.RowCount, rec.ColumnCount, string(rec.Status), string(rec.Stage), rec.Reason,
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	if err != nil {
		return domain.StorageError("failed to record extraction", err)
	}
	return nil
}

// List returns the most recent records first.
func (h *History) List(ctx context.Context, limit int) ([]domain.ExtractionRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT id, image_name, model, location, column_names, row_count, column_count,
			status, stage, reason, started_at, finished_at
		FROM extractions
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := h.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, domain.StorageError("failed to list extractions", err)
	}
	defer rows.Close()

	var out []domain.ExtractionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StorageError("failed to list extractions", err)
	}
	return out, nil
}

// Get retrieves one record by ID.
func (h *History) Get(ctx context.Context, id uuid.UUID) (*domain.ExtractionRecord, error) {
	query := `
		SELECT id, image_name, model, location, column_names, row_count, column_count,
			status, stage, reason, started_at, finished_at
		FROM extractions WHERE id = $1
	`
	rec, err := scanRecord(h.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Close releases the database when History opened it.
func (h *History) Close() error {
	if h.closer == nil {
		return nil
	}
	return h.closer()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (domain.ExtractionRecord, error) {
	var (
		rec                 domain.ExtractionRecord
		id, columns         string
		status, stage       string
		startedAt, finished time.Time
	)
	err := s.Scan(
		&id, &rec.ImageName, &rec.Model, &rec.Location, &columns,
		&rec.RowCount, &rec.ColumnCount, &status, &stage, &rec.Reason,
		&startedAt, &finished,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, domain.StorageError("failed to scan extraction", err)
	}

	if rec.ID, err = uuid.Parse(id); err != nil {
		return rec, domain.StorageError("invalid extraction id", err)
	}
	if err := json.Unmarshal([]byte(columns), &rec.Columns); err != nil {
		return rec, domain.StorageError("invalid column list", err)
	}
	rec.Status = domain.ExtractionStatus(status)
	rec.Stage = domain.Stage(stage)
	rec.StartedAt = startedAt.UTC()
	rec.FinishedAt = finished.UTC()
	return rec, nil
}
