// Package sqlite stores synchronized rows in a local SQLite database. Each
// row keeps its fields as a canonical JSON object, which makes the store a
// drop-in destination for dry runs, tests and offline mirrors.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/agentstation/rowsync/pkg/destinations"
	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/normalize"
	"github.com/agentstation/rowsync/pkg/record"
)

//go:embed schema.sql
var schemaSQL string

// MaxBatchSize bounds the writes applied in one transaction.
const MaxBatchSize = 1000

// Store is a SQLite-backed destination.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ destinations.Destination = (*Store)(nil)
	_ destinations.Resolver    = (*Store)(nil)
)

// Open creates or opens the database at path and applies the schema.
//
// The database runs in WAL mode with a single connection, since SQLite
// only supports one writer at a time.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.WrapIO("open", path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ID implements destinations.Destination.
func (s *Store) ID() string {
	return "sqlite"
}

// MaxBatchSize implements destinations.Destination.
func (s *Store) MaxBatchSize() int {
	return MaxBatchSize
}

// ResolveTable implements destinations.Resolver. Tables are created on
// first use.
func (s *Store) ResolveTable(ctx context.Context, name string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM sync_tables WHERE name = ? OR id = ?`, name, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", errors.WrapResource("resolve", "table", name, err)
	}

	id = "tbl" + uuid.Must(uuid.NewV7()).String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sync_tables (id, name, created_at) VALUES (?, ?, ?)`,
		id, name, s.now().UnixMilli())
	if err != nil {
		return "", errors.WrapResource("create", "table", name, err)
	}
	return id, nil
}

// ListRows implements destinations.Destination. The window is applied to the
// decoded field value, read as a datetime.
func (s *Store) ListRows(ctx context.Context, table string, window *destinations.Window) ([]destinations.Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_id, fields FROM sync_rows WHERE table_id = ? ORDER BY created_at, row_id`, table)
	if err != nil {
		return nil, errors.WrapResource("list", "rows", table, err)
	}
	defer rows.Close()

	var out []destinations.Row
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, errors.WrapResource("scan", "row", table, err)
		}
		rec, err := record.DecodeObject([]byte(raw))
		if err != nil {
			return nil, err
		}
		if window != nil && !inWindow(rec, window) {
			continue
		}
		out = append(out, destinations.Row{RowID: id, Fields: destinations.Fields(rec)})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapResource("list", "rows", table, err)
	}
	return out, nil
}

func inWindow(rec record.Record, w *destinations.Window) bool {
	ms, ok := normalize.Millis(rec[w.Field])
	if !ok {
		return false
	}
	return w.Contains(time.UnixMilli(ms))
}

// ApplyInserts implements destinations.Destination. The batch is written in
// one transaction.
func (s *Store) ApplyInserts(ctx context.Context, table string, batch []destinations.Fields) (int, error) {
	if len(batch) > MaxBatchSize {
		return 0, errors.NewValidationError("rows", len(batch), "batch too large")
	}
	now := s.now().UnixMilli()
	return s.inTx(ctx, func(tx *sql.Tx) (int, error) {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO sync_rows (row_id, table_id, fields, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, err
		}
		defer stmt.Close()

		for _, fields := range batch {
			raw, err := record.CanonicalJSON(map[string]any(fields))
			if err != nil {
				return 0, err
			}
			if _, err := stmt.ExecContext(ctx, "rec"+uuid.Must(uuid.NewV7()).String(), table, raw, now, now); err != nil {
				return 0, err
			}
		}
		return len(batch), nil
	})
}

// ApplyUpdates implements destinations.Destination. Fields are merged onto
// the stored row; unknown row ids are not counted.
func (s *Store) ApplyUpdates(ctx context.Context, table string, batch []destinations.RowUpdate) (int, error) {
	if len(batch) > MaxBatchSize {
		return 0, errors.NewValidationError("rows", len(batch), "batch too large")
	}
	now := s.now().UnixMilli()
	return s.inTx(ctx, func(tx *sql.Tx) (int, error) {
		applied := 0
		for _, u := range batch {
			var raw string
			err := tx.QueryRowContext(ctx,
				`SELECT fields FROM sync_rows WHERE row_id = ? AND table_id = ?`, u.RowID, table).Scan(&raw)
			if err == sql.ErrNoRows {
				continue
			}
			if err != nil {
				return 0, err
			}
			rec, err := record.DecodeObject([]byte(raw))
			if err != nil {
				return 0, err
			}
			for k, v := range u.Fields {
				rec[k] = v
			}
			merged, err := record.CanonicalJSON(map[string]any(rec))
			if err != nil {
				return 0, err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE sync_rows SET fields = ?, updated_at = ? WHERE row_id = ?`, merged, now, u.RowID); err != nil {
				return 0, err
			}
			applied++
		}
		return applied, nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) (int, error)) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.WrapResource("begin", "transaction", "", err)
	}
	n, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return 0, errors.WrapResource("write", "rows", "", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.WrapResource("commit", "transaction", "", err)
	}
	return n, nil
}
