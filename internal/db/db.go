package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS binaries (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	comment    TEXT NOT NULL DEFAULT '',
	format     TEXT NOT NULL,
	data       BLOB,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS workspaces (
	id         TEXT PRIMARY KEY,
	binary_id  TEXT NOT NULL REFERENCES binaries(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	revision   INTEGER NOT NULL DEFAULT 0,
	state      BLOB,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS workspaces_binary_id ON workspaces(binary_id);
`

// DB is the SQLite Store.
type DB struct {
	conn *sql.DB
	Path string
}

// OpenDB opens a SQLite database with WAL mode and foreign keys enabled and
// creates the schema if needed.
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Pragmas are per connection.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{conn: conn, Path: path}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.conn.Close()
}

// CreateBinary inserts b, assigning its id and timestamp when unset.
func (d *DB) CreateBinary(ctx context.Context, b *Binary) error {
	prepareBinary(b)
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO binaries (id, name, comment, format, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.Comment, b.Format, b.Data, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting binary: %w", err)
	}
	return nil
}

// GetBinary returns a binary with its data.
func (d *DB) GetBinary(ctx context.Context, id string) (*Binary, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, name, comment, format, data, created_at FROM binaries WHERE id = ?`, id)

	var b Binary
	err := row.Scan(&b.ID, &b.Name, &b.Comment, &b.Format, &b.Data, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("binary", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading binary: %w", err)
	}
	b.Size = int64(len(b.Data))
	return &b, nil
}

// ListBinaries returns every binary without its data, oldest first.
func (d *DB) ListBinaries(ctx context.Context) ([]Binary, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT id, name, comment, format, COALESCE(length(data), 0), created_at
		FROM binaries ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing binaries: %w", err)
	}
	defer rows.Close()

	var out []Binary
	for rows.Next() {
		var b Binary
		if err := rows.Scan(&b.ID, &b.Name, &b.Comment, &b.Format, &b.Size, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBinary removes a binary and, through the foreign key, its workspaces.
func (d *DB) DeleteBinary(ctx context.Context, id string) error {
	res, err := d.conn.ExecContext(ctx, `DELETE FROM binaries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting binary: %w", err)
	}
	return checkAffected(res, "binary", id)
}

// CreateWorkspace inserts w. The binary it belongs to must exist.
func (d *DB) CreateWorkspace(ctx context.Context, w *WorkspaceRecord) error {
	var exists int
	err := d.conn.QueryRowContext(ctx, `SELECT 1 FROM binaries WHERE id = ?`, w.BinaryID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("binary", w.BinaryID)
	}
	if err != nil {
		return fmt.Errorf("checking binary: %w", err)
	}

	prepareWorkspace(w)
	_, err = d.conn.ExecContext(ctx, `
		INSERT INTO workspaces (id, binary_id, name, revision, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.BinaryID, w.Name, w.Revision, w.State, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting workspace: %w", err)
	}
	return nil
}

// GetWorkspace returns a workspace with its state blob.
func (d *DB) GetWorkspace(ctx context.Context, id string) (*WorkspaceRecord, error) {
	row := d.conn.QueryRowContext(ctx, `
		SELECT id, binary_id, name, revision, state, created_at, updated_at
		FROM workspaces WHERE id = ?
	`, id)

	var w WorkspaceRecord
	err := row.Scan(&w.ID, &w.BinaryID, &w.Name, &w.Revision, &w.State, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("workspace", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading workspace: %w", err)
	}
	return &w, nil
}

// ListWorkspaces returns workspaces without state, oldest first. An empty
// binaryID lists them all.
func (d *DB) ListWorkspaces(ctx context.Context, binaryID string) ([]WorkspaceRecord, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT id, binary_id, name, revision, created_at, updated_at
		FROM workspaces WHERE ? = '' OR binary_id = ?
		ORDER BY created_at, id
	`, binaryID, binaryID)
	if err != nil {
		return nil, fmt.Errorf("listing workspaces: %w", err)
	}
	defer rows.Close()

	var out []WorkspaceRecord
	for rows.Next() {
		var w WorkspaceRecord
		if err := rows.Scan(&w.ID, &w.BinaryID, &w.Name, &w.Revision, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeleteWorkspace removes a workspace.
func (d *DB) DeleteWorkspace(ctx context.Context, id string) error {
	res, err := d.conn.ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting workspace: %w", err)
	}
	return checkAffected(res, "workspace", id)
}

// SaveState overwrites a workspace's state blob and revision.
func (d *DB) SaveState(ctx context.Context, id string, revision int64, state []byte) error {
	res, err := d.conn.ExecContext(ctx,
		`UPDATE workspaces SET revision = ?, state = ?, updated_at = ? WHERE id = ?`,
		revision, state, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("saving workspace state: %w", err)
	}
	return checkAffected(res, "workspace", id)
}

func checkAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}
