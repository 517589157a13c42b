package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"h2gb/engine/internal/config"
)

// ErrNotFound is returned when a binary or workspace id does not exist.
var ErrNotFound = errors.New("not found")

// Store persists binaries and workspace state blobs. Saves are last-write-wins.
type Store interface {
	CreateBinary(ctx context.Context, b *Binary) error
	GetBinary(ctx context.Context, id string) (*Binary, error)
	ListBinaries(ctx context.Context) ([]Binary, error)
	DeleteBinary(ctx context.Context, id string) error

	CreateWorkspace(ctx context.Context, w *WorkspaceRecord) error
	GetWorkspace(ctx context.Context, id string) (*WorkspaceRecord, error)
	ListWorkspaces(ctx context.Context, binaryID string) ([]WorkspaceRecord, error) // empty binaryID lists all
	DeleteWorkspace(ctx context.Context, id string) error
	SaveState(ctx context.Context, id string, revision int64, state []byte) error

	Close() error
}

// Open returns the Store selected by cfg. sqlitePath is used by the sqlite backend.
func Open(cfg config.StorageConfig, sqlitePath string, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "", config.BackendSQLite:
		return OpenDB(sqlitePath)
	case config.BackendBadger:
		return OpenBadger(BadgerConfig{Path: cfg.BadgerPath, InMemory: cfg.InMemory, Logger: logger})
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// prepareBinary fills in the generated fields of a new binary.
func prepareBinary(b *Binary) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt == 0 {
		b.CreatedAt = time.Now().UnixMilli()
	}
	b.Size = int64(len(b.Data))
}

// prepareWorkspace fills in the generated fields of a new workspace.
func prepareWorkspace(w *WorkspaceRecord) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := time.Now().UnixMilli()
	if w.CreatedAt == 0 {
		w.CreatedAt = now
	}
	w.UpdatedAt = w.CreatedAt
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
