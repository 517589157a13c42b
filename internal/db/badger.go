package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	binaryPrefix    = "binary/"
	workspacePrefix = "workspace/"
)

// BadgerConfig configures the Badger Store.
type BadgerConfig struct {
	Path     string // ignored when InMemory is true
	InMemory bool
	Logger   *slog.Logger // nil disables badger's own logging
}

// Badger is a Store backed by an embedded Badger key-value database.
// Records are JSON values keyed by kind and id.
type Badger struct {
	db *badger.DB
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// binaryValue and workspaceValue carry the blob fields the models keep out of JSON.
type binaryValue struct {
	Binary
	Data []byte `json:"data"`
}

type workspaceValue struct {
	WorkspaceRecord
	State []byte `json:"state"`
}

// OpenBadger opens a Badger Store.
func OpenBadger(cfg BadgerConfig) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent badger store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("creating badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}
	return &Badger{db: bdb}, nil
}

// Close closes the database.
func (s *Badger) Close() error {
	return s.db.Close()
}

func (s *Badger) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(fn)
}

func (s *Badger) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), val)
}

// scan decodes every value under prefix.
func scan[T any](txn *badger.Txn, prefix string, fn func(T)) error {
	it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: []byte(prefix)})
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		var v T
		if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &v) }); err != nil {
			return err
		}
		fn(v)
	}
	return nil
}

// CreateBinary stores b, assigning its id and timestamp when unset.
func (s *Badger) CreateBinary(ctx context.Context, b *Binary) error {
	prepareBinary(b)
	return s.update(ctx, func(txn *badger.Txn) error {
		if err := setJSON(txn, binaryPrefix+b.ID, binaryValue{Binary: *b, Data: b.Data}); err != nil {
			return fmt.Errorf("storing binary: %w", err)
		}
		return nil
	})
}

// GetBinary returns a binary with its data.
func (s *Badger) GetBinary(ctx context.Context, id string) (*Binary, error) {
	var v binaryValue
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, binaryPrefix+id, &v)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound("binary", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading binary: %w", err)
	}
	b := v.Binary
	b.Data = v.Data
	return &b, nil
}

// ListBinaries returns every binary without its data, oldest first.
func (s *Badger) ListBinaries(ctx context.Context) ([]Binary, error) {
	var out []Binary
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, binaryPrefix, func(v binaryValue) {
			out = append(out, v.Binary)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing binaries: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteBinary removes a binary and its workspaces.
func (s *Badger) DeleteBinary(ctx context.Context, id string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(binaryPrefix + id)); err != nil {
			return err
		}
		var owned []string
		err := scan(txn, workspacePrefix, func(v workspaceValue) {
			if v.BinaryID == id {
				owned = append(owned, v.ID)
			}
		})
		if err != nil {
			return err
		}
		for _, wid := range owned {
			if err := txn.Delete([]byte(workspacePrefix + wid)); err != nil {
				return err
			}
		}
		return txn.Delete([]byte(binaryPrefix + id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound("binary", id)
	}
	if err != nil {
		return fmt.Errorf("deleting binary: %w", err)
	}
	return nil
}

// CreateWorkspace stores w. The binary it belongs to must exist.
func (s *Badger) CreateWorkspace(ctx context.Context, w *WorkspaceRecord) error {
	prepareWorkspace(w)
	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(binaryPrefix + w.BinaryID)); err != nil {
			return err
		}
		return setJSON(txn, workspacePrefix+w.ID, workspaceValue{WorkspaceRecord: *w, State: w.State})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound("binary", w.BinaryID)
	}
	if err != nil {
		return fmt.Errorf("storing workspace: %w", err)
	}
	return nil
}

// GetWorkspace returns a workspace with its state blob.
func (s *Badger) GetWorkspace(ctx context.Context, id string) (*WorkspaceRecord, error) {
	var v workspaceValue
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, workspacePrefix+id, &v)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound("workspace", id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading workspace: %w", err)
	}
	w := v.WorkspaceRecord
	w.State = v.State
	return &w, nil
}

// ListWorkspaces returns workspaces without state, oldest first. An empty
// binaryID lists them all.
func (s *Badger) ListWorkspaces(ctx context.Context, binaryID string) ([]WorkspaceRecord, error) {
	var out []WorkspaceRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, workspacePrefix, func(v workspaceValue) {
			if binaryID == "" || v.BinaryID == binaryID {
				out = append(out, v.WorkspaceRecord)
			}
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing workspaces: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteWorkspace removes a workspace.
func (s *Badger) DeleteWorkspace(ctx context.Context, id string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(workspacePrefix + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(workspacePrefix + id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound("workspace", id)
	}
	if err != nil {
		return fmt.Errorf("deleting workspace: %w", err)
	}
	return nil
}

// SaveState overwrites a workspace's state blob and revision.
func (s *Badger) SaveState(ctx context.Context, id string, revision int64, state []byte) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		var v workspaceValue
		if err := getJSON(txn, workspacePrefix+id, &v); err != nil {
			return err
		}
		v.Revision = revision
		v.State = state
		v.UpdatedAt = time.Now().UnixMilli()
		return setJSON(txn, workspacePrefix+id, v)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound("workspace", id)
	}
	if err != nil {
		return fmt.Errorf("saving workspace state: %w", err)
	}
	return nil
}
