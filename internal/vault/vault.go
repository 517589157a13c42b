// Package vault orchestrates requests against stored workspaces: load the
// workspace state, apply exactly one logical operation, persist the result and
// report what changed. Saves are last-write-wins.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"h2gb/engine/internal/db"
	"h2gb/engine/internal/formats"
	"h2gb/engine/internal/workspace"
)

// Query selects the snapshot returned after an operation. A nil Since reports
// everything changed by the operation itself.
type Query struct {
	Since *int64
	workspace.SnapshotOptions
}

// Vault serves workspace operations over a Store.
type Vault struct {
	store  db.Store
	logger *slog.Logger
	locks  sync.Map // workspace id -> *sync.Mutex
}

// New returns a Vault over store.
func New(store db.Store, logger *slog.Logger) *Vault {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Vault{store: store, logger: logger}
}

// Store returns the underlying Store.
func (v *Vault) Store() db.Store {
	return v.store
}

// lock serializes operations on one workspace within this process.
func (v *Vault) lock(id string) func() {
	m, _ := v.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// UploadBinary stores a new binary, sniffing its format.
func (v *Vault) UploadBinary(ctx context.Context, name, comment string, data []byte) (*db.Binary, error) {
	b := &db.Binary{Name: name, Comment: comment, Format: formats.Detect(data), Data: data}
	if err := v.store.CreateBinary(ctx, b); err != nil {
		return nil, err
	}
	v.logger.Info("binary uploaded", "binary", b.ID, "name", name, "format", b.Format, "size", b.Size)
	return b, nil
}

// BinaryInfo parses the header of a stored binary.
func (v *Vault) BinaryInfo(ctx context.Context, id string) (*formats.Info, error) {
	b, err := v.store.GetBinary(ctx, id)
	if err != nil {
		return nil, err
	}
	return formats.Parse(b.Data, b.Format)
}

// CreateWorkspace creates an empty workspace over a binary. With importSegments
// the binary's loadable sections are mapped as its initial segments; if that
// fails the workspace is removed again.
func (v *Vault) CreateWorkspace(ctx context.Context, binaryID, name string, importSegments bool) (*db.WorkspaceRecord, error) {
	w := &db.WorkspaceRecord{BinaryID: binaryID, Name: name}
	if err := v.store.CreateWorkspace(ctx, w); err != nil {
		return nil, err
	}
	v.logger.Info("workspace created", "workspace", w.ID, "binary", binaryID, "name", name)

	if importSegments {
		snap, err := v.ImportSegments(ctx, w.ID)
		if err != nil {
			if derr := v.store.DeleteWorkspace(ctx, w.ID); derr != nil {
				v.logger.Error("removing workspace after failed import", "workspace", w.ID, "error", derr)
			}
			return nil, err
		}
		w.Revision = snap.Revision
	}
	return w, nil
}

// Load decodes a stored workspace.
func (v *Vault) Load(ctx context.Context, id string) (*workspace.Workspace, *db.WorkspaceRecord, error) {
	rec, err := v.store.GetWorkspace(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	ws, err := workspace.UnmarshalState(rec.State, workspace.WithLogger(v.logger.With("workspace", id)))
	if err != nil {
		return nil, nil, fmt.Errorf("loading workspace %s: %w", id, err)
	}
	return ws, rec, nil
}

// View runs a read-only fn against a stored workspace. Nothing is saved.
func (v *Vault) View(ctx context.Context, id string, fn func(*workspace.Workspace) error) error {
	ws, _, err := v.Load(ctx, id)
	if err != nil {
		return err
	}
	return fn(ws)
}

// Apply runs one operation against a stored workspace and saves the result. When
// fn fails nothing is saved and its error is returned.
func (v *Vault) Apply(ctx context.Context, id string, q Query, fn func(*workspace.Workspace) error) (workspace.Snapshot, error) {
	unlock := v.lock(id)
	defer unlock()

	ws, _, err := v.Load(ctx, id)
	if err != nil {
		return workspace.Snapshot{}, err
	}
	if err := fn(ws); err != nil {
		return workspace.Snapshot{}, err
	}

	blob, err := ws.MarshalState()
	if err != nil {
		return workspace.Snapshot{}, fmt.Errorf("encoding workspace %s: %w", id, err)
	}
	if err := v.store.SaveState(ctx, id, ws.Revision(), blob); err != nil {
		return workspace.Snapshot{}, err
	}
	v.logger.Debug("workspace saved", "workspace", id, "revision", ws.Revision(), "bytes", len(blob))

	since := ws.StartingRevision()
	if q.Since != nil {
		since = *q.Since
	}
	return ws.StateSince(since, q.SnapshotOptions), nil
}

// ImportSegments maps the workspace binary's loadable sections as segments in one
// undoable call, then clears the undo log so the import itself cannot be undone.
func (v *Vault) ImportSegments(ctx context.Context, id string) (workspace.Snapshot, error) {
	rec, err := v.store.GetWorkspace(ctx, id)
	if err != nil {
		return workspace.Snapshot{}, err
	}
	b, err := v.store.GetBinary(ctx, rec.BinaryID)
	if err != nil {
		return workspace.Snapshot{}, err
	}
	specs, err := formats.Segments(b.Data, b.Format)
	if err != nil {
		return workspace.Snapshot{}, fmt.Errorf("importing segments from %s: %w", b.Name, err)
	}

	return v.Apply(ctx, id, Query{}, func(ws *workspace.Workspace) error {
		if err := ws.CreateSegments(specs); err != nil {
			return err
		}
		ws.ClearUndoLog()
		v.logger.Info("segments imported", "workspace", id, "format", b.Format, "segments", len(specs))
		return nil
	})
}

// CreateSegments maps new segments into a workspace.
func (v *Vault) CreateSegments(ctx context.Context, id string, q Query, specs []workspace.SegmentSpec) (workspace.Snapshot, error) {
	return v.Apply(ctx, id, q, func(ws *workspace.Workspace) error {
		return ws.CreateSegments(specs)
	})
}

// DeleteSegments removes segments and their nodes.
func (v *Vault) DeleteSegments(ctx context.Context, id string, q Query, names []string) (workspace.Snapshot, error) {
	return v.Apply(ctx, id, q, func(ws *workspace.Workspace) error {
		return ws.DeleteSegments(names)
	})
}

// DeleteAllSegments removes every segment in one undoable call.
func (v *Vault) DeleteAllSegments(ctx context.Context, id string, q Query) (workspace.Snapshot, error) {
	return v.Apply(ctx, id, q, func(ws *workspace.Workspace) error {
		return ws.DeleteAllSegments()
	})
}

// CreateNodes defines nodes in a segment.
func (v *Vault) CreateNodes(ctx context.Context, id string, q Query, segment string, specs []workspace.NodeSpec) (workspace.Snapshot, error) {
	return v.Apply(ctx, id, q, func(ws *workspace.Workspace) error {
		return ws.CreateNodes(segment, specs)
	})
}

// DeleteNodes undefines the nodes covering addresses in a segment.
func (v *Vault) DeleteNodes(ctx context.Context, id string, q Query, segment string, addresses []int64) (workspace.Snapshot, error) {
	return v.Apply(ctx, id, q, func(ws *workspace.Workspace) error {
		return ws.DeleteNodes(segment, addresses)
	})
}

// Undo reverses the workspace's most recent checkpoint.
func (v *Vault) Undo(ctx context.Context, id string, q Query) (workspace.Snapshot, error) {
	return v.Apply(ctx, id, q, func(ws *workspace.Workspace) error { return ws.Undo() })
}

// Redo re-applies the workspace's most recently undone checkpoint.
func (v *Vault) Redo(ctx context.Context, id string, q Query) (workspace.Snapshot, error) {
	return v.Apply(ctx, id, q, func(ws *workspace.Workspace) error { return ws.Redo() })
}

// ClearUndoLog empties the workspace journal.
func (v *Vault) ClearUndoLog(ctx context.Context, id string) error {
	_, err := v.Apply(ctx, id, Query{}, func(ws *workspace.Workspace) error {
		ws.ClearUndoLog()
		return nil
	})
	return err
}

// SetProperties updates the workspace property bag. Empty values delete.
func (v *Vault) SetProperties(ctx context.Context, id string, props map[string]string) (workspace.Snapshot, error) {
	return v.Apply(ctx, id, Query{}, func(ws *workspace.Workspace) error {
		ws.SetProperties(props)
		return nil
	})
}

// ClearProperties removes every workspace property.
func (v *Vault) ClearProperties(ctx context.Context, id string) error {
	_, err := v.Apply(ctx, id, Query{}, func(ws *workspace.Workspace) error {
		ws.ClearProperties()
		return nil
	})
	return err
}
