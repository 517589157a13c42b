// Package api exposes workspaces over HTTP with gin. Byte payloads are base64,
// addresses are plain integers and every mutation answers with the snapshot of
// what it changed.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"h2gb/engine/internal/db"
	"h2gb/engine/internal/graph"
	"h2gb/engine/internal/vault"
	"h2gb/engine/internal/workspace"
)

// Handlers serves the HTTP API over a Vault.
type Handlers struct {
	vault    *vault.Vault
	logger   *slog.Logger
	analyzer *graph.AnalyzerConfig
}

// NewHandlers returns Handlers over v.
func NewHandlers(v *vault.Vault, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{vault: v, logger: logger, analyzer: graph.DefaultConfig()}
}

// statusFor maps an error to its HTTP status and stable code.
func statusFor(err error) (int, string) {
	if errors.Is(err, db.ErrNotFound) {
		return http.StatusNotFound, "not_found"
	}
	code := workspace.Code(err)
	switch code {
	case "segment_not_found":
		return http.StatusNotFound, code
	case "duplicate_segment", "overlap":
		return http.StatusConflict, code
	case "out_of_range", "missing_field", "invalid_refs":
		return http.StatusBadRequest, code
	}
	return http.StatusInternalServerError, code
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, ErrorResponse{Error: code, Reason: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	code := "bad_request"
	if errors.Is(err, workspace.ErrInvalidRefs) {
		code = workspace.Code(err)
	}
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: code, Reason: err.Error()})
}

// parseInt accepts decimal or 0x-prefixed integers.
func parseInt(s string) (int64, error) {
	return strconv.ParseInt(s, 0, 64)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// snapshotQuery reads since, with_data, with_nodes and names from the query string.
func snapshotQuery(c *gin.Context) (vault.Query, error) {
	var q vault.Query
	if s := c.Query("since"); s != "" {
		since, err := parseInt(s)
		if err != nil {
			return q, fmt.Errorf("since: %w", err)
		}
		q.Since = &since
	}
	for name, dst := range map[string]*bool{"with_data": &q.WithData, "with_nodes": &q.WithNodes} {
		if s := c.Query(name); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return q, fmt.Errorf("%s: %w", name, err)
			}
			*dst = b
		}
	}
	for _, n := range c.QueryArray("names") {
		q.Names = append(q.Names, splitList(n)...)
	}
	return q, nil
}

// mutate runs a vault operation and answers with its snapshot.
func (h *Handlers) mutate(c *gin.Context, op func(q vault.Query) (workspace.Snapshot, error)) {
	q, err := snapshotQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	snap, err := op(q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// view runs fn against a loaded workspace without saving it.
func (h *Handlers) view(c *gin.Context, fn func(ws *workspace.Workspace) (any, error)) {
	var out any
	err := h.vault.View(c.Request.Context(), c.Param("id"), func(ws *workspace.Workspace) error {
		var err error
		out, err = fn(ws)
		return err
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Health handles GET /health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// UploadBinary handles POST /binaries.
func (h *Handlers) UploadBinary(c *gin.Context) {
	var req UploadBinaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	b, err := h.vault.UploadBinary(c.Request.Context(), req.Name, req.Comment, req.Data)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// ListBinaries handles GET /binaries.
func (h *Handlers) ListBinaries(c *gin.Context) {
	bs, err := h.vault.Store().ListBinaries(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if bs == nil {
		bs = []db.Binary{}
	}
	c.JSON(http.StatusOK, bs)
}

// GetBinary handles GET /binaries/:id.
func (h *Handlers) GetBinary(c *gin.Context) {
	b, err := h.vault.Store().GetBinary(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// BinaryInfo handles GET /binaries/:id/info.
func (h *Handlers) BinaryInfo(c *gin.Context) {
	info, err := h.vault.BinaryInfo(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// DeleteBinary handles DELETE /binaries/:id. Its workspaces go with it.
func (h *Handlers) DeleteBinary(c *gin.Context) {
	if err := h.vault.Store().DeleteBinary(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateWorkspace handles POST /binaries/:id/workspaces.
func (h *Handlers) CreateWorkspace(c *gin.Context) {
	var req CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	w, err := h.vault.CreateWorkspace(c.Request.Context(), c.Param("id"), req.Name, req.ImportSegments)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// ListWorkspaces handles GET /binaries/:id/workspaces.
func (h *Handlers) ListWorkspaces(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.vault.Store().GetBinary(ctx, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	ws, err := h.vault.Store().ListWorkspaces(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if ws == nil {
		ws = []db.WorkspaceRecord{}
	}
	c.JSON(http.StatusOK, ws)
}

// GetWorkspace handles GET /workspaces/:id. Without since the full state is returned.
func (h *Handlers) GetWorkspace(c *gin.Context) {
	q, err := snapshotQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	since := int64(-1)
	if q.Since != nil {
		since = *q.Since
	}
	h.view(c, func(ws *workspace.Workspace) (any, error) {
		return ws.StateSince(since, q.SnapshotOptions), nil
	})
}

// DeleteWorkspace handles DELETE /workspaces/:id.
func (h *Handlers) DeleteWorkspace(c *gin.Context) {
	if err := h.vault.Store().DeleteWorkspace(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Revision handles GET /workspaces/:id/revision.
func (h *Handlers) Revision(c *gin.Context) {
	h.view(c, func(ws *workspace.Workspace) (any, error) {
		return RevisionResponse{Revision: ws.Revision()}, nil
	})
}

// CreateSegments handles POST /workspaces/:id/segments.
func (h *Handlers) CreateSegments(c *gin.Context) {
	var req CreateSegmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.mutate(c, func(q vault.Query) (workspace.Snapshot, error) {
		return h.vault.CreateSegments(c.Request.Context(), c.Param("id"), q, req.Segments)
	})
}

// DeleteSegments handles POST /workspaces/:id/segments/delete.
func (h *Handlers) DeleteSegments(c *gin.Context) {
	var req DeleteSegmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.mutate(c, func(q vault.Query) (workspace.Snapshot, error) {
		return h.vault.DeleteSegments(c.Request.Context(), c.Param("id"), q, req.Names)
	})
}

// DeleteAllSegments handles DELETE /workspaces/:id/segments.
func (h *Handlers) DeleteAllSegments(c *gin.Context) {
	h.mutate(c, func(q vault.Query) (workspace.Snapshot, error) {
		return h.vault.DeleteAllSegments(c.Request.Context(), c.Param("id"), q)
	})
}

// GetNodes handles GET /workspaces/:id/segments/:segment/nodes.
func (h *Handlers) GetNodes(c *gin.Context) {
	since := int64(-1)
	if s := c.Query("since"); s != "" {
		v, err := parseInt(s)
		if err != nil {
			badRequest(c, fmt.Errorf("since: %w", err))
			return
		}
		since = v
	}
	h.view(c, func(ws *workspace.Workspace) (any, error) {
		return ws.Nodes(c.Param("segment"), since)
	})
}

// NodeAt handles GET /workspaces/:id/segments/:segment/nodes/:address.
func (h *Handlers) NodeAt(c *gin.Context) {
	addr, err := parseInt(c.Param("address"))
	if err != nil {
		badRequest(c, fmt.Errorf("address: %w", err))
		return
	}
	h.view(c, func(ws *workspace.Workspace) (any, error) {
		return ws.NodeAt(c.Param("segment"), addr)
	})
}

// CreateNodes handles POST /workspaces/:id/segments/:segment/nodes.
func (h *Handlers) CreateNodes(c *gin.Context) {
	var req CreateNodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.mutate(c, func(q vault.Query) (workspace.Snapshot, error) {
		return h.vault.CreateNodes(c.Request.Context(), c.Param("id"), q, c.Param("segment"), req.Nodes)
	})
}

// DeleteNodes handles POST /workspaces/:id/segments/:segment/nodes/delete.
func (h *Handlers) DeleteNodes(c *gin.Context) {
	var req DeleteNodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.mutate(c, func(q vault.Query) (workspace.Snapshot, error) {
		return h.vault.DeleteNodes(c.Request.Context(), c.Param("id"), q, c.Param("segment"), req.Addresses)
	})
}

// Xrefs handles GET /workspaces/:id/xrefs?address=&length=.
func (h *Handlers) Xrefs(c *gin.Context) {
	addr, err := parseInt(c.Query("address"))
	if err != nil {
		badRequest(c, fmt.Errorf("address: %w", err))
		return
	}
	length := int64(1)
	if s := c.Query("length"); s != "" {
		if length, err = parseInt(s); err != nil || length < 1 {
			badRequest(c, fmt.Errorf("length must be a positive integer, got %q", s))
			return
		}
	}
	h.view(c, func(ws *workspace.Workspace) (any, error) {
		xrefs := ws.XrefsTo(addr, length)
		if xrefs == nil {
			xrefs = []workspace.Xref{}
		}
		return xrefs, nil
	})
}

// Undo handles POST /workspaces/:id/undo.
func (h *Handlers) Undo(c *gin.Context) {
	h.mutate(c, func(q vault.Query) (workspace.Snapshot, error) {
		return h.vault.Undo(c.Request.Context(), c.Param("id"), q)
	})
}

// Redo handles POST /workspaces/:id/redo.
func (h *Handlers) Redo(c *gin.Context) {
	h.mutate(c, func(q vault.Query) (workspace.Snapshot, error) {
		return h.vault.Redo(c.Request.Context(), c.Param("id"), q)
	})
}

// ClearUndoLog handles POST /workspaces/:id/clear_undo_log.
func (h *Handlers) ClearUndoLog(c *gin.Context) {
	if err := h.vault.ClearUndoLog(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// History handles GET /workspaces/:id/history.
func (h *Handlers) History(c *gin.Context) {
	h.view(c, func(ws *workspace.Workspace) (any, error) {
		return ws.History(), nil
	})
}

// GetProperties handles GET /workspaces/:id/properties?keys=a,b.
func (h *Handlers) GetProperties(c *gin.Context) {
	keys := splitList(c.Query("keys"))
	h.view(c, func(ws *workspace.Workspace) (any, error) {
		return ws.Properties(keys), nil
	})
}

// SetProperties handles PUT /workspaces/:id/properties. Empty values delete.
func (h *Handlers) SetProperties(c *gin.Context) {
	var props map[string]string
	if err := c.ShouldBindJSON(&props); err != nil {
		badRequest(c, err)
		return
	}
	snap, err := h.vault.SetProperties(c.Request.Context(), c.Param("id"), props)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ClearProperties handles DELETE /workspaces/:id/properties.
func (h *Handlers) ClearProperties(c *gin.Context) {
	if err := h.vault.ClearProperties(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Analyze handles GET /workspaces/:id/analysis, optionally restricted to ?segment=.
func (h *Handlers) Analyze(c *gin.Context) {
	segment := c.Query("segment")
	h.view(c, func(ws *workspace.Workspace) (any, error) {
		snap := graph.FromWorkspace(ws)
		if segment != "" {
			snap = snap.FilterToSegment(segment)
		}
		return graph.Analyze(snap, h.analyzer), nil
	})
}
