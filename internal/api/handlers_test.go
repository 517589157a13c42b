package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"h2gb/engine/internal/db"
	"h2gb/engine/internal/formats"
	"h2gb/engine/internal/graph"
	"h2gb/engine/internal/vault"
	"h2gb/engine/internal/workspace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	store, err := db.OpenBadger(db.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	router := gin.New()
	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(vault.New(store, nil), nil))
	return router
}

func do(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// newWorkspace uploads data and creates a workspace with its segments imported.
func newWorkspace(t *testing.T, router *gin.Engine, data []byte) string {
	t.Helper()
	w := do(t, router, http.MethodPost, "/v1/binaries", UploadBinaryRequest{Name: "sample.bin", Data: data})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	b := decode[db.Binary](t, w)

	w = do(t, router, http.MethodPost, "/v1/binaries/"+b.ID+"/workspaces",
		CreateWorkspaceRequest{Name: "main", ImportSegments: true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[db.WorkspaceRecord](t, w).ID
}

func TestHealth(t *testing.T) {
	router := setupTestRouter(t)
	w := do(t, router, http.MethodGet, "/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBinaries(t *testing.T) {
	router := setupTestRouter(t)
	w := do(t, router, http.MethodPost, "/v1/binaries", `{"name":"fw.bin","data":"3q2+7w=="}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	b := decode[db.Binary](t, w)
	assert.Equal(t, formats.Raw, b.Format)
	assert.Equal(t, int64(4), b.Size)

	w = do(t, router, http.MethodGet, "/v1/binaries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]db.Binary](t, w), 1)

	w = do(t, router, http.MethodGet, "/v1/binaries/"+b.ID+"/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, formats.Raw, decode[formats.Info](t, w).Format)

	w = do(t, router, http.MethodDelete, "/v1/binaries/"+b.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodGet, "/v1/binaries/"+b.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, w).Error)
}

func TestUploadBinary_MissingName(t *testing.T) {
	router := setupTestRouter(t)
	w := do(t, router, http.MethodPost, "/v1/binaries", `{"data":"AA=="}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_request", decode[ErrorResponse](t, w).Error)
}

func TestWorkspace_NodesLifecycle(t *testing.T) {
	router := setupTestRouter(t)
	id := newWorkspace(t, router, []byte("ABCDEFGHIJKLMNOP"))
	base := "/v1/workspaces/" + id

	w := do(t, router, http.MethodPost, base+"/segments/.raw/nodes?with_nodes=true",
		`{"nodes":[{"type":"dword","address":0,"length":4,"value":"dd 0x44434241","refs":[8]}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := decode[workspace.Snapshot](t, w)
	require.Len(t, snap.Segments, 1)
	require.Len(t, snap.Segments[0].Nodes, 2, "the node and its ref target changed")

	w = do(t, router, http.MethodGet, base+"/segments/.raw/nodes/0x2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	node := decode[workspace.NodeView](t, w)
	assert.Equal(t, "dword", node.Type)
	assert.Equal(t, []byte("ABCD"), node.Raw)

	w = do(t, router, http.MethodGet, base+"/xrefs?address=8", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []workspace.Xref{{Segment: ".raw", Address: 0}}, decode[[]workspace.Xref](t, w))

	w = do(t, router, http.MethodPost, base+"/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, router, http.MethodGet, base+"/segments/.raw/nodes/0", nil)
	assert.Equal(t, "undefined", decode[workspace.NodeView](t, w).Type)

	w = do(t, router, http.MethodPost, base+"/redo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, router, http.MethodGet, base+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode[workspace.History](t, w).Undo)

	w = do(t, router, http.MethodPost, base+"/segments/.raw/nodes/delete", DeleteNodesRequest{Addresses: []int64{3}})
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, router, http.MethodGet, base+"/segments/.raw/nodes/0", nil)
	assert.Equal(t, "undefined", decode[workspace.NodeView](t, w).Type)

	w = do(t, router, http.MethodPost, base+"/clear_undo_log", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, http.MethodGet, base+"/history", nil)
	assert.Empty(t, decode[workspace.History](t, w).Undo)
}

func TestWorkspace_Snapshot(t *testing.T) {
	router := setupTestRouter(t)
	id := newWorkspace(t, router, []byte("ABCD"))
	base := "/v1/workspaces/" + id

	w := do(t, router, http.MethodGet, base+"?with_data=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[workspace.Snapshot](t, w)
	require.Len(t, snap.Segments, 1)
	assert.Equal(t, []byte("ABCD"), snap.Segments[0].Data)

	w = do(t, router, http.MethodGet, base+"/revision", nil)
	rev := decode[RevisionResponse](t, w).Revision
	assert.Equal(t, snap.Revision, rev)

	w = do(t, router, http.MethodGet, base+"?since=0x7fffffff", nil)
	assert.Empty(t, decode[workspace.Snapshot](t, w).Segments)

	w = do(t, router, http.MethodGet, base+"?with_data=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSegments(t *testing.T) {
	router := setupTestRouter(t)
	id := newWorkspace(t, router, []byte("ABCD"))
	base := "/v1/workspaces/" + id

	w := do(t, router, http.MethodPost, base+"/segments", `{"segments":[{"name":"stack","address":4096,"data":"AAAA"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	snap := decode[workspace.Snapshot](t, w)
	require.Len(t, snap.Segments, 1)
	assert.Equal(t, "stack", snap.Segments[0].Name)

	w = do(t, router, http.MethodPost, base+"/segments/delete", DeleteSegmentsRequest{Names: []string{"stack"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"stack"}, decode[workspace.Snapshot](t, w).DeletedSegments)

	w = do(t, router, http.MethodDelete, base+"/segments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{".raw"}, decode[workspace.Snapshot](t, w).DeletedSegments)
}

func TestErrorMapping(t *testing.T) {
	router := setupTestRouter(t)
	id := newWorkspace(t, router, []byte("ABCD"))
	base := "/v1/workspaces/" + id

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"duplicate segment", http.MethodPost, base + "/segments",
			`{"segments":[{"name":".raw","address":4096,"data":"AA=="}]}`, http.StatusConflict, "duplicate_segment"},
		{"overlap", http.MethodPost, base + "/segments",
			`{"segments":[{"name":"x","address":2,"data":"AAAA"}]}`, http.StatusConflict, "overlap"},
		{"missing field", http.MethodPost, base + "/segments",
			`{"segments":[{"name":"x","data":"AA=="}]}`, http.StatusBadRequest, "missing_field"},
		{"out of range", http.MethodPost, base + "/segments/.raw/nodes",
			`{"nodes":[{"type":"qword","address":0,"length":8,"value":"dq"}]}`, http.StatusBadRequest, "out_of_range"},
		{"invalid refs", http.MethodPost, base + "/segments/.raw/nodes",
			`{"nodes":[{"type":"byte","address":0,"length":1,"value":"db","refs":"nope"}]}`, http.StatusBadRequest, "invalid_refs"},
		{"unknown segment", http.MethodGet, base + "/segments/nope/nodes/0", "", http.StatusNotFound, "segment_not_found"},
		{"unknown workspace", http.MethodPost, "/v1/workspaces/missing/undo", "", http.StatusNotFound, "not_found"},
		{"bad address", http.MethodGet, base + "/segments/.raw/nodes/zz", "", http.StatusBadRequest, "bad_request"},
		{"malformed body", http.MethodPost, base + "/segments", `{`, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body any
			if tt.body != "" {
				body = tt.body
			}
			w := do(t, router, tt.method, tt.path, body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decode[ErrorResponse](t, w)
			assert.Equal(t, tt.code, resp.Error)
			assert.NotEmpty(t, resp.Reason)
		})
	}
}

func TestXrefs_WideRange(t *testing.T) {
	router := setupTestRouter(t)
	id := newWorkspace(t, router, []byte("ABCD"))

	w := do(t, router, http.MethodGet, "/v1/workspaces/"+id+"/xrefs?address=0&length=0x7fffffffffffffff", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, decode[[]workspace.Xref](t, w))
}

func TestProperties(t *testing.T) {
	router := setupTestRouter(t)
	id := newWorkspace(t, router, []byte("A"))
	base := "/v1/workspaces/" + id

	w := do(t, router, http.MethodPut, base+"/properties", map[string]string{"arch": "arm", "os": "none"})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, base+"/properties?keys=arch", nil)
	assert.Equal(t, map[string]string{"arch": "arm"}, decode[map[string]string](t, w))

	w = do(t, router, http.MethodDelete, base+"/properties", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, http.MethodGet, base+"/properties", nil)
	assert.Empty(t, decode[map[string]string](t, w))
}

func TestAnalyze(t *testing.T) {
	router := setupTestRouter(t)
	id := newWorkspace(t, router, []byte("ABCDEFGH"))
	base := "/v1/workspaces/" + id

	w := do(t, router, http.MethodPost, base+"/segments/.raw/nodes",
		`{"nodes":[{"type":"byte","address":0,"length":1,"value":"db","refs":[4]},{"type":"byte","address":4,"length":1,"value":"db"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodGet, base+"/analysis", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[graph.AnalysisReport](t, w)
	require.NotNil(t, report.Topology)
	assert.Equal(t, 2, report.Topology.DefinedNodes)
	assert.Equal(t, 1, report.Topology.TotalEdges)
	assert.Equal(t, 1, report.Topology.NumComponents)
}

func TestWorkspaces_ListAndDelete(t *testing.T) {
	router := setupTestRouter(t)
	w := do(t, router, http.MethodPost, "/v1/binaries", UploadBinaryRequest{Name: "a", Data: []byte{1}})
	b := decode[db.Binary](t, w)

	for _, name := range []string{"one", "two"} {
		w = do(t, router, http.MethodPost, "/v1/binaries/"+b.ID+"/workspaces", CreateWorkspaceRequest{Name: name})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w = do(t, router, http.MethodGet, "/v1/binaries/"+b.ID+"/workspaces", nil)
	list := decode[[]db.WorkspaceRecord](t, w)
	require.Len(t, list, 2)

	w = do(t, router, http.MethodDelete, "/v1/workspaces/"+list[0].ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, http.MethodGet, "/v1/workspaces/"+list[0].ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodGet, "/v1/binaries/missing/workspaces", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewRouter_LogsRequests(t *testing.T) {
	store, err := db.OpenBadger(db.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	router := NewRouter(NewHandlers(vault.New(store, nil), logger), logger)

	w := do(t, router, http.MethodGet, "/v1/workspaces/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry), logs.String())
	assert.Equal(t, "request", entry["msg"])
	assert.Equal(t, "/v1/workspaces/missing", entry["path"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
}
