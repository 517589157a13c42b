package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the workspace API with the router group.
//
// Binaries:
//
//	POST   /binaries                  - Upload a binary (base64 data)
//	GET    /binaries                  - List binaries
//	GET    /binaries/:id              - Get binary metadata
//	GET    /binaries/:id/info         - Parse the binary header and sections
//	DELETE /binaries/:id              - Delete a binary and its workspaces
//	POST   /binaries/:id/workspaces   - Create a workspace
//	GET    /binaries/:id/workspaces   - List workspaces of a binary
//
// Workspaces:
//
//	GET    /workspaces/:id                                 - Snapshot (since, with_data, with_nodes, names)
//	DELETE /workspaces/:id                                 - Delete a workspace
//	GET    /workspaces/:id/revision                        - Current revision
//	POST   /workspaces/:id/segments                        - Create segments
//	POST   /workspaces/:id/segments/delete                 - Delete segments by name
//	DELETE /workspaces/:id/segments                        - Delete every segment
//	GET    /workspaces/:id/segments/:segment/nodes         - Nodes changed since
//	GET    /workspaces/:id/segments/:segment/nodes/:address - Node covering an address
//	POST   /workspaces/:id/segments/:segment/nodes         - Create nodes
//	POST   /workspaces/:id/segments/:segment/nodes/delete  - Delete nodes
//	GET    /workspaces/:id/xrefs                           - Xrefs into a range
//	POST   /workspaces/:id/undo                            - Undo the last checkpoint
//	POST   /workspaces/:id/redo                            - Redo the last undone checkpoint
//	POST   /workspaces/:id/clear_undo_log                  - Empty the journal
//	GET    /workspaces/:id/history                         - Journal buffers
//	GET    /workspaces/:id/properties                      - Read properties
//	PUT    /workspaces/:id/properties                      - Set properties
//	DELETE /workspaces/:id/properties                      - Clear properties
//	GET    /workspaces/:id/analysis                        - Reference-graph analysis
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	rg.GET("/health", h.Health)

	binaries := rg.Group("/binaries")
	{
		binaries.POST("", h.UploadBinary)
		binaries.GET("", h.ListBinaries)
		binaries.GET("/:id", h.GetBinary)
		binaries.GET("/:id/info", h.BinaryInfo)
		binaries.DELETE("/:id", h.DeleteBinary)
		binaries.POST("/:id/workspaces", h.CreateWorkspace)
		binaries.GET("/:id/workspaces", h.ListWorkspaces)
	}

	ws := rg.Group("/workspaces/:id")
	{
		ws.GET("", h.GetWorkspace)
		ws.DELETE("", h.DeleteWorkspace)
		ws.GET("/revision", h.Revision)

		ws.POST("/segments", h.CreateSegments)
		ws.POST("/segments/delete", h.DeleteSegments)
		ws.DELETE("/segments", h.DeleteAllSegments)

		ws.GET("/segments/:segment/nodes", h.GetNodes)
		ws.GET("/segments/:segment/nodes/:address", h.NodeAt)
		ws.POST("/segments/:segment/nodes", h.CreateNodes)
		ws.POST("/segments/:segment/nodes/delete", h.DeleteNodes)
		ws.GET("/xrefs", h.Xrefs)

		ws.POST("/undo", h.Undo)
		ws.POST("/redo", h.Redo)
		ws.POST("/clear_undo_log", h.ClearUndoLog)
		ws.GET("/history", h.History)

		ws.GET("/properties", h.GetProperties)
		ws.PUT("/properties", h.SetProperties)
		ws.DELETE("/properties", h.ClearProperties)

		ws.GET("/analysis", h.Analyze)
	}
}

// NewRouter builds a gin engine with recovery, request logging and the API under /v1.
func NewRouter(h *Handlers, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))
	RegisterRoutes(r.Group("/v1"), h)
	return r
}

// RequestLogger logs one line per request through slog.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}
