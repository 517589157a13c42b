package api

import "h2gb/engine/internal/workspace"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	// Error is the stable error code, e.g. "overlap" or "not_found".
	Error string `json:"error"`

	// Reason is the human-readable message.
	Reason string `json:"reason"`
}

// UploadBinaryRequest uploads a binary. Data is base64 in JSON.
type UploadBinaryRequest struct {
	Name    string `json:"name" binding:"required"`
	Comment string `json:"comment"`
	Data    []byte `json:"data"`
}

// CreateWorkspaceRequest creates a workspace over a binary.
type CreateWorkspaceRequest struct {
	Name           string `json:"name" binding:"required"`
	ImportSegments bool   `json:"import_segments"`
}

// CreateSegmentsRequest maps new segments.
type CreateSegmentsRequest struct {
	Segments []workspace.SegmentSpec `json:"segments"`
}

// DeleteSegmentsRequest removes segments by name.
type DeleteSegmentsRequest struct {
	Names []string `json:"names"`
}

// CreateNodesRequest defines nodes in the segment named by the path.
type CreateNodesRequest struct {
	Nodes []workspace.NodeSpec `json:"nodes"`
}

// DeleteNodesRequest undefines the nodes covering each address.
type DeleteNodesRequest struct {
	Addresses []int64 `json:"addresses"`
}

// RevisionResponse reports a workspace's current revision.
type RevisionResponse struct {
	Revision int64 `json:"revision"`
}
