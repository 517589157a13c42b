package db

// Binary represents a row in the binaries table
type Binary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Comment   string `json:"comment,omitempty"`
	Format    string `json:"format"` // "ELF", "PE", "raw"
	Size      int64  `json:"size"`
	CreatedAt int64  `json:"created_at"` // Unix millis
	Data      []byte `json:"-"`
}

// WorkspaceRecord represents a row in the workspaces table. State is the opaque
// serialized workspace bundle.
type WorkspaceRecord struct {
	ID        string `json:"id"`
	BinaryID  string `json:"binary_id"`
	Name      string `json:"name"`
	Revision  int64  `json:"revision"`
	CreatedAt int64  `json:"created_at"` // Unix millis
	UpdatedAt int64  `json:"updated_at"` // Unix millis
	State     []byte `json:"-"`
}
