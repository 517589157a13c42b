package workspace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Ref is a forward reference target descriptor
type Ref struct {
	Address int64  `json:"address" validate:"gte=0"`
	Kind    string `json:"kind,omitempty"` // "call", "jump", "data", ...
}

// UnmarshalJSON accepts either a bare target address or a {"address": ...} object.
func (r *Ref) UnmarshalJSON(b []byte) error {
	var addr int64
	if err := json.Unmarshal(b, &addr); err == nil {
		*r = Ref{Address: addr}
		return nil
	}

	var obj struct {
		Address *int64 `json:"address"`
		Kind    string `json:"kind"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("%w: ref must be an address or an object, got %s", ErrInvalidRefs, bytes.TrimSpace(b))
	}
	if obj.Address == nil {
		return fmt.Errorf("%w: ref is missing its address", ErrInvalidRefs)
	}
	*r = Ref{Address: *obj.Address, Kind: obj.Kind}
	return nil
}

// RefList is the refs attribute of a node request. A non-list value is rejected with ErrInvalidRefs.
type RefList []Ref

// UnmarshalJSON rejects anything that is not a JSON array (or null).
func (l *RefList) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		*l = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("%w: the 'refs' field, if specified, must be an array", ErrInvalidRefs)
	}
	out := make(RefList, len(raw))
	for i, item := range raw {
		if err := json.Unmarshal(item, &out[i]); err != nil {
			return err
		}
	}
	*l = out
	return nil
}

// Xref is one entry of the reverse reference index: the node that refers to an address.
type Xref struct {
	Segment string `json:"segment"`
	Address int64  `json:"address"`
}

// Node is a defined annotation over a contiguous range of a segment
type Node struct {
	Type    string         `json:"type"` // "byte", "word", "dword", "instruction", ...
	Address int64          `json:"address"`
	Length  int64          `json:"length"`
	Value   string         `json:"value"`
	Details map[string]any `json:"details,omitempty"`
	Refs    []Ref          `json:"refs,omitempty"`
}

// End returns the first address past the node's footprint.
func (n *Node) End() int64 {
	return n.Address + n.Length
}

func (n *Node) clone() *Node {
	c := *n
	c.Details = maps.Clone(n.Details)
	c.Refs = slices.Clone(n.Refs)
	return &c
}

// Mapping describes a segment's placement: its name, base address, bytes and details.
type Mapping struct {
	Name    string         `json:"name"`
	Address int64          `json:"address"`
	Data    []byte         `json:"data"` // base64 in JSON
	Details map[string]any `json:"details,omitempty"`
}

// SegmentSpec is a create_segments request element.
type SegmentSpec struct {
	Name    string         `json:"name" validate:"required"`
	Address *int64         `json:"address" validate:"required,gte=0"`
	Data    []byte         `json:"data" validate:"required,min=1"`
	Details map[string]any `json:"details,omitempty"`
}

// NewSegmentSpec builds a SegmentSpec with every required field set.
func NewSegmentSpec(name string, address int64, data []byte) SegmentSpec {
	return SegmentSpec{Name: name, Address: &address, Data: data}
}

func (s SegmentSpec) mapping() Mapping {
	return Mapping{
		Name:    s.Name,
		Address: *s.Address,
		Data:    s.Data,
		Details: maps.Clone(s.Details),
	}
}

// NodeSpec is a create_nodes request element.
type NodeSpec struct {
	Type    string         `json:"type" validate:"required"`
	Address *int64         `json:"address" validate:"required"`
	Length  *int64         `json:"length" validate:"required,gte=1"`
	Value   *string        `json:"value" validate:"required"`
	Details map[string]any `json:"details,omitempty"`
	Refs    RefList        `json:"refs,omitempty" validate:"omitempty,dive"`
}

// NewNodeSpec builds a NodeSpec with every required field set. Refs are plain target addresses.
func NewNodeSpec(typ string, address, length int64, value string, refs ...int64) NodeSpec {
	spec := NodeSpec{Type: typ, Address: &address, Length: &length, Value: &value}
	for _, r := range refs {
		spec.Refs = append(spec.Refs, Ref{Address: r})
	}
	return spec
}

func (s NodeSpec) node() *Node {
	return &Node{
		Type:    s.Type,
		Address: *s.Address,
		Length:  *s.Length,
		Value:   *s.Value,
		Details: maps.Clone(s.Details),
		Refs:    slices.Clone([]Ref(s.Refs)),
	}
}

// NodeView is a node as reported to clients: real or synthesized, merged with refs and revision.
type NodeView struct {
	Type     string         `json:"type"`
	Address  int64          `json:"address"`
	Length   int64          `json:"length"`
	Value    string         `json:"value"`
	Details  map[string]any `json:"details"`
	Raw      []byte         `json:"raw"`
	Refs     []Ref          `json:"refs"`
	Xrefs    []Xref         `json:"xrefs"`
	Revision int64          `json:"revision"`
}

// SegmentView is a segment as reported to clients.
type SegmentView struct {
	Name     string         `json:"name"`
	Address  int64          `json:"address"`
	Length   int64          `json:"length"`
	Revision int64          `json:"revision"`
	Details  map[string]any `json:"details,omitempty"`
	Data     []byte         `json:"data,omitempty"`
	Nodes    []NodeView     `json:"nodes,omitempty"`
}

// SnapshotOptions selects what StateSince includes.
type SnapshotOptions struct {
	WithData  bool     // include segment bytes
	WithNodes bool     // include node listings
	Names     []string // restrict to these segments; empty means all
}

// Snapshot is the revision-filtered externally visible state.
type Snapshot struct {
	Revision        int64             `json:"revision"`
	Segments        []SegmentView     `json:"segments"`
	DeletedSegments []string          `json:"deleted_segments,omitempty"`
	Properties      map[string]string `json:"properties,omitempty"`
}
