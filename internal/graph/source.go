package graph

import (
	"sort"

	"h2gb/engine/internal/workspace"
)

// FromWorkspace builds a Snapshot of a workspace's defined nodes and refs. Ref
// targets not covered by a defined node become undefined vertices in their
// segment, or unmapped vertices when no segment contains them.
func FromWorkspace(ws *workspace.Workspace) *Snapshot {
	segments := ws.Segments(-1) // ordered by address

	var vertices []*Vertex
	known := make(map[string]bool)
	for _, loc := range ws.DefinedNodes() {
		v := &Vertex{
			ID:      VertexID(loc.Segment, loc.Node.Address),
			Segment: loc.Segment,
			Address: loc.Node.Address,
			Length:  loc.Node.Length,
			Type:    loc.Node.Type,
			Value:   loc.Node.Value,
			Defined: true,
		}
		if view, err := ws.NodeAt(loc.Segment, loc.Node.Address); err == nil {
			v.Revision = view.Revision
		}
		vertices = append(vertices, v)
		known[v.ID] = true
	}

	var links []Link
	for _, e := range ws.References() {
		target := resolve(ws, segments, e.To.Address)
		if !known[target.ID] {
			vertices = append(vertices, target)
			known[target.ID] = true
		}
		links = append(links, Link{
			From: VertexID(e.Segment, e.From),
			To:   target.ID,
			Kind: e.To.Kind,
		})
	}

	return NewSnapshot(vertices, links, ws.Revision())
}

// resolve returns the vertex a ref to address lands on.
func resolve(ws *workspace.Workspace, segments []workspace.SegmentView, address int64) *Vertex {
	i := sort.Search(len(segments), func(i int) bool {
		return segments[i].Address+segments[i].Length > address
	})
	if i == len(segments) || segments[i].Address > address {
		return &Vertex{ID: VertexID("", address), Address: address, Length: 1, Type: Unmapped}
	}

	seg := segments[i]
	view, err := ws.NodeAt(seg.Name, address)
	if err != nil {
		return &Vertex{ID: VertexID("", address), Address: address, Length: 1, Type: Unmapped}
	}
	return &Vertex{
		ID:       VertexID(seg.Name, view.Address),
		Segment:  seg.Name,
		Address:  view.Address,
		Length:   view.Length,
		Type:     view.Type,
		Value:    view.Value,
		Revision: view.Revision,
	}
}
