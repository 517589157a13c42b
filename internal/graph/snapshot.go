package graph

import (
	"fmt"
	"sort"
)

// Unmapped is the region of a ref target that lies outside every segment.
const Unmapped = "unmapped"

// Vertex is one address in the reference graph: a defined node, or a ref
// target that no defined node covers
type Vertex struct {
	ID       string `json:"id"`
	Segment  string `json:"segment,omitempty"`
	Address  int64  `json:"address"`
	Length   int64  `json:"length"`
	Type     string `json:"type"`
	Value    string `json:"value,omitempty"`
	Revision int64  `json:"revision"`
	Defined  bool   `json:"defined"`
}

// Label is a short human readable description of the vertex.
func (v *Vertex) Label() string {
	if v.Value != "" {
		return v.Value
	}
	return v.Type
}

// Link is a directed ref from one vertex to another
type Link struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind,omitempty"`
}

// Snapshot holds a reference graph with precomputed adjacency lists and regions
type Snapshot struct {
	Vertices map[string]*Vertex
	Links    []Link
	Adj      map[string][]string // undirected
	OutAdj   map[string][]string // directed: from -> targets
	InAdj    map[string][]string // directed: target -> sources
	Regions  map[string]string   // vertex id -> owning segment
	Revision int64               // workspace revision the snapshot was taken at
}

// VertexID names the vertex at address in segment. An empty segment means unmapped.
func VertexID(segment string, address int64) string {
	if segment == "" {
		return fmt.Sprintf("0x%x", address)
	}
	return fmt.Sprintf("%s:0x%x", segment, address)
}

// NewSnapshot builds a Snapshot from vertices and links. Links whose endpoints
// are not among the vertices are dropped.
func NewSnapshot(vertices []*Vertex, links []Link, revision int64) *Snapshot {
	byID := make(map[string]*Vertex, len(vertices))
	adj := make(map[string][]string)
	outAdj := make(map[string][]string)
	inAdj := make(map[string][]string)
	regions := make(map[string]string, len(vertices))

	for _, v := range vertices {
		byID[v.ID] = v
		adj[v.ID] = nil // ensure entry exists
		outAdj[v.ID] = nil
		inAdj[v.ID] = nil
		regions[v.ID] = v.Segment
		if v.Segment == "" {
			regions[v.ID] = Unmapped
		}
	}

	var kept []Link
	for _, l := range links {
		if _, ok := byID[l.From]; !ok {
			continue
		}
		if _, ok := byID[l.To]; !ok {
			continue
		}
		kept = append(kept, l)
		adj[l.From] = append(adj[l.From], l.To)
		adj[l.To] = append(adj[l.To], l.From)
		outAdj[l.From] = append(outAdj[l.From], l.To)
		inAdj[l.To] = append(inAdj[l.To], l.From)
	}

	return &Snapshot{
		Vertices: byID,
		Links:    kept,
		Adj:      adj,
		OutAdj:   outAdj,
		InAdj:    inAdj,
		Regions:  regions,
		Revision: revision,
	}
}

// FilterToSegment returns a new snapshot holding only the vertices of one segment
// and the links between them.
func (s *Snapshot) FilterToSegment(segment string) *Snapshot {
	var vertices []*Vertex
	for _, id := range s.IDs() {
		if s.Regions[id] == segment {
			vertices = append(vertices, s.Vertices[id])
		}
	}
	return NewSnapshot(vertices, s.Links, s.Revision)
}

// IDs returns every vertex id ordered by region then address (for deterministic output)
func (s *Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Vertices))
	for id := range s.Vertices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.Vertices[ids[i]], s.Vertices[ids[j]]
		if s.Regions[a.ID] != s.Regions[b.ID] {
			return s.Regions[a.ID] < s.Regions[b.ID]
		}
		if a.Address != b.Address {
			return a.Address < b.Address
		}
		return a.ID < b.ID
	})
	return ids
}
