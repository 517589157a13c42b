package graph

import (
	"testing"

	"h2gb/engine/internal/workspace"
)

// quickSnapshot builds a snapshot of defined vertices in one segment.
func quickSnapshot(ids []string, links [][2]string) *Snapshot {
	var vertices []*Vertex
	for i, id := range ids {
		vertices = append(vertices, &Vertex{
			ID: id, Segment: "s", Address: int64(i), Length: 1,
			Type: "byte", Value: "v" + id, Defined: true, Revision: 1,
		})
	}
	var ls []Link
	for _, l := range links {
		ls = append(ls, Link{From: l[0], To: l[1]})
	}
	return NewSnapshot(vertices, ls, 1)
}

// --- Topology Tests ---

func TestTopology_EmptyGraph(t *testing.T) {
	r := ComputeTopology(NewSnapshot(nil, nil, 0), 4, 10)
	if r.TotalNodes != 0 || r.TotalEdges != 0 || r.NumComponents != 0 {
		t.Errorf("empty graph should have all zeros, got nodes=%d edges=%d components=%d",
			r.TotalNodes, r.TotalEdges, r.NumComponents)
	}
	if len(r.DegreeHistogram) != 7 {
		t.Errorf("expected 7 histogram buckets, got %d", len(r.DegreeHistogram))
	}
}

func TestTopology_SingleComponent(t *testing.T) {
	snap := quickSnapshot(
		[]string{"A", "B", "C", "D", "E"},
		[][2]string{{"A", "B"}, {"B", "C"}, {"C", "D"}, {"D", "E"}},
	)
	r := ComputeTopology(snap, 4, 10)
	if r.NumComponents != 1 {
		t.Errorf("expected 1 component, got %d", r.NumComponents)
	}
	if r.LargestComponent != 5 {
		t.Errorf("expected largest=5, got %d", r.LargestComponent)
	}
	if r.OrphanCount != 0 {
		t.Errorf("expected 0 orphans, got %d", r.OrphanCount)
	}
}

func TestTopology_TwoComponents(t *testing.T) {
	snap := quickSnapshot(
		[]string{"A", "B", "C", "D", "E"},
		[][2]string{{"A", "B"}, {"B", "C"}, {"D", "E"}},
	)
	r := ComputeTopology(snap, 4, 10)
	if r.NumComponents != 2 {
		t.Errorf("expected 2 components, got %d", r.NumComponents)
	}
	if r.LargestComponent != 3 || r.SmallestComponent != 2 {
		t.Errorf("expected largest=3 smallest=2, got %d/%d", r.LargestComponent, r.SmallestComponent)
	}
}

func TestTopology_DanglingLinksDropped(t *testing.T) {
	snap := quickSnapshot([]string{"A"}, [][2]string{{"A", "missing"}})
	if len(snap.Links) != 0 {
		t.Errorf("link to an unknown vertex should be dropped, got %v", snap.Links)
	}
}

func TestOrphan_Detection(t *testing.T) {
	snap := quickSnapshot(
		[]string{"A", "B", "C"},
		[][2]string{{"A", "B"}},
	)
	r := ComputeTopology(snap, 4, 10)
	if r.OrphanCount != 1 {
		t.Fatalf("expected 1 orphan, got %d", r.OrphanCount)
	}
	if r.OrphanIDs[0] != "C" {
		t.Errorf("C should be the orphan, got %v", r.OrphanIDs)
	}
}

func TestHub_Detection(t *testing.T) {
	snap := quickSnapshot(
		[]string{"center", "s1", "s2", "s3", "s4", "s5"},
		[][2]string{{"s1", "center"}, {"s2", "center"}, {"s3", "center"}, {"s4", "center"}, {"s5", "center"}},
	)
	r := ComputeTopology(snap, 4, 10)
	if len(r.Hubs) != 1 {
		t.Fatalf("expected 1 hub, got %d", len(r.Hubs))
	}
	if r.Hubs[0].ID != "center" {
		t.Errorf("expected center as hub, got %s", r.Hubs[0].ID)
	}
	if r.Hubs[0].InDegree != 5 || r.Hubs[0].OutDegree != 0 {
		t.Errorf("expected in=5 out=0, got in=%d out=%d", r.Hubs[0].InDegree, r.Hubs[0].OutDegree)
	}
}

func TestHub_OutgoingRefsDoNotCount(t *testing.T) {
	snap := quickSnapshot(
		[]string{"caller", "a", "b", "c", "d", "e"},
		[][2]string{{"caller", "a"}, {"caller", "b"}, {"caller", "c"}, {"caller", "d"}, {"caller", "e"}},
	)
	if r := ComputeTopology(snap, 4, 10); len(r.Hubs) != 0 {
		t.Errorf("a node that only refers out is not a hub, got %v", r.Hubs)
	}
}

// --- UnionFind Tests ---

func TestUnionFind(t *testing.T) {
	uf := NewUnionFind([]int{1, 2, 3, 4})
	if !uf.Union(1, 2) {
		t.Error("1 and 2 were separate")
	}
	if uf.Union(2, 1) {
		t.Error("1 and 2 are already joined")
	}
	uf.Union(3, 4)
	uf.Union(1, 4)
	if uf.Size(3) != 4 {
		t.Errorf("expected one component of 4, got %d", uf.Size(3))
	}
	if len(uf.Components()) != 1 {
		t.Errorf("expected 1 component, got %d", len(uf.Components()))
	}
}

// --- Tarjan Tests ---

func TestTarjan_Bridge(t *testing.T) {
	snap := quickSnapshot(
		[]string{"A", "B", "C"},
		[][2]string{{"A", "B"}, {"B", "C"}},
	)
	r := ComputeBridges(snap, 2)
	if r.BridgeCount != 2 {
		t.Errorf("expected 2 bridges, got %d", r.BridgeCount)
	}
	if r.CutCount != 1 || r.CutVertices[0].ID != "B" {
		t.Errorf("B should be the only cut vertex, got %v", r.CutVertices)
	}
}

func TestTarjan_CycleNoBridges(t *testing.T) {
	snap := quickSnapshot(
		[]string{"A", "B", "C"},
		[][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}},
	)
	r := ComputeBridges(snap, 2)
	if r.BridgeCount != 0 {
		t.Errorf("triangle should have 0 bridges, got %d", r.BridgeCount)
	}
	if r.CutCount != 0 {
		t.Errorf("triangle should have 0 cut vertices, got %d", r.CutCount)
	}
}

func TestTarjan_TwoCyclesJoined(t *testing.T) {
	snap := quickSnapshot(
		[]string{"A", "B", "C", "D", "E", "F"},
		[][2]string{
			{"A", "B"}, {"B", "C"}, {"C", "A"},
			{"D", "E"}, {"E", "F"}, {"F", "D"},
			{"C", "D"},
		},
	)
	r := ComputeBridges(snap, 2)
	if r.BridgeCount != 1 {
		t.Errorf("expected 1 bridge (C-D), got %d", r.BridgeCount)
	}
	cut := make(map[string]bool)
	for _, c := range r.CutVertices {
		cut[c.ID] = true
	}
	if len(cut) != 2 || !cut["C"] || !cut["D"] {
		t.Errorf("C and D should be the cut vertices, got %v", cut)
	}
}

func TestTarjan_ParallelRefsAreOneEdge(t *testing.T) {
	snap := quickSnapshot([]string{"A", "B"}, [][2]string{{"A", "B"}, {"A", "B"}, {"B", "A"}})
	if r := ComputeBridges(snap, 2); r.BridgeCount != 1 {
		t.Errorf("expected 1 bridge, got %d", r.BridgeCount)
	}
}

func TestWeakCoupling(t *testing.T) {
	vertices := []*Vertex{
		{ID: "text:0x0", Segment: ".text", Defined: true},
		{ID: "text:0x4", Segment: ".text", Address: 4, Defined: true},
		{ID: "data:0x100", Segment: ".data", Address: 0x100, Defined: true},
	}
	links := []Link{
		{From: "text:0x0", To: "text:0x4"},
		{From: "text:0x4", To: "data:0x100"},
	}
	snap := NewSnapshot(vertices, links, 1)
	r := ComputeBridges(snap, 2)
	if len(r.WeakCoupling) != 1 {
		t.Fatalf("expected 1 weakly coupled pair, got %v", r.WeakCoupling)
	}
	c := r.WeakCoupling[0]
	if c.SegmentA != ".data" || c.SegmentB != ".text" || c.Links != 1 {
		t.Errorf("unexpected coupling %+v", c)
	}
}

// --- Staleness Tests ---

func TestStaleness(t *testing.T) {
	vertices := []*Vertex{
		{ID: "old", Defined: true, Revision: 2},
		{ID: "fresh", Defined: true, Revision: 95},
		{ID: "quiet", Defined: true, Revision: 3},
		{ID: "lonely", Defined: true, Revision: 1},
	}
	links := []Link{
		{From: "fresh", To: "old"},
		{From: "quiet", To: "lonely"},
	}
	r := ComputeStaleness(NewSnapshot(vertices, links, 100), 50)
	if r.StaleNodeCount != 1 {
		t.Fatalf("expected 1 stale node, got %v", r.StaleNodes)
	}
	s := r.StaleNodes[0]
	if s.ID != "old" || s.Age != 98 || s.RecentRefCount != 1 {
		t.Errorf("unexpected stale node %+v", s)
	}
}

// --- Health Tests ---

func TestHealthScore_Range(t *testing.T) {
	for _, snap := range []*Snapshot{
		quickSnapshot([]string{"A", "B", "C"}, nil),
		quickSnapshot([]string{"A", "B"}, [][2]string{{"A", "B"}}),
		NewSnapshot(nil, nil, 0),
	} {
		r := Analyze(snap, DefaultConfig())
		if r.HealthScore < 0 || r.HealthScore > 1 {
			t.Errorf("health out of range: %f", r.HealthScore)
		}
	}
}

func TestHealthScore_Perfect(t *testing.T) {
	snap := quickSnapshot(
		[]string{"A", "B", "C"},
		[][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}},
	)
	r := Analyze(snap, DefaultConfig())
	if r.HealthScore < 0.95 {
		t.Errorf("a triangle should have health ~1.0, got %f", r.HealthScore)
	}
}

// --- Workspace Tests ---

func buildWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws := workspace.New()
	err := ws.CreateSegments([]workspace.SegmentSpec{
		workspace.NewSegmentSpec(".text", 0x1000, make([]byte, 16)),
		workspace.NewSegmentSpec(".data", 0x2000, make([]byte, 8)),
	})
	if err != nil {
		t.Fatalf("creating segments: %v", err)
	}
	err = ws.CreateNodes(".text", []workspace.NodeSpec{
		workspace.NewNodeSpec("instruction", 0x1000, 4, "call 0x1008", 0x1008),
		workspace.NewNodeSpec("instruction", 0x1004, 4, "mov eax, [0x2002]", 0x2002),
		workspace.NewNodeSpec("instruction", 0x1008, 2, "ret"),
		workspace.NewNodeSpec("instruction", 0x100a, 2, "nop"),
		workspace.NewNodeSpec("instruction", 0x100c, 4, "jmp 0x9000", 0x9000),
	})
	if err != nil {
		t.Fatalf("creating nodes: %v", err)
	}
	if err := ws.CreateNodes(".data", []workspace.NodeSpec{workspace.NewNodeSpec("dword", 0x2000, 4, "dd 0")}); err != nil {
		t.Fatalf("creating data node: %v", err)
	}
	return ws
}

func TestFromWorkspace(t *testing.T) {
	snap := FromWorkspace(buildWorkspace(t))

	if len(snap.Vertices) != 7 {
		t.Fatalf("expected 6 defined vertices plus 1 unmapped, got %d: %v", len(snap.Vertices), snap.IDs())
	}
	if len(snap.Links) != 3 {
		t.Fatalf("expected 3 links, got %v", snap.Links)
	}

	// A ref into the middle of a defined node lands on that node.
	data := snap.Vertices[VertexID(".data", 0x2000)]
	if data == nil || len(snap.InAdj[data.ID]) != 1 {
		t.Errorf("dword at 0x2000 should have one xref, got %v", snap.InAdj)
	}

	unmapped := snap.Vertices[VertexID("", 0x9000)]
	if unmapped == nil || unmapped.Defined || snap.Regions[unmapped.ID] != Unmapped {
		t.Errorf("0x9000 should be an unmapped vertex, got %+v", unmapped)
	}

	r := ComputeTopology(snap, 0, 10)
	if r.DefinedNodes != 6 {
		t.Errorf("expected 6 defined nodes, got %d", r.DefinedNodes)
	}
	if r.OrphanCount != 1 || r.OrphanIDs[0] != VertexID(".text", 0x100a) {
		t.Errorf("nop should be the only orphan, got %v", r.OrphanIDs)
	}
}

func TestFromWorkspace_UndefinedTarget(t *testing.T) {
	ws := workspace.New()
	if err := ws.CreateSegments([]workspace.SegmentSpec{workspace.NewSegmentSpec("s", 0, make([]byte, 8))}); err != nil {
		t.Fatal(err)
	}
	if err := ws.CreateNodes("s", []workspace.NodeSpec{workspace.NewNodeSpec("word", 0, 2, "dw", 6)}); err != nil {
		t.Fatal(err)
	}

	snap := FromWorkspace(ws)
	target := snap.Vertices[VertexID("s", 6)]
	if target == nil || target.Defined || target.Type != "undefined" {
		t.Fatalf("expected an undefined vertex at s:0x6, got %+v", target)
	}
	if snap.Revision != ws.Revision() {
		t.Errorf("snapshot revision %d, workspace %d", snap.Revision, ws.Revision())
	}
}

func TestFilterToSegment(t *testing.T) {
	snap := FromWorkspace(buildWorkspace(t)).FilterToSegment(".text")
	if len(snap.Vertices) != 5 {
		t.Errorf("expected 5 .text vertices, got %v", snap.IDs())
	}
	if len(snap.Links) != 1 {
		t.Errorf("only the call stays inside .text, got %v", snap.Links)
	}
}
