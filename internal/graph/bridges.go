package graph

import "sort"

// CutVertex is an address whose removal splits its component of the ref graph
type CutVertex struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Neighbours int    `json:"neighbours"`
}

// BridgeLink is a ref whose removal splits its component
type BridgeLink struct {
	FromID    string `json:"from_id"`
	ToID      string `json:"to_id"`
	FromLabel string `json:"from_label"`
	ToLabel   string `json:"to_label"`
}

// SegmentCoupling counts refs running between two segments
type SegmentCoupling struct {
	SegmentA string `json:"segment_a"`
	SegmentB string `json:"segment_b"`
	Links    int    `json:"links"`
}

// BridgeReport contains cut vertices, bridge links and weakly coupled segment pairs
type BridgeReport struct {
	CutVertices  []CutVertex       `json:"cut_vertices"`
	Bridges      []BridgeLink      `json:"bridges"`
	WeakCoupling []SegmentCoupling `json:"weak_coupling"`
	CutCount     int               `json:"cut_count"`
	BridgeCount  int               `json:"bridge_count"`
}

// ComputeBridges runs an iterative Tarjan walk over the undirected ref graph and
// counts cross-segment refs. Segment pairs joined by at most weakLinks refs are
// reported as weakly coupled.
func ComputeBridges(snap *Snapshot, weakLinks int) *BridgeReport {
	if len(snap.Vertices) == 0 {
		return &BridgeReport{}
	}

	ids := snap.IDs()
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	n := len(ids)

	// Deduplicated undirected adjacency; self refs carry no structure.
	type pair struct{ u, v int }
	adj := make([][]int, n)
	seen := make(map[pair]bool)
	for _, l := range snap.Links {
		u, v := index[l.From], index[l.To]
		if u == v {
			continue
		}
		k := pair{min(u, v), max(u, v)}
		if seen[k] {
			continue
		}
		seen[k] = true
		adj[u] = append(adj[u], v)
		adj[v] = append(adj[v], u)
	}

	const none = -1
	disc := make([]int, n)
	low := make([]int, n)
	cut := make([]bool, n)
	var bridges []pair
	clock := 0

	type frame struct{ v, parent, next int }
	for root := 0; root < n; root++ {
		if disc[root] != 0 {
			continue
		}
		clock++
		disc[root], low[root] = clock, clock
		stack := []frame{{root, none, 0}}
		children := 0

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(adj[top.v]) {
				w := adj[top.v][top.next]
				top.next++
				switch {
				case w == top.parent:
				case disc[w] != 0:
					low[top.v] = min(low[top.v], disc[w])
				default:
					clock++
					disc[w], low[w] = clock, clock
					if top.v == root {
						children++
					}
					stack = append(stack, frame{w, top.v, 0})
				}
				continue
			}

			v := top.v
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				break
			}
			p := stack[len(stack)-1].v
			low[p] = min(low[p], low[v])
			if low[v] > disc[p] {
				bridges = append(bridges, pair{p, v})
			}
			if p != root && low[v] >= disc[p] {
				cut[p] = true
			}
		}
		if children >= 2 {
			cut[root] = true
		}
	}

	report := &BridgeReport{}
	for i, isCut := range cut {
		if !isCut {
			continue
		}
		v := snap.Vertices[ids[i]]
		report.CutVertices = append(report.CutVertices, CutVertex{ID: v.ID, Label: v.Label(), Neighbours: len(adj[i])})
	}
	for _, b := range bridges {
		from, to := snap.Vertices[ids[b.u]], snap.Vertices[ids[b.v]]
		report.Bridges = append(report.Bridges, BridgeLink{
			FromID: from.ID, ToID: to.ID, FromLabel: from.Label(), ToLabel: to.Label(),
		})
	}

	type segments struct{ a, b string }
	counts := make(map[segments]int)
	for _, l := range snap.Links {
		ra, rb := snap.Regions[l.From], snap.Regions[l.To]
		if ra == rb {
			continue
		}
		if ra > rb {
			ra, rb = rb, ra
		}
		counts[segments{ra, rb}]++
	}
	for k, c := range counts {
		if c <= weakLinks {
			report.WeakCoupling = append(report.WeakCoupling, SegmentCoupling{SegmentA: k.a, SegmentB: k.b, Links: c})
		}
	}
	sort.Slice(report.WeakCoupling, func(i, j int) bool {
		a, b := report.WeakCoupling[i], report.WeakCoupling[j]
		if a.Links != b.Links {
			return a.Links < b.Links
		}
		if a.SegmentA != b.SegmentA {
			return a.SegmentA < b.SegmentA
		}
		return a.SegmentB < b.SegmentB
	})

	report.CutCount = len(report.CutVertices)
	report.BridgeCount = len(report.Bridges)
	return report
}
