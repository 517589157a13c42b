package graph

import "sort"

// Hub is a heavily referenced address
type Hub struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Degree    int    `json:"degree"`
	InDegree  int    `json:"in_degree"`
	OutDegree int    `json:"out_degree"`
}

// DegreeBucket is one bucket in the degree histogram
type DegreeBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// TopologyReport contains topology analysis results
type TopologyReport struct {
	TotalNodes        int            `json:"total_nodes"`
	DefinedNodes      int            `json:"defined_nodes"`
	TotalEdges        int            `json:"total_edges"`
	NumComponents     int            `json:"num_components"`
	LargestComponent  int            `json:"largest_component"`
	SmallestComponent int            `json:"smallest_component"`
	OrphanCount       int            `json:"orphan_count"`
	OrphanIDs         []string       `json:"orphan_ids"`
	DegreeHistogram   []DegreeBucket `json:"degree_histogram"`
	Hubs              []Hub          `json:"hubs"`
}

// ComputeTopology analyzes the ref graph: components, orphans, degree distribution
// and hubs. A hub has more than hubThreshold xrefs; hubs are ordered by xref count.
func ComputeTopology(snap *Snapshot, hubThreshold, topN int) *TopologyReport {
	total := len(snap.Vertices)
	if total == 0 {
		return &TopologyReport{DegreeHistogram: defaultHistogram()}
	}

	ids := snap.IDs()
	uf := NewUnionFind(ids)
	for _, l := range snap.Links {
		uf.Union(l.From, l.To)
	}

	components := uf.Components()
	largest, smallest := 0, total
	for _, c := range components {
		largest = max(largest, len(c))
		smallest = min(smallest, len(c))
	}

	// Orphans: defined nodes with no refs and no xrefs
	defined := 0
	var orphans []string
	for _, id := range ids {
		if !snap.Vertices[id].Defined {
			continue
		}
		defined++
		if len(snap.Adj[id]) == 0 {
			orphans = append(orphans, id)
		}
	}
	orphanCount := len(orphans)
	if len(orphans) > topN {
		orphans = orphans[:topN]
	}

	buckets := [7]int{}
	for _, id := range ids {
		buckets[degreeBucket(len(snap.Adj[id]))]++
	}
	histogram := defaultHistogram()
	for i := range histogram {
		histogram[i].Count = buckets[i]
	}

	var hubs []Hub
	for _, id := range ids {
		in := len(snap.InAdj[id])
		if in > hubThreshold {
			hubs = append(hubs, Hub{
				ID:        id,
				Label:     snap.Vertices[id].Label(),
				Degree:    len(snap.Adj[id]),
				InDegree:  in,
				OutDegree: len(snap.OutAdj[id]),
			})
		}
	}
	sort.SliceStable(hubs, func(i, j int) bool { return hubs[i].InDegree > hubs[j].InDegree })
	if len(hubs) > topN {
		hubs = hubs[:topN]
	}

	return &TopologyReport{
		TotalNodes:        total,
		DefinedNodes:      defined,
		TotalEdges:        len(snap.Links),
		NumComponents:     len(components),
		LargestComponent:  largest,
		SmallestComponent: smallest,
		OrphanCount:       orphanCount,
		OrphanIDs:         orphans,
		DegreeHistogram:   histogram,
		Hubs:              hubs,
	}
}

func defaultHistogram() []DegreeBucket {
	return []DegreeBucket{
		{Label: "0"}, {Label: "1"}, {Label: "2-3"},
		{Label: "4-7"}, {Label: "8-15"}, {Label: "16-31"}, {Label: "32+"},
	}
}

func degreeBucket(degree int) int {
	switch {
	case degree == 0:
		return 0
	case degree == 1:
		return 1
	case degree <= 3:
		return 2
	case degree <= 7:
		return 3
	case degree <= 15:
		return 4
	case degree <= 31:
		return 5
	default:
		return 6
	}
}
