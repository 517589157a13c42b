package graph

import "sort"

// StaleNode is a defined node that has not changed for a while but is referenced
// by recently changed nodes
type StaleNode struct {
	ID             string `json:"id"`
	Label          string `json:"label"`
	Revision       int64  `json:"revision"`
	Age            int64  `json:"age"` // revisions since last change
	RecentRefCount int    `json:"recent_reference_count"`
}

// StalenessReport contains staleness analysis results
type StalenessReport struct {
	StaleNodes     []StaleNode `json:"stale_nodes"`
	StaleNodeCount int         `json:"stale_node_count"`
}

// ComputeStaleness finds defined nodes at least staleAfter revisions old that
// are referenced from a node changed within the last staleAfter revisions.
func ComputeStaleness(snap *Snapshot, staleAfter int64) *StalenessReport {
	threshold := snap.Revision - staleAfter

	var stale []StaleNode
	for _, id := range snap.IDs() {
		v := snap.Vertices[id]
		if !v.Defined || v.Revision > threshold {
			continue
		}
		recent := 0
		for _, src := range snap.InAdj[id] {
			if snap.Vertices[src].Revision > threshold {
				recent++
			}
		}
		if recent == 0 {
			continue
		}
		stale = append(stale, StaleNode{
			ID:             id,
			Label:          v.Label(),
			Revision:       v.Revision,
			Age:            snap.Revision - v.Revision,
			RecentRefCount: recent,
		})
	}
	sort.SliceStable(stale, func(i, j int) bool { return stale[i].Age > stale[j].Age })

	return &StalenessReport{StaleNodes: stale, StaleNodeCount: len(stale)}
}
