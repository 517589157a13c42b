package workspace

import (
	"math"
	"slices"
	"sort"
)

// ReferenceGraph holds forward refs keyed by (segment, from address) and the
// derived xref index keyed by target address.
type ReferenceGraph struct {
	refs     map[string]map[int64][]Ref
	xrefs    map[int64][]Xref
	segments *SegmentStore
}

func newReferenceGraph(segments *SegmentStore) *ReferenceGraph {
	return &ReferenceGraph{
		refs:     make(map[string]map[int64][]Ref),
		xrefs:    make(map[int64][]Xref),
		segments: segments,
	}
}

// add appends targets to the refs of (segment, from) and indexes each as an xref.
// Every target address's owning segment is stamped with rev. Targets are not
// required to lie in any live segment.
func (g *ReferenceGraph) add(segment string, from int64, targets []Ref, rev int64) {
	if len(targets) == 0 {
		return
	}
	bySegment := g.refs[segment]
	if bySegment == nil {
		bySegment = make(map[int64][]Ref)
		g.refs[segment] = bySegment
	}
	bySegment[from] = append(bySegment[from], targets...)

	for _, t := range targets {
		g.xrefs[t.Address] = append(g.xrefs[t.Address], Xref{Segment: segment, Address: from})
		g.touch(t.Address, rev)
	}
}

// remove drops the refs of (segment, from) and one matching xref per target.
func (g *ReferenceGraph) remove(segment string, from int64, rev int64) []Ref {
	bySegment := g.refs[segment]
	targets, ok := bySegment[from]
	if !ok {
		return nil
	}
	delete(bySegment, from)
	if len(bySegment) == 0 {
		delete(g.refs, segment)
	}

	want := Xref{Segment: segment, Address: from}
	for _, t := range targets {
		list := g.xrefs[t.Address]
		if i := slices.Index(list, want); i >= 0 {
			list = slices.Delete(list, i, i+1)
		}
		if len(list) == 0 {
			delete(g.xrefs, t.Address)
		} else {
			g.xrefs[t.Address] = list
		}
		g.touch(t.Address, rev)
	}
	return targets
}

func (g *ReferenceGraph) touch(address, rev int64) {
	g.segments.EachAt(address, func(s *Segment) {
		s.stamp(address, rev)
	})
}

// RefsOf returns a copy of the refs registered from (segment, address).
func (g *ReferenceGraph) RefsOf(segment string, address int64) []Ref {
	out := slices.Clone(g.refs[segment][address])
	if out == nil {
		out = []Ref{}
	}
	return out
}

// XrefsTo unions the xrefs of every address in [address, address+length),
// sorted by source address. A range wider than the index is answered from the
// index keys.
func (g *ReferenceGraph) XrefsTo(address, length int64) []Xref {
	out := []Xref{}
	if length < 1 {
		return out
	}
	if length > int64(len(g.xrefs)) {
		for a, list := range g.xrefs {
			if inRange(a, address, length) {
				out = append(out, list...)
			}
		}
	} else {
		for i := int64(0); i < length && address <= math.MaxInt64-i; i++ {
			out = append(out, g.xrefs[address+i]...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Address != out[j].Address {
			return out[i].Address < out[j].Address
		}
		return out[i].Segment < out[j].Segment
	})
	return out
}

// inRange reports whether a lies in [address, address+length) without
// computing the end address.
func inRange(a, address, length int64) bool {
	return a >= address && uint64(a-address) < uint64(length)
}

// Edge is one forward reference.
type Edge struct {
	Segment string `json:"segment"`
	From    int64  `json:"from"`
	To      Ref    `json:"to"`
}

// Edges returns every forward reference, ordered by segment then source address.
func (g *ReferenceGraph) Edges() []Edge {
	var out []Edge
	for segment, bySegment := range g.refs {
		for from, targets := range bySegment {
			for _, t := range targets {
				out = append(out, Edge{Segment: segment, From: from, To: t})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Segment != out[j].Segment {
			return out[i].Segment < out[j].Segment
		}
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To.Address < out[j].To.Address
	})
	return out
}
