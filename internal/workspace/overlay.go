package workspace

import (
	"fmt"
	"maps"
	"slices"
	"sort"
)

const undefinedType = "undefined"

// nodeCovering returns the defined node whose footprint includes address.
func (s *Segment) nodeCovering(address int64) (*Node, bool) {
	base, ok := s.cover[address]
	if !ok {
		return nil, false
	}
	n, ok := s.nodes[base]
	return n, ok
}

// checkFootprint reports ErrOutOfRange unless n lies entirely inside the segment.
func (s *Segment) checkFootprint(n *Node) error {
	if n.Length < 1 || n.Address < s.Address || n.Length > s.End()-n.Address {
		return fmt.Errorf("%w: the node goes outside the segment's memory space (node at 0x%x with length %d, segment %q goes from 0x%x to 0x%x)",
			ErrOutOfRange, n.Address, n.Length, s.Name, s.Address, s.End())
	}
	return nil
}

// stamp records rev as the last-modified revision of address.
func (s *Segment) stamp(address, rev int64) {
	s.meta[address] = rev
	if rev > s.Revision {
		s.Revision = rev
	}
}

// store places n at its base address and claims every address it covers.
// The footprint must already be clear.
func (s *Segment) store(n *Node, rev int64) {
	s.nodes[n.Address] = n
	for a := n.Address; a < n.End(); a++ {
		s.cover[a] = n.Address
		s.stamp(a, rev)
	}
}

// clear frees every address covered by n.
func (s *Segment) clear(n *Node, rev int64) {
	delete(s.nodes, n.Address)
	for a := n.Address; a < n.End(); a++ {
		delete(s.cover, a)
		s.stamp(a, rev)
	}
}

// revisionOver returns the newest revision stamped on [address, address+length),
// defaulting to the segment's start revision.
func (s *Segment) revisionOver(address, length int64) int64 {
	rev := s.StartRevision
	for a := address; a < address+length; a++ {
		if r, ok := s.meta[a]; ok && r > rev {
			rev = r
		}
	}
	return rev
}

// bases returns the base addresses of defined nodes in ascending order.
func (s *Segment) bases() []int64 {
	out := make([]int64, 0, len(s.nodes))
	for a := range s.nodes {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// undefinedValue formats the display value of an undefined byte.
func undefinedValue(b byte) string {
	if b >= 0x20 && b < 0x7f {
		return fmt.Sprintf("<undefined> 0x%02x ; '%c'", b, b)
	}
	return fmt.Sprintf("<undefined> 0x%02x", b)
}

// view returns the node at address (real or synthesized) merged with refs, xrefs and revision.
func (s *Segment) view(address int64, g *ReferenceGraph) (NodeView, error) {
	if !s.Contains(address) {
		return NodeView{}, fmt.Errorf("%w: address 0x%x is outside segment %q (0x%x-0x%x)",
			ErrOutOfRange, address, s.Name, s.Address, s.End())
	}

	var v NodeView
	if n, ok := s.nodeCovering(address); ok {
		v = NodeView{
			Type:    n.Type,
			Address: n.Address,
			Length:  n.Length,
			Value:   n.Value,
			Details: maps.Clone(n.Details),
		}
	} else {
		v = NodeView{
			Type:    undefinedType,
			Address: address,
			Length:  1,
			Value:   undefinedValue(s.Data[address-s.Address]),
		}
	}
	if v.Details == nil {
		v.Details = map[string]any{}
	}

	offset := v.Address - s.Address
	v.Raw = slices.Clone(s.Data[offset : offset+v.Length])
	v.Refs = g.RefsOf(s.Name, v.Address)
	v.Xrefs = g.XrefsTo(v.Address, v.Length)
	v.Revision = s.revisionOver(v.Address, v.Length)
	return v, nil
}

// nodesSince scans the segment and returns every node whose revision exceeds since.
func (s *Segment) nodesSince(since int64, g *ReferenceGraph) []NodeView {
	var out []NodeView
	for a := s.Address; a < s.End(); {
		v, err := s.view(a, g)
		if err != nil {
			break
		}
		if v.Revision > since {
			out = append(out, v)
		}
		a = v.Address + v.Length
	}
	return out
}
