package workspace

import (
	"fmt"
	"math"
	"sort"
)

// Segment is a named, contiguous byte range mapped into the address space,
// together with its node overlay.
type Segment struct {
	Name          string
	Address       int64
	Data          []byte // immutable after creation
	Details       map[string]any
	Revision      int64 // highest revision of any mutation that touched the segment
	StartRevision int64 // revision at which the segment was created

	nodes map[int64]*Node // base address -> node
	cover map[int64]int64 // covered address -> base address
	meta  map[int64]int64 // address -> last-modified revision; absent means StartRevision
}

func newSegment(m Mapping, rev int64) *Segment {
	return &Segment{
		Name:          m.Name,
		Address:       m.Address,
		Data:          m.Data,
		Details:       m.Details,
		Revision:      rev,
		StartRevision: rev,
		nodes:         make(map[int64]*Node),
		cover:         make(map[int64]int64),
		meta:          make(map[int64]int64),
	}
}

// End returns the first address past the segment.
func (s *Segment) End() int64 {
	return s.Address + int64(len(s.Data))
}

// Contains reports whether address lies inside the segment.
func (s *Segment) Contains(address int64) bool {
	return address >= s.Address && address < s.End()
}

// Overlaps reports whether [address, address+length) intersects the segment.
func (s *Segment) Overlaps(address, length int64) bool {
	return address < s.End() && s.Address < address+length
}

// NodeCount returns the number of defined nodes in the segment.
func (s *Segment) NodeCount() int {
	return len(s.nodes)
}

func (s *Segment) mapping() Mapping {
	return Mapping{Name: s.Name, Address: s.Address, Data: s.Data, Details: s.Details}
}

// SegmentStore owns the name -> segment mapping and enforces non-overlap.
type SegmentStore struct {
	segments map[string]*Segment
	deleted  map[string]int64 // tombstones: name -> revision of deletion
}

func newSegmentStore() *SegmentStore {
	return &SegmentStore{
		segments: make(map[string]*Segment),
		deleted:  make(map[string]int64),
	}
}

// Find returns the live segment with the given name.
func (st *SegmentStore) Find(name string) (*Segment, bool) {
	s, ok := st.segments[name]
	return s, ok
}

// EachAt calls fn for every segment whose range contains address.
func (st *SegmentStore) EachAt(address int64, fn func(*Segment)) {
	for _, s := range st.segments {
		if s.Contains(address) {
			fn(s)
		}
	}
}

// Len returns the number of live segments.
func (st *SegmentStore) Len() int {
	return len(st.segments)
}

// Ordered returns live segments sorted by base address.
func (st *SegmentStore) Ordered() []*Segment {
	out := make([]*Segment, 0, len(st.segments))
	for _, s := range st.segments {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// checkCreate validates a mapping against the live segments plus any pending ones.
func (st *SegmentStore) checkCreate(m Mapping, pending []Mapping) error {
	if _, ok := st.segments[m.Name]; ok {
		return fmt.Errorf("%w: a segment with the name %q already exists", ErrDuplicateSegment, m.Name)
	}
	length := int64(len(m.Data))
	if m.Address < 0 || m.Address > math.MaxInt64-length {
		return fmt.Errorf("%w: %q at 0x%x with length %d does not fit the address space",
			ErrOutOfRange, m.Name, m.Address, length)
	}
	for _, s := range st.segments {
		if s.Overlaps(m.Address, length) {
			return fmt.Errorf("%w: %q (0x%x-0x%x) intersects %q (0x%x-0x%x)",
				ErrOverlap, m.Name, m.Address, m.Address+length, s.Name, s.Address, s.End())
		}
	}
	for _, p := range pending {
		if p.Name == m.Name {
			return fmt.Errorf("%w: the name %q appears twice in one request", ErrDuplicateSegment, m.Name)
		}
		if m.Address < p.Address+int64(len(p.Data)) && p.Address < m.Address+length {
			return fmt.Errorf("%w: %q intersects %q in the same request", ErrOverlap, m.Name, p.Name)
		}
	}
	return nil
}

func (st *SegmentStore) insert(s *Segment) {
	st.segments[s.Name] = s
	delete(st.deleted, s.Name)
}

// remove drops a segment that has no remaining nodes and leaves a tombstone.
func (st *SegmentStore) remove(name string, rev int64) (*Segment, error) {
	s, ok := st.segments[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSegmentNotFound, name)
	}
	if len(s.nodes) > 0 {
		return nil, fmt.Errorf("segment %q still holds %d nodes", name, len(s.nodes))
	}
	delete(st.segments, name)
	st.deleted[name] = rev
	return s, nil
}

// names returns the live segment names for error messages.
func (st *SegmentStore) names() []string {
	out := make([]string, 0, len(st.segments))
	for _, s := range st.Ordered() {
		out = append(out, s.Name)
	}
	return out
}
