package workspace

import (
	"encoding/json"
	"fmt"
	"maps"
	"sort"
)

// State is the serializable bundle of a workspace.
type State struct {
	Revision           int64             `json:"revision"`
	Segments           []SegmentState    `json:"segments"`
	Refs               []RefState        `json:"refs"`
	Xrefs              []XrefState       `json:"xrefs"`
	UndoBuffer         []Entry           `json:"undo_buffer"`
	RedoBuffer         []Entry           `json:"redo_buffer"`
	Properties         map[string]string `json:"properties,omitempty"`
	PropertiesRevision int64             `json:"properties_revision,omitempty"`
	Deleted            map[string]int64  `json:"deleted,omitempty"`
}

// SegmentState is one segment with its defined nodes and per-address metadata.
type SegmentState struct {
	Mapping
	Revision      int64           `json:"revision"`
	StartRevision int64           `json:"start_revision"`
	Nodes         []*Node         `json:"nodes"`
	Meta          map[int64]int64 `json:"nodes_meta"`
}

// RefState is the forward refs of one source address.
type RefState struct {
	Segment string `json:"segment"`
	Address int64  `json:"address"`
	Targets []Ref  `json:"targets"`
}

// XrefState is the xrefs into one target address.
type XrefState struct {
	Address int64  `json:"address"`
	Sources []Xref `json:"sources"`
}

// Export returns a copy of the full state. Nodes and segment bytes are shared;
// both are immutable once stored.
func (w *Workspace) Export() *State {
	st := &State{
		Revision:           w.clock.Current(),
		Segments:           []SegmentState{},
		Refs:               []RefState{},
		Xrefs:              []XrefState{},
		UndoBuffer:         append([]Entry{}, w.journal.undo...),
		RedoBuffer:         append([]Entry{}, w.journal.redo...),
		Properties:         maps.Clone(w.properties),
		PropertiesRevision: w.propertiesRevision,
		Deleted:            maps.Clone(w.segments.deleted),
	}

	for _, s := range w.segments.Ordered() {
		ss := SegmentState{
			Mapping:       s.mapping(),
			Revision:      s.Revision,
			StartRevision: s.StartRevision,
			Nodes:         make([]*Node, 0, len(s.nodes)),
			Meta:          maps.Clone(s.meta),
		}
		for _, base := range s.bases() {
			ss.Nodes = append(ss.Nodes, s.nodes[base])
		}
		st.Segments = append(st.Segments, ss)
	}

	for segment, bySegment := range w.graph.refs {
		for from, targets := range bySegment {
			st.Refs = append(st.Refs, RefState{Segment: segment, Address: from, Targets: append([]Ref{}, targets...)})
		}
	}
	sort.Slice(st.Refs, func(i, j int) bool {
		if st.Refs[i].Segment != st.Refs[j].Segment {
			return st.Refs[i].Segment < st.Refs[j].Segment
		}
		return st.Refs[i].Address < st.Refs[j].Address
	})

	for to, sources := range w.graph.xrefs {
		st.Xrefs = append(st.Xrefs, XrefState{Address: to, Sources: append([]Xref{}, sources...)})
	}
	sort.Slice(st.Xrefs, func(i, j int) bool { return st.Xrefs[i].Address < st.Xrefs[j].Address })

	return st
}

// Load reconstructs a workspace from a state bundle. Its starting revision is
// the bundle's revision.
func Load(st *State, opts ...Option) (*Workspace, error) {
	w := New(opts...)
	if st == nil {
		return w, nil
	}
	if err := w.restore(st); err != nil {
		return nil, err
	}
	w.startingRevision = st.Revision
	return w, nil
}

// restore replaces the workspace contents with st, checking the structural invariants.
func (w *Workspace) restore(st *State) error {
	w.reset()

	for _, ss := range st.Segments {
		if err := w.segments.checkCreate(ss.Mapping, nil); err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
		s := newSegment(ss.Mapping, ss.StartRevision)
		s.Revision = ss.Revision
		if ss.Meta != nil {
			s.meta = maps.Clone(ss.Meta)
		}
		for _, n := range ss.Nodes {
			if n == nil {
				return fmt.Errorf("%w: nil node in segment %q", ErrCorruptState, ss.Name)
			}
			if err := s.checkFootprint(n); err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptState, err)
			}
			for a := n.Address; a < n.End(); a++ {
				if _, taken := s.cover[a]; taken {
					return fmt.Errorf("%w: nodes overlap at 0x%x in segment %q", ErrCorruptState, a, ss.Name)
				}
			}
			s.nodes[n.Address] = n
			for a := n.Address; a < n.End(); a++ {
				s.cover[a] = n.Address
			}
		}
		w.segments.insert(s)
	}
	for name, rev := range st.Deleted {
		if _, live := w.segments.Find(name); !live {
			w.segments.deleted[name] = rev
		}
	}

	for _, r := range st.Refs {
		bySegment := w.graph.refs[r.Segment]
		if bySegment == nil {
			bySegment = make(map[int64][]Ref)
			w.graph.refs[r.Segment] = bySegment
		}
		bySegment[r.Address] = append(bySegment[r.Address], r.Targets...)
		for _, t := range r.Targets {
			w.graph.xrefs[t.Address] = append(w.graph.xrefs[t.Address], Xref{Segment: r.Segment, Address: r.Address})
		}
	}
	if st.Xrefs != nil {
		if err := w.checkXrefs(st.Xrefs); err != nil {
			return err
		}
	}

	w.clock = RevisionClock{current: st.Revision}
	w.journal = Journal{
		undo: append([]Entry(nil), st.UndoBuffer...),
		redo: append([]Entry(nil), st.RedoBuffer...),
	}
	if st.Properties != nil {
		w.properties = maps.Clone(st.Properties)
	}
	w.propertiesRevision = st.PropertiesRevision
	return nil
}

// checkXrefs verifies a stored xref index matches the one derived from refs.
func (w *Workspace) checkXrefs(stored []XrefState) error {
	type key struct {
		to   int64
		from Xref
	}
	diff := make(map[key]int)
	for to, sources := range w.graph.xrefs {
		for _, x := range sources {
			diff[key{to, x}]++
		}
	}
	for _, xs := range stored {
		for _, x := range xs.Sources {
			k := key{xs.Address, x}
			if diff[k]--; diff[k] == 0 {
				delete(diff, k)
			}
		}
	}
	if len(diff) != 0 {
		return fmt.Errorf("%w: xref index disagrees with refs in %d places", ErrCorruptState, len(diff))
	}
	return nil
}

// MarshalState encodes the workspace as an opaque JSON blob.
func (w *Workspace) MarshalState() ([]byte, error) {
	return json.Marshal(w.Export())
}

// UnmarshalState decodes a blob produced by MarshalState. An empty blob yields a new workspace.
func UnmarshalState(blob []byte, opts ...Option) (*Workspace, error) {
	if len(blob) == 0 {
		return New(opts...), nil
	}
	var st State
	if err := json.Unmarshal(blob, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return Load(&st, opts...)
}
