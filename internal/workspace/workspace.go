// Package workspace implements the address space of an analyzed binary: named
// non-overlapping segments overlaid with typed nodes, a ref/xref graph between
// addresses, a revision counter for incremental sync, and a checkpointed
// undo/redo journal.
//
// A Workspace is single-writer. Callers load one, apply one logical operation
// and persist the result; nothing here is safe for concurrent mutation.
package workspace

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
)

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger routes engine debug logging to l.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) {
		if l != nil {
			w.logger = l
		}
	}
}

// Workspace is the address-space façade over segments, nodes, refs and the journal.
type Workspace struct {
	clock    RevisionClock
	segments *SegmentStore
	graph    *ReferenceGraph
	journal  Journal

	properties         map[string]string
	propertiesRevision int64

	startingRevision int64
	logger           *slog.Logger
}

// New returns an empty workspace. Its starting revision is -1 so the first
// query against it reports everything.
func New(opts ...Option) *Workspace {
	w := &Workspace{
		startingRevision: -1,
		logger:           slog.New(slog.DiscardHandler),
	}
	w.reset()
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Workspace) reset() {
	w.clock = RevisionClock{}
	w.segments = newSegmentStore()
	w.graph = newReferenceGraph(w.segments)
	w.journal = Journal{}
	w.properties = make(map[string]string)
	w.propertiesRevision = 0
}

// Revision returns the current revision.
func (w *Workspace) Revision() int64 {
	return w.clock.Current()
}

// StartingRevision returns the revision the workspace was loaded at.
func (w *Workspace) StartingRevision() int64 {
	return w.startingRevision
}

func (w *Workspace) findSegment(name string) (*Segment, error) {
	s, ok := w.segments.Find(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q (known segments: %v)", ErrSegmentNotFound, name, w.segments.names())
	}
	return s, nil
}

// CreateSegments maps each segment into the address space as one undoable action.
// Every spec is validated before anything changes.
func (w *Workspace) CreateSegments(specs []SegmentSpec) error {
	mappings := make([]Mapping, 0, len(specs))
	for _, spec := range specs {
		if err := validateSpec("segment", spec); err != nil {
			return err
		}
		m := spec.mapping()
		if err := w.segments.checkCreate(m, mappings); err != nil {
			return err
		}
		mappings = append(mappings, m)
	}
	if len(mappings) == 0 {
		return nil
	}

	opened := w.journal.begin()
	defer w.journal.end(opened)
	for _, m := range mappings {
		if err := w.createSegment(m); err != nil {
			return err
		}
	}
	return nil
}

// DeleteSegments removes each named segment and every node inside it as one undoable action.
func (w *Workspace) DeleteSegments(names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if _, err := w.findSegment(name); err != nil || seen[name] {
			if err == nil {
				err = fmt.Errorf("%w: %q is listed twice", ErrSegmentNotFound, name)
			}
			return err
		}
		seen[name] = true
	}
	if len(names) == 0 {
		return nil
	}

	opened := w.journal.begin()
	defer w.journal.end(opened)
	for _, name := range names {
		if err := w.deleteSegment(name); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAllSegments deletes every live segment as one undoable action.
func (w *Workspace) DeleteAllSegments() error {
	var names []string
	for _, s := range w.segments.Ordered() {
		names = append(names, s.Name)
	}
	return w.DeleteSegments(names)
}

// CreateNodes defines nodes inside segment. Whatever previously occupied each
// node's footprint is deleted first.
func (w *Workspace) CreateNodes(segment string, specs []NodeSpec) error {
	s, err := w.findSegment(segment)
	if err != nil {
		return err
	}
	nodes := make([]*Node, 0, len(specs))
	for _, spec := range specs {
		if err := validateSpec("node", spec); err != nil {
			return err
		}
		n := spec.node()
		if err := s.checkFootprint(n); err != nil {
			return err
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 0 {
		return nil
	}

	opened := w.journal.begin()
	defer w.journal.end(opened)
	for _, n := range nodes {
		if err := w.createNode(segment, n); err != nil {
			return err
		}
	}
	return nil
}

// DeleteNodes undefines the node covering each address. Addresses with no node,
// including ones outside the segment, are skipped.
func (w *Workspace) DeleteNodes(segment string, addresses []int64) error {
	s, err := w.findSegment(segment)
	if err != nil {
		return err
	}
	opened := w.journal.begin()
	defer w.journal.end(opened)

	rev := w.clock.Next()
	if rev > s.Revision {
		s.Revision = rev
	}
	for _, a := range addresses {
		if err := w.deleteNode(segment, a); err != nil {
			return err
		}
	}
	return nil
}

// createSegment is the replayable primitive behind CreateSegments.
func (w *Workspace) createSegment(m Mapping) error {
	if err := w.segments.checkCreate(m, nil); err != nil {
		return err
	}
	rev := w.clock.Next()
	w.segments.insert(newSegment(m, rev))
	w.logger.Debug("create_segment", "segment", m.Name, "address", m.Address, "length", len(m.Data), "revision", rev)

	w.journal.record(
		Op{Kind: OpCreateSegment, Segment: m.Name, Mapping: &m},
		Op{Kind: OpDeleteSegment, Segment: m.Name},
	)
	return nil
}

// deleteSegment is the replayable primitive behind DeleteSegments. Nodes are
// deleted first so that undo restores the segment before its nodes.
func (w *Workspace) deleteSegment(name string) error {
	s, err := w.findSegment(name)
	if err != nil {
		return err
	}
	for _, base := range s.bases() {
		if err := w.deleteNode(name, base); err != nil {
			return err
		}
	}

	rev := w.clock.Next()
	if _, err := w.segments.remove(name, rev); err != nil {
		return err
	}
	w.logger.Debug("delete_segment", "segment", name, "revision", rev)

	m := s.mapping()
	w.journal.record(
		Op{Kind: OpDeleteSegment, Segment: name},
		Op{Kind: OpCreateSegment, Segment: name, Mapping: &m},
	)
	return nil
}

// createNode is the replayable primitive behind CreateNodes.
func (w *Workspace) createNode(segment string, n *Node) error {
	s, err := w.findSegment(segment)
	if err != nil {
		return err
	}
	if err := s.checkFootprint(n); err != nil {
		return err
	}

	for a := n.Address; a < n.End(); a++ {
		if existing, ok := s.nodeCovering(a); ok {
			if err := w.deleteNode(segment, existing.Address); err != nil {
				return err
			}
		}
	}

	rev := w.clock.Next()
	s.store(n, rev)
	w.graph.add(segment, n.Address, n.Refs, rev)
	w.logger.Debug("create_node", "segment", segment, "address", n.Address, "length", n.Length, "type", n.Type, "revision", rev)

	w.journal.record(
		Op{Kind: OpCreateNode, Segment: segment, Node: n},
		Op{Kind: OpDeleteNode, Segment: segment, Address: n.Address},
	)
	return nil
}

// deleteNode is the replayable primitive behind DeleteNodes. It is a no-op when
// nothing covers address.
func (w *Workspace) deleteNode(segment string, address int64) error {
	s, err := w.findSegment(segment)
	if err != nil {
		return err
	}
	n, ok := s.nodeCovering(address)
	if !ok {
		return nil
	}

	rev := w.clock.Next()
	s.clear(n, rev)
	w.graph.remove(segment, n.Address, rev)
	w.logger.Debug("delete_node", "segment", segment, "address", n.Address, "revision", rev)

	w.journal.record(
		Op{Kind: OpDeleteNode, Segment: segment, Address: n.Address},
		Op{Kind: OpCreateNode, Segment: segment, Node: n},
	)
	return nil
}

// apply runs a journaled op.
func (w *Workspace) apply(op *Op) error {
	if err := op.check(); err != nil {
		return err
	}
	switch op.Kind {
	case OpCreateSegment:
		return w.createSegment(*op.Mapping)
	case OpDeleteSegment:
		return w.deleteSegment(op.Segment)
	case OpCreateNode:
		return w.createNode(op.Segment, op.Node)
	case OpDeleteNode:
		return w.deleteNode(op.Segment, op.Address)
	}
	return fmt.Errorf("%w: %q", ErrUnknownUndoAction, op.Kind)
}

// Undo reverses the most recent checkpoint. It is a no-op when there is nothing to undo.
func (w *Workspace) Undo() error {
	return w.replay(stateUndoing)
}

// Redo re-applies the most recently undone checkpoint. It is a no-op when there is nothing to redo.
func (w *Workspace) Redo() error {
	return w.replay(stateRedoing)
}

// replay pops one checkpoint's worth of entries from the source buffer and runs
// them. On failure the workspace is restored to its state before the call.
func (w *Workspace) replay(mode journalState) error {
	j := &w.journal
	if j.state != stateIdle {
		return fmt.Errorf("%s while %s", mode, j.state)
	}

	src, dst, forward := &j.undo, &j.redo, false
	if mode == stateRedoing {
		src, dst, forward = &j.redo, &j.undo, true
	}
	if len(*src) == 0 {
		return nil
	}
	if err := checkEntries(pending(*src), forward); err != nil {
		return err
	}

	saved := w.Export()
	j.state = mode
	*dst = append(*dst, Entry{Kind: EntryCheckpoint})

	var err error
	for {
		e, ok := pop(src)
		if !ok || e.Kind == EntryCheckpoint {
			break
		}
		op := e.Backward
		if forward {
			op = e.Forward
		}
		w.logger.Debug(mode.String(), "op", op.String())
		if err = w.apply(op); err != nil {
			break
		}
	}
	j.state = stateIdle

	if err != nil {
		if rerr := w.restore(saved); rerr != nil {
			return fmt.Errorf("%s: %w (restore failed: %v)", mode, err, rerr)
		}
		return fmt.Errorf("%s: %w", mode, err)
	}
	if n := len(*dst); n > 0 && (*dst)[n-1].Kind == EntryCheckpoint {
		*dst = (*dst)[:n-1]
	}
	return nil
}

// ClearUndoLog empties both journal buffers without touching current state.
func (w *Workspace) ClearUndoLog() {
	w.journal.Clear()
}

// History returns a copy of the undo and redo buffers.
func (w *Workspace) History() History {
	return w.journal.history()
}

// CanUndo reports whether Undo would do anything.
func (w *Workspace) CanUndo() bool { return w.journal.CanUndo() }

// CanRedo reports whether Redo would do anything.
func (w *Workspace) CanRedo() bool { return w.journal.CanRedo() }

// NodeAt returns the node covering address in segment, synthesizing an undefined
// byte when nothing is defined there.
func (w *Workspace) NodeAt(segment string, address int64) (NodeView, error) {
	s, err := w.findSegment(segment)
	if err != nil {
		return NodeView{}, err
	}
	return s.view(address, w.graph)
}

// Nodes returns every node in segment whose revision exceeds since.
func (w *Workspace) Nodes(segment string, since int64) ([]NodeView, error) {
	s, err := w.findSegment(segment)
	if err != nil {
		return nil, err
	}
	return s.nodesSince(since, w.graph), nil
}

// Segments returns every segment whose revision exceeds since, without data or nodes.
func (w *Workspace) Segments(since int64) []SegmentView {
	return w.StateSince(since, SnapshotOptions{}).Segments
}

// RefsOf returns the forward refs registered from address in segment.
func (w *Workspace) RefsOf(segment string, address int64) []Ref {
	return w.graph.RefsOf(segment, address)
}

// XrefsTo returns every xref into [address, address+length).
func (w *Workspace) XrefsTo(address, length int64) []Xref {
	return w.graph.XrefsTo(address, length)
}

// References returns every forward reference edge.
func (w *Workspace) References() []Edge {
	return w.graph.Edges()
}

// Located is a defined node together with the segment that owns it.
type Located struct {
	Segment string
	Node    Node
}

// DefinedNodes returns every stored node ordered by segment address then node address.
func (w *Workspace) DefinedNodes() []Located {
	var out []Located
	for _, s := range w.segments.Ordered() {
		for _, base := range s.bases() {
			out = append(out, Located{Segment: s.Name, Node: *s.nodes[base].clone()})
		}
	}
	return out
}

// StateSince returns every segment and node changed after since.
func (w *Workspace) StateSince(since int64, opts SnapshotOptions) Snapshot {
	snap := Snapshot{
		Revision: w.clock.Current(),
		Segments: []SegmentView{},
	}
	wanted := func(name string) bool {
		return len(opts.Names) == 0 || slices.Contains(opts.Names, name)
	}

	for _, s := range w.segments.Ordered() {
		if !wanted(s.Name) || s.Revision <= since {
			continue
		}
		v := SegmentView{
			Name:     s.Name,
			Address:  s.Address,
			Length:   int64(len(s.Data)),
			Revision: s.Revision,
			Details:  s.Details,
		}
		if opts.WithData {
			v.Data = slices.Clone(s.Data)
		}
		if opts.WithNodes {
			v.Nodes = s.nodesSince(since, w.graph)
		}
		snap.Segments = append(snap.Segments, v)
	}

	for name, rev := range w.segments.deleted {
		if rev <= since || !wanted(name) {
			continue
		}
		if _, live := w.segments.Find(name); live {
			continue
		}
		snap.DeletedSegments = append(snap.DeletedSegments, name)
	}
	sort.Strings(snap.DeletedSegments)

	if w.propertiesRevision > since {
		snap.Properties = w.Properties(nil)
	}
	return snap
}
