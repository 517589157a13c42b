package workspace

import "fmt"

// OpKind enumerates the primitive mutations the journal can replay.
type OpKind string

const (
	OpCreateSegment OpKind = "create_segment"
	OpDeleteSegment OpKind = "delete_segment"
	OpCreateNode    OpKind = "create_node"
	OpDeleteNode    OpKind = "delete_node"
)

// Op is one primitive mutation together with its parameters.
type Op struct {
	Kind    OpKind   `json:"kind"`
	Segment string   `json:"segment"`
	Address int64    `json:"address,omitempty"` // delete_node
	Node    *Node    `json:"node,omitempty"`    // create_node
	Mapping *Mapping `json:"mapping,omitempty"` // create_segment
}

// check verifies the op is well formed before it is replayed.
func (op *Op) check() error {
	if op == nil {
		return fmt.Errorf("%w: missing operation", ErrUnknownUndoAction)
	}
	switch op.Kind {
	case OpCreateSegment:
		if op.Mapping == nil {
			return fmt.Errorf("%w: %s without a mapping", ErrUnknownUndoAction, op.Kind)
		}
	case OpCreateNode:
		if op.Node == nil {
			return fmt.Errorf("%w: %s without a node", ErrUnknownUndoAction, op.Kind)
		}
	case OpDeleteSegment, OpDeleteNode:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownUndoAction, op.Kind)
	}
	return nil
}

func (op Op) String() string {
	switch op.Kind {
	case OpCreateNode:
		return fmt.Sprintf("%s(%s, 0x%x)", op.Kind, op.Segment, op.Node.Address)
	case OpDeleteNode:
		return fmt.Sprintf("%s(%s, 0x%x)", op.Kind, op.Segment, op.Address)
	default:
		return fmt.Sprintf("%s(%s)", op.Kind, op.Segment)
	}
}

// EntryKind distinguishes checkpoint markers from recorded calls.
type EntryKind string

const (
	EntryCheckpoint EntryKind = "checkpoint"
	EntryMethod     EntryKind = "method"
)

// Entry is one undo/redo buffer element.
type Entry struct {
	Kind     EntryKind `json:"kind"`
	Forward  *Op       `json:"forward,omitempty"`
	Backward *Op       `json:"backward,omitempty"`
}

type journalState int

const (
	stateIdle journalState = iota
	stateRecording
	stateUndoing
	stateRedoing
)

func (s journalState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRecording:
		return "recording"
	case stateUndoing:
		return "undoing"
	case stateRedoing:
		return "redoing"
	default:
		return "unknown"
	}
}

// Journal is the two-stack undo/redo log. A top-level call opens one checkpoint;
// nested calls inside it record into the same checkpoint.
type Journal struct {
	undo  []Entry
	redo  []Entry
	state journalState
}

// begin opens a recording scope if none is open. It returns true when the caller
// owns the scope and must call end.
func (j *Journal) begin() bool {
	if j.state != stateIdle {
		return false
	}
	j.state = stateRecording
	j.redo = nil
	j.undo = append(j.undo, Entry{Kind: EntryCheckpoint})
	return true
}

// end closes a scope opened by begin. A checkpoint with nothing recorded after it is dropped.
func (j *Journal) end(opened bool) {
	if !opened {
		return
	}
	if n := len(j.undo); n > 0 && j.undo[n-1].Kind == EntryCheckpoint {
		j.undo = j.undo[:n-1]
	}
	j.state = stateIdle
}

// record appends a forward/backward pair. While undoing, the pair is routed to the
// redo buffer with its directions swapped.
func (j *Journal) record(forward, backward Op) {
	if j.state == stateUndoing {
		j.redo = append(j.redo, Entry{Kind: EntryMethod, Forward: &backward, Backward: &forward})
		return
	}
	j.undo = append(j.undo, Entry{Kind: EntryMethod, Forward: &forward, Backward: &backward})
}

// pending returns the entries from the top of buf down to (not including) the
// nearest checkpoint, in pop order.
func pending(buf []Entry) []Entry {
	var out []Entry
	for i := len(buf) - 1; i >= 0; i-- {
		if buf[i].Kind == EntryCheckpoint {
			break
		}
		out = append(out, buf[i])
	}
	return out
}

// checkEntries validates a batch before replay so a corrupt entry aborts with nothing consumed.
func checkEntries(entries []Entry, forward bool) error {
	for _, e := range entries {
		if e.Kind != EntryMethod {
			return fmt.Errorf("%w: entry kind %q", ErrUnknownUndoAction, e.Kind)
		}
		op := e.Backward
		if forward {
			op = e.Forward
		}
		if err := op.check(); err != nil {
			return err
		}
	}
	return nil
}

// pop removes and returns the top of buf.
func pop(buf *[]Entry) (Entry, bool) {
	n := len(*buf)
	if n == 0 {
		return Entry{}, false
	}
	e := (*buf)[n-1]
	*buf = (*buf)[:n-1]
	return e, true
}

// Clear empties both buffers without touching state.
func (j *Journal) Clear() {
	j.undo = nil
	j.redo = nil
}

// CanUndo reports whether the undo buffer holds anything.
func (j *Journal) CanUndo() bool { return len(j.undo) > 0 }

// CanRedo reports whether the redo buffer holds anything.
func (j *Journal) CanRedo() bool { return len(j.redo) > 0 }

// History is an inspection copy of both buffers.
type History struct {
	Undo []Entry `json:"undo"`
	Redo []Entry `json:"redo"`
}

func (j *Journal) history() History {
	return History{
		Undo: append([]Entry{}, j.undo...),
		Redo: append([]Entry{}, j.redo...),
	}
}

// checkpoints counts checkpoint markers in buf.
func checkpoints(buf []Entry) int {
	n := 0
	for _, e := range buf {
		if e.Kind == EntryCheckpoint {
			n++
		}
	}
	return n
}
