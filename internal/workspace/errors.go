package workspace

import "errors"

// Segment errors
var (
	// ErrDuplicateSegment indicates a segment with the same name is already mapped.
	ErrDuplicateSegment = errors.New("duplicate segment")

	// ErrOverlap indicates a segment's byte range intersects a live segment.
	ErrOverlap = errors.New("segment overlap")

	// ErrSegmentNotFound indicates no live segment has the given name.
	ErrSegmentNotFound = errors.New("segment not found")
)

// Node errors
var (
	// ErrOutOfRange indicates a node footprint or address falls outside its segment.
	ErrOutOfRange = errors.New("out of range")

	// ErrMissingField indicates a required attribute is absent or invalid on a request.
	ErrMissingField = errors.New("missing field")

	// ErrInvalidRefs indicates refs were supplied but are malformed.
	ErrInvalidRefs = errors.New("invalid refs")
)

// Journal errors
var (
	// ErrUnknownUndoAction indicates a corrupt journal entry. This is a bug, not bad input.
	ErrUnknownUndoAction = errors.New("unknown undo action")

	// ErrCorruptState indicates a serialized state bundle failed consistency checks on load.
	ErrCorruptState = errors.New("corrupt state")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrDuplicateSegment, "duplicate_segment"},
	{ErrOverlap, "overlap"},
	{ErrSegmentNotFound, "segment_not_found"},
	{ErrOutOfRange, "out_of_range"},
	{ErrMissingField, "missing_field"},
	{ErrInvalidRefs, "invalid_refs"},
	{ErrUnknownUndoAction, "unknown_undo_action"},
	{ErrCorruptState, "corrupt_state"},
}

// Code returns the stable error code for an engine error, or "internal" for anything else.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
