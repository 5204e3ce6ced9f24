package fieldpath

import "fmt"

// InvalidPathError indicates a malformed path string: an empty segment, a
// non-numeric index, or unbalanced brackets.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid field path %q: %s", e.Path, e.Reason)
}

// PathNotFoundError indicates a syntactically valid path whose steps do not
// resolve in the document: a missing key, an out-of-range index, or a step
// that addresses a node of the wrong kind.
type PathNotFoundError struct {
	Path   string
	At     string
	Reason string
}

func (e *PathNotFoundError) Error() string {
	if e.At != "" && e.At != e.Path {
		return fmt.Sprintf("path %q not found: %s at %q", e.Path, e.Reason, e.At)
	}
	return fmt.Sprintf("path %q not found: %s", e.Path, e.Reason)
}

// FieldNotFoundError indicates a removal addressed to a mapping key that is
// not present. It is distinct from PathNotFoundError so callers may treat
// deleting an already-absent field as a no-op.
type FieldNotFoundError struct {
	Path string
	Key  string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("cannot remove %q: field %q not present", e.Path, e.Key)
}
