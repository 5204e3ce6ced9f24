// Package fieldpath addresses single fields inside a YAML document using a
// dotted path with optional sequence indexes, e.g. "sections[1].bullets[0]".
// Operations work directly on yaml.Node trees so comments and key order
// survive edits. Persistence is the caller's responsibility.
package fieldpath

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Step is a single navigation step: a mapping key or a sequence index.
type Step struct {
	Key     string
	Index   int
	IsIndex bool
}

func (s Step) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Value is the right-hand side of an Apply call. NewValue assigns, Remove
// deletes. Keeping removal outside the value domain means an absent field can
// never be confused with an empty one.
type Value struct {
	raw    any
	remove bool
}

// NewValue wraps a value to assign at the addressed field.
func NewValue(v any) Value { return Value{raw: v} }

// Remove returns the marker that deletes the addressed field or element.
func Remove() Value { return Value{remove: true} }

// IsRemove reports whether v is the removal marker.
func (v Value) IsRemove() bool { return v.remove }

// Interface returns the wrapped value; nil for the removal marker.
func (v Value) Interface() any { return v.raw }

// Parse splits a path into navigation steps. The grammar is
// segment ('.' segment)* with segment := identifier ('[' integer ']')*.
// There is no escaping for literal '.' or '[' inside identifiers.
func Parse(path string) ([]Step, error) {
	if path == "" {
		return nil, &InvalidPathError{Path: path, Reason: "empty path"}
	}
	var steps []Step
	i, n := 0, len(path)
	for i < n {
		start := i
		for i < n && path[i] != '.' && path[i] != '[' && path[i] != ']' {
			i++
		}
		if i < n && path[i] == ']' {
			return nil, &InvalidPathError{Path: path, Reason: "unbalanced brackets"}
		}
		ident := path[start:i]
		if ident == "" {
			return nil, &InvalidPathError{Path: path, Reason: "empty segment"}
		}
		steps = append(steps, Step{Key: ident})
		for i < n && path[i] == '[' {
			i++
			idxStart := i
			for i < n && path[i] != ']' {
				i++
			}
			if i == n {
				return nil, &InvalidPathError{Path: path, Reason: "unbalanced brackets"}
			}
			raw := path[idxStart:i]
			i++
			idx, err := parseIndex(raw)
			if err != nil {
				return nil, &InvalidPathError{Path: path, Reason: err.Error()}
			}
			steps = append(steps, Step{Index: idx, IsIndex: true})
		}
		if i < n {
			if path[i] != '.' {
				return nil, &InvalidPathError{Path: path, Reason: fmt.Sprintf("unexpected %q after index", path[i])}
			}
			i++
			if i == n {
				return nil, &InvalidPathError{Path: path, Reason: "empty segment"}
			}
		}
	}
	return steps, nil
}

func parseIndex(raw string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("empty index")
	}
	for j := 0; j < len(raw); j++ {
		if raw[j] < '0' || raw[j] > '9' {
			return 0, fmt.Errorf("index %q is not a non-negative integer", raw)
		}
	}
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("index %q is not a non-negative integer", raw)
	}
	return idx, nil
}

// Get returns the node addressed by path. Every step, including the final
// one, must resolve in the document.
func Get(root *yaml.Node, path string) (*yaml.Node, error) {
	steps, err := Parse(path)
	if err != nil {
		return nil, err
	}
	return walk(path, root, steps)
}

// GetValue decodes the addressed field into a plain Go value.
func GetValue(root *yaml.Node, path string) (any, error) {
	n, err := Get(root, path)
	if err != nil {
		return nil, err
	}
	var out any
	if err := n.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

// Set assigns v at path. The final mapping key is created when absent;
// sequence indexes must already exist, there is no implicit append.
func Set(root *yaml.Node, path string, v any) error {
	return Apply(root, path, NewValue(v))
}

// Delete removes the mapping key or sequence element at path. Later sequence
// elements shift down by one.
func Delete(root *yaml.Node, path string) error {
	return Apply(root, path, Remove())
}

// Apply performs a set or removal at path, mutating root in place.
func Apply(root *yaml.Node, path string, v Value) error {
	steps, err := Parse(path)
	if err != nil {
		return err
	}
	parent := resolve(root)
	if len(steps) > 1 {
		parent, err = walk(path, root, steps[:len(steps)-1])
		if err != nil {
			return err
		}
	}
	if parent == nil || parent.Kind == 0 {
		return &PathNotFoundError{Path: path, Reason: "empty document"}
	}
	last := steps[len(steps)-1]
	if last.IsIndex {
		return applyIndex(parent, path, steps, last, v)
	}
	return applyKey(parent, path, steps, last, v)
}

func applyKey(parent *yaml.Node, path string, steps []Step, last Step, v Value) error {
	if parent.Kind != yaml.MappingNode {
		return &PathNotFoundError{Path: path, At: prefix(steps, len(steps)-2), Reason: "expected a mapping"}
	}
	ki := mappingIndex(parent, last.Key)
	if v.IsRemove() {
		if ki < 0 {
			return &FieldNotFoundError{Path: path, Key: last.Key}
		}
		parent.Content = append(parent.Content[:ki], parent.Content[ki+2:]...)
		return nil
	}
	node, err := encode(v.Interface())
	if err != nil {
		return err
	}
	if ki < 0 {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: last.Key}
		parent.Content = append(parent.Content, key, node)
		return nil
	}
	copyComments(parent.Content[ki+1], node)
	parent.Content[ki+1] = node
	return nil
}

func applyIndex(parent *yaml.Node, path string, steps []Step, last Step, v Value) error {
	if parent.Kind != yaml.SequenceNode {
		return &PathNotFoundError{Path: path, At: prefix(steps, len(steps)-2), Reason: "expected a sequence"}
	}
	if last.Index >= len(parent.Content) {
		return &PathNotFoundError{
			Path:   path,
			At:     prefix(steps, len(steps)-1),
			Reason: fmt.Sprintf("index %d out of range (length %d)", last.Index, len(parent.Content)),
		}
	}
	if v.IsRemove() {
		parent.Content = append(parent.Content[:last.Index], parent.Content[last.Index+1:]...)
		return nil
	}
	node, err := encode(v.Interface())
	if err != nil {
		return err
	}
	copyComments(parent.Content[last.Index], node)
	parent.Content[last.Index] = node
	return nil
}

// walk follows steps from root and returns the addressed node.
func walk(path string, root *yaml.Node, steps []Step) (*yaml.Node, error) {
	node := resolve(root)
	for i, st := range steps {
		if node == nil || node.Kind == 0 {
			return nil, &PathNotFoundError{Path: path, At: prefix(steps, i-1), Reason: "empty document"}
		}
		if st.IsIndex {
			if node.Kind != yaml.SequenceNode {
				return nil, &PathNotFoundError{Path: path, At: prefix(steps, i), Reason: "expected a sequence"}
			}
			if st.Index >= len(node.Content) {
				return nil, &PathNotFoundError{
					Path:   path,
					At:     prefix(steps, i),
					Reason: fmt.Sprintf("index %d out of range (length %d)", st.Index, len(node.Content)),
				}
			}
			node = resolve(node.Content[st.Index])
			continue
		}
		if node.Kind != yaml.MappingNode {
			return nil, &PathNotFoundError{Path: path, At: prefix(steps, i), Reason: "expected a mapping"}
		}
		ki := mappingIndex(node, st.Key)
		if ki < 0 {
			return nil, &PathNotFoundError{Path: path, At: prefix(steps, i), Reason: fmt.Sprintf("key %q not found", st.Key)}
		}
		node = resolve(node.Content[ki+1])
	}
	return node, nil
}

// resolve unwraps document and alias nodes down to the addressable node.
func resolve(n *yaml.Node) *yaml.Node {
	for n != nil {
		switch {
		case n.Kind == yaml.DocumentNode && len(n.Content) == 1:
			n = n.Content[0]
		case n.Kind == yaml.AliasNode && n.Alias != nil:
			n = n.Alias
		default:
			return n
		}
	}
	return n
}

// mappingIndex returns the position of key's key-node in a mapping's
// Content, or -1 when absent.
func mappingIndex(m *yaml.Node, key string) int {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return i
		}
	}
	return -1
}

func prefix(steps []Step, upto int) string {
	var b strings.Builder
	for i := 0; i <= upto && i < len(steps); i++ {
		if steps[i].IsIndex {
			b.WriteString(steps[i].String())
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(steps[i].Key)
	}
	return b.String()
}

func encode(v any) (*yaml.Node, error) {
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return n, nil
}

func copyComments(from, to *yaml.Node) {
	to.HeadComment = from.HeadComment
	to.LineComment = from.LineComment
	to.FootComment = from.FootComment
}
