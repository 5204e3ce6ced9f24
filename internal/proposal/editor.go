package proposal

import (
	"bytes"
	"fmt"
	"os"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/teknestudio/propbot/internal/fieldpath"
	"github.com/teknestudio/propbot/internal/utils"
)

// FieldChange describes one applied field edit.
type FieldChange struct {
	Document string
	Path     string
	Removed  bool
	OldValue any
	NewValue any
}

// Confirmation is the user-facing message for this edit.
func (c *FieldChange) Confirmation() string {
	if c.Removed {
		return fmt.Sprintf("🗑️ Removi o campo '%s'!", c.Path)
	}
	return fmt.Sprintf("✏️ Atualizei o campo '%s'!", c.Path)
}

// UpdateField applies a single field edit to a proposal and writes the result
// atomically. Comments and key order in the rest of the document survive.
// Resolver errors pass through with their kind intact so callers can react to
// invalid paths, missing paths, and missing fields separately.
func (s *Store) UpdateField(rel, field string, value fieldpath.Value) (*FieldChange, error) {
	abs, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &DocumentNotFoundError{Path: rel}
		}
		return nil, fmt.Errorf("read proposal: %w", err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return nil, fmt.Errorf("parse proposal YAML: %w", err)
	}

	// Best effort: the field may not exist yet when a set creates it.
	old, _ := fieldpath.GetValue(&root, field)

	if err := fieldpath.Apply(&root, field, value); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return nil, fmt.Errorf("encode proposal YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode proposal YAML: %w", err)
	}
	if err := utils.SafeWriteFile(abs, buf.Bytes()); err != nil {
		return nil, err
	}

	change := &FieldChange{Document: rel, Path: field, Removed: value.IsRemove(), OldValue: old}
	if !value.IsRemove() {
		change.NewValue = value.Interface()
	}
	s.log.Info("field updated", "path", rel, "field", field, "removed", change.Removed)
	return change, nil
}

// ReadField returns the decoded value a field path addresses.
func (s *Store) ReadField(rel, field string) (any, error) {
	root, err := s.loadNode(rel)
	if err != nil {
		return nil, err
	}
	return fieldpath.GetValue(root, field)
}

// SectionInfo summarizes one section for the outline view.
type SectionInfo struct {
	Index          int
	Title          string
	ContentChars   int
	Bullets        int
	HasImage       bool
	HasImageBefore bool
}

// Outline is the structural view of a proposal: metadata plus a section
// summary, cheap enough to feed a model that only needs orientation.
type Outline struct {
	Path     string
	Title    string
	Client   string
	Date     string
	Sections []SectionInfo
}

// Section is the full content of a single section.
type Section struct {
	Index       int
	Title       string
	Content     string
	Bullets     []string
	Image       string
	ImageBefore string
}

type sectionDoc struct {
	Meta     map[string]any `yaml:"meta"`
	Sections []struct {
		Title       string   `yaml:"title"`
		Content     string   `yaml:"content"`
		Bullets     []string `yaml:"bullets"`
		Image       string   `yaml:"image"`
		ImageBefore string   `yaml:"image_before"`
	} `yaml:"sections"`
}

// Structure returns the outline of a proposal without its section bodies.
func (s *Store) Structure(rel string) (*Outline, error) {
	doc, err := s.loadSections(rel)
	if err != nil {
		return nil, err
	}
	out := &Outline{
		Path:   rel,
		Title:  metaString(doc.Meta, "title", "Sem título"),
		Client: metaString(doc.Meta, "client", "Sem cliente"),
		Date:   metaString(doc.Meta, "date", "Sem data"),
	}
	for i, sec := range doc.Sections {
		out.Sections = append(out.Sections, SectionInfo{
			Index:          i,
			Title:          sec.Title,
			ContentChars:   utf8.RuneCountInString(sec.Content),
			Bullets:        len(sec.Bullets),
			HasImage:       sec.Image != "",
			HasImageBefore: sec.ImageBefore != "",
		})
	}
	return out, nil
}

// ReadSection returns one section in full. An index past the end fails the
// same way the field resolver does.
func (s *Store) ReadSection(rel string, index int) (*Section, error) {
	doc, err := s.loadSections(rel)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(doc.Sections) {
		return nil, &fieldpath.PathNotFoundError{
			Path:   fmt.Sprintf("sections[%d]", index),
			At:     "sections",
			Reason: fmt.Sprintf("index %d out of range (length %d)", index, len(doc.Sections)),
		}
	}
	sec := doc.Sections[index]
	return &Section{
		Index:       index,
		Title:       sec.Title,
		Content:     sec.Content,
		Bullets:     sec.Bullets,
		Image:       sec.Image,
		ImageBefore: sec.ImageBefore,
	}, nil
}

func (s *Store) loadNode(rel string) (*yaml.Node, error) {
	abs, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &DocumentNotFoundError{Path: rel}
		}
		return nil, fmt.Errorf("read proposal: %w", err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return nil, fmt.Errorf("parse proposal YAML: %w", err)
	}
	return &root, nil
}

func (s *Store) loadSections(rel string) (*sectionDoc, error) {
	abs, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &DocumentNotFoundError{Path: rel}
		}
		return nil, fmt.Errorf("read proposal: %w", err)
	}
	var doc sectionDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse proposal YAML: %w", err)
	}
	return &doc, nil
}
