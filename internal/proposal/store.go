// Package proposal manages the commercial proposal repository: YAML documents
// under docs/<yyyy-mm-client-project>/ plus their images and rendered PDFs.
package proposal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teknestudio/propbot/internal/diffview"
	"github.com/teknestudio/propbot/internal/utils"
)

// ErrDirExists is returned by RenameDir when the destination is taken.
var ErrDirExists = errors.New("destination directory already exists")

// Store reads and writes proposals inside a repository root. All public
// methods take and return repository-relative paths with forward slashes,
// e.g. "docs/2026-01-sesc-metaverso/proposta-sesc-metaverso.yml".
type Store struct {
	root string
	log  *slog.Logger
}

func NewStore(root string, log *slog.Logger) *Store {
	return &Store{root: root, log: log}
}

// Root returns the repository root the store operates on.
func (s *Store) Root() string { return s.root }

// DocsDir returns the absolute path of the docs/ directory.
func (s *Store) DocsDir() string { return filepath.Join(s.root, "docs") }

// resolve maps a repository-relative path to an absolute one. Absolute paths
// and paths escaping the root are rejected as not found so callers never
// touch files outside the repository.
func (s *Store) resolve(rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", &DocumentNotFoundError{Path: rel}
	}
	clean := path.Clean(filepath.ToSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", &DocumentNotFoundError{Path: rel}
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Save writes a brand new proposal. The directory and file names are derived
// from the date's year-month and the slugs of the client and project names.
// It returns the repository-relative path of the created file.
func (s *Store) Save(content, clientName, projectName, date string) (string, error) {
	if clientName == "" || projectName == "" {
		return "", errors.New("client and project names are required for new proposals")
	}
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	yearMonth := date
	if len(date) > 7 {
		yearMonth = date[:7]
	}
	clientSlug := NormalizeSlug(clientName)
	projectSlug := NormalizeSlug(projectName)
	if clientSlug == "" || projectSlug == "" {
		return "", fmt.Errorf("names %q and %q produce empty slugs", clientName, projectName)
	}

	dir := DirName(yearMonth, clientSlug, projectSlug)
	if err := utils.EnsureDir(filepath.Join(s.DocsDir(), dir)); err != nil {
		return "", fmt.Errorf("create proposal directory: %w", err)
	}
	file := FileName(clientSlug, projectSlug)
	abs := filepath.Join(s.DocsDir(), dir, file)
	if err := utils.SafeWriteFile(abs, []byte(content)); err != nil {
		return "", err
	}
	rel := path.Join("docs", dir, file)
	s.log.Info("proposal created", "path", rel)
	return rel, nil
}

// SaveExisting overwrites an existing proposal file and reports a line diff
// against the previous content. Missing files fail with
// DocumentNotFoundError; this method never creates documents.
func (s *Store) SaveExisting(rel, content string) (*diffview.Summary, error) {
	abs, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	old, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &DocumentNotFoundError{Path: rel}
		}
		return nil, fmt.Errorf("read proposal: %w", err)
	}
	sum := diffview.Compare(string(old), content, 12)
	if err := utils.SafeWriteFile(abs, []byte(content)); err != nil {
		return nil, err
	}
	s.log.Info("proposal updated", "path", rel, "added", sum.Added, "removed", sum.Removed)
	return sum, nil
}

// Load returns the raw YAML content of a proposal.
func (s *Store) Load(rel string) (string, error) {
	abs, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &DocumentNotFoundError{Path: rel}
		}
		return "", fmt.Errorf("read proposal: %w", err)
	}
	s.log.Debug("proposal loaded", "path", rel, "bytes", len(b))
	return string(b), nil
}

// Entry is one row of a proposal listing.
type Entry struct {
	Path   string
	Client string
	Title  string
	Date   string
}

// List returns up to limit proposals, most recent directory first. Metadata
// that cannot be read degrades to an error row instead of failing the whole
// listing. A non-positive limit means 10.
func (s *Store) List(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	dirs, err := os.ReadDir(s.DocsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read docs directory: %w", err)
	}

	var entries []Entry
	// Directory names start with yyyy-mm, so reverse name order is reverse
	// chronological order.
	for i := len(dirs) - 1; i >= 0 && len(entries) < limit; i-- {
		d := dirs[i]
		if !d.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.DocsDir(), d.Name()))
		if err != nil {
			continue
		}
		sort.Slice(files, func(a, b int) bool { return files[a].Name() < files[b].Name() })
		for _, f := range files {
			if len(entries) >= limit {
				break
			}
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".yml") {
				continue
			}
			rel := path.Join("docs", d.Name(), f.Name())
			entries = append(entries, s.readEntry(rel))
		}
	}
	return entries, nil
}

func (s *Store) readEntry(rel string) Entry {
	errEntry := Entry{Path: rel, Client: "Erro", Title: "Erro ao ler", Date: "N/A"}
	abs, err := s.resolve(rel)
	if err != nil {
		return errEntry
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return errEntry
	}
	var doc struct {
		Meta map[string]any `yaml:"meta"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		s.log.Warn("unreadable proposal metadata", "path", rel, "error", err)
		return errEntry
	}
	return Entry{
		Path:   rel,
		Client: metaString(doc.Meta, "client", "Sem cliente"),
		Title:  metaString(doc.Meta, "title", "Sem título"),
		Date:   metaString(doc.Meta, "date", "Sem data"),
	}
}

// metaString renders one metadata value. Unquoted YAML dates decode as
// time.Time and are printed back in ISO form.
func metaString(m map[string]any, key, fallback string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return fallback
	}
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format("2006-01-02")
	default:
		return fmt.Sprint(t)
	}
}

// Delete removes a proposal. When the given file sits in its own proposal
// directory directly under docs/, the whole directory goes (images and PDFs
// included); otherwise only the file is removed.
func (s *Store) Delete(rel string) error {
	abs, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return &DocumentNotFoundError{Path: rel}
		}
		return fmt.Errorf("stat proposal: %w", err)
	}

	parent := filepath.Dir(abs)
	if filepath.Dir(parent) == s.DocsDir() {
		if err := os.RemoveAll(parent); err != nil {
			return fmt.Errorf("remove proposal directory: %w", err)
		}
		s.log.Info("proposal directory removed", "path", path.Dir(rel))
		return nil
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("remove proposal: %w", err)
	}
	s.log.Info("proposal removed", "path", rel)
	return nil
}

// RenameDir renames a proposal directory under docs/. Both arguments are
// bare directory names. It returns the repository-relative path of the YAML
// file at its new location, or "" when the directory holds none.
func (s *Store) RenameDir(oldName, newName string) (string, error) {
	if strings.ContainsAny(oldName, `/\`) || strings.ContainsAny(newName, `/\`) ||
		oldName == "" || newName == "" || oldName == ".." || newName == ".." {
		return "", fmt.Errorf("directory names must be bare names, got %q and %q", oldName, newName)
	}
	oldAbs := filepath.Join(s.DocsDir(), oldName)
	newAbs := filepath.Join(s.DocsDir(), newName)
	if _, err := os.Stat(oldAbs); err != nil {
		if os.IsNotExist(err) {
			return "", &DocumentNotFoundError{Path: path.Join("docs", oldName)}
		}
		return "", fmt.Errorf("stat directory: %w", err)
	}
	if _, err := os.Stat(newAbs); err == nil {
		return "", fmt.Errorf("%w: %s", ErrDirExists, newName)
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return "", fmt.Errorf("rename directory: %w", err)
	}
	s.log.Info("proposal directory renamed", "from", oldName, "to", newName)

	files, err := os.ReadDir(newAbs)
	if err != nil {
		return "", nil
	}
	sort.Slice(files, func(a, b int) bool { return files[a].Name() < files[b].Name() })
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if strings.HasSuffix(f.Name(), ".yml") || strings.HasSuffix(f.Name(), ".yaml") {
			return path.Join("docs", newName, f.Name()), nil
		}
	}
	return "", nil
}

// SaveAttachment stores binary data (user photos, generated images) inside a
// proposal directory and returns the attachment's repository-relative path.
func (s *Store) SaveAttachment(dirRel, name string, data []byte) (string, error) {
	if strings.ContainsAny(name, `/\`) || name == "" || name == ".." {
		return "", fmt.Errorf("attachment name must be a bare file name, got %q", name)
	}
	dirAbs, err := s.resolve(dirRel)
	if err != nil {
		return "", err
	}
	if err := utils.EnsureDir(dirAbs); err != nil {
		return "", fmt.Errorf("create attachment directory: %w", err)
	}
	if err := utils.SafeWriteFile(filepath.Join(dirAbs, name), data); err != nil {
		return "", err
	}
	rel := path.Join(path.Clean(filepath.ToSlash(dirRel)), name)
	s.log.Info("attachment saved", "path", rel, "bytes", len(data))
	return rel, nil
}
