package proposal_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/teknestudio/propbot/internal/logging"
	"github.com/teknestudio/propbot/internal/proposal"
)

func newTestStore(t *testing.T) (*proposal.Store, string) {
	t.Helper()
	root := t.TempDir()
	return proposal.NewStore(root, logging.Nop()), root
}

func sampleYAML(title, client, date string) string {
	return fmt.Sprintf("meta:\n  title: %q\n  client: %q\n  date: %s\nsections:\n  - title: Abertura\n    content: Texto inicial.\n", title, client, date)
}

func TestSaveDerivesNames(t *testing.T) {
	s, root := newTestStore(t)
	content := sampleYAML("Metaverso Cultural", "SESC São Paulo", "2026-01-15")
	rel, err := s.Save(content, "SESC São Paulo", "Metaverso Cultural", "2026-01-15")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := "docs/2026-01-sesc-sao-paulo-metaverso-cultural/proposta-sesc-sao-paulo-metaverso-cultural.yml"
	if rel != want {
		t.Fatalf("path = %q, want %q", rel, want)
	}
	b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("reading saved file: %v", err)
	}
	if string(b) != content {
		t.Errorf("saved content differs from input")
	}
}

func TestSaveRequiresNames(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Save("meta: {}\n", "", "Projeto", "2026-01-15"); err == nil {
		t.Fatal("expected error for missing client name")
	}
	if _, err := s.Save("meta: {}\n", "Cliente", "", "2026-01-15"); err == nil {
		t.Fatal("expected error for missing project name")
	}
}

func TestSaveExistingDiffsAndWrites(t *testing.T) {
	s, _ := newTestStore(t)
	rel, err := s.Save(sampleYAML("Antes", "ACME", "2026-02-01"), "ACME", "Site Novo", "2026-02-01")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	after := sampleYAML("Depois", "ACME", "2026-02-01")
	sum, err := s.SaveExisting(rel, after)
	if err != nil {
		t.Fatalf("SaveExisting: %v", err)
	}
	if sum.Added == 0 || sum.Removed == 0 {
		t.Errorf("expected a non-empty diff, got +%d/-%d", sum.Added, sum.Removed)
	}
	got, err := s.Load(rel)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != after {
		t.Errorf("content not replaced")
	}
}

func TestSaveExistingMissingDocument(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.SaveExisting("docs/2026-01-x-y/proposta-x-y.yml", "meta: {}\n")
	var nf *proposal.DocumentNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected DocumentNotFoundError, got %v", err)
	}
}

func TestLoadMissingDocument(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Load("docs/nao-existe/proposta.yml")
	var nf *proposal.DocumentNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected DocumentNotFoundError, got %v", err)
	}
}

func TestStoreRejectsEscapingPaths(t *testing.T) {
	s, _ := newTestStore(t)
	for _, rel := range []string{"", "/etc/passwd", "../outside.yml", "docs/../../outside.yml"} {
		_, err := s.Load(rel)
		var nf *proposal.DocumentNotFoundError
		if !errors.As(err, &nf) {
			t.Errorf("Load(%q): expected DocumentNotFoundError, got %v", rel, err)
		}
	}
}

func TestListMostRecentFirst(t *testing.T) {
	s, _ := newTestStore(t)
	saves := []struct {
		title, client, project, date string
	}{
		{"Proposta Antiga", "Alfa", "Projeto Um", "2025-12-01"},
		{"Proposta do Meio", "Beta", "Projeto Dois", "2026-01-05"},
		{"Proposta Recente", "Gama", "Projeto Três", "2026-02-10"},
	}
	for _, sv := range saves {
		if _, err := s.Save(sampleYAML(sv.title, sv.client, sv.date), sv.client, sv.project, sv.date); err != nil {
			t.Fatalf("Save %s: %v", sv.client, err)
		}
	}

	entries, err := s.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Title != "Proposta Recente" || entries[0].Date != "2026-02-10" {
		t.Errorf("first entry = %+v, want the most recent", entries[0])
	}
	if entries[2].Client != "Alfa" {
		t.Errorf("last entry = %+v, want the oldest", entries[2])
	}
	if !strings.HasPrefix(entries[0].Path, "docs/") {
		t.Errorf("entry paths must be repository-relative, got %q", entries[0].Path)
	}

	limited, err := s.List(2)
	if err != nil {
		t.Fatalf("List(2): %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d entries, want 2", len(limited))
	}
}

func TestListUnreadableEntryDegrades(t *testing.T) {
	s, root := newTestStore(t)
	dir := filepath.Join(root, "docs", "2026-03-quebrada-x")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "proposta-quebrada-x.yml"), []byte("meta: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := s.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Title != "Erro ao ler" || entries[0].Client != "Erro" || entries[0].Date != "N/A" {
		t.Errorf("unreadable entry = %+v", entries[0])
	}
}

func TestListWithoutDocsDir(t *testing.T) {
	s, _ := newTestStore(t)
	entries, err := s.List(10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want none", len(entries))
	}
}

func TestDeleteRemovesProposalDirectory(t *testing.T) {
	s, root := newTestStore(t)
	rel, err := s.Save(sampleYAML("T", "Cliente", "2026-01-01"), "Cliente", "Projeto", "2026-01-01")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.SaveAttachment("docs/2026-01-cliente-projeto", "imagem-usuario-1.jpg", []byte{0xff}); err != nil {
		t.Fatalf("SaveAttachment: %v", err)
	}

	if err := s.Delete(rel); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "docs", "2026-01-cliente-projeto")); !os.IsNotExist(err) {
		t.Errorf("proposal directory should be gone, stat err = %v", err)
	}
}

func TestDeleteMissingDocument(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.Delete("docs/nada/proposta.yml")
	var nf *proposal.DocumentNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected DocumentNotFoundError, got %v", err)
	}
}

func TestRenameDir(t *testing.T) {
	s, root := newTestStore(t)
	if _, err := s.Save(sampleYAML("T", "Cliente", "2026-01-01"), "Cliente", "Projeto", "2026-01-01"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	newRel, err := s.RenameDir("2026-01-cliente-projeto", "2026-02-cliente-projeto")
	if err != nil {
		t.Fatalf("RenameDir: %v", err)
	}
	want := "docs/2026-02-cliente-projeto/proposta-cliente-projeto.yml"
	if newRel != want {
		t.Errorf("new path = %q, want %q", newRel, want)
	}
	if _, err := os.Stat(filepath.Join(root, "docs", "2026-01-cliente-projeto")); !os.IsNotExist(err) {
		t.Errorf("old directory still present")
	}

	if _, err := s.RenameDir("2026-09-nao-existe", "2026-10-x"); err != nil {
		var nf *proposal.DocumentNotFoundError
		if !errors.As(err, &nf) {
			t.Errorf("expected DocumentNotFoundError for missing source, got %v", err)
		}
	} else {
		t.Error("expected error for missing source directory")
	}

	if err := os.MkdirAll(filepath.Join(root, "docs", "2026-03-ocupada"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RenameDir("2026-02-cliente-projeto", "2026-03-ocupada"); !errors.Is(err, proposal.ErrDirExists) {
		t.Errorf("expected ErrDirExists, got %v", err)
	}

	if _, err := s.RenameDir("a/b", "c"); err == nil {
		t.Error("expected error for non-bare directory name")
	}
}

func TestSaveAttachment(t *testing.T) {
	s, root := newTestStore(t)
	rel, err := s.SaveAttachment("docs/2026-01-cliente-projeto", "capa.png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("SaveAttachment: %v", err)
	}
	if rel != "docs/2026-01-cliente-projeto/capa.png" {
		t.Errorf("rel = %q", rel)
	}
	b, err := os.ReadFile(filepath.Join(root, "docs", "2026-01-cliente-projeto", "capa.png"))
	if err != nil || string(b) != "png-bytes" {
		t.Errorf("attachment content wrong: %q err=%v", b, err)
	}

	if _, err := s.SaveAttachment("docs/2026-01-cliente-projeto", "sub/dir.png", nil); err == nil {
		t.Error("expected error for attachment name with separators")
	}
}
