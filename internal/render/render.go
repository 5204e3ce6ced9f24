// Package render invokes the proposals repository's typesetting script to
// turn a YAML document into a PDF.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/teknestudio/propbot/internal/proposal"
)

// scriptName is the typesetting entrypoint checked into the proposals
// repository. It runs with the repository root as working directory.
const scriptName = "./proposal"

type Renderer struct {
	repoRoot string
	timeout  time.Duration
	log      *slog.Logger
}

func New(repoRoot string, timeout time.Duration, log *slog.Logger) *Renderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Renderer{repoRoot: repoRoot, timeout: timeout, log: log}
}

// Result reports where the PDF landed and how long the script took.
type Result struct {
	PDFPath string
	Elapsed time.Duration
}

// RenderError is a structured failure from the typesetting script, carrying
// its stderr diagnostic (e.g. a referenced image path that is not a file).
type RenderError struct {
	Path     string
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *RenderError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("render %s: timed out", e.Path)
	}
	if e.Stderr != "" {
		return fmt.Sprintf("render %s: %v: %s", e.Path, e.Err, e.Stderr)
	}
	return fmt.Sprintf("render %s: %v", e.Path, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Render runs the script on a repo-relative YAML path, optionally with a
// template identifier as second argument. The generated PDF is located by
// the script's "Generated:" output line, falling back to the newest PDF in
// the document's directory.
func (r *Renderer) Render(ctx context.Context, relPath, template string) (*Result, error) {
	abs := filepath.Join(r.repoRoot, filepath.FromSlash(relPath))
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return nil, &proposal.DocumentNotFoundError{Path: relPath}
		}
		return nil, fmt.Errorf("stat document: %w", err)
	}

	args := []string{relPath}
	if template != "" {
		args = append(args, template)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, scriptName, args...)
	cmd.Dir = r.repoRoot
	// Children of the script must not keep Run blocked past the deadline.
	cmd.WaitDelay = 2 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			r.log.Warn("renderer timed out", "path", relPath, "timeout", r.timeout)
			return nil, &RenderError{Path: relPath, TimedOut: true, Err: ctx.Err()}
		}
		diag := strings.TrimSpace(stderr.String())
		r.log.Error("renderer failed", "path", relPath, "error", err, "stderr", diag)
		return nil, &RenderError{Path: relPath, Stderr: diag, Err: err}
	}
	r.log.Info("rendered document", "path", relPath, "elapsed", elapsed)

	pdf := generatedPath(stdout.String())
	if pdf == "" {
		pdf = r.newestPDF(relPath)
	}
	if pdf == "" {
		// The script usually names the PDF after the YAML file.
		pdf = strings.TrimSuffix(relPath, path.Ext(relPath)) + ".pdf"
	}
	return &Result{PDFPath: pdf, Elapsed: elapsed}, nil
}

// generatedPath extracts the PDF path from the script's "Generated:" line.
func generatedPath(stdout string) string {
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(line, "Generated:")
		if !ok {
			continue
		}
		p := strings.TrimSpace(rest)
		if strings.HasSuffix(p, ".pdf") {
			return filepath.ToSlash(p)
		}
	}
	return ""
}

// newestPDF returns the most recently modified PDF next to the document, or
// "" when the directory has none.
func (r *Renderer) newestPDF(relPath string) string {
	dir := path.Dir(relPath)
	entries, err := os.ReadDir(filepath.Join(r.repoRoot, filepath.FromSlash(dir)))
	if err != nil {
		return ""
	}
	var best string
	var bestTime time.Time
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".pdf") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestTime) {
			best = e.Name()
			bestTime = info.ModTime()
		}
	}
	if best == "" {
		return ""
	}
	return path.Join(dir, best)
}
