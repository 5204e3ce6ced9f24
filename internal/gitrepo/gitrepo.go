// Package gitrepo publishes proposal changes by committing and pushing the
// proposals repository. A missing .git directory is a soft condition, not an
// error: local-only setups still get their PDFs, they just are not synced.
package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

type Publisher struct {
	repoRoot string
	log      *slog.Logger
}

func New(repoRoot string, log *slog.Logger) *Publisher {
	return &Publisher{repoRoot: repoRoot, log: log}
}

// GitError is a failed git invocation with its stderr diagnostic.
type GitError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *GitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("git %s: %v: %s", e.Op, e.Err, e.Stderr)
	}
	return fmt.Sprintf("git %s: %v", e.Op, e.Err)
}

func (e *GitError) Unwrap() error { return e.Err }

// PushResult reports how the publish ended.
type PushResult struct {
	// Skipped means the proposals directory is not a git repository.
	Skipped bool
	// Forced means a rebase conflict was resolved by force-pushing the
	// local state, which is authoritative.
	Forced bool
}

// CommitAndPush stages everything, commits and syncs with origin/main. A
// rebase conflict aborts the rebase and force-pushes instead.
func (p *Publisher) CommitAndPush(ctx context.Context, message string) (*PushResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, errors.New("commit message cannot be empty")
	}
	if _, err := p.git(ctx, "rev-parse", "--git-dir"); err != nil {
		p.log.Warn("proposals directory is not a git repository, skipping push", "root", p.repoRoot)
		return &PushResult{Skipped: true}, nil
	}

	// A submodule checkout often lands on a detached HEAD.
	if branch, err := p.git(ctx, "rev-parse", "--abbrev-ref", "HEAD"); err == nil && strings.TrimSpace(branch) == "HEAD" {
		p.log.Info("detached HEAD detected, checking out main")
		if _, err := p.git(ctx, "checkout", "main"); err != nil {
			p.log.Warn("could not leave detached HEAD", "error", err)
		}
	}

	if _, err := p.git(ctx, "add", "."); err != nil {
		return nil, err
	}
	if _, err := p.git(ctx, "commit", "-m", message); err != nil {
		return nil, err
	}

	if _, err := p.git(ctx, "pull", "--rebase", "origin", "main"); err != nil {
		var gerr *GitError
		if errors.As(err, &gerr) && isRebaseConflict(gerr) {
			p.log.Warn("rebase conflict, falling back to force push", "error", err)
			_, _ = p.git(ctx, "rebase", "--abort")
			if _, err := p.git(ctx, "push", "--force", "--set-upstream", "origin", "main"); err != nil {
				return nil, err
			}
			return &PushResult{Forced: true}, nil
		}
		p.log.Warn("pull --rebase failed, attempting push anyway", "error", err)
	}

	if _, err := p.git(ctx, "push", "--set-upstream", "origin", "main"); err != nil {
		return nil, err
	}
	p.log.Info("pushed proposals repository", "message", message)
	return &PushResult{}, nil
}

func isRebaseConflict(e *GitError) bool {
	return strings.Contains(e.Stderr, "could not apply") ||
		strings.Contains(e.Stderr, "Resolve all conflicts")
}

func (p *Publisher) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = p.repoRoot
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = strings.TrimSpace(stdout.String())
		}
		return stdout.String(), &GitError{Op: args[0], Stderr: diag, Err: err}
	}
	return stdout.String(), nil
}
