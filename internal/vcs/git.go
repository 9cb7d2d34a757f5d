// Package vcs reads repository context from the git CLI. All queries
// are read-only. Callers treat any error as "git unavailable" and
// degrade rather than retry.
package vcs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Summary is one point-in-time view of the working tree.
type Summary struct {
	Branch        string
	SHA           string
	ShortSHA      string
	LastCommit    string
	Dirty         bool
	ModifiedFiles []string
}

// StatusLine renders the uncommitted-change state in one short phrase.
func (s *Summary) StatusLine() string {
	if !s.Dirty {
		return "clean"
	}
	n := len(s.ModifiedFiles)
	if n == 1 {
		return "1 uncommitted change"
	}
	return fmt.Sprintf("%d uncommitted changes", n)
}

// Snapshot gathers branch, HEAD, last commit, and modified files for
// dir. It fails when dir is not inside a work tree or git is missing;
// the caller decides whether that is fatal.
func Snapshot(ctx context.Context, dir string) (*Summary, error) {
	if err := checkRepo(ctx, dir); err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}

	branch, err := run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil, err
	}
	sha, err := run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}
	short, err := run(ctx, dir, "rev-parse", "--short", "HEAD")
	if err != nil {
		return nil, err
	}
	last, err := run(ctx, dir, "log", "-1", "--pretty=format:%h %s")
	if err != nil {
		return nil, err
	}
	status, err := run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	modified := parseStatus(status)
	return &Summary{
		Branch:        branch,
		SHA:           sha,
		ShortSHA:      short,
		LastCommit:    last,
		Dirty:         len(modified) > 0,
		ModifiedFiles: modified,
	}, nil
}

func checkRepo(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = dir
	return cmd.Run()
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %w", args[0], err)
	}
	// Trailing newlines only: porcelain status lines carry a
	// significant leading space.
	return strings.TrimRight(string(out), "\n"), nil
}

// parseStatus extracts file paths from `git status --porcelain`
// output. Renames report their new path.
func parseStatus(output string) []string {
	if output == "" {
		return nil
	}
	var files []string
	for _, line := range strings.Split(output, "\n") {
		if len(line) < 4 {
			continue
		}
		path := line[3:]
		if _, after, ok := strings.Cut(path, " -> "); ok {
			path = after
		}
		files = append(files, path)
	}
	return files
}
