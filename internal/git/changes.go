// Package git inspects the working tree to fill in invocation details
// the caller did not pass explicitly.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// ChangeDetector detects files that have changed in git
type ChangeDetector struct {
	dir        string
	baseBranch string // branch to compare against (e.g., "main", "develop")
}

// NewChangeDetector creates a change detector for the repository at dir.
// An empty dir means the current working directory.
func NewChangeDetector(dir, baseBranch string) *ChangeDetector {
	if baseBranch == "" {
		baseBranch = "main"
	}
	return &ChangeDetector{dir: dir, baseBranch: baseBranch}
}

// CurrentBranch returns the checked out branch name
func (cd *ChangeDetector) CurrentBranch(ctx context.Context) (string, error) {
	out, err := cd.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to determine current branch: %w", err)
	}
	branch := strings.TrimSpace(out)
	if branch == "HEAD" {
		return "", fmt.Errorf("failed to determine current branch: HEAD is detached")
	}
	return branch, nil
}

// GetChangedFiles returns files that differ from the base branch, combined
// with staged and unstaged changes. The result is sorted.
func (cd *ChangeDetector) GetChangedFiles(ctx context.Context) ([]string, error) {
	if _, err := cd.git(ctx, "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}

	files := make(map[string]bool)
	collect := func(out string) {
		for _, f := range strings.Split(out, "\n") {
			if f = strings.TrimSpace(f); f != "" {
				files[f] = true
			}
		}
	}

	// Unstaged and staged modifications
	if out, err := cd.git(ctx, "diff", "--name-only"); err == nil {
		collect(out)
	}
	if out, err := cd.git(ctx, "diff", "--cached", "--name-only"); err == nil {
		collect(out)
	}

	// Commits not in the base branch; CI checkouts often only have origin/<base>
	if out, err := cd.diffAgainstBase(ctx); err == nil {
		collect(out)
	}

	result := make([]string, 0, len(files))
	for f := range files {
		result = append(result, f)
	}
	sort.Strings(result)
	return result, nil
}

func (cd *ChangeDetector) diffAgainstBase(ctx context.Context) (string, error) {
	for _, ref := range []string{cd.baseBranch, "origin/" + cd.baseBranch} {
		if out, err := cd.git(ctx, "diff", "--name-only", ref); err == nil {
			return out, nil
		}
	}

	// Detached HEAD: diff against the merge base instead
	for _, args := range [][]string{
		{"merge-base", "--fork-point", cd.baseBranch},
		{"merge-base", "HEAD", cd.baseBranch},
		{"merge-base", "HEAD", "origin/" + cd.baseBranch},
	} {
		sha, err := cd.git(ctx, args...)
		if err != nil || strings.TrimSpace(sha) == "" {
			continue
		}
		return cd.git(ctx, "diff", "--name-only", strings.TrimSpace(sha))
	}
	return "", fmt.Errorf("no base reference for %s", cd.baseBranch)
}

// FilterUnderPath returns the files located under path
func FilterUnderPath(files []string, path string) []string {
	path = strings.TrimSuffix(path, "/")
	if path == "" || path == "." {
		return files
	}

	var result []string
	for _, file := range files {
		if strings.HasPrefix(file, path+"/") || file == path {
			result = append(result, file)
		}
	}
	return result
}

func (cd *ChangeDetector) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = cd.dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
