package git

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// File is one vault artifact to check
type File struct {
	Path  string // relative to the work dir
	Label string
	// Secret files must never be tracked and should be ignored
	Secret bool
}

// FileStatus is the git state of one artifact
type FileStatus struct {
	File
	Exists  bool
	Tracked bool
	Ignored bool
}

// Status contains git integration status information
type Status struct {
	IsRepo bool
	Files  []FileStatus
}

// Problems counts secret files that are tracked or not ignored
func (s *Status) Problems() int {
	n := 0
	for _, f := range s.Files {
		if f.Secret && (f.Tracked || !f.Ignored) {
			n++
		}
	}
	return n
}

// IsGitRepo checks if the working directory is inside a git repository
func IsGitRepo(ctx context.Context, workDir string) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = workDir
	return cmd.Run() == nil
}

// IsTracked checks if a file is tracked by git
func IsTracked(ctx context.Context, workDir, path string) bool {
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--", path)
	cmd.Dir = workDir
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(output))) > 0
}

// IsIgnored checks if a file is ignored by git (handles all .gitignore files)
func IsIgnored(ctx context.Context, workDir, path string) bool {
	cmd := exec.CommandContext(ctx, "git", "check-ignore", "-q", "--no-index", "--", path)
	cmd.Dir = workDir
	// git check-ignore returns exit code 0 if file is ignored
	return cmd.Run() == nil
}

// Check reports the git state of files. A directory outside any repository
// yields a Status with IsRepo false.
func Check(ctx context.Context, workDir string, files []File) (*Status, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return &Status{}, nil
	}
	status := &Status{}
	if !IsGitRepo(ctx, workDir) {
		return status, nil
	}
	status.IsRepo = true

	for _, f := range files {
		_, err := os.Lstat(filepath.Join(workDir, f.Path))
		status.Files = append(status.Files, FileStatus{
			File:    f,
			Exists:  err == nil,
			Tracked: IsTracked(ctx, workDir, f.Path),
			Ignored: IsIgnored(ctx, workDir, f.Path),
		})
	}
	return status, nil
}

// FormatStatus formats git status for display
func FormatStatus(status *Status) string {
	if !status.IsRepo {
		return ""
	}

	var result strings.Builder
	result.WriteString("\nGit Integration:\n")

	for _, f := range status.Files {
		switch {
		case f.Secret && f.Tracked:
			result.WriteString(fmt.Sprintf("   error: %s (%s) is tracked by git (run: git rm --cached %s)\n", f.Label, f.Path, f.Path))
		case f.Secret && !f.Ignored:
			result.WriteString(fmt.Sprintf("   warning: %s (%s) not in .gitignore (add to .gitignore)\n", f.Label, f.Path))
		case f.Secret:
			result.WriteString(fmt.Sprintf("   ok: %s is ignored by git\n", f.Label))
		case f.Tracked:
			result.WriteString(fmt.Sprintf("   ok: %s is tracked, it is encrypted\n", f.Label))
		}
	}

	if status.Problems() == 0 {
		result.WriteString("   ok: no secret files exposed to git\n")
	}
	return result.String()
}
