package gitops

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

var refPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

// CloneAndCheckout makes a shallow clone of repo at ref into dest.
func CloneAndCheckout(repo, ref, dest string) error {
	if repo == "" || strings.HasPrefix(repo, "-") {
		return fmt.Errorf("invalid repository %q", repo)
	}
	if !refPattern.MatchString(ref) || strings.Contains(ref, "..") {
		return fmt.Errorf("invalid ref %q", ref)
	}
	cmd := exec.Command("git", "clone", "--branch", ref, "--depth", "1", "--", repo, dest)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone: %s: %w", out, err)
	}
	return nil
}

// HeadCommit returns the commit checked out in repoDir.
func HeadCommit(repoDir string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "HEAD")
	cmd.Dir = repoDir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
