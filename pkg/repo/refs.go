package repo

import (
	"fmt"
	"strings"
)

// CurrentBranch returns the branch HEAD points at, or "" when HEAD is
// detached.
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	if name, ok := strings.CutPrefix(head, "refs/heads/"); ok {
		return name, nil
	}
	return "", nil
}
