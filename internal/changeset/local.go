package changeset

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitRunner abstracts git execution so resolvers can be tested against
// recorded output.
type GitRunner interface {
	Run(ctx context.Context, dir string, args ...string) ([]byte, error)
}

type RealGitRunner struct{}

func (RealGitRunner) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git %s failed: %w\n%s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// LocalResolver computes the change set from a checked-out repository by
// diffing two refs. With no refs it diffs the working tree against HEAD.
type LocalResolver struct {
	Git  GitRunner
	Dir  string
	Base string
	Head string
}

func (r LocalResolver) Resolve(ctx context.Context) (*ChangeSet, error) {
	args := []string{"diff", "--no-color", "--no-ext-diff"}
	switch {
	case r.Base != "" && r.Head != "":
		args = append(args, r.Base+"..."+r.Head)
	case r.Base != "":
		args = append(args, r.Base)
	default:
		args = append(args, "HEAD")
	}
	out, err := r.Git.Run(ctx, r.Dir, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return New(), nil
	}
	return FromUnifiedDiff(out)
}
