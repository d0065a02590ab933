package changeset

import (
	"context"
	"fmt"
)

// FileLister is the slice of the platform client the remote resolver needs:
// the paginated list-changed-files endpoint of a pull request.
type FileLister interface {
	ListChangedFiles(ctx context.Context, repo string, number int) ([]PatchFile, error)
}

// RemoteResolver builds the change set from the pull request's per-file
// patch fragments.
type RemoteResolver struct {
	Client FileLister
	Repo   string
	Number int
}

func (r RemoteResolver) Resolve(ctx context.Context) (*ChangeSet, error) {
	if r.Client == nil || r.Repo == "" || r.Number <= 0 {
		return nil, ErrUnavailable
	}
	files, err := r.Client.ListChangedFiles(ctx, r.Repo, r.Number)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return FromPatchFiles(files)
}
