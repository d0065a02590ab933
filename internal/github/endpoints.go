package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/brianndofor/clint/internal/changeset"
	"github.com/brianndofor/clint/internal/feedback"
)

// PullRequest is the subset of the pull-request resource the pipeline needs.
type PullRequest struct {
	Number int    `json:"number"`
	State  string `json:"state"`
	Draft  bool   `json:"draft"`
	Head   Ref    `json:"head"`
	Base   Ref    `json:"base"`
}

type Ref struct {
	SHA string `json:"sha"`
	Ref string `json:"ref"`
}

func (c *Client) PullRequest(ctx context.Context, repo string, number int) (PullRequest, error) {
	var pr PullRequest
	url := fmt.Sprintf("%s/repos/%s/pulls/%d", c.base, repo, number)
	if err := c.getJSON(ctx, url, &pr); err != nil {
		return PullRequest{}, err
	}
	return pr, nil
}

type changedFile struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Patch    string `json:"patch"`
}

// ListChangedFiles pages through a pull request's files and returns them as
// patch fragments for change-set construction. Files the platform reports
// without a patch (binary, too large) come back with an empty fragment.
func (c *Client) ListChangedFiles(ctx context.Context, repo string, number int) ([]changeset.PatchFile, error) {
	url := fmt.Sprintf("%s/repos/%s/pulls/%d/files?per_page=100", c.base, repo, number)
	var out []changeset.PatchFile
	err := c.getPages(ctx, url, func(body []byte) error {
		var files []changedFile
		if err := json.Unmarshal(body, &files); err != nil {
			return fmt.Errorf("decode changed files: %w", err)
		}
		for _, f := range files {
			out = append(out, changeset.PatchFile{Path: f.Filename, Status: f.Status, Patch: f.Patch})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Comment is an issue comment on the pull-request thread.
type Comment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
	User struct {
		Login string `json:"login"`
	} `json:"user"`
}

func (c *Client) ListComments(ctx context.Context, repo string, number int) ([]Comment, error) {
	url := fmt.Sprintf("%s/repos/%s/issues/%d/comments?per_page=100", c.base, repo, number)
	var out []Comment
	err := c.getPages(ctx, url, func(body []byte) error {
		var comments []Comment
		if err := json.Unmarshal(body, &comments); err != nil {
			return fmt.Errorf("decode comments: %w", err)
		}
		out = append(out, comments...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type commentRequest struct {
	Body string `json:"body"`
}

func (c *Client) CreateComment(ctx context.Context, repo string, number int, body string) error {
	url := fmt.Sprintf("%s/repos/%s/issues/%d/comments", c.base, repo, number)
	return c.mutate(ctx, http.MethodPost, url, commentRequest{Body: body}, nil)
}

func (c *Client) UpdateComment(ctx context.Context, repo string, id int64, body string) error {
	url := fmt.Sprintf("%s/repos/%s/issues/comments/%d", c.base, repo, id)
	return c.mutate(ctx, http.MethodPatch, url, commentRequest{Body: body}, nil)
}

func (c *Client) DeleteComment(ctx context.Context, repo string, id int64) error {
	url := fmt.Sprintf("%s/repos/%s/issues/comments/%d", c.base, repo, id)
	return c.mutate(ctx, http.MethodDelete, url, nil, nil)
}

// Review is an existing pull-request review, listed for dismissal of stale
// runs.
type Review struct {
	ID    int64  `json:"id"`
	State string `json:"state"`
	Body  string `json:"body"`
	User  struct {
		Login string `json:"login"`
	} `json:"user"`
}

func (c *Client) ListReviews(ctx context.Context, repo string, number int) ([]Review, error) {
	url := fmt.Sprintf("%s/repos/%s/pulls/%d/reviews?per_page=100", c.base, repo, number)
	var out []Review
	err := c.getPages(ctx, url, func(body []byte) error {
		var reviews []Review
		if err := json.Unmarshal(body, &reviews); err != nil {
			return fmt.Errorf("decode reviews: %w", err)
		}
		out = append(out, reviews...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type createReviewRequest struct {
	CommitID string                   `json:"commit_id,omitempty"`
	Body     string                   `json:"body"`
	Event    string                   `json:"event"`
	Comments []feedback.ReviewComment `json:"comments,omitempty"`
}

func (c *Client) CreateReview(ctx context.Context, repo string, number int, sha string, batch feedback.ReviewBatch) error {
	url := fmt.Sprintf("%s/repos/%s/pulls/%d/reviews", c.base, repo, number)
	req := createReviewRequest{
		CommitID: sha,
		Body:     batch.Body,
		Event:    batch.Event,
		Comments: batch.Comments,
	}
	return c.mutate(ctx, http.MethodPost, url, req, nil)
}

type dismissReviewRequest struct {
	Message string `json:"message"`
	Event   string `json:"event"`
}

func (c *Client) DismissReview(ctx context.Context, repo string, number int, reviewID int64, message string) error {
	url := fmt.Sprintf("%s/repos/%s/pulls/%d/reviews/%d/dismissals", c.base, repo, number, reviewID)
	return c.mutate(ctx, http.MethodPut, url, dismissReviewRequest{Message: message, Event: "DISMISS"}, nil)
}

// maxAnnotationsPerCall is the platform's per-request annotation cap.
const maxAnnotationsPerCall = 50

type checkRunOutput struct {
	Title       string                `json:"title"`
	Summary     string                `json:"summary"`
	Annotations []feedback.Annotation `json:"annotations,omitempty"`
}

type checkRunRequest struct {
	Name       string          `json:"name"`
	HeadSHA    string          `json:"head_sha,omitempty"`
	Status     string          `json:"status,omitempty"`
	Conclusion string          `json:"conclusion,omitempty"`
	Output     *checkRunOutput `json:"output,omitempty"`
}

type checkRunResponse struct {
	ID int64 `json:"id"`
}

// PublishCheckRun creates a completed check run carrying the annotation
// list, batching beyond the per-request cap via follow-up updates.
func (c *Client) PublishCheckRun(ctx context.Context, repo, sha, name, title, summary, conclusion string, anns []feedback.Annotation) error {
	first := anns
	if len(first) > maxAnnotationsPerCall {
		first = anns[:maxAnnotationsPerCall]
	}
	var created checkRunResponse
	url := fmt.Sprintf("%s/repos/%s/check-runs", c.base, repo)
	req := checkRunRequest{
		Name:       name,
		HeadSHA:    sha,
		Status:     "completed",
		Conclusion: conclusion,
		Output:     &checkRunOutput{Title: title, Summary: summary, Annotations: first},
	}
	if err := c.mutate(ctx, http.MethodPost, url, req, &created); err != nil {
		return err
	}

	for start := maxAnnotationsPerCall; start < len(anns); start += maxAnnotationsPerCall {
		end := start + maxAnnotationsPerCall
		if end > len(anns) {
			end = len(anns)
		}
		update := checkRunRequest{
			Name:   name,
			Output: &checkRunOutput{Title: title, Summary: summary, Annotations: anns[start:end]},
		}
		patchURL := fmt.Sprintf("%s/repos/%s/check-runs/%d", c.base, repo, created.ID)
		if err := c.mutate(ctx, http.MethodPatch, patchURL, update, nil); err != nil {
			return fmt.Errorf("annotation batch %d: %w", start/maxAnnotationsPerCall+1, err)
		}
	}
	return nil
}
