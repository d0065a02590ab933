package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brianndofor/clint/internal/feedback"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("test-token", srv.URL)
	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }
	return c, &slept
}

func TestPullRequest(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/app/pulls/42", r.URL.Path)
		require.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		require.Equal(t, "2022-11-28", r.Header.Get("X-GitHub-Api-Version"))
		fmt.Fprint(w, `{"number":42,"state":"open","head":{"sha":"abc123","ref":"fix"},"base":{"sha":"def456","ref":"main"}}`)
	}))

	pr, err := c.PullRequest(context.Background(), "acme/app", 42)
	require.NoError(t, err)
	require.Equal(t, 42, pr.Number)
	require.Equal(t, "abc123", pr.Head.SHA)
	require.Equal(t, "main", pr.Base.Ref)
}

func TestListChangedFilesPagination(t *testing.T) {
	var base string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/app/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"filename":"b.cpp","status":"added","patch":"@@ -0,0 +1,1 @@\n+int b;"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/app/pulls/7/files?per_page=100&page=2>; rel="next"`, base))
		fmt.Fprint(w, `[{"filename":"a.cpp","status":"modified","patch":"@@ -1,1 +1,1 @@\n-int a;\n+long a;"}]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	base = srv.URL

	c := NewClient("test-token", srv.URL)
	files, err := c.ListChangedFiles(context.Background(), "acme/app", 7)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "a.cpp", files[0].Path)
	require.Equal(t, "added", files[1].Status)
}

func TestSecondaryLimitRetriesOnce(t *testing.T) {
	calls := 0
	c, slept := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message":"You have exceeded a secondary rate limit"}`)
			return
		}
		fmt.Fprint(w, `{"number":1}`)
	}))

	_, err := c.PullRequest(context.Background(), "acme/app", 1)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, []time.Duration{2 * time.Second}, *slept)
}

func TestSecondaryLimitSecondRejectionFails(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"message":"rate limit"}`)
	}))

	err := c.CreateComment(context.Background(), "acme/app", 1, "body")
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, 2, calls)
}

func TestPrimaryLimitGate(t *testing.T) {
	reset := time.Now().Add(30 * time.Second)
	c, slept := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ratelimit-remaining", "0")
		w.Header().Set("x-ratelimit-reset", strconv.FormatInt(reset.Unix(), 10))
		fmt.Fprint(w, `{"number":1}`)
	}))
	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.PullRequest(context.Background(), "acme/app", 1)
	require.NoError(t, err)
	require.Empty(t, *slept)

	// quota exhausted: the next call waits for the window to reset
	_, err = c.PullRequest(context.Background(), "acme/app", 1)
	require.NoError(t, err)
	require.Len(t, *slept, 1)
	require.InDelta(t, reset.Sub(now).Seconds(), (*slept)[0].Seconds(), 1.5)
}

func TestAuthenticationError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message":"Bad credentials"}`)
	}))

	_, err := c.PullRequest(context.Background(), "acme/app", 1)
	require.ErrorIs(t, err, ErrAuthentication)
	require.Contains(t, err.Error(), "Bad credentials")
}

func TestCommentLifecycle(t *testing.T) {
	var gotBody string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/app/issues/3/comments", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, `[{"id":11,"body":"old report","user":{"login":"bot"}}]`)
		case http.MethodPost:
			var req commentRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			gotBody = req.Body
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id":12}`)
		}
	})
	mux.HandleFunc("/repos/acme/app/issues/comments/11", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := NewClient("test-token", srv.URL)

	comments, err := c.ListComments(context.Background(), "acme/app", 3)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	require.Equal(t, int64(11), comments[0].ID)

	require.NoError(t, c.DeleteComment(context.Background(), "acme/app", 11))
	require.NoError(t, c.CreateComment(context.Background(), "acme/app", 3, "new report"))
	require.Equal(t, "new report", gotBody)
}

func TestCreateReviewPayload(t *testing.T) {
	var req createReviewRequest
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/acme/app/pulls/9/reviews", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		fmt.Fprint(w, `{"id":1}`)
	}))

	batch := feedback.ReviewBatch{
		Event: "REQUEST_CHANGES",
		Body:  "found concerns",
		Comments: []feedback.ReviewComment{
			{Path: "a.cpp", Body: "```suggestion\nint a;\n```", Line: 4, Side: "RIGHT"},
		},
	}
	require.NoError(t, c.CreateReview(context.Background(), "acme/app", 9, "abc123", batch))
	require.Equal(t, "abc123", req.CommitID)
	require.Equal(t, "REQUEST_CHANGES", req.Event)
	require.Len(t, req.Comments, 1)
	require.Equal(t, 4, req.Comments[0].Line)
}

func TestPublishCheckRunBatchesAnnotations(t *testing.T) {
	anns := make([]feedback.Annotation, 120)
	for i := range anns {
		anns[i] = feedback.Annotation{Path: "a.cpp", Line: i + 1, EndLine: i + 1, Level: "warning", Message: "m"}
	}

	var posts, patches []int
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/app/check-runs", func(w http.ResponseWriter, r *http.Request) {
		var req checkRunRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		posts = append(posts, len(req.Output.Annotations))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":77}`)
	})
	mux.HandleFunc("/repos/acme/app/check-runs/77", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		var req checkRunRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		patches = append(patches, len(req.Output.Annotations))
		fmt.Fprint(w, `{"id":77}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := NewClient("test-token", srv.URL)

	err := c.PublishCheckRun(context.Background(), "acme/app", "abc", "clint", "title", "summary", "neutral", anns)
	require.NoError(t, err)
	require.Equal(t, []int{50}, posts)
	require.Equal(t, []int{50, 20}, patches)
}
