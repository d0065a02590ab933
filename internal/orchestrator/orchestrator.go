package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/brianndofor/clint/internal/changeset"
	"github.com/brianndofor/clint/internal/diagnostic"
	"github.com/brianndofor/clint/internal/feedback"
	"github.com/brianndofor/clint/internal/filter"
	"github.com/brianndofor/clint/internal/github"
	"github.com/brianndofor/clint/internal/tools"
)

// State tracks pipeline progress for logging and post-mortem reporting.
type State int

const (
	StateInit State = iota
	StateChangeSetResolved
	StateToolsRunning
	StateDiagnosticsReady
	StateFeedbackPublished
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateChangeSetResolved:
		return "changeset-resolved"
	case StateToolsRunning:
		return "tools-running"
	case StateDiagnosticsReady:
		return "diagnostics-ready"
	case StateFeedbackPublished:
		return "feedback-published"
	case StateDone:
		return "done"
	default:
		return "failed"
	}
}

// CommentMode selects how the thread comment is maintained across runs.
type CommentMode int

const (
	CommentNone CommentMode = iota
	// CommentUpdate edits the existing marker comment in place.
	CommentUpdate
	// CommentRecreate deletes prior marker comments and posts a new one.
	CommentRecreate
)

// Options is the fully resolved run configuration.
type Options struct {
	Repo string
	PR   int
	SHA  string
	Root string

	Files []string

	FormatExe     string
	TidyExe       string
	FormatVersion string
	TidyVersion   string

	Style     string
	Checks    string
	Database  string
	ExtraArgs []string

	ToolTimeout time.Duration
	Concurrency int

	Policy        filter.Policy
	KeepFileLevel bool

	// FailSeverity is the lowest severity that makes the run fail.
	FailSeverity diagnostic.Severity

	Annotations   bool
	Review        bool
	PassiveReview bool
	ThreadComment CommentMode
	StepSummary   bool
	// LGTM posts clean feedback too; when false a clean run removes any
	// stale marker comment instead.
	LGTM bool
}

// Resolver produces the change set for this run.
type Resolver interface {
	Resolve(ctx context.Context) (*changeset.ChangeSet, error)
}

// Platform is the publishing surface of the REST client, satisfied by
// *github.Client and by in-memory fakes in tests.
type Platform interface {
	PullRequest(ctx context.Context, repo string, number int) (github.PullRequest, error)
	ListComments(ctx context.Context, repo string, number int) ([]github.Comment, error)
	CreateComment(ctx context.Context, repo string, number int, body string) error
	UpdateComment(ctx context.Context, repo string, id int64, body string) error
	DeleteComment(ctx context.Context, repo string, id int64) error
	ListReviews(ctx context.Context, repo string, number int) ([]github.Review, error)
	CreateReview(ctx context.Context, repo string, number int, sha string, batch feedback.ReviewBatch) error
	DismissReview(ctx context.Context, repo string, number int, reviewID int64, message string) error
	PublishCheckRun(ctx context.Context, repo, sha, name, title, summary, conclusion string, anns []feedback.Annotation) error
}

// Verdict is the run outcome: what was found, what was suppressed, and
// how publishing went.
type Verdict struct {
	FilesChecked int
	FormatFiles  int
	TidyNotes    int
	// Concerns counts kept diagnostics at or above the fail severity.
	Concerns         int
	Suppressed       int
	ToolFailures     int
	OutsideDiff      int
	PublishFailures  int
	PublishAmbiguous int
}

// ExitCode maps the verdict to the process exit code: 1 when concerns
// breached the threshold or publishing misfired, 0 otherwise. Operational
// failures surface as errors from Run and exit 2 at the CLI boundary.
func (v Verdict) ExitCode() int {
	if v.Concerns > 0 || v.ToolFailures > 0 || v.PublishFailures > 0 || v.PublishAmbiguous > 0 {
		return 1
	}
	return 0
}

// Pipeline wires the run end to end. Platform may be nil for local runs
// that only report to the terminal.
type Pipeline struct {
	Log      *slog.Logger
	Runner   tools.Runner
	Resolver Resolver
	Platform Platform
	Opts     Options

	state State

	mu      sync.Mutex
	content map[string][]byte
}

func (p *Pipeline) setState(s State) {
	p.state = s
	p.Log.Debug("pipeline state", "state", s.String())
}

// ReadContent loads and caches a file's bytes relative to the repo root.
func (p *Pipeline) ReadContent(path string) ([]byte, error) {
	p.mu.Lock()
	if src, ok := p.content[path]; ok {
		p.mu.Unlock()
		return src, nil
	}
	p.mu.Unlock()

	src, err := os.ReadFile(filepath.Join(p.Opts.Root, filepath.FromSlash(path)))
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	if p.content == nil {
		p.content = map[string][]byte{}
	}
	p.content[path] = src
	p.mu.Unlock()
	return src, nil
}

// Run drives the pipeline: resolve the change set, fan the tools out over
// the files, filter, publish, and report. A context cancellation stops
// in-flight invocations but still reports the partial results gathered so
// far.
func (p *Pipeline) Run(ctx context.Context) (Verdict, error) {
	p.setState(StateInit)

	cs, err := p.resolveChangeSet(ctx)
	if err != nil {
		p.setState(StateFailed)
		return Verdict{}, err
	}
	p.setState(StateChangeSetResolved)

	files := p.filesToCheck(cs)
	if len(files) == 0 {
		p.Log.Info("no files to check")
		p.setState(StateDone)
		return Verdict{}, nil
	}

	p.setState(StateToolsRunning)
	results, runErr := p.runTools(ctx, files, cs)

	var diags []diagnostic.Diagnostic
	verdict := Verdict{FilesChecked: len(files)}
	for _, res := range results {
		if res.Failed() {
			verdict.ToolFailures++
			p.Log.Error("tool invocation failed", "tool", res.Tool.String(), "file", res.Path, "reason", res.Failure)
			continue
		}
		diags = append(diags, res.Diags...)
	}

	filtered := filter.Apply(diags, cs, p.Opts.Policy, p.ReadContent, filter.Options{KeepFileLevel: p.Opts.KeepFileLevel})
	for _, n := range filtered.Suppressed {
		verdict.Suppressed += n
	}
	diags = filtered.Kept
	diagnostic.Sort(diags)
	p.setState(StateDiagnosticsReady)

	tally := feedback.TallyOf(diags)
	verdict.FormatFiles = tally.FormatFiles
	verdict.TidyNotes = tally.TidyNotes
	for _, d := range diags {
		if d.Severity >= p.Opts.FailSeverity {
			verdict.Concerns++
		}
	}

	if runErr != nil {
		// cancelled mid-run: skip the platform, but the partial results
		// still feed the local workflow files
		_ = p.recordPublish(&verdict, "workflow files", p.writeActionsFiles(diags, verdict))
		p.setState(StateFailed)
		return verdict, fmt.Errorf("tool run interrupted: %w", runErr)
	}

	if err := p.publish(ctx, diags, cs, &verdict); err != nil {
		p.setState(StateFailed)
		return verdict, err
	}
	p.setState(StateFeedbackPublished)

	if err := p.recordPublish(&verdict, "workflow files", p.writeActionsFiles(diags, verdict)); err != nil {
		p.setState(StateFailed)
		return verdict, err
	}

	p.setState(StateDone)
	return verdict, nil
}

// resolveChangeSet asks the resolver for the diff. When none is available
// and no line filtering was requested the run degrades to checking every
// line; otherwise the missing diff is fatal.
func (p *Pipeline) resolveChangeSet(ctx context.Context) (*changeset.ChangeSet, error) {
	if p.Resolver == nil {
		return nil, nil
	}
	cs, err := p.Resolver.Resolve(ctx)
	if err != nil {
		if errors.Is(err, changeset.ErrUnavailable) && p.Opts.Policy == filter.AllLines {
			p.Log.Warn("change set unavailable, checking all lines")
			return nil, nil
		}
		return nil, fmt.Errorf("resolve change set: %w", err)
	}
	return cs, nil
}

// filesToCheck intersects the discovered files with the change set when a
// change-aware policy is active.
func (p *Pipeline) filesToCheck(cs *changeset.ChangeSet) []string {
	if cs == nil || p.Opts.Policy == filter.AllLines {
		return p.Opts.Files
	}
	var out []string
	for _, f := range p.Opts.Files {
		if cs.Changed(f) {
			out = append(out, f)
		}
	}
	return out
}

func (p *Pipeline) runTools(ctx context.Context, files []string, cs *changeset.ChangeSet) ([]tools.Result, error) {
	concurrency := p.Opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(int64(concurrency))
	g, ctx := errgroup.WithContext(ctx)

	known := map[string]bool{}
	for _, f := range files {
		known[f] = true
	}

	var mu sync.Mutex
	var results []tools.Result
	collect := func(res tools.Result) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
	}

	for _, file := range files {
		file := file
		ranges := p.rangesFor(cs, file)
		if p.Opts.FormatExe != "" {
			g.Go(func() error {
				if err := sem.Acquire(ctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)
				src, err := p.ReadContent(file)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
				collect(tools.RunFormat(ctx, p.Runner, file, src, tools.FormatOptions{
					Exe:         p.Opts.FormatExe,
					Style:       p.Opts.Style,
					Ranges:      ranges,
					WantPatched: p.Opts.Review,
					Timeout:     p.Opts.ToolTimeout,
				}))
				return nil
			})
		}
		if p.Opts.TidyExe != "" {
			g.Go(func() error {
				if err := sem.Acquire(ctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)
				src, err := p.ReadContent(file)
				if err != nil {
					return fmt.Errorf("read %s: %w", file, err)
				}
				collect(tools.RunTidy(ctx, p.Runner, file, src, p.Opts.Root,
					func(path string) bool { return known[path] },
					tools.TidyOptions{
						Exe:         p.Opts.TidyExe,
						Checks:      p.Opts.Checks,
						Database:    p.Opts.Database,
						ExtraArgs:   p.Opts.ExtraArgs,
						Ranges:      ranges,
						ExportFixes: true,
						Timeout:     p.Opts.ToolTimeout,
						Log:         p.Log,
					}))
				return nil
			})
		}
	}

	err := g.Wait()
	return results, err
}

// rangesFor narrows a tool invocation to the file's changed lines when the
// policy filters by line.
func (p *Pipeline) rangesFor(cs *changeset.ChangeSet, file string) []changeset.LineRange {
	if cs == nil || p.Opts.Policy != filter.ChangedLinesOnly {
		return nil
	}
	f, ok := cs.Lookup(file)
	if !ok || f.New {
		return nil
	}
	return f.Ranges
}
