package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/brianndofor/clint/internal/changeset"
	"github.com/brianndofor/clint/internal/diagnostic"
	"github.com/brianndofor/clint/internal/feedback"
	"github.com/brianndofor/clint/internal/github"
)

// publish fans the composed artifacts out to the platform. Individual
// artifact failures are recorded on the verdict rather than aborting the
// run; only a missing platform for a requested artifact is silent.
func (p *Pipeline) publish(ctx context.Context, diags []diagnostic.Diagnostic, cs *changeset.ChangeSet, verdict *Verdict) error {
	if p.Platform == nil {
		return nil
	}
	meta := p.meta()

	if p.Opts.Annotations {
		if err := p.recordPublish(verdict, "annotations", p.publishAnnotations(ctx, diags, meta, *verdict)); err != nil {
			return err
		}
	}
	if p.Opts.Review && cs != nil {
		if err := p.recordPublish(verdict, "review", p.publishReview(ctx, diags, cs, meta, verdict)); err != nil {
			return err
		}
	}
	if p.Opts.ThreadComment != CommentNone {
		if err := p.recordPublish(verdict, "comment", p.publishComment(ctx, diags, meta)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) meta() feedback.Meta {
	return feedback.Meta{
		Repo:          p.Opts.Repo,
		SHA:           p.Opts.SHA,
		Style:         p.Opts.Style,
		FormatVersion: p.Opts.FormatVersion,
		TidyVersion:   p.Opts.TidyVersion,
	}
}

// recordPublish captures a recoverable publish error on the verdict. A
// rejected token is returned instead: the remaining artifacts would fail
// the same way, so it aborts the run.
func (p *Pipeline) recordPublish(verdict *Verdict, artifact string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, github.ErrAuthentication) {
		return fmt.Errorf("publish %s: %w", artifact, err)
	}
	if errors.Is(err, github.ErrAmbiguousPublish) {
		verdict.PublishAmbiguous++
		p.Log.Error("publish outcome unknown, not retrying", "artifact", artifact, "err", err)
		return nil
	}
	verdict.PublishFailures++
	p.Log.Error("publish failed", "artifact", artifact, "err", err)
	return nil
}

func (p *Pipeline) publishAnnotations(ctx context.Context, diags []diagnostic.Diagnostic, meta feedback.Meta, verdict Verdict) error {
	anns := feedback.ComposeAnnotations(diags, meta)
	conclusion := "success"
	title := "clean"
	if len(anns) > 0 {
		conclusion = "neutral"
		title = fmt.Sprintf("%d file(s) not formatted, %d concern(s)", verdict.FormatFiles, verdict.TidyNotes)
	}
	summary := feedback.ComposeSummary(diags, meta)
	return p.Platform.PublishCheckRun(ctx, p.Opts.Repo, p.Opts.SHA, "clint", title, summary, conclusion, anns)
}

func (p *Pipeline) publishReview(ctx context.Context, diags []diagnostic.Diagnostic, cs *changeset.ChangeSet, meta feedback.Meta, verdict *Verdict) error {
	pm, err := changeset.BuildPositionMap(cs)
	if err != nil {
		return fmt.Errorf("index diff positions: %w", err)
	}
	batch, err := feedback.ComposeReview(diags, pm, p.ReadContent, meta, p.Opts.PassiveReview)
	if err != nil {
		return err
	}
	verdict.OutsideDiff = batch.OutsideDiff

	if err := p.dismissStaleReviews(ctx); err != nil {
		p.Log.Warn("dismiss stale reviews", "err", err)
	}
	if pr, err := p.Platform.PullRequest(ctx, p.Opts.Repo, p.Opts.PR); err == nil {
		// drafts and closed pull requests keep the stale-review dismissal
		// but never receive a fresh review
		if pr.Draft || pr.State != "open" {
			p.Log.Info("skipping review", "draft", pr.Draft, "state", pr.State)
			return nil
		}
	}
	if batch.Event == "APPROVE" && !p.Opts.LGTM {
		return nil
	}
	return p.Platform.CreateReview(ctx, p.Opts.Repo, p.Opts.PR, p.Opts.SHA, batch)
}

// dismissStaleReviews retires earlier runs' reviews so the thread does not
// accumulate outdated requests for changes.
func (p *Pipeline) dismissStaleReviews(ctx context.Context) error {
	reviews, err := p.Platform.ListReviews(ctx, p.Opts.Repo, p.Opts.PR)
	if err != nil {
		return err
	}
	for _, r := range reviews {
		if !strings.Contains(r.Body, feedback.Marker) || r.State != "CHANGES_REQUESTED" {
			continue
		}
		if err := p.Platform.DismissReview(ctx, p.Opts.Repo, p.Opts.PR, r.ID, "outdated by newer run"); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) publishComment(ctx context.Context, diags []diagnostic.Diagnostic, meta feedback.Meta) error {
	comments, err := p.Platform.ListComments(ctx, p.Opts.Repo, p.Opts.PR)
	if err != nil {
		return err
	}
	var mine []github.Comment
	for _, c := range comments {
		if strings.Contains(c.Body, feedback.Marker) {
			mine = append(mine, c)
		}
	}

	clean := feedback.TallyOf(diags).Clean()
	if clean && !p.Opts.LGTM {
		// no concerns and quiet mode: retire the stale report if present
		for _, c := range mine {
			if err := p.Platform.DeleteComment(ctx, p.Opts.Repo, c.ID); err != nil {
				return err
			}
		}
		return nil
	}

	body := feedback.ComposeComment(diags, meta)
	switch p.Opts.ThreadComment {
	case CommentUpdate:
		if len(mine) > 0 {
			return p.Platform.UpdateComment(ctx, p.Opts.Repo, mine[0].ID, body)
		}
		return p.Platform.CreateComment(ctx, p.Opts.Repo, p.Opts.PR, body)
	case CommentRecreate:
		for _, c := range mine {
			if err := p.Platform.DeleteComment(ctx, p.Opts.Repo, c.ID); err != nil {
				return err
			}
		}
		return p.Platform.CreateComment(ctx, p.Opts.Repo, p.Opts.PR, body)
	}
	return nil
}

// writeActionsFiles appends the run's outputs to the workflow command files
// when running under Actions.
func (p *Pipeline) writeActionsFiles(diags []diagnostic.Diagnostic, verdict Verdict) error {
	if path := os.Getenv("GITHUB_OUTPUT"); path != "" {
		out := fmt.Sprintf("checks-failed=%d\nclang-format-checks-failed=%d\nclang-tidy-checks-failed=%d\n",
			verdict.FormatFiles+verdict.TidyNotes, verdict.FormatFiles, verdict.TidyNotes)
		if err := appendFile(path, out); err != nil {
			return err
		}
	}
	if !p.Opts.StepSummary {
		return nil
	}
	if path := os.Getenv("GITHUB_STEP_SUMMARY"); path != "" {
		summary := feedback.ComposeSummary(diags, p.meta())
		if err := appendFile(path, summary); err != nil {
			return err
		}
	}
	return nil
}

func appendFile(path, content string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(content)
	cerr := f.Close()
	if werr != nil {
		return werr
	}
	return cerr
}
