package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/brianndofor/clint/internal/changeset"
	"github.com/brianndofor/clint/internal/config"
	"github.com/brianndofor/clint/internal/diagnostic"
	"github.com/brianndofor/clint/internal/filter"
	"github.com/brianndofor/clint/internal/github"
	"github.com/brianndofor/clint/internal/logger"
	"github.com/brianndofor/clint/internal/orchestrator"
	"github.com/brianndofor/clint/internal/tools"
)

func run(ctx context.Context, flagSet *pflag.FlagSet, f *flags) (orchestrator.Verdict, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return orchestrator.Verdict{}, err
	}
	applyFlagOverrides(&cfg, flagSet, f)

	log := logger.New(f.verbose)
	ci := config.FromEnv()

	fileFilter := config.NewFileFilter(cfg.Files)
	if err := fileFilter.AddGitmodules(f.repoRoot); err != nil {
		return orchestrator.Verdict{}, err
	}
	files, err := fileFilter.Discover(f.repoRoot)
	if err != nil {
		return orchestrator.Verdict{}, err
	}
	log.Debug("discovered files", "count", len(files))

	opts, err := buildOptions(ctx, cfg, ci, f, files)
	if err != nil {
		return orchestrator.Verdict{}, err
	}

	var platform orchestrator.Platform
	var client *github.Client
	if ci.Token != "" && ci.Repo != "" {
		client = github.NewClient(ci.Token, os.Getenv("GITHUB_API_URL"))
		platform = client
	}

	pipeline := &orchestrator.Pipeline{
		Log:      log,
		Runner:   tools.RealRunner{},
		Resolver: buildResolver(client, ci, f),
		Platform: platform,
		Opts:     opts,
	}

	logger.StartGroup("clint")
	verdict, err := pipeline.Run(ctx)
	logger.EndGroup()
	if err != nil {
		return verdict, err
	}

	log.Info("run complete",
		"files", verdict.FilesChecked,
		"format_files", verdict.FormatFiles,
		"tidy_notes", verdict.TidyNotes,
		"suppressed", verdict.Suppressed,
		"tool_failures", verdict.ToolFailures)
	return verdict, nil
}

// applyFlagOverrides lets explicit flags win over the config file.
func applyFlagOverrides(cfg *config.Config, flagSet *pflag.FlagSet, f *flags) {
	if flagSet.Changed("style") {
		cfg.Style = f.style
	}
	if flagSet.Changed("tidy-checks") {
		cfg.Checks = f.tidyChecks
	}
	if flagSet.Changed("database") {
		cfg.Database = f.database
	}
	if flagSet.Changed("extra-arg") {
		cfg.ExtraArgs = f.extraArgs
	}
	if flagSet.Changed("tool-version") {
		cfg.Version = f.toolVer
	}
	if flagSet.Changed("no-format") {
		cfg.NoFormat = f.noFormat
	}
	if flagSet.Changed("no-tidy") {
		cfg.NoTidy = f.noTidy
	}
	if flagSet.Changed("ignore") {
		cfg.Files.Ignore = append(cfg.Files.Ignore, f.ignore...)
	}
	if flagSet.Changed("extensions") {
		cfg.Files.Extensions = f.extensions
	}
	if flagSet.Changed("jobs") {
		cfg.Concurrency = f.jobs
	}
	if flagSet.Changed("fail-on") {
		cfg.FailOn = f.failOn
	}
	if flagSet.Changed("tool-timeout") {
		cfg.ToolTimeoutSeconds = f.toolTimeout
	}
	if flagSet.Changed("lines-changed-only") && f.linesChangedOnly {
		cfg.LineFilter.Policy = "changed-lines"
	} else if flagSet.Changed("files-changed-only") && f.filesChangedOnly {
		cfg.LineFilter.Policy = "changed-files"
	}
	if flagSet.Changed("file-annotations") {
		cfg.Feedback.Annotations = f.annotations
	}
	if flagSet.Changed("review") {
		cfg.Feedback.Review = f.review
	}
	if flagSet.Changed("passive-review") {
		cfg.Feedback.PassiveReview = f.passiveReview
	}
	if flagSet.Changed("thread-comments") {
		cfg.Feedback.ThreadComment = f.threadComments
	}
	if flagSet.Changed("step-summary") {
		cfg.Feedback.StepSummary = f.stepSummary
	}
	if flagSet.Changed("lgtm") {
		cfg.Feedback.LGTM = f.lgtm
	}
}

func buildOptions(ctx context.Context, cfg config.Config, ci config.CI, f *flags, files []string) (orchestrator.Options, error) {
	opts := orchestrator.Options{
		Repo:  ci.Repo,
		PR:    ci.PR,
		SHA:   ci.SHA,
		Root:  f.repoRoot,
		Files: files,

		Style:     cfg.Style,
		Checks:    cfg.Checks,
		Database:  cfg.Database,
		ExtraArgs: cfg.ExtraArgs,

		ToolTimeout: cfg.ToolTimeout(),
		Concurrency: cfg.Concurrency,

		Policy:        parsePolicy(cfg.LineFilter.Policy),
		KeepFileLevel: cfg.LineFilter.KeepFileLevel,
		FailSeverity:  diagnostic.ParseSeverity(cfg.FailOn),

		Annotations:   cfg.Feedback.Annotations,
		Review:        cfg.Feedback.Review,
		PassiveReview: cfg.Feedback.PassiveReview,
		ThreadComment: parseCommentMode(cfg.Feedback.ThreadComment),
		StepSummary:   cfg.Feedback.StepSummary,
		LGTM:          cfg.Feedback.LGTM,
	}

	runner := tools.RealRunner{}
	if !cfg.NoFormat {
		exe, err := tools.FindTool("clang-format", cfg.Version)
		if err != nil {
			return orchestrator.Options{}, err
		}
		opts.FormatExe = exe
		opts.FormatVersion = tools.Version(ctx, runner, exe)
	}
	if !cfg.NoTidy {
		exe, err := tools.FindTool("clang-tidy", cfg.Version)
		if err != nil {
			return orchestrator.Options{}, err
		}
		opts.TidyExe = exe
		opts.TidyVersion = tools.Version(ctx, runner, exe)
	}
	if opts.FormatExe == "" && opts.TidyExe == "" {
		return orchestrator.Options{}, fmt.Errorf("both tools disabled, nothing to run")
	}
	return opts, nil
}

// buildResolver prefers the pull request's patch fragments, falls back to a
// local git diff, and yields no resolver when neither source exists.
func buildResolver(client *github.Client, ci config.CI, f *flags) orchestrator.Resolver {
	if client != nil && ci.PR > 0 {
		return changeset.RemoteResolver{Client: client, Repo: ci.Repo, Number: ci.PR}
	}
	if f.diffBase != "" {
		return changeset.LocalResolver{Git: changeset.RealGitRunner{}, Dir: f.repoRoot, Base: f.diffBase, Head: "HEAD"}
	}
	return nil
}

func parsePolicy(s string) filter.Policy {
	switch strings.ToLower(s) {
	case "changed-files":
		return filter.ChangedFilesOnly
	case "changed-lines":
		return filter.ChangedLinesOnly
	default:
		return filter.AllLines
	}
}

func parseCommentMode(s string) orchestrator.CommentMode {
	switch strings.ToLower(s) {
	case "update":
		return orchestrator.CommentUpdate
	case "recreate":
		return orchestrator.CommentRecreate
	default:
		return orchestrator.CommentNone
	}
}
