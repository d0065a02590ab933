package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags.
var version = "dev"

type flags struct {
	configPath string
	verbose    bool

	style      string
	tidyChecks string
	database   string
	extraArgs  []string
	toolVer    string
	noFormat   bool
	noTidy     bool

	repoRoot   string
	ignore     []string
	extensions []string

	filesChangedOnly bool
	linesChangedOnly bool
	diffBase         string

	jobs        int
	failOn      string
	toolTimeout int

	annotations    bool
	review         bool
	passiveReview  bool
	threadComments string
	stepSummary    bool
	lgtm           bool
}

func NewRootCmd(exitCode *int) *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "clint",
		Short:         "Run clang-format and clang-tidy and report the findings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			verdict, err := run(cmd.Context(), cmd.Flags(), f)
			if err != nil {
				return err
			}
			*exitCode = verdict.ExitCode()
			return nil
		},
	}

	f.register(root)
	root.AddCommand(newVersionCmd())
	return root
}

func (f *flags) register(root *cobra.Command) {
	root.Flags().StringVar(&f.configPath, "config", "", "config file path (default .clint.yaml)")
	root.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")

	root.Flags().StringVar(&f.style, "style", "", "clang-format style (llvm, google, file, ...)")
	root.Flags().StringVar(&f.tidyChecks, "tidy-checks", "", "clang-tidy checks glob list")
	root.Flags().StringVarP(&f.database, "database", "p", "", "path to the compilation database directory")
	root.Flags().StringArrayVar(&f.extraArgs, "extra-arg", nil, "extra compiler argument for clang-tidy (repeatable)")
	root.Flags().StringVar(&f.toolVer, "tool-version", "", "clang tool version hint: major version or install directory")
	root.Flags().BoolVar(&f.noFormat, "no-format", false, "skip clang-format")
	root.Flags().BoolVar(&f.noTidy, "no-tidy", false, "skip clang-tidy")

	root.Flags().StringVar(&f.repoRoot, "repo-root", ".", "repository root to scan")
	root.Flags().StringArrayVar(&f.ignore, "ignore", nil, "glob to skip; prefix with ! to re-include (repeatable)")
	root.Flags().StringArrayVar(&f.extensions, "extensions", nil, "file extensions to check (repeatable)")

	root.Flags().BoolVar(&f.filesChangedOnly, "files-changed-only", false, "only report findings in changed files")
	root.Flags().BoolVar(&f.linesChangedOnly, "lines-changed-only", false, "only report findings on changed lines")
	root.Flags().StringVar(&f.diffBase, "diff-base", "", "git ref to diff against for local runs")

	root.Flags().IntVarP(&f.jobs, "jobs", "j", 0, "parallel tool invocations (0 = CPU count)")
	root.Flags().StringVar(&f.failOn, "fail-on", "", "lowest severity that fails the run (note, warning, error)")
	root.Flags().IntVar(&f.toolTimeout, "tool-timeout", 0, "per-invocation timeout in seconds (0 = none)")

	root.Flags().BoolVar(&f.annotations, "file-annotations", true, "publish check-run annotations")
	root.Flags().BoolVar(&f.review, "review", false, "publish a pull-request review with suggestions")
	root.Flags().BoolVar(&f.passiveReview, "passive-review", false, "post the review as a comment-only event")
	root.Flags().StringVar(&f.threadComments, "thread-comments", "", "thread comment mode: none, update or recreate")
	root.Flags().BoolVar(&f.stepSummary, "step-summary", false, "append a Markdown summary to the workflow step")
	root.Flags().BoolVar(&f.lgtm, "lgtm", false, "post feedback even when no concerns were found")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the clint version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "clint", version)
		},
	}
}

// Execute runs the CLI and returns the process exit code: 0 clean, 1 when
// concerns or publish failures were recorded, 2 on operational failure.
func Execute() int {
	var exitCode int
	root := NewRootCmd(&exitCode)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "clint:", err)
		return 2
	}
	return exitCode
}
