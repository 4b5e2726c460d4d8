package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/xplshn/rascal/internal/harness"
)

var (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

type options struct {
	harness.Options
	compilerArgs string
	testFiles    string
	skipFiles    string
	output       string
	ignoreLines  string
	generate     []string
	verbose      bool
}

func main() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		cRed, cYellow, cGreen, cCyan, cBold, cNone = "", "", "", "", "", ""
	}

	opts := &options{}
	cmd := &cobra.Command{
		Use:           "rtest",
		Short:         "Golden-file test runner for rascalc",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Compiler, "compiler", "./rascalc", "path to the compiler under test")
	f.StringVar(&opts.compilerArgs, "compiler-args", "build", "arguments placed before -o (space separated)")
	f.StringVar(&opts.testFiles, "test-files", "tests/*.ras", "glob pattern(s) for files to test (space separated)")
	f.StringVar(&opts.skipFiles, "skip-files", "", "files to skip (space separated)")
	f.StringVar(&opts.output, "output", ".test_results.json", "where to write the JSON report")
	f.StringVar(&opts.GoldenDir, "dir", "", "directory holding golden files, defaults to the source's directory")
	f.StringVar(&opts.ignoreLines, "ignore-lines", "", "comma separated substrings whose lines are ignored when comparing")
	f.StringArrayVar(&opts.generate, "generate-golden", nil, "record a golden file for the given source and exit")
	f.DurationVar(&opts.Timeout, "timeout", 5*time.Second, "timeout for each command")
	f.IntVarP(&opts.Jobs, "jobs", "j", 4, "number of parallel test jobs")
	f.IntVar(&opts.Runs, "runs", 3, "times to run each case; the fastest is kept")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log each file as it is tested")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s[ERROR]%s %v\n", cRed, cNone, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options, out io.Writer) error {
	tempDir, err := os.MkdirTemp("", "rtest-*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	opts.TempDir = tempDir
	opts.CompilerArgs = strings.Fields(opts.compilerArgs)
	if opts.ignoreLines != "" {
		opts.IgnoreLines = strings.Split(opts.ignoreLines, ",")
	}
	if opts.verbose {
		opts.Log = os.Stderr
	}

	if len(opts.generate) > 0 {
		for _, src := range opts.generate {
			path, err := opts.Generate(ctx, src)
			if err != nil {
				return fmt.Errorf("could not generate golden file for %s: %w", src, err)
			}
			fmt.Fprintf(out, "%s[SUCCESS]%s Golden file created at %s\n", cGreen, cNone, path)
		}
		return nil
	}

	files, err := harness.ExpandGlobs(opts.testFiles)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(out, "No test files found matching the pattern(s).")
		return nil
	}

	skip := make(map[string]bool)
	skipped, err := harness.ExpandGlobs(opts.skipFiles)
	if err != nil {
		return err
	}
	for _, f := range skipped {
		skip[f] = true
	}

	results := opts.RunSuite(ctx, files, skip)
	printSummary(out, results)

	if err := harness.WriteReport(opts.output, results); err != nil {
		fmt.Fprintf(out, "%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, opts.output, err)
	} else {
		fmt.Fprintf(out, "Full test report saved to %s\n", opts.output)
	}

	if harness.HasFailures(results) {
		return fmt.Errorf("test suite failed")
	}
	return nil
}

func printSummary(out io.Writer, results []*harness.FileResult) {
	counts := make(map[harness.Status]int)
	var compile, runtime time.Duration

	for _, r := range results {
		counts[r.Status]++
		fmt.Fprintln(out, strings.Repeat("-", 70))
		fmt.Fprintf(out, "Testing %s%s%s...\n", cCyan, r.File, cNone)

		switch r.Status {
		case harness.Pass:
			fmt.Fprintf(out, "  [%sPASS%s] %s\n", cGreen, cNone, r.Message)
		case harness.Fail:
			fmt.Fprintf(out, "  [%sFAIL%s] %s\n", cRed, cNone, r.Message)
			fmt.Fprint(out, formatDiff(r.Diff))
		case harness.Skip:
			fmt.Fprintf(out, "  [%sSKIP%s] %s\n", cYellow, cNone, r.Message)
		case harness.Error:
			fmt.Fprintf(out, "  [%sERROR%s] %s\n", cRed, cNone, r.Message)
		}

		if r.Target != nil {
			compile += r.Target.Compile.Duration
			for _, run := range r.Target.Runs {
				runtime += run.Result.Duration
			}
		}
	}

	fmt.Fprintln(out, strings.Repeat("-", 70))
	fmt.Fprintf(out, "%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, counts[harness.Pass], cNone, cRed, counts[harness.Fail], cNone,
		cYellow, counts[harness.Skip], cNone, cRed, counts[harness.Error], cNone, len(results))
	fmt.Fprintf(out, "Total compile time %s, total run time %s\n", compile.Round(time.Microsecond), runtime.Round(time.Microsecond))
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "-"):
			sb.WriteString(cRed)
		case strings.HasPrefix(trimmed, "+"):
			sb.WriteString(cGreen)
		}
		sb.WriteString("    " + line + cNone + "\n")
	}
	return sb.String()
}
