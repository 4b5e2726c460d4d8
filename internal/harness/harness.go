// Package harness compiles Rascal programs with rascalc, runs the binaries
// and compares what they did against recorded golden results.
package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
)

type Status string

const (
	Pass  Status = "PASS"
	Fail  Status = "FAIL"
	Skip  Status = "SKIP"
	Error Status = "ERROR"
)

type Execution struct {
	Stdout         string        `json:"stdout"`
	Stderr         string        `json:"stderr"`
	ExitCode       int           `json:"exitCode"`
	Duration       time.Duration `json:"duration"`
	TimedOut       bool          `json:"timed_out"`
	UnstableOutput bool          `json:"unstable_output,omitempty"`
}

type TestRun struct {
	Name   string    `json:"name"`
	Args   []string  `json:"args,omitempty"`
	Result Execution `json:"result"`
}

type TargetResult struct {
	BinaryPath string    `json:"binary_path,omitempty"`
	Compile    Execution `json:"compile"`
	Runs       []TestRun `json:"runs"`
}

type FileResult struct {
	File    string        `json:"file"`
	Status  Status        `json:"status"`
	Message string        `json:"message,omitempty"`
	Diff    string        `json:"diff,omitempty"`
	Golden  *TargetResult `json:"golden,omitempty"`
	Target  *TargetResult `json:"target,omitempty"`
}

type SuiteResults map[string]*FileResult

// Options configure a harness run.
type Options struct {
	Compiler     string
	CompilerArgs []string // placed before `-o <binary> <source>`
	Timeout      time.Duration
	Jobs         int
	Runs         int // repetitions per run; the fastest duration is kept
	GoldenDir    string
	IgnoreLines  []string
	TempDir      string
	Log          io.Writer
}

// runCases are the argument vectors every binary is run with.
var runCases = map[string][]string{
	"no_args":    {},
	"string_arg": {"test"},
}

func (o *Options) logf(format string, args ...interface{}) {
	if o.Log != nil {
		fmt.Fprintf(o.Log, format+"\n", args...)
	}
}

// GoldenPath is `.<name>.json` next to the source, or inside GoldenDir.
func (o *Options) GoldenPath(source string) string {
	name := "." + filepath.Base(source) + ".json"
	if o.GoldenDir != "" {
		return filepath.Join(o.GoldenDir, name)
	}
	return filepath.Join(filepath.Dir(source), name)
}

// HashFile computes the xxhash of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

// Execute runs a command under ctx and captures its output.
func Execute(ctx context.Context, command string, args ...string) Execution {
	start := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Execution{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(start)}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.ExitCode = -1
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case err != nil:
		res.ExitCode = -2
		res.Stderr += "\nExecution error: " + err.Error()
	}
	return res
}

// CompileAndRun builds source into TempDir/<hash> and runs every case. A
// non-nil error means compilation failed; the result still holds its output.
func (o *Options) CompileAndRun(ctx context.Context, source, hash string) (*TargetResult, error) {
	cctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	binary := filepath.Join(o.TempDir, hash)
	args := append(append([]string{}, o.CompilerArgs...), "-o", binary, source)

	compile := Execute(cctx, o.Compiler, args...)
	if compile.ExitCode != 0 || compile.TimedOut {
		return &TargetResult{Compile: compile}, fmt.Errorf("compilation failed with exit code %d", compile.ExitCode)
	}
	if _, err := os.Stat(binary); err != nil {
		return &TargetResult{Compile: compile}, fmt.Errorf("compilation succeeded but binary was not created at %s", binary)
	}

	names := make([]string, 0, len(runCases))
	for name := range runCases {
		names = append(names, name)
	}
	sort.Strings(names)

	runs := make([]TestRun, 0, len(names))
	for _, name := range names {
		res := o.runCase(ctx, binary, runCases[name])
		runs = append(runs, TestRun{Name: name, Args: runCases[name], Result: res})
		if res.TimedOut {
			break
		}
	}
	return &TargetResult{BinaryPath: binary, Compile: compile, Runs: runs}, nil
}

// runCase runs binary o.Runs times, keeping the fastest duration and
// flagging output that changes between repetitions.
func (o *Options) runCase(ctx context.Context, binary string, args []string) Execution {
	var first Execution
	var durations []time.Duration
	n := o.Runs
	if n < 1 {
		n = 1
	}

	for i := 0; i < n; i++ {
		rctx, cancel := context.WithTimeout(ctx, o.Timeout)
		res := Execute(rctx, binary, args...)
		cancel()

		if i == 0 {
			first = res
		} else if first.ExitCode != res.ExitCode ||
			FilterOutput(first.Stdout, o.IgnoreLines) != FilterOutput(res.Stdout, o.IgnoreLines) ||
			FilterOutput(first.Stderr, o.IgnoreLines) != FilterOutput(res.Stderr, o.IgnoreLines) {
			first.UnstableOutput = true
			break
		}
		if res.TimedOut {
			return res
		}
		durations = append(durations, res.Duration)
	}

	if len(durations) > 0 {
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		first.Duration = durations[0]
	}
	return first
}

// Generate records the current behavior of source as its golden file.
func (o *Options) Generate(ctx context.Context, source string) (string, error) {
	hash, err := HashFile(source)
	if err != nil {
		return "", err
	}
	// A failing compile is recorded too: the golden then expects the failure.
	result, _ := o.CompileAndRun(ctx, source, hash)
	result.BinaryPath = ""
	result.Compile.Stderr = relativeTo(result.Compile.Stderr, source)

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	path := o.GoldenPath(source)
	if o.GoldenDir != "" {
		if err := os.MkdirAll(o.GoldenDir, 0755); err != nil {
			return "", err
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// TestFile compares source against its golden file.
func (o *Options) TestFile(ctx context.Context, source, hash string) *FileResult {
	goldenFile := o.GoldenPath(source)
	data, err := os.ReadFile(goldenFile)
	if errors.Is(err, os.ErrNotExist) {
		return &FileResult{File: source, Status: Skip, Message: "Cannot test without a corresponding .json golden file"}
	}
	if err != nil {
		return &FileResult{File: source, Status: Error, Message: fmt.Sprintf("Could not read golden file %s: %v", goldenFile, err)}
	}
	var golden TargetResult
	if err := json.Unmarshal(data, &golden); err != nil {
		return &FileResult{File: source, Status: Error, Message: fmt.Sprintf("Could not parse golden file %s: %v", goldenFile, err)}
	}

	target, err := o.CompileAndRun(ctx, source, hash)
	goldenFailed := golden.Compile.ExitCode != 0 || golden.Compile.TimedOut

	switch {
	case err != nil && goldenFailed:
		return o.compareCompileFailure(source, &golden, target)
	case err != nil:
		return &FileResult{
			File:    source,
			Status:  Fail,
			Message: "Compiler failed, but golden file expected success.",
			Diff:    fmt.Sprintf("Compiler STDERR:\n%s", target.Compile.Stderr),
			Golden:  &golden,
			Target:  target,
		}
	case goldenFailed:
		return &FileResult{
			File:    source,
			Status:  Fail,
			Message: "Compiler succeeded, but golden file expected a compile error.",
			Diff:    fmt.Sprintf("Expected STDERR:\n%s", golden.Compile.Stderr),
			Golden:  &golden,
			Target:  target,
		}
	}
	return Compare(source, &golden, target, o.IgnoreLines)
}

func (o *Options) compareCompileFailure(source string, golden, target *TargetResult) *FileResult {
	target.Compile.Stderr = relativeTo(target.Compile.Stderr, source)
	want := FilterOutput(golden.Compile.Stderr, o.IgnoreLines)
	got := FilterOutput(target.Compile.Stderr, o.IgnoreLines)
	if golden.Compile.ExitCode != target.Compile.ExitCode || want != got {
		return &FileResult{
			File:    source,
			Status:  Fail,
			Message: "Compile error mismatch",
			Diff:    cmp.Diff(golden.Compile.Stderr, target.Compile.Stderr),
			Golden:  golden,
			Target:  target,
		}
	}
	return &FileResult{File: source, Status: Pass, Message: "Compile error matched", Golden: golden, Target: target}
}

// relativeTo shortens mentions of source in compiler output to its base
// name so goldens do not depend on where the tree is checked out.
func relativeTo(s, source string) string {
	return strings.ReplaceAll(s, source, filepath.Base(source))
}

const binaryPlaceholder = "__BINARY__"

func normalize(s, binary string, ignore []string) string {
	s = FilterOutput(s, ignore)
	if binary != "" {
		s = strings.ReplaceAll(s, binary, binaryPlaceholder)
		s = strings.ReplaceAll(s, filepath.Base(binary), binaryPlaceholder)
	}
	return s
}

// Compare checks every golden run against the target's run of the same name.
func Compare(file string, golden, target *TargetResult, ignore []string) *FileResult {
	var diffs strings.Builder
	failed := false

	targetRuns := make(map[string]TestRun, len(target.Runs))
	for _, run := range target.Runs {
		targetRuns[run.Name] = run
	}
	sort.Slice(golden.Runs, func(i, j int) bool { return golden.Runs[i].Name < golden.Runs[j].Name })

	for _, want := range golden.Runs {
		got, ok := targetRuns[want.Name]
		if !ok {
			failed = true
			fmt.Fprintf(&diffs, "Test run '%s' missing in target results.\n", want.Name)
			continue
		}
		if want.Result.UnstableOutput != got.Result.UnstableOutput {
			failed = true
			fmt.Fprintf(&diffs, "Run '%s' Output Stability Mismatch:\n  - Golden: %v\n  - Target: %v\n", want.Name, want.Result.UnstableOutput, got.Result.UnstableOutput)
		}
		if want.Result.ExitCode != got.Result.ExitCode {
			failed = true
			fmt.Fprintf(&diffs, "Run '%s' Exit Code mismatch:\n  - Golden: %d\n  - Target: %d\n", want.Name, want.Result.ExitCode, got.Result.ExitCode)
		}
		if normalize(want.Result.Stdout, golden.BinaryPath, ignore) != normalize(got.Result.Stdout, target.BinaryPath, ignore) {
			failed = true
			fmt.Fprintf(&diffs, "Run '%s' STDOUT mismatch:\n%s", want.Name, cmp.Diff(want.Result.Stdout, got.Result.Stdout))
		}
		if normalize(want.Result.Stderr, golden.BinaryPath, ignore) != normalize(got.Result.Stderr, target.BinaryPath, ignore) {
			failed = true
			fmt.Fprintf(&diffs, "Run '%s' STDERR mismatch:\n%s", want.Name, cmp.Diff(want.Result.Stderr, got.Result.Stderr))
		}
	}

	if failed {
		return &FileResult{File: file, Status: Fail, Message: "Runtime output or exit code mismatch", Diff: diffs.String(), Golden: golden, Target: target}
	}
	return &FileResult{File: file, Status: Pass, Message: "All test cases passed", Golden: golden, Target: target}
}

// FilterOutput removes lines containing any of the given substrings.
func FilterOutput(output string, ignored []string) string {
	if len(ignored) == 0 || output == "" {
		return output
	}
	lines := strings.Split(output, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		drop := false
		for _, sub := range ignored {
			if sub != "" && strings.Contains(line, sub) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// RunSuite tests files on a pool of o.Jobs workers. Files listed in skip, and
// files whose content duplicates an earlier one, are skipped.
func (o *Options) RunSuite(ctx context.Context, files []string, skip map[string]bool) []*FileResult {
	jobs := o.Jobs
	if jobs < 1 {
		jobs = 1
	}

	type task struct{ file, hash string }
	tasks := make(chan task, len(files))
	results := make(chan *FileResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				o.logf("testing %s", t.file)
				results <- o.TestFile(ctx, t.file, t.hash)
			}
		}()
	}

	seen := make(map[string]string)
	for _, file := range files {
		if skip[file] {
			results <- &FileResult{File: file, Status: Skip, Message: "Explicitly skipped"}
			continue
		}
		hash, err := HashFile(file)
		if err != nil {
			results <- &FileResult{File: file, Status: Error, Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if original, ok := seen[hash]; ok {
			results <- &FileResult{File: file, Status: Skip, Message: fmt.Sprintf("Content is identical to %s", original)}
			continue
		}
		seen[hash] = file
		tasks <- task{file, hash}
	}
	close(tasks)

	wg.Wait()
	close(results)

	var all []*FileResult
	for r := range results {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].File < all[j].File })
	return all
}

// WriteReport saves results keyed by file name.
func WriteReport(path string, results []*FileResult) error {
	m := make(SuiteResults, len(results))
	for _, r := range results {
		m[r.File] = r
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

func HasFailures(results []*FileResult) bool {
	for _, r := range results {
		if r.Status == Fail || r.Status == Error {
			return true
		}
	}
	return false
}

// ExpandGlobs resolves space separated glob patterns to unique regular files.
func ExpandGlobs(patterns string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil || seen[abs] {
				continue
			}
			if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
				files = append(files, abs)
				seen[abs] = true
			}
		}
	}
	return files, nil
}
