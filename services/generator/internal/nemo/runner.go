package nemo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
)

// DefaultCommand is resolved relative to the working directory.
const DefaultCommand = "./nemo_batch"

// ProcessError means NEMO could not be run or exited non-zero. The batch
// cannot continue after it.
type ProcessError struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("nemo exited with status %d: %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("nemo failed: %v", e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// ConversionError means NEMO ran but reported an error for this dataset.
type ConversionError struct {
	Detail string
}

func (e *ConversionError) Error() string {
	return "nemo conversion failed: " + e.Detail
}

// Invocation holds the per-run file locations.
type Invocation struct {
	DataPath    string
	ModelPath   string
	OutputPath  string
	SummaryPath string
	Format      string
}

// Args returns the command line arguments for inv.
func (inv Invocation) Args() []string {
	return []string{
		"-i", inv.DataPath,
		"-m", inv.ModelPath,
		"-o", inv.OutputPath,
		"-c", inv.Format,
		"-multi",
		"-cdiSummary", inv.SummaryPath,
	}
}

// Runner executes the NEMO batch converter.
type Runner struct {
	Command string
	WorkDir string
	Logger  *log.Logger
}

func (r *Runner) logger() *log.Logger {
	if r.Logger == nil {
		return log.Default()
	}
	return r.Logger
}

// Run executes NEMO for inv and returns its standard output.
func (r *Runner) Run(ctx context.Context, inv Invocation) (string, error) {
	command := r.Command
	if command == "" {
		command = DefaultCommand
	}
	args := inv.Args()
	r.logger().Printf("running NEMO: %s %s", command, strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = r.WorkDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		perr := &ProcessError{Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			perr.ExitCode = exitErr.ExitCode()
		}
		r.logger().Printf("NEMO failed: %v\nSTDOUT:\n%s\nSTDERR:\n%s", err, perr.Stdout, perr.Stderr)
		return perr.Stdout, perr
	}

	out := stdout.String()
	if i := strings.Index(out, "ERROR"); i >= 0 {
		detail := strings.TrimSpace(out[i:])
		r.logger().Printf("NEMO reported an error: %s", detail)
		return out, &ConversionError{Detail: detail}
	}
	return out, nil
}
