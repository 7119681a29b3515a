// Package diag formats stage-tagged diagnostics for the two CLI front
// ends (cmd/u6ac, cmd/u6a): a stage failure is reported to stderr as
// "prog: [stage] message", with the "[stage]" tag colorized when stderr
// is a terminal.
package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
)

// Stage names the pipeline phase a failure originated in, matching the
// exit-code table the CLI front ends report against.
type Stage string

const (
	StageOption  Stage = "option"
	StageLex     Stage = "lex"
	StageParse   Stage = "parse"
	StageCodegen Stage = "codegen"
	StageLoad    Stage = "load"
	StageRuntime Stage = "runtime"
)

const (
	colorReset  = "\x1b[0m"
	colorYellow = "\x1b[33m"
)

// Logger writes diagnostics for one invocation of prog. Verbose lines are
// tagged with a per-invocation correlation id so merged logs from a
// pipeline of two u6a-family processes (e.g. `u6ac -v foo.u6 | u6a -v -`)
// can be told apart.
type Logger struct {
	prog    string
	errOut  io.Writer
	verbose bool
	color   bool
	runID   string
}

// New constructs a Logger for prog, writing stage failures and verbose
// trace lines to errOut. color is auto-detected from errOut when it is an
// *os.File; verbose gates Verbosef output.
func New(prog string, errOut io.Writer, verbose bool) *Logger {
	color := false
	if f, ok := errOut.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Logger{
		prog:    prog,
		errOut:  errOut,
		verbose: verbose,
		color:   color,
		runID:   uuid.NewString()[:8],
	}
}

func (l *Logger) tag(stage Stage) string {
	if !l.color {
		return fmt.Sprintf("[%s]", stage)
	}
	return fmt.Sprintf("%s[%s]%s", colorYellow, stage, colorReset)
}

// Fail reports err, wrapped with stage, to stderr in the
// "prog: [stage] message" shape, and returns it
// unwrapped so the caller can still inspect the underlying cause.
func (l *Logger) Fail(stage Stage, err error) error {
	fmt.Fprintf(l.errOut, "%s: %s %s\n", l.prog, l.tag(stage), err)
	return err
}

// Verbosef writes a verbose-mode trace line, tagged with the run's
// correlation id, if verbose logging is enabled. It is a no-op otherwise.
func (l *Logger) Verbosef(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	fmt.Fprintf(l.errOut, "%s[%s] %s\n", l.prog+": ", l.runID, fmt.Sprintf(format, args...))
}
