// Command u6a is the Unlambda bytecode runtime CLI: it loads a compiled
// program and runs package vm's evaluator against stdin/stdout.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/kr/pretty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/skyter10086/u6a/bytecode"
	"github.com/skyter10086/u6a/internal/diag"
	"github.com/skyter10086/u6a/pool"
	"github.com/skyter10086/u6a/stack"
	"github.com/skyter10086/u6a/vm"
)

const (
	exitOK      = 0
	exitOption  = 1
	exitInit    = 2
	exitRuntime = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg := vm.DefaultConfig()
	var (
		stackSize string
		poolSize  string
		info      bool
		verbose   bool
		code      = exitOK
	)

	cmd := &cobra.Command{
		Use:           "u6a [options] bytecode-file",
		Short:         "Runtime for the Unlambda programming language.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
	}
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.SortFlags = false
	flags.StringVarP(&stackSize, "stack-segment-size", "s", "", fmt.Sprintf("stack segment size (%d..%d, default %d)", stack.MinSegmentSize, stack.MaxSegmentSize, stack.DefaultSegmentSize))
	flags.StringVarP(&poolSize, "pool-size", "p", "", fmt.Sprintf("object pool cells (%d..%d, default %d)", pool.MinSize, pool.MaxSize, pool.DefaultSize))
	flags.BoolVarP(&info, "info", "i", false, "print bytecode header info only")
	flags.BoolVarP(&cfg.Force, "force", "f", false, "execute despite version or opcode errors")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose diagnostics")
	help := flags.BoolP("help", "H", false, "show usage")
	version := flags.BoolP("version", "V", false, "show version")

	cmd.RunE = func(c *cobra.Command, posArgs []string) error {
		if *help {
			fmt.Fprintf(stdout, "Usage: u6a [options] bytecode-file\n\n"+
				"Runtime for the Unlambda programming language.\n")
			return nil
		}
		if *version {
			fmt.Fprintf(stdout, "%d.%d.%d\n", bytecode.VerMajor, bytecode.VerMinor, bytecode.VerPatch)
			return nil
		}

		if stackSize != "" {
			n, err := parseUintOpt(stackSize, stack.MinSegmentSize, stack.MaxSegmentSize)
			if err != nil {
				code = exitOption
				return err
			}
			cfg.StackSegmentSize = n
		}
		if poolSize != "" {
			n, err := parseUintOpt(poolSize, pool.MinSize, pool.MaxSize)
			if err != nil {
				code = exitOption
				return err
			}
			cfg.PoolSize = n
		}

		if len(posArgs) == 0 {
			code = exitOption
			return errors.New("no input file specified")
		}

		code = execute(cfg, posArgs[0], info, verbose, stdin, stdout, stderr)
		if code != exitOK {
			return errors.Errorf("exit %d", code)
		}
		return nil
	}

	if err := cmd.Execute(); err != nil {
		if code == exitOK {
			code = exitOption
		}
	}
	return code
}

func parseUintOpt(raw string, min, max int) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Errorf("%q is not a valid non-negative integer", raw)
	}
	if n < min || n > max {
		return 0, errors.Errorf("value %d is not in range [%d, %d]", n, min, max)
	}
	return n, nil
}

func execute(cfg vm.Config, inputName string, infoOnly, verbose bool, stdin io.Reader, stdout, stderr io.Writer) int {
	log := diag.New("u6a", stderr, verbose)

	var in io.Reader
	displayName := inputName
	if inputName == "-" {
		in = stdin
		displayName = "STDIN"
	} else {
		f, err := os.Open(inputName)
		if err != nil {
			log.Fail(diag.StageOption, errors.Wrapf(err, "cannot open file %q", inputName))
			return exitOption
		}
		defer f.Close()
		in = f
	}

	log.Verbosef("loading bytecode from %s", displayName)
	rt := vm.New(cfg, stdin, stdout)
	hdr, err := rt.Load(in)
	if err != nil {
		log.Fail(diag.StageLoad, errors.Wrapf(err, "loading %s", displayName))
		return exitInit
	}
	if verbose {
		log.Verbosef("bytecode header:\n%s", pretty.Sprint(hdr))
	}

	if infoOnly {
		fmt.Fprintf(stdout, "version:        %d.%d\n", hdr.VerMajor, hdr.VerMinor)
		fmt.Fprintf(stdout, "instructions:   %s\n", humanize.Comma(int64(hdr.TextInstrCount)))
		fmt.Fprintf(stdout, ".rodata size:   %s\n", humanize.Bytes(uint64(hdr.RodataSize)))
		fmt.Fprintf(stdout, "stack segment:  %s elements\n", humanize.Comma(int64(cfg.StackSegmentSize)))
		fmt.Fprintf(stdout, "pool size:      %s cells\n", humanize.Comma(int64(cfg.PoolSize)))
		return exitOK
	}

	log.Verbosef("running")
	result, err := rt.Run()
	if err != nil {
		log.Fail(diag.StageRuntime, err)
		return exitRuntime
	}
	if verbose {
		log.Verbosef("halted with:\n%s", pretty.Sprint(result))
	}
	return exitOK
}
