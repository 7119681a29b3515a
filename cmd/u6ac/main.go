// Command u6ac is the Unlambda bytecode compiler CLI: it lexes, parses,
// and code-generates a source file into the .text/.rodata format package
// bytecode defines.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/kr/pretty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/skyter10086/u6a/bytecode"
	"github.com/skyter10086/u6a/compiler"
	"github.com/skyter10086/u6a/internal/diag"
)

const (
	exitOK      = 0
	exitOption  = 1
	exitLex     = 2
	exitParse   = 3
	exitCodegen = 4
)

const defaultPrefix = "#!/usr/bin/env u6a\n"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	outFile    string
	optimize   bool
	prefix     string
	verbose    bool
	syntaxOnly bool
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var (
		opt        options
		optimizeN  string
		prefixFlag string
		code       = exitOK
	)

	cmd := &cobra.Command{
		Use:           "u6ac [options] source-file",
		Short:         "Bytecode compiler for the Unlambda programming language.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		DisableAutoGenTag: true,
	}
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.SortFlags = false
	flags.StringVarP(&opt.outFile, "out-file", "o", "", "output file (default: <source-file>.bc; \"-\" for stdout)")
	flags.StringVarP(&optimizeN, "optimize", "O", "", "enable optimizations (N>=1 enables the constant-string peephole)")
	flags.Lookup("optimize").NoOptDefVal = "1"
	flags.StringVarP(&prefixFlag, "add-prefix", "p", "", "prepend a literal string to the output file")
	flags.Lookup("add-prefix").NoOptDefVal = defaultPrefix
	flags.BoolVarP(&opt.verbose, "verbose", "v", false, "verbose diagnostics")
	flags.BoolVarP(&opt.syntaxOnly, "syntax-only", "s", false, "check syntax only, emit no bytecode")
	help := flags.BoolP("help", "H", false, "show usage")
	version := flags.BoolP("version", "V", false, "show version")

	cmd.RunE = func(c *cobra.Command, posArgs []string) error {
		if *help {
			fmt.Fprintf(stdout, "Usage: u6ac [options] source-file\n\n"+
				"Bytecode compiler for the Unlambda programming language.\n")
			return nil
		}
		if *version {
			fmt.Fprintf(stdout, "%d.%d.%d\n", bytecode.VerMajor, bytecode.VerMinor, bytecode.VerPatch)
			return nil
		}
		opt.optimize = optimizeN != "" && optimizeN[0] > '0'
		if prefixFlag != "" {
			opt.prefix = prefixFlag
		} else if flags.Changed("add-prefix") {
			opt.prefix = defaultPrefix
		}

		if len(posArgs) == 0 {
			code = exitOption
			return errors.New("no input file specified")
		}
		inputName := posArgs[0]
		code = compile(opt, inputName, stdin, stdout, stderr)
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

func resolveOutputName(opt options, inputName string) (string, error) {
	if opt.syntaxOnly {
		return "", nil
	}
	if opt.outFile != "" {
		return opt.outFile, nil
	}
	if inputName == "-" {
		return "-", nil
	}
	return inputName + ".bc", nil
}

func compile(opt options, inputName string, stdin io.Reader, stdout, stderr io.Writer) int {
	log := diag.New("u6ac", stderr, opt.verbose)

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

	outName, err := resolveOutputName(opt, inputName)
	if err != nil {
		log.Fail(diag.StageOption, err)
		return exitOption
	}
	if outName == "-" && opt.verbose {
		log.Fail(diag.StageOption, errors.New("cannot write to STDOUT on verbose mode"))
		return exitOption
	}

	log.Verbosef("reading source code from %s", displayName)
	src, err := io.ReadAll(in)
	if err != nil {
		log.Fail(diag.StageOption, errors.Wrap(err, "reading source"))
		return exitOption
	}

	toks, err := compiler.Lex(src)
	if err != nil {
		log.Fail(diag.StageLex, err)
		return exitLex
	}
	log.Verbosef("lexed %d tokens", len(toks))

	ast, err := compiler.Parse(toks)
	if err != nil {
		log.Fail(diag.StageParse, errors.New("bad syntax"))
		return exitParse
	}
	if opt.verbose {
		log.Verbosef("AST:\n%s", pretty.Sprint(ast))
	}

	if opt.syntaxOnly {
		return exitOK
	}

	text, rodata, err := compiler.Generate(ast, opt.optimize)
	if err != nil {
		log.Fail(diag.StageCodegen, err)
		return exitCodegen
	}
	log.Verbosef("generated %d instructions, %d bytes of rodata", len(text), len(rodata))

	var out io.Writer
	var outFile *os.File
	if outName == "-" {
		out = stdout
	} else {
		f, err := os.Create(outName)
		if err != nil {
			log.Fail(diag.StageCodegen, errors.Wrapf(err, "cannot open file %q", outName))
			return exitCodegen
		}
		outFile = f
		out = f
	}
	bw := bufio.NewWriter(out)

	if opt.prefix != "" {
		if _, err := io.WriteString(bw, opt.prefix); err != nil {
			log.Fail(diag.StageCodegen, errors.Wrap(err, "writing prefix"))
			cleanupFailedOutput(outFile, outName)
			return exitCodegen
		}
	}
	if err := bytecode.WriteHeader(bw, uint32(len(text)*bytecode.InstrSize), uint32(len(rodata))); err != nil {
		log.Fail(diag.StageCodegen, errors.Wrap(err, "writing header"))
		cleanupFailedOutput(outFile, outName)
		return exitCodegen
	}
	if err := bytecode.WriteText(bw, text); err != nil {
		log.Fail(diag.StageCodegen, errors.Wrap(err, "writing .text"))
		cleanupFailedOutput(outFile, outName)
		return exitCodegen
	}
	if _, err := bw.Write(rodata); err != nil {
		log.Fail(diag.StageCodegen, errors.Wrap(err, "writing .rodata"))
		cleanupFailedOutput(outFile, outName)
		return exitCodegen
	}
	if err := bw.Flush(); err != nil {
		log.Fail(diag.StageCodegen, errors.Wrap(err, "flushing output"))
		cleanupFailedOutput(outFile, outName)
		return exitCodegen
	}
	if outFile != nil {
		outFile.Close()
	}
	return exitOK
}

func cleanupFailedOutput(f *os.File, name string) {
	if f == nil {
		return
	}
	f.Close()
	os.Remove(name)
}
