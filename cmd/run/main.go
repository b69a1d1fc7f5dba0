package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/dejan-stankovic/wasmer/engine"
	"github.com/dejan-stankovic/wasmer/linker"
	"github.com/dejan-stankovic/wasmer/runtime"
)

type options struct {
	wasmFile string
	funcName string
	args     string
	list     bool
	stub     bool
	verbose  bool
	maxPages uint
	noStrict bool
}

func main() {
	var opts options
	flag.StringVar(&opts.wasmFile, "wasm", "", "Path to core wasm module")
	flag.StringVar(&opts.funcName, "func", "", "Exported function to call (optional)")
	flag.StringVar(&opts.args, "args", "", "Comma-separated arguments, parsed by the function's parameter types")
	flag.BoolVar(&opts.list, "list", false, "List exports and exit")
	flag.BoolVar(&opts.stub, "stub", true, "Satisfy function imports with logging stubs")
	flag.BoolVar(&opts.verbose, "v", false, "Verbose development logging")
	flag.UintVar(&opts.maxPages, "max-pages", 0, "Memory limit in 64KiB pages (0 = 65536)")
	flag.BoolVar(&opts.noStrict, "no-strict", false, "Skip the strict validation pass")
	interactive := flag.Bool("i", false, "Interactive mode with TUI")
	flag.Parse()

	if opts.wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-func name] [-args 1,2] [-v]")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	log, err := newLogger(opts.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	engine.SetLogger(log)
	linker.SetLogger(log)
	runtime.SetLogger(log)

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		err = runInteractive(opts, log)
	} else {
		err = run(opts, log)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func run(opts options, log *zap.Logger) error {
	ctx := context.Background()

	s, err := load(ctx, opts, log)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	styled := term.IsTerminal(int(os.Stdout.Fd()))
	render := func(st lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return st.Render(text)
	}

	fmt.Printf("Module: %s\n", opts.wasmFile)
	fmt.Printf("Imports: %d\n", len(s.module.Imports))
	fmt.Printf("\nExports:\n")
	for _, e := range s.exports {
		fmt.Printf("  %s %s\n", render(typeStyle, e.kind), render(funcStyle, e.signature()))
	}
	if opts.list {
		return nil
	}

	funcName := opts.funcName
	if funcName == "" {
		funcName = s.entryPoint()
		if funcName == "" {
			fmt.Printf("\nNo function specified and no common entry point found.\n")
			fmt.Printf("Use -func to specify a function to call.\n")
			return nil
		}
	}

	var raw []string
	if opts.args != "" {
		raw = strings.Split(opts.args, ",")
	}
	args, err := s.parseArgs(funcName, raw)
	if err != nil {
		return err
	}

	fmt.Printf("\nCalling %s(%s)...\n", funcName, strings.Join(raw, ", "))
	results, err := s.inst.Call(ctx, funcName, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}
	fmt.Printf("Result: %s\n", render(resultStyle, formatValues(results)))
	return nil
}

func runtimeOptions(opts options, log *zap.Logger) []runtime.Option {
	cfg := runtime.DefaultConfig()
	cfg.MemoryLimitPages = uint32(opts.maxPages)
	cfg.StrictValidation = !opts.noStrict
	return []runtime.Option{runtime.WithConfig(cfg), runtime.WithLogger(log)}
}
