//go:build !js

package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/tebeka/atexit"

	"ice9c/pkg/asm"
	"ice9c/pkg/compiler"
	"ice9c/pkg/config"
	"ice9c/pkg/cpu"
	"ice9c/pkg/optimize"
	"ice9c/pkg/tm"
	"ice9c/pkg/utils"
)

func main() {
	inPath := flag.String("in", "", "input ice9 source, or a .tm listing to optimize or run")
	outPath := flag.String("out", "", "output listing path (default: input with .tm extension, - for stdout)")
	optimizeFlag := flag.Bool("O", true, "run the optimizers; when given, overrides the config (-O=false for the plain listing)")
	runProgram := flag.Bool("run", false, "run the program on the TM machine after compiling")
	configPath := flag.String("config", "", "YAML configuration file")
	showStats := flag.Bool("stats", false, "print optimizer statistics to stderr")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in <file>")
		flag.Usage()
		atexit.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		atexit.Fatalf("config: %v", err)
	}
	if setFlags(flag.CommandLine)["O"] {
		cfg.Optimize = *optimizeFlag
	}
	log := cfg.Logger()
	slog.SetDefault(log)

	src, fullPath, err := utils.ReadSource(*inPath)
	if err != nil {
		atexit.Fatalf("failed to read input file %q: %v", *inPath, err)
	}

	var (
		code  []tm.Instr
		stats *optimize.Stats
	)
	if strings.HasSuffix(fullPath, ".tm") {
		code, stats, err = loadListing(src, &cfg, log)
	} else {
		var res *compiler.Result
		res, err = compiler.Compile(src, cfg.CompileOptions(log))
		if res != nil {
			code, stats = res.Code, res.Stats
		}
	}
	if err != nil {
		atexit.Fatalf("%s: %v", *inPath, err)
	}
	if *showStats && stats != nil {
		fmt.Fprintln(os.Stderr, stats.Table())
	}

	switch {
	case *outPath == "-":
		fmt.Print(asm.Format(code))
	case *outPath != "" || !strings.HasSuffix(fullPath, ".tm"):
		output := *outPath
		if output == "" {
			output = utils.ListingPath(*inPath)
		}
		if err := os.WriteFile(output, []byte(asm.Format(code)), 0o644); err != nil {
			atexit.Fatalf("failed to write listing %q: %v", output, err)
		}
		log.Info("wrote listing", "path", output, "instructions", tm.CodeLength(code))
	}

	if *runProgram {
		if err := run(code, cfg.MaxSteps); err != nil {
			atexit.Fatalf("run failed: %v", err)
		}
	}
	atexit.Exit(0)
}

// loadListing reads an existing listing and optimizes it when enabled.
func loadListing(src string, cfg *config.Config, log *slog.Logger) ([]tm.Instr, *optimize.Stats, error) {
	code, err := asm.Parse(src)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Optimize {
		return code, nil, nil
	}
	o, err := optimize.New(cfg.CompileOptions(log).Optimizer)
	if err != nil {
		return nil, nil, err
	}
	return o.Optimize(code)
}

func run(code []tm.Instr, maxSteps int) error {
	out := bufio.NewWriter(os.Stdout)
	atexit.Register(func() { out.Flush() })

	vm := cpu.NewCPU(cpu.NewStreamConsole(os.Stdin, out))
	vm.MaxSteps = maxSteps
	if err := vm.Load(code); err != nil {
		return err
	}
	err := vm.Run()
	slog.Debug("run complete", "steps", vm.Steps, "halted", vm.Halted)
	return err
}

// setFlags reports which flags were given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}
