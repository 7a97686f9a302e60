package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/tebeka/atexit"

	"ice9c/pkg/compiler"
	"ice9c/pkg/config"
	"ice9c/pkg/cpu"
	"ice9c/pkg/utils"
)

func main() {
	showAsm := flag.Bool("show-asm", false, "print the generated listing before running")
	configPath := flag.String("config", "", "YAML configuration file")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: console [-show-asm] [-config file] program.9")
		atexit.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		atexit.Fatalf("config: %v", err)
	}
	log := cfg.Logger()

	src, fullPath, err := utils.ReadSource(flag.Arg(0))
	if err != nil {
		atexit.Fatalf("Failed to read source file: %v", err)
	}
	log.Debug("compiling", "path", fullPath)

	res, err := compiler.Compile(src, cfg.CompileOptions(log))
	if err != nil {
		atexit.Fatalf("Compilation failed: %v", err)
	}
	if *showAsm {
		fmt.Print("Generated listing:\n", res.Listing(), "\n")
	}

	// Program output is buffered; flush it on every exit path.
	out := bufio.NewWriter(os.Stdout)
	atexit.Register(func() { out.Flush() })

	vm := cpu.NewCPU(cpu.NewStreamConsole(os.Stdin, out))
	vm.MaxSteps = cfg.MaxSteps
	if err := vm.Load(res.Code); err != nil {
		atexit.Fatalf("load: %v", err)
	}
	if err := vm.Run(); err != nil {
		atexit.Fatalf("run: %v", err)
	}
	atexit.Exit(0)
}
