// Command ice9dump prints every stage of the compiler for one source file:
// tokens, the checked tree, the listing and the optimizer's basic blocks.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/tebeka/atexit"

	"ice9c/pkg/asm"
	"ice9c/pkg/compiler"
	"ice9c/pkg/config"
	"ice9c/pkg/optimize"
	"ice9c/pkg/utils"
)

const testSource = `var x: int;
x := 6;
write x * 7;
`

func main() {
	stages := flag.String("stages", "tokens,ast,listing,blocks,stats", "comma separated stages to print")
	configPath := flag.String("config", "", "YAML configuration file")
	flag.Parse()

	src := testSource
	if flag.NArg() > 0 {
		var err error
		src, _, err = utils.ReadSource(flag.Arg(0))
		if err != nil {
			atexit.Fatalf("read error: %v", err)
		}
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		atexit.Fatalf("config: %v", err)
	}

	want := map[string]bool{}
	for _, s := range strings.Split(*stages, ",") {
		want[strings.TrimSpace(s)] = true
	}
	if err := dump(os.Stdout, src, &cfg, want); err != nil {
		atexit.Fatal(err)
	}
	atexit.Exit(0)
}

func dump(w io.Writer, src string, cfg *config.Config, want map[string]bool) error {
	tokens, err := compiler.Lex(src)
	if err != nil {
		return fmt.Errorf("lex error: %w", err)
	}
	if want["tokens"] {
		fmt.Fprintf(w, "Tokens (%d)\n", len(tokens))
		for _, tok := range tokens {
			fmt.Fprintln(w, " ", tok)
		}
		fmt.Fprintln(w)
	}

	prog, err := compiler.Parse(tokens, src)
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	if err := compiler.Check(prog); err != nil {
		return fmt.Errorf("semantic error: %w", err)
	}
	if cfg.Optimize {
		compiler.OptimizeAST(prog)
	}
	if want["ast"] {
		fmt.Fprintln(w, symbolTable(prog))
		fmt.Fprintln(w, "AST")
		for _, p := range prog.Procs {
			fmt.Fprintf(w, "  proc %s: %s\n", p.Name, p.Sig)
			for _, s := range p.Body {
				fmt.Fprintln(w, "   ", s)
			}
		}
		for _, s := range prog.Body {
			fmt.Fprintln(w, " ", s)
		}
		fmt.Fprintln(w)
	}

	code, err := compiler.Generate(prog)
	if err != nil {
		return fmt.Errorf("codegen error: %w", err)
	}
	var stats *optimize.Stats
	if cfg.Optimize {
		o, err := optimize.New(cfg.CompileOptions(cfg.Logger()).Optimizer)
		if err != nil {
			return err
		}
		if code, stats, err = o.Optimize(code); err != nil {
			return fmt.Errorf("optimize: %w", err)
		}
	}
	if want["listing"] {
		fmt.Fprintln(w, "Listing")
		fmt.Fprint(w, asm.Format(code))
		fmt.Fprintln(w)
	}
	if want["blocks"] {
		g, err := optimize.Build(code)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, optimize.DumpBlocks(g))
	}
	if want["stats"] && stats != nil {
		fmt.Fprintln(w, stats.Table())
	}
	return nil
}

// symbolTable renders the storage the checker assigned.
func symbolTable(prog *compiler.Program) string {
	t := table.NewWriter()
	t.SetTitle("Symbols")
	t.AppendHeader(table.Row{"Scope", "Name", "Type", "Storage"})
	for _, s := range prog.Globals {
		t.AppendRow(table.Row{"global", s.Name, s.Type, s.Storage})
	}
	for _, p := range prog.Procs {
		t.AppendSeparator()
		for _, s := range p.ParamSyms {
			t.AppendRow(table.Row{p.Name, s.Name, s.Type, s.Storage})
		}
		if p.ResultSym != nil {
			t.AppendRow(table.Row{p.Name, p.ResultSym.Name, p.ResultSym.Type, p.ResultSym.Storage})
		}
		for _, s := range p.LocalSyms {
			t.AppendRow(table.Row{p.Name, s.Name, s.Type, s.Storage})
		}
	}
	t.AppendFooter(table.Row{"", "", "globals", prog.GlobalSize})
	return t.Render()
}
