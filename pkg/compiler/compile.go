package compiler

import (
	"fmt"
	"log/slog"

	"ice9c/pkg/asm"
	"ice9c/pkg/optimize"
	"ice9c/pkg/tm"
)

// Options selects the optional stages of Compile.
type Options struct {
	Optimize  bool
	Optimizer optimize.Options
	// Comments keeps the source annotations in the unoptimized listing.
	Comments bool
	Logger   *slog.Logger
}

// Result is a compiled program.
type Result struct {
	Program *Program
	Code    []tm.Instr
	Stats   *optimize.Stats // nil when not optimized
}

// Listing renders the TM listing of the program.
func (r *Result) Listing() string {
	return asm.Format(r.Code)
}

// Compile runs the whole pipeline: lex, parse, check, optionally optimize
// the tree, generate, optionally optimize the code.
func Compile(src string, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	tokens, err := Lex(src)
	if err != nil {
		return nil, err
	}
	prog, err := Parse(tokens, src)
	if err != nil {
		return nil, err
	}
	if err := Check(prog); err != nil {
		return nil, err
	}
	if opts.Optimize {
		OptimizeAST(prog)
	}

	code, err := Generate(prog)
	if err != nil {
		return nil, err
	}
	log.Debug("generated", "instructions", tm.CodeLength(code), "procs", len(prog.Procs))

	res := &Result{Program: prog, Code: code}
	if opts.Optimize {
		if opts.Optimizer.Logger == nil {
			opts.Optimizer.Logger = log
		}
		o, err := optimize.New(opts.Optimizer)
		if err != nil {
			return nil, err
		}
		res.Code, res.Stats, err = o.Optimize(code)
		if err != nil {
			return nil, fmt.Errorf("optimize: %w", err)
		}
		log.Debug("optimized", "before", res.Stats.Before, "after", res.Stats.After, "passes", res.Stats.Passes)
	} else if !opts.Comments {
		res.Code = stripComments(code)
	}
	return res, nil
}

func stripComments(code []tm.Instr) []tm.Instr {
	out := make([]tm.Instr, 0, len(code))
	for _, in := range code {
		if in.Op != tm.OpComment {
			out = append(out, in)
		}
	}
	return out
}
