package compiler

import (
	"errors"
	"strings"
	"testing"

	"ice9c/pkg/cpu"
	"ice9c/pkg/tm"
)

// runProgram compiles src and executes it on a fresh machine, returning
// everything the program printed.
func runProgram(t *testing.T, src string, optimize bool, input ...int) string {
	t.Helper()
	res, err := Compile(src, Options{Optimize: optimize})
	if err != nil {
		t.Fatalf("compile (optimize=%v): %v", optimize, err)
	}
	con := &cpu.BufferConsole{Input: input}
	vm := cpu.NewCPU(con)
	if err := vm.Load(res.Code); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := vm.Run(); err != nil {
		t.Fatalf("run (optimize=%v): %v\n%s", optimize, err, res.Listing())
	}
	return con.String()
}

func TestPrograms(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		input    []int
		expected string
	}{
		{
			name:     "Arithmetic",
			src:      "write 1 + 2;\nwrite 7 - 10;\nwrite 6 * 7;\nwrite 17 / 5;\nwrite 17 % 5;",
			expected: "3 \n-3 \n42 \n3 \n2 \n",
		},
		{
			name:     "Truncating Division",
			src:      "write -7 / 2;\nwrite -7 % 3;",
			expected: "-3 \n-1 \n",
		},
		{
			name:     "Precedence",
			src:      "write 2 + 3 * 4 - (1 + 1);",
			expected: "12 \n",
		},
		{
			name:     "Booleans",
			src:      "write ?true;\nwrite ?(1 < 2);\nwrite ?(3 = 4);\nwrite ?-false;\nwrite ?(true * false);\nwrite ?(false + true);",
			expected: "1 \n1 \n0 \n1 \n0 \n1 \n",
		},
		{
			name:     "Comparisons",
			src:      "writes ?(1 != 2); writes ?(2 <= 2); writes ?(3 > 2); writes ?(2 >= 3); write ?(2 < 2);",
			expected: "1 1 1 0 0 \n",
		},
		{
			name:     "Strings",
			src:      "writes \"hello\"; write ' world';\nwrite \"hello\";",
			expected: "hello world\nhello\n",
		},
		{
			name:     "Variables And Read",
			src:      "var x, y: int;\nx := read;\ny := read;\nwrite x * y;",
			input:    []int{6, 7},
			expected: "42 \n",
		},
		{
			name:     "Str Variables",
			src:      "var s: str;\ns := \"abc\";\nwrite s;",
			expected: "abc\n",
		},
		{
			name:     "String To Int",
			src:      "var s: str;\nwrite int(\"123\") + 1;\ns := \"40\";\nwrite int(s) + 2;",
			expected: "124 \n42 \n",
		},
		{
			name: "If Guards",
			src: `var x: int;
fa x0 := 1 to 3 ->
  x := x0;
  if x = 1 -> writes "one";
  [] x = 2 -> writes "two";
  [] else -> writes "many";
  fi
af
write "";`,
			expected: "onetwomany\n",
		},
		{
			name: "Do Loop With Break",
			src: `var i: int;
i := 0;
do i < 10 ->
  if i = 3 -> break; fi
  writes i;
  i := i + 1;
od
write i;`,
			expected: "0 1 2 3 \n",
		},
		{
			name:     "Fa Bounds Evaluated Each Iteration",
			src:      "var n: int;\nn := 3;\nfa i := 1 to n -> writes i; n := 2; af\nwrite \"\";",
			expected: "1 2 \n",
		},
		{
			name:     "Empty Fa",
			src:      "fa i := 5 to 1 -> writes i; af\nwrite 0;",
			expected: "0 \n",
		},
		{
			name:     "Nested Fa",
			src:      "fa i := 1 to 2 -> fa j := 1 to 2 -> writes i; writes j; af af",
			expected: "1 1 1 2 2 1 2 2 ",
		},
		{
			name: "Nested Fa In Proc",
			src: `proc p()
  fa i := 1 to 2 -> fa j := 1 to 2 -> writes i; writes j; af af
end
p();`,
			expected: "1 1 1 2 2 1 2 2 ",
		},
		{
			name:     "Triple Nested Fa",
			src:      "fa i := 0 to 1 -> fa j := 0 to 1 -> fa k := 0 to 1 -> writes i * 4 + j * 2 + k; af af af",
			expected: "0 1 2 3 4 5 6 7 ",
		},
		{
			name: "Recursion",
			src: `proc fact(n: int): int
  if n <= 1 -> fact := 1;
  [] else -> fact := n * fact(n - 1);
  fi
end
write fact(5);`,
			expected: "120 \n",
		},
		{
			name: "Forward Declarations",
			src: `forward odd(n: int): bool;
proc even(n: int): bool
  if n = 0 -> even := true; return; fi
  even := odd(n - 1);
end
proc odd(n: int): bool
  if n = 0 -> odd := false; return; fi
  odd := even(n - 1);
end
write ?even(10);
write ?odd(7);`,
			expected: "1 \n1 \n",
		},
		{
			name: "Locals And Params",
			src: `var g: int;
proc f(a, b: int): int
  var t: int;
  t := a - b;
  g := g + 1;
  f := t * 10;
end
g := 0;
write f(5, 3);
write f(1, 4);
write g;`,
			expected: "20 \n-30 \n2 \n",
		},
		{
			name: "Short Circuit",
			src: `proc side(): bool
  writes "x";
  side := true;
end
if true + side() -> write 1; fi
if false * side() -> write 2; [] else -> write 3; fi
if false + side() -> write 4; fi`,
			expected: "1 \n3 \nx4 \n",
		},
		{
			name: "Two Dimensional Arrays",
			src: `var m: int[2][3];
fa i := 0 to 1 -> fa j := 0 to 2 -> m[i][j] := i * 3 + j; af af
fa k := 0 to 1 -> writes m[k][2]; af
write m[1][0];`,
			expected: "2 5 3 \n",
		},
		{
			name: "Array Params By Reference",
			src: `type vec = int[3];
var v: vec;
proc fill(a: vec)
  fa i := 0 to 2 -> a[i] := i * 10; af
end
fill(v);
writes v[1]; write v[2];`,
			expected: "10 20 \n",
		},
		{
			name: "Local Arrays",
			src: `proc sum(): int
  var a: int[4];
  fa i := 0 to 3 -> a[i] := i + 1; af
  sum := 0;
  fa i := 0 to 3 -> sum := sum + a[i]; af
end
write sum();`,
			expected: "10 \n",
		},
		{
			name:     "Bounds Violation Below",
			src:      "var a: int[3];\nwrites a[-1];\nwrite 99;",
			expected: "Arrays bounds violation\n",
		},
		{
			name:     "Bounds Violation Above",
			src:      "var a: int[3];\na[3] := 1;\nwrite 99;",
			expected: "Arrays bounds violation\n",
		},
		{
			name:     "Exit",
			src:      "write 1;\nexit;\nwrite 2;",
			expected: "1 \n",
		},
		{
			name:     "Return From Main",
			src:      "write 1;\nif true -> return; fi\nwrite 2;",
			expected: "1 \n",
		},
		{
			name: "Exit From Proc",
			src: `proc stop()
  write 1;
  exit;
end
stop();
write 2;`,
			expected: "1 \n",
		},
		{
			name: "Registers Survive Calls",
			src: `proc clobber(): int
  fa k := 7 to 9 -> ; af
  clobber := 100;
end
fa i := 1 to 2 -> writes i + clobber(); af
write "";`,
			expected: "101 102 \n",
		},
	}

	for _, tt := range tests {
		for _, optimize := range []bool{false, true} {
			name := tt.name
			if optimize {
				name += " Optimized"
			}
			t.Run(name, func(t *testing.T) {
				got := runProgram(t, tt.src, optimize, tt.input...)
				if got != tt.expected {
					t.Errorf("output mismatch\n got: %q\nwant: %q", got, tt.expected)
				}
			})
		}
	}
}

func TestOptimizedMatchesUnoptimized(t *testing.T) {
	src := `var a: int[10];
proc fib(n: int): int
  if n < 2 -> fib := n; return; fi
  fib := fib(n - 1) + fib(n - 2);
end
fa i := 0 to 9 -> a[i] := fib(i); af
fa i := 0 to 9 -> writes a[i] % 7; af
write int("2024") / 8;`

	plain := runProgram(t, src, false)
	opt := runProgram(t, src, true)
	if plain != opt {
		t.Errorf("optimized output differs\nplain: %q\n  opt: %q", plain, opt)
	}
	if want := "0 1 1 2 3 5 1 6 0 6 \n253 \n"; plain != want {
		t.Errorf("output mismatch\n got: %q\nwant: %q", plain, want)
	}
}

func TestOptimizeShrinksCode(t *testing.T) {
	src := "var x: int;\nx := 2;\nwrite x * 2 + 1;"
	plain, err := Compile(src, Options{})
	if err != nil {
		t.Fatal(err)
	}
	opt, err := Compile(src, Options{Optimize: true})
	if err != nil {
		t.Fatal(err)
	}
	if opt.Stats == nil {
		t.Fatal("optimized result carries no statistics")
	}
	if a, b := tm.CodeLength(opt.Code), tm.CodeLength(plain.Code); a >= b {
		t.Errorf("optimized code has %d instructions, unoptimized %d", a, b)
	}
	if opt.Stats.Rewrites() == 0 {
		t.Error("expected at least one rewrite")
	}
}

func TestConstantWriteOptimized(t *testing.T) {
	res, err := Compile("write 1 + 2;", Options{Optimize: true})
	if err != nil {
		t.Fatal(err)
	}
	var exec []tm.Instr
	for _, in := range res.Code {
		if in.Executable() {
			exec = append(exec, in)
		}
	}
	want := []tm.Instr{
		{Op: tm.OpLD, R: tm.SP, S: 0, T: tm.ZERO},
		{Op: tm.OpLDC, R: tm.AC1, S: 3},
		{Op: tm.OpOUT, R: tm.AC1},
		{Op: tm.OpOUTNL},
		{Op: tm.OpHALT},
	}
	if len(exec) != len(want) {
		t.Fatalf("expected %d instructions, got %d:\n%s", len(want), len(exec), res.Listing())
	}
	for i, w := range want {
		g := exec[i]
		if g.Op != w.Op || g.R != w.R || g.S != w.S || g.T != w.T {
			t.Errorf("instruction %d: expected %v, got %v", i, w, g)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		msg  string
	}{
		{"Division By Zero", "write 1;\nwrite 1 / 0;", 2, "division by zero"},
		{"Modulus By Zero", "write 4 % 0;", 1, "division by zero"},
		{"Lex Error", "write @;", 1, "illegal character"},
		{"Parse Error", "write 1", 1, "syntax error"},
		{"Type Error", "write true;", 1, "incompatible argument type to write"},
	}
	for _, tt := range tests {
		for _, optimize := range []bool{false, true} {
			t.Run(tt.name, func(t *testing.T) {
				_, err := Compile(tt.src, Options{Optimize: optimize})
				var cerr *Error
				if !errors.As(err, &cerr) {
					t.Fatalf("expected *Error, got %v", err)
				}
				if cerr.Line != tt.line {
					t.Errorf("line: expected %d, got %d", tt.line, cerr.Line)
				}
				if !strings.Contains(cerr.Msg, tt.msg) {
					t.Errorf("message: expected %q in %q", tt.msg, cerr.Msg)
				}
			})
		}
	}
}

func TestComputedDivisionByZero(t *testing.T) {
	for _, src := range []string{
		"write 1;\nwrite 5 / (2 - 2);",
		"write 1;\nwrite 7 % -0;",
	} {
		for _, optimize := range []bool{false, true} {
			res, err := Compile(src, Options{Optimize: optimize})
			if err != nil {
				t.Fatalf("%q (optimize=%v): compile: %v", src, optimize, err)
			}
			con := &cpu.BufferConsole{}
			vm := cpu.NewCPU(con)
			if err := vm.Load(res.Code); err != nil {
				t.Fatalf("load: %v", err)
			}
			if err := vm.Run(); !errors.Is(err, cpu.ErrZeroDivide) {
				t.Errorf("%q (optimize=%v): expected a division fault, got %v", src, optimize, err)
			}
			if got := con.String(); got != "1 \n" {
				t.Errorf("%q (optimize=%v): output %q", src, optimize, got)
			}
		}
	}
}

func TestInputPending(t *testing.T) {
	res, err := Compile("write read + 1;", Options{})
	if err != nil {
		t.Fatal(err)
	}
	con := &cpu.BufferConsole{}
	vm := cpu.NewCPU(con)
	if err := vm.Load(res.Code); err != nil {
		t.Fatal(err)
	}
	if err := vm.Run(); !errors.Is(err, cpu.ErrInputPending) {
		t.Fatalf("expected ErrInputPending, got %v", err)
	}
	con.Input = append(con.Input, 41)
	if err := vm.Run(); err != nil {
		t.Fatal(err)
	}
	if got := con.String(); got != "42 \n" {
		t.Errorf("expected %q, got %q", "42 \n", got)
	}
}
