package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/tebeka/atexit"

	"ice9c/pkg/compiler"
	"ice9c/pkg/config"
	"ice9c/pkg/cpu"
	"ice9c/pkg/grid"
	"ice9c/pkg/utils"
)

const (
	cols = 80
	rows = 25

	// ebitenutil's debug font
	charWidth  = 6
	charHeight = 16

	stepsPerFrame = 10000
)

type Game struct {
	vm   *cpu.CPU
	con  *cpu.BufferConsole
	line []rune // input being typed
	err  error
}

func NewGame(vm *cpu.CPU, con *cpu.BufferConsole) *Game {
	return &Game{vm: vm, con: con}
}

func (g *Game) Update() error {
	for _, r := range ebiten.AppendInputChars(nil) {
		g.typeRune(r)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		g.submit()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		g.backspace()
	}
	g.step(stepsPerFrame)
	return nil
}

// step runs up to n instructions, stopping early when the program halts,
// fails or waits for a number nobody has typed yet.
func (g *Game) step(n int) {
	for i := 0; i < n; i++ {
		if g.vm.Halted || g.err != nil {
			return
		}
		if g.vm.Waiting && len(g.con.Input) == 0 {
			return
		}
		if g.vm.MaxSteps > 0 && g.vm.Steps >= g.vm.MaxSteps {
			g.err = fmt.Errorf("%w (%d)", cpu.ErrStepLimit, g.vm.MaxSteps)
			return
		}
		if err := g.vm.Step(); err != nil {
			g.err = err
			return
		}
	}
}

func (g *Game) typeRune(r rune) {
	if (r >= '0' && r <= '9') || (r == '-' && len(g.line) == 0) {
		g.line = append(g.line, r)
	}
}

func (g *Game) backspace() {
	if len(g.line) > 0 {
		g.line = g.line[:len(g.line)-1]
	}
}

// submit hands the typed number to the machine and echoes it.
func (g *Game) submit() {
	v, err := strconv.Atoi(string(g.line))
	if err != nil {
		return
	}
	g.con.Input = append(g.con.Input, v)
	g.con.Output.WriteString(string(g.line) + "\n")
	g.line = g.line[:0]
}

// screenText is the transcript shown in the window.
func (g *Game) screenText() string {
	var sb strings.Builder
	sb.WriteString(g.con.String())
	switch {
	case g.err != nil:
		sb.WriteString("\n" + g.err.Error())
	case g.vm.Halted:
		sb.WriteString("\n[halted]")
	case g.vm.Waiting:
		sb.WriteString("? " + string(g.line) + "_")
	}
	return sb.String()
}

type cell struct {
	x, y int
	ch   rune
}

// layoutText places text on the grid, wrapping long lines and keeping the
// last rows rows.
func layoutText(text string) []cell {
	var cells []cell
	i := 0
	for _, r := range text {
		if r == '\n' {
			i = (i/cols + 1) * cols
			continue
		}
		x, y := grid.GetGridCoords(i, cols)
		cells = append(cells, cell{x, y, r})
		i++
	}
	_, last := grid.GetGridCoords(i, cols)
	shift := max(0, last-rows+1)
	out := cells[:0]
	for _, c := range cells {
		if c.y >= shift {
			c.y -= shift
			out = append(out, c)
		}
	}
	return out
}

func (g *Game) Draw(screen *ebiten.Image) {
	for _, c := range layoutText(g.screenText()) {
		if c.ch == ' ' {
			continue
		}
		ebitenutil.DebugPrintAt(screen, string(c.ch), c.x*charWidth, c.y*charHeight)
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return cols * charWidth, rows * charHeight
}

func main() {
	showAsm := flag.Bool("show-asm", false, "print the generated listing before running")
	configPath := flag.String("config", "", "YAML configuration file")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: desktop [-show-asm] [-config file] program.9")
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
	res, err := compiler.Compile(src, cfg.CompileOptions(log))
	if err != nil {
		atexit.Fatalf("Compilation failed: %v", err)
	}
	if *showAsm {
		fmt.Print("Generated listing:\n", res.Listing(), "\n")
	}

	con := &cpu.BufferConsole{}
	vm := cpu.NewCPU(con)
	vm.MaxSteps = cfg.MaxSteps
	if err := vm.Load(res.Code); err != nil {
		atexit.Fatalf("load: %v", err)
	}

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(cols*charWidth*2, rows*charHeight*2)
	ebiten.SetWindowTitle("ice9 - " + fullPath)

	game := NewGame(vm, con)
	if err := ebiten.RunGame(game); err != nil && !errors.Is(err, ebiten.Termination) {
		atexit.Fatal(err)
	}
	atexit.Exit(0)
}
