package grid_world

import (
	"fmt"
	"io"

	"github.com/logrusorgru/aurora"
)

// Cell glyphs for ShowGrid.
const (
	OBSTACLE = 'X'
	TERMINAL = 'T'
	OPEN     = 'o'
)

// Printer writes console views of a grid world and of values or policies over it.
// Rows are printed top down, so the first line is the highest y.
type Printer struct {
	world *GridWorld
	w     io.Writer
	au    aurora.Aurora
}

// NewPrinter returns a Printer writing to w, with ansi colors if colors is set.
func NewPrinter(world *GridWorld, w io.Writer, colors bool) *Printer {
	return &Printer{
		world: world,
		w:     w,
		au:    aurora.NewAurora(colors),
	}
}

// Glyph returns the cell type of a state for display.
func (world *GridWorld) Glyph(state int) rune {
	switch {
	case world.IsObstacle(state):
		return OBSTACLE
	case world.IsTerminal(state):
		return TERMINAL
	}
	return OPEN
}

// ShowGrid prints the cell types, for visual reference.
func (p *Printer) ShowGrid() {
	p.visitRows(func(state int) {
		glyph := string(p.world.Glyph(state))
		switch p.world.Glyph(state) {
		case OBSTACLE:
			fmt.Fprintf(p.w, "%v ", p.au.Red(glyph))
		case TERMINAL:
			fmt.Fprintf(p.w, "%v ", p.au.Green(glyph))
		default:
			fmt.Fprintf(p.w, "%s ", glyph)
		}
	})
}

// ShowValues prints one value per cell. Obstacles print as '-'.
func (p *Printer) ShowValues(values []float64) {
	total := 0.0
	p.visitRows(func(state int) {
		if p.world.IsObstacle(state) {
			fmt.Fprintf(p.w, "%7s ", "-")
			return
		}
		total += values[state]
		fmt.Fprintf(p.w, "%v ", p.au.Blue(fmt.Sprintf("%7.2f", values[state])))
	})
	fmt.Fprintf(p.w, "Total: %.2f\n", total)
}

// ShowPolicy prints the direction of each cell's action.
func (p *Printer) ShowPolicy(policy []Action) {
	p.visitRows(func(state int) {
		switch {
		case p.world.IsObstacle(state):
			fmt.Fprintf(p.w, "%v ", p.au.Red(string(OBSTACLE)))
		case p.world.IsTerminal(state):
			fmt.Fprintf(p.w, "%v ", p.au.Green(string(TERMINAL)))
		default:
			fmt.Fprintf(p.w, "%c ", policy[state].Arrow())
		}
	})
}

// visitRows calls fn for every cell, top row first, ending each row with a newline.
func (p *Printer) visitRows(fn func(state int)) {
	for _, y := range Rev(p.world.size) {
		for x := 0; x < p.world.size; x++ {
			fn(p.world.StateOf(x, y))
		}
		fmt.Fprintln(p.w)
	}
}

// Rev returns reversed indices of a slice, e.g. for ranging over.
func Rev(length int) []int {
	indices := make([]int, length)
	for i := 0; i < length; i++ {
		indices[i] = length - i - 1
	}
	return indices
}
