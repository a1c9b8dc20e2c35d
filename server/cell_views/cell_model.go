// cell_views contains views derived from the Cell view-model.
package cell_views

import (
	"math"

	"gridmdp/grid_world"
	"gridmdp/reinforcement"

	"gonum.org/v1/gonum/floats"
)

// Cell is a grid cell as displayed: cells[x][y] is positioned in svg coordinates,
// where Y=0 is the top row. Fields are immediately usable as view parameters.
type Cell struct {
	X, Y                int
	Max                 float64
	// Height is Max scaled into [-1,1] by the largest absolute value of the snapshot.
	Height              float64
	PolicyArrowRotation int
	// PolicyArrowScale is the arrow's stroke width, zero where no action applies.
	PolicyArrowScale    int
	Fill                string
}

// NewConverter returns a function converting solver snapshots of world into cells.
func NewConverter(world *grid_world.GridWorld) func(reinforcement.Snapshot) [][]Cell {
	return func(snap reinforcement.Snapshot) [][]Cell {
		return Convert(world, snap)
	}
}

// Convert transforms a snapshot into cells indexed [x][y], with y flipped for svg.
func Convert(world *grid_world.GridWorld, snap reinforcement.Snapshot) (cells [][]Cell) {
	size := world.Size()
	scale := 0.0
	if len(snap.Values) > 0 {
		scale = floats.Norm(snap.Values, math.Inf(1))
	}

	cells = make([][]Cell, size)
	for x := range cells {
		cells[x] = make([]Cell, size)
		for y := range cells[x] {
			state := world.StateOf(x, y)
			cell := Cell{
				X:    x,
				Y:    size - y - 1,
				Fill: getFill(world, state),
			}
			if state < len(snap.Values) {
				cell.Max = snap.Values[state]
				if scale > 0 {
					cell.Height = cell.Max / scale
				}
			}
			if state < len(snap.Policy) && !world.IsObstacle(state) && !world.IsTerminal(state) {
				cell.PolicyArrowRotation = getDegrees(snap.Policy[state])
				cell.PolicyArrowScale = 1
			}
			cells[x][y] = cell
		}
	}
	return
}

// getDegrees converts an action into the svg rotate() degrees of an upward arrow rune.
// Svg rotation is clockwise.
func getDegrees(action grid_world.Action) (deg int) {
	switch action {
	case grid_world.Right:
		deg = 90
	case grid_world.Down:
		deg = 180
	case grid_world.Left:
		deg = 270
	}
	return
}

func getFill(world *grid_world.GridWorld, state int) (fill string) {
	switch {
	case world.IsObstacle(state):
		fill = "lightgreen"
	case world.IsTerminal(state):
		fill = "lightyellow"
	default:
		fill = "lightgray"
	}
	return
}
