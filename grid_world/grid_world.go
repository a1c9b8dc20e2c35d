package grid_world

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Action is one of the four unit moves on the grid. Loops over actions always
// visit them in declaration order, which makes the order the tie-break for any
// greedy selection: the first maximal action wins.
type Action int

const (
	Up Action = iota
	Down
	Left
	Right
)

const NUM_ACTIONS = 4

// Actions is the fixed iteration order of the action set.
var Actions = []Action{Up, Down, Left, Right}

func (a Action) String() string {
	switch a {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Offset returns the unit displacement of the action. The y axis points up,
// so Up increments y.
func (a Action) Offset() (dx, dy int) {
	switch a {
	case Up:
		dy = 1
	case Down:
		dy = -1
	case Left:
		dx = -1
	case Right:
		dx = 1
	}
	return
}

// Arrow is a printable rune for the action, for console display.
func (a Action) Arrow() rune {
	switch a {
	case Up:
		return '^'
	case Down:
		return 'v'
	case Left:
		return '<'
	case Right:
		return '>'
	}
	return '?'
}

// Coord is a cartesian grid position; (0,0) is the bottom left cell.
type Coord struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// Step is a single time step of an agent: do Action in State, observe Reward and Successor.
type Step struct {
	State     int
	Action    Action
	Successor int
	Reward    float64
}

// Episode is a sequence of Steps.
type Episode []Step

// ErrInvalidConfig is wrapped by every construction-time validation failure.
var ErrInvalidConfig = errors.New("invalid grid world configuration")

// GridWorld is a square grid MDP over 4-connected moves. States are cell ids,
// id = x*size + y. The transition and reward tensors are dense and are held as one
// numStates x numStates matrix per action, indexed [state][successor].
// A GridWorld is immutable once NewGridWorld returns.
type GridWorld struct {
	size        int
	numStates   int
	obstacles   map[int]bool
	terminals   map[int]bool
	rewardTable [][]float64
	transitions []*mat.Dense
	rewards     []*mat.Dense
}

type options struct {
	terminals []Coord
}

// Option configures optional GridWorld properties.
type Option func(*options)

// WithTerminals marks cells as terminal. A terminal state has no outgoing
// transitions and is never backed up by a solver, but may be entered.
func WithTerminals(coords ...Coord) Option {
	return func(opts *options) {
		opts.terminals = append(opts.terminals, coords...)
	}
}

// NewGridWorld builds the MDP for a size x size grid. The reward table is indexed
// [row][col] with row 0 being the top of the grid, so the reward for arriving at
// (x,y) is rewards[size-1-y][x]. Obstacles are impassable: moves into them, like moves
// off the grid, leave the agent where it is.
func NewGridWorld(
	size int,
	obstacles []Coord,
	rewards [][]float64,
	opts ...Option,
) (*GridWorld, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: grid size %d, must be at least 1", ErrInvalidConfig, size)
	}
	if len(rewards) != size {
		return nil, fmt.Errorf("%w: reward table has %d rows, want %d", ErrInvalidConfig, len(rewards), size)
	}

	table := make([][]float64, size)
	for row := range rewards {
		if len(rewards[row]) != size {
			return nil, fmt.Errorf("%w: reward table row %d has %d columns, want %d",
				ErrInvalidConfig, row, len(rewards[row]), size)
		}
		table[row] = append([]float64(nil), rewards[row]...)
	}

	cfg := &options{}
	for _, opt := range opts {
		opt(cfg)
	}

	world := &GridWorld{
		size:        size,
		numStates:   size * size,
		obstacles:   map[int]bool{},
		terminals:   map[int]bool{},
		rewardTable: table,
	}

	for _, c := range obstacles {
		if !world.InBounds(c.X, c.Y) {
			return nil, fmt.Errorf("%w: obstacle (%d,%d) outside %dx%d grid", ErrInvalidConfig, c.X, c.Y, size, size)
		}
		world.obstacles[world.StateOf(c.X, c.Y)] = true
	}

	for _, c := range cfg.terminals {
		if !world.InBounds(c.X, c.Y) {
			return nil, fmt.Errorf("%w: terminal (%d,%d) outside %dx%d grid", ErrInvalidConfig, c.X, c.Y, size, size)
		}
		state := world.StateOf(c.X, c.Y)
		if world.obstacles[state] {
			return nil, fmt.Errorf("%w: terminal (%d,%d) is also an obstacle", ErrInvalidConfig, c.X, c.Y)
		}
		world.terminals[state] = true
	}

	world.buildTransitions()
	world.buildRewards()
	return world, nil
}

// buildTransitions puts all of the mass of each (state, action) row on the single
// deterministic successor. Sink rows (obstacles, terminals) stay zero.
func (world *GridWorld) buildTransitions() {
	world.transitions = make([]*mat.Dense, NUM_ACTIONS)
	for _, action := range Actions {
		probs := mat.NewDense(world.numStates, world.numStates, nil)
		for state := 0; state < world.numStates; state++ {
			if world.isSink(state) {
				continue
			}
			probs.Set(state, world.Successor(state, action), 1.0)
		}
		world.transitions[action] = probs
	}
}

// buildRewards sets the arrival reward wherever a transition has positive mass.
func (world *GridWorld) buildRewards() {
	world.rewards = make([]*mat.Dense, NUM_ACTIONS)
	for _, action := range Actions {
		rewards := mat.NewDense(world.numStates, world.numStates, nil)
		for state := 0; state < world.numStates; state++ {
			for next, prob := range world.transitions[action].RawRowView(state) {
				if prob > 0 {
					rewards.Set(state, next, world.ArrivalReward(next))
				}
			}
		}
		world.rewards[action] = rewards
	}
}

func (world *GridWorld) isSink(state int) bool {
	return world.obstacles[state] || world.terminals[state]
}

// Size is the grid's width, which equals its height.
func (world *GridWorld) Size() int {
	return world.size
}

func (world *GridWorld) NumStates() int {
	return world.numStates
}

func (world *GridWorld) NumActions() int {
	return NUM_ACTIONS
}

// StateOf returns the state id of cell (x,y).
func (world *GridWorld) StateOf(x, y int) int {
	return x*world.size + y
}

func (world *GridWorld) XOf(state int) int {
	return state / world.size
}

func (world *GridWorld) YOf(state int) int {
	return state % world.size
}

func (world *GridWorld) CoordOf(state int) Coord {
	return Coord{X: world.XOf(state), Y: world.YOf(state)}
}

func (world *GridWorld) InBounds(x, y int) bool {
	return x >= 0 && x < world.size && y >= 0 && y < world.size
}

func (world *GridWorld) IsObstacle(state int) bool {
	return world.obstacles[state]
}

func (world *GridWorld) IsTerminal(state int) bool {
	return world.terminals[state]
}

// Obstacles returns the obstacle cells ordered by state id.
func (world *GridWorld) Obstacles() (coords []Coord) {
	states := make([]int, 0, len(world.obstacles))
	for state := range world.obstacles {
		states = append(states, state)
	}
	sort.Ints(states)
	for _, state := range states {
		coords = append(coords, world.CoordOf(state))
	}
	return
}

// TransitionProb is P(next | state, action).
func (world *GridWorld) TransitionProb(state int, action Action, next int) float64 {
	return world.transitions[action].At(state, next)
}

// Reward is R(state, action, next); zero wherever the transition has no mass.
func (world *GridWorld) Reward(state int, action Action, next int) float64 {
	return world.rewards[action].At(state, next)
}

// TransitionRow returns P(. | state, action) as a view into the tensor.
// Callers must not modify it.
func (world *GridWorld) TransitionRow(state int, action Action) []float64 {
	return world.transitions[action].RawRowView(state)
}

// RewardRow returns R(state, action, .) as a view into the tensor.
// Callers must not modify it.
func (world *GridWorld) RewardRow(state int, action Action) []float64 {
	return world.rewards[action].RawRowView(state)
}

// ArrivalReward is the reward table entry for the cell of the passed state.
func (world *GridWorld) ArrivalReward(state int) float64 {
	return world.rewardTable[world.size-1-world.YOf(state)][world.XOf(state)]
}

// Successor returns the deterministic result of taking action in state: the
// adjacent cell, or state itself if the move would leave the grid or enter an obstacle.
func (world *GridWorld) Successor(state int, action Action) int {
	dx, dy := action.Offset()
	x, y := world.XOf(state)+dx, world.YOf(state)+dy
	if !world.InBounds(x, y) {
		return state
	}
	next := world.StateOf(x, y)
	if world.obstacles[next] {
		return state
	}
	return next
}

// Sample draws a successor from P(. | state, action) by cumulative probability.
// A state without outgoing mass (an obstacle or terminal) returns itself.
func (world *GridWorld) Sample(state int, action Action, rng *rand.Rand) int {
	p := rng.Float64()
	cumulative := 0.0
	last := state
	for next, prob := range world.TransitionRow(state, action) {
		if prob <= 0 {
			continue
		}
		cumulative += prob
		last = next
		if p < cumulative {
			return next
		}
	}
	// Rounding can leave the cumulative mass a hair below 1.
	return last
}
