package grid_world

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// The example problem: a 4x4 grid with three obstacles and a reward table whose
// first row is the top of the grid.
var (
	exampleObstacles = []Coord{{0, 2}, {2, 1}, {3, 3}}
	exampleRewards   = [][]float64{
		{-1, 0, 0, 0},
		{0, 10, 1, 0},
		{-1, 1, 0, 0},
		{0, 0, 0, 0},
	}
)

func uniformRewards(size int, val float64) [][]float64 {
	rewards := make([][]float64, size)
	for row := range rewards {
		rewards[row] = make([]float64, size)
		for col := range rewards[row] {
			rewards[row][col] = val
		}
	}
	return rewards
}

func rowSum(world *GridWorld, state int, action Action) (sum float64) {
	for _, prob := range world.TransitionRow(state, action) {
		sum += prob
	}
	return
}

func TestNewGridWorld(t *testing.T) {
	Convey("When a grid world is built from the example problem", t, func() {
		world, err := NewGridWorld(4, exampleObstacles, exampleRewards)
		So(err, ShouldBeNil)
		So(world.NumStates(), ShouldEqual, 16)
		So(world.NumActions(), ShouldEqual, 4)

		Convey("State ids and coordinates are a bijection", func() {
			for state := 0; state < world.NumStates(); state++ {
				So(world.StateOf(world.XOf(state), world.YOf(state)), ShouldEqual, state)
			}
			So(world.StateOf(2, 1), ShouldEqual, 9)
			So(world.CoordOf(9), ShouldResemble, Coord{X: 2, Y: 1})
		})

		Convey("Every non-obstacle state-action row sums to one", func() {
			for state := 0; state < world.NumStates(); state++ {
				if world.IsObstacle(state) {
					continue
				}
				for _, action := range Actions {
					So(rowSum(world, state, action), ShouldAlmostEqual, 1.0, 1e-12)
				}
			}
		})

		Convey("Obstacle rows are all zero", func() {
			for _, c := range exampleObstacles {
				state := world.StateOf(c.X, c.Y)
				So(world.IsObstacle(state), ShouldBeTrue)
				for _, action := range Actions {
					for next := 0; next < world.NumStates(); next++ {
						So(world.TransitionProb(state, action, next), ShouldEqual, 0)
					}
				}
			}
		})

		Convey("No transition puts mass on an obstacle", func() {
			for state := 0; state < world.NumStates(); state++ {
				for _, action := range Actions {
					for next := 0; next < world.NumStates(); next++ {
						if world.IsObstacle(next) {
							So(world.TransitionProb(state, action, next), ShouldEqual, 0)
						}
					}
				}
			}
		})

		Convey("Moves off the grid stay in place", func() {
			corner := world.StateOf(0, 0)
			So(world.TransitionProb(corner, Down, corner), ShouldEqual, 1)
			So(world.TransitionProb(corner, Left, corner), ShouldEqual, 1)
			So(world.TransitionProb(corner, Right, world.StateOf(1, 0)), ShouldEqual, 1)
			So(world.TransitionProb(corner, Up, world.StateOf(0, 1)), ShouldEqual, 1)
		})

		Convey("Moves into an obstacle stay in place", func() {
			// (0,1) sits below the obstacle at (0,2)
			state := world.StateOf(0, 1)
			So(world.TransitionProb(state, Up, state), ShouldEqual, 1)
			So(world.Successor(state, Up), ShouldEqual, state)
		})

		Convey("Rewards are read from the flipped table for the arrival cell", func() {
			// (1,2) is row 1, col 1 of the table.
			So(world.ArrivalReward(world.StateOf(1, 2)), ShouldEqual, 10)
			// (0,3) is the top left corner.
			So(world.ArrivalReward(world.StateOf(0, 3)), ShouldEqual, -1)
			// (0,1) is row 2, col 0.
			So(world.ArrivalReward(world.StateOf(0, 1)), ShouldEqual, -1)

			from := world.StateOf(1, 1)
			So(world.Reward(from, Up, world.StateOf(1, 2)), ShouldEqual, 10)
			// The stay transition is rewarded against the state itself.
			top := world.StateOf(1, 3)
			So(world.Reward(top, Up, top), ShouldEqual, world.ArrivalReward(top))
		})

		Convey("Rewards are zero wherever the transition has no mass", func() {
			for state := 0; state < world.NumStates(); state++ {
				for _, action := range Actions {
					for next := 0; next < world.NumStates(); next++ {
						if world.TransitionProb(state, action, next) == 0 {
							So(world.Reward(state, action, next), ShouldEqual, 0)
						}
					}
				}
			}
		})

		Convey("Obstacles are listed by state id", func() {
			So(world.Obstacles(), ShouldResemble, []Coord{{0, 2}, {2, 1}, {3, 3}})
		})
	})

	Convey("When a cell is walled in on three sides", t, func() {
		// (0,1) has the grid edge to its left and obstacles above and below.
		world, err := NewGridWorld(3, []Coord{{0, 0}, {0, 2}}, uniformRewards(3, -1))
		So(err, ShouldBeNil)
		state := world.StateOf(0, 1)

		Convey("The blocked actions stay put and the open one moves", func() {
			So(world.TransitionProb(state, Up, state), ShouldEqual, 1)
			So(world.TransitionProb(state, Down, state), ShouldEqual, 1)
			So(world.TransitionProb(state, Left, state), ShouldEqual, 1)
			So(world.TransitionProb(state, Right, world.StateOf(1, 1)), ShouldEqual, 1)
			So(world.TransitionProb(state, Right, state), ShouldEqual, 0)
		})
	})

	Convey("When terminals are given", t, func() {
		world, err := NewGridWorld(3, nil, uniformRewards(3, -1), WithTerminals(Coord{2, 2}))
		So(err, ShouldBeNil)
		terminal := world.StateOf(2, 2)

		Convey("The terminal has no outgoing mass but can be entered", func() {
			So(world.IsTerminal(terminal), ShouldBeTrue)
			for _, action := range Actions {
				So(rowSum(world, terminal, action), ShouldEqual, 0)
			}
			So(world.TransitionProb(world.StateOf(1, 2), Right, terminal), ShouldEqual, 1)
		})
	})

	Convey("When the configuration is invalid", t, func() {
		cases := []struct {
			name      string
			size      int
			obstacles []Coord
			rewards   [][]float64
			opts      []Option
		}{
			{"zero size", 0, nil, nil, nil},
			{"short reward table", 3, nil, uniformRewards(2, 0), nil},
			{"ragged reward table", 2, nil, [][]float64{{0, 0}, {0}}, nil},
			{"obstacle out of bounds", 2, []Coord{{2, 0}}, uniformRewards(2, 0), nil},
			{"negative obstacle", 2, []Coord{{0, -1}}, uniformRewards(2, 0), nil},
			{"terminal out of bounds", 2, nil, uniformRewards(2, 0), []Option{WithTerminals(Coord{5, 5})}},
			{"terminal on obstacle", 2, []Coord{{1, 1}}, uniformRewards(2, 0), []Option{WithTerminals(Coord{1, 1})}},
		}
		for _, tc := range cases {
			world, err := NewGridWorld(tc.size, tc.obstacles, tc.rewards, tc.opts...)
			So(world, ShouldBeNil)
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		}
	})

	Convey("When the grid is a single cell", t, func() {
		world, err := NewGridWorld(1, nil, [][]float64{{2}})
		So(err, ShouldBeNil)
		for _, action := range Actions {
			So(world.TransitionProb(0, action, 0), ShouldEqual, 1)
			So(world.Reward(0, action, 0), ShouldEqual, 2)
		}
	})
}

func TestSample(t *testing.T) {
	Convey("When sampling deterministic transitions", t, func() {
		world, err := NewGridWorld(4, exampleObstacles, exampleRewards)
		So(err, ShouldBeNil)
		rng := rand.New(rand.NewSource(7))

		Convey("The sample is always the successor", func() {
			for state := 0; state < world.NumStates(); state++ {
				if world.IsObstacle(state) {
					continue
				}
				for _, action := range Actions {
					So(world.Sample(state, action, rng), ShouldEqual, world.Successor(state, action))
				}
			}
		})

		Convey("An obstacle samples itself", func() {
			obstacle := world.StateOf(2, 1)
			So(world.Sample(obstacle, Up, rng), ShouldEqual, obstacle)
		})
	})
}

func TestPrinter(t *testing.T) {
	Convey("When printing without colors", t, func() {
		world, err := NewGridWorld(2, []Coord{{1, 1}}, uniformRewards(2, 0), WithTerminals(Coord{0, 0}))
		So(err, ShouldBeNil)
		buf := &bytes.Buffer{}
		printer := NewPrinter(world, buf, false)

		Convey("The grid prints top row first", func() {
			printer.ShowGrid()
			So(buf.String(), ShouldEqual, "o X \nT o \n")
		})

		Convey("The policy prints arrows for open cells", func() {
			policy := []Action{Up, Right, Down, Left}
			printer.ShowPolicy(policy)
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			So(lines, ShouldHaveLength, 2)
			// (0,1) is state 1, (1,0) is state 2.
			So(lines[0], ShouldEqual, "> X ")
			So(lines[1], ShouldEqual, "T v")
		})

		Convey("Values print with a total", func() {
			printer.ShowValues([]float64{1, 2, 3, 4})
			So(buf.String(), ShouldContainSubstring, "Total: 6.00")
		})
	})
}
