package reinforcement

import (
	"fmt"
	"log"
	"math"

	"gridmdp/atomic_float"
	"gridmdp/grid_world"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// ValueFunction holds one value per state id.
type ValueFunction []float64

// Policy holds one action per state id. Entries for obstacle and terminal
// states are Up and carry no meaning.
type Policy []grid_world.Action

// Snapshot is the solver's state after a completed sweep. Values and Policy are
// copies owned by the receiver.
type Snapshot struct {
	Sweep    int
	MaxError float64
	Values   ValueFunction
	Policy   Policy
}

// ProgressFunc is called synchronously after every sweep, so it blocks the solve
// and should complete quickly.
type ProgressFunc func(Snapshot)

// Result is the outcome of a solve. Converged is false when the sweep budget ran out
// before the max error dropped below the threshold; that is a valid outcome, not a failure.
type Result struct {
	RunID     uuid.UUID
	Values    ValueFunction
	Sweeps    int
	MaxError  float64
	Converged bool
	// Errors is the max error of each sweep, in order.
	Errors []float64
}

// Termination describes why the solve stopped.
func (res *Result) Termination() string {
	if res.Converged {
		return "converged"
	}
	return "iteration cap reached"
}

// Solver runs value iteration over a grid world with a fixed discount factor.
// A Solver holds no per-solve state; every call returns fresh arrays, so one
// Solver may be used concurrently.
type Solver struct {
	world    *grid_world.GridWorld
	gamma    float64
	workers  int
	progress ProgressFunc
}

// SolverOption configures a Solver.
type SolverOption func(*Solver)

// WithWorkers sets the number of goroutines that share each sweep.
func WithWorkers(n int) SolverOption {
	return func(solver *Solver) {
		if n < 1 {
			n = 1
		}
		solver.workers = n
	}
}

// WithProgress registers a hook called after every sweep.
func WithProgress(fn ProgressFunc) SolverOption {
	return func(solver *Solver) {
		solver.progress = fn
	}
}

// NewSolver returns a value iteration solver. The discount factor must be in [0,1).
func NewSolver(
	world *grid_world.GridWorld,
	gamma float64,
	opts ...SolverOption,
) (*Solver, error) {
	if world == nil {
		return nil, fmt.Errorf("%w: nil grid world", grid_world.ErrInvalidConfig)
	}
	if !(gamma >= 0 && gamma < 1) {
		return nil, fmt.Errorf("%w: discount factor %v not in [0,1)", grid_world.ErrInvalidConfig, gamma)
	}

	solver := &Solver{
		world:   world,
		gamma:   gamma,
		workers: 1,
	}
	for _, opt := range opts {
		opt(solver)
	}
	return solver, nil
}

// Gamma is the discount factor.
func (solver *Solver) Gamma() float64 {
	return solver.gamma
}

// Solve runs value iteration from V = 0.
func (solver *Solver) Solve(threshold float64, maxIterations int) *Result {
	return solver.SolveFrom(nil, threshold, maxIterations)
}

// SolveFrom runs value iteration from the passed values, which are copied; missing
// entries start at zero. Sweeps repeat until the max per-state change is below threshold
// or maxIterations sweeps have run. A maxIterations below one is treated as one.
// Obstacle and terminal states keep their initial values.
func (solver *Solver) SolveFrom(
	initial ValueFunction,
	threshold float64,
	maxIterations int,
) *Result {
	if maxIterations < 1 {
		maxIterations = 1
	}

	numStates := solver.world.NumStates()
	prev := make(ValueFunction, numStates)
	copy(prev, initial)
	next := make(ValueFunction, numStates)

	res := &Result{RunID: uuid.New()}
	for sweep := 1; ; sweep++ {
		maxError := solver.sweep(prev, next)
		// next now holds this sweep's values and becomes the baseline of the following one.
		prev, next = next, prev

		res.Sweeps = sweep
		res.MaxError = maxError
		res.Errors = append(res.Errors, maxError)

		if solver.progress != nil {
			solver.progress(solver.snapshot(sweep, maxError, prev))
		}

		if maxError < threshold {
			res.Converged = true
			break
		}
		if sweep >= maxIterations {
			break
		}
	}

	res.Values = prev
	log.Printf("solve %s: %s after %d sweeps, max error %g\n",
		res.RunID, res.Termination(), res.Sweeps, res.MaxError)
	return res
}

// sweep computes next from prev for every state and returns the max absolute change.
// States are split into contiguous chunks, one per worker. Each worker reads only prev
// and writes only its own chunk of next; group.Wait is the barrier ending the sweep.
func (solver *Solver) sweep(prev, next ValueFunction) float64 {
	maxError := atomic_float.NewAtomicFloat64(0)
	numStates := len(prev)
	chunk := (numStates + solver.workers - 1) / solver.workers

	if solver.workers == 1 {
		solver.backupRange(prev, next, 0, numStates, maxError)
		return maxError.AtomicRead()
	}

	group := errgroup.Group{}
	for lo := 0; lo < numStates; lo += chunk {
		lo, hi := lo, lo+chunk
		if hi > numStates {
			hi = numStates
		}
		group.Go(func() error {
			solver.backupRange(prev, next, lo, hi, maxError)
			return nil
		})
	}
	_ = group.Wait()

	return maxError.AtomicRead()
}

// backupRange applies the Bellman optimality backup to states [lo, hi).
func (solver *Solver) backupRange(
	prev, next ValueFunction,
	lo, hi int,
	maxError *atomic_float.AtomicFloat64,
) {
	q := make([]float64, grid_world.NUM_ACTIONS)
	for state := lo; state < hi; state++ {
		if solver.skip(state) {
			next[state] = prev[state]
			continue
		}
		next[state] = floats.Max(solver.qValues(state, prev, q))
	}
	maxError.AtomicMax(floats.Distance(next[lo:hi], prev[lo:hi], math.Inf(1)))
}

// qValues fills q with Q(state, a) = sum_s' P(s'|s,a) * (R(s,a,s') + gamma*V(s')) for each action.
func (solver *Solver) qValues(state int, values ValueFunction, q []float64) []float64 {
	for _, action := range grid_world.Actions {
		probs := solver.world.TransitionRow(state, action)
		q[action] = floats.Dot(probs, solver.world.RewardRow(state, action)) +
			solver.gamma*floats.Dot(probs, values)
	}
	return q
}

func (solver *Solver) skip(state int) bool {
	return solver.world.IsObstacle(state) || solver.world.IsTerminal(state)
}

// QValues returns Q(state, a) for every action in action order. Obstacle and
// terminal states have no outgoing mass, so their Q values are zero.
func (solver *Solver) QValues(state int, values ValueFunction) []float64 {
	return solver.qValues(state, values, make([]float64, grid_world.NUM_ACTIONS))
}

// Greedy returns the action maximizing Q(state, .), the first one on ties.
func (solver *Solver) Greedy(state int, values ValueFunction) grid_world.Action {
	if solver.skip(state) {
		return grid_world.Up
	}
	return grid_world.Action(floats.MaxIdx(solver.QValues(state, values)))
}

// ExtractPolicy returns the greedy policy for the passed values.
func (solver *Solver) ExtractPolicy(values ValueFunction) Policy {
	policy := make(Policy, solver.world.NumStates())
	for state := range policy {
		policy[state] = solver.Greedy(state, values)
	}
	return policy
}

func (solver *Solver) snapshot(sweep int, maxError float64, values ValueFunction) Snapshot {
	copied := append(ValueFunction(nil), values...)
	return Snapshot{
		Sweep:    sweep,
		MaxError: maxError,
		Values:   copied,
		Policy:   solver.ExtractPolicy(copied),
	}
}

// Solve is a one-shot value iteration over world.
func Solve(
	world *grid_world.GridWorld,
	gamma, threshold float64,
	maxIterations int,
) (*Result, error) {
	solver, err := NewSolver(world, gamma)
	if err != nil {
		return nil, err
	}
	return solver.Solve(threshold, maxIterations), nil
}

// ExtractPolicy is the greedy policy of values over world.
func ExtractPolicy(
	world *grid_world.GridWorld,
	gamma float64,
	values ValueFunction,
) (Policy, error) {
	solver, err := NewSolver(world, gamma)
	if err != nil {
		return nil, err
	}
	return solver.ExtractPolicy(values), nil
}
