package reinforcement

import (
	"errors"
	"fmt"
	"math/rand"

	"gridmdp/grid_world"
)

// ErrInvalidStart is returned when a rollout starts off the grid or on an obstacle.
var ErrInvalidStart = errors.New("invalid rollout start")

// Rollout walks an agent through world by following policy from start, for at most
// maxSteps steps. Successors are sampled from the transition tensor. The walk stops
// early on reaching a terminal state, or when the policy's action leaves the agent in
// place, since a deterministic policy would then hold position forever.
func Rollout(
	world *grid_world.GridWorld,
	policy Policy,
	start grid_world.Coord,
	maxSteps int,
	rng *rand.Rand,
) (episode grid_world.Episode, err error) {
	if !world.InBounds(start.X, start.Y) {
		return nil, fmt.Errorf("%w: (%d,%d) is off the grid", ErrInvalidStart, start.X, start.Y)
	}
	state := world.StateOf(start.X, start.Y)
	if world.IsObstacle(state) {
		return nil, fmt.Errorf("%w: (%d,%d) is an obstacle", ErrInvalidStart, start.X, start.Y)
	}

	for len(episode) < maxSteps && !world.IsTerminal(state) {
		action := policy[state]
		successor := world.Sample(state, action, rng)
		episode = append(episode, grid_world.Step{
			State:     state,
			Action:    action,
			Successor: successor,
			Reward:    world.Reward(state, action, successor),
		})
		if successor == state {
			break
		}
		state = successor
	}
	return
}

// DiscountedReturn is the sum of the episode's rewards discounted by gamma per step.
func DiscountedReturn(episode grid_world.Episode, gamma float64) (ret float64) {
	discount := 1.0
	for _, step := range episode {
		ret += discount * step.Reward
		discount *= gamma
	}
	return
}
