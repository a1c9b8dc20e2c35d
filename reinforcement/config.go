package reinforcement

import (
	"context"
	"fmt"
	"time"

	"gridmdp/grid_world"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// PROBLEM_KIND is the only config kind understood by FromYaml.
const PROBLEM_KIND = "gridworld"

const (
	DEFAULT_GAMMA          = 0.99
	DEFAULT_THRESHOLD      = 1e-3
	DEFAULT_MAX_ITERATIONS = 100
)

// OuterConfig is the config envelope: a kind selector and its definition.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// ProblemConfig describes a grid world problem and its solver parameters outside of code.
// Keys are lowercase because viper folds the case of every key it reads.
type ProblemConfig struct {
	GridSize  int                `yaml:"grid_size"`
	Obstacles []grid_world.Coord `yaml:"obstacles"`
	Terminals []grid_world.Coord `yaml:"terminals"`
	// Rewards is indexed [row][col], row 0 being the top of the grid.
	Rewards       [][]float64 `yaml:"rewards"`
	MaxIterations int         `yaml:"max_iterations"`
	Workers       int         `yaml:"workers"`
	// HyperParams is a key-val list of solver params: gamma and threshold.
	HyperParams []HyperParameter `yaml:"hyper_params"`
	// SolveDeadline holds a "duration" bounding a serving session.
	SolveDeadline map[string]string `yaml:"solve_deadline"`
}

type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

func (cfg *ProblemConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

// Gamma is the discount factor.
func (cfg *ProblemConfig) Gamma() float64 {
	return cfg.GetHyperParamOrDefault("gamma", DEFAULT_GAMMA)
}

// Threshold is the convergence threshold on the max per-state change of a sweep.
func (cfg *ProblemConfig) Threshold() float64 {
	return cfg.GetHyperParamOrDefault("threshold", DEFAULT_THRESHOLD)
}

// Validate checks the solver parameters. Grid parameters are checked by Build.
func (cfg *ProblemConfig) Validate() error {
	if gamma := cfg.Gamma(); !(gamma >= 0 && gamma < 1) {
		return fmt.Errorf("%w: gamma %v not in [0,1)", grid_world.ErrInvalidConfig, gamma)
	}
	if threshold := cfg.Threshold(); !(threshold > 0) {
		return fmt.Errorf("%w: threshold %v must be positive", grid_world.ErrInvalidConfig, threshold)
	}
	if cfg.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations %d must be at least 1", grid_world.ErrInvalidConfig, cfg.MaxIterations)
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("%w: workers %d must be at least 1", grid_world.ErrInvalidConfig, cfg.Workers)
	}
	return nil
}

// Build constructs the grid world described by the config.
func (cfg *ProblemConfig) Build() (*grid_world.GridWorld, error) {
	return grid_world.NewGridWorld(
		cfg.GridSize,
		cfg.Obstacles,
		cfg.Rewards,
		grid_world.WithTerminals(cfg.Terminals...))
}

// NewSolver validates the config and returns the world and a solver for it.
func (cfg *ProblemConfig) NewSolver(opts ...SolverOption) (*grid_world.GridWorld, *Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	world, err := cfg.Build()
	if err != nil {
		return nil, nil, err
	}
	opts = append([]SolverOption{WithWorkers(cfg.Workers)}, opts...)
	solver, err := NewSolver(world, cfg.Gamma(), opts...)
	if err != nil {
		return nil, nil, err
	}
	return world, solver, nil
}

// WithSolveDeadline returns a context extended by the solve deadline, if one is specified.
func (cfg *ProblemConfig) WithSolveDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.SolveDeadline["duration"]; ok {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return nil, nil, fmt.Errorf("solve deadline: %w", err)
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// FromYaml reads a problem config. The file is an envelope of kind and def; viper reads
// the envelope and def is re-marshalled so that it can be decoded by its yaml tags.
// Missing max_iterations and workers take defaults.
func FromYaml(path string) (*ProblemConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if outerConfig.Kind != PROBLEM_KIND {
		return nil, fmt.Errorf("%w: config kind %q, want %q", grid_world.ErrInvalidConfig, outerConfig.Kind, PROBLEM_KIND)
	}

	var def []byte
	if def, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, err
	}

	innerConfig := &ProblemConfig{}
	if err = yaml.Unmarshal(def, innerConfig); err != nil {
		return nil, fmt.Errorf("decode problem %s: %w", path, err)
	}
	if innerConfig.MaxIterations == 0 {
		innerConfig.MaxIterations = DEFAULT_MAX_ITERATIONS
	}
	if innerConfig.Workers == 0 {
		innerConfig.Workers = 1
	}

	return innerConfig, nil
}
