/*
Gridmdp solves a deterministic grid world by value iteration. The world, its rewards
and the solver's parameters are read from a yaml config; the solve command prints the
values and the greedy policy, and the serve command shows the solve sweep by sweep in
the browser.
*/

package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"gridmdp/grid_world"
	"gridmdp/plots"
	"gridmdp/reinforcement"
	"gridmdp/server"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	nworkers   int
	chartPath  string
	rolloutAt  string
	maxSteps   int
	seed       int64
	colors     bool
	addr       string
	sweepDelay time.Duration
)

func main() {
	// Env files are optional; they only provide flag defaults.
	for _, envFile := range []string{".env", "../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "gridmdp",
		Short:        "Solve grid world MDPs by value iteration",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", envOrDefault("GRIDMDP_CONFIG", "./config.yaml"), "problem config file")
	rootCmd.PersistentFlags().IntVar(&nworkers, "workers", 0, "number of sweep workers, overriding the config")

	solveCmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve the configured world and print its values and policy",
		RunE:  runSolve,
	}
	solveCmd.Flags().StringVar(&chartPath, "chart", "", "write the convergence chart to this html file")
	solveCmd.Flags().StringVar(&rolloutAt, "rollout", "", "follow the policy from x,y and print the episode")
	solveCmd.Flags().IntVar(&maxSteps, "max-steps", 100, "step budget of the rollout")
	solveCmd.Flags().Int64Var(&seed, "seed", 1, "rollout sampling seed")
	solveCmd.Flags().BoolVar(&colors, "colors", true, "colored console output")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Solve the configured world while serving live views of every sweep",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&addr, "addr", envOrDefault("GRIDMDP_ADDR", ":8080"), "listen address")
	serveCmd.Flags().DurationVar(&sweepDelay, "sweep-delay", 250*time.Millisecond, "pause after publishing each sweep")

	rootCmd.AddCommand(solveCmd, serveCmd)
	return rootCmd
}

func envOrDefault(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

func loadConfig() (*reinforcement.ProblemConfig, error) {
	cfg, err := reinforcement.FromYaml(configPath)
	if err != nil {
		return nil, err
	}
	if nworkers > 0 {
		cfg.Workers = nworkers
	}
	return cfg, nil
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	world, solver, err := cfg.NewSolver()
	if err != nil {
		return err
	}

	res := solver.Solve(cfg.Threshold(), cfg.MaxIterations)
	policy := solver.ExtractPolicy(res.Values)

	out := cmd.OutOrStdout()
	printer := grid_world.NewPrinter(world, out, colors)
	printer.ShowGrid()
	fmt.Fprintln(out)
	printer.ShowValues(res.Values)
	fmt.Fprintln(out)
	printer.ShowPolicy(policy)
	fmt.Fprintf(out, "%s after %d sweeps, max error %g\n", res.Termination(), res.Sweeps, res.MaxError)

	if chartPath != "" {
		if err = plots.WriteConvergence(chartPath, res); err != nil {
			return err
		}
		log.Println("wrote convergence chart to", chartPath)
	}

	if rolloutAt == "" {
		return nil
	}
	start, err := parseCoord(rolloutAt)
	if err != nil {
		return err
	}
	episode, err := reinforcement.Rollout(world, policy, start, maxSteps, rand.New(rand.NewSource(seed)))
	if err != nil {
		return err
	}
	for _, step := range episode {
		from, to := world.CoordOf(step.State), world.CoordOf(step.Successor)
		fmt.Fprintf(out, "(%d,%d) %s -> (%d,%d) reward %.2f\n", from.X, from.Y, step.Action, to.X, to.Y, step.Reward)
	}
	fmt.Fprintf(out, "return %.4f over %d steps\n", reinforcement.DiscountedReturn(episode, solver.Gamma()), len(episode))
	return nil
}

func runServe(cmd *cobra.Command, args []string) (err error) {
	var cfg *reinforcement.ProblemConfig
	if cfg, err = loadConfig(); err != nil {
		return
	}
	if err = cfg.Validate(); err != nil {
		return
	}
	var world *grid_world.GridWorld
	if world, err = cfg.Build(); err != nil {
		return
	}

	appCtx, appCancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer appCancel()

	solveCtx, solveCancel, err := cfg.WithSolveDeadline(appCtx)
	if err != nil {
		return
	}
	defer solveCancel()

	var srv *server.Server
	if srv, err = server.NewServer(appCtx, addr, world); err != nil {
		return
	}

	var solver *reinforcement.Solver
	if solver, err = reinforcement.NewSolver(
		world,
		cfg.Gamma(),
		reinforcement.WithWorkers(cfg.Workers),
		reinforcement.WithProgress(exportSnapshots(solveCtx, srv, sweepDelay)),
	); err != nil {
		return
	}

	go func() {
		srv.SetResult(solver.Solve(cfg.Threshold(), cfg.MaxIterations))
	}()

	return srv.Serve(appCtx)
}

// exportSnapshots publishes each sweep to the server, pausing between sweeps so that
// the views can follow. Once ctx is done, sweeps are no longer held back.
func exportSnapshots(
	ctx context.Context,
	srv *server.Server,
	delay time.Duration,
) reinforcement.ProgressFunc {
	return func(snap reinforcement.Snapshot) {
		srv.Publish(ctx, snap)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}
}

// parseCoord parses "x,y" into a coordinate.
func parseCoord(s string) (coord grid_world.Coord, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return coord, fmt.Errorf("coordinate %q: want x,y", s)
	}
	if coord.X, err = strconv.Atoi(strings.TrimSpace(parts[0])); err != nil {
		return coord, fmt.Errorf("coordinate %q: %w", s, err)
	}
	if coord.Y, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
		return coord, fmt.Errorf("coordinate %q: %w", s, err)
	}
	return
}
