package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"gridmdp/grid_world"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseCoord(t *testing.T) {
	Convey("When parsing rollout starts", t, func() {
		coord, err := parseCoord("1, 2")
		So(err, ShouldBeNil)
		So(coord, ShouldResemble, grid_world.Coord{X: 1, Y: 2})

		for _, bad := range []string{"", "1", "1,2,3", "a,2", "1,b"} {
			_, err = parseCoord(bad)
			So(err, ShouldNotBeNil)
		}
	})
}

func TestEnvOrDefault(t *testing.T) {
	Convey("When reading flag defaults from the environment", t, func() {
		So(os.Setenv("GRIDMDP_TEST_KEY", "from-env"), ShouldBeNil)
		Reset(func() { _ = os.Unsetenv("GRIDMDP_TEST_KEY") })

		So(envOrDefault("GRIDMDP_TEST_KEY", "fallback"), ShouldEqual, "from-env")
		So(envOrDefault("GRIDMDP_TEST_UNSET", "fallback"), ShouldEqual, "fallback")
	})
}

func TestSolveCommand(t *testing.T) {
	Convey("When solving the bundled config", t, func() {
		dir, err := os.MkdirTemp("", "gridmdp-main")
		So(err, ShouldBeNil)
		Reset(func() { _ = os.RemoveAll(dir) })
		chart := filepath.Join(dir, "convergence.html")

		out := &bytes.Buffer{}
		cmd := newRootCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{
			"solve",
			"--config", "config.yaml",
			"--workers", "2",
			"--colors=false",
			"--chart", chart,
			"--rollout", "1,1",
		})
		So(cmd.Execute(), ShouldBeNil)

		Convey("The grid, values, policy and rollout are printed", func() {
			So(out.String(), ShouldStartWith, "o o o X \n")
			So(out.String(), ShouldContainSubstring, "Total: ")
			So(out.String(), ShouldContainSubstring, "sweeps, max error")
			So(out.String(), ShouldContainSubstring, "(1,1) up -> (1,2) reward 10.00")
			So(out.String(), ShouldContainSubstring, "return ")
		})

		Convey("The convergence chart is written", func() {
			_, err := os.Stat(chart)
			So(err, ShouldBeNil)
		})
	})

	Convey("When the rollout start is an obstacle", t, func() {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"solve", "--config", "config.yaml", "--colors=false", "--rollout", "2,1"})
		So(cmd.Execute(), ShouldNotBeNil)
	})
}
