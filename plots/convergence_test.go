package plots

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"gridmdp/reinforcement"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
)

func TestConvergence(t *testing.T) {
	Convey("When charting a solve", t, func() {
		res := &reinforcement.Result{
			RunID:     uuid.New(),
			Sweeps:    3,
			MaxError:  0,
			Converged: true,
			Errors:    []float64{1, 0.99, 0},
		}

		Convey("The chart has one point per sweep", func() {
			line := ConvergenceChart(res)
			So(line.MultiSeries, ShouldHaveLength, 1)
			So(line.MultiSeries[0].Name, ShouldEqual, "max error")
			So(line.MultiSeries[0].Data, ShouldHaveLength, 3)
		})

		Convey("The page renders the series and the run id", func() {
			buf := &bytes.Buffer{}
			So(RenderConvergence(buf, res), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, "max error")
			So(buf.String(), ShouldContainSubstring, res.RunID.String())
		})

		Convey("The page can be written to a new directory", func() {
			dir, err := os.MkdirTemp("", "gridmdp-plots")
			So(err, ShouldBeNil)
			Reset(func() { _ = os.RemoveAll(dir) })

			path := filepath.Join(dir, "charts", "convergence.html")
			So(WriteConvergence(path, res), ShouldBeNil)
			info, err := os.Stat(path)
			So(err, ShouldBeNil)
			So(info.Size(), ShouldBeGreaterThan, 0)
		})
	})
}
