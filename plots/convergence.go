// plots renders charts of solver runs as standalone html.
package plots

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gridmdp/reinforcement"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// ConvergenceChart plots the max error of every sweep of a solve.
func ConvergenceChart(res *reinforcement.Result) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: "Value iteration convergence",
			Subtitle: fmt.Sprintf("run %s: %s after %d sweeps, max error %g",
				res.RunID, res.Termination(), res.Sweeps, res.MaxError),
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme: "shine",
		}),
	)

	sweeps := make([]string, 0, len(res.Errors))
	items := make([]opts.LineData, 0, len(res.Errors))
	for i, maxError := range res.Errors {
		sweeps = append(sweeps, fmt.Sprintf("%d", i+1))
		items = append(items, opts.LineData{Value: maxError})
	}

	line.SetXAxis(sweeps).AddSeries("max error", items)
	return line
}

// RenderConvergence writes the convergence chart as an html page.
func RenderConvergence(w io.Writer, res *reinforcement.Result) error {
	page := components.NewPage()
	page.AddCharts(ConvergenceChart(res))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render convergence chart: %w", err)
	}
	return nil
}

// WriteConvergence renders the convergence chart to the file at path, creating its directory.
func WriteConvergence(path string, res *reinforcement.Result) (err error) {
	if err = os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return
	}
	var f *os.File
	if f, err = os.Create(path); err != nil {
		return
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return RenderConvergence(f, res)
}
