package cell_views

import (
	"fmt"
	"html/template"
	"math"

	"gridmdp/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// ValueFunction views the value function as an isometric projection of the
// surface (x, y, value).
type ValueFunction struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewValueFunction(
	done <-chan struct{},
	cells <-chan [][]Cell,
) (vf *ValueFunction) {
	// Hyphenated ids interfere with html/template's template directive.
	vf = &ValueFunction{id: "valuefunction"}
	vf.updates = channerics.Convert(done, cells, vf.onUpdate)
	return
}

func (vf *ValueFunction) Updates() <-chan []fastview.EleUpdate {
	return vf.updates
}

const (
	cellDim = 80.0          // cell height and width in pixels
	xyscale = cellDim       // pixels per x or y unit
	zscale  = cellDim * 1.5 // pixels per unit of cell height
	ang     = math.Pi / 6   // angle of the x and y axes
)

var sinAng, cosAng = math.Sin(ang), math.Cos(ang)

// project applies an isometric projection to the passed point.
func project(x, y, z float64) (float64, float64) {
	sx := (x - y) * cosAng * xyscale
	sy := (x+y)*sinAng*xyscale - z*zscale
	return sx, sy
}

// getPolyPoints returns the svg points of the polygon joining four adjacent cells:
// a is bottom left, b is top left, c is top right and d is bottom right.
func getPolyPoints(a, b, c, d Cell) string {
	return makeFuncPolygon("", a, b, c, d).String()
}

func makeFuncPolygon(id string, a, b, c, d Cell) (fp *funcPolygon) {
	fp = &funcPolygon{Id: id}
	fp.ax, fp.ay = project(float64(a.X), float64(a.Y), a.Height)
	fp.bx, fp.by = project(float64(b.X), float64(b.Y), b.Height)
	fp.cx, fp.cy = project(float64(c.X), float64(c.Y), c.Height)
	fp.dx, fp.dy = project(float64(d.X), float64(d.Y), d.Height)
	return
}

type funcPolygon struct {
	Id     string
	ax, ay float64
	bx, by float64
	cx, cy float64
	dx, dy float64
}

// String returns the svg polygon points attribute, truncated to ints.
func (fp *funcPolygon) String() string {
	return fmt.Sprintf("%d,%d %d,%d %d,%d %d,%d",
		int(fp.ax), int(fp.ay),
		int(fp.bx), int(fp.by),
		int(fp.cx), int(fp.cy),
		int(fp.dx), int(fp.dy),
	)
}

func minFour(f1, f2, f3, f4 float64) float64 {
	return math.Min(math.Min(f1, f2), math.Min(f3, f4))
}

func maxFour(f1, f2, f3, f4 float64) float64 {
	return math.Max(math.Max(f1, f2), math.Max(f3, f4))
}

func (fp *funcPolygon) MinX() float64 { return minFour(fp.ax, fp.bx, fp.cx, fp.dx) }
func (fp *funcPolygon) MinY() float64 { return minFour(fp.ay, fp.by, fp.cy, fp.dy) }
func (fp *funcPolygon) MaxX() float64 { return maxFour(fp.ax, fp.bx, fp.cx, fp.dx) }
func (fp *funcPolygon) MaxY() float64 { return maxFour(fp.ay, fp.by, fp.cy, fp.dy) }

func avg(f ...float64) float64 {
	sum := 0.0
	for _, fn := range f {
		sum += fn
	}
	return sum / float64(len(f))
}

// onUpdate returns the polygon updates for the current values, and the group
// transform centering and fitting the surface in the view.
func (vf *ValueFunction) onUpdate(
	cells [][]Cell,
) (ops []fastview.EleUpdate) {
	if len(cells) < 2 {
		return
	}
	width := float64(len(cells)) * cellDim
	height := float64(len(cells[0])) * cellDim

	// Each polygon is shaded by the average of its four values, relative to the extremes.
	minVal, maxVal := math.MaxFloat64, -math.MaxFloat64
	for _, row := range cells {
		for _, cell := range row {
			minVal = math.Min(minVal, cell.Max)
			maxVal = math.Max(maxVal, cell.Max)
		}
	}

	xmin, ymin := math.MaxFloat64, math.MaxFloat64
	xmax, ymax := -math.MaxFloat64, -math.MaxFloat64
	for ri, row := range cells[:len(cells)-1] {
		for ci, cell := range row[:len(row)-1] {
			cellA := cells[ri+1][ci]
			cellB := cells[ri][ci]
			cellC := cells[ri][ci+1]
			cellD := cells[ri+1][ci+1]
			polygon := makeFuncPolygon(
				fmt.Sprintf("%d-%d-value-polygon", cell.X, cell.Y),
				cellA, cellB, cellC, cellD,
			)

			xmin = math.Min(xmin, polygon.MinX())
			xmax = math.Max(xmax, polygon.MaxX())
			ymin = math.Min(ymin, polygon.MinY())
			ymax = math.Max(ymax, polygon.MaxY())

			fill := getRGBFill(avg(cellA.Max, cellB.Max, cellC.Max, cellD.Max), minVal, maxVal)
			ops = append(ops, fastview.EleUpdate{
				EleId: polygon.Id,
				Ops: []fastview.Op{
					{Key: "points", Value: polygon.String()},
					{Key: "fill", Value: fill},
				},
			})
		}
	}

	// Shift by the min x and y, and scale down only when the surface does not fit.
	scaler := math.Min(
		math.Min(
			math.Abs(width/(xmax-xmin)),
			math.Abs(height/(ymax-ymin)),
		),
		1.0,
	)
	ops = append(ops, fastview.EleUpdate{
		EleId: vf.id + "-group",
		Ops: []fastview.Op{
			{
				Key:   "transform",
				Value: fmt.Sprintf("scale(%f) translate(%d %d)", scaler, int(-xmin), int(-ymin)),
			},
		},
	})
	return
}

// getRGBFill shades from blue at minVal to red at maxVal.
func getRGBFill(avgVal, minVal, maxVal float64) string {
	redPct := 0
	if span := maxVal - minVal; span > 0 {
		redPct = int(100.0 * (avgVal - minVal) / span)
	}
	return fmt.Sprintf("rgb(%d%%,0%%,%d%%)", redPct, 100-redPct)
}

// Parse defines an svg of polygons plotting the value surface. Polygons are created
// back to front so that nearer ones obscure those behind.
func (vf *ValueFunction) Parse(
	t *template.Template,
) (name string, err error) {
	name = vf.id
	addedMap := template.FuncMap{
		"getPolyPoints": getPolyPoints,
	}
	_, err = t.Funcs(addedMap).Parse(
		`{{ define "` + name + `" }}
		<div style="padding:40px;">
			{{ $x_cells := len . }}
			{{ $y_cells := len (index . 0) }}
			{{ $num_x_polys := sub $x_cells 1 }}
			{{ $num_y_polys := sub $y_cells 1 }}
			{{ $cell_width := ` + fmt.Sprintf("%d", int(cellDim)) + ` }}
			{{ $cell_height := $cell_width }}
			{{ $width := mult $cell_width $x_cells }}
			{{ $height := mult $cell_height $y_cells }}
			<svg id="` + vf.id + `" xmlns='http://www.w3.org/2000/svg'
				width="{{ mult $width 2 }}px"
				height="{{ mult $height 2 }}px"
				style="shape-rendering: crispEdges; stroke: lightgrey; stroke-opacity: 1.0; stroke-width: 3;">
				<g id="` + vf.id + "-group" + `" transform="translate(0 0)">
				{{ $cells := . }}
				{{ range $ri, $row := $cells }}
					{{ if lt $ri $num_x_polys }}
						{{ range $j, $unused := $row }}
							{{ $ci := sub (sub (len $row) $j) 1 }}
							{{ $cell := index $row $ci }}
							{{ if lt $ci $num_y_polys }}
								<polygon id="{{$cell.X}}-{{$cell.Y}}-value-polygon"
									fill="black" fill-opacity="1.0"
									{{ $cell_a := index $cells (add $ri 1) $ci }}
									{{ $cell_b := index $cells $ri $ci }}
									{{ $cell_c := index $cells $ri (add $ci 1) }}
									{{ $cell_d := index $cells (add $ri 1) (add $ci 1) }}
									points="{{ getPolyPoints $cell_a $cell_b $cell_c $cell_d }}" />
							{{ end }}
						{{ end }}
					{{ end }}
				{{ end }}
				</g>
			</svg>
		</div>
		{{ end }}`)
	return
}
