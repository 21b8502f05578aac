package visualiser

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/fieldpose/internal/field"
	"github.com/banshee-data/fieldpose/internal/geom"
	"github.com/banshee-data/fieldpose/internal/storage/sqlite"
)

// AssetsHost is where the rendered pages load the echarts scripts from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// TrajectoryPage renders a run as an HTML page: a top-down view of the field
// with the estimated and true trajectories, and the position error per cycle.
type TrajectoryPage struct {
	Field *field.Info
	Title string
	Poses []sqlite.PoseRow
}

// Render writes the page to w.
func (tp TrajectoryPage) Render(w io.Writer) error {
	if tp.Field == nil {
		return errors.New("field info is required")
	}
	page := components.NewPage()
	page.SetPageTitle(tp.Title).SetAssetsHost(AssetsHost)
	page.AddCharts(tp.fieldChart())
	if c := tp.errorChart(); c != nil {
		page.AddCharts(c)
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render trajectory page: %w", err)
	}
	return nil
}

func xy(x, y float64) opts.LineData {
	return opts.LineData{Value: []interface{}{x, y}}
}

func (tp TrajectoryPage) fieldChart() *charts.Line {
	d := tp.Field.Dims
	hl := d.FieldLength/2 + d.BorderStripWidth
	hw := d.FieldWidth/2 + d.BorderStripWidth

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1000px", Height: fmt.Sprintf("%.0fpx", 1000*hw/hl), AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: tp.Title, Subtitle: fmt.Sprintf("cycles=%d", len(tp.Poses))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: -hl, Max: hl, Name: "x (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Min: -hw, Max: hw, Name: "y (m)", NameLocation: "middle", NameGap: 30}),
	)

	noSymbol := charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)})
	fieldStyle := charts.WithLineStyleOpts(opts.LineStyle{Color: hexColor(fieldColor), Width: 2})
	for _, l := range tp.Field.Lines {
		line.AddSeries("field", []opts.LineData{
			xy(l.Segment.From.X, l.Segment.From.Y),
			xy(l.Segment.To.X, l.Segment.To.Y),
		}, noSymbol, fieldStyle)
	}
	circle := make([]opts.LineData, 0, circleSegments+1)
	for i := 0; i <= circleSegments; i++ {
		a := 2 * math.Pi * float64(i) / circleSegments
		circle = append(circle, xy(d.CenterCircleRadius*math.Cos(a), d.CenterCircleRadius*math.Sin(a)))
	}
	line.AddSeries("field", circle, noSymbol, fieldStyle)

	estimate := make([]opts.LineData, 0, len(tp.Poses))
	truth := make([]opts.LineData, 0, len(tp.Poses))
	for _, row := range tp.Poses {
		estimate = append(estimate, xy(row.Pose.X, row.Pose.Y))
		if row.Truth != nil {
			truth = append(truth, xy(row.Truth.X, row.Truth.Y))
		}
	}
	if len(truth) > 0 {
		line.AddSeries("truth", truth, noSymbol,
			charts.WithLineStyleOpts(opts.LineStyle{Color: hexColor(truthColor), Width: 2}))
	}
	line.AddSeries("estimate", estimate, noSymbol,
		charts.WithLineStyleOpts(opts.LineStyle{Color: hexColor(estimateColor), Width: 1}))
	return line
}

// errorChart plots the distance between estimate and truth per cycle; nil
// when the run carries no ground truth.
func (tp TrajectoryPage) errorChart() *charts.Line {
	cycles := make([]string, 0, len(tp.Poses))
	errs := make([]opts.LineData, 0, len(tp.Poses))
	counts := make([]opts.LineData, 0, len(tp.Poses))
	for _, row := range tp.Poses {
		if row.Truth == nil {
			continue
		}
		cycles = append(cycles, fmt.Sprint(row.Cycle))
		errs = append(errs, opts.LineData{Value: PositionError(row.Pose, *row.Truth)})
		counts = append(counts, opts.LineData{Value: row.HypothesisCount})
	}
	if len(cycles) == 0 {
		return nil
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1000px", Height: "360px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Position error", Subtitle: "metres / hypothesis count"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "cycle"}),
	)
	line.SetXAxis(cycles).
		AddSeries("error", errs, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)})).
		AddSeries("hypotheses", counts, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false), Step: "end"}))
	return line
}

// PositionError is the Euclidean distance between estimate and truth.
func PositionError(estimate, truth geom.Pose2D) float64 {
	return estimate.Translation().DistanceTo(truth.Translation())
}
