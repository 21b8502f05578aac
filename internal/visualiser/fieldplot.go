package visualiser

import (
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/fieldpose/internal/field"
	"github.com/banshee-data/fieldpose/internal/geom"
	"github.com/banshee-data/fieldpose/internal/storage/sqlite"
)

const (
	headingArrowLength = 0.3 // metres
	circleSegments     = 64
	pngPixelsPerMetre  = 0.8 * vg.Inch
)

// FieldPlot draws the field markings, the estimated and true trajectories
// and the hypotheses of the last cycle.
type FieldPlot struct {
	Field      *field.Info
	Title      string
	Poses      []sqlite.PoseRow
	Hypotheses []sqlite.HypothesisRow
}

// Build assembles the gonum plot.
func (fp FieldPlot) Build() (*plot.Plot, error) {
	if fp.Field == nil {
		return nil, errors.New("field info is required")
	}

	p := plot.New()
	p.Title.Text = fp.Title
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	hl := fp.Field.Dims.FieldLength/2 + fp.Field.Dims.BorderStripWidth
	hw := fp.Field.Dims.FieldWidth/2 + fp.Field.Dims.BorderStripWidth
	p.X.Min, p.X.Max = -hl, hl
	p.Y.Min, p.Y.Max = -hw, hw

	if err := addFieldMarkings(p, fp.Field); err != nil {
		return nil, err
	}

	estimate := make(plotter.XYs, 0, len(fp.Poses))
	truth := make(plotter.XYs, 0, len(fp.Poses))
	invalid := make(plotter.XYs, 0)
	for _, row := range fp.Poses {
		estimate = append(estimate, plotter.XY{X: row.Pose.X, Y: row.Pose.Y})
		if !row.Valid {
			invalid = append(invalid, plotter.XY{X: row.Pose.X, Y: row.Pose.Y})
		}
		if row.Truth != nil {
			truth = append(truth, plotter.XY{X: row.Truth.X, Y: row.Truth.Y})
		}
	}

	if len(truth) > 0 {
		l, err := plotter.NewLine(truth)
		if err != nil {
			return nil, err
		}
		l.Color = truthColor
		l.Width = vg.Points(1.5)
		p.Add(l)
		p.Legend.Add("truth", l)
	}
	if len(estimate) > 0 {
		l, err := plotter.NewLine(estimate)
		if err != nil {
			return nil, err
		}
		l.Color = estimateColor
		l.Width = vg.Points(1)
		p.Add(l)
		p.Legend.Add("estimate", l)
	}
	if len(invalid) > 0 {
		s, err := plotter.NewScatter(invalid)
		if err != nil {
			return nil, err
		}
		s.GlyphStyle.Color = invalidColor
		s.GlyphStyle.Radius = vg.Points(1)
		s.GlyphStyle.Shape = draw.CrossGlyph{}
		p.Add(s)
		p.Legend.Add("invalid", s)
	}

	if err := addHypotheses(p, fp.Hypotheses); err != nil {
		return nil, err
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// size keeps the PNG aspect ratio equal to the carpet's.
func (fp FieldPlot) size() (vg.Length, vg.Length) {
	d := fp.Field.Dims
	w := vg.Length(d.FieldLength+2*d.BorderStripWidth) * pngPixelsPerMetre
	h := vg.Length(d.FieldWidth+2*d.BorderStripWidth) * pngPixelsPerMetre
	return w, h
}

// SavePNG writes the plot to path.
func (fp FieldPlot) SavePNG(path string) error {
	p, err := fp.Build()
	if err != nil {
		return err
	}
	w, h := fp.size()
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// WritePNG writes the plot as PNG to w.
func (fp FieldPlot) WritePNG(w io.Writer) error {
	p, err := fp.Build()
	if err != nil {
		return err
	}
	width, height := fp.size()
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

func addFieldMarkings(p *plot.Plot, fi *field.Info) error {
	for _, l := range fi.Lines {
		line, err := plotter.NewLine(plotter.XYs{
			{X: l.Segment.From.X, Y: l.Segment.From.Y},
			{X: l.Segment.To.X, Y: l.Segment.To.Y},
		})
		if err != nil {
			return err
		}
		line.Color = fieldColor
		line.Width = vg.Points(2)
		p.Add(line)
	}

	r := fi.Dims.CenterCircleRadius
	circle := make(plotter.XYs, 0, circleSegments+1)
	for i := 0; i <= circleSegments; i++ {
		a := 2 * math.Pi * float64(i) / circleSegments
		circle = append(circle, plotter.XY{X: r * math.Cos(a), Y: r * math.Sin(a)})
	}
	line, err := plotter.NewLine(circle)
	if err != nil {
		return err
	}
	line.Color = fieldColor
	line.Width = vg.Points(2)
	p.Add(line)
	return nil
}

// addHypotheses draws every hypothesis as a dot with a heading tick,
// coloured by cluster.
func addHypotheses(p *plot.Plot, hyps []sqlite.HypothesisRow) error {
	if len(hyps) == 0 {
		return nil
	}
	maxCluster := 0
	for _, h := range hyps {
		if h.ClusterID > maxCluster {
			maxCluster = h.ClusterID
		}
	}
	colors := generateColors(maxCluster + 1)

	for _, h := range hyps {
		c := colors[0]
		if h.ClusterID >= 0 {
			c = colors[h.ClusterID]
		}
		s, err := plotter.NewScatter(plotter.XYs{{X: h.Pose.X, Y: h.Pose.Y}})
		if err != nil {
			return err
		}
		s.GlyphStyle.Color = c
		s.GlyphStyle.Radius = vg.Points(3)
		if h.Best {
			s.GlyphStyle.Shape = draw.CircleGlyph{}
		} else {
			s.GlyphStyle.Shape = draw.RingGlyph{}
		}
		p.Add(s)

		tip := h.Pose.ToField(geom.Vector2{X: headingArrowLength})
		tick, err := plotter.NewLine(plotter.XYs{{X: h.Pose.X, Y: h.Pose.Y}, {X: tip.X, Y: tip.Y}})
		if err != nil {
			return err
		}
		tick.Color = c
		tick.Width = vg.Points(1)
		p.Add(tick)
	}
	return nil
}
