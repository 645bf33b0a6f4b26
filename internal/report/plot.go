package report

import (
	"image/color"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WriteCurvePNG renders the same artifact as RenderCurveHTML to a static
// PNG: fitted curve, observation scatter, and dashed reference lines at
// the settlement day and plateau area.
func WriteCurvePNG(c CurveChart, outputPath string) error {
	p := plot.New()
	p.Title.Text = c.Title
	if p.Title.Text == "" {
		p.Title.Text = "Time to Settle"
	}
	p.X.Label.Text = "Days since release"
	p.Y.Label.Text = "Home range (km²)"

	minX, maxX, maxY := curveExtent(c)

	if len(c.Curve) > 0 {
		pts := make(plotter.XYs, len(c.Curve))
		for i, cp := range c.Curve {
			pts[i] = plotter.XY{X: cp.Days, Y: cp.AreaKm2}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return eris.Wrap(err, "report: curve line")
		}
		line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
		line.Width = vg.Points(2)
		p.Add(line)
		p.Legend.Add("fitted curve", line)
	}

	if len(c.Samples) > 0 {
		pts := make(plotter.XYs, len(c.Samples))
		for i, s := range c.Samples {
			pts[i] = plotter.XY{X: s.Days, Y: s.AreaKm2}
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return eris.Wrap(err, "report: observation scatter")
		}
		scatter.GlyphStyle.Radius = vg.Points(2.5)
		scatter.GlyphStyle.Color = color.RGBA{R: 120, G: 120, B: 120, A: 255}
		p.Add(scatter)
		p.Legend.Add("observed ranges", scatter)
	}

	if c.Settlement != nil {
		s := *c.Settlement
		if err := addReferenceLine(p, plotter.XYs{
			{X: s.SettlementDays, Y: 0},
			{X: s.SettlementDays, Y: maxY},
		}); err != nil {
			return err
		}
		if err := addReferenceLine(p, plotter.XYs{
			{X: minX, Y: s.PlateauKm2},
			{X: maxX, Y: s.PlateauKm2},
		}); err != nil {
			return err
		}

		labels, err := plotter.NewLabels(plotter.XYLabels{
			XYs: plotter.XYs{
				{X: s.SettlementDays, Y: maxY * 0.05},
				{X: minX, Y: s.PlateauKm2 * 1.02},
			},
			Labels: []string{daysAnnotation(s), areaAnnotation(s)},
		})
		if err != nil {
			return eris.Wrap(err, "report: annotation labels")
		}
		p.Add(labels)
	}

	p.Legend.Top = true
	p.Legend.Left = true

	if err := p.Save(10*vg.Inch, 6*vg.Inch, outputPath); err != nil {
		return eris.Wrap(err, "report: save curve png")
	}
	return nil
}

// addReferenceLine adds a dashed gray guide line to the plot.
func addReferenceLine(p *plot.Plot, pts plotter.XYs) error {
	line, err := plotter.NewLine(pts)
	if err != nil {
		return eris.Wrap(err, "report: reference line")
	}
	line.Color = color.RGBA{R: 180, G: 60, B: 60, A: 255}
	line.Width = vg.Points(1)
	line.Dashes = []vg.Length{vg.Points(5), vg.Points(3)}
	p.Add(line)
	return nil
}

// curveExtent returns the day span and the largest area across the curve,
// the observations, and the plateau, so reference lines cover the data.
func curveExtent(c CurveChart) (minX, maxX, maxY float64) {
	first := true
	grow := func(x, y float64) {
		if first {
			minX, maxX = x, x
			first = false
		}
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y > maxY {
			maxY = y
		}
	}
	for _, cp := range c.Curve {
		grow(cp.Days, cp.AreaKm2)
	}
	for _, s := range c.Samples {
		grow(s.Days, s.AreaKm2)
	}
	if c.Settlement != nil && c.Settlement.PlateauKm2 > maxY {
		maxY = c.Settlement.PlateauKm2
	}
	return minX, maxX, maxY
}
