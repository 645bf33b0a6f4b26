// Package report renders settlement-curve artifacts and tabular exports
// for completed analysis runs.
package report

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/rotisserie/eris"

	"github.com/tamarack-wildlife/settle-cli/internal/model"
)

// CurveChart bundles the inputs for the settlement-curve artifact: the
// pooled home-range observations, the fitted prediction grid, and the
// derived settlement point. Settlement may be nil, in which case the
// reference lines and annotations are omitted.
type CurveChart struct {
	Title      string
	Subtitle   string
	Samples    []model.RangeSample
	Curve      []model.CurvePoint
	Settlement *model.Settlement
}

// RenderCurveHTML renders the fitted curve and observation scatter as a
// standalone ECharts HTML document.
func RenderCurveHTML(c CurveChart, w io.Writer) error {
	title := c.Title
	if title == "" {
		title = "Time to Settle"
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1100px", Height: "650px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: chartSubtitle(c)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Days since release", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Home range (km²)", NameLocation: "middle", NameGap: 45}),
	)

	curveData := make([]opts.LineData, 0, len(c.Curve))
	for _, p := range c.Curve {
		curveData = append(curveData, opts.LineData{Value: []interface{}{p.Days, p.AreaKm2}})
	}

	seriesOpts := []charts.SeriesOpts{
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true), ShowSymbol: opts.Bool(false)}),
	}
	if c.Settlement != nil {
		seriesOpts = append(seriesOpts,
			charts.WithMarkLineNameXAxisItemOpts(opts.MarkLineNameXAxisItem{
				Name:  daysAnnotation(*c.Settlement),
				XAxis: c.Settlement.SettlementDays,
			}),
			charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{
				Name:  areaAnnotation(*c.Settlement),
				YAxis: c.Settlement.PlateauKm2,
			}),
			charts.WithMarkLineStyleOpts(opts.MarkLineStyle{
				Symbol: []string{"none", "none"},
				Label:  &opts.Label{Show: opts.Bool(true), Formatter: "{b}"},
			}),
		)
	}
	line.AddSeries("fitted curve", curveData, seriesOpts...)

	obs := make([]opts.ScatterData, 0, len(c.Samples))
	for _, s := range c.Samples {
		obs = append(obs, opts.ScatterData{Value: []interface{}{s.Days, s.AreaKm2}})
	}
	scatter := charts.NewScatter()
	scatter.AddSeries("observed ranges", obs,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 7}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}),
	)
	line.Overlap(scatter)

	if err := line.Render(w); err != nil {
		return eris.Wrap(err, "report: render curve chart")
	}
	return nil
}

// WriteCurveHTML renders the curve chart to a file.
func WriteCurveHTML(c CurveChart, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return eris.Wrap(err, "report: create chart file")
	}
	defer f.Close()

	return RenderCurveHTML(c, f)
}

// chartSubtitle stacks the caller subtitle with the settlement annotations.
func chartSubtitle(c CurveChart) string {
	sub := c.Subtitle
	if c.Settlement == nil {
		return sub
	}
	note := daysAnnotation(*c.Settlement) + "\n" + areaAnnotation(*c.Settlement)
	if sub == "" {
		return note
	}
	return sub + "\n" + note
}

func daysAnnotation(s model.Settlement) string {
	return fmt.Sprintf("%d Days until settled", int(math.Round(s.SettlementDays)))
}

func areaAnnotation(s model.Settlement) string {
	return fmt.Sprintf("Area occupied = %.2f km²", s.PlateauKm2)
}
