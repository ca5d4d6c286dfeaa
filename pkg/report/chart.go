package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/edp1096/toy-stability/pkg/analysis"
)

// RenderChart writes an HTML page with one zoomable line chart per quantity group.
func RenderChart(w io.Writer, title string, t *analysis.Trajectory) error {
	xAxis := make([]string, t.Len())
	for i, time := range t.Time {
		xAxis[i] = fmt.Sprintf("%.3f", time)
	}

	page := components.NewPage()
	page.PageTitle = title

	groups := Group(t)
	for _, q := range groupNames(groups) {
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{
				Title:    q,
				Subtitle: title,
			}),
			charts.WithLegendOpts(opts.Legend{
				Type:   "scroll",
				Orient: "vertical",
				Right:  "10",
				Top:    "20",
				Bottom: "20",
			}),
			charts.WithXAxisOpts(opts.XAxis{
				Name:        "t (s)",
				SplitNumber: 20,
			}),
			charts.WithYAxisOpts(opts.YAxis{
				Scale: opts.Bool(true),
			}),
			charts.WithDataZoomOpts(opts.DataZoom{
				Type:       "inside",
				Start:      0,
				End:        100,
				XAxisIndex: []int{0},
			}),
		)
		line.SetXAxis(xAxis)

		for _, c := range groups[q] {
			_, who, _ := strings.Cut(c, "@")
			values := t.Column(c)
			items := make([]opts.LineData, len(values))
			for i, v := range values {
				items[i] = opts.LineData{Value: v}
			}
			line.AddSeries(who, items)
		}
		page.AddCharts(line)
	}

	return page.Render(w)
}

func SaveChart(path, title string, t *analysis.Trajectory) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create html: %w", err)
	}
	defer f.Close()

	if err := RenderChart(f, title, t); err != nil {
		return err
	}
	return f.Close()
}
