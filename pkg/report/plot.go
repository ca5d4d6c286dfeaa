package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/edp1096/toy-stability/pkg/analysis"
)

// Group splits meter columns by quantity, the part of the label before '@'.
func Group(t *analysis.Trajectory) map[string][]string {
	groups := make(map[string][]string)
	for _, c := range t.Columns {
		q, _, _ := strings.Cut(c, "@")
		groups[q] = append(groups[q], c)
	}
	return groups
}

func groupNames(groups map[string][]string) []string {
	names := make([]string, 0, len(groups))
	for q := range groups {
		names = append(names, q)
	}
	sort.Strings(names)
	return names
}

func xys(time, values []float64) plotter.XYs {
	pts := make(plotter.XYs, len(time))
	for i := range time {
		pts[i].X = time[i]
		pts[i].Y = values[i]
	}
	return pts
}

// SavePlots writes one PNG per quantity group into dir and returns the file paths.
func SavePlots(dir string, t *analysis.Trajectory) ([]string, error) {
	if t.Len() == 0 {
		return nil, fmt.Errorf("plot data empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create directory: %w", err)
	}

	groups := Group(t)
	var paths []string
	for _, q := range groupNames(groups) {
		p := plot.New()
		p.Title.Text = q
		p.X.Label.Text = "time (s)"
		p.Y.Label.Text = q
		p.Legend.Top = true

		var lines []interface{}
		for _, c := range groups[q] {
			_, who, _ := strings.Cut(c, "@")
			lines = append(lines, who, xys(t.Time, t.Column(c)))
		}
		if err := plotutil.AddLines(p, lines...); err != nil {
			return paths, fmt.Errorf("plot %s: %w", q, err)
		}

		path := filepath.Join(dir, strings.ToLower(q)+".png")
		if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
			return paths, fmt.Errorf("cannot write png: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
