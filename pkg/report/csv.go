package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/edp1096/toy-stability/pkg/analysis"
)

// WriteCSV writes TIME followed by every meter column, one row per recorded step.
func WriteCSV(w io.Writer, t *analysis.Trajectory) error {
	cw := csv.NewWriter(w)

	header := append([]string{"TIME"}, t.Columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	record := make([]string, len(header))
	for i, time := range t.Time {
		record[0] = strconv.FormatFloat(time, 'f', 6, 64)
		for k, v := range t.Row(i) {
			record[k+1] = strconv.FormatFloat(v, 'g', 10, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func SaveCSV(path string, t *analysis.Trajectory) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create csv: %w", err)
	}
	defer f.Close()

	if err := WriteCSV(f, t); err != nil {
		return err
	}
	return f.Close()
}
