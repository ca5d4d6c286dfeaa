package netlist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/edp1096/toy-stability/pkg/device"
)

// DynamicData holds the model records read from a PSS/E .dyr file.
type DynamicData struct {
	Models   []device.ModelParam // In file order
	Warnings []string            // Records that were read but not understood
}

// Parameter names of each dyr record, in file order after IBUS 'MODEL' ID.
var dyrFields = map[string][]string{
	"GENCLS": {"H", "D"},
	"GENTRA": {"TD0P", "H", "D", "XD", "XQ", "XDP"},
	"GENROU": {"TD0P", "TD0PP", "TQ0P", "TQ0PP", "H", "D", "XD", "XQ", "XDP", "XQP", "XDPP", "XL", "S10", "S12"},
	"GENSAL": {"TD0P", "TD0PP", "TQ0PP", "H", "D", "XD", "XQ", "XDP", "XDPP", "XL", "S10", "S12", "XTRAN"},
	"SEXS":   {"TA/TB", "TB", "K", "TE", "EMIN", "EMAX"},
	"IEEEG1": {"JBUS", "M", "K", "T1", "T2", "T3", "UO", "UC", "PMAX", "PMIN", "T4", "K1", "K2", "T5", "K3", "K4", "T6", "K5", "K6", "T7", "K7", "K8"},
	"IEEEG3": {"TG", "TP", "UO", "UC", "PMAX", "PMIN", "SIGMA", "DELTA", "TR", "TW", "A11", "A13", "A21", "A23"},
}

var (
	spaceRegexp = regexp.MustCompile(`[\s,]+`)
	valueRegexp = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eEdD][-+]?\d+)?$`)
)

func ParseDyrFile(path string) (*DynamicData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dyr file: %w", err)
	}
	defer f.Close()
	return ParseDyr(f)
}

// ParseDyr reads '/'-terminated records. A record may span several lines and
// everything after "//" on a line is a comment.
func ParseDyr(r io.Reader) (*DynamicData, error) {
	scanner := bufio.NewScanner(r)
	data := &DynamicData{}

	var currentRecord string
	lineNo, recordLine := 0, 0

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		for len(line) > 0 {
			if currentRecord == "" {
				recordLine = lineNo
			}

			idx := strings.Index(line, "/")
			if idx < 0 {
				currentRecord += " " + line
				break
			}

			currentRecord += " " + line[:idx]
			if err := parseRecord(data, currentRecord); err != nil {
				return nil, fmt.Errorf("line %d: %w", recordLine, err)
			}
			currentRecord = ""
			line = strings.TrimSpace(line[idx+1:])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dyr: %w", err)
	}

	if strings.TrimSpace(currentRecord) != "" {
		return nil, fmt.Errorf("line %d: record not terminated by '/'", recordLine)
	}

	return data, nil
}

func parseRecord(data *DynamicData, record string) error {
	fields := spaceRegexp.Split(strings.TrimSpace(record), -1)
	if len(fields) < 3 {
		return fmt.Errorf("short record %q", strings.TrimSpace(record))
	}

	bus, err := strconv.Atoi(fields[0])
	if err != nil {
		return fmt.Errorf("invalid bus number %q", fields[0])
	}
	model := strings.ToUpper(unquote(fields[1]))
	id := unquote(fields[2])

	kind, known := device.KindOf(model)
	names, described := dyrFields[model]
	if !known || !described {
		data.Warnings = append(data.Warnings, fmt.Sprintf("bus %d: model %s is not supported", bus, model))
		return nil
	}

	values := fields[3:]
	if len(values) < len(names) {
		return fmt.Errorf("%s at bus %d: expected %d parameters, got %d", model, bus, len(names), len(values))
	}

	params := make(map[string]float64, len(names))
	for i, name := range names {
		v, err := ParseValue(values[i])
		if err != nil {
			return fmt.Errorf("%s at bus %d: parameter %s: %v", model, bus, name, err)
		}
		params[name] = v
	}

	data.Models = append(data.Models, device.ModelParam{
		Type:   model,
		Kind:   kind,
		Bus:    bus,
		ID:     id,
		Params: params,
	})
	return nil
}

func unquote(s string) string {
	return strings.TrimSpace(strings.Trim(s, `'"`))
}

// Find returns the last record of the given kind for a generator.
func (d *DynamicData) Find(bus int, id string, kind device.Kind) (device.ModelParam, bool) {
	var found device.ModelParam
	ok := false
	for _, m := range d.Models {
		if m.Bus == bus && m.ID == id && m.Kind == kind {
			found, ok = m, true
		}
	}
	return found, ok
}

func ParseValue(val string) (float64, error) {
	val = strings.TrimSpace(val)
	if !valueRegexp.MatchString(val) {
		return 0, fmt.Errorf("invalid value format: %s", val)
	}

	// Fortran style exponents appear in older dyr files.
	val = strings.NewReplacer("d", "e", "D", "e").Replace(val)
	return strconv.ParseFloat(val, 64)
}
