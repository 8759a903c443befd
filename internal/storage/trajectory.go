package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/rdsim/internal/chem"
)

var fixedColumns = []string{"epoch", "time", "step", "local_error"}

// Sample is one recorded epoch.
type Sample struct {
	Epoch      int64
	Time       float64
	Step       float64
	LocalError float64
	Values     []float64
}

// Trajectory is a sequence of samples over a fixed set of node/entity
// columns.
type Trajectory struct {
	Columns []string
	Samples []Sample
}

// Column names a concentration series as "<node>/<entity>".
func Column(node string, entity chem.EntityID) string {
	return node + "/" + string(entity)
}

func (t *Trajectory) Times() []float64 {
	out := make([]float64, len(t.Samples))
	for i, s := range t.Samples {
		out[i] = s.Time
	}
	return out
}

func (t *Trajectory) Steps() []float64 {
	out := make([]float64, len(t.Samples))
	for i, s := range t.Samples {
		out[i] = s.Step
	}
	return out
}

func (t *Trajectory) Series(column string) ([]float64, error) {
	idx := -1
	for i, c := range t.Columns {
		if c == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("unknown column: %s", column)
	}
	out := make([]float64, len(t.Samples))
	for i, s := range t.Samples {
		out[i] = s.Values[idx]
	}
	return out, nil
}

// EntityTotals sums every column of entity per sample.
func (t *Trajectory) EntityTotals(entity chem.EntityID) []float64 {
	suffix := "/" + string(entity)
	var cols []int
	for i, c := range t.Columns {
		if strings.HasSuffix(c, suffix) {
			cols = append(cols, i)
		}
	}
	out := make([]float64, len(t.Samples))
	row := make([]float64, len(cols))
	for i, s := range t.Samples {
		for j, c := range cols {
			row[j] = s.Values[c]
		}
		out[i] = floats.Sum(row)
	}
	return out
}

// Snapshot rebuilds per-node containers from sample i. Recorded values are
// totals, so they are placed in the inner subsection.
func (t *Trajectory) Snapshot(i int) (map[string]*chem.Container, error) {
	if i < 0 || i >= len(t.Samples) {
		return nil, fmt.Errorf("sample %d out of range [0, %d)", i, len(t.Samples))
	}
	out := make(map[string]*chem.Container)
	for j, col := range t.Columns {
		node, entity, ok := strings.Cut(col, "/")
		if !ok {
			return nil, fmt.Errorf("malformed column: %s", col)
		}
		c, ok := out[node]
		if !ok {
			c = chem.NewContainer()
			out[node] = c
		}
		c.Set(chem.Inner, chem.EntityID(entity), t.Samples[i].Values[j])
	}
	return out, nil
}

type Summary struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

func Summarize(data []float64) Summary {
	if len(data) == 0 {
		return Summary{}
	}
	mean, std := stat.MeanStdDev(data, nil)
	if len(data) == 1 {
		std = 0
	}
	return Summary{Min: floats.Min(data), Max: floats.Max(data), Mean: mean, Std: std}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}

func (t *Trajectory) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, fixedColumns...), t.Columns...)); err != nil {
		return err
	}
	for _, s := range t.Samples {
		row := []string{
			strconv.FormatInt(s.Epoch, 10),
			formatFloat(s.Time),
			formatFloat(s.Step),
			formatFloat(s.LocalError),
		}
		for _, v := range s.Values {
			row = append(row, formatFloat(v))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ReadCSV(r io.Reader) (*Trajectory, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty trajectory")
	}
	header := records[0]
	if len(header) < len(fixedColumns) {
		return nil, fmt.Errorf("trajectory header has %d columns, want at least %d", len(header), len(fixedColumns))
	}

	t := &Trajectory{Columns: header[len(fixedColumns):]}
	for line, rec := range records[1:] {
		s, err := parseSample(rec, len(t.Columns))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+2, err)
		}
		t.Samples = append(t.Samples, s)
	}
	return t, nil
}

func parseSample(rec []string, columns int) (Sample, error) {
	var s Sample
	if len(rec) != len(fixedColumns)+columns {
		return s, fmt.Errorf("expected %d fields, got %d", len(fixedColumns)+columns, len(rec))
	}
	epoch, err := strconv.ParseInt(rec[0], 10, 64)
	if err != nil {
		return s, err
	}
	nums := make([]float64, len(rec)-1)
	for i, f := range rec[1:] {
		if nums[i], err = strconv.ParseFloat(f, 64); err != nil {
			return s, err
		}
	}
	s.Epoch = epoch
	s.Time, s.Step, s.LocalError = nums[0], nums[1], nums[2]
	s.Values = nums[3:]
	return s, nil
}
