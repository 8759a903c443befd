package storage

import (
	"encoding/json"
	"io"
	"os"
)

type ExportData struct {
	Run     RunMetadata `json:"run"`
	Columns []string    `json:"columns"`
	Epochs  []int64     `json:"epochs"`
	Times   []float64   `json:"times"`
	Steps   []float64   `json:"steps"`
	Values  [][]float64 `json:"values"`
}

// ExportJSON writes a run and its trajectory as one JSON document. A path
// of "-" writes to stdout.
func ExportJSON(path string, meta RunMetadata, traj *Trajectory) error {
	if path == "-" {
		return encodeExport(os.Stdout, meta, traj)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return encodeExport(file, meta, traj)
}

func encodeExport(w io.Writer, meta RunMetadata, traj *Trajectory) error {
	data := ExportData{
		Run:     meta,
		Columns: traj.Columns,
		Times:   traj.Times(),
		Steps:   traj.Steps(),
		Epochs:  make([]int64, len(traj.Samples)),
		Values:  make([][]float64, len(traj.Samples)),
	}
	for i, s := range traj.Samples {
		data.Epochs[i] = s.Epoch
		data.Values[i] = s.Values
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// ExportCSV copies the trajectory to path, or stdout for "-".
func ExportCSV(path string, traj *Trajectory) error {
	if path == "-" {
		return traj.WriteCSV(os.Stdout)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return traj.WriteCSV(file)
}
