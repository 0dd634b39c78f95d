package storage

import (
	"encoding/json"
	"io"

	"github.com/san-kum/cosim/internal/recorder"
)

type ExportData struct {
	RunMetadata
	Times  []float64            `json:"times"`
	Series map[string][]float64 `json:"series"`
}

// ExportJSON writes the metadata and every recorded column as indented JSON.
func ExportJSON(w io.Writer, meta RunMetadata, traj *recorder.Trajectory) error {
	data := ExportData{
		RunMetadata: meta,
		Times:       traj.Times(),
		Series:      make(map[string][]float64, len(traj.Columns())),
	}
	data.Columns = traj.Columns()
	for _, c := range traj.Columns() {
		col, err := traj.Column(c)
		if err != nil {
			return err
		}
		data.Series[c] = col
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
