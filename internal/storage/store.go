// Package storage keeps finished runs on disk, one directory per run with
// its metadata, the run file it came from and the recorded trajectory.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/recorder"
)

const (
	metadataFile   = "metadata.json"
	configFile     = "config.yaml"
	trajectoryFile = "trajectory.csv"
	indexColumn    = "index"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Mode       dynamo.Mode        `json:"mode"`
	Timestamp  time.Time          `json:"timestamp"`
	Integrator string             `json:"integrator,omitempty"`
	T0         float64            `json:"t0"`
	T1         float64            `json:"t1"`
	Dt         float64            `json:"dt"`
	Steps      int                `json:"steps"`
	Rejected   int                `json:"rejected"`
	Failures   int                `json:"failures"`
	Converged  bool               `json:"converged"`
	Iterations int                `json:"iterations"`
	Columns    []string           `json:"columns"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// NewRunID names a run after its model plus a random suffix.
func NewRunID(model string) string {
	return fmt.Sprintf("%s_%s", model, strings.SplitN(uuid.New().String(), "-", 2)[0])
}

// Save writes a run directory and returns its ID. meta.ID is filled in when
// empty; cfg may be nil.
func (s *Store) Save(meta RunMetadata, cfg *config.Config, traj *recorder.Trajectory) (string, error) {
	if meta.ID == "" {
		meta.ID = NewRunID(meta.Model)
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	meta.Columns = traj.Columns()

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()
	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if cfg != nil {
		if err := config.Save(filepath.Join(runDir, configFile), cfg); err != nil {
			return "", err
		}
	}

	csvFile, err := os.Create(filepath.Join(runDir, trajectoryFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()
	if err := WriteCSV(csvFile, traj); err != nil {
		return "", err
	}
	return meta.ID, nil
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.baseDir, runID, configFile))
}

func (s *Store) LoadTrajectory(runID string) (*recorder.Trajectory, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, trajectoryFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadCSV(file)
}

// WriteCSV writes one header line (index, time, columns) and one line per
// row. Values keep full precision.
func WriteCSV(w io.Writer, traj *recorder.Trajectory) error {
	cw := csv.NewWriter(w)
	header := append([]string{indexColumn, recorder.TimeColumn}, traj.Columns()...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := 0; i < traj.Len(); i++ {
		row := traj.At(i)
		record := make([]string, 0, len(header))
		record = append(record, strconv.Itoa(row.Index), formatFloat(row.Time))
		for _, v := range row.Values {
			record = append(record, formatFloat(v))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ReadCSV(r io.Reader) (*recorder.Trajectory, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("trajectory has no header")
	}
	header := records[0]
	if len(header) < 2 || header[0] != indexColumn || header[1] != recorder.TimeColumn {
		return nil, fmt.Errorf("unexpected trajectory header %v", header)
	}

	rows := make([]recorder.Row, 0, len(records)-1)
	for line, record := range records[1:] {
		idx, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+2, err)
		}
		t, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+2, err)
		}
		values := make([]float64, len(record)-2)
		for j, field := range record[2:] {
			if values[j], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, fmt.Errorf("line %d, %s: %w", line+2, header[j+2], err)
			}
		}
		rows = append(rows, recorder.Row{Index: idx, Time: t, Values: values})
	}
	return recorder.FromRows(header[2:], rows)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
