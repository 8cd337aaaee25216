package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/beamline/internal/dynamo"
	"github.com/san-kum/beamline/internal/probe"
)

const (
	metadataFile = "metadata.json"
	statesFile   = "states.json"
	csvFile      = "states.csv"
)

// Store keeps each run in its own directory under baseDir.
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
	ID            string             `json:"id"`
	Sequence      string             `json:"sequence"`
	Probe         string             `json:"probe"`
	Species       string             `json:"species"`
	Tracker       string             `json:"tracker"`
	Policy        string             `json:"policy"`
	Sync          string             `json:"sync"`
	Timestamp     time.Time          `json:"timestamp"`
	InitialEnergy float64            `json:"initial_energy"`
	FinalEnergy   float64            `json:"final_energy"`
	Length        float64            `json:"length"`
	States        int                `json:"states"`
	Status        string             `json:"status"`
	Error         string             `json:"error,omitempty"`
	Metrics       map[string]float64 `json:"metrics"`
}

// Kind returns the probe kind recorded for the run.
func (m *RunMetadata) Kind() (probe.Kind, error) {
	return probe.ParseKind(m.Probe)
}

// Save writes a run and returns its generated id. Missing metadata fields
// derivable from states are filled in.
func (s *Store) Save(meta RunMetadata, states []probe.State) (string, error) {
	if _, err := meta.Kind(); err != nil {
		return "", err
	}
	meta.ID = uuid.NewString()
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	fillFromStates(&meta, states)

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, statesFile), Snapshot(states)); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(runDir, csvFile))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := WriteCSV(f, states); err != nil {
		return "", err
	}
	return meta.ID, nil
}

func fillFromStates(meta *RunMetadata, states []probe.State) {
	meta.States = len(states)
	if len(states) == 0 {
		return
	}
	first, last := states[0], states[len(states)-1]
	if meta.InitialEnergy == 0 {
		meta.InitialEnergy = first.KineticEnergy()
	}
	meta.FinalEnergy = last.KineticEnergy()
	meta.Length = last.Position() - first.Position()
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// List returns the stored runs, newest first. Unreadable entries are skipped.
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

	slices.SortFunc(runs, func(a, b RunMetadata) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: run %s", dynamo.ErrNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadStates restores the saved trajectory of a run.
func (s *Store) LoadStates(runID string) ([]probe.State, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	kind, err := meta.Kind()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, statesFile))
	if err != nil {
		return nil, err
	}
	var root dynamo.MapAdaptor
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	return Restore(&root, kind)
}

// Delete removes a run and everything saved with it.
func (s *Store) Delete(runID string) error {
	if _, err := s.Load(runID); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.baseDir, runID))
}
