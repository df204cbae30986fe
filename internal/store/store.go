// Package store persists finalized blood-pressure readings to a JSON log
// file. It applies its own validity range, deliberately narrower than the
// session-level plausibility filter: a save rejection is routine advisory
// feedback, never a session failure.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/cuffmon/cuffmon/internal/protocol"
)

// Validity ranges for saved readings.
const (
	minSystolic  = 40
	maxSystolic  = 200
	minDiastolic = 20
	maxDiastolic = 130
)

const (
	logVersion  = 1
	logFileName = "readings.json"
	appDirName  = "cuffmon"
)

// ResultCode classifies the outcome of a Save.
type ResultCode int

const (
	Saved ResultCode = iota
	MissingPermissions
	InvalidData
)

func (c ResultCode) String() string {
	switch c {
	case Saved:
		return "saved"
	case MissingPermissions:
		return "missing permissions"
	case InvalidData:
		return "invalid data"
	default:
		return "unknown"
	}
}

// SaveResult reports what happened to a reading handed to the store.
// Reason is set for InvalidData.
type SaveResult struct {
	Code   ResultCode
	Reason string
}

// Record is one persisted reading.
type Record struct {
	Reading   protocol.Reading `json:"reading"`
	Timestamp time.Time        `json:"timestamp"`
}

// log is the on-disk document.
type log struct {
	Version int      `json:"version"`
	Records []Record `json:"records"`
}

// Store appends finalized readings to a JSON file.
type Store struct {
	dir string
}

// NewStore creates a Store writing into dir. Pass an empty string for the
// default XDG state path.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = defaultDir()
	}
	return &Store{dir: dir}
}

// Path returns the full path of the readings file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, logFileName)
}

// Save validates and appends one reading. Validation failures come back as
// InvalidData with a reason; filesystem permission problems come back as
// MissingPermissions. Neither is an error in the Go sense.
func (s *Store) Save(r protocol.Reading, ts time.Time) (SaveResult, error) {
	if reason := validate(r); reason != "" {
		return SaveResult{Code: InvalidData, Reason: reason}, nil
	}

	records, err := s.Load()
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return SaveResult{Code: MissingPermissions}, nil
		}
		return SaveResult{}, err
	}
	records = append(records, Record{Reading: r, Timestamp: ts.UTC()})

	if err := s.write(records); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return SaveResult{Code: MissingPermissions}, nil
		}
		return SaveResult{}, err
	}
	return SaveResult{Code: Saved}, nil
}

// Load reads all persisted records. A missing file yields an empty log.
func (s *Store) Load() ([]Record, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading log: %w", err)
	}
	var l log
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parsing log: %w", err)
	}
	return l.Records, nil
}

// write persists the log using an atomic temp-file-then-rename pattern.
func (s *Store) write(records []Record) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}

	data, err := json.MarshalIndent(log{Version: logVersion, Records: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling log: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, ".readings-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("renaming log file: %w", err)
	}
	committed = true

	return nil
}

// validate returns a rejection reason, or "" for a storable reading.
func validate(r protocol.Reading) string {
	if math.IsNaN(r.Systolic) || math.IsInf(r.Systolic, 0) ||
		math.IsNaN(r.Diastolic) || math.IsInf(r.Diastolic, 0) {
		return "non-finite pressure value"
	}
	if r.Systolic < minSystolic || r.Systolic > maxSystolic {
		return fmt.Sprintf("systolic %.0f outside [%d,%d]", r.Systolic, minSystolic, maxSystolic)
	}
	if r.Diastolic < minDiastolic || r.Diastolic > maxDiastolic {
		return fmt.Sprintf("diastolic %.0f outside [%d,%d]", r.Diastolic, minDiastolic, maxDiastolic)
	}
	return ""
}

// defaultDir returns ~/.local/state/cuffmon, respecting XDG_STATE_HOME.
func defaultDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
