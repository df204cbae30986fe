package store

import (
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/cuffmon/cuffmon/internal/protocol"
)

func testReading(sys, dia float64) protocol.Reading {
	return protocol.Reading{Systolic: sys, Diastolic: dia}
}

func TestSaveAndLoad(t *testing.T) {
	s := NewStore(t.TempDir())
	ts := time.Date(2026, 8, 27, 9, 30, 0, 0, time.UTC)

	res, err := s.Save(testReading(120, 80), ts)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if res.Code != Saved {
		t.Fatalf("Save() = %v, want Saved", res.Code)
	}

	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Load() returned %d records, want 1", len(records))
	}
	if records[0].Reading.Systolic != 120 || !records[0].Timestamp.Equal(ts) {
		t.Errorf("record = %+v, want 120 mmHg at %v", records[0], ts)
	}
}

func TestSaveAppends(t *testing.T) {
	s := NewStore(t.TempDir())
	for i := 0; i < 3; i++ {
		if res, err := s.Save(testReading(118+float64(i), 78), time.Now()); err != nil || res.Code != Saved {
			t.Fatalf("Save(%d) = %v, %v", i, res.Code, err)
		}
	}
	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(records) != 3 {
		t.Errorf("Load() returned %d records, want 3", len(records))
	}
}

func TestSaveRejectsOutOfRange(t *testing.T) {
	s := NewStore(t.TempDir())

	tests := []struct {
		name string
		r    protocol.Reading
	}{
		// These pass the session plausibility filter but not the store's
		// narrower range.
		{"systolic above store range", testReading(210, 100)},
		{"diastolic above store range", testReading(180, 140)},
		{"systolic below store range", testReading(30, 25)},
		{"non-finite", testReading(math.NaN(), 80)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Save(tt.r, time.Now())
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if res.Code != InvalidData {
				t.Fatalf("Save() = %v, want InvalidData", res.Code)
			}
			if res.Reason == "" {
				t.Error("InvalidData result should carry a reason")
			}
		})
	}

	if records, _ := s.Load(); len(records) != 0 {
		t.Errorf("rejected readings must not be persisted, found %d", len(records))
	}
}

func TestSaveMissingPermissions(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("permission bits are not enforced here")
	}

	dir := t.TempDir()
	s := NewStore(dir)
	if res, err := s.Save(testReading(120, 80), time.Now()); err != nil || res.Code != Saved {
		t.Fatalf("initial Save() = %v, %v", res.Code, err)
	}

	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o700) })

	res, err := s.Save(testReading(121, 81), time.Now())
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if res.Code != MissingPermissions {
		t.Errorf("Save() into unwritable dir = %v, want MissingPermissions", res.Code)
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nonexistent"))
	records, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if records != nil {
		t.Errorf("Load() = %v, want nil for a missing file", records)
	}
}
