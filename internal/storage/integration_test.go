package storage_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xtxerr/atmolog/internal/storage"
	"github.com/xtxerr/atmolog/internal/storage/config"
	"github.com/xtxerr/atmolog/internal/storage/export"
	"github.com/xtxerr/atmolog/internal/storage/record"
	"github.com/xtxerr/atmolog/internal/storage/types"
	atmotest "github.com/xtxerr/atmolog/internal/testing"
)

// TestIntegration_FullPipeline appends through the store and reads back in
// every export format and through SQL.
func TestIntegration_FullPipeline(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(tmpDir, "data")
	cfg.Capacity = 50
	cfg.WindowMax = 10
	cfg.Query.Enabled = true
	cfg.Query.TempDir = filepath.Join(tmpDir, "tmp")

	s, err := storage.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	for _, r := range atmotest.Sequence(1, 60) {
		s.Append(r)
	}

	if s.Len() != 50 {
		t.Fatalf("expected 50 readings, got %d", s.Len())
	}

	// Every format encodes the full log
	for _, f := range export.AllFormats() {
		var buf bytes.Buffer
		n, err := s.WriteFull(&buf, f)
		if err != nil {
			t.Fatalf("%s: WriteFull: %v", f, err)
		}
		if n != 50 {
			t.Errorf("%s: expected 50 rows, got %d", f, n)
		}
		if buf.Len() == 0 {
			t.Errorf("%s: empty output", f)
		}
	}

	// Window is capped at WindowMax
	var buf bytes.Buffer
	n, err := s.WriteWindow(&buf, export.FormatCSV, 100)
	if err != nil {
		t.Fatalf("WriteWindow: %v", err)
	}
	if n != 10 {
		t.Errorf("expected 10 window rows, got %d", n)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if last := lines[len(lines)-1]; !strings.HasPrefix(last, "0,60,") {
		t.Errorf("expected newest row last, got %q", last)
	}

	// SQL over a snapshot
	res, err := s.ExecuteSQL(context.Background(), "SELECT min(humidity) AS lo, max(humidity) AS hi FROM readings")
	if err != nil {
		t.Fatalf("ExecuteSQL: %v", err)
	}
	if res.Rows[0]["lo"] != float32(11) || res.Rows[0]["hi"] != float32(60) {
		t.Errorf("unexpected SQL result %v", res.Rows)
	}

	// Aggregate still covers evicted readings
	min, max := s.Aggregate().Range(types.FieldHumidity)
	if min.Value() != 1 || max.Value() != 60 {
		t.Errorf("expected humidity range 1-60, got %v-%v", min, max)
	}

	m := s.Metrics()
	if got := testutil.ToFloat64(m.Appends); got != 60 {
		t.Errorf("expected 60 appends, got %f", got)
	}
	if got := testutil.ToFloat64(m.Evictions); got != 10 {
		t.Errorf("expected 10 evictions, got %f", got)
	}
	if got := testutil.ToFloat64(m.LogLength); got != 50 {
		t.Errorf("expected length gauge 50, got %f", got)
	}

	st := s.Stats()
	if st.Ring == nil || st.Ring.Evictions != 10 {
		t.Errorf("unexpected ring stats %+v", st.Ring)
	}
	if st.Usage.Objects != 3 {
		t.Errorf("expected 3 objects on disk, got %d", st.Usage.Objects)
	}
	if st.Analytics == nil || st.Analytics.QueriesExecuted != 1 {
		t.Errorf("unexpected analytics stats %+v", st.Analytics)
	}
}

// TestIntegration_CapacityLowered reopens with a smaller capacity and keeps
// the newest readings.
func TestIntegration_CapacityLowered(t *testing.T) {
	for _, layout := range []string{"ring", "flat"} {
		t.Run(layout, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.DataDir = t.TempDir()
			cfg.Layout = layout
			cfg.Capacity = 10
			cfg.Query.Enabled = false

			s, err := storage.New(cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			for _, r := range atmotest.Sequence(1, 8) {
				s.Append(r)
			}
			s.Close()

			cfg.Capacity = 4
			s, err = storage.New(cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer s.Close()

			var buf bytes.Buffer
			if _, err := s.WriteFull(&buf, export.FormatCSV); err != nil {
				t.Fatal(err)
			}
			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")[1:]
			if len(lines) != 4 || !strings.HasPrefix(lines[0], "3,5,") {
				t.Errorf("expected readings 5-8, got %v", lines)
			}
		})
	}
}

// TestIntegration_LegacyObjects opens objects written by older firmware:
// a flat reading log and an aggregate holding magic sentinels.
func TestIntegration_LegacyObjects(t *testing.T) {
	dir := t.TempDir()

	var data []byte
	for _, r := range atmotest.Readings(30, 31, 32) {
		data = record.AppendReading(data, r)
	}
	// Torn trailing record
	data = append(data, 1, 2, 3)
	if err := os.WriteFile(filepath.Join(dir, "readings"), data, 0644); err != nil {
		t.Fatal(err)
	}

	legacy := types.AggregateFromExtrema([6]types.Extremum{
		types.Set(999), types.Set(-999),
		types.Set(999), types.Set(-999),
		types.Set(9999), types.Set(-9999),
	})
	if err := os.WriteFile(filepath.Join(dir, "minmax.bin"), record.EncodeAggregate(legacy), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.Layout = "flat"
	cfg.LegacySentinels = true
	cfg.Query.Enabled = false

	s, err := storage.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if s.Len() != 3 {
		t.Errorf("expected 3 readings, got %d", s.Len())
	}
	if !s.Aggregate().IsEmpty() {
		t.Errorf("expected sentinels to load unset, got %+v", s.Aggregate())
	}

	s.Append(atmotest.Reading(33))
	min, max := s.Aggregate().Range(types.FieldHumidity)
	if min.Value() != 33 || max.Value() != 33 {
		t.Errorf("expected humidity range 33-33, got %v-%v", min, max)
	}
}

// TestIntegration_MemoryMedium runs without touching disk.
func TestIntegration_MemoryMedium(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Medium = config.MediumMemory
	cfg.DataDir = ""
	cfg.Capacity = 5
	cfg.Query.Enabled = false

	s, err := storage.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	for _, r := range atmotest.Sequence(1, 7) {
		s.Append(r)
	}
	if s.Len() != 5 {
		t.Errorf("expected 5 readings, got %d", s.Len())
	}
	if !s.Stats().StorageAvailable {
		t.Error("memory medium should be available")
	}
}
