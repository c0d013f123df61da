package query

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xtxerr/atmolog/internal/errors"
	"github.com/xtxerr/atmolog/internal/logging"
	"github.com/xtxerr/atmolog/internal/storage/aggregate"
	"github.com/xtxerr/atmolog/internal/storage/export"
	"github.com/xtxerr/atmolog/internal/storage/flatlog"
	"github.com/xtxerr/atmolog/internal/storage/medium"
	"github.com/xtxerr/atmolog/internal/storage/record"
	"github.com/xtxerr/atmolog/internal/storage/ringlog"
	"github.com/xtxerr/atmolog/internal/storage/types"
	atmotest "github.com/xtxerr/atmolog/internal/testing"
)

func init() {
	logging.Discard()
}

type fixture struct {
	m       *medium.Memory
	log     types.Log
	tracker *aggregate.Tracker
	svc     *Service
}

// newFixture builds a service over a ring log, mirroring what the store does
// on append.
func newFixture(t *testing.T, capacity, windowMax int) *fixture {
	t.Helper()
	m := medium.NewMemory()
	l, err := ringlog.Open(m, "readings", capacity)
	if err != nil {
		t.Fatalf("ringlog.Open: %v", err)
	}
	tr := aggregate.Load(m, "minmax.bin", record.Options{})

	opts := DefaultOptions()
	opts.WindowMax = windowMax
	return &fixture{m: m, log: l, tracker: tr, svc: New(l, tr, opts)}
}

func (f *fixture) append(t *testing.T, rs ...types.Reading) {
	t.Helper()
	for _, r := range rs {
		if _, err := f.log.Append(r); err != nil {
			t.Fatalf("append: %v", err)
		}
		f.tracker.Observe(r)
	}
}

func collect(t *testing.T, rows *Rows) []types.ExportRow {
	t.Helper()
	out, err := Collect(rows)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	return out
}

func humidities(rows []types.ExportRow) []float32 {
	out := make([]float32, len(rows))
	for i, r := range rows {
		out[i] = r.Humidity
	}
	return out
}

func equalFloats(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Capacity 3, four appends: the oldest is evicted and the aggregate still
// covers every reading ever appended.
func TestScenarioEviction(t *testing.T) {
	f := newFixture(t, 3, 300)
	f.append(t,
		types.Reading{Humidity: 40, Temperature: 20, Pressure: 1000},
		types.Reading{Humidity: 41, Temperature: 21, Pressure: 1001},
		types.Reading{Humidity: 42, Temperature: 22, Pressure: 1002},
		types.Reading{Humidity: 43, Temperature: 23, Pressure: 1003},
	)

	rows := collect(t, f.svc.ExportFull())
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	first := rows[0]
	if first.Humidity != 41 || first.Temperature != 21 || first.Pressure != 1001 {
		t.Errorf("expected oldest (41,21,1001), got %+v", first)
	}

	min, max := f.svc.Aggregate().Range(types.FieldHumidity)
	if min.Value() != 40 || max.Value() != 43 {
		t.Errorf("expected humidity range 40-43, got %v-%v", min, max)
	}
}

func TestScenarioEmpty(t *testing.T) {
	f := newFixture(t, 3, 300)

	if rows := collect(t, f.svc.ExportFull()); len(rows) != 0 {
		t.Errorf("expected no rows, got %v", rows)
	}
	if rows := collect(t, f.svc.ExportWindow(10)); len(rows) != 0 {
		t.Errorf("expected no window rows, got %v", rows)
	}
	agg := f.svc.Aggregate()
	if !agg.IsEmpty() {
		t.Errorf("expected unset aggregate, got %+v", agg)
	}
	for _, e := range agg.Extrema() {
		if _, ok := e.Get(); ok {
			t.Error("unset extremum must not report a value")
		}
	}
}

func TestScenarioWindow(t *testing.T) {
	f := newFixture(t, 10, 2)
	f.append(t, atmotest.Readings(10, 20, 30, 40, 50)...)

	got := humidities(collect(t, f.svc.ExportWindow(2)))
	if !equalFloats(got, []float32{40, 50}) {
		t.Errorf("expected [40 50], got %v", got)
	}

	// k above WINDOW_MAX is capped.
	got = humidities(collect(t, f.svc.ExportWindow(4)))
	if !equalFloats(got, []float32{40, 50}) {
		t.Errorf("expected capped window [40 50], got %v", got)
	}

	// ExportLast is not capped.
	got = humidities(collect(t, f.svc.ExportLast(4)))
	if !equalFloats(got, []float32{20, 30, 40, 50}) {
		t.Errorf("expected [20 30 40 50], got %v", got)
	}
}

func TestScenarioClear(t *testing.T) {
	f := newFixture(t, 20, 300)
	f.append(t, atmotest.Sequence(1, 10)...)

	if !f.svc.Clear() {
		t.Fatal("clear should succeed")
	}
	if rows := collect(t, f.svc.ExportFull()); len(rows) != 0 {
		t.Errorf("expected no rows after clear, got %d", len(rows))
	}
	if !f.svc.Aggregate().IsEmpty() {
		t.Error("expected unset aggregate after clear")
	}

	if !f.svc.Clear() {
		t.Error("second clear should also succeed")
	}
}

func TestScenarioMalformedAggregate(t *testing.T) {
	m := medium.NewMemory()
	if err := m.WriteFile("minmax.bin", make([]byte, 13)); err != nil {
		t.Fatal(err)
	}
	l, _ := ringlog.Open(m, "readings", 5)
	svc := New(l, aggregate.Load(m, "minmax.bin", record.Options{}), DefaultOptions())

	if !svc.Aggregate().IsEmpty() {
		t.Errorf("expected unset aggregate, got %+v", svc.Aggregate())
	}
}

func TestAgeLabels(t *testing.T) {
	f := newFixture(t, 10, 3)
	f.svc.SetSampleInterval(5)
	f.append(t, atmotest.Sequence(1, 5)...)

	full := collect(t, f.svc.ExportFull())
	wantAges := []uint32{20, 15, 10, 5, 0}
	for i, r := range full {
		if r.AgeMinutes != wantAges[i] {
			t.Errorf("row %d: expected age %d, got %d", i, wantAges[i], r.AgeMinutes)
		}
		if r.Index != i {
			t.Errorf("row %d: expected index %d, got %d", i, i, r.Index)
		}
	}

	// Window rows carry the same labels as the full export.
	window := collect(t, f.svc.ExportWindow(3))
	for i, r := range window {
		if r != full[2+i] {
			t.Errorf("window row %d: expected %+v, got %+v", i, full[2+i], r)
		}
	}
}

func TestWindowEqualsFullWhenSmall(t *testing.T) {
	f := newFixture(t, 10, 300)
	f.append(t, atmotest.Sequence(1, 4)...)

	full := collect(t, f.svc.ExportFull())
	window := collect(t, f.svc.ExportWindow(0))
	if len(full) != len(window) {
		t.Fatalf("expected %d rows, got %d", len(full), len(window))
	}
	for i := range full {
		if full[i] != window[i] {
			t.Errorf("row %d: expected %+v, got %+v", i, full[i], window[i])
		}
	}
}

// Windowing behaves the same on the legacy layout.
func TestWindowFlatLayout(t *testing.T) {
	m := medium.NewMemory()
	l, err := flatlog.Open(m, "readings", 4)
	if err != nil {
		t.Fatal(err)
	}
	svc := New(l, aggregate.Load(m, "minmax.bin", record.Options{}), Options{WindowMax: 2})
	atmotest.AppendAll(t, l, atmotest.Sequence(1, 6))

	got := humidities(collect(t, svc.ExportWindow(0)))
	if !equalFloats(got, []float32{5, 6}) {
		t.Errorf("expected [5 6], got %v", got)
	}
}

type failingAggregate struct{}

func (failingAggregate) Snapshot() types.Aggregate { return types.Aggregate{} }
func (failingAggregate) Clear() error { return errors.ErrStorageUnavailable }

func TestClearPartialFailure(t *testing.T) {
	m := medium.NewMemory()
	l, _ := ringlog.Open(m, "readings", 5)
	atmotest.AppendAll(t, l, atmotest.Sequence(1, 3))

	svc := New(l, failingAggregate{}, DefaultOptions())
	if svc.Clear() {
		t.Error("clear must report failure when the aggregate cannot be reset")
	}
	if l.Len() != 0 {
		t.Error("log clear is not rolled back")
	}
	if svc.Stats().ClearFailures != 1 {
		t.Errorf("expected one clear failure, got %d", svc.Stats().ClearFailures)
	}
}

func TestWriteFormats(t *testing.T) {
	f := newFixture(t, 10, 300)
	f.append(t, atmotest.Readings(40, 41)...)

	var buf bytes.Buffer
	n, err := f.svc.WriteFull(&buf, export.FormatCSV)
	if err != nil {
		t.Fatalf("WriteFull: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || lines[1] != "1,40,20,1040" {
		t.Errorf("unexpected csv %q", buf.String())
	}

	buf.Reset()
	if _, err := f.svc.WriteWindow(&buf, export.FormatJSON, 1); err != nil {
		t.Fatalf("WriteWindow: %v", err)
	}
	if !strings.Contains(buf.String(), `"humidity":41`) || strings.Contains(buf.String(), `"humidity":40`) {
		t.Errorf("unexpected json %s", buf.String())
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t, 100, 300)
	f.append(t, atmotest.Sequence(1, 100)...)

	all, err := f.svc.Summary(0)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if all.Points != 100 {
		t.Errorf("expected 100 points, got %d", all.Points)
	}

	last, err := f.svc.Summary(10)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	h, _ := last.Field("humidity")
	if last.Points != 10 || h.Min != 91 || h.Max != 100 {
		t.Errorf("unexpected summary of last 10: points=%d %+v", last.Points, h)
	}
}

func TestValidateReadOnly(t *testing.T) {
	tests := []struct {
		query string
		ok    bool
	}{
		{"SELECT * FROM readings", true},
		{"  select 1;", true},
		{"-- comment\nSELECT 1", true},
		{"/* c */ WITH t AS (SELECT 1) SELECT * FROM t", true},
		{"(SELECT 1)", true},
		{"SELECT ';' AS semi", true},
		{"FROM readings LIMIT 1", true},
		{"DELETE FROM readings", false},
		{"DROP VIEW readings", false},
		{"COPY readings TO 'x.csv'", false},
		{"SELECT 1; DROP TABLE x", false},
		{"", false},
		{"-- only a comment", false},
	}

	for _, tt := range tests {
		err := ValidateReadOnly(tt.query)
		if tt.ok && err != nil {
			t.Errorf("%q: unexpected error %v", tt.query, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("%q: expected rejection", tt.query)
		}
		if !tt.ok && !errors.IsValidation(err) {
			t.Errorf("%q: expected validation error, got %v", tt.query, err)
		}
	}
}

func TestAnalytics(t *testing.T) {
	f := newFixture(t, 10, 300)
	f.append(t, atmotest.Sequence(1, 5)...)

	cfg := DefaultAnalyticsConfig()
	cfg.TempDir = t.TempDir()
	a, err := NewAnalytics(cfg)
	if err != nil {
		t.Fatalf("NewAnalytics: %v", err)
	}
	defer a.Close()

	snapshot := func(w io.Writer) error {
		_, err := f.svc.WriteFull(w, export.FormatParquet)
		return err
	}

	res, err := a.ExecuteSQL(context.Background(),
		"SELECT count(*) AS n, max(humidity) AS max_h FROM readings", snapshot)
	if err != nil {
		t.Fatalf("ExecuteSQL: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
	if n, ok := res.Rows[0]["n"].(int64); !ok || n != 5 {
		t.Errorf("expected n=5, got %v (%T)", res.Rows[0]["n"], res.Rows[0]["n"])
	}

	res, err = a.ExecuteSQL(context.Background(),
		"SELECT age_minutes FROM readings ORDER BY idx", snapshot)
	if err != nil {
		t.Fatalf("ExecuteSQL: %v", err)
	}
	if len(res.Rows) != 5 || res.Rows[0]["age_minutes"] != int64(4) {
		t.Errorf("unexpected rows %v", res.Rows)
	}

	if _, err := a.ExecuteSQL(context.Background(), "DELETE FROM readings", snapshot); !errors.Is(err, errors.ErrReadOnlyQuery) {
		t.Errorf("expected ErrReadOnlyQuery, got %v", err)
	}

	st := a.Stats()
	if st.QueriesExecuted != 2 || st.Rejected != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestAnalyticsNoExternalAccess(t *testing.T) {
	f := newFixture(t, 10, 300)
	f.append(t, atmotest.Sequence(1, 3)...)

	dir := t.TempDir()
	secret := filepath.Join(dir, "secret.txt")
	if err := os.WriteFile(secret, []byte("secret-token"), 0600); err != nil {
		t.Fatal(err)
	}

	a, err := NewAnalytics(AnalyticsConfig{TempDir: dir})
	if err != nil {
		t.Fatalf("NewAnalytics: %v", err)
	}
	defer a.Close()

	snapshot := func(w io.Writer) error {
		_, err := f.svc.WriteFull(w, export.FormatParquet)
		return err
	}

	for _, q := range []string{
		"SELECT content FROM read_text('" + secret + "')",
		"SELECT * FROM read_csv('" + secret + "')",
		"SELECT * FROM glob('" + dir + "/*')",
	} {
		res, err := a.ExecuteSQL(context.Background(), q, snapshot)
		if err == nil {
			t.Errorf("%q: expected error, got %v", q, res.Rows)
			continue
		}
		if strings.Contains(err.Error(), "secret-token") {
			t.Errorf("%q: error leaks file content: %v", q, err)
		}
	}

	// The readings table is still usable after a rejected query.
	res, err := a.ExecuteSQL(context.Background(), "SELECT count(*) AS n FROM readings", snapshot)
	if err != nil {
		t.Fatalf("ExecuteSQL: %v", err)
	}
	if n, _ := res.Rows[0]["n"].(int64); n != 3 {
		t.Errorf("expected 3 readings, got %v", res.Rows[0]["n"])
	}
}

func TestAnalyticsMaxRows(t *testing.T) {
	f := newFixture(t, 10, 300)
	f.append(t, atmotest.Sequence(1, 5)...)

	a, err := NewAnalytics(AnalyticsConfig{MaxRows: 2, TempDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewAnalytics: %v", err)
	}
	defer a.Close()

	res, err := a.ExecuteSQL(context.Background(), "SELECT * FROM readings", func(w io.Writer) error {
		_, err := f.svc.WriteFull(w, export.FormatParquet)
		return err
	})
	if err != nil {
		t.Fatalf("ExecuteSQL: %v", err)
	}
	if len(res.Rows) != 2 || !res.Truncated {
		t.Errorf("expected 2 truncated rows, got %d (truncated=%v)", len(res.Rows), res.Truncated)
	}
	if len(res.Columns) != 5 {
		t.Errorf("expected 5 columns, got %v", res.Columns)
	}
}
