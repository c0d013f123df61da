package ringlog

import (
	"testing"

	"github.com/xtxerr/atmolog/internal/errors"
	"github.com/xtxerr/atmolog/internal/logging"
	"github.com/xtxerr/atmolog/internal/storage/medium"
	"github.com/xtxerr/atmolog/internal/storage/record"
	"github.com/xtxerr/atmolog/internal/storage/types"
	atmotest "github.com/xtxerr/atmolog/internal/testing"
)

const objectName = "readings"

func init() {
	logging.Discard()
}

func openLog(t *testing.T, m medium.Medium, capacity int) *Log {
	t.Helper()
	l, err := Open(m, objectName, capacity)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return l
}

func TestContract(t *testing.T) {
	atmotest.RunLogContract(t, func(t *testing.T, m medium.Medium, capacity int) types.Log {
		return openLog(t, m, capacity)
	})
}

func TestMetaEncoding(t *testing.T) {
	m := Meta{Start: 7, Count: 300, Capacity: 1440}

	data := m.Encode()
	if len(data) != MetaSize {
		t.Fatalf("expected %d bytes, got %d", MetaSize, len(data))
	}

	got, err := DecodeMeta(data)
	if err != nil {
		t.Fatalf("DecodeMeta: %v", err)
	}
	if got != m {
		t.Errorf("expected %+v, got %+v", m, got)
	}
}

func TestDecodeMetaRejects(t *testing.T) {
	corrupt := Meta{Start: 1, Count: 2, Capacity: 3}.Encode()
	corrupt[0] ^= 0xff

	tests := []struct {
		name string
		data []byte
	}{
		{"short", make([]byte, 8)},
		{"crc", corrupt},
		{"count over capacity", Meta{Start: 0, Count: 4, Capacity: 3}.Encode()},
		{"start out of range", Meta{Start: 3, Count: 1, Capacity: 3}.Encode()},
		{"zero capacity", Meta{}.Encode()},
	}

	for _, tt := range tests {
		if _, err := DecodeMeta(tt.data); !errors.Is(err, errors.ErrMalformedRecord) {
			t.Errorf("%s: expected ErrMalformedRecord, got %v", tt.name, err)
		}
	}
}

func TestAppendIsConstantWork(t *testing.T) {
	m := medium.NewMemory()
	l := openLog(t, m, 3)
	atmotest.AppendAll(t, l, atmotest.Sequence(1, 10))

	size, err := m.Size(objectName + ArenaSuffix)
	if err != nil {
		t.Fatal(err)
	}
	if size != 3*record.Size {
		t.Errorf("arena must not grow past capacity, got %d bytes", size)
	}

	meta := l.Meta()
	if meta.Start != 1 || meta.Count != 3 {
		t.Errorf("expected start 1 count 3, got %+v", meta)
	}
	st := l.Stats()
	if st.Appends != 10 || st.Evictions != 7 {
		t.Errorf("expected 10 appends and 7 evictions, got %+v", st)
	}
}

func TestMalformedMetaStartsEmpty(t *testing.T) {
	m := medium.NewMemory()
	l := openLog(t, m, 3)
	atmotest.AppendAll(t, l, atmotest.Sequence(1, 2))

	if err := m.WriteFile(objectName+MetaSuffix, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	l = openLog(t, m, 3)
	if l.Len() != 0 {
		t.Errorf("expected empty log, got %d", l.Len())
	}
	if l.Stats().Resets != 1 {
		t.Errorf("expected one reset, got %d", l.Stats().Resets)
	}

	atmotest.AppendAll(t, l, atmotest.Readings(5))
	got := atmotest.Collect(t, l.Cursor(0))
	if !atmotest.EqualReadings(got, atmotest.Readings(5)) {
		t.Errorf("expected [5], got %v", atmotest.Humidities(got))
	}
}

func TestTruncatedArenaStartsEmpty(t *testing.T) {
	m := medium.NewMemory()
	l := openLog(t, m, 4)
	atmotest.AppendAll(t, l, atmotest.Sequence(1, 3))

	if err := m.Truncate(objectName+ArenaSuffix, record.Size+3); err != nil {
		t.Fatal(err)
	}

	l = openLog(t, m, 4)
	if l.Len() != 0 {
		t.Errorf("expected empty log, got %d", l.Len())
	}
}

// A failed metadata write after an eviction slot write leaves the new reading
// visible in the oldest position. The log stays readable and recovers on the
// next append.
func TestMetaWriteFailureAfterEviction(t *testing.T) {
	m := medium.NewMemory()
	l := openLog(t, m, 3)
	atmotest.AppendAll(t, l, atmotest.Sequence(1, 3))

	m.FailAfter(medium.OpWrite, objectName+MetaSuffix+tmpSuffix, 0)
	if _, err := l.Append(atmotest.Reading(4)); err == nil {
		t.Fatal("expected meta write failure")
	}
	if l.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", l.Len())
	}
	got := atmotest.Collect(t, l.Cursor(0))
	if !atmotest.EqualReadings(got, atmotest.Readings(4, 2, 3)) {
		t.Errorf("expected [4 2 3], got %v", atmotest.Humidities(got))
	}

	atmotest.AppendAll(t, l, atmotest.Readings(5))
	got = atmotest.Collect(t, l.Cursor(0))
	if !atmotest.EqualReadings(got, atmotest.Readings(2, 3, 5)) {
		t.Errorf("expected [2 3 5], got %v", atmotest.Humidities(got))
	}
}

// A crash between writing the new metadata and renaming it into place keeps
// the previous position on reopen.
func TestMetaRenameCrashKeepsPreviousState(t *testing.T) {
	m := medium.NewMemory()
	l := openLog(t, m, 4)
	atmotest.AppendAll(t, l, atmotest.Sequence(1, 3))

	m.FailAfter(medium.OpRename, objectName+MetaSuffix+tmpSuffix, 0)
	if _, err := l.Append(atmotest.Reading(4)); err == nil {
		t.Fatal("expected meta rename failure")
	}

	l = openLog(t, m, 4)
	got := atmotest.Collect(t, l.Cursor(0))
	if !atmotest.EqualReadings(got, atmotest.Sequence(1, 3)) {
		t.Errorf("expected [1 2 3], got %v", atmotest.Humidities(got))
	}
	if l.Stats().Resets != 0 {
		t.Errorf("expected no reset, got %d", l.Stats().Resets)
	}
}

// A torn temporary metadata object never replaces the live one.
func TestTornMetaTempIsIgnored(t *testing.T) {
	m := medium.NewMemory()
	l := openLog(t, m, 4)
	atmotest.AppendAll(t, l, atmotest.Sequence(1, 2))

	if err := m.WriteFile(objectName+MetaSuffix+tmpSuffix, []byte{1, 2}); err != nil {
		t.Fatal(err)
	}

	l = openLog(t, m, 4)
	if l.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", l.Len())
	}

	atmotest.AppendAll(t, l, atmotest.Readings(3))
	if medium.Exists(m, objectName+MetaSuffix+tmpSuffix) {
		t.Error("temporary meta must be renamed away after an append")
	}
	if err := l.Clear(); err != nil {
		t.Fatal(err)
	}
	if names := m.Names(); len(names) != 0 {
		t.Errorf("expected no objects, got %v", names)
	}
}

func TestClearKeepsStateWhenMetaSurvives(t *testing.T) {
	m := medium.NewMemory()
	l := openLog(t, m, 3)
	atmotest.AppendAll(t, l, atmotest.Sequence(1, 2))

	m.FailAfter(medium.OpRemove, objectName+MetaSuffix, 0)
	if err := l.Clear(); err == nil {
		t.Fatal("expected clear failure")
	}
	if l.Len() != 2 {
		t.Errorf("expected records to survive failed clear, got %d", l.Len())
	}

	if err := l.Clear(); err != nil {
		t.Fatalf("retry clear: %v", err)
	}
	if names := m.Names(); len(names) != 0 {
		t.Errorf("expected no objects, got %v", names)
	}
}

func TestDirBacked(t *testing.T) {
	m := medium.NewDir(t.TempDir())
	l := openLog(t, m, 3)
	atmotest.AppendAll(t, l, atmotest.Sequence(1, 5))

	l = openLog(t, m, 3)
	got := atmotest.Collect(t, l.Cursor(0))
	if !atmotest.EqualReadings(got, atmotest.Sequence(3, 3)) {
		t.Errorf("expected [3 4 5], got %v", atmotest.Humidities(got))
	}
}
