package flatlog

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

func TestOpenInvalid(t *testing.T) {
	if _, err := Open(medium.NewMemory(), objectName, 0); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := Open(medium.NewMemory(), "", 3); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestLegacyObjectIsReadable(t *testing.T) {
	m := medium.NewMemory()

	var data []byte
	for _, r := range atmotest.Sequence(1, 3) {
		data = record.AppendReading(data, r)
	}
	if err := m.WriteFile(objectName, data); err != nil {
		t.Fatal(err)
	}

	l := openLog(t, m, 1440)
	if l.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", l.Len())
	}
	got := atmotest.Collect(t, l.Cursor(0))
	if !atmotest.EqualReadings(got, atmotest.Sequence(1, 3)) {
		t.Errorf("unexpected records %v", got)
	}
}

func TestPartialTrailingRecord(t *testing.T) {
	m := medium.NewMemory()
	data := record.AppendReading(nil, atmotest.Reading(1))
	data = append(data, 0xde, 0xad, 0xbe) // torn write
	if err := m.WriteFile(objectName, data); err != nil {
		t.Fatal(err)
	}

	l := openLog(t, m, 5)
	if l.Len() != 1 {
		t.Fatalf("partial record must not be counted, got %d", l.Len())
	}

	if _, err := l.Append(atmotest.Reading(2)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	size, _ := m.Size(objectName)
	if size != 2*record.Size {
		t.Errorf("expected partial tail trimmed to %d bytes, got %d", 2*record.Size, size)
	}

	got := atmotest.Collect(t, l.Cursor(0))
	if !atmotest.EqualReadings(got, atmotest.Readings(1, 2)) {
		t.Errorf("unexpected records %v", got)
	}
}

func TestEvictionRewritesThroughTemporary(t *testing.T) {
	m := medium.NewMemory()
	l := openLog(t, m, 2)
	atmotest.AppendAll(t, l, atmotest.Sequence(1, 4))

	if medium.Exists(m, objectName+TmpSuffix) {
		t.Error("temporary object must not survive a completed rewrite")
	}
	st := l.Stats()
	if st.Rewrites != 2 || st.Evictions != 2 {
		t.Errorf("expected 2 rewrites and 2 evictions, got %+v", st)
	}
	if st.RewriteBytes != 4*record.Size {
		t.Errorf("expected %d rewrite bytes, got %d", 4*record.Size, st.RewriteBytes)
	}
}

// Power loss after the old object was removed but before the rename.
func TestRecoverLostRename(t *testing.T) {
	m := medium.NewMemory()
	l := openLog(t, m, 3)
	atmotest.AppendAll(t, l, atmotest.Sequence(1, 3))

	m.FailAfter(medium.OpRename, objectName+TmpSuffix, 0)
	_, err := l.Append(atmotest.Reading(4))
	if !errors.Is(err, errors.ErrRewriteFailed) {
		t.Fatalf("expected ErrRewriteFailed, got %v", err)
	}
	if medium.Exists(m, objectName) {
		t.Fatal("main object should be gone after the injected fault")
	}

	// Reboot.
	l = openLog(t, m, 3)
	if l.Stats().Recoveries != 1 {
		t.Errorf("expected one recovery, got %d", l.Stats().Recoveries)
	}
	got := atmotest.Collect(t, l.Cursor(0))
	if !atmotest.EqualReadings(got, atmotest.Readings(2, 3, 4)) {
		t.Errorf("expected recovered rewrite [2 3 4], got %v", atmotest.Humidities(got))
	}
}

// The same lost rename is repaired by the next append without a reboot.
func TestRecoverLostRenameOnAppend(t *testing.T) {
	m := medium.NewMemory()
	l := openLog(t, m, 3)
	atmotest.AppendAll(t, l, atmotest.Sequence(1, 3))

	m.FailAfter(medium.OpRename, objectName+TmpSuffix, 0)
	if _, err := l.Append(atmotest.Reading(4)); err == nil {
		t.Fatal("expected rewrite failure")
	}
	if l.Len() != 0 {
		t.Errorf("main object is gone, expected empty view, got %d", l.Len())
	}

	if _, err := l.Append(atmotest.Reading(5)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got := atmotest.Collect(t, l.Cursor(0))
	if !atmotest.EqualReadings(got, atmotest.Readings(3, 4, 5)) {
		t.Errorf("expected [3 4 5], got %v", atmotest.Humidities(got))
	}
}

// Power loss while the temporary object was being written.
func TestRecoverStaleTemporary(t *testing.T) {
	m := medium.NewMemory()
	l := openLog(t, m, 3)
	atmotest.AppendAll(t, l, atmotest.Sequence(1, 3))

	// A half-written rewrite left next to an intact main object.
	if err := m.WriteFile(objectName+TmpSuffix, record.AppendReading(nil, atmotest.Reading(9))[:10]); err != nil {
		t.Fatal(err)
	}

	l = openLog(t, m, 3)
	if medium.Exists(m, objectName+TmpSuffix) {
		t.Error("stale temporary should be removed")
	}
	got := atmotest.Collect(t, l.Cursor(0))
	if !atmotest.EqualReadings(got, atmotest.Sequence(1, 3)) {
		t.Errorf("expected intact log, got %v", atmotest.Humidities(got))
	}
}

// A torn temporary promoted by recovery is still a valid, if short, log.
func TestRecoverTornTemporary(t *testing.T) {
	m := medium.NewMemory()
	data := record.AppendReading(nil, atmotest.Reading(2))
	data = append(data, record.AppendReading(nil, atmotest.Reading(3))[:7]...)
	if err := m.WriteFile(objectName+TmpSuffix, data); err != nil {
		t.Fatal(err)
	}

	l := openLog(t, m, 3)
	got := atmotest.Collect(t, l.Cursor(0))
	if !atmotest.EqualReadings(got, atmotest.Readings(2)) {
		t.Errorf("expected [2], got %v", atmotest.Humidities(got))
	}

	atmotest.AppendAll(t, l, atmotest.Readings(4, 5, 6))
	got = atmotest.Collect(t, l.Cursor(0))
	if !atmotest.EqualReadings(got, atmotest.Readings(4, 5, 6)) {
		t.Errorf("expected [4 5 6], got %v", atmotest.Humidities(got))
	}
}

func TestClearRemovesTemporary(t *testing.T) {
	m := medium.NewMemory()
	l := openLog(t, m, 3)
	atmotest.AppendAll(t, l, atmotest.Sequence(1, 2))
	_ = m.WriteFile(objectName+TmpSuffix, []byte{1, 2, 3})

	if err := l.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
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
