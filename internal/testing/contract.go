package testing

import (
	"testing"

	"github.com/xtxerr/atmolog/internal/errors"
	"github.com/xtxerr/atmolog/internal/storage/medium"
	"github.com/xtxerr/atmolog/internal/storage/types"
)

// LogOpener opens a log of the given capacity on m. Reopening on the same
// medium must observe previously persisted records.
type LogOpener func(t *testing.T, m medium.Medium, capacity int) types.Log

// RunLogContract checks the behavior every log layout must share.
func RunLogContract(t *testing.T, open LogOpener) {
	t.Run("Empty", func(t *testing.T) {
		l := open(t, medium.NewMemory(), 3)
		if l.Len() != 0 {
			t.Errorf("expected empty log, got %d records", l.Len())
		}
		if got := Collect(t, l.Cursor(0)); len(got) != 0 {
			t.Errorf("expected no records, got %v", got)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		l := open(t, medium.NewMemory(), 10)
		want := []types.Reading{
			{Humidity: 45.25, Temperature: 21.5, Pressure: 1013.25, AgeMinutes: 7},
			{Humidity: 0, Temperature: -12.75, Pressure: 870.5, AgeMinutes: 8},
		}
		AppendAll(t, l, want)

		if got := Collect(t, l.Cursor(0)); !EqualReadings(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("CapacityInvariant", func(t *testing.T) {
		const capacity = 3
		l := open(t, medium.NewMemory(), capacity)

		for i := 0; i < 10; i++ {
			evicted, err := l.Append(Reading(float32(i)))
			if err != nil {
				t.Fatalf("append %d: %v", i, err)
			}
			if evicted != (i >= capacity) {
				t.Errorf("append %d: expected evicted=%v, got %v", i, i >= capacity, evicted)
			}
			if l.Len() > capacity {
				t.Fatalf("append %d: length %d exceeds capacity", i, l.Len())
			}
		}
		if l.Len() != capacity {
			t.Errorf("expected %d records, got %d", capacity, l.Len())
		}
	})

	t.Run("EvictsOldestInOrder", func(t *testing.T) {
		l := open(t, medium.NewMemory(), 3)
		AppendAll(t, l, []types.Reading{
			{Humidity: 40, Temperature: 20, Pressure: 1000},
			{Humidity: 41, Temperature: 21, Pressure: 1001},
			{Humidity: 42, Temperature: 22, Pressure: 1002},
			{Humidity: 43, Temperature: 23, Pressure: 1003},
		})

		got := Collect(t, l.Cursor(0))
		if len(got) != 3 {
			t.Fatalf("expected 3 records, got %d", len(got))
		}
		want := types.Reading{Humidity: 41, Temperature: 21, Pressure: 1001}
		if got[0] != want {
			t.Errorf("expected oldest %v, got %v", want, got[0])
		}
		assertHumidities(t, got, 41, 42, 43)
	})

	t.Run("WrapsManyTimes", func(t *testing.T) {
		l := open(t, medium.NewMemory(), 4)
		AppendAll(t, l, Sequence(0, 23))
		assertHumidities(t, Collect(t, l.Cursor(0)), 19, 20, 21, 22)
	})

	t.Run("CursorIndexesAndSeek", func(t *testing.T) {
		l := open(t, medium.NewMemory(), 5)
		AppendAll(t, l, Sequence(10, 7)) // survivors 12..16

		idx := CollectIndexes(t, l.Cursor(3))
		if len(idx) != 2 || idx[0] != 3 || idx[1] != 4 {
			t.Errorf("expected indexes [3 4], got %v", idx)
		}

		c := l.Cursor(0)
		defer c.Close()
		if c.Len() != 5 {
			t.Errorf("expected cursor length 5, got %d", c.Len())
		}
		c.Seek(4)
		if !c.Next() || c.Reading().Humidity != 16 || c.Index() != 4 {
			t.Errorf("seek(4): expected humidity 16 at 4, got %v at %d", c.Reading(), c.Index())
		}
		c.Seek(1)
		if !c.Next() || c.Reading().Humidity != 13 {
			t.Errorf("seek(1): expected humidity 13, got %v", c.Reading())
		}
		c.Seek(5)
		if c.Next() {
			t.Error("seek past end should yield nothing")
		}
	})

	t.Run("CursorIsRestartable", func(t *testing.T) {
		l := open(t, medium.NewMemory(), 5)
		AppendAll(t, l, Sequence(1, 3))

		first := Collect(t, l.Cursor(0))
		second := Collect(t, l.Cursor(0))
		if !EqualReadings(first, second) {
			t.Errorf("expected identical scans, got %v and %v", first, second)
		}
	})

	t.Run("PersistsAcrossReopen", func(t *testing.T) {
		m := medium.NewMemory()
		l := open(t, m, 3)
		AppendAll(t, l, Sequence(1, 5))
		l.Close()

		l = open(t, m, 3)
		if l.Len() != 3 {
			t.Fatalf("expected 3 records after reopen, got %d", l.Len())
		}
		assertHumidities(t, Collect(t, l.Cursor(0)), 3, 4, 5)

		AppendAll(t, l, Sequence(6, 1))
		assertHumidities(t, Collect(t, l.Cursor(0)), 4, 5, 6)
	})

	t.Run("ClearIsIdempotent", func(t *testing.T) {
		m := medium.NewMemory()
		l := open(t, m, 3)
		AppendAll(t, l, Sequence(1, 10))

		for i := 0; i < 2; i++ {
			if err := l.Clear(); err != nil {
				t.Fatalf("clear %d: %v", i, err)
			}
			if l.Len() != 0 {
				t.Errorf("clear %d: expected empty log, got %d", i, l.Len())
			}
		}

		l = open(t, m, 3)
		if l.Len() != 0 {
			t.Errorf("expected empty log after reopen, got %d", l.Len())
		}
		AppendAll(t, l, Sequence(7, 1))
		assertHumidities(t, Collect(t, l.Cursor(0)), 7)
	})

	t.Run("StorageAbsent", func(t *testing.T) {
		l := open(t, medium.Absent{}, 3)

		_, err := l.Append(Reading(1))
		if !errors.Is(err, errors.ErrStorageUnavailable) {
			t.Errorf("expected ErrStorageUnavailable, got %v", err)
		}
		if l.Len() != 0 {
			t.Errorf("expected empty log, got %d", l.Len())
		}
		if got := Collect(t, l.Cursor(0)); len(got) != 0 {
			t.Errorf("expected no records, got %v", got)
		}
	})

	t.Run("FailedAppendKeepsLogValid", func(t *testing.T) {
		for _, fill := range []int{2, 3} {
			m := medium.NewMemory()
			l := open(t, m, 3)
			AppendAll(t, l, Sequence(1, fill))
			before := Collect(t, l.Cursor(0))

			for _, op := range []medium.Op{medium.OpAppend, medium.OpWrite, medium.OpCreate, medium.OpRemove} {
				m.FailAfter(op, "", 0)
			}
			if _, err := l.Append(Reading(99)); err == nil {
				t.Fatalf("fill %d: expected append error with faults injected", fill)
			}
			m.ClearFaults()

			if got := Collect(t, l.Cursor(0)); !EqualReadings(got, before) {
				t.Errorf("fill %d: expected %v after failed append, got %v", fill, before, got)
			}

			l = open(t, m, 3)
			if got := Collect(t, l.Cursor(0)); !EqualReadings(got, before) {
				t.Errorf("fill %d: expected %v after reopen, got %v", fill, before, got)
			}
		}
	})

	t.Run("CapacityLowered", func(t *testing.T) {
		m := medium.NewMemory()
		l := open(t, m, 5)
		AppendAll(t, l, Sequence(1, 7)) // 3..7
		l.Close()

		l = open(t, m, 3)
		if l.Len() != 3 {
			t.Fatalf("expected 3 records, got %d", l.Len())
		}
		assertHumidities(t, Collect(t, l.Cursor(0)), 5, 6, 7)

		AppendAll(t, l, Sequence(8, 1))
		assertHumidities(t, Collect(t, l.Cursor(0)), 6, 7, 8)
	})

	t.Run("CapacityRaised", func(t *testing.T) {
		m := medium.NewMemory()
		l := open(t, m, 3)
		AppendAll(t, l, Sequence(1, 5)) // 3..5
		l.Close()

		l = open(t, m, 5)
		assertHumidities(t, Collect(t, l.Cursor(0)), 3, 4, 5)

		AppendAll(t, l, Sequence(6, 3))
		assertHumidities(t, Collect(t, l.Cursor(0)), 4, 5, 6, 7, 8)
	})
}

func assertHumidities(t *testing.T, rs []types.Reading, want ...float32) {
	t.Helper()
	got := Humidities(rs)
	if len(got) != len(want) {
		t.Errorf("expected humidities %v, got %v", want, got)
		return
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected humidities %v, got %v", want, got)
			return
		}
	}
}
