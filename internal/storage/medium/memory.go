package medium

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/xtxerr/atmolog/internal/errors"
)

// Op names a medium operation for fault injection.
type Op string

const (
	OpSize     Op = "size"
	OpOpen     Op = "open"
	OpRead     Op = "read"
	OpAppend   Op = "append"
	OpWrite    Op = "write"
	OpTruncate Op = "truncate"
	OpCreate   Op = "create"
	OpRemove   Op = "remove"
	OpRename   Op = "rename"
)

// ErrInjected is returned by operations failed through FailAfter.
var ErrInjected = errors.New("injected fault")

type fault struct {
	op   Op
	name string
	skip int
}

// Memory is a volatile medium. It survives "reboots" as long as the same
// instance is reopened, which makes it suitable for crash tests.
type Memory struct {
	mu          sync.Mutex
	objects     map[string][]byte
	faults      []fault
	unavailable bool
}

var _ Medium = (*Memory)(nil)

// NewMemory returns an empty in-memory medium.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

// SetAvailable toggles availability.
func (m *Memory) SetAvailable(ok bool) {
	m.mu.Lock()
	m.unavailable = !ok
	m.mu.Unlock()
}

// FailAfter makes op on name fail after skip further successful calls.
// An empty name matches every object. Each fault fires once.
func (m *Memory) FailAfter(op Op, name string, skip int) {
	m.mu.Lock()
	m.faults = append(m.faults, fault{op: op, name: name, skip: skip})
	m.mu.Unlock()
}

// ClearFaults drops pending faults.
func (m *Memory) ClearFaults() {
	m.mu.Lock()
	m.faults = nil
	m.mu.Unlock()
}

// Snapshot returns a copy of every object.
func (m *Memory) Snapshot() map[string][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string][]byte, len(m.objects))
	for k, v := range m.objects {
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// Names returns the sorted object names.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.objects))
	for k := range m.objects {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// check must be called with mu held.
func (m *Memory) check(op Op, name string) error {
	if m.unavailable {
		return &opError{op: string(op), name: name, err: errors.ErrStorageUnavailable}
	}
	for i := range m.faults {
		f := &m.faults[i]
		if f.op != op || (f.name != "" && f.name != name) {
			continue
		}
		if f.skip > 0 {
			f.skip--
			continue
		}
		m.faults = append(m.faults[:i], m.faults[i+1:]...)
		return &opError{op: string(op), name: name, err: ErrInjected}
	}
	return nil
}

func notFound(op Op, name string) error {
	return &opError{op: string(op), name: name, err: fmt.Errorf("%w: %s", errors.ErrNotFound, name)}
}

// Available reports whether the medium is usable.
func (m *Memory) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unavailable
}

// Size returns the object size.
func (m *Memory) Size(name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpSize, name); err != nil {
		return 0, err
	}
	data, ok := m.objects[name]
	if !ok {
		return 0, notFound(OpSize, name)
	}
	return int64(len(data)), nil
}

// Open returns a reader over the live object.
func (m *Memory) Open(name string) (Reader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpOpen, name); err != nil {
		return nil, err
	}
	if _, ok := m.objects[name]; !ok {
		return nil, notFound(OpOpen, name)
	}
	return &memReader{m: m, name: name}, nil
}

// Append appends data to the object.
func (m *Memory) Append(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpAppend, name); err != nil {
		return err
	}
	m.objects[name] = append(m.objects[name], data...)
	return nil
}

// WriteAt writes data at off, zero-filling any gap.
func (m *Memory) WriteAt(name string, data []byte, off int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpWrite, name); err != nil {
		return err
	}
	m.writeAt(name, data, off)
	return nil
}

func (m *Memory) writeAt(name string, data []byte, off int64) {
	buf := m.objects[name]
	if end := off + int64(len(data)); end > int64(len(buf)) {
		grown := make([]byte, end)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[off:], data)
	m.objects[name] = buf
}

// Truncate resizes the object.
func (m *Memory) Truncate(name string, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpTruncate, name); err != nil {
		return err
	}
	buf, ok := m.objects[name]
	if !ok {
		return notFound(OpTruncate, name)
	}
	if size <= int64(len(buf)) {
		m.objects[name] = buf[:size:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, buf)
	m.objects[name] = grown
	return nil
}

// Create creates or truncates the object. Writes land immediately.
func (m *Memory) Create(name string) (Writer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpCreate, name); err != nil {
		return nil, err
	}
	m.objects[name] = []byte{}
	return &memWriter{m: m, name: name}, nil
}

// ReadFile returns a copy of the object.
func (m *Memory) ReadFile(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpRead, name); err != nil {
		return nil, err
	}
	data, ok := m.objects[name]
	if !ok {
		return nil, notFound(OpRead, name)
	}
	return append([]byte(nil), data...), nil
}

// WriteFile replaces the object.
func (m *Memory) WriteFile(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpWrite, name); err != nil {
		return err
	}
	m.objects[name] = append([]byte(nil), data...)
	return nil
}

// Remove deletes the object.
func (m *Memory) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpRemove, name); err != nil {
		return err
	}
	delete(m.objects, name)
	return nil
}

// Rename replaces to with from.
func (m *Memory) Rename(from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(OpRename, from); err != nil {
		return err
	}
	data, ok := m.objects[from]
	if !ok {
		return notFound(OpRename, from)
	}
	m.objects[to] = data
	delete(m.objects, from)
	return nil
}

// Usage sums object sizes.
func (m *Memory) Usage() (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return Usage{}, &opError{op: "usage", err: errors.ErrStorageUnavailable}
	}
	var u Usage
	for _, data := range m.objects {
		u.Objects++
		u.Bytes += int64(len(data))
	}
	return u, nil
}

type memReader struct {
	m    *Memory
	name string
}

func (r *memReader) ReadAt(p []byte, off int64) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if err := r.m.check(OpRead, r.name); err != nil {
		return 0, err
	}
	data, ok := r.m.objects[r.name]
	if !ok {
		return 0, notFound(OpRead, r.name)
	}
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *memReader) Close() error { return nil }

type memWriter struct {
	m      *Memory
	name   string
	closed bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write %s: writer closed", w.name)
	}
	w.m.mu.Lock()
	defer w.m.mu.Unlock()

	if err := w.m.check(OpWrite, w.name); err != nil {
		return 0, err
	}
	w.m.objects[w.name] = append(w.m.objects[w.name], p...)
	return len(p), nil
}

func (w *memWriter) Sync() error { return nil }

func (w *memWriter) Close() error {
	w.closed = true
	return nil
}
