// Package medium abstracts the block storage the log and aggregate objects
// live on.
//
// A Medium is a flat namespace of named objects. Dir backs objects with files
// in one directory, Memory keeps them in RAM and can inject faults, and Absent
// models a device without storage.
package medium

import (
	"io"

	"github.com/xtxerr/atmolog/internal/errors"
)

// Medium is a flat namespace of byte objects.
//
// Missing objects are reported with an error wrapping errors.ErrNotFound.
// When the medium itself is unusable every operation returns an error
// wrapping errors.ErrStorageUnavailable.
type Medium interface {
	// Available reports whether the medium can be used at all.
	Available() bool

	// Size returns the byte size of an object.
	Size(name string) (int64, error)

	// Open returns a random-access reader over an object.
	Open(name string) (Reader, error)

	// Append appends data to an object, creating it if absent.
	Append(name string, data []byte) error

	// WriteAt writes data at off, creating and extending the object as needed.
	WriteAt(name string, data []byte, off int64) error

	// Truncate sets the object size.
	Truncate(name string, size int64) error

	// Create creates or truncates an object and returns a sequential writer.
	Create(name string) (Writer, error)

	// ReadFile returns the whole object.
	ReadFile(name string) ([]byte, error)

	// WriteFile replaces the object with data.
	WriteFile(name string, data []byte) error

	// Remove deletes an object. Removing a missing object is not an error.
	Remove(name string) error

	// Rename atomically replaces to with from.
	Rename(from, to string) error

	// Usage reports how much of the medium is in use.
	Usage() (Usage, error)
}

// Reader is a random-access object reader.
type Reader interface {
	io.ReaderAt
	io.Closer
}

// Writer is a sequential object writer that can be flushed to the medium.
type Writer interface {
	io.Writer
	Sync() error
	io.Closer
}

// Usage describes occupied space.
type Usage struct {
	Objects int   `json:"objects"`
	Bytes   int64 `json:"bytes"`
}

// Exists reports whether name is present on m.
func Exists(m Medium, name string) bool {
	_, err := m.Size(name)
	return err == nil
}

// IsNotFound reports whether err means the object does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, errors.ErrNotFound)
}

// Absent is a medium that is never available.
type Absent struct{}

var _ Medium = Absent{}

func unavailable(op string) error {
	return &opError{op: op, err: errors.ErrStorageUnavailable}
}

func (Absent) Available() bool { return false }
func (Absent) Size(string) (int64, error) { return 0, unavailable("size") }
func (Absent) Open(string) (Reader, error) { return nil, unavailable("open") }
func (Absent) Append(string, []byte) error { return unavailable("append") }
func (Absent) WriteAt(string, []byte, int64) error { return unavailable("write") }
func (Absent) Truncate(string, int64) error { return unavailable("truncate") }
func (Absent) Create(string) (Writer, error) { return nil, unavailable("create") }
func (Absent) ReadFile(string) ([]byte, error) { return nil, unavailable("read") }
func (Absent) WriteFile(string, []byte) error { return unavailable("write") }
func (Absent) Remove(string) error { return unavailable("remove") }
func (Absent) Rename(string, string) error { return unavailable("rename") }
func (Absent) Usage() (Usage, error) { return Usage{}, unavailable("usage") }

// opError annotates a medium error with the failing operation and object.
type opError struct {
	op   string
	name string
	err  error
}

func (e *opError) Error() string {
	if e.name == "" {
		return "medium " + e.op + ": " + e.err.Error()
	}
	return "medium " + e.op + " " + e.name + ": " + e.err.Error()
}

func (e *opError) Unwrap() error { return e.err }
