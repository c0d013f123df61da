package medium

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xtxerr/atmolog/internal/errors"
)

// Dir is a medium rooted at one directory. Object names map to files
// directly below the root.
type Dir struct {
	root string
	perm os.FileMode
}

var _ Medium = (*Dir)(nil)

// NewDir returns a medium rooted at root. The directory is not created;
// a missing root makes the medium unavailable.
func NewDir(root string) *Dir {
	return &Dir{root: root, perm: 0644}
}

// Root returns the root directory.
func (d *Dir) Root() string {
	return d.root
}

// Available reports whether the root exists and is a directory.
func (d *Dir) Available() bool {
	info, err := os.Stat(d.root)
	return err == nil && info.IsDir()
}

func (d *Dir) path(name string) string {
	return filepath.Join(d.root, filepath.Base(name))
}

// wrap maps os errors onto the medium error taxonomy.
func (d *Dir) wrap(op, name string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if !d.Available() {
			return &opError{op: op, name: name, err: errors.ErrStorageUnavailable}
		}
		return &opError{op: op, name: name, err: fmt.Errorf("%w: %v", errors.ErrNotFound, err)}
	case errors.Is(err, fs.ErrPermission):
		return &opError{op: op, name: name, err: fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)}
	default:
		return &opError{op: op, name: name, err: err}
	}
}

// Size returns the file size of name.
func (d *Dir) Size(name string) (int64, error) {
	info, err := os.Stat(d.path(name))
	if err != nil {
		return 0, d.wrap("size", name, err)
	}
	return info.Size(), nil
}

// Open opens name for random-access reads.
func (d *Dir) Open(name string) (Reader, error) {
	f, err := os.Open(d.path(name))
	if err != nil {
		return nil, d.wrap("open", name, err)
	}
	return f, nil
}

// Append appends data to name.
func (d *Dir) Append(name string, data []byte) error {
	f, err := os.OpenFile(d.path(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, d.perm)
	if err != nil {
		return d.wrap("append", name, err)
	}
	n, err := f.Write(data)
	if err == nil && n < len(data) {
		err = errors.ErrShortWrite
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return d.wrap("append", name, err)
}

// WriteAt writes data at off in name.
func (d *Dir) WriteAt(name string, data []byte, off int64) error {
	f, err := os.OpenFile(d.path(name), os.O_CREATE|os.O_WRONLY, d.perm)
	if err != nil {
		return d.wrap("write", name, err)
	}
	_, err = f.WriteAt(data, off)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return d.wrap("write", name, err)
}

// Truncate resizes name.
func (d *Dir) Truncate(name string, size int64) error {
	return d.wrap("truncate", name, os.Truncate(d.path(name), size))
}

// Create creates or truncates name.
func (d *Dir) Create(name string) (Writer, error) {
	f, err := os.OpenFile(d.path(name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, d.perm)
	if err != nil {
		return nil, d.wrap("create", name, err)
	}
	return f, nil
}

// ReadFile returns the contents of name.
func (d *Dir) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(d.path(name))
	if err != nil {
		return nil, d.wrap("read", name, err)
	}
	return data, nil
}

// WriteFile replaces name with data.
func (d *Dir) WriteFile(name string, data []byte) error {
	return d.wrap("write", name, os.WriteFile(d.path(name), data, d.perm))
}

// Remove deletes name. A missing file is not an error.
func (d *Dir) Remove(name string) error {
	err := os.Remove(d.path(name))
	if errors.Is(err, fs.ErrNotExist) && d.Available() {
		return nil
	}
	return d.wrap("remove", name, err)
}

// Rename replaces to with from.
func (d *Dir) Rename(from, to string) error {
	return d.wrap("rename", from, os.Rename(d.path(from), d.path(to)))
}

// Usage sums the sizes of regular files below the root.
func (d *Dir) Usage() (Usage, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return Usage{}, d.wrap("usage", "", err)
	}

	var u Usage
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		u.Objects++
		u.Bytes += info.Size()
	}
	return u, nil
}
