package hostfs

import (
	"errors"
	"io"
	"math"
	"os"
	"sync"

	"vnodefs/internal/vfs"
)

// Dir is a directory of the served tree.
type Dir struct {
	vfs.DirBase
	fs     *FS
	path   *SourcePath
	parent vfs.Node
}

func (d *Dir) GetAttr() (vfs.NodeAttr, error) {
	hostLogger.Trace("Getting attributes for directory: %q", d.path.String())
	return d.fs.attr(d.path)
}

// Parent returns the directory the node was looked up from. For the root
// it is the parent of the mount point.
func (d *Dir) Parent() vfs.Node {
	if d.path.IsRoot() {
		return d.fs.mountParent()
	}
	if d.parent != nil {
		return d.parent
	}
	return &Dir{fs: d.fs, path: NewSourcePath(d.path.String() + "/..")}
}

func (d *Dir) resolve(name string) (vfs.Node, error) {
	switch name {
	case "", ".":
		return d, nil
	case "..":
		if parent := d.Parent(); parent != nil {
			return parent, nil
		}
		return nil, vfs.ErrNotFound
	}
	return d.fs.nodeFor(d.path.Child(name), d)
}

func (d *Dir) Lookup(path string) (vfs.Node, error) {
	hostLogger.Debug("Looking up %q in host directory %q", path, d.path.String())
	name, rest, more := vfs.SplitPath(path)
	node, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	if more {
		return node.Lookup(rest)
	}
	return node, nil
}

func (d *Dir) ReadDir(start int, dirents []vfs.DirEntry) (int, error) {
	hostLogger.Debug("Reading host directory: %q", d.path.String())
	entries, err := os.ReadDir(d.path.FullPath(d.fs.sourceDir))
	if err != nil {
		hostLogger.Error("Error reading directory: %v", err)
		return 0, toVFSError(err)
	}

	if start < 0 {
		start = 0
	}
	// os.ReadDir returns entries sorted by name.
	n := 0
	for idx := start; n < len(dirents); idx++ {
		switch {
		case idx == 0:
			dirents[n] = vfs.NewDirEntry(".", vfs.TypeDir)
		case idx == 1:
			dirents[n] = vfs.NewDirEntry("..", vfs.TypeDir)
		case idx-2 < len(entries):
			entry := entries[idx-2]
			dirents[n] = vfs.NewDirEntry(entry.Name(), vfs.NodeTypeFromMode(entry.Type()))
		default:
			return n, nil
		}
		n++
	}
	return n, nil
}

// Create and Remove forward through sub-directories so that a request
// aimed at another filesystem via ".." still reaches it; anything that
// lands here is refused.
func (d *Dir) Create(path string, ty vfs.NodeType) error {
	name, rest, more := vfs.SplitPath(path)
	if more {
		node, err := d.resolve(name)
		if err != nil {
			return err
		}
		return node.Create(rest, ty)
	}
	if vfs.IsDotName(name) {
		return nil
	}
	hostLogger.Warn("Attempted to create %q in read-only host directory", path)
	return vfs.ErrPermissionDenied
}

func (d *Dir) Remove(path string) error {
	name, rest, more := vfs.SplitPath(path)
	if more {
		node, err := d.resolve(name)
		if err != nil {
			return err
		}
		return node.Remove(rest)
	}
	hostLogger.Warn("Attempted to remove %q in read-only host directory", path)
	return vfs.ErrPermissionDenied
}

func (d *Dir) Rename(string, string) error {
	return vfs.ErrPermissionDenied
}

// File is any non-directory node of the served tree. Between Open and the
// matching Release reads go through one host file handle.
type File struct {
	vfs.FileBase
	fs     *FS
	path   *SourcePath
	parent vfs.Node

	mu     sync.RWMutex
	handle *os.File
	opens  int
}

func (f *File) GetAttr() (vfs.NodeAttr, error) {
	hostLogger.Trace("Getting attributes for file: %q", f.path.String())
	return f.fs.attr(f.path)
}

func (f *File) Parent() vfs.Node {
	return f.parent
}

// openRegular opens the host file. Only regular files can be opened, so
// symlinks never lead outside the served directory.
func (f *File) openRegular() (*os.File, error) {
	full := f.path.FullPath(f.fs.sourceDir)
	info, err := os.Lstat(full)
	if err != nil {
		return nil, toVFSError(err)
	}
	if !info.Mode().IsRegular() {
		hostLogger.Warn("Refusing to read non-regular file %q", f.path.String())
		return nil, vfs.ErrPermissionDenied
	}

	file, err := os.Open(full)
	if err != nil {
		hostLogger.Error("Failed to open file: %v", err)
		return nil, toVFSError(err)
	}
	// The path may have been swapped for a link since Lstat.
	opened, err := file.Stat()
	if err != nil || !os.SameFile(info, opened) {
		file.Close()
		hostLogger.Warn("File %q changed while opening", f.path.String())
		return nil, vfs.ErrPermissionDenied
	}
	return file, nil
}

// Open keeps the host file open until the matching Release.
func (f *File) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handle == nil {
		file, err := f.openRegular()
		if err != nil {
			return err
		}
		f.handle = file
		hostLogger.Debug("Opened host file %q", f.path.String())
	}
	f.opens++
	return nil
}

func (f *File) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opens == 0 {
		return nil
	}
	f.opens--
	if f.opens > 0 {
		return nil
	}
	err := f.handle.Close()
	f.handle = nil
	hostLogger.Debug("Closed host file %q", f.path.String())
	return toVFSError(err)
}

// ReadAt reads from the open handle, or opens the file just for this read
// when the node was never opened.
func (f *File) ReadAt(offset uint64, buf []byte) (int, error) {
	if offset > math.MaxInt64 {
		return 0, nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	file := f.handle
	if file == nil {
		var err error
		if file, err = f.openRegular(); err != nil {
			return 0, err
		}
		defer file.Close()
	}

	n, err := file.ReadAt(buf, int64(offset))
	if err != nil && !errors.Is(err, io.EOF) {
		hostLogger.Error("Failed to read from file: %v", err)
		return n, toVFSError(err)
	}
	hostLogger.Trace("Read %d bytes from %q at offset %d", n, f.path.String(), offset)
	return n, nil
}

func (f *File) WriteAt(uint64, []byte) (int, error) {
	hostLogger.Warn("Attempted write access to read-only file: %q", f.path.String())
	return 0, vfs.ErrPermissionDenied
}

func (f *File) Truncate(uint64) error {
	return vfs.ErrPermissionDenied
}

func (f *File) Fsync() error {
	return nil
}
