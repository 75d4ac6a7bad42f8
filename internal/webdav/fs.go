package webdav

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"sync"
	"time"

	"vnodefs/internal/metrics"
	"vnodefs/internal/mount"
	"vnodefs/internal/vfs"

	"golang.org/x/net/webdav"
)

// webdavFS adapts a mount table to webdav.FileSystem
type webdavFS struct {
	table   *mount.Table
	metrics *metrics.Metrics
	started time.Time
}

func (wfs *webdavFS) observe(op string, start time.Time, err *error) {
	wfs.metrics.Observe(metrics.FrontendWebDAV, op, start, *err)
}

func (wfs *webdavFS) Mkdir(_ context.Context, name string, _ os.FileMode) (err error) {
	defer wfs.observe("mkdir", time.Now(), &err)
	name = cleanPath(name)
	return toOSError("mkdir", name, wfs.table.Create(name, vfs.TypeDir))
}

func (wfs *webdavFS) OpenFile(_ context.Context, name string, flag int, _ os.FileMode) (_ webdav.File, err error) {
	defer wfs.observe("open", time.Now(), &err)
	name = cleanPath(name)

	if flag&os.O_CREATE != 0 {
		err := wfs.table.Create(name, vfs.TypeFile)
		switch {
		case err == nil:
		case errors.Is(err, vfs.ErrAlreadyExists) && flag&os.O_EXCL == 0:
		default:
			return nil, toOSError("open", name, err)
		}
	}

	node, err := wfs.table.Lookup(name)
	if err != nil {
		return nil, toOSError("open", name, err)
	}
	if err := node.Open(); err != nil {
		return nil, toOSError("open", name, err)
	}
	writable := flag&(os.O_WRONLY|os.O_RDWR) != 0
	if writable && flag&os.O_TRUNC != 0 {
		if err := node.Truncate(0); err != nil {
			_ = node.Release()
			return nil, toOSError("open", name, err)
		}
	}

	f := &webdavFile{fs: wfs, path: name, node: node}
	if flag&os.O_APPEND != 0 {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			_ = node.Release()
			return nil, err
		}
	}
	wfs.metrics.HandleOpened()
	return f, nil
}

// RemoveAll removes name and everything below it.
func (wfs *webdavFS) RemoveAll(_ context.Context, name string) (err error) {
	defer wfs.observe("remove", time.Now(), &err)
	name = cleanPath(name)
	return wfs.removeAll(name)
}

func (wfs *webdavFS) removeAll(name string) error {
	attr, err := wfs.table.Stat(name)
	if err != nil {
		return toOSError("remove", name, err)
	}
	if attr.IsDir() {
		children, err := wfs.table.ReadDirAll(name)
		if err != nil {
			return toOSError("remove", name, err)
		}
		for _, child := range children {
			if err := wfs.removeAll(vfs.Join(name, child.Name)); err != nil {
				return err
			}
		}
	}
	davLogger.Debug("Removing %s", name)
	return toOSError("remove", name, wfs.table.Remove(name))
}

func (wfs *webdavFS) Rename(_ context.Context, oldName, newName string) (err error) {
	defer wfs.observe("rename", time.Now(), &err)
	oldName, newName = cleanPath(oldName), cleanPath(newName)
	return toOSError("rename", oldName, wfs.table.Rename(oldName, newName))
}

func (wfs *webdavFS) Stat(_ context.Context, name string) (_ os.FileInfo, err error) {
	defer wfs.observe("getattr", time.Now(), &err)
	name = cleanPath(name)
	attr, err := wfs.table.Stat(name)
	if err != nil {
		return nil, toOSError("stat", name, err)
	}
	return wfs.fileInfo(name, attr), nil
}

func (wfs *webdavFS) fileInfo(name string, attr vfs.NodeAttr) os.FileInfo {
	return &fileInfo{name: path.Base(name), attr: attr, modTime: wfs.started}
}

// webdavFile adapts a vfs.Node to webdav.File
type webdavFile struct {
	mu     sync.Mutex
	fs     *webdavFS
	path   string
	node   vfs.Node
	pos    int64
	closed bool

	// For directory listing
	dirEntries []os.FileInfo
	dirPos     int
}

func (f *webdavFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return os.ErrClosed
	}
	f.closed = true
	f.fs.metrics.HandleClosed()
	return toOSError("close", f.path, f.node.Release())
}

func (f *webdavFile) Read(p []byte) (n int, err error) {
	defer f.fs.observe("read", time.Now(), &err)
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err = f.node.ReadAt(uint64(f.pos), p)
	if err != nil {
		return n, toOSError("read", f.path, err)
	}
	f.pos += int64(n)
	f.fs.metrics.AddRead(n)
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (f *webdavFile) Write(p []byte) (n int, err error) {
	defer f.fs.observe("write", time.Now(), &err)
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err = f.node.WriteAt(uint64(f.pos), p)
	f.pos += int64(n)
	f.fs.metrics.AddWritten(n)
	return n, toOSError("write", f.path, err)
}

func (f *webdavFile) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		attr, err := f.node.GetAttr()
		if err != nil {
			return 0, toOSError("seek", f.path, err)
		}
		base = int64(attr.Size)
	default:
		return 0, toOSError("seek", f.path, vfs.ErrInvalidInput)
	}
	if base+offset < 0 {
		return 0, toOSError("seek", f.path, vfs.ErrInvalidInput)
	}
	f.pos = base + offset
	return f.pos, nil
}

func (f *webdavFile) Readdir(count int) ([]os.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Load directory entries on first call
	if f.dirEntries == nil {
		entries, err := mount.ReadDirAll(f.node)
		if err != nil {
			return nil, toOSError("readdir", f.path, err)
		}
		f.dirEntries = make([]os.FileInfo, 0, len(entries))
		for _, e := range entries {
			child := vfs.Join(f.path, e.Name)
			attr, err := f.fs.table.Stat(child)
			if err != nil {
				davLogger.Debug("Skipping %s: %v", child, err)
				continue
			}
			f.dirEntries = append(f.dirEntries, f.fs.fileInfo(child, attr))
		}
	}

	if count <= 0 {
		entries := f.dirEntries[f.dirPos:]
		f.dirPos = len(f.dirEntries)
		return entries, nil
	}
	if f.dirPos >= len(f.dirEntries) {
		return nil, io.EOF
	}

	end := f.dirPos + count
	if end > len(f.dirEntries) {
		end = len(f.dirEntries)
	}
	entries := f.dirEntries[f.dirPos:end]
	f.dirPos = end
	return entries, nil
}

func (f *webdavFile) Stat() (os.FileInfo, error) {
	attr, err := f.node.GetAttr()
	if err != nil {
		return nil, toOSError("stat", f.path, err)
	}
	return f.fs.fileInfo(f.path, attr), nil
}

func cleanPath(p string) string {
	return vfs.Canonicalize("/" + p)
}

// fileInfo describes a node for the WebDAV handler.
type fileInfo struct {
	name    string
	attr    vfs.NodeAttr
	modTime time.Time
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return int64(fi.attr.Size) }
func (fi *fileInfo) Mode() fs.FileMode  { return fi.attr.FileMode() }
func (fi *fileInfo) ModTime() time.Time { return fi.modTime }
func (fi *fileInfo) IsDir() bool        { return fi.attr.IsDir() }
func (fi *fileInfo) Sys() interface{}   { return fi.attr }
