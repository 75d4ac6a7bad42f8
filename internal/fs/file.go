package fs

import (
	"context"
	"sync"
	"time"

	"vnodefs/internal/logging"
	"vnodefs/internal/vfs"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	fileLogger = logging.GetLogger().WithPrefix("file")
)

// File represents a file or device of the namespace.
type File struct {
	fs   *FS
	path string
}

// Attr implements the Node interface, returning the file's attributes.
func (f *File) Attr(_ context.Context, a *fuse.Attr) (err error) {
	defer f.fs.observe("getattr", time.Now(), &err)
	fileLogger.Trace("Getting attributes for file: %q", f.path)

	attr, err := f.fs.table.Stat(f.path)
	if err != nil {
		return ToFuseError(err)
	}
	f.fs.fillAttr(attr, a)

	fileLogger.Trace("File attributes: mode=%v, size=%d", a.Mode, a.Size)
	return nil
}

// Open implements the NodeOpener interface.
func (f *File) Open(_ context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (_ fusefs.Handle, err error) {
	defer f.fs.observe("open", time.Now(), &err)
	fileLogger.Debug("Opening file %q with flags %v", f.path, req.Flags)
	return f.open(req.Flags, resp)
}

func (f *File) open(flags fuse.OpenFlags, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	node, err := f.fs.table.Lookup(f.path)
	if err != nil {
		return nil, ToFuseError(err)
	}
	attr, err := node.GetAttr()
	if err != nil {
		return nil, ToFuseError(err)
	}
	if err := node.Open(); err != nil {
		fileLogger.Error("Failed to open %q: %v", f.path, err)
		return nil, ToFuseError(err)
	}

	if flags&fuse.OpenTruncate != 0 && !flags.IsReadOnly() {
		if err := node.Truncate(0); err != nil {
			fileLogger.Warn("Failed to truncate %q on open: %v", f.path, err)
			_ = node.Release()
			return nil, ToFuseError(err)
		}
	}

	// Devices report no size, so reads must bypass the page cache.
	if attr.Type.IsCharDevice() {
		resp.Flags |= fuse.OpenDirectIO
	}

	f.fs.metrics.HandleOpened()
	fileLogger.Debug("Successfully opened file %q", f.path)
	return &FileHandle{fs: f.fs, path: f.path, node: node}, nil
}

// Setattr implements the NodeSetattrer interface. Only size changes are
// applied; other attributes are accepted and ignored.
func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) (err error) {
	defer f.fs.observe("setattr", time.Now(), &err)

	if req.Valid.Size() {
		fileLogger.Debug("Truncating %q to %d bytes", f.path, req.Size)
		node, err := f.fs.table.Lookup(f.path)
		if err != nil {
			return ToFuseError(err)
		}
		if err := node.Truncate(req.Size); err != nil {
			return ToFuseError(err)
		}
	}
	return f.Attr(ctx, &resp.Attr)
}

// Fsync implements the NodeFsyncer interface.
func (f *File) Fsync(_ context.Context, _ *fuse.FsyncRequest) (err error) {
	defer f.fs.observe("fsync", time.Now(), &err)

	node, err := f.fs.table.Lookup(f.path)
	if err != nil {
		return ToFuseError(err)
	}
	return ToFuseError(node.Fsync())
}

// FileHandle represents an open file. It keeps the node it was opened on,
// so it stays usable after the path is renamed or removed.
type FileHandle struct {
	fs   *FS
	path string // For logging purposes
	node vfs.Node
	mu   sync.Mutex
	done bool
}

// Read implements the HandleReader interface, reading data from the node.
func (fh *FileHandle) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) (err error) {
	defer fh.fs.observe("read", time.Now(), &err)
	fileLogger.Trace("Reading %d bytes from file %q at offset %d", req.Size, fh.path, req.Offset)

	buf := make([]byte, req.Size)
	n, err := fh.node.ReadAt(safeInt64ToUint64(req.Offset), buf)
	if err != nil {
		fileLogger.Error("Failed to read from file: %v", err)
		return ToFuseError(err)
	}

	resp.Data = buf[:n]
	fh.fs.metrics.AddRead(n)
	fileLogger.Trace("Successfully read %d bytes", n)
	return nil
}

// Write implements the HandleWriter interface, writing data to the node.
func (fh *FileHandle) Write(_ context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) (err error) {
	defer fh.fs.observe("write", time.Now(), &err)
	fileLogger.Trace("Writing %d bytes to file %q at offset %d", len(req.Data), fh.path, req.Offset)

	n, err := fh.node.WriteAt(safeInt64ToUint64(req.Offset), req.Data)
	if err != nil {
		fileLogger.Warn("Failed to write to file %q: %v", fh.path, err)
		return ToFuseError(err)
	}

	resp.Size = n
	fh.fs.metrics.AddWritten(n)
	return nil
}

// Flush implements the HandleFlusher interface. Writes are applied
// immediately, so there is nothing to flush.
func (fh *FileHandle) Flush(context.Context, *fuse.FlushRequest) error {
	return nil
}

// Release implements the HandleReleaser interface, closing the file handle.
func (fh *FileHandle) Release(_ context.Context, _ *fuse.ReleaseRequest) error {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	if fh.done {
		return nil
	}
	fh.done = true

	fileLogger.Debug("Closing file %q", fh.path)
	fh.fs.metrics.HandleClosed()
	return ToFuseError(fh.node.Release())
}
