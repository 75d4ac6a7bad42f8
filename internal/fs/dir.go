package fs

import (
	"context"
	"errors"
	"time"

	"vnodefs/internal/logging"
	"vnodefs/internal/vfs"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("dir")
)

// Dir represents a directory of the namespace, addressed by absolute path.
type Dir struct {
	fs   *FS
	path string
}

// Attr implements the Node interface, returning directory attributes.
func (d *Dir) Attr(_ context.Context, a *fuse.Attr) (err error) {
	defer d.fs.observe("getattr", time.Now(), &err)
	dirLogger.Trace("Getting attributes for directory: %q", d.path)

	attr, err := d.fs.table.Stat(d.path)
	if err != nil {
		return ToFuseError(err)
	}
	d.fs.fillAttr(attr, a)
	return nil
}

// node builds the FUSE node for a child path from its attributes.
func (d *Dir) node(path string, attr vfs.NodeAttr) fusefs.Node {
	if attr.IsDir() {
		return &Dir{fs: d.fs, path: path}
	}
	return &File{fs: d.fs, path: path}
}

// Lookup implements the NodeStringLookuper interface, finding a child node.
func (d *Dir) Lookup(_ context.Context, name string) (_ fusefs.Node, err error) {
	defer d.fs.observe("lookup", time.Now(), &err)
	dirLogger.Debug("Looking up %q in directory %q", name, d.path)

	childPath := vfs.Join(d.path, name)
	attr, err := d.fs.table.Stat(childPath)
	if err != nil {
		dirLogger.Debug("Path not found: %q: %v", childPath, err)
		return nil, ToFuseError(err)
	}
	return d.node(childPath, attr), nil
}

func direntType(ty vfs.NodeType) fuse.DirentType {
	switch ty {
	case vfs.TypeDir:
		return fuse.DT_Dir
	case vfs.TypeSymLink:
		return fuse.DT_Link
	case vfs.TypeFifo:
		return fuse.DT_FIFO
	case vfs.TypeSocket:
		return fuse.DT_Socket
	case vfs.TypeBlockDevice:
		return fuse.DT_Block
	default:
		// Character devices are presented as regular files.
		return fuse.DT_File
	}
}

// ReadDirAll implements the HandleReadDirAller interface, listing directory contents.
func (d *Dir) ReadDirAll(_ context.Context) (_ []fuse.Dirent, err error) {
	defer d.fs.observe("readdir", time.Now(), &err)
	dirLogger.Debug("Reading directory contents: %q", d.path)

	list, err := d.fs.table.ReadDirAll(d.path)
	if err != nil {
		return nil, ToFuseError(err)
	}

	entries := make([]fuse.Dirent, 0, len(list)+2)
	entries = append(entries, fuse.Dirent{Name: ".", Type: fuse.DT_Dir})
	entries = append(entries, fuse.Dirent{Name: "..", Type: fuse.DT_Dir})
	for _, e := range list {
		entries = append(entries, fuse.Dirent{Name: e.Name, Type: direntType(e.Type)})
	}

	dirLogger.Debug("Directory %q contains %d entries", d.path, len(entries))
	return entries, nil
}

// Mkdir implements the NodeMkdirer interface, creating a new directory.
func (d *Dir) Mkdir(_ context.Context, req *fuse.MkdirRequest) (_ fusefs.Node, err error) {
	defer d.fs.observe("mkdir", time.Now(), &err)
	dirLogger.Info("Creating new directory %q in %q", req.Name, d.path)

	newPath := vfs.Join(d.path, req.Name)
	if err := d.fs.table.Create(newPath, vfs.TypeDir); err != nil {
		dirLogger.Warn("Failed to create directory %q: %v", newPath, err)
		return nil, ToFuseError(err)
	}
	return &Dir{fs: d.fs, path: newPath}, nil
}

// Create implements the NodeCreater interface, creating and opening a file.
func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (_ fusefs.Node, _ fusefs.Handle, err error) {
	defer d.fs.observe("create", time.Now(), &err)
	dirLogger.Info("Creating new file %q in %q", req.Name, d.path)

	newPath := vfs.Join(d.path, req.Name)
	err = d.fs.table.Create(newPath, vfs.TypeFile)
	if err != nil && !(errors.Is(err, vfs.ErrAlreadyExists) && req.Flags&fuse.OpenExclusive == 0) {
		dirLogger.Warn("Failed to create file %q: %v", newPath, err)
		return nil, nil, ToFuseError(err)
	}

	file := &File{fs: d.fs, path: newPath}
	handle, err := file.open(req.Flags, &resp.OpenResponse)
	if err != nil {
		return nil, nil, err
	}
	if err := file.Attr(ctx, &resp.Attr); err != nil {
		return nil, nil, err
	}
	return file, handle, nil
}

// Remove implements the NodeRemover interface, removing a file or directory.
func (d *Dir) Remove(_ context.Context, req *fuse.RemoveRequest) (err error) {
	defer d.fs.observe("remove", time.Now(), &err)
	childPath := vfs.Join(d.path, req.Name)
	dirLogger.Info("Removing %q (isDir=%v)", childPath, req.Dir)

	attr, err := d.fs.table.Stat(childPath)
	if err != nil {
		return ToFuseError(err)
	}
	switch {
	case req.Dir && !attr.IsDir():
		return ToFuseError(vfs.ErrNotADirectory)
	case !req.Dir && attr.IsDir():
		return ToFuseError(vfs.ErrIsADirectory)
	}

	if err := d.fs.table.Remove(childPath); err != nil {
		dirLogger.Warn("Failed to remove %q: %v", childPath, err)
		return ToFuseError(err)
	}
	return nil
}

// Rename implements the NodeRenamer interface, renaming/moving a file or directory.
func (d *Dir) Rename(_ context.Context, req *fuse.RenameRequest, newDir fusefs.Node) (err error) {
	defer d.fs.observe("rename", time.Now(), &err)

	target, ok := newDir.(*Dir)
	if !ok {
		dirLogger.Error("Target is not a valid directory type")
		return ToFuseError(vfs.ErrInvalidInput)
	}

	oldPath := vfs.Join(d.path, req.OldName)
	newPath := vfs.Join(target.path, req.NewName)
	dirLogger.Info("Renaming %q to %q", oldPath, newPath)

	if err := d.fs.table.Rename(oldPath, newPath); err != nil {
		dirLogger.Warn("Rename failed: %v", err)
		return ToFuseError(err)
	}
	return nil
}
