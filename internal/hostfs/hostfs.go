// Package hostfs serves a host directory read-only.
package hostfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"vnodefs/internal/logging"
	"vnodefs/internal/vfs"

	"golang.org/x/sys/unix"
)

var (
	hostLogger = logging.GetLogger().WithPrefix("hostfs")
)

// FS exposes the tree under a host directory. Every mutation is refused.
type FS struct {
	vfs.FileSystemBase

	sourceDir string

	mu       sync.RWMutex
	parent   vfs.Node
	recorded vfs.Node
	once     sync.Once
}

// New creates a filesystem backed by sourceDir, which must be a readable
// directory.
func New(sourceDir string) (*FS, error) {
	abs, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source directory: %w", err)
	}
	if _, err := os.ReadDir(abs); err != nil {
		hostLogger.Error("Cannot read source directory: %v", err)
		return nil, fmt.Errorf("source directory not readable: %w", err)
	}
	hostLogger.Debug("Serving host directory %s", abs)
	return &FS{sourceDir: abs}, nil
}

// SourceDir returns the absolute host path being served.
func (f *FS) SourceDir() string {
	return f.sourceDir
}

// Mount records the parent of the mount point for ".." out of the root.
func (f *FS) Mount(path string, mountPoint vfs.Node) error {
	hostLogger.Info("Mounting host directory %s at %s", f.sourceDir, path)
	var parent vfs.Node
	if mountPoint != nil {
		parent = mountPoint.Parent()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if parent == nil {
		f.parent = nil
		return nil
	}
	f.once.Do(func() { f.recorded = parent })
	f.parent = f.recorded
	return nil
}

func (f *FS) mountParent() vfs.Node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.parent
}

// StatFS reports the host filesystem's usage.
func (f *FS) StatFS() (vfs.FileSystemInfo, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(f.sourceDir, &st); err != nil {
		return vfs.FileSystemInfo{}, toVFSError(err)
	}
	return vfs.FileSystemInfo{
		BlockSize:  uint32(st.Bsize),
		Blocks:     st.Blocks,
		BlocksFree: st.Bavail,
		Files:      st.Files,
		NameLen:    vfs.MaxNameLen,
	}, nil
}

func (f *FS) RootDir() vfs.Node {
	return &Dir{fs: f, path: NewSourcePath("")}
}

// nodeFor builds the node for path after checking what it is on disk.
func (f *FS) nodeFor(path *SourcePath, parent vfs.Node) (vfs.Node, error) {
	info, err := os.Lstat(path.FullPath(f.sourceDir))
	if err != nil {
		return nil, toVFSError(err)
	}
	if info.IsDir() {
		return &Dir{fs: f, path: path, parent: parent}, nil
	}
	return &File{fs: f, path: path, parent: parent}, nil
}

func (f *FS) attr(path *SourcePath) (vfs.NodeAttr, error) {
	info, err := os.Lstat(path.FullPath(f.sourceDir))
	if err != nil {
		return vfs.NodeAttr{}, toVFSError(err)
	}
	size := uint64(0)
	if info.Size() > 0 {
		size = uint64(info.Size())
	}
	return vfs.NewNodeAttr(
		vfs.PermFromMode(uint32(info.Mode().Perm())),
		vfs.NodeTypeFromMode(info.Mode()),
		size,
		(size+511)/512,
	), nil
}

// toVFSError maps host errors onto vfs sentinels.
func toVFSError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return vfs.ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return vfs.ErrPermissionDenied
	case errors.Is(err, unix.ENOTDIR):
		return vfs.ErrNotADirectory
	case errors.Is(err, unix.EISDIR):
		return vfs.ErrIsADirectory
	default:
		return err
	}
}
