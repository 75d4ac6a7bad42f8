// Package devfs implements a read-only filesystem of device nodes such as
// null, zero and urandom.
package devfs

import (
	"sync"

	"vnodefs/internal/logging"
	"vnodefs/internal/vfs"
)

var (
	fsLogger = logging.GetLogger().WithPrefix("devfs")
)

// FS is the device filesystem.
type FS struct {
	vfs.FileSystemBase

	parentOnce sync.Once
	parent     vfs.Node
	root       *DirNode
}

// New creates a device filesystem with an empty root directory.
func New() *FS {
	return &FS{root: NewDirNode(nil)}
}

// Mkdir creates a directory under the root.
func (f *FS) Mkdir(name string) *DirNode {
	return f.root.Mkdir(name)
}

// Add registers a node under the root.
func (f *FS) Add(name string, node vfs.Node) {
	f.root.Add(name, node)
}

// Mount links the root's ".." to the parent of the mount point. The first
// parent seen is kept for later mounts.
func (f *FS) Mount(path string, mountPoint vfs.Node) error {
	fsLogger.Info("Mounting device filesystem at %s", path)
	var parent vfs.Node
	if mountPoint != nil {
		parent = mountPoint.Parent()
	}
	if parent == nil {
		f.root.SetParent(nil)
		return nil
	}
	f.parentOnce.Do(func() { f.parent = parent })
	f.root.SetParent(f.parent)
	return nil
}

func (f *FS) RootDir() vfs.Node {
	return f.root
}

// RootDirNode returns the root with its concrete type.
func (f *FS) RootDirNode() *DirNode {
	return f.root
}
