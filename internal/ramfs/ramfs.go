// Package ramfs implements a writable filesystem that keeps every file and
// directory in memory.
package ramfs

import (
	"sync"
	"sync/atomic"

	"vnodefs/internal/logging"
	"vnodefs/internal/vfs"
)

var (
	fsLogger = logging.GetLogger().WithPrefix("ramfs")
)

const (
	// BlockSize is the unit StatFS reports in.
	BlockSize = 4096

	// MaxFileSize caps a single file regardless of the filesystem limit.
	MaxFileSize = 1 << 34
)

// usage is shared by every node of one filesystem.
type usage struct {
	limit uint64 // 0 means unlimited
	bytes atomic.Uint64
	nodes atomic.Int64

	// renameMu serialises renames, removals and Format, the only
	// operations that hold more than one directory lock.
	renameMu sync.Mutex
}

func (u *usage) grow(n uint64) error {
	for {
		cur := u.bytes.Load()
		if u.limit > 0 && cur+n > u.limit {
			return vfs.ErrNoSpace
		}
		if u.bytes.CompareAndSwap(cur, cur+n) {
			return nil
		}
	}
}

func (u *usage) shrink(n uint64) {
	for {
		cur := u.bytes.Load()
		next := uint64(0)
		if cur > n {
			next = cur - n
		}
		if u.bytes.CompareAndSwap(cur, next) {
			return
		}
	}
}

// FS is an in-memory filesystem.
type FS struct {
	vfs.FileSystemBase

	parentOnce sync.Once
	parent     vfs.Node
	usage      *usage
	root       *DirNode
}

// New creates an empty filesystem with no size limit.
func New() *FS {
	return NewWithLimit(0)
}

// NewWithLimit creates an empty filesystem whose files may hold at most
// limit bytes in total. A zero limit means unlimited.
func NewWithLimit(limit uint64) *FS {
	u := &usage{limit: limit}
	return &FS{
		usage: u,
		root:  newDirNode(nil, u),
	}
}

// RootDirNode returns the root with its concrete type.
func (f *FS) RootDirNode() *DirNode {
	return f.root
}

func (f *FS) RootDir() vfs.Node {
	return f.root
}

// Mount links the root's ".." to the parent of the mount point. The first
// parent seen is kept for later mounts.
func (f *FS) Mount(path string, mountPoint vfs.Node) error {
	fsLogger.Info("Mounting RAM filesystem at %s", path)
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

// Format drops every node below the root.
func (f *FS) Format() error {
	fsLogger.Info("Formatting RAM filesystem")
	f.usage.renameMu.Lock()
	defer f.usage.renameMu.Unlock()

	f.root.mu.Lock()
	f.root.children.Range(0, func(_ string, node vfs.Node) bool {
		detach(node)
		return true
	})
	f.root.children.Clear()
	f.root.count.Store(0)
	f.root.mu.Unlock()

	f.usage.bytes.Store(0)
	f.usage.nodes.Store(0)
	return nil
}

// StatFS reports usage in BlockSize units. Without a limit the free count
// is zero and the total equals what is in use.
func (f *FS) StatFS() (vfs.FileSystemInfo, error) {
	used := (f.usage.bytes.Load() + BlockSize - 1) / BlockSize
	info := vfs.FileSystemInfo{
		BlockSize: BlockSize,
		Blocks:    used,
		Files:     uint64(f.usage.nodes.Load()) + 1,
		NameLen:   vfs.MaxNameLen,
	}
	if f.usage.limit > 0 {
		info.Blocks = f.usage.limit / BlockSize
		if info.Blocks > used {
			info.BlocksFree = info.Blocks - used
		}
	}
	return info, nil
}

// UsedBytes returns the total size of all files.
func (f *FS) UsedBytes() uint64 {
	return f.usage.bytes.Load()
}

// detach stops a removed subtree from counting against the filesystem.
func detach(node vfs.Node) {
	switch n := node.(type) {
	case *FileNode:
		n.detach()
	case *DirNode:
		n.mu.RLock()
		n.removed.Store(true)
		n.children.Range(0, func(_ string, child vfs.Node) bool {
			detach(child)
			return true
		})
		n.mu.RUnlock()
	}
}
