package ramfs

import (
	"strings"
	"sync"
	"sync/atomic"

	"vnodefs/internal/logging"
	"vnodefs/internal/vfs"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("ramfs-dir")

	nextDirID atomic.Uint64
)

// DirNode is a directory in the RAM filesystem.
type DirNode struct {
	vfs.DirBase

	id    uint64
	usage *usage

	pmu    sync.RWMutex
	parent vfs.Node

	mu       sync.RWMutex
	children *vfs.Children
	count    atomic.Int64

	// removed is set, with mu held, once the directory is unlinked.
	removed atomic.Bool
}

func newDirNode(parent vfs.Node, u *usage) *DirNode {
	return &DirNode{
		id:       nextDirID.Add(1),
		usage:    u,
		parent:   parent,
		children: vfs.NewChildren(),
	}
}

// SetParent replaces the directory's parent.
func (d *DirNode) SetParent(parent vfs.Node) {
	d.pmu.Lock()
	defer d.pmu.Unlock()
	d.parent = parent
}

func (d *DirNode) Parent() vfs.Node {
	d.pmu.RLock()
	defer d.pmu.RUnlock()
	return d.parent
}

// Entries returns the names of all children in order.
func (d *DirNode) Entries() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.children.Names()
}

// Exists reports whether a child called name exists.
func (d *DirNode) Exists(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.children.Get(name)
	return ok
}

// Len returns the number of children.
func (d *DirNode) Len() int {
	return int(d.count.Load())
}

// CreateNode adds a file or directory called name.
func (d *DirNode) CreateNode(name string, ty vfs.NodeType) error {
	if vfs.IsDotName(name) || strings.Contains(name, "/") {
		return vfs.ErrInvalidInput
	}
	if len(name) > vfs.MaxNameLen {
		return vfs.ErrNameTooLong
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.removed.Load() {
		return vfs.ErrNotFound
	}
	if _, ok := d.children.Get(name); ok {
		dirLogger.Error("AlreadyExists %s", name)
		return vfs.ErrAlreadyExists
	}

	var node vfs.Node
	switch ty {
	case vfs.TypeFile:
		node = newFileNode(d.usage)
	case vfs.TypeDir:
		node = newDirNode(d, d.usage)
	default:
		return vfs.ErrUnsupported
	}

	d.children.Set(name, node)
	d.count.Store(int64(d.children.Len()))
	d.usage.nodes.Add(1)
	return nil
}

// RemoveNode deletes the child called name. Directories must be empty.
func (d *DirNode) RemoveNode(name string) error {
	d.usage.renameMu.Lock()
	defer d.usage.renameMu.Unlock()

	if d.removed.Load() {
		return vfs.ErrNotFound
	}
	d.mu.RLock()
	node, ok := d.children.Get(name)
	d.mu.RUnlock()
	if !ok {
		return vfs.ErrNotFound
	}

	// The binding of name cannot change while renameMu is held: only
	// CreateNode runs concurrently, and it never replaces an entry.
	if dir, isDir := node.(*DirNode); isDir {
		unlock := lockPair(d, dir)
		defer unlock()
		if dir.children.Len() > 0 {
			return vfs.ErrDirectoryNotEmpty
		}
		dir.removed.Store(true)
	} else {
		d.mu.Lock()
		defer d.mu.Unlock()
	}

	d.children.Delete(name)
	d.count.Store(int64(d.children.Len()))
	d.usage.nodes.Add(-1)
	if file, isFile := node.(*FileNode); isFile {
		d.usage.shrink(file.detach())
	}
	return nil
}

func (d *DirNode) GetAttr() (vfs.NodeAttr, error) {
	return vfs.NewDirAttr(4096, 0), nil
}

// resolve maps one path component onto a node.
func (d *DirNode) resolve(name string) (vfs.Node, error) {
	switch name {
	case "", ".":
		return d, nil
	case "..":
		if parent := d.Parent(); parent != nil {
			return parent, nil
		}
		return nil, vfs.ErrNotFound
	}

	d.mu.RLock()
	node, ok := d.children.Get(name)
	d.mu.RUnlock()
	if !ok {
		return nil, vfs.ErrNotFound
	}
	return node, nil
}

func (d *DirNode) Lookup(path string) (vfs.Node, error) {
	dirLogger.Trace("Looking up %q", path)
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

func (d *DirNode) ReadDir(start int, dirents []vfs.DirEntry) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return vfs.FillDirEntries(d.children, start, dirents, vfs.TypeOf), nil
}

func (d *DirNode) Create(path string, ty vfs.NodeType) error {
	dirLogger.Debug("create %s at ramfs: %s", ty, path)
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
	return d.CreateNode(name, ty)
}

func (d *DirNode) Remove(path string) error {
	dirLogger.Debug("remove at ramfs: %s", path)
	name, rest, more := vfs.SplitPath(path)
	if more {
		node, err := d.resolve(name)
		if err != nil {
			return err
		}
		return node.Remove(rest)
	}
	if vfs.IsDotName(name) {
		return vfs.ErrInvalidInput
	}
	return d.RemoveNode(name)
}
