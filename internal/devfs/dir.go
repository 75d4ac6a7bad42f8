package devfs

import (
	"sync"

	"vnodefs/internal/logging"
	"vnodefs/internal/vfs"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("devfs")
)

// DirNode is a directory in the device filesystem. Its children are fixed
// at build time through Mkdir and Add; the filesystem interface cannot
// create or remove entries.
type DirNode struct {
	vfs.DirBase

	mu       sync.RWMutex
	parent   vfs.Node
	children *vfs.Children
}

// NewDirNode creates an empty directory. parent may be nil.
func NewDirNode(parent vfs.Node) *DirNode {
	return &DirNode{
		parent:   parent,
		children: vfs.NewChildren(),
	}
}

// SetParent replaces the directory's parent.
func (d *DirNode) SetParent(parent vfs.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parent = parent
}

// Mkdir creates a subdirectory, replacing any entry with the same name.
func (d *DirNode) Mkdir(name string) *DirNode {
	dirLogger.Debug("Creating device directory %q", name)
	child := NewDirNode(d)
	d.mu.Lock()
	d.children.Set(name, child)
	d.mu.Unlock()
	return child
}

// Add registers node under name, replacing any entry with the same name.
func (d *DirNode) Add(name string, node vfs.Node) {
	dirLogger.Debug("Adding device node %q", name)
	d.mu.Lock()
	d.children.Set(name, node)
	d.mu.Unlock()
}

func (d *DirNode) GetAttr() (vfs.NodeAttr, error) {
	return vfs.NewDirAttr(4096, 0), nil
}

func (d *DirNode) Parent() vfs.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.parent
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
	dirLogger.Debug("Create %q (%s) in device directory", path, ty)
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
	return vfs.ErrPermissionDenied
}

func (d *DirNode) Remove(path string) error {
	dirLogger.Debug("Remove %q in device directory", path)
	name, rest, more := vfs.SplitPath(path)
	if more {
		node, err := d.resolve(name)
		if err != nil {
			return err
		}
		return node.Remove(rest)
	}
	return vfs.ErrPermissionDenied
}
