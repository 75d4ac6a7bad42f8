package ramfs

import (
	"strings"

	"vnodefs/internal/vfs"
)

// splitParent resolves everything but the last component of path, relative
// to d, and returns that directory and the final name.
func (d *DirNode) splitParent(path string) (*DirNode, string, error) {
	trimmed := strings.TrimRight(path, "/")
	dirPart, name := "", trimmed
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		dirPart, name = trimmed[:i], trimmed[i+1:]
	}
	if vfs.IsDotName(name) {
		return nil, "", vfs.ErrInvalidInput
	}

	node, err := d.Lookup(dirPart)
	if err != nil {
		return nil, "", err
	}
	dir, ok := node.(*DirNode)
	if !ok {
		if attr, attrErr := node.GetAttr(); attrErr == nil && !attr.IsDir() {
			return nil, "", vfs.ErrNotADirectory
		}
		return nil, "", vfs.ErrCrossDevice
	}
	if dir.usage != d.usage {
		return nil, "", vfs.ErrCrossDevice
	}
	return dir, name, nil
}

// lockPair write-locks one or two directories in id order.
func lockPair(a, b *DirNode) func() {
	if a == b {
		a.mu.Lock()
		return a.mu.Unlock
	}
	first, second := a, b
	if b.id < a.id {
		first, second = b, a
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

// isWithin reports whether dir is target or one of its descendants.
func isWithin(dir vfs.Node, target *DirNode) bool {
	for n := dir; n != nil; n = n.Parent() {
		if d, ok := n.(*DirNode); ok && d == target {
			return true
		}
	}
	return false
}

// Rename moves srcPath to dstPath, both relative to d. An existing
// destination of the same kind is replaced; a destination directory must
// be empty.
func (d *DirNode) Rename(srcPath, dstPath string) error {
	dirLogger.Debug("rename at ramfs: %s -> %s", srcPath, dstPath)

	srcDir, srcName, err := d.splitParent(srcPath)
	if err != nil {
		return err
	}
	dstDir, dstName, err := d.splitParent(dstPath)
	if err != nil {
		return err
	}
	if len(dstName) > vfs.MaxNameLen {
		return vfs.ErrNameTooLong
	}

	d.usage.renameMu.Lock()
	defer d.usage.renameMu.Unlock()

	unlock := lockPair(srcDir, dstDir)
	defer unlock()

	if srcDir.removed.Load() || dstDir.removed.Load() {
		return vfs.ErrNotFound
	}
	node, ok := srcDir.children.Get(srcName)
	if !ok {
		return vfs.ErrNotFound
	}
	if srcDir == dstDir && srcName == dstName {
		return nil
	}

	movedDir, movingDir := node.(*DirNode)
	if movingDir && isWithin(dstDir, movedDir) {
		return vfs.ErrInvalidInput
	}

	if existing, exists := dstDir.children.Get(dstName); exists {
		existingDir, existingIsDir := existing.(*DirNode)
		switch {
		case movingDir && !existingIsDir:
			return vfs.ErrNotADirectory
		case !movingDir && existingIsDir:
			return vfs.ErrIsADirectory
		}
		if existingIsDir {
			// existingDir may be srcDir itself, which is already locked.
			if existingDir != srcDir {
				existingDir.mu.Lock()
				defer existingDir.mu.Unlock()
			}
			if existingDir.children.Len() > 0 {
				return vfs.ErrDirectoryNotEmpty
			}
			existingDir.removed.Store(true)
		}
		if file, isFile := existing.(*FileNode); isFile {
			d.usage.shrink(file.detach())
		}
		d.usage.nodes.Add(-1)
	}

	srcDir.children.Delete(srcName)
	srcDir.count.Store(int64(srcDir.children.Len()))
	dstDir.children.Set(dstName, node)
	dstDir.count.Store(int64(dstDir.children.Len()))
	if movingDir {
		movedDir.SetParent(dstDir)
	}
	return nil
}
