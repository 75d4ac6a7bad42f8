// Package mount composes several filesystems into one namespace.
package mount

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"vnodefs/internal/logging"
	"vnodefs/internal/vfs"
)

var (
	mountLogger = logging.GetLogger().WithPrefix("mount")
)

// Point is one entry of the mount table.
type Point struct {
	Path string
	FS   vfs.FileSystem
}

// Table maps absolute paths onto filesystems. The main filesystem covers
// "/"; every other mount covers its path and everything below it.
type Table struct {
	mu     sync.RWMutex
	main   vfs.FileSystem
	mounts []Point // sorted by path length, longest first
}

// NewTable creates a namespace whose root is main.
func NewTable(main vfs.FileSystem) (*Table, error) {
	mountLogger.Info("Creating mount table")
	if err := main.Mount("/", nil); err != nil {
		return nil, vfs.NewError(vfs.OpMount, "/", err)
	}
	return &Table{main: main}, nil
}

// Main returns the filesystem mounted at "/".
func (t *Table) Main() vfs.FileSystem {
	return t.main
}

// Mount attaches fs at path, creating the mount directory and its parents
// when needed.
func (t *Table) Mount(path string, fs vfs.FileSystem) error {
	path = vfs.Canonicalize(path)
	if !strings.HasPrefix(path, "/") || path == "/" {
		return vfs.NewError(vfs.OpMount, path, vfs.ErrInvalidInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, mp := range t.mounts {
		if mp.Path == path {
			return vfs.NewError(vfs.OpMount, path, vfs.ErrAlreadyExists)
		}
	}

	covering, rel := t.resolveLocked(path)
	root := covering.RootDir()
	mountPoint, created, err := ensureDir(root, rel)
	if err == nil {
		err = attachAt(path, fs, mountPoint)
	}
	if err != nil {
		mountLogger.Error("Failed to mount at %s: %v", path, err)
		removeCreated(root, created)
		return vfs.NewError(vfs.OpMount, path, err)
	}

	t.mounts = append(t.mounts, Point{Path: path, FS: fs})
	sort.SliceStable(t.mounts, func(i, j int) bool {
		return len(t.mounts[i].Path) > len(t.mounts[j].Path)
	})
	mountLogger.Info("Mounted filesystem at %s", path)
	return nil
}

// Unmount detaches the filesystem mounted at path.
func (t *Table) Unmount(path string) error {
	path = vfs.Canonicalize(path)

	t.mu.Lock()
	defer t.mu.Unlock()

	for i, mp := range t.mounts {
		if mp.Path != path {
			continue
		}
		for _, other := range t.mounts {
			if other.Path != path && strings.HasPrefix(other.Path, path+"/") {
				return vfs.NewError(vfs.OpUnmount, path, vfs.ErrDirectoryNotEmpty)
			}
		}
		if err := mp.FS.Unmount(); err != nil {
			return vfs.NewError(vfs.OpUnmount, path, err)
		}
		t.mounts = append(t.mounts[:i], t.mounts[i+1:]...)
		mountLogger.Info("Unmounted filesystem at %s", path)
		return nil
	}
	return vfs.NewError(vfs.OpUnmount, path, vfs.ErrNotFound)
}

// UnmountAll detaches every mount, deepest first, then the main filesystem.
func (t *Table) UnmountAll() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for _, mp := range t.mounts {
		if err := mp.FS.Unmount(); err != nil && firstErr == nil {
			firstErr = vfs.NewError(vfs.OpUnmount, mp.Path, err)
		}
	}
	t.mounts = nil
	if err := t.main.Unmount(); err != nil && firstErr == nil {
		firstErr = vfs.NewError(vfs.OpUnmount, "/", err)
	}
	return firstErr
}

// Mounts lists the mount table, "/" first, then by path.
func (t *Table) Mounts() []Point {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Point, 0, len(t.mounts)+1)
	out = append(out, Point{Path: "/", FS: t.main})
	rest := append([]Point(nil), t.mounts...)
	sort.Slice(rest, func(i, j int) bool { return rest[i].Path < rest[j].Path })
	return append(out, rest...)
}

// FileSystemAt returns the filesystem covering path.
func (t *Table) FileSystemAt(path string) vfs.FileSystem {
	fs, _ := t.resolve(vfs.Canonicalize("/" + path))
	return fs
}

func (t *Table) resolve(path string) (vfs.FileSystem, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resolveLocked(path)
}

// resolveLocked picks the longest mount prefix of a canonical absolute path
// and returns the path relative to that filesystem's root.
func (t *Table) resolveLocked(path string) (vfs.FileSystem, string) {
	for _, mp := range t.mounts {
		if path == mp.Path {
			return mp.FS, ""
		}
		if strings.HasPrefix(path, mp.Path+"/") {
			return mp.FS, path[len(mp.Path)+1:]
		}
	}
	return t.main, strings.TrimPrefix(path, "/")
}

func attachAt(path string, fs vfs.FileSystem, mountPoint vfs.Node) error {
	attr, err := mountPoint.GetAttr()
	if err != nil {
		return err
	}
	if !attr.IsDir() {
		return vfs.ErrNotADirectory
	}
	return fs.Mount(path, mountPoint)
}

// ensureDir walks rel from root, creating missing directories on the way.
// It returns the paths it created, relative to root, outermost first.
func ensureDir(root vfs.Node, rel string) (vfs.Node, []string, error) {
	var created []string
	node := root
	walked := ""
	for _, name := range strings.Split(rel, "/") {
		walked = strings.TrimPrefix(walked+"/"+name, "/")
		next, err := node.Lookup(name)
		if errors.Is(err, vfs.ErrNotFound) {
			if err := node.Create(name, vfs.TypeDir); err != nil {
				return nil, created, err
			}
			created = append(created, walked)
			next, err = node.Lookup(name)
		}
		if err != nil {
			return nil, created, err
		}
		node = next
	}
	return node, created, nil
}

// removeCreated undoes ensureDir after a failed mount, innermost first.
func removeCreated(root vfs.Node, created []string) {
	for i := len(created) - 1; i >= 0; i-- {
		if err := root.Remove(created[i]); err != nil {
			mountLogger.Warn("Failed to remove mount directory %q: %v", created[i], err)
		}
	}
}

func (t *Table) isMountPoint(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, mp := range t.mounts {
		if mp.Path == path {
			return true
		}
	}
	return false
}
