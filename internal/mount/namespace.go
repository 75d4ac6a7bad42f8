package mount

import (
	"strings"

	"vnodefs/internal/vfs"
)

// readDirBatch is how many entries ReadDirAll requests per call.
const readDirBatch = 32

func absolute(path string) string {
	return vfs.Canonicalize("/" + path)
}

// Lookup resolves an absolute path through the mount table.
func (t *Table) Lookup(path string) (vfs.Node, error) {
	p := absolute(path)
	fs, rel := t.resolve(p)
	node, err := fs.RootDir().Lookup(rel)
	if err != nil {
		mountLogger.Trace("Lookup of %s failed: %v", p, err)
		return nil, vfs.NewError(vfs.OpLookup, p, err)
	}
	return node, nil
}

// Stat returns the attributes of the node at path.
func (t *Table) Stat(path string) (vfs.NodeAttr, error) {
	node, err := t.Lookup(path)
	if err != nil {
		return vfs.NodeAttr{}, err
	}
	attr, err := node.GetAttr()
	if err != nil {
		return vfs.NodeAttr{}, vfs.NewError(vfs.OpGetattr, absolute(path), err)
	}
	return attr, nil
}

// Create makes a file or directory at path.
func (t *Table) Create(path string, ty vfs.NodeType) error {
	p := absolute(path)
	op := vfs.OpCreate
	if ty.IsDir() {
		op = vfs.OpMkdir
	}
	if p == "/" || t.isMountPoint(p) {
		return vfs.NewError(op, p, vfs.ErrAlreadyExists)
	}
	fs, rel := t.resolve(p)
	mountLogger.Debug("Create %s (%s)", p, ty)
	return vfs.NewError(op, p, fs.RootDir().Create(rel, ty))
}

// Remove deletes the node at path. Mount points cannot be removed.
func (t *Table) Remove(path string) error {
	p := absolute(path)
	if p == "/" || t.isMountPoint(p) {
		return vfs.NewError(vfs.OpRemove, p, vfs.ErrPermissionDenied)
	}
	fs, rel := t.resolve(p)
	mountLogger.Debug("Remove %s", p)
	return vfs.NewError(vfs.OpRemove, p, fs.RootDir().Remove(rel))
}

// Rename moves src to dst. Both must live on the same filesystem.
func (t *Table) Rename(src, dst string) error {
	s, d := absolute(src), absolute(dst)
	if t.pinned(s) || t.pinned(d) {
		return vfs.NewError(vfs.OpRename, s, vfs.ErrPermissionDenied)
	}

	srcFS, srcRel := t.resolve(s)
	dstFS, dstRel := t.resolve(d)
	if srcFS != dstFS {
		return vfs.NewError(vfs.OpRename, s, vfs.ErrCrossDevice)
	}
	mountLogger.Debug("Rename %s -> %s", s, d)
	return vfs.NewError(vfs.OpRename, s, srcFS.RootDir().Rename(srcRel, dstRel))
}

// pinned reports whether path is "/", a mount point, or contains one.
func (t *Table) pinned(path string) bool {
	if path == "/" {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, mp := range t.mounts {
		if mp.Path == path || strings.HasPrefix(mp.Path, path+"/") {
			return true
		}
	}
	return false
}

// ReadDir lists the directory at path starting at index start.
func (t *Table) ReadDir(path string, start int, dirents []vfs.DirEntry) (int, error) {
	node, err := t.Lookup(path)
	if err != nil {
		return 0, err
	}
	n, err := node.ReadDir(start, dirents)
	if err != nil {
		return 0, vfs.NewError(vfs.OpReadDir, absolute(path), err)
	}
	return n, nil
}

// ReadDirAll lists the whole directory at path, without "." and "..".
func (t *Table) ReadDirAll(path string) ([]vfs.DirEntry, error) {
	node, err := t.Lookup(path)
	if err != nil {
		return nil, err
	}
	return ReadDirAll(node)
}

// ReadDirAll pages through node.ReadDir and drops "." and "..".
func ReadDirAll(node vfs.Node) ([]vfs.DirEntry, error) {
	var out []vfs.DirEntry
	batch := make([]vfs.DirEntry, readDirBatch)
	for start := 0; ; {
		n, err := node.ReadDir(start, batch)
		if err != nil {
			return nil, vfs.NewError(vfs.OpReadDir, "", err)
		}
		if n == 0 {
			return out, nil
		}
		for _, e := range batch[:n] {
			if e.Name == "." || e.Name == ".." {
				continue
			}
			out = append(out, e)
		}
		start += n
	}
}

// Root returns a node for "/" that resolves paths through the table.
func (t *Table) Root() vfs.Node {
	return &rootNode{table: t}
}

type rootNode struct {
	vfs.DirBase
	table *Table
}

func (r *rootNode) GetAttr() (vfs.NodeAttr, error) {
	return r.table.main.RootDir().GetAttr()
}

func (r *rootNode) Lookup(path string) (vfs.Node, error) {
	if vfs.Canonicalize("/"+path) == "/" {
		return r, nil
	}
	return r.table.Lookup(path)
}

func (r *rootNode) Create(path string, ty vfs.NodeType) error {
	name, _, more := vfs.SplitPath(path)
	if !more && vfs.IsDotName(name) {
		return nil
	}
	return r.table.Create(path, ty)
}

func (r *rootNode) Remove(path string) error {
	return r.table.Remove(path)
}

func (r *rootNode) ReadDir(start int, dirents []vfs.DirEntry) (int, error) {
	return r.table.main.RootDir().ReadDir(start, dirents)
}

func (r *rootNode) Rename(src, dst string) error {
	return r.table.Rename(src, dst)
}
