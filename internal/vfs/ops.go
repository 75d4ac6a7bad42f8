// Package vfs defines the interfaces every filesystem backend implements,
// together with the attribute, permission and error types they share.
//
// A backend provides a FileSystem whose RootDir is a Node. Nodes are
// addressed by paths relative to the node the call is made on, so a
// directory resolves "a/b/c" by looking up "a" and forwarding "b/c".
package vfs

// FileSystem is a mountable filesystem.
type FileSystem interface {
	// Mount is called when the filesystem is attached at path. mountPoint
	// is the directory node it covers, or nil for the namespace root.
	Mount(path string, mountPoint Node) error
	// Unmount is called when the filesystem is detached.
	Unmount() error
	// Format erases the filesystem's contents.
	Format() error
	// StatFS reports usage.
	StatFS() (FileSystemInfo, error)
	// RootDir returns the root directory node.
	RootDir() Node
}

// Node is a file, directory or device in a filesystem.
type Node interface {
	Open() error
	Release() error
	GetAttr() (NodeAttr, error)

	// ReadAt reads into buf starting at offset and returns the byte count.
	ReadAt(offset uint64, buf []byte) (int, error)
	// WriteAt writes buf at offset and returns the byte count.
	WriteAt(offset uint64, buf []byte) (int, error)
	Fsync() error
	Truncate(size uint64) error

	// Parent returns the parent directory, or nil.
	Parent() Node
	Lookup(path string) (Node, error)
	Create(path string, ty NodeType) error
	Remove(path string) error
	// ReadDir fills dirents with entries starting at index start and
	// returns how many were written.
	ReadDir(start int, dirents []DirEntry) (int, error)
	Rename(srcPath, dstPath string) error
}

// FileSystemBase supplies the optional FileSystem methods. Embedders must
// still implement RootDir.
type FileSystemBase struct{}

func (FileSystemBase) Mount(string, Node) error { return nil }
func (FileSystemBase) Unmount() error { return nil }
func (FileSystemBase) Format() error { return ErrUnsupported }
func (FileSystemBase) StatFS() (FileSystemInfo, error) { return FileSystemInfo{}, ErrUnsupported }

// NodeBase supplies every Node method with its generic default.
type NodeBase struct{}

func (NodeBase) Open() error { return nil }
func (NodeBase) Release() error { return nil }
func (NodeBase) GetAttr() (NodeAttr, error) { return NodeAttr{}, ErrUnsupported }
func (NodeBase) ReadAt(uint64, []byte) (int, error) { return 0, ErrInvalidInput }
func (NodeBase) WriteAt(uint64, []byte) (int, error) { return 0, ErrInvalidInput }
func (NodeBase) Fsync() error { return ErrInvalidInput }
func (NodeBase) Truncate(uint64) error { return ErrInvalidInput }
func (NodeBase) Parent() Node { return nil }
func (NodeBase) Lookup(string) (Node, error) { return nil, ErrUnsupported }
func (NodeBase) Create(string, NodeType) error { return ErrUnsupported }
func (NodeBase) Remove(string) error { return ErrUnsupported }
func (NodeBase) ReadDir(int, []DirEntry) (int, error) { return 0, ErrUnsupported }
func (NodeBase) Rename(string, string) error { return ErrUnsupported }

// DirBase is embedded by directory nodes: file operations fail with
// ErrIsADirectory.
type DirBase struct{ NodeBase }

func (DirBase) ReadAt(uint64, []byte) (int, error) { return 0, ErrIsADirectory }
func (DirBase) WriteAt(uint64, []byte) (int, error) { return 0, ErrIsADirectory }
func (DirBase) Fsync() error { return ErrIsADirectory }
func (DirBase) Truncate(uint64) error { return ErrIsADirectory }

// FileBase is embedded by files and devices: directory operations fail
// with ErrNotADirectory.
type FileBase struct{ NodeBase }

func (FileBase) Lookup(string) (Node, error) { return nil, ErrNotADirectory }
func (FileBase) Create(string, NodeType) error { return ErrNotADirectory }
func (FileBase) Remove(string) error { return ErrNotADirectory }
func (FileBase) ReadDir(int, []DirEntry) (int, error) { return 0, ErrNotADirectory }

// IsDotName reports whether name refers to the directory itself or its
// parent, or is empty.
func IsDotName(name string) bool {
	return name == "" || name == "." || name == ".."
}
