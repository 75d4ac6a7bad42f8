package vfs

import (
	"io/fs"

	"vnodefs/internal/logging"
)

var (
	typesLogger = logging.GetLogger().WithPrefix("vfs")
)

// MaxNameLen is the longest name a DirEntry can carry, in bytes.
const MaxNameLen = 63

// NodeType is the kind of a filesystem node. Values match the high bits of
// a POSIX st_mode shifted right by 12.
type NodeType uint8

const (
	TypeFifo        NodeType = 0o1
	TypeCharDevice  NodeType = 0o2
	TypeDir         NodeType = 0o4
	TypeBlockDevice NodeType = 0o6
	TypeFile        NodeType = 0o10
	TypeSymLink     NodeType = 0o12
	TypeSocket      NodeType = 0o14
)

func (t NodeType) IsFile() bool { return t == TypeFile }
func (t NodeType) IsDir() bool { return t == TypeDir }
func (t NodeType) IsSymlink() bool { return t == TypeSymLink }
func (t NodeType) IsBlockDevice() bool { return t == TypeBlockDevice }
func (t NodeType) IsCharDevice() bool { return t == TypeCharDevice }
func (t NodeType) IsFIFO() bool { return t == TypeFifo }
func (t NodeType) IsSocket() bool { return t == TypeSocket }

// Char returns the type letter used by `ls -l`.
func (t NodeType) Char() byte {
	switch t {
	case TypeFifo:
		return 'p'
	case TypeCharDevice:
		return 'c'
	case TypeDir:
		return 'd'
	case TypeBlockDevice:
		return 'b'
	case TypeFile:
		return '-'
	case TypeSymLink:
		return 'l'
	case TypeSocket:
		return 's'
	default:
		return '?'
	}
}

func (t NodeType) String() string {
	switch t {
	case TypeFifo:
		return "fifo"
	case TypeCharDevice:
		return "char-device"
	case TypeDir:
		return "dir"
	case TypeBlockDevice:
		return "block-device"
	case TypeFile:
		return "file"
	case TypeSymLink:
		return "symlink"
	case TypeSocket:
		return "socket"
	default:
		return "unknown"
	}
}

// FileMode returns the io/fs type bits for t.
func (t NodeType) FileMode() fs.FileMode {
	switch t {
	case TypeFifo:
		return fs.ModeNamedPipe
	case TypeCharDevice:
		return fs.ModeDevice | fs.ModeCharDevice
	case TypeDir:
		return fs.ModeDir
	case TypeBlockDevice:
		return fs.ModeDevice
	case TypeSymLink:
		return fs.ModeSymlink
	case TypeSocket:
		return fs.ModeSocket
	default:
		return 0
	}
}

// NodeTypeFromMode maps io/fs type bits back onto a NodeType.
func NodeTypeFromMode(m fs.FileMode) NodeType {
	switch {
	case m&fs.ModeDir != 0:
		return TypeDir
	case m&fs.ModeSymlink != 0:
		return TypeSymLink
	case m&fs.ModeNamedPipe != 0:
		return TypeFifo
	case m&fs.ModeSocket != 0:
		return TypeSocket
	case m&fs.ModeCharDevice != 0:
		return TypeCharDevice
	case m&fs.ModeDevice != 0:
		return TypeBlockDevice
	default:
		return TypeFile
	}
}

// NodePerm holds owner, group and other rwx bits.
type NodePerm uint16

const (
	PermOwnerRead  NodePerm = 0o400
	PermOwnerWrite NodePerm = 0o200
	PermOwnerExec  NodePerm = 0o100
	PermGroupRead  NodePerm = 0o40
	PermGroupWrite NodePerm = 0o20
	PermGroupExec  NodePerm = 0o10
	PermOtherRead  NodePerm = 0o4
	PermOtherWrite NodePerm = 0o2
	PermOtherExec  NodePerm = 0o1

	// DefaultFilePerm is rw-rw-rw-.
	DefaultFilePerm NodePerm = 0o666
	// DefaultDirPerm is rwxr-xr-x.
	DefaultDirPerm NodePerm = 0o755

	permMask NodePerm = 0o777
)

// PermFromMode keeps the permission bits of a POSIX mode.
func PermFromMode(mode uint32) NodePerm {
	return NodePerm(mode) & permMask
}

func (p NodePerm) Mode() uint32 { return uint32(p & permMask) }

func (p NodePerm) Contains(other NodePerm) bool { return p&other == other }

func (p NodePerm) OwnerReadable() bool { return p.Contains(PermOwnerRead) }
func (p NodePerm) OwnerWritable() bool { return p.Contains(PermOwnerWrite) }
func (p NodePerm) OwnerExecutable() bool { return p.Contains(PermOwnerExec) }

// RWX renders the permission as nine characters, e.g. "rwxr-xr-x".
func (p NodePerm) RWX() string {
	const letters = "rwxrwxrwx"
	buf := []byte("---------")
	for i := 0; i < 9; i++ {
		if p&(1<<(8-i)) != 0 {
			buf[i] = letters[i]
		}
	}
	return string(buf)
}

func (p NodePerm) String() string { return p.RWX() }

// NodeAttr is the metadata of a node.
type NodeAttr struct {
	Perm   NodePerm
	Type   NodeType
	Size   uint64
	Blocks uint64
}

func NewNodeAttr(perm NodePerm, ty NodeType, size, blocks uint64) NodeAttr {
	return NodeAttr{Perm: perm, Type: ty, Size: size, Blocks: blocks}
}

// NewFileAttr returns the attributes of a regular file with DefaultFilePerm.
func NewFileAttr(size, blocks uint64) NodeAttr {
	return NodeAttr{Perm: DefaultFilePerm, Type: TypeFile, Size: size, Blocks: blocks}
}

// NewDirAttr returns the attributes of a directory with DefaultDirPerm.
func NewDirAttr(size, blocks uint64) NodeAttr {
	return NodeAttr{Perm: DefaultDirPerm, Type: TypeDir, Size: size, Blocks: blocks}
}

func (a *NodeAttr) SetPerm(perm NodePerm) { a.Perm = perm }

func (a NodeAttr) IsFile() bool { return a.Type.IsFile() }
func (a NodeAttr) IsDir() bool { return a.Type.IsDir() }

// FileMode combines type and permission bits.
func (a NodeAttr) FileMode() fs.FileMode {
	return a.Type.FileMode() | fs.FileMode(a.Perm.Mode())
}

// DirEntry is one entry produced by Node.ReadDir.
type DirEntry struct {
	Name string
	Type NodeType
}

// NewDirEntry builds an entry. Names longer than MaxNameLen bytes are cut.
func NewDirEntry(name string, ty NodeType) DirEntry {
	if len(name) > MaxNameLen {
		typesLogger.Warn("directory entry name too long: %d > %d", len(name), MaxNameLen)
		name = name[:MaxNameLen]
	}
	return DirEntry{Name: name, Type: ty}
}

// FileSystemInfo is what FileSystem.StatFS reports.
type FileSystemInfo struct {
	BlockSize  uint32
	Blocks     uint64
	BlocksFree uint64
	Files      uint64
	NameLen    uint32
}
