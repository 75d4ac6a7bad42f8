package ramfs

import (
	"sync"

	"vnodefs/internal/vfs"
)

// FileNode is a regular file backed by a byte slice.
type FileNode struct {
	vfs.FileBase

	mu      sync.RWMutex
	usage   *usage
	content []byte
}

func newFileNode(u *usage) *FileNode {
	return &FileNode{usage: u}
}

func (f *FileNode) size() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return uint64(len(f.content))
}

// detach stops accounting for the file and returns the bytes it held.
func (f *FileNode) detach() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usage == nil {
		return 0
	}
	f.usage = nil
	return uint64(len(f.content))
}

// resize sets the content length, zero-filling growth. Caller holds f.mu.
func (f *FileNode) resize(size uint64) error {
	cur := uint64(len(f.content))
	switch {
	case size == cur:
		return nil
	case size > MaxFileSize:
		return vfs.ErrNoSpace
	case size > cur:
		if f.usage != nil {
			if err := f.usage.grow(size - cur); err != nil {
				return err
			}
		}
		f.content = append(f.content, make([]byte, size-cur)...)
	default:
		if f.usage != nil {
			f.usage.shrink(cur - size)
		}
		f.content = f.content[:size]
	}
	return nil
}

func (f *FileNode) GetAttr() (vfs.NodeAttr, error) {
	size := f.size()
	return vfs.NewFileAttr(size, (size+511)/512), nil
}

// ReadAt copies from the content starting at offset. Reads at or past the
// end return 0.
func (f *FileNode) ReadAt(offset uint64, buf []byte) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if offset >= uint64(len(f.content)) {
		return 0, nil
	}
	return copy(buf, f.content[offset:]), nil
}

// WriteAt writes buf at offset, zero-filling any gap past the old end.
func (f *FileNode) WriteAt(offset uint64, buf []byte) (int, error) {
	end := offset + uint64(len(buf))
	if end < offset {
		return 0, vfs.ErrInvalidInput
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if end > uint64(len(f.content)) {
		if err := f.resize(end); err != nil {
			return 0, err
		}
	}
	copy(f.content[offset:end], buf)
	return len(buf), nil
}

// Truncate shrinks the file or extends it with zeros.
func (f *FileNode) Truncate(size uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resize(size)
}

func (f *FileNode) Fsync() error {
	return nil
}
