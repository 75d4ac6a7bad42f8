package devfs

import (
	"encoding/binary"
	"sync/atomic"

	"vnodefs/internal/vfs"
)

// DefaultUrandomSeed seeds UrandomDev when no seed is configured.
const DefaultUrandomSeed uint64 = 0xa2cea2ce

func deviceAttr() vfs.NodeAttr {
	return vfs.NewNodeAttr(vfs.DefaultFilePerm, vfs.TypeCharDevice, 0, 0)
}

// NullDev discards writes and reads as empty.
type NullDev struct {
	vfs.FileBase
}

func (NullDev) GetAttr() (vfs.NodeAttr, error) { return deviceAttr(), nil }

func (NullDev) ReadAt(uint64, []byte) (int, error) { return 0, nil }

func (NullDev) WriteAt(_ uint64, buf []byte) (int, error) { return len(buf), nil }

func (NullDev) Truncate(uint64) error { return nil }

// ZeroDev discards writes and reads as an endless run of zero bytes.
type ZeroDev struct {
	vfs.FileBase
}

func (ZeroDev) GetAttr() (vfs.NodeAttr, error) { return deviceAttr(), nil }

func (ZeroDev) ReadAt(_ uint64, buf []byte) (int, error) {
	clear(buf)
	return len(buf), nil
}

func (ZeroDev) WriteAt(_ uint64, buf []byte) (int, error) { return len(buf), nil }

func (ZeroDev) Truncate(uint64) error { return nil }

// UrandomDev produces a deterministic pseudo-random stream from a 64-bit
// linear congruential generator. It is not suitable for cryptography.
type UrandomDev struct {
	vfs.FileBase
	seed atomic.Uint64
}

// NewUrandomDev creates a generator starting from seed.
func NewUrandomDev(seed uint64) *UrandomDev {
	d := &UrandomDev{}
	d.seed.Store(seed)
	return d
}

// NewDefaultUrandomDev creates a generator seeded with DefaultUrandomSeed.
func NewDefaultUrandomDev() *UrandomDev {
	return NewUrandomDev(DefaultUrandomSeed)
}

func (d *UrandomDev) next() uint64 {
	for {
		old := d.seed.Load()
		next := old*6364136223846793005 + 1
		if d.seed.CompareAndSwap(old, next) {
			return next
		}
	}
}

func (d *UrandomDev) GetAttr() (vfs.NodeAttr, error) { return deviceAttr(), nil }

// ReadAt fills buf in 8-byte chunks, one generator step per chunk. The
// offset is ignored.
func (d *UrandomDev) ReadAt(_ uint64, buf []byte) (int, error) {
	var chunk [8]byte
	for i := 0; i < len(buf); i += 8 {
		binary.NativeEndian.PutUint64(chunk[:], d.next())
		copy(buf[i:], chunk[:])
	}
	return len(buf), nil
}

func (d *UrandomDev) WriteAt(_ uint64, buf []byte) (int, error) { return len(buf), nil }

func (d *UrandomDev) Truncate(uint64) error { return nil }
