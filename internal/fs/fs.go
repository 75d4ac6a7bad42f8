package fs

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"vnodefs/internal/logging"
	"vnodefs/internal/metrics"
	"vnodefs/internal/mount"
	"vnodefs/internal/vfs"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	fsLogger = logging.GetLogger().WithPrefix("fuse")
)

// FS serves a mount table over FUSE. Nodes are addressed by their absolute
// path in the table, so every request sees the current mounts.
type FS struct {
	table   *mount.Table
	metrics *metrics.Metrics
	conn    *fuse.Conn
	uid     uint32
	gid     uint32
	started time.Time
	mu      sync.Mutex
	served  chan struct{}
}

// NewFS creates the FUSE frontend. Ownership defaults to the current
// process and can be overridden with PUID and PGID.
func NewFS(table *mount.Table, m *metrics.Metrics) *FS {
	fsLogger.Info("Creating FUSE frontend")

	uid := idFromEnv("PUID", safeIntToUint32(os.Getuid()))
	gid := idFromEnv("PGID", safeIntToUint32(os.Getgid()))

	return &FS{
		table:   table,
		metrics: m,
		uid:     uid,
		gid:     gid,
		started: time.Now(),
	}
}

// Root implements the fusefs.FS interface, returning the root directory node.
func (f *FS) Root() (fusefs.Node, error) {
	fsLogger.Trace("Getting root directory node")
	return &Dir{fs: f, path: "/"}, nil
}

// Statfs reports the usage of the filesystem mounted at "/".
func (f *FS) Statfs(_ context.Context, _ *fuse.StatfsRequest, resp *fuse.StatfsResponse) (err error) {
	defer f.observe("statfs", time.Now(), &err)

	info, err := f.table.Main().StatFS()
	if err != nil {
		fsLogger.Debug("Root filesystem has no statfs: %v", err)
		return nil
	}
	resp.Bsize = info.BlockSize
	resp.Frsize = info.BlockSize
	resp.Blocks = info.Blocks
	resp.Bfree = info.BlocksFree
	resp.Bavail = info.BlocksFree
	resp.Files = info.Files
	resp.Namelen = info.NameLen
	return nil
}

func (f *FS) observe(op string, start time.Time, err *error) {
	f.metrics.Observe(metrics.FrontendFUSE, op, start, *err)
}

// fillAttr copies node attributes into a FUSE attribute block. Character
// devices are presented as regular files.
func (f *FS) fillAttr(attr vfs.NodeAttr, a *fuse.Attr) {
	mode := attr.FileMode()
	if attr.Type.IsCharDevice() {
		mode = os.FileMode(attr.Perm.Mode())
	}
	a.Mode = mode
	a.Size = attr.Size
	a.Blocks = attr.Blocks
	a.BlockSize = 4096
	a.Uid = f.uid
	a.Gid = f.gid
	a.Mtime = f.started
	a.Atime = f.started
	a.Ctime = f.started
}

func waitForMount(mountpoint string) error {
	for i := 0; i < 30; i++ {
		info, err := os.Stat(mountpoint)
		if err == nil && info.IsDir() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("mount point not available after 3 seconds")
}

// Mount attaches the namespace at mountPoint and serves it in the background.
func (f *FS) Mount(mountPoint string, allowOther bool) error {
	fsLogger.Info("Mounting namespace")
	fsLogger.Debug("Mount point: %s", mountPoint)
	fsLogger.Debug("UID: %d, GID: %d", f.uid, f.gid)

	mountOpts := []fuse.MountOption{
		fuse.FSName("vnodefs"),
		fuse.Subtype("vnodefs"),
		fuse.DefaultPermissions(),
		fuse.AsyncRead(),
		fuse.AllowNonEmptyMount(),
	}
	if allowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}

	fsLogger.Debug("Mounting with options: %+v", mountOpts)

	c, err := fuse.Mount(mountPoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}

	served := make(chan struct{})
	f.mu.Lock()
	f.conn = c
	f.served = served
	f.mu.Unlock()

	go func() {
		defer close(served)
		if err := fusefs.Serve(c, f); err != nil {
			fsLogger.Error("FUSE server error: %v", err)
		}
	}()

	if err := waitForMount(mountPoint); err != nil {
		c.Close()
		fsLogger.Error("Mount point not ready: %v", err)
		return fmt.Errorf("mount point failed to initialize: %w", err)
	}

	fsLogger.Info("Filesystem mounted successfully")
	return nil
}

// Unmount detaches the namespace and waits for the server to stop.
func (f *FS) Unmount(mountPoint string) error {
	fsLogger.Info("Unmounting filesystem from: %s", mountPoint)

	f.mu.Lock()
	c, served := f.conn, f.served
	f.conn, f.served = nil, nil
	f.mu.Unlock()
	if c == nil {
		return nil
	}

	if err := fuse.Unmount(mountPoint); err != nil {
		fsLogger.Error("Unmount failed: %v", err)
		return err
	}
	<-served
	fsLogger.Info("Unmount completed successfully")
	return c.Close()
}
