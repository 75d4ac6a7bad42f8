// Package app assembles the namespace described by a configuration.
package app

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"vnodefs/internal/config"
	"vnodefs/internal/devfs"
	"vnodefs/internal/hostfs"
	"vnodefs/internal/logging"
	"vnodefs/internal/metrics"
	"vnodefs/internal/mount"
	"vnodefs/internal/ramfs"
	"vnodefs/internal/state"
	"vnodefs/internal/vfs"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	appLogger = logging.GetLogger().WithPrefix("app")
)

// App owns the mount table and everything mounted in it.
type App struct {
	Config   *config.Config
	Table    *mount.Table
	Root     *ramfs.FS
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	State    *state.Manager

	closeOnce sync.Once
	closeErr  error
}

// Build creates the root RAM filesystem, restores its snapshot when a state
// file is configured, and mounts devfs and the extra filesystems.
func Build(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	root := ramfs.NewWithLimit(uint64(cfg.Root.MaxSize))
	table, err := mount.NewTable(root)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	a := &App{
		Config:   cfg,
		Table:    table,
		Root:     root,
		Registry: reg,
		Metrics:  metrics.New(reg),
	}

	if cfg.State.Path != "" {
		if err := a.restore(cfg.State.Path); err != nil {
			return nil, err
		}
	}

	if cfg.Devfs.Path != "" {
		dev := devfs.New()
		dev.Add("null", devfs.NullDev{})
		dev.Add("zero", devfs.ZeroDev{})
		dev.Add("urandom", devfs.NewUrandomDev(cfg.Devfs.UrandomSeed))
		if err := table.Mount(cfg.Devfs.Path, dev); err != nil {
			return nil, a.abort(err)
		}
	}

	for _, m := range cfg.Ramfs {
		appLogger.Debug("Mounting ramfs at %s (limit %s)", m.Path, m.MaxSize)
		if err := table.Mount(m.Path, ramfs.NewWithLimit(uint64(m.MaxSize))); err != nil {
			return nil, a.abort(err)
		}
	}

	for _, m := range cfg.Hostfs {
		host, err := hostfs.New(m.Source)
		if err != nil {
			return nil, a.abort(fmt.Errorf("hostfs %s: %w", m.Path, err))
		}
		if err := table.Mount(m.Path, host); err != nil {
			return nil, a.abort(err)
		}
	}

	appLogger.Info("Namespace ready with %d mounts", len(table.Mounts()))
	return a, nil
}

func (a *App) restore(path string) error {
	sm, err := state.NewManager(path)
	if err != nil {
		return err
	}
	snapshot, err := sm.LoadState()
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if err := state.Restore(snapshot, a.Root.RootDir()); err != nil {
		return fmt.Errorf("failed to restore state: %w", err)
	}
	a.State = sm
	return nil
}

// abort unmounts whatever was mounted before a failed Build step.
func (a *App) abort(err error) error {
	if uerr := a.Table.UnmountAll(); uerr != nil {
		appLogger.Warn("Cleanup after failed build: %v", uerr)
	}
	return err
}

// Save captures the root RAM filesystem into the state file.
func (a *App) Save() error {
	if a.State == nil {
		return nil
	}
	snapshot, err := state.Capture(a.Root.RootDir())
	if err != nil {
		return fmt.Errorf("failed to capture state: %w", err)
	}
	return a.State.SaveState(snapshot)
}

// Close saves the snapshot, if configured, and unmounts everything.
// Later calls return the first result.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		appLogger.Info("Shutting down namespace")
		a.closeErr = errors.Join(a.Save(), a.Table.UnmountAll())
	})
	return a.closeErr
}

// WriteMounts prints the mount table, one mount per line, with the kind of
// filesystem and, for host mounts, the directory being served.
func (a *App) WriteMounts(w io.Writer) error {
	for _, mp := range a.Table.Mounts() {
		var kind string
		switch fs := mp.FS.(type) {
		case *ramfs.FS:
			kind = "ramfs " + humanize.IBytes(fs.UsedBytes())
		case *devfs.FS:
			kind = "devfs"
		case *hostfs.FS:
			kind = "hostfs " + fs.SourceDir()
		default:
			kind = fmt.Sprintf("%T", fs)
		}
		if _, err := fmt.Fprintf(w, "%-12s %s\n", mp.Path, kind); err != nil {
			return err
		}
	}
	return nil
}

// WriteTree prints every node of the namespace, one per line, with its
// mode, size and path.
func (a *App) WriteTree(w io.Writer) error {
	attr, err := a.Table.Stat("/")
	if err != nil {
		return err
	}
	if err := writeLine(w, "/", attr); err != nil {
		return err
	}
	return a.writeDir(w, "/")
}

func (a *App) writeDir(w io.Writer, dir string) error {
	entries, err := a.Table.ReadDirAll(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := vfs.Join(dir, e.Name)
		attr, err := a.Table.Stat(path)
		if err != nil {
			return err
		}
		if err := writeLine(w, path, attr); err != nil {
			return err
		}
		if attr.IsDir() {
			if err := a.writeDir(w, path); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeLine(w io.Writer, path string, attr vfs.NodeAttr) error {
	_, err := fmt.Fprintf(w, "%c%s %10s  %s\n", attr.Type.Char(), attr.Perm.RWX(), humanize.IBytes(attr.Size), path)
	return err
}
