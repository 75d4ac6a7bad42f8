package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"vnodefs/internal/app"
	"vnodefs/internal/config"
	"vnodefs/internal/fs"
	"vnodefs/internal/logging"
	"vnodefs/internal/metrics"
	"vnodefs/internal/webdav"

	"github.com/urfave/cli/v2"
)

var (
	logger = logging.GetLogger()
)

const shutdownTimeout = 5 * time.Second

func main() {
	cliApp := &cli.App{
		Name:  "vnodefs",
		Usage: "serve a namespace of RAM, device and host filesystems",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"VNODEFS_CONFIG"},
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "read VNODEFS_* settings from a .env file (repeatable)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "mount",
				Usage: "mount the namespace with FUSE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "point", Usage: "mount point, overrides the configuration"},
				},
				Action: runMount,
			},
			{
				Name:  "serve",
				Usage: "serve the namespace over WebDAV only",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "listen address, overrides the configuration"},
				},
				Action: runServe,
			},
			{
				Name:   "inspect",
				Usage:  "print the namespace tree and exit",
				Action: runInspect,
			},
		},
	}

	err := cliApp.Run(os.Args)
	if err != nil {
		logger.Error("%v", err)
	}
	_ = logger.Close()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the file and environment and configures logging.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(c.StringSlice("env-file")...); err != nil {
		return nil, err
	}

	opts, err := cfg.LogOptions()
	if err != nil {
		return nil, err
	}
	if c.Bool("verbose") {
		opts.Level = logging.LevelDebug
	}
	logger.Configure(opts)
	return cfg, nil
}

// servers runs the optional WebDAV and metrics listeners.
type servers struct {
	webdav  *webdav.Server
	metrics *metrics.Server
	errc    chan error
}

func startServers(a *app.App, webdavAddr string) *servers {
	s := &servers{errc: make(chan error, 2)}
	if webdavAddr != "" {
		s.webdav = webdav.NewServer(a.Table, a.Metrics)
		go func() { s.errc <- s.webdav.ListenAndServe(webdavAddr) }()
	}
	if a.Config.Metrics.Addr != "" {
		s.metrics = metrics.NewServer(a.Config.Metrics.Addr, a.Registry)
		go func() { s.errc <- s.metrics.Start() }()
	}
	return s
}

func (s *servers) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if s.webdav != nil {
		errs = append(errs, s.webdav.Shutdown(ctx))
	}
	if s.metrics != nil {
		errs = append(errs, s.metrics.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// wait blocks until a signal arrives or a server fails.
func (s *servers) wait() error {
	logger.Debug("Setting up signal handlers...")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal %v", sig)
		return nil
	case err := <-s.errc:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	}
}

func runMount(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if p := c.String("point"); p != "" {
		cfg.Mount.Point = p
	}
	if cfg.Mount.Point == "" {
		return errors.New("a mount point is required (--point, mount.point or VNODEFS_MOUNT)")
	}
	mountPoint := filepath.Clean(cfg.Mount.Point)

	logger.Info("Starting vnodefs...")
	a, err := app.Build(cfg)
	if err != nil {
		return err
	}

	fuseFS := fs.NewFS(a.Table, a.Metrics)
	if err := fuseFS.Mount(mountPoint, cfg.Mount.AllowOther); err != nil {
		return errors.Join(err, a.Close())
	}
	srv := startServers(a, cfg.WebDAV.Addr)
	logger.Info("Filesystem mounted and ready at %s", mountPoint)

	waitErr := srv.wait()
	err = errors.Join(waitErr, fuseFS.Unmount(mountPoint), srv.shutdown(), a.Close())
	logger.Info("Clean shutdown complete")
	return err
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.WebDAV.Addr = addr
	}
	if cfg.WebDAV.Addr == "" {
		return errors.New("a WebDAV address is required (--addr, webdav.addr or VNODEFS_WEBDAV_ADDR)")
	}

	a, err := app.Build(cfg)
	if err != nil {
		return err
	}
	srv := startServers(a, cfg.WebDAV.Addr)

	waitErr := srv.wait()
	return errors.Join(waitErr, srv.shutdown(), a.Close())
}

func runInspect(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	a, err := app.Build(cfg)
	if err != nil {
		return err
	}
	// Unmount without Close so the snapshot is not rewritten.
	defer a.Table.UnmountAll()

	if err := a.WriteMounts(c.App.Writer); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer)
	return a.WriteTree(c.App.Writer)
}
