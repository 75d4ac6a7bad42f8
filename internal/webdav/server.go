// Package webdav serves the mount namespace over WebDAV.
package webdav

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"vnodefs/internal/logging"
	"vnodefs/internal/metrics"
	"vnodefs/internal/mount"
	"vnodefs/internal/vfs"

	"golang.org/x/net/webdav"
)

var (
	davLogger = logging.GetLogger().WithPrefix("webdav")
)

// Server wraps a WebDAV handler over a mount table.
type Server struct {
	handler *webdav.Handler

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a read-write WebDAV server for table.
func NewServer(table *mount.Table, m *metrics.Metrics) *Server {
	s := &Server{}
	s.handler = &webdav.Handler{
		Prefix:     "",
		FileSystem: &webdavFS{table: table, metrics: m, started: time.Now()},
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				davLogger.Debug("%s %s: %v", r.Method, r.URL.Path, err)
			} else {
				davLogger.Trace("%s %s", r.Method, r.URL.Path)
			}
		},
	}
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves WebDAV on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.handler}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	davLogger.Info("Starting WebDAV server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		davLogger.Error("WebDAV server error: %v", err)
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// toOSError converts filesystem errors into the os errors the WebDAV
// handler inspects to pick a status code.
func toOSError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var target error
	switch {
	case errors.Is(err, vfs.ErrNotFound):
		target = os.ErrNotExist
	case errors.Is(err, vfs.ErrAlreadyExists):
		target = os.ErrExist
	case errors.Is(err, vfs.ErrPermissionDenied), errors.Is(err, vfs.ErrCrossDevice):
		target = os.ErrPermission
	case errors.Is(err, vfs.ErrInvalidInput), errors.Is(err, vfs.ErrNameTooLong):
		target = os.ErrInvalid
	default:
		target = err
	}
	return &os.PathError{Op: op, Path: path, Err: target}
}
