package hostfs

import (
	"path/filepath"
	"strings"

	"vnodefs/internal/logging"
)

var (
	pathLogger = logging.GetLogger().WithPrefix("hostfs-path")
)

// SourcePath is a path inside the served host directory, stored relative to
// its root. It never starts with "/" and never climbs above the root.
type SourcePath struct {
	path string
}

// NewSourcePath cleans path and makes it relative to the source root.
func NewSourcePath(path string) *SourcePath {
	cleaned := filepath.Clean("/" + path)
	cleaned = strings.TrimPrefix(cleaned, "/")
	pathLogger.Trace("Creating new source path: %q -> %q", path, cleaned)
	return &SourcePath{path: cleaned}
}

// String returns the string representation of the path
func (sp *SourcePath) String() string {
	return sp.path
}

// IsRoot reports whether the path names the source root itself.
func (sp *SourcePath) IsRoot() bool {
	return sp.path == ""
}

// FullPath returns the absolute path by joining with the source root
func (sp *SourcePath) FullPath(sourceRoot string) string {
	return filepath.Join(sourceRoot, sp.path)
}

// Child returns the path of name inside sp.
func (sp *SourcePath) Child(name string) *SourcePath {
	return NewSourcePath(sp.path + "/" + name)
}
