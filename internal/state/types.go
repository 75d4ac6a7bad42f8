// Package state persists snapshots of the RAM filesystem between runs.
package state

import (
	"encoding/hex"
	"errors"
	"fmt"

	"vnodefs/internal/vfs"

	"github.com/zeebo/blake3"
)

// CurrentVersion is the snapshot format written by SaveState.
const CurrentVersion = 1

// ErrChecksumMismatch means the snapshot on disk does not match its checksum.
var ErrChecksumMismatch = errors.New("state checksum mismatch")

// Node kinds stored in a snapshot.
const (
	KindDir  = "dir"
	KindFile = "file"
)

// NodeState is one directory or file of a snapshot.
type NodeState struct {
	// Path relative to the captured root, without a leading slash
	Path string `json:"path"`

	Type string `json:"type"`

	// File content, empty for directories
	Data []byte `json:"data,omitempty"`
}

// FSState represents a captured tree in pre-order.
type FSState struct {
	// Version for future compatibility
	Version int `json:"version"`

	Nodes []NodeState `json:"nodes"`

	// Hex blake3 digest over every node
	Checksum string `json:"checksum"`
}

// NewFSState returns an empty snapshot.
func NewFSState() *FSState {
	s := &FSState{Version: CurrentVersion, Nodes: []NodeState{}}
	s.Checksum = s.ComputeChecksum()
	return s
}

// ComputeChecksum hashes the path, type and data of every node in order.
func (s *FSState) ComputeChecksum() string {
	h := blake3.New()
	for _, n := range s.Nodes {
		fmt.Fprintf(h, "%s\x00%s\x00%d\x00", n.Path, n.Type, len(n.Data))
		h.Write(n.Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks the stored checksum.
func (s *FSState) Verify() error {
	if got := s.ComputeChecksum(); got != s.Checksum {
		return fmt.Errorf("%w: have %s, computed %s", ErrChecksumMismatch, s.Checksum, got)
	}
	return nil
}

func kindOf(ty vfs.NodeType) (string, bool) {
	switch ty {
	case vfs.TypeDir:
		return KindDir, true
	case vfs.TypeFile:
		return KindFile, true
	default:
		return "", false
	}
}
