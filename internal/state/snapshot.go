package state

import (
	"errors"
	"fmt"

	"vnodefs/internal/mount"
	"vnodefs/internal/vfs"
)

// readChunk is the buffer size used when reading file content.
const readChunk = 64 * 1024

// Capture walks the tree under root and records directories and regular
// files in pre-order. Other node types are skipped.
func Capture(root vfs.Node) (*FSState, error) {
	s := &FSState{Version: CurrentVersion, Nodes: []NodeState{}}
	if err := capture(s, root, ""); err != nil {
		return nil, err
	}
	s.Checksum = s.ComputeChecksum()
	logger.Debug("Captured %d nodes", len(s.Nodes))
	return s, nil
}

func capture(s *FSState, dir vfs.Node, prefix string) error {
	entries, err := mount.ReadDirAll(dir)
	if err != nil {
		return fmt.Errorf("failed to list %q: %w", prefix, err)
	}
	for _, e := range entries {
		path := e.Name
		if prefix != "" {
			path = prefix + "/" + e.Name
		}
		kind, ok := kindOf(e.Type)
		if !ok {
			logger.Debug("Skipping %s node %q", e.Type, path)
			continue
		}
		node, err := dir.Lookup(e.Name)
		if err != nil {
			return fmt.Errorf("failed to look up %q: %w", path, err)
		}

		if kind == KindDir {
			s.Nodes = append(s.Nodes, NodeState{Path: path, Type: KindDir})
			if err := capture(s, node, path); err != nil {
				return err
			}
			continue
		}

		data, err := readAll(node)
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", path, err)
		}
		s.Nodes = append(s.Nodes, NodeState{Path: path, Type: KindFile, Data: data})
	}
	return nil
}

func readAll(node vfs.Node) ([]byte, error) {
	attr, err := node.GetAttr()
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, attr.Size)
	buf := make([]byte, readChunk)
	for {
		n, err := node.ReadAt(uint64(len(data)), buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			if len(data) == 0 {
				return nil, nil
			}
			return data, nil
		}
		data = append(data, buf[:n]...)
	}
}

// Restore recreates the nodes of s under root. Existing directories are
// reused and existing files are overwritten.
func Restore(s *FSState, root vfs.Node) error {
	if err := s.Verify(); err != nil {
		return err
	}
	for _, n := range s.Nodes {
		var ty vfs.NodeType
		switch n.Type {
		case KindDir:
			ty = vfs.TypeDir
		case KindFile:
			ty = vfs.TypeFile
		default:
			return fmt.Errorf("unknown node type %q for %q", n.Type, n.Path)
		}

		if err := root.Create(n.Path, ty); err != nil && !errors.Is(err, vfs.ErrAlreadyExists) {
			return fmt.Errorf("failed to create %q: %w", n.Path, err)
		}
		if ty != vfs.TypeFile {
			continue
		}

		node, err := root.Lookup(n.Path)
		if err != nil {
			return fmt.Errorf("failed to look up %q: %w", n.Path, err)
		}
		if err := node.Truncate(0); err != nil {
			return fmt.Errorf("failed to truncate %q: %w", n.Path, err)
		}
		if _, err := node.WriteAt(0, n.Data); err != nil {
			return fmt.Errorf("failed to write %q: %w", n.Path, err)
		}
	}
	logger.Info("Restored %d nodes", len(s.Nodes))
	return nil
}
