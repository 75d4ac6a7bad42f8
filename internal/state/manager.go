package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"vnodefs/internal/logging"
)

var (
	logger = logging.GetLogger().WithPrefix("state")
)

// Manager handles loading and saving snapshots
type Manager struct {
	statePath   string
	backupDir   string
	backupCount int
	mu          sync.RWMutex
}

// NewManager creates a state manager for the given state file path,
// resolved against the working directory. It ensures the state directory
// exists and is writable.
func NewManager(statePath string) (*Manager, error) {
	logger.Debug("Creating new state manager with path: %s", statePath)

	absPath, err := filepath.Abs(statePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state path: %w", err)
	}
	logger.Debug("Resolved state path: %s", absPath)

	// Create parent directory if it doesn't exist
	stateDir := filepath.Dir(absPath)
	logger.Debug("Ensuring state directory exists: %s", stateDir)
	if mkdirErr := os.MkdirAll(stateDir, 0755); mkdirErr != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, mkdirErr)
	}

	// Try to create an empty file to verify we have write permissions
	f, writeErr := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE, 0644)
	if writeErr != nil {
		return nil, fmt.Errorf("failed to create state file %s: %w", absPath, writeErr)
	}
	f.Close()

	backupDir := filepath.Join(stateDir, ".vnodefs-backups")
	logger.Debug("Creating backup directory: %s", backupDir)
	if backupDirErr := os.MkdirAll(backupDir, 0755); backupDirErr != nil {
		return nil, fmt.Errorf("failed to create backup directory %s: %w", backupDir, backupDirErr)
	}

	logger.Info("State manager initialization complete")
	return &Manager{
		statePath:   absPath,
		backupDir:   backupDir,
		backupCount: 5,
	}, nil
}

// LoadState loads the snapshot from disk.
// If no state file exists or it is empty, it writes and returns an empty one.
func (sm *Manager) LoadState() (*FSState, error) {
	logger.Debug("Loading state from: %s", sm.statePath)
	sm.mu.Lock()
	defer sm.mu.Unlock()

	data, err := os.ReadFile(sm.statePath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	if len(data) == 0 {
		logger.Info("No valid state file, creating new state")
		state := NewFSState()
		if err := sm.write(state); err != nil {
			return nil, fmt.Errorf("failed to write initial state: %w", err)
		}
		logger.Info("Created new state file successfully")
		return state, nil
	}

	logger.Debug("Parsing existing state file (%d bytes)", len(data))
	var state FSState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if state.Version > CurrentVersion {
		return nil, fmt.Errorf("state file version %d is newer than supported version %d", state.Version, CurrentVersion)
	}
	if state.Nodes == nil {
		state.Nodes = []NodeState{}
	}
	if err := state.Verify(); err != nil {
		logger.Error("State file %s is corrupt: %v", sm.statePath, err)
		return nil, err
	}

	logger.Info("State loaded successfully (%d nodes)", len(state.Nodes))
	return &state, nil
}

// SaveState saves the snapshot to disk, refreshing its checksum.
// It automatically creates a backup before saving.
func (sm *Manager) SaveState(state *FSState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	logger.Debug("Saving state to: %s", sm.statePath)

	// Create backup before saving
	if backupErr := sm.createBackup(); backupErr != nil {
		logger.Warn("Failed to create backup: %v", backupErr)
		// Continue with save even if backup fails
	}

	state.Version = CurrentVersion
	state.Checksum = state.ComputeChecksum()
	if err := sm.write(state); err != nil {
		return err
	}

	// Verify the write
	written, verifyErr := os.ReadFile(sm.statePath)
	if verifyErr != nil {
		return fmt.Errorf("failed to verify written state: %w", verifyErr)
	}
	if len(written) == 0 {
		return fmt.Errorf("state file is empty after write")
	}

	logger.Debug("State saved and verified successfully")
	return nil
}

// write replaces the state file through a temporary file in the same
// directory.
func (sm *Manager) write(state *FSState) error {
	// Marshal with indentation for readability
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	logger.Trace("Writing %d bytes of state data", len(data))
	tmp := sm.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, sm.statePath); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// StatePath returns the absolute path of the state file.
func (sm *Manager) StatePath() string {
	return sm.statePath
}

// createBackup creates a timestamped backup of the current state file
func (sm *Manager) createBackup() error {
	data, err := os.ReadFile(sm.statePath)
	if os.IsNotExist(err) || (err == nil && len(data) == 0) {
		// Nothing worth keeping yet
		return nil
	}
	if err != nil {
		return err
	}

	timestamp := time.Now().Format("20060102-150405.000000")
	backupPath := filepath.Join(sm.backupDir, fmt.Sprintf("state-%s.json", timestamp))

	logger.Debug("Creating backup: %s", backupPath)
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	return sm.cleanupOldBackups()
}

// cleanupOldBackups removes old backup files, keeping only the most recent ones
func (sm *Manager) cleanupOldBackups() error {
	entries, err := os.ReadDir(sm.backupDir)
	if err != nil {
		return err
	}

	type backup struct {
		path    string
		modTime time.Time
	}

	backups := make([]backup, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			backups = append(backups, backup{
				path:    filepath.Join(sm.backupDir, entry.Name()),
				modTime: info.ModTime(),
			})
		}
	}

	// Sort by modification time, newest first
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].modTime.After(backups[j].modTime)
	})

	// Remove old backups
	for i := sm.backupCount; i < len(backups); i++ {
		logger.Debug("Removing old backup: %s", backups[i].path)
		if err := os.Remove(backups[i].path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i].path, err)
		}
	}

	return nil
}
