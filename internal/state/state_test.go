package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vnodefs/internal/devfs"
	"vnodefs/internal/ramfs"
	"vnodefs/internal/vfs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populate(t *testing.T, root vfs.Node) {
	t.Helper()
	require.NoError(t, root.Create("docs", vfs.TypeDir))
	require.NoError(t, root.Create("docs/deep", vfs.TypeDir))
	require.NoError(t, root.Create("docs/deep/note.txt", vfs.TypeFile))
	require.NoError(t, root.Create("empty", vfs.TypeFile))
	require.NoError(t, root.Create("big", vfs.TypeFile))

	note, err := root.Lookup("docs/deep/note.txt")
	require.NoError(t, err)
	_, err = note.WriteAt(0, []byte("remember"))
	require.NoError(t, err)

	big, err := root.Lookup("big")
	require.NoError(t, err)
	data := make([]byte, 3*readChunk+17)
	for i := range data {
		data[i] = byte(i)
	}
	_, err = big.WriteAt(0, data)
	require.NoError(t, err)
}

func TestCaptureRestore(t *testing.T) {
	src := ramfs.New()
	populate(t, src.RootDir())

	state, err := Capture(src.RootDir())
	require.NoError(t, err)
	require.NoError(t, state.Verify())

	paths := []string{}
	for _, n := range state.Nodes {
		paths = append(paths, n.Path)
	}
	assert.Equal(t, []string{"big", "docs", "docs/deep", "docs/deep/note.txt", "empty"}, paths)
	assert.Len(t, state.Nodes[0].Data, 3*readChunk+17)

	dst := ramfs.New()
	require.NoError(t, Restore(state, dst.RootDir()))

	again, err := Capture(dst.RootDir())
	require.NoError(t, err)
	assert.Equal(t, state.Checksum, again.Checksum)
	assert.Equal(t, src.UsedBytes(), dst.UsedBytes())
}

func TestRestoreOverwrites(t *testing.T) {
	src := ramfs.New()
	populate(t, src.RootDir())
	state, err := Capture(src.RootDir())
	require.NoError(t, err)

	dst := ramfs.New()
	require.NoError(t, dst.RootDir().Create("docs", vfs.TypeDir))
	require.NoError(t, dst.RootDir().Create("empty", vfs.TypeFile))
	node, err := dst.RootDir().Lookup("empty")
	require.NoError(t, err)
	_, err = node.WriteAt(0, []byte("stale content"))
	require.NoError(t, err)

	require.NoError(t, Restore(state, dst.RootDir()))
	attr, err := node.GetAttr()
	require.NoError(t, err)
	assert.Zero(t, attr.Size)
}

func TestCaptureSkipsDevices(t *testing.T) {
	dev := devfs.New()
	dev.Add("null", devfs.NullDev{})
	dev.Mkdir("sub").Add("zero", devfs.ZeroDev{})

	state, err := Capture(dev.RootDir())
	require.NoError(t, err)
	require.Len(t, state.Nodes, 1)
	assert.Equal(t, NodeState{Path: "sub", Type: KindDir}, state.Nodes[0])
}

func TestRestoreRejectsTampering(t *testing.T) {
	src := ramfs.New()
	populate(t, src.RootDir())
	state, err := Capture(src.RootDir())
	require.NoError(t, err)

	state.Nodes[0].Data[0] ^= 0xff
	err = Restore(state, ramfs.New().RootDir())
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	state.Nodes = append(state.Nodes, NodeState{Path: "x", Type: "socket"})
	state.Checksum = state.ComputeChecksum()
	assert.Error(t, Restore(state, ramfs.New().RootDir()))
}

func TestManagerLoadSave(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "nested", "state.json")

	sm, err := NewManager(statePath)
	require.NoError(t, err)
	assert.Equal(t, statePath, sm.StatePath())
	assert.DirExists(t, filepath.Join(dir, "nested", ".vnodefs-backups"))

	t.Run("empty file gives empty state", func(t *testing.T) {
		state, err := sm.LoadState()
		require.NoError(t, err)
		assert.Empty(t, state.Nodes)
		assert.Equal(t, CurrentVersion, state.Version)
		require.NoError(t, state.Verify())
	})

	t.Run("round trip", func(t *testing.T) {
		src := ramfs.New()
		populate(t, src.RootDir())
		state, err := Capture(src.RootDir())
		require.NoError(t, err)
		require.NoError(t, sm.SaveState(state))

		loaded, err := sm.LoadState()
		require.NoError(t, err)
		assert.Equal(t, state.Checksum, loaded.Checksum)
		assert.Equal(t, state.Nodes, loaded.Nodes)
	})

	t.Run("checksum mismatch", func(t *testing.T) {
		data, err := os.ReadFile(statePath)
		require.NoError(t, err)
		var raw FSState
		require.NoError(t, json.Unmarshal(data, &raw))
		raw.Nodes[0].Path = "renamed"
		data, err = json.Marshal(raw)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(statePath, data, 0600))

		_, err = sm.LoadState()
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("newer version rejected", func(t *testing.T) {
		s := NewFSState()
		s.Version = CurrentVersion + 1
		data, err := json.Marshal(s)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(statePath, data, 0600))
		_, err = sm.LoadState()
		assert.Error(t, err)
	})
}

func TestBackupsAreLimited(t *testing.T) {
	dir := t.TempDir()
	sm, err := NewManager(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	_, err = sm.LoadState()
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		require.NoError(t, sm.SaveState(NewFSState()))
	}

	entries, err := os.ReadDir(filepath.Join(dir, ".vnodefs-backups"))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(entries), 5)
	assert.NotEmpty(t, entries)
}

func TestCaptureLongestNames(t *testing.T) {
	root := ramfs.New().RootDir()
	longest := strings.Repeat("n", vfs.MaxNameLen)

	assert.ErrorIs(t, root.Create(longest+"n", vfs.TypeFile), vfs.ErrNameTooLong)
	require.NoError(t, root.Create(longest, vfs.TypeDir))
	require.NoError(t, root.Create(longest+"/"+longest, vfs.TypeFile))

	s, err := Capture(root)
	require.NoError(t, err)
	require.Len(t, s.Nodes, 2)
	assert.Equal(t, longest+"/"+longest, s.Nodes[1].Path)

	restored := ramfs.New().RootDir()
	require.NoError(t, Restore(s, restored))
	_, err = restored.Lookup(longest + "/" + longest)
	assert.NoError(t, err)
}
