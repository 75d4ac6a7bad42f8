package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vnodefs/internal/config"
	"vnodefs/internal/vfs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	source := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(source, "hello.txt"), []byte("hi"), 0644))

	cfg := config.DefaultConfig()
	cfg.Root.MaxSize = 1 << 20
	cfg.Hostfs = []config.HostfsMount{{Path: "/mnt/host", Source: source}}
	return cfg
}

func TestBuild(t *testing.T) {
	a, err := Build(testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	paths := []string{}
	for _, mp := range a.Table.Mounts() {
		paths = append(paths, mp.Path)
	}
	assert.Equal(t, []string{"/", "/dev", "/mnt/host", "/tmp"}, paths)

	for _, dev := range []string{"/dev/null", "/dev/zero", "/dev/urandom"} {
		attr, err := a.Table.Stat(dev)
		require.NoError(t, err, dev)
		assert.Equal(t, vfs.TypeCharDevice, attr.Type)
	}

	node, err := a.Table.Lookup("/mnt/host/hello.txt")
	require.NoError(t, err)
	buf := make([]byte, 2)
	n, err := node.ReadAt(0, buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))

	info, err := a.Root.StatFS()
	require.NoError(t, err)
	assert.Equal(t, uint64(256), info.Blocks)
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Ramfs = append(cfg.Ramfs, config.RamfsMount{Path: "relative"})
	_, err := Build(cfg)
	assert.ErrorContains(t, err, "invalid configuration")

	cfg = testConfig(t)
	cfg.Hostfs[0].Source = filepath.Join(t.TempDir(), "missing")
	_, err = Build(cfg)
	assert.ErrorContains(t, err, "hostfs /mnt/host")
}

func TestStatePersistsAcrossRuns(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	cfg := testConfig(t)
	cfg.State.Path = statePath

	a, err := Build(cfg)
	require.NoError(t, err)
	require.NoError(t, a.Table.Create("/docs", vfs.TypeDir))
	require.NoError(t, a.Table.Create("/docs/a.txt", vfs.TypeFile))
	node, err := a.Table.Lookup("/docs/a.txt")
	require.NoError(t, err)
	_, err = node.WriteAt(0, []byte("persisted"))
	require.NoError(t, err)
	// Files on other mounts are not part of the snapshot.
	require.NoError(t, a.Table.Create("/tmp/scratch", vfs.TypeFile))
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	b, err := Build(cfg)
	require.NoError(t, err)
	defer b.Close()

	node, err = b.Table.Lookup("/docs/a.txt")
	require.NoError(t, err)
	buf := make([]byte, 32)
	n, err := node.ReadAt(0, buf)
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(buf[:n]))

	_, err = b.Table.Lookup("/tmp/scratch")
	assert.ErrorIs(t, err, vfs.ErrNotFound)
}

func TestWriteTree(t *testing.T) {
	a, err := Build(testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Table.Create("/tmp/f", vfs.TypeFile))
	node, err := a.Table.Lookup("/tmp/f")
	require.NoError(t, err)
	_, err = node.WriteAt(0, make([]byte, 2048))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, a.WriteTree(&buf))
	out := buf.String()

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "d"))
	assert.True(t, strings.HasSuffix(lines[0], "  /"))
	assert.Contains(t, out, "/dev/urandom")
	assert.Contains(t, out, "/mnt/host/hello.txt")
	assert.Regexp(t, `(?m)^c.* /dev/null$`, out)
	assert.Regexp(t, `(?m)^-.*2.0 KiB  /tmp/f$`, out)
}

func TestWriteMounts(t *testing.T) {
	cfg := testConfig(t)
	a, err := Build(cfg)
	require.NoError(t, err)
	defer a.Close()

	var buf bytes.Buffer
	require.NoError(t, a.WriteMounts(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Regexp(t, `^/ +ramfs 0 B$`, lines[0])
	assert.Regexp(t, `^/dev +devfs$`, lines[1])
	assert.Equal(t, "/mnt/host    hostfs "+cfg.Hostfs[0].Source, lines[2])
	assert.Regexp(t, `^/tmp +ramfs `, lines[3])
}
