package ramfs

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"vnodefs/internal/vfs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTree creates:
//
//	/
//	├── f1
//	├── foo
//	│   ├── bar
//	│   │   └── f3
//	│   └── f2
//	└── tmp
func buildTree(t *testing.T, fs *FS) {
	t.Helper()
	root := fs.RootDir()
	require.NoError(t, root.Create("f1", vfs.TypeFile))
	require.NoError(t, root.Create("foo", vfs.TypeDir))
	require.NoError(t, root.Create("tmp", vfs.TypeDir))
	require.NoError(t, root.Create("foo/f2", vfs.TypeFile))
	require.NoError(t, root.Create("foo/bar", vfs.TypeDir))
	require.NoError(t, root.Create("/foo/bar/f3", vfs.TypeFile))
}

func names(t *testing.T, dir vfs.Node) []string {
	t.Helper()
	entries := make([]vfs.DirEntry, 32)
	n, err := dir.ReadDir(0, entries)
	require.NoError(t, err)
	var out []string
	for _, e := range entries[:n] {
		out = append(out, e.Name)
	}
	return out
}

func TestCreateAndLookup(t *testing.T) {
	fs := New()
	buildTree(t, fs)
	root := fs.RootDir()

	assert.Equal(t, []string{"f1", "foo", "tmp"}, fs.RootDirNode().Entries())
	assert.Equal(t, []string{".", "..", "f1", "foo", "tmp"}, names(t, root))

	t.Run("lookups", func(t *testing.T) {
		for path, ty := range map[string]vfs.NodeType{
			"f1":               vfs.TypeFile,
			"/foo/f2":          vfs.TypeFile,
			"foo/bar/f3":       vfs.TypeFile,
			"foo/bar/../f2":    vfs.TypeFile,
			"./foo/./bar/":     vfs.TypeDir,
			"foo/bar/../../f1": vfs.TypeFile,
			"":                 vfs.TypeDir,
		} {
			node, err := root.Lookup(path)
			require.NoError(t, err, path)
			assert.Equal(t, ty, vfs.TypeOf(node), path)
		}
	})

	t.Run("errors", func(t *testing.T) {
		_, err := root.Lookup("nope")
		assert.ErrorIs(t, err, vfs.ErrNotFound)
		_, err = root.Lookup("f1/")
		assert.ErrorIs(t, err, vfs.ErrNotADirectory)
		_, err = root.Lookup("..")
		assert.ErrorIs(t, err, vfs.ErrNotFound)

		assert.ErrorIs(t, root.Create("f1", vfs.TypeFile), vfs.ErrAlreadyExists)
		assert.ErrorIs(t, root.Create("foo", vfs.TypeFile), vfs.ErrAlreadyExists)
		assert.ErrorIs(t, root.Create("dev", vfs.TypeCharDevice), vfs.ErrUnsupported)
		assert.ErrorIs(t, root.Create("missing/x", vfs.TypeFile), vfs.ErrNotFound)
		assert.ErrorIs(t, root.Create("f1/x", vfs.TypeFile), vfs.ErrNotADirectory)
		assert.NoError(t, root.Create("..", vfs.TypeDir))
		assert.NoError(t, root.Create("foo/.", vfs.TypeDir))
	})

	t.Run("parents", func(t *testing.T) {
		foo, err := root.Lookup("foo")
		require.NoError(t, err)
		assert.Same(t, fs.RootDirNode(), foo.Parent())
		assert.Nil(t, root.Parent())
		assert.True(t, fs.RootDirNode().Exists("foo"))
		assert.False(t, fs.RootDirNode().Exists("bar"))
	})
}

func TestFileIO(t *testing.T) {
	fs := New()
	buildTree(t, fs)
	f, err := fs.RootDir().Lookup("foo/f2")
	require.NoError(t, err)

	n, err := f.WriteAt(0, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 16)
	n, err = f.ReadAt(0, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	n, err = f.ReadAt(3, buf)
	require.NoError(t, err)
	assert.Equal(t, "lo", string(buf[:n]))

	n, err = f.ReadAt(5, buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = f.ReadAt(1<<40, buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	t.Run("sparse write", func(t *testing.T) {
		_, err := f.WriteAt(10, []byte("!"))
		require.NoError(t, err)
		out := make([]byte, 20)
		n, err := f.ReadAt(0, out)
		require.NoError(t, err)
		assert.Equal(t, 11, n)
		assert.Equal(t, append([]byte("hello\x00\x00\x00\x00\x00"), '!'), out[:n])

		attr, err := f.GetAttr()
		require.NoError(t, err)
		assert.Equal(t, uint64(11), attr.Size)
		assert.Equal(t, uint64(1), attr.Blocks)
		assert.Equal(t, vfs.DefaultFilePerm, attr.Perm)
	})

	t.Run("truncate", func(t *testing.T) {
		require.NoError(t, f.Truncate(2))
		out := make([]byte, 8)
		n, err := f.ReadAt(0, out)
		require.NoError(t, err)
		assert.Equal(t, "he", string(out[:n]))

		require.NoError(t, f.Truncate(6))
		n, err = f.ReadAt(0, out)
		require.NoError(t, err)
		assert.Equal(t, []byte("he\x00\x00\x00\x00"), out[:n])
		assert.Equal(t, uint64(6), fs.UsedBytes())
	})

	t.Run("directory file ops", func(t *testing.T) {
		_, err := fs.RootDir().ReadAt(0, buf)
		assert.ErrorIs(t, err, vfs.ErrIsADirectory)
		assert.ErrorIs(t, fs.RootDir().Truncate(0), vfs.ErrIsADirectory)
		_, err = f.ReadDir(0, make([]vfs.DirEntry, 1))
		assert.ErrorIs(t, err, vfs.ErrNotADirectory)
		assert.NoError(t, f.Fsync())
	})
}

func TestRemove(t *testing.T) {
	fs := New()
	buildTree(t, fs)
	root := fs.RootDir()

	assert.ErrorIs(t, root.Remove("foo"), vfs.ErrDirectoryNotEmpty)
	assert.ErrorIs(t, root.Remove("foo/bar"), vfs.ErrDirectoryNotEmpty)
	assert.ErrorIs(t, root.Remove("nope"), vfs.ErrNotFound)
	assert.ErrorIs(t, root.Remove("nope/x"), vfs.ErrNotFound)
	assert.ErrorIs(t, root.Remove("."), vfs.ErrInvalidInput)
	assert.ErrorIs(t, root.Remove(".."), vfs.ErrInvalidInput)
	assert.ErrorIs(t, root.Remove("foo/.."), vfs.ErrInvalidInput)
	assert.ErrorIs(t, root.Remove("f1/x"), vfs.ErrNotADirectory)

	require.NoError(t, root.Remove("foo/bar/f3"))
	require.NoError(t, root.Remove("foo/bar"))
	require.NoError(t, root.Remove("foo/f2"))
	require.NoError(t, root.Remove("foo/../foo"))
	require.NoError(t, root.Remove("f1"))
	require.NoError(t, root.Remove("tmp"))

	assert.Equal(t, []string{".", ".."}, names(t, root))
	assert.Equal(t, 0, fs.RootDirNode().Len())
}

func TestRename(t *testing.T) {
	setup := func(t *testing.T) (*FS, vfs.Node) {
		fs := New()
		buildTree(t, fs)
		f, err := fs.RootDir().Lookup("f1")
		require.NoError(t, err)
		_, err = f.WriteAt(0, []byte("one"))
		require.NoError(t, err)
		return fs, fs.RootDir()
	}

	t.Run("file within directory", func(t *testing.T) {
		_, root := setup(t)
		require.NoError(t, root.Rename("f1", "f9"))
		_, err := root.Lookup("f1")
		assert.ErrorIs(t, err, vfs.ErrNotFound)
		f, err := root.Lookup("f9")
		require.NoError(t, err)
		buf := make([]byte, 3)
		_, err = f.ReadAt(0, buf)
		require.NoError(t, err)
		assert.Equal(t, "one", string(buf))
	})

	t.Run("directory across directories", func(t *testing.T) {
		_, root := setup(t)
		require.NoError(t, root.Rename("foo/bar", "tmp/baz"))
		baz, err := root.Lookup("tmp/baz")
		require.NoError(t, err)
		tmp, err := root.Lookup("tmp")
		require.NoError(t, err)
		assert.Same(t, tmp, baz.Parent())
		_, err = root.Lookup("tmp/baz/f3")
		assert.NoError(t, err)
		assert.Equal(t, []string{"f2"}, mustDir(t, root, "foo").Entries())
		assert.Equal(t, 1, mustDir(t, root, "tmp").Len())
	})

	t.Run("replace file", func(t *testing.T) {
		fs, root := setup(t)
		f2, err := root.Lookup("foo/f2")
		require.NoError(t, err)
		_, err = f2.WriteAt(0, []byte("twotwo"))
		require.NoError(t, err)
		assert.Equal(t, uint64(9), fs.UsedBytes())

		require.NoError(t, root.Rename("f1", "foo/f2"))
		assert.Equal(t, uint64(3), fs.UsedBytes())
		f, err := root.Lookup("foo/f2")
		require.NoError(t, err)
		attr, err := f.GetAttr()
		require.NoError(t, err)
		assert.Equal(t, uint64(3), attr.Size)
	})

	t.Run("replace empty directory", func(t *testing.T) {
		_, root := setup(t)
		require.NoError(t, root.Create("empty", vfs.TypeDir))
		require.NoError(t, root.Rename("tmp", "empty"))
		_, err := root.Lookup("tmp")
		assert.ErrorIs(t, err, vfs.ErrNotFound)
	})

	t.Run("errors", func(t *testing.T) {
		_, root := setup(t)
		assert.ErrorIs(t, root.Rename("missing", "x"), vfs.ErrNotFound)
		assert.ErrorIs(t, root.Rename("missing/a", "x"), vfs.ErrNotFound)
		assert.ErrorIs(t, root.Rename("f1", "foo"), vfs.ErrIsADirectory)
		assert.ErrorIs(t, root.Rename("tmp", "f1"), vfs.ErrNotADirectory)
		assert.ErrorIs(t, root.Rename("tmp", "foo"), vfs.ErrDirectoryNotEmpty)
		assert.ErrorIs(t, root.Rename("foo", "foo/bar/inner"), vfs.ErrInvalidInput)
		assert.ErrorIs(t, root.Rename("foo", "foo/inner"), vfs.ErrInvalidInput)
		assert.ErrorIs(t, root.Rename(".", "x"), vfs.ErrInvalidInput)
		assert.ErrorIs(t, root.Rename("f1", ".."), vfs.ErrInvalidInput)
		assert.ErrorIs(t, root.Rename("f1", "f1/x"), vfs.ErrNotADirectory)
	})

	t.Run("self", func(t *testing.T) {
		_, root := setup(t)
		assert.NoError(t, root.Rename("f1", "./f1"))
		_, err := root.Lookup("f1")
		assert.NoError(t, err)
	})

	t.Run("cross filesystem", func(t *testing.T) {
		_, root := setup(t)
		other := New()
		require.NoError(t, other.RootDir().Create("x", vfs.TypeFile))
		mustDir(t, root, "tmp").SetParent(other.RootDir())
		assert.ErrorIs(t, root.Rename("f1", "tmp/../x"), vfs.ErrCrossDevice)
	})
}

func mustDir(t *testing.T, root vfs.Node, path string) *DirNode {
	t.Helper()
	node, err := root.Lookup(path)
	require.NoError(t, err)
	dir, ok := node.(*DirNode)
	require.True(t, ok)
	return dir
}

func TestLimitAndStatFS(t *testing.T) {
	fs := NewWithLimit(2 * BlockSize)
	root := fs.RootDir()
	require.NoError(t, root.Create("a", vfs.TypeFile))
	require.NoError(t, root.Create("d", vfs.TypeDir))
	a, err := root.Lookup("a")
	require.NoError(t, err)

	_, err = a.WriteAt(0, bytes.Repeat([]byte{'x'}, BlockSize+1))
	require.NoError(t, err)

	info, err := fs.StatFS()
	require.NoError(t, err)
	assert.Equal(t, uint32(BlockSize), info.BlockSize)
	assert.Equal(t, uint64(2), info.Blocks)
	assert.Equal(t, uint64(0), info.BlocksFree)
	assert.Equal(t, uint64(3), info.Files)
	assert.Equal(t, uint32(vfs.MaxNameLen), info.NameLen)

	_, err = a.WriteAt(2*BlockSize, []byte{'y'})
	assert.ErrorIs(t, err, vfs.ErrNoSpace)
	assert.ErrorIs(t, a.Truncate(3*BlockSize), vfs.ErrNoSpace)

	require.NoError(t, a.Truncate(10))
	info, err = fs.StatFS()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.BlocksFree)

	t.Run("removal releases space", func(t *testing.T) {
		require.NoError(t, root.Remove("a"))
		assert.Equal(t, uint64(0), fs.UsedBytes())

		// A detached file no longer counts.
		_, err := a.WriteAt(0, []byte("still writable"))
		require.NoError(t, err)
		assert.Equal(t, uint64(0), fs.UsedBytes())
	})

	t.Run("unlimited", func(t *testing.T) {
		u := New()
		info, err := u.StatFS()
		require.NoError(t, err)
		assert.Equal(t, uint64(0), info.Blocks)
		assert.Equal(t, uint64(1), info.Files)
	})

	_, err = a.WriteAt(MaxFileSize, []byte{1})
	assert.ErrorIs(t, err, vfs.ErrNoSpace)
}

func TestFormat(t *testing.T) {
	fs := New()
	buildTree(t, fs)
	f, err := fs.RootDir().Lookup("f1")
	require.NoError(t, err)
	_, err = f.WriteAt(0, []byte("abc"))
	require.NoError(t, err)

	require.NoError(t, fs.Format())
	assert.Empty(t, fs.RootDirNode().Entries())
	assert.Equal(t, uint64(0), fs.UsedBytes())

	info, err := fs.StatFS()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Files)

	require.NoError(t, fs.RootDir().Create("again", vfs.TypeFile))
}

func TestMountParent(t *testing.T) {
	outer := New()
	require.NoError(t, outer.RootDir().Create("mnt", vfs.TypeDir))
	mp, err := outer.RootDir().Lookup("mnt")
	require.NoError(t, err)

	inner := New()
	require.NoError(t, inner.Mount("/mnt", mp))
	assert.Same(t, outer.RootDirNode(), inner.RootDir().Parent())

	// ".." out of the mounted root reaches the outer filesystem.
	require.NoError(t, inner.RootDir().Create("../made-from-inner", vfs.TypeFile))
	assert.True(t, outer.RootDirNode().Exists("made-from-inner"))

	require.NoError(t, inner.Mount("/", nil))
	assert.Nil(t, inner.RootDir().Parent())
	assert.NoError(t, inner.Unmount())
}

func TestConcurrentCreate(t *testing.T) {
	fs := New()
	root := fs.RootDir()

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = root.Create("same", vfs.TypeFile)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, vfs.ErrAlreadyExists)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestNameLength(t *testing.T) {
	fs := New()
	root := fs.RootDir()

	longest := strings.Repeat("n", vfs.MaxNameLen)
	tooLong := longest + "n"

	require.NoError(t, root.Create(longest, vfs.TypeFile))
	assert.ErrorIs(t, root.Create(tooLong, vfs.TypeFile), vfs.ErrNameTooLong)
	assert.ErrorIs(t, root.Create(tooLong, vfs.TypeDir), vfs.ErrNameTooLong)
	assert.ErrorIs(t, root.Rename(longest, tooLong), vfs.ErrNameTooLong)

	// Every listed name can be looked up again.
	for _, name := range names(t, root)[2:] {
		_, err := root.Lookup(name)
		assert.NoError(t, err, name)
	}
	assert.Equal(t, []string{".", "..", longest}, names(t, root))

	info, err := fs.StatFS()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.Files)
}

func TestRemoveRacesCreate(t *testing.T) {
	fs := New()
	root := fs.RootDirNode()

	for i := 0; i < 2000; i++ {
		require.NoError(t, root.CreateNode("d", vfs.TypeDir))
		node, err := root.Lookup("d")
		require.NoError(t, err)
		d := node.(*DirNode)

		var wg sync.WaitGroup
		var removeErr, createErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			removeErr = root.RemoveNode("d")
		}()
		go func() {
			defer wg.Done()
			createErr = d.CreateNode("f", vfs.TypeFile)
		}()
		wg.Wait()

		if removeErr == nil {
			require.ErrorIs(t, createErr, vfs.ErrNotFound, "iteration %d", i)
		} else {
			require.ErrorIs(t, removeErr, vfs.ErrDirectoryNotEmpty, "iteration %d", i)
			require.NoError(t, createErr)
			require.NoError(t, d.RemoveNode("f"))
			require.NoError(t, root.RemoveNode("d"))
		}

		info, err := fs.StatFS()
		require.NoError(t, err)
		require.Equal(t, uint64(1), info.Files, "iteration %d", i)
		require.Empty(t, root.Entries())
	}
}

func TestRenameOverRemovedDirectory(t *testing.T) {
	fs := New()
	buildTree(t, fs)
	root := fs.RootDirNode()

	require.NoError(t, root.Create("empty", vfs.TypeDir))
	node, err := root.Lookup("tmp")
	require.NoError(t, err)
	replaced := node.(*DirNode)

	require.NoError(t, root.Rename("empty", "tmp"))
	assert.ErrorIs(t, replaced.CreateNode("late", vfs.TypeFile), vfs.ErrNotFound)

	node, err = root.Lookup("foo/bar")
	require.NoError(t, err)
	formatted := node.(*DirNode)
	require.NoError(t, fs.Format())
	assert.ErrorIs(t, formatted.CreateNode("late", vfs.TypeFile), vfs.ErrNotFound)
	assert.ErrorIs(t, formatted.RemoveNode("f3"), vfs.ErrNotFound)

	info, err := fs.StatFS()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Files)
}
