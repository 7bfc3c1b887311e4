package handlers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileferry/internal/shared/errs"
)

func TestMkdirCreatesNestedDirectories(t *testing.T) {
	h, reg, root := newTestHandlers(t, nil)

	_, err := run(t, h, reg, "op", "mkdir", "a/b/c")
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(root, "a", "b", "c"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestMkdirExistingFails(t *testing.T) {
	h, reg, _ := newTestHandlers(t, func(root string) {
		require.NoError(t, os.Mkdir(filepath.Join(root, "docs"), 0o755))
	})

	_, err := run(t, h, reg, "op", "mkdir", "docs")
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidArgument, errs.KindOf(err))
}

func TestRemoveFile(t *testing.T) {
	h, reg, root := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "old.txt"), "x")
	})

	_, err := run(t, h, reg, "op", "rm", "old.txt")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "old.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveNonEmptyDirNeedsForce(t *testing.T) {
	h, reg, root := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "docs", "keep.txt"), "x")
	})

	_, err := run(t, h, reg, "op", "rm", "docs")
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidArgument, errs.KindOf(err))
	// Nothing was deleted.
	_, statErr := os.Stat(filepath.Join(root, "docs", "keep.txt"))
	assert.NoError(t, statErr)

	_, err = run(t, h, reg, "op", "rm", "docs", "--force")
	require.NoError(t, err)
	_, statErr = os.Stat(filepath.Join(root, "docs"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRemoveEmptyDirWithoutForce(t *testing.T) {
	h, reg, root := newTestHandlers(t, func(root string) {
		require.NoError(t, os.Mkdir(filepath.Join(root, "empty"), 0o755))
	})

	_, err := run(t, h, reg, "op", "rm", "empty")
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(root, "empty"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRemoveRootRefused(t *testing.T) {
	h, reg, _ := newTestHandlers(t, nil)

	_, err := run(t, h, reg, "op", "rm", "/", "--force")
	require.Error(t, err)
	assert.Equal(t, errs.KindProtected, errs.KindOf(err))
}

func TestCopyFilePreservesContent(t *testing.T) {
	h, reg, root := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "src.txt"), "payload")
	})

	_, err := run(t, h, reg, "op", "cp", "src.txt", "dst.txt")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(root, "dst.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestCopyIntoDirectoryUsesBaseName(t *testing.T) {
	h, reg, root := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "src.txt"), "payload")
		require.NoError(t, os.Mkdir(filepath.Join(root, "backup"), 0o755))
	})

	_, err := run(t, h, reg, "op", "cp", "src.txt", "backup")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(root, "backup", "src.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestCopyDirectoryTree(t *testing.T) {
	h, reg, root := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "proj", "main.go"), "package main")
		writeFile(t, filepath.Join(root, "proj", "sub", "util.go"), "package sub")
	})

	_, err := run(t, h, reg, "op", "cp", "proj", "proj2")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(root, "proj2", "sub", "util.go"))
	require.NoError(t, err)
	assert.Equal(t, "package sub", string(data))
}

func TestCopyOntoItselfFails(t *testing.T) {
	h, reg, _ := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "src.txt"), "payload")
	})

	_, err := run(t, h, reg, "op", "cp", "src.txt", "src.txt")
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidArgument, errs.KindOf(err))
}

func TestCopyIntoOwnSubtreeFails(t *testing.T) {
	h, reg, root := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "proj", "main.go"), "package main")
	})

	_, err := run(t, h, reg, "op", "cp", "proj", "proj/backup")
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidArgument, errs.KindOf(err))
	assert.Contains(t, errs.UserMessage(err), "into itself")

	_, statErr := os.Stat(filepath.Join(root, "proj", "backup"))
	assert.True(t, os.IsNotExist(statErr), "rejected copy must not create anything")

	// Copying into a sibling of the source is still fine.
	_, err = run(t, h, reg, "op", "cp", "proj", "backup")
	require.NoError(t, err)
}

func TestMoveIntoOwnSubtreeFails(t *testing.T) {
	h, reg, _ := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "proj", "main.go"), "package main")
	})

	_, err := run(t, h, reg, "op", "mv", "proj", "proj/nested")
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidArgument, errs.KindOf(err))
}

func TestCopyTreeRemovesPartialDestinationOnFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	h, reg, root := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "proj", "a.txt"), "readable")
		writeFile(t, filepath.Join(root, "proj", "locked.txt"), "secret")
		require.NoError(t, os.Chmod(filepath.Join(root, "proj", "locked.txt"), 0o000))
	})

	_, err := run(t, h, reg, "op", "cp", "proj", "copy")
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(root, "copy"))
	assert.True(t, os.IsNotExist(statErr), "failed copy must not leave a partial tree")
}

func TestMoveRelocatesFile(t *testing.T) {
	h, reg, root := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "src.txt"), "payload")
		require.NoError(t, os.Mkdir(filepath.Join(root, "dest"), 0o755))
	})

	_, err := run(t, h, reg, "op", "mv", "src.txt", "dest")
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(root, "src.txt"))
	assert.True(t, os.IsNotExist(statErr))
	data, err := os.ReadFile(filepath.Join(root, "dest", "src.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestMoveMissingSource(t *testing.T) {
	h, reg, _ := newTestHandlers(t, nil)

	_, err := run(t, h, reg, "op", "mv", "ghost.txt", "dest.txt")
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestRenameWithinDirectory(t *testing.T) {
	h, reg, root := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "docs", "draft.txt"), "x")
	})

	_, err := run(t, h, reg, "op", "rename", "docs/draft.txt", "final.txt")
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(root, "docs", "final.txt"))
	assert.NoError(t, statErr)
}

func TestRenameRejectsPathName(t *testing.T) {
	h, reg, _ := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "a.txt"), "x")
	})

	for _, bad := range []string{"sub/b.txt", "..", "."} {
		_, err := run(t, h, reg, "op", "rename", "a.txt", bad)
		require.Error(t, err, "name %q", bad)
		assert.Equal(t, errs.KindInvalidArgument, errs.KindOf(err))
	}
}

func TestRenameOntoExistingFails(t *testing.T) {
	h, reg, _ := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "a.txt"), "x")
		writeFile(t, filepath.Join(root, "b.txt"), "y")
	})

	_, err := run(t, h, reg, "op", "rename", "a.txt", "b.txt")
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidArgument, errs.KindOf(err))
}

func TestChmodOctal(t *testing.T) {
	h, reg, root := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "script.sh"), "#!/bin/sh\n")
	})

	_, err := run(t, h, reg, "op", "chmod", "755", "script.sh")
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(root, "script.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestChmodSymbolic(t *testing.T) {
	h, reg, root := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "script.sh"), "#!/bin/sh\n")
	})

	_, err := run(t, h, reg, "op", "chmod", "u+x", "script.sh")
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(root, "script.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o744), info.Mode().Perm())

	_, err = run(t, h, reg, "op", "chmod", "go-r", "script.sh")
	require.NoError(t, err)
	info, err = os.Stat(filepath.Join(root, "script.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestChmodRejectsBadSpec(t *testing.T) {
	h, reg, _ := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "a.txt"), "x")
	})

	for _, bad := range []string{"999", "u*x", "z+x", "rw"} {
		_, err := run(t, h, reg, "op", "chmod", bad, "a.txt")
		require.Error(t, err, "spec %q", bad)
		assert.Equal(t, errs.KindInvalidArgument, errs.KindOf(err))
	}
}

func TestMutationsStayInsideRoot(t *testing.T) {
	h, reg, _ := newTestHandlers(t, nil)

	_, err := run(t, h, reg, "op", "mkdir", "../outside")
	require.Error(t, err)
	assert.Equal(t, errs.KindPathEscape, errs.KindOf(err))

	_, err = run(t, h, reg, "op", "rm", "../../etc/passwd", "--force")
	require.Error(t, err)
	assert.Equal(t, errs.KindPathEscape, errs.KindOf(err))
}
