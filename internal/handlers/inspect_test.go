package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fileferry/internal/shared/errs"
)

func TestCatPrintsTextFile(t *testing.T) {
	h, reg, _ := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "notes.txt"), "line one\nline two\n")
	})

	reply, err := run(t, h, reg, "op", "cat", "notes.txt")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "line one")
	assert.Contains(t, reply.Text, "line two")
	assert.Contains(t, reply.Text, "text/plain")
}

func TestCatRejectsBinary(t *testing.T) {
	h, reg, _ := newTestHandlers(t, func(root string) {
		// PNG magic bytes followed by junk.
		writeFile(t, filepath.Join(root, "img.png"), "\x89PNG\r\n\x1a\n\x00\x00junk")
	})

	_, err := run(t, h, reg, "op", "cat", "img.png")
	require.Error(t, err)
	assert.Equal(t, errs.KindNotAFile, errs.KindOf(err))
	assert.Contains(t, errs.UserMessage(err), "not a text file")
}

func TestCatHonorsSizeLimit(t *testing.T) {
	h, reg, _ := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "big.txt"), strings.Repeat("a", 2048))
	})
	h.limits.MaxCatBytes = 512

	_, err := run(t, h, reg, "op", "cat", "big.txt")
	require.Error(t, err)
	assert.Equal(t, errs.KindSizeExceeded, errs.KindOf(err))
}

func TestTailReturnsLastLines(t *testing.T) {
	h, reg, _ := newTestHandlers(t, func(root string) {
		var b strings.Builder
		for i := 1; i <= 100; i++ {
			fmt.Fprintf(&b, "line %d\n", i)
		}
		writeFile(t, filepath.Join(root, "app.log"), b.String())
	})

	reply, err := run(t, h, reg, "op", "tail", "app.log", "3")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "line 98")
	assert.Contains(t, reply.Text, "line 99")
	assert.Contains(t, reply.Text, "line 100")
	assert.NotContains(t, reply.Text, "line 97")
}

func TestTailDefaultAndCap(t *testing.T) {
	h, reg, _ := newTestHandlers(t, func(root string) {
		var b strings.Builder
		for i := 1; i <= 50; i++ {
			fmt.Fprintf(&b, "entry %d\n", i)
		}
		writeFile(t, filepath.Join(root, "app.log"), b.String())
	})
	h.limits.TailDefault = 5
	h.limits.TailMax = 10

	reply, err := run(t, h, reg, "op", "tail", "app.log")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "entry 46")
	assert.NotContains(t, reply.Text, "entry 45\n")

	// A request above the cap is clamped, not rejected.
	reply, err = run(t, h, reg, "op", "tail", "app.log", "500")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "entry 41")
	assert.NotContains(t, reply.Text, "entry 40\n")
}

func TestTailRejectsBadCount(t *testing.T) {
	h, reg, _ := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "app.log"), "x\n")
	})

	for _, bad := range []string{"0", "-3", "ten"} {
		_, err := run(t, h, reg, "op", "tail", "app.log", bad)
		require.Error(t, err, "count %q", bad)
		assert.Equal(t, errs.KindInvalidArgument, errs.KindOf(err))
	}
}

func TestTailEmptyFile(t *testing.T) {
	h, reg, _ := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "empty.log"), "")
	})

	reply, err := run(t, h, reg, "op", "tail", "empty.log")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "last 0 lines")
}

func TestHashDeterministic(t *testing.T) {
	content := "the quick brown fox"
	h, reg, _ := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "data.txt"), content)
	})

	sum := sha256.Sum256([]byte(content))
	want := hex.EncodeToString(sum[:])

	first, err := run(t, h, reg, "op", "hash", "data.txt")
	require.NoError(t, err)
	assert.Contains(t, first.Text, want)
	assert.Contains(t, first.Text, "sha256")

	second, err := run(t, h, reg, "op", "hash", "data.txt")
	require.NoError(t, err)
	assert.Equal(t, first.Text, second.Text)
}

func TestHashAlgorithmSelection(t *testing.T) {
	h, reg, _ := newTestHandlers(t, func(root string) {
		writeFile(t, filepath.Join(root, "data.txt"), "abc")
	})

	reply, err := run(t, h, reg, "op", "hash", "data.txt", "md5")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "900150983cd24fb0d6963f7d28e17f72")

	_, err = run(t, h, reg, "op", "hash", "data.txt", "crc32")
	require.Error(t, err)
	assert.Equal(t, errs.KindInvalidArgument, errs.KindOf(err))
}
