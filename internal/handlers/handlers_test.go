package handlers

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"fileferry/internal/command"
	"fileferry/internal/config"
	"fileferry/internal/sandbox"
	"fileferry/internal/session"
)

// newTestHandlers builds a handler set over a throwaway root populated
// by populate, plus the registry with every command installed.
func newTestHandlers(t *testing.T, populate func(root string)) (*Handlers, *command.Registry, string) {
	t.Helper()

	root := t.TempDir()
	if populate != nil {
		populate(root)
	}
	// TempDir may sit behind a symlink (macOS); resolve like New does.
	resolved, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	root = resolved

	resolver, err := sandbox.New(root, false)
	require.NoError(t, err)

	h := New(Options{
		Resolver: resolver,
		Sessions: session.NewStore(resolver.Root()),
		Limits:   config.Default().Limits,
		TmpDir:   t.TempDir(),
	})
	reg := command.NewRegistry()
	require.NoError(t, h.Register(reg))
	require.NoError(t, reg.Validate())
	return h, reg, root
}

// run executes a named command through the registry the way the
// dispatcher would.
func run(t *testing.T, h *Handlers, reg *command.Registry, operator, name string, args ...string) (*command.Reply, error) {
	t.Helper()
	spec, ok := reg.Get(name)
	require.True(t, ok, "command %s not registered", name)
	if err := spec.CheckArity(args); err != nil {
		return nil, err
	}
	req := &command.Request{ID: "test", Operator: operator, Name: name, Args: args}
	return spec.Handler(context.Background(), req, h.sessions.Get(operator))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRegisterInstallsEveryCommand(t *testing.T) {
	_, reg, _ := newTestHandlers(t, nil)

	for _, name := range []string{
		"help", "ls", "cd", "up", "pwd", "tree", "get", "getzip", "cat",
		"tail", "find", "search", "bookmark", "disk", "sys", "processes",
		"kill", "logs", "mkdir", "rm", "cp", "mv", "rename", "chmod",
		"hash", "reset",
	} {
		_, ok := reg.Get(name)
		require.True(t, ok, "missing command %s", name)
	}
}
