// Package handlers implements the command families: navigation,
// transfer, inspection, search, bookmarks, system introspection, and
// filesystem mutation. Every handler consumes paths through the
// sandbox resolver and reports failures through the shared taxonomy.
package handlers

import (
	"context"
	"os"
	"strings"

	"fileferry/internal/command"
	"fileferry/internal/config"
	"fileferry/internal/logging"
	"fileferry/internal/sandbox"
	"fileferry/internal/session"
)

// Handlers bundles the dependencies shared by all command families.
type Handlers struct {
	resolver  *sandbox.Resolver
	sessions  *session.Store
	limits    config.LimitConfig
	log       *logging.Logger
	tmpDir    string
	logDir    string
	protected map[int]struct{}
}

// Options configures the handler set.
type Options struct {
	Resolver      *sandbox.Resolver
	Sessions      *session.Store
	Limits        config.LimitConfig
	Log           *logging.Logger
	TmpDir        string
	LogDir        string
	ProtectedPids []int
}

// New builds the handler set. The service's own pid is always on the
// kill deny-list.
func New(opts Options) *Handlers {
	if opts.TmpDir == "" {
		opts.TmpDir = os.TempDir()
	}
	if opts.Log == nil {
		opts.Log = logging.NewNop()
	}
	protected := map[int]struct{}{os.Getpid(): {}}
	for _, pid := range opts.ProtectedPids {
		protected[pid] = struct{}{}
	}
	return &Handlers{
		resolver:  opts.Resolver,
		sessions:  opts.Sessions,
		limits:    opts.Limits,
		log:       opts.Log,
		tmpDir:    opts.TmpDir,
		logDir:    opts.LogDir,
		protected: protected,
	}
}

// Register installs every command spec into the registry.
func (h *Handlers) Register(reg *command.Registry) error {
	specs := []command.Spec{
		{
			Name: "help", Usage: "help", Summary: "show this command index",
			MinArgs: 0, MaxArgs: 0,
			Handler: func(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
				return command.NewText(reg.Help()), nil
			},
		},
		{
			Name: "ls", Usage: "ls [dir]", Summary: "list directory contents",
			Args:    []command.Arg{{Name: "dir", Kind: command.ArgPath}},
			MinArgs: 0, MaxArgs: -1, Handler: h.List,
		},
		{
			Name: "cd", Usage: "cd <dir>", Summary: "change current directory",
			Args:    []command.Arg{{Name: "dir", Kind: command.ArgPath, Required: true}},
			MinArgs: 1, MaxArgs: -1, Handler: h.ChangeDir,
		},
		{
			Name: "up", Usage: "up", Summary: "go up one directory level",
			MinArgs: 0, MaxArgs: 0, Handler: h.Up,
		},
		{
			Name: "pwd", Usage: "pwd", Summary: "show current directory",
			MinArgs: 0, MaxArgs: 0, Handler: h.Pwd,
		},
		{
			Name: "tree", Usage: "tree [depth]", Summary: "show directory tree",
			Args:    []command.Arg{{Name: "depth", Kind: command.ArgNumber}},
			MinArgs: 0, MaxArgs: 1, Handler: h.Tree,
		},
		{
			Name: "get", Usage: "get <file>", Summary: "download a file",
			Args:    []command.Arg{{Name: "file", Kind: command.ArgPath, Required: true}},
			MinArgs: 1, MaxArgs: -1, Handler: h.Get,
		},
		{
			Name: "getzip", Usage: "getzip <file|dir>", Summary: "download as zip archive",
			Args:    []command.Arg{{Name: "target", Kind: command.ArgPath, Required: true}},
			MinArgs: 1, MaxArgs: -1, Handler: h.GetZip,
		},
		{
			Name: "cat", Usage: "cat <file>", Summary: "show text file contents",
			Args:    []command.Arg{{Name: "file", Kind: command.ArgPath, Required: true}},
			MinArgs: 1, MaxArgs: -1, Handler: h.Cat,
		},
		{
			Name: "tail", Usage: "tail <file> [lines]", Summary: "show last lines of a file",
			Args: []command.Arg{
				{Name: "file", Kind: command.ArgPath, Required: true},
				{Name: "lines", Kind: command.ArgNumber},
			},
			MinArgs: 1, MaxArgs: 2, Handler: h.Tail,
		},
		{
			Name: "find", Usage: "find <term>", Summary: "find entries by name",
			Args:    []command.Arg{{Name: "term", Kind: command.ArgText, Required: true}},
			MinArgs: 1, MaxArgs: -1, Handler: h.Find,
		},
		{
			Name: "search", Usage: "search <text>", Summary: "search text inside files",
			Args:    []command.Arg{{Name: "text", Kind: command.ArgText, Required: true}},
			MinArgs: 1, MaxArgs: -1, Handler: h.Search,
		},
		{
			Name: "bookmark", Usage: "bookmark <add|list|go|del> [name]", Summary: "manage directory bookmarks",
			Args: []command.Arg{
				{Name: "action", Kind: command.ArgName, Required: true},
				{Name: "name", Kind: command.ArgName},
			},
			MinArgs: 1, MaxArgs: 2, Handler: h.Bookmark,
		},
		{
			Name: "disk", Usage: "disk", Summary: "show disk usage",
			MinArgs: 0, MaxArgs: 0, Handler: h.Disk,
		},
		{
			Name: "sys", Usage: "sys", Summary: "show host information",
			MinArgs: 0, MaxArgs: 0, Handler: h.Sys,
		},
		{
			Name: "processes", Usage: "processes", Summary: "list running processes",
			MinArgs: 0, MaxArgs: 0, Handler: h.Processes,
		},
		{
			Name: "kill", Usage: "kill <pid> [--force]", Summary: "terminate a process",
			Args: []command.Arg{
				{Name: "pid", Kind: command.ArgNumber, Required: true},
			},
			MinArgs: 1, MaxArgs: 2, Handler: h.Kill,
		},
		{
			Name: "logs", Usage: "logs", Summary: "download service log bundle",
			MinArgs: 0, MaxArgs: 0, Handler: h.Logs,
		},
		{
			Name: "mkdir", Usage: "mkdir <dir>", Summary: "create a directory",
			Args:    []command.Arg{{Name: "dir", Kind: command.ArgPath, Required: true}},
			MinArgs: 1, MaxArgs: -1, Handler: h.Mkdir,
		},
		{
			Name: "rm", Usage: "rm <file|dir> [--force]", Summary: "remove a file or directory",
			Args:    []command.Arg{{Name: "target", Kind: command.ArgPath, Required: true}},
			MinArgs: 1, MaxArgs: -1, Handler: h.Remove,
		},
		{
			Name: "cp", Usage: "cp <src> <dst>", Summary: "copy a file or directory",
			Args: []command.Arg{
				{Name: "src", Kind: command.ArgPath, Required: true},
				{Name: "dst", Kind: command.ArgPath, Required: true},
			},
			MinArgs: 2, MaxArgs: 2, Handler: h.Copy,
		},
		{
			Name: "mv", Usage: "mv <src> <dst>", Summary: "move a file or directory",
			Args: []command.Arg{
				{Name: "src", Kind: command.ArgPath, Required: true},
				{Name: "dst", Kind: command.ArgPath, Required: true},
			},
			MinArgs: 2, MaxArgs: 2, Handler: h.Move,
		},
		{
			Name: "rename", Usage: "rename <old> <new>", Summary: "rename a file or directory",
			Args: []command.Arg{
				{Name: "old", Kind: command.ArgPath, Required: true},
				{Name: "new", Kind: command.ArgName, Required: true},
			},
			MinArgs: 2, MaxArgs: 2, Handler: h.Rename,
		},
		{
			Name: "chmod", Usage: "chmod <mode> <file>", Summary: "change file permissions",
			Args: []command.Arg{
				{Name: "mode", Kind: command.ArgMode, Required: true},
				{Name: "file", Kind: command.ArgPath, Required: true},
			},
			MinArgs: 2, MaxArgs: -1, Handler: h.Chmod,
		},
		{
			Name: "hash", Usage: "hash <file> [algo]", Summary: "compute a content digest",
			Args: []command.Arg{
				{Name: "file", Kind: command.ArgPath, Required: true},
				{Name: "algo", Kind: command.ArgName},
			},
			MinArgs: 1, MaxArgs: 2, Handler: h.Hash,
		},
		{
			Name: "reset", Usage: "reset", Summary: "reset session to the root directory",
			MinArgs: 0, MaxArgs: 0, Handler: h.Reset,
		},
	}

	for _, spec := range specs {
		if err := reg.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

// joined concatenates the request arguments back into a single token,
// so file names containing spaces survive transport tokenization.
func joined(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// splitForce pulls a trailing or embedded --force flag out of the
// argument list.
func splitForce(args []string) (rest []string, force bool) {
	rest = make([]string, 0, len(args))
	for _, a := range args {
		if a == "--force" || a == "-f" {
			force = true
			continue
		}
		rest = append(rest, a)
	}
	return rest, force
}
