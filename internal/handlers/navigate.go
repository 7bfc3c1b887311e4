package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"fileferry/internal/command"
	"fileferry/internal/session"
	"fileferry/internal/shared/errs"
	"fileferry/internal/shared/format"
)

// List renders the contents of the current (or named) directory,
// directories first. An empty directory gets an explicit message, not
// silence.
func (h *Handlers) List(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	token := joined(req.Args)
	res, err := h.resolver.ResolveDir("ls", sess.Cwd(), token)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(res.Abs)
	if err != nil {
		return nil, errs.FromOS("ls", token, err)
	}

	header := fmt.Sprintf("%s:", h.resolver.Display(res.Abs))
	if len(entries) == 0 {
		return command.NewText(format.Lines(header, "  (empty)")), nil
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	rows := []string{header}
	var files int
	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			rows = append(rows, fmt.Sprintf("  %s/", entry.Name()))
			continue
		}
		files++
		info, err := entry.Info()
		if err != nil {
			rows = append(rows, fmt.Sprintf("  %s  (unreadable)", entry.Name()))
			continue
		}
		total += info.Size()
		rows = append(rows, fmt.Sprintf("  %-40s %10s  %s",
			entry.Name(), format.Size(info.Size()), format.ModTime(info.ModTime())))
	}
	rows = append(rows, "", fmt.Sprintf("%d entries, %d files, %s total",
		len(entries), files, format.Size(total)))

	return command.NewText(format.Lines(rows...)), nil
}

// ChangeDir resolves and commits a new current directory. A failed
// resolution leaves the session untouched.
func (h *Handlers) ChangeDir(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	token := joined(req.Args)
	res, err := h.resolver.ResolveDir("cd", sess.Cwd(), token)
	if err != nil {
		return nil, err
	}
	if err := h.sessions.SetCwd(req.Operator, res.Abs); err != nil {
		return nil, err
	}

	dirs, files := countEntries(res.Abs)
	return command.NewText(fmt.Sprintf("now in %s (%d dirs, %d files)",
		h.resolver.Display(res.Abs), dirs, files)), nil
}

// Up moves to the parent directory, clamped at the root.
func (h *Handlers) Up(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	up := &command.Request{ID: req.ID, Operator: req.Operator, Name: "cd", Args: []string{".."}}
	return h.ChangeDir(ctx, up, sess)
}

// Pwd shows the session's current directory.
func (h *Handlers) Pwd(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	return command.NewText(h.resolver.Display(sess.Cwd())), nil
}

// Tree renders a depth-bounded directory tree. Symlink cycles are cut
// with a visited set of canonical paths so traversal always
// terminates.
func (h *Handlers) Tree(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	depth := h.limits.TreeDepthDefault
	if arg := req.Arg(0); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return nil, errs.InvalidArgument("tree", fmt.Sprintf("depth must be a positive number, got %q", arg))
		}
		depth = n
	}
	if depth > h.limits.TreeDepthMax {
		depth = h.limits.TreeDepthMax
	}

	cwd := sess.Cwd()
	var b strings.Builder
	b.WriteString(h.resolver.Display(cwd))
	b.WriteString("\n")

	visited := make(map[string]struct{})
	if canonical, err := filepath.EvalSymlinks(cwd); err == nil {
		visited[canonical] = struct{}{}
	}
	if err := h.treeWalk(ctx, &b, cwd, "", 1, depth, visited); err != nil {
		return nil, errs.FromOS("tree", h.resolver.Display(cwd), err)
	}
	return command.NewText(strings.TrimRight(b.String(), "\n")), nil
}

func (h *Handlers) treeWalk(ctx context.Context, b *strings.Builder, dir, prefix string, depth, maxDepth int, visited map[string]struct{}) error {
	if depth > maxDepth {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// Unreadable subdirectories are noted inline, not fatal.
		b.WriteString(prefix + "(unreadable)\n")
		return nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	for i, entry := range entries {
		last := i == len(entries)-1
		name := entry.Name()
		if entry.IsDir() || isDirLink(filepath.Join(dir, name)) {
			name += "/"
		}
		b.WriteString(prefix + format.TreeBranch(last) + name + "\n")

		full := filepath.Join(dir, entry.Name())
		info, err := os.Stat(full)
		if err != nil || !info.IsDir() {
			continue
		}
		canonical, err := filepath.EvalSymlinks(full)
		if err != nil {
			continue
		}
		if _, seen := visited[canonical]; seen {
			continue
		}
		visited[canonical] = struct{}{}

		if err := h.treeWalk(ctx, b, full, prefix+format.TreeIndent(last), depth+1, maxDepth, visited); err != nil {
			return err
		}
	}
	return nil
}

// Reset drops the operator's session state.
func (h *Handlers) Reset(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	h.sessions.Reset(req.Operator)
	return command.NewText(fmt.Sprintf("session reset, now in %s",
		h.resolver.Display(h.resolver.Root()))), nil
}

func countEntries(dir string) (dirs, files int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0
	}
	for _, e := range entries {
		if e.IsDir() {
			dirs++
		} else {
			files++
		}
	}
	return dirs, files
}

func isDirLink(path string) bool {
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return false
	}
	target, err := os.Stat(path)
	return err == nil && target.IsDir()
}
