package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"fileferry/internal/command"
	"fileferry/internal/sandbox"
	"fileferry/internal/session"
	"fileferry/internal/shared/errs"
)

// Mkdir creates a directory, including missing parents, inside the
// permitted root.
func (h *Handlers) Mkdir(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	token := joined(req.Args)
	res, err := h.resolver.ResolveCreate("mkdir", sess.Cwd(), token)
	if err != nil {
		return nil, err
	}
	if res.Exists {
		return nil, errs.New(errs.KindInvalidArgument, "mkdir", token,
			fmt.Sprintf("already exists: %s", h.resolver.Display(res.Abs)))
	}
	if err := os.MkdirAll(res.Abs, 0o755); err != nil {
		return nil, errs.FromOS("mkdir", token, err)
	}
	return command.NewText(fmt.Sprintf("created %s", h.resolver.Display(res.Abs))), nil
}

// Remove deletes a file, or a directory with --force. A non-empty
// directory without --force is refused with nothing deleted.
func (h *Handlers) Remove(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	args, force := splitForce(req.Args)
	token := joined(args)
	if token == "" {
		return nil, errs.InvalidArgument("rm", "usage: rm <path> [--force]")
	}

	res, err := h.resolver.ResolveExisting("rm", sess.Cwd(), token)
	if err != nil {
		return nil, err
	}
	if res.Abs == h.resolver.Root() {
		return nil, errs.Protected("rm", token)
	}

	display := h.resolver.Display(res.Abs)
	if res.Type == sandbox.TypeDir {
		entries, err := os.ReadDir(res.Abs)
		if err != nil {
			return nil, errs.FromOS("rm", token, err)
		}
		if len(entries) > 0 && !force {
			return nil, errs.New(errs.KindInvalidArgument, "rm", token,
				fmt.Sprintf("%s is not empty (%d entries); re-run with --force to delete recursively", display, len(entries)))
		}
		if err := os.RemoveAll(res.Abs); err != nil {
			return nil, errs.FromOS("rm", token, err)
		}
		h.log.Info("directory removed", zap.String("path", display), zap.String("operator", req.Operator))
		return command.NewText(fmt.Sprintf("removed %s/", display)), nil
	}

	if err := os.Remove(res.Abs); err != nil {
		return nil, errs.FromOS("rm", token, err)
	}
	return command.NewText(fmt.Sprintf("removed %s", display)), nil
}

// Copy duplicates a file or directory tree. Copying onto an existing
// directory places the source under it by base name.
func (h *Handlers) Copy(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	src, dst, err := h.resolvePair("cp", sess.Cwd(), req.Arg(0), req.Arg(1))
	if err != nil {
		return nil, err
	}

	var copied int64
	if src.Type == sandbox.TypeDir {
		copied, err = copyTree(src.Abs, dst)
	} else {
		copied, err = copyFile(src.Abs, dst)
	}
	if err != nil {
		return nil, errs.FromOS("cp", req.Arg(0), err)
	}
	return command.NewText(fmt.Sprintf("copied %s -> %s (%d bytes)",
		h.resolver.Display(src.Abs), h.resolver.Display(dst), copied)), nil
}

// Move relocates a file or directory inside the root.
func (h *Handlers) Move(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	src, dst, err := h.resolvePair("mv", sess.Cwd(), req.Arg(0), req.Arg(1))
	if err != nil {
		return nil, err
	}
	if err := os.Rename(src.Abs, dst); err != nil {
		return nil, errs.FromOS("mv", req.Arg(0), err)
	}
	return command.NewText(fmt.Sprintf("moved %s -> %s",
		h.resolver.Display(src.Abs), h.resolver.Display(dst))), nil
}

// Rename changes an entry's name within its current directory. The new
// name must be a bare name, not a path.
func (h *Handlers) Rename(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	token, newName := req.Arg(0), req.Arg(1)
	if strings.ContainsRune(newName, os.PathSeparator) || newName == "." || newName == ".." {
		return nil, errs.InvalidArgument("rename", fmt.Sprintf("new name must be a plain name, got %q", newName))
	}

	src, err := h.resolver.ResolveExisting("rename", sess.Cwd(), token)
	if err != nil {
		return nil, err
	}
	dst := filepath.Join(filepath.Dir(src.Abs), newName)
	if _, err := os.Lstat(dst); err == nil {
		return nil, errs.New(errs.KindInvalidArgument, "rename", newName,
			fmt.Sprintf("already exists: %s", h.resolver.Display(dst)))
	}
	if err := os.Rename(src.Abs, dst); err != nil {
		return nil, errs.FromOS("rename", token, err)
	}
	return command.NewText(fmt.Sprintf("renamed %s -> %s",
		h.resolver.Display(src.Abs), newName)), nil
}

// Chmod applies an octal or symbolic mode to one or more files.
func (h *Handlers) Chmod(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	spec := req.Arg(0)
	token := joined(req.Args[1:])

	res, err := h.resolver.ResolveExisting("chmod", sess.Cwd(), token)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(res.Abs)
	if err != nil {
		return nil, errs.FromOS("chmod", token, err)
	}

	mode, err := parseMode(spec, info.Mode().Perm())
	if err != nil {
		return nil, errs.InvalidArgument("chmod", err.Error())
	}
	if err := os.Chmod(res.Abs, mode); err != nil {
		return nil, errs.FromOS("chmod", token, err)
	}
	return command.NewText(fmt.Sprintf("mode of %s is now %04o",
		h.resolver.Display(res.Abs), mode)), nil
}

// resolvePair resolves a source that must exist and a destination that
// may not. An existing directory destination redirects to a child named
// after the source.
func (h *Handlers) resolvePair(op, cwd, srcToken, dstToken string) (sandbox.Resolved, string, error) {
	src, err := h.resolver.ResolveExisting(op, cwd, srcToken)
	if err != nil {
		return sandbox.Resolved{}, "", err
	}
	dst, err := h.resolver.Resolve(op, cwd, dstToken)
	if err != nil {
		return sandbox.Resolved{}, "", err
	}
	target := dst.Abs
	if dst.Type == sandbox.TypeDir {
		target = filepath.Join(dst.Abs, filepath.Base(src.Abs))
	}
	if target == src.Abs {
		return sandbox.Resolved{}, "", errs.InvalidArgument(op, "source and destination are the same")
	}
	if src.Type == sandbox.TypeDir && strings.HasPrefix(target, src.Abs+string(os.PathSeparator)) {
		return sandbox.Resolved{}, "", errs.InvalidArgument(op,
			fmt.Sprintf("cannot %s %s into itself", op, srcToken))
	}
	return src, target, nil
}

// copyFile copies contents and permission bits, like cp -p for mode.
func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return 0, err
	}
	return n, os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// copyTree copies a directory recursively, ignoring symlinks and other
// non-regular entries. A failure into a destination that did not exist
// beforehand removes the partial tree.
func copyTree(src, dst string) (int64, error) {
	_, statErr := os.Lstat(dst)
	fresh := os.IsNotExist(statErr)

	var total int64
	err := filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm())
		}
		if !d.Type().IsRegular() {
			return nil
		}
		n, err := copyFile(path, target)
		total += n
		return err
	})
	if err != nil && fresh {
		os.RemoveAll(dst)
	}
	return total, err
}

// parseMode accepts octal ("644", "0755") or a single symbolic clause
// ("u+x", "go-w", "a=r").
func parseMode(spec string, current os.FileMode) (os.FileMode, error) {
	if n, err := strconv.ParseUint(spec, 8, 32); err == nil {
		if n > 0o777 {
			return 0, fmt.Errorf("octal mode %q out of range", spec)
		}
		return os.FileMode(n), nil
	}

	i := strings.IndexAny(spec, "+-=")
	if i < 0 {
		return 0, fmt.Errorf("bad mode %q: want octal or [ugoa]*[+-=][rwx]+", spec)
	}
	who, op, perms := spec[:i], spec[i], spec[i+1:]
	if who == "" {
		who = "a"
	}
	if perms == "" && op != '=' {
		return 0, fmt.Errorf("bad mode %q: no permissions given", spec)
	}

	var whoMask os.FileMode
	for _, c := range who {
		switch c {
		case 'u':
			whoMask |= 0o700
		case 'g':
			whoMask |= 0o070
		case 'o':
			whoMask |= 0o007
		case 'a':
			whoMask |= 0o777
		default:
			return 0, fmt.Errorf("bad mode %q: unknown class %q", spec, string(c))
		}
	}

	var permBits os.FileMode
	for _, c := range perms {
		switch c {
		case 'r':
			permBits |= 0o444
		case 'w':
			permBits |= 0o222
		case 'x':
			permBits |= 0o111
		default:
			return 0, fmt.Errorf("bad mode %q: unknown permission %q", spec, string(c))
		}
	}

	bits := permBits & whoMask
	switch op {
	case '+':
		return current | bits, nil
	case '-':
		return current &^ bits, nil
	default:
		return (current &^ whoMask) | bits, nil
	}
}
