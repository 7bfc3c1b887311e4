package handlers

import (
	"context"
	"fmt"

	"fileferry/internal/command"
	"fileferry/internal/session"
	"fileferry/internal/shared/errs"
	"fileferry/internal/shared/format"
)

// Bookmark dispatches the bookmark subcommands: add, list, go, del.
// Bookmarks name directories per operator; jumping to one revalidates
// that the target still exists and is still inside the permitted root.
func (h *Handlers) Bookmark(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	action := req.Arg(0)
	name := req.Arg(1)

	switch action {
	case "add":
		if name == "" {
			return nil, errs.InvalidArgument("bookmark", "usage: bookmark add <name>")
		}
		cwd := sess.Cwd()
		h.sessions.AddBookmark(req.Operator, name, cwd)
		return command.NewText(fmt.Sprintf("bookmark %q -> %s", name, h.resolver.Display(cwd))), nil

	case "list":
		marks := h.sessions.Bookmarks(req.Operator)
		if len(marks) == 0 {
			return command.NewText("no bookmarks"), nil
		}
		rows := make([]string, 0, len(marks))
		for _, m := range marks {
			rows = append(rows, fmt.Sprintf("%s -> %s", m.Name, h.resolver.Display(m.Path)))
		}
		return command.NewText(format.Lines(rows...)), nil

	case "go":
		if name == "" {
			return nil, errs.InvalidArgument("bookmark", "usage: bookmark go <name>")
		}
		dir, err := h.sessions.Bookmark(req.Operator, name)
		if err != nil {
			return nil, err
		}
		res, err := h.resolver.ResolveDir("bookmark", dir, ".")
		if err != nil {
			return nil, err
		}
		if err := h.sessions.SetCwd(req.Operator, res.Abs); err != nil {
			return nil, err
		}
		return command.NewText(fmt.Sprintf("now in %s", h.resolver.Display(res.Abs))), nil

	case "del":
		if name == "" {
			return nil, errs.InvalidArgument("bookmark", "usage: bookmark del <name>")
		}
		if err := h.sessions.DeleteBookmark(req.Operator, name); err != nil {
			return nil, err
		}
		return command.NewText(fmt.Sprintf("deleted bookmark %q", name)), nil

	default:
		return nil, errs.InvalidArgument("bookmark", fmt.Sprintf("unknown action %q (add, list, go, del)", action))
	}
}
