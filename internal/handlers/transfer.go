package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"fileferry/internal/archive"
	"fileferry/internal/command"
	"fileferry/internal/session"
	"fileferry/internal/shared/errs"
)

// Get streams a single file back to the operator. Oversized files fail
// fast instead of attempting the transfer.
func (h *Handlers) Get(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	token := joined(req.Args)
	res, err := h.resolver.ResolveFile("get", sess.Cwd(), token)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(res.Abs)
	if err != nil {
		return nil, errs.FromOS("get", token, err)
	}
	if h.limits.MaxTransferBytes > 0 && info.Size() > h.limits.MaxTransferBytes {
		return nil, errs.SizeExceeded("get", token, h.limits.MaxTransferBytes)
	}

	return command.NewFile(res.Abs, filepath.Base(res.Abs), info.Size()), nil
}

// GetZip archives a file or directory subtree into a temporary zip and
// hands it to the transport with a cleanup obligation. The session
// lock is not held while the archive is built.
func (h *Handlers) GetZip(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	token := joined(req.Args)
	res, err := h.resolver.ResolveExisting("getzip", sess.Cwd(), token)
	if err != nil {
		return nil, err
	}

	path, stats, err := archive.Create(ctx, res.Abs, h.tmpDir, h.limits.MaxTransferBytes)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		os.Remove(path)
		return nil, errs.FromOS("getzip", token, err)
	}

	name := filepath.Base(res.Abs) + ".zip"
	h.log.Info("archive built",
		zap.String("target", h.resolver.Display(res.Abs)),
		zap.Int("files", stats.Files),
		zap.Int64("bytes", info.Size()))
	return command.NewTempFile(path, name, info.Size()), nil
}

// Logs bundles the service's own rotating log files into a zip
// payload. Locating the files is the only responsibility here; the
// transport owns delivery.
func (h *Handlers) Logs(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	if h.logDir == "" {
		return nil, errs.New(errs.KindNotFound, "logs", "logs", "log directory is not configured")
	}

	matches, err := filepath.Glob(filepath.Join(h.logDir, "*.log*"))
	if err != nil || len(matches) == 0 {
		return nil, errs.New(errs.KindNotFound, "logs", "logs", "no log files found")
	}

	path, _, err := archive.CreateFromFiles(ctx, matches, h.tmpDir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		os.Remove(path)
		return nil, errs.FromOS("logs", "logs", err)
	}

	name := fmt.Sprintf("logs_%s.zip", time.Now().Format("20060102_150405"))
	return command.NewTempFile(path, name, info.Size()), nil
}
