package handlers

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"

	"fileferry/internal/command"
	"fileferry/internal/session"
	"fileferry/internal/shared/errs"
)

// Cat returns the full contents of a text file. Binary files and files
// above the cat limit are rejected before any content leaves the host.
func (h *Handlers) Cat(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	token := joined(req.Args)
	res, err := h.resolver.ResolveFile("cat", sess.Cwd(), token)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(res.Abs)
	if err != nil {
		return nil, errs.FromOS("cat", token, err)
	}
	if h.limits.MaxCatBytes > 0 && info.Size() > h.limits.MaxCatBytes {
		return nil, errs.SizeExceeded("cat", token, h.limits.MaxCatBytes)
	}

	mtype, err := mimetype.DetectFile(res.Abs)
	if err != nil {
		return nil, errs.FromOS("cat", token, err)
	}
	if !isTextMIME(mtype.String()) {
		return nil, errs.New(errs.KindNotAFile, "cat", token,
			fmt.Sprintf("not a text file: %s (%s)", token, mtype.String()))
	}

	data, err := os.ReadFile(res.Abs)
	if err != nil {
		return nil, errs.FromOS("cat", token, err)
	}

	header := fmt.Sprintf("%s (%s", h.resolver.Display(res.Abs), mtype.String())
	if charset := detectCharset(data); charset != "" {
		header += ", " + charset
	}
	header += "):"

	return command.NewText(header + "\n" + string(data)), nil
}

// Tail returns the last N lines of a file without reading the whole
// file: it seeks backwards in fixed blocks counting newlines.
func (h *Handlers) Tail(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	token := req.Arg(0)
	res, err := h.resolver.ResolveFile("tail", sess.Cwd(), token)
	if err != nil {
		return nil, err
	}

	lines := h.limits.TailDefault
	if arg := req.Arg(1); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return nil, errs.InvalidArgument("tail", fmt.Sprintf("line count must be a positive number, got %q", arg))
		}
		lines = n
	}
	if lines > h.limits.TailMax {
		lines = h.limits.TailMax
	}

	tail, err := tailLines(res.Abs, lines)
	if err != nil {
		return nil, errs.FromOS("tail", token, err)
	}

	header := fmt.Sprintf("last %d lines of %s:", len(tail), h.resolver.Display(res.Abs))
	return command.NewText(header + "\n" + strings.Join(tail, "\n")), nil
}

// Hash computes a streamed content digest. SHA-256 unless the operator
// asks for another supported algorithm.
func (h *Handlers) Hash(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	token := req.Arg(0)
	res, err := h.resolver.ResolveFile("hash", sess.Cwd(), token)
	if err != nil {
		return nil, err
	}

	algo := strings.ToLower(req.Arg(1))
	if algo == "" {
		algo = strings.ToLower(h.limits.HashAlgorithm)
	}
	var digest hash.Hash
	switch algo {
	case "md5":
		digest = md5.New()
	case "sha1":
		digest = sha1.New()
	case "sha256":
		digest = sha256.New()
	default:
		return nil, errs.InvalidArgument("hash", fmt.Sprintf("unsupported algorithm %q (md5, sha1, sha256)", algo))
	}

	f, err := os.Open(res.Abs)
	if err != nil {
		return nil, errs.FromOS("hash", token, err)
	}
	defer f.Close()
	if _, err := io.Copy(digest, f); err != nil {
		return nil, errs.FromOS("hash", token, err)
	}

	return command.NewText(fmt.Sprintf("%s %s  %s",
		algo, hex.EncodeToString(digest.Sum(nil)), filepath.Base(res.Abs))), nil
}

// isTextMIME mirrors the readable set: plain text plus the structured
// text formats worth printing.
func isTextMIME(mime string) bool {
	return strings.HasPrefix(mime, "text/") ||
		mime == "application/json" ||
		mime == "application/xml" ||
		mime == "application/javascript" ||
		mime == "application/x-sh"
}

// detectCharset is best effort; an undetectable charset just drops the
// annotation.
func detectCharset(data []byte) string {
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil {
		return ""
	}
	return result.Charset
}

// tailLines reads up to n trailing lines by scanning 32 KiB blocks
// backwards from the end of the file.
func tailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return []string{}, nil
	}

	const block = 32 * 1024
	var chunk []byte
	offset := size
	newlines := 0

	for offset > 0 && newlines <= n {
		readSize := int64(block)
		if offset < readSize {
			readSize = offset
		}
		offset -= readSize

		buf := make([]byte, readSize)
		if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
			return nil, err
		}
		chunk = append(buf, chunk...)
		newlines = bytes.Count(chunk, []byte{'\n'})
	}

	text := strings.TrimRight(string(chunk), "\n")
	if text == "" {
		return []string{}, nil
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
