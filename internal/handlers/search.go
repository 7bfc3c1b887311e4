package handlers

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"fileferry/internal/command"
	"fileferry/internal/shared/format"
	"fileferry/internal/session"
	"fileferry/internal/shared/errs"
)

const perFileMatchCap = 100

// errWalkDone aborts a walk once the result limit is reached.
var errWalkDone = errors.New("walk done")

// Find walks the subtree under the current directory and lists entries
// whose names match the term. Plain terms match as case-insensitive
// substrings; terms containing glob metacharacters match as patterns.
func (h *Handlers) Find(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	term := joined(req.Args)
	if term == "" {
		return nil, errs.InvalidArgument("find", "missing search term")
	}

	cwd := sess.Cwd()
	useGlob := strings.ContainsAny(term, "*?[{")
	if useGlob {
		if !doublestar.ValidatePattern(term) {
			return nil, errs.InvalidArgument("find", fmt.Sprintf("bad pattern %q", term))
		}
	}
	lowered := strings.ToLower(term)

	var (
		mu      sync.Mutex
		matches []string
		total   int
	)
	limit := h.limits.FindLimit

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, cwd, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == cwd {
			return nil
		}
		name := d.Name()
		var hit bool
		if useGlob {
			hit, _ = doublestar.Match(term, name)
		} else {
			hit = strings.Contains(strings.ToLower(name), lowered)
		}
		if !hit {
			return nil
		}

		rel, relErr := filepath.Rel(cwd, path)
		if relErr != nil {
			rel = name
		}
		if d.IsDir() {
			rel += "/"
		}

		mu.Lock()
		defer mu.Unlock()
		total++
		if len(matches) < limit {
			matches = append(matches, rel)
		}
		if total >= limit {
			return errWalkDone
		}
		return nil
	})
	if err != nil && err != errWalkDone {
		return nil, errs.FromOS("find", term, err)
	}

	if len(matches) == 0 {
		return command.NewText(fmt.Sprintf("no matches for %q under %s", term, h.resolver.Display(cwd))), nil
	}

	sortPaths(matches)
	header := fmt.Sprintf("%d match(es) for %q under %s:", len(matches), term, h.resolver.Display(cwd))
	if total >= limit {
		header = fmt.Sprintf("first %d match(es) for %q under %s:", limit, term, h.resolver.Display(cwd))
	}
	return command.NewText(header + "\n" + format.Lines(matches...)), nil
}

// Search greps text files under the current directory for a substring
// and reports file, line number, and the matching line.
func (h *Handlers) Search(ctx context.Context, req *command.Request, sess *session.Session) (*command.Reply, error) {
	term := joined(req.Args)
	if term == "" {
		return nil, errs.InvalidArgument("search", "missing search term")
	}

	cwd := sess.Cwd()
	lowered := strings.ToLower(term)

	var (
		mu    sync.Mutex
		hits  []string
		total int
	)
	// Overflow is counted up to a multiple of the shown limit, then the
	// walk stops instead of scanning the rest of the tree.
	scanCap := h.limits.SearchLimit * 10

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, cwd, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		fileHits, scanErr := grepFile(path, lowered, perFileMatchCap)
		if scanErr != nil {
			h.log.Warn("file scan stopped early",
				zap.String("file", path), zap.Error(scanErr))
		}
		if len(fileHits) == 0 {
			return nil
		}
		rel, relErr := filepath.Rel(cwd, path)
		if relErr != nil {
			rel = d.Name()
		}

		mu.Lock()
		defer mu.Unlock()
		for _, fh := range fileHits {
			total++
			if len(hits) < h.limits.SearchLimit {
				hits = append(hits, fmt.Sprintf("%s:%d: %s", rel, fh.line, fh.text))
			}
		}
		if total >= scanCap {
			return errWalkDone
		}
		return nil
	})
	capped := err == errWalkDone
	if err != nil && !capped {
		return nil, errs.FromOS("search", term, err)
	}

	if total == 0 {
		return command.NewText(fmt.Sprintf("no matches for %q under %s", term, h.resolver.Display(cwd))), nil
	}

	sortPaths(hits)
	count := fmt.Sprintf("%d", total)
	if capped {
		count += "+"
	}
	out := fmt.Sprintf("%s match(es) for %q under %s:\n%s", count, term, h.resolver.Display(cwd), format.Lines(hits...))
	if total > len(hits) {
		out += fmt.Sprintf("\n+%d more", total-len(hits))
	}
	return command.NewText(out), nil
}

type grepHit struct {
	line int
	text string
}

// grepFile scans one file for the lowered term. Files with a null byte
// in the first block are treated as binary and skipped. A scan that
// stops early, e.g. on a line past the buffer limit, returns the hits
// collected so far plus the scanner error.
func grepFile(path, lowered string, limit int) ([]grepHit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	sniff := make([]byte, 4096)
	n, err := f.Read(sniff)
	if err != nil && err != io.EOF {
		return nil, nil
	}
	if bytes.IndexByte(sniff[:n], 0) >= 0 {
		return nil, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, nil
	}

	var hits []grepHit
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		if strings.Contains(strings.ToLower(text), lowered) {
			hits = append(hits, grepHit{line: lineNo, text: strings.TrimSpace(text)})
			if len(hits) >= limit {
				return hits, nil
			}
		}
	}
	return hits, scanner.Err()
}

func sortPaths(paths []string) {
	sort.Strings(paths)
}
