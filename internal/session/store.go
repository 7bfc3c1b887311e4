// Package session tracks per-operator navigation state: the current
// directory and the bookmark table. Sessions are created lazily on
// first command and live for the process lifetime unless explicitly
// reset. Nothing is shared between operators.
package session

import (
	"os"
	"sort"
	"sync"

	"github.com/bytedance/sonic"

	"fileferry/internal/shared/errs"
)

// Session is one operator's navigation state. The mutex serializes
// state access from concurrent commands of the same operator; it is
// never held across filesystem I/O.
type Session struct {
	mu        sync.Mutex
	operator  string
	cwd       string
	bookmarks map[string]string
}

// Operator returns the owning operator id.
func (s *Session) Operator() string { return s.operator }

// Cwd returns the session's current directory.
func (s *Session) Cwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// Store maps operator identity to session state. Injected into the
// dispatcher so tests can construct isolated instances.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	root     string
	snapshot string
}

// NewStore creates a store whose sessions start at root.
func NewStore(root string) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		root:     root,
	}
}

// Get returns the operator's session, creating it at the root on
// first use.
func (st *Store) Get(operator string) *Session {
	st.mu.RLock()
	s, ok := st.sessions[operator]
	st.mu.RUnlock()
	if ok {
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok = st.sessions[operator]; ok {
		return s
	}
	s = &Session{
		operator:  operator,
		cwd:       st.root,
		bookmarks: make(map[string]string),
	}
	st.sessions[operator] = s
	return s
}

// Count returns the number of live sessions.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// SetCwd commits a new current directory after re-validating that the
// target still is a readable directory. A session never points at a
// deleted or inaccessible directory.
func (st *Store) SetCwd(operator, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errs.FromOS("cd", dir, err)
	}
	if !info.IsDir() {
		return errs.NotADirectory("cd", dir)
	}
	if _, err := os.ReadDir(dir); err != nil {
		return errs.FromOS("cd", dir, err)
	}

	s := st.Get(operator)
	s.mu.Lock()
	s.cwd = dir
	s.mu.Unlock()
	return nil
}

// Reset drops the operator's session; the next command starts fresh at
// the root.
func (st *Store) Reset(operator string) {
	st.mu.Lock()
	delete(st.sessions, operator)
	st.mu.Unlock()
}

// AddBookmark stores dir under name. An existing name is overwritten:
// bookmark collisions are last-write-wins.
func (st *Store) AddBookmark(operator, name, dir string) {
	s := st.Get(operator)
	s.mu.Lock()
	s.bookmarks[name] = dir
	s.mu.Unlock()
	st.persist()
}

// Bookmark looks up a stored path by name.
func (st *Store) Bookmark(operator, name string) (string, error) {
	s := st.Get(operator)
	s.mu.Lock()
	defer s.mu.Unlock()
	dir, ok := s.bookmarks[name]
	if !ok {
		return "", errs.NotFound("bookmark", name)
	}
	return dir, nil
}

// DeleteBookmark removes a bookmark; a missing name is reported as
// not found rather than silently ignored.
func (st *Store) DeleteBookmark(operator, name string) error {
	s := st.Get(operator)
	s.mu.Lock()
	_, ok := s.bookmarks[name]
	if ok {
		delete(s.bookmarks, name)
	}
	s.mu.Unlock()
	if !ok {
		return errs.NotFound("bookmark", name)
	}
	st.persist()
	return nil
}

// Bookmarks returns the operator's bookmarks sorted by name.
func (st *Store) Bookmarks(operator string) []Bookmark {
	s := st.Get(operator)
	s.mu.Lock()
	out := make([]Bookmark, 0, len(s.bookmarks))
	for name, dir := range s.bookmarks {
		out = append(out, Bookmark{Name: name, Path: dir})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Bookmark is one named directory shortcut.
type Bookmark struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// EnableSnapshot turns on bookmark persistence to path and loads any
// existing snapshot. Persistence is best effort; the store stays
// authoritative in memory.
func (st *Store) EnableSnapshot(path string) error {
	st.mu.Lock()
	st.snapshot = path
	st.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var saved map[string]map[string]string
	if err := sonic.Unmarshal(data, &saved); err != nil {
		return err
	}
	for operator, marks := range saved {
		s := st.Get(operator)
		s.mu.Lock()
		for name, dir := range marks {
			s.bookmarks[name] = dir
		}
		s.mu.Unlock()
	}
	return nil
}

// persist writes the bookmark tables of all sessions to the snapshot
// file, when one is configured.
func (st *Store) persist() {
	st.mu.RLock()
	path := st.snapshot
	if path == "" {
		st.mu.RUnlock()
		return
	}
	saved := make(map[string]map[string]string, len(st.sessions))
	for operator, s := range st.sessions {
		s.mu.Lock()
		if len(s.bookmarks) > 0 {
			marks := make(map[string]string, len(s.bookmarks))
			for name, dir := range s.bookmarks {
				marks[name] = dir
			}
			saved[operator] = marks
		}
		s.mu.Unlock()
	}
	st.mu.RUnlock()

	data, err := sonic.Marshal(saved)
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o600)
}
