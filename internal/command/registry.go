package command

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"fileferry/internal/shared/errs"
)

// Spec is one registered command: its argument schema plus the
// handler reference. Specs are registered at startup and validated for
// completeness before the service accepts traffic.
type Spec struct {
	Name    string
	Summary string
	Usage   string
	Args    []Arg
	// MaxArgs < 0 means variadic beyond the declared arguments.
	MinArgs int
	MaxArgs int
	Handler HandlerFunc
}

// CheckArity validates the argument count against the schema.
func (s *Spec) CheckArity(args []string) error {
	if len(args) < s.MinArgs {
		return errs.InvalidArgument(s.Name, fmt.Sprintf("usage: %s", s.Usage))
	}
	if s.MaxArgs >= 0 && len(args) > s.MaxArgs {
		return errs.InvalidArgument(s.Name, fmt.Sprintf("usage: %s", s.Usage))
	}
	return nil
}

// Registry is the static command table. Population happens once during
// wiring; lookups afterwards are read-only and safe for concurrent
// use.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*Spec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*Spec)}
}

// Register adds a command spec. Duplicate names and incomplete specs
// are wiring bugs and fail loudly.
func (r *Registry) Register(spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("command name cannot be empty")
	}
	if spec.Handler == nil {
		return fmt.Errorf("command %s has no handler", spec.Name)
	}
	if spec.MaxArgs >= 0 && spec.MaxArgs < spec.MinArgs {
		return fmt.Errorf("command %s has inverted arity bounds", spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("command %s registered twice", spec.Name)
	}
	r.specs[spec.Name] = &spec
	return nil
}

// Get retrieves a command spec by name.
func (r *Registry) Get(name string) (*Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// Names returns all registered command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the populated table is internally consistent. Run
// once at startup, after all handlers have registered.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.specs) == 0 {
		return fmt.Errorf("no commands registered")
	}
	for name, spec := range r.specs {
		if spec.Handler == nil {
			return fmt.Errorf("command %s has no handler", name)
		}
		if spec.Usage == "" {
			return fmt.Errorf("command %s has no usage line", name)
		}
	}
	return nil
}

// Help renders the command index shown for an unknown command or an
// explicit help request.
func (r *Registry) Help() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("available commands:\n")
	for _, name := range names {
		spec := r.specs[name]
		fmt.Fprintf(&b, "  %-28s %s\n", spec.Usage, spec.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}
