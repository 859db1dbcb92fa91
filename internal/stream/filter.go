package stream

import (
	"slices"
	"strings"

	"github.com/vladislavshiptenko/m3301-shiptenko-vladislav/internal/notify"
)

// Filter decides which bus events reach one session. The zero value admits
// everything.
type Filter struct {
	modules    map[string]struct{}
	restricted bool
	userID     string
}

// ParseFilter builds a filter from the raw "modules" and "userId" query
// parameters. Entries are trimmed and blanks dropped. A blank modules value
// admits every module; a non-blank value that names nothing, such as ",",
// admits no bus events at all.
func ParseFilter(modules, userID string) Filter {
	if strings.TrimSpace(modules) == "" {
		return NewFilter(nil, userID)
	}
	var names []string
	for _, m := range strings.Split(modules, ",") {
		if m = strings.TrimSpace(m); m != "" {
			names = append(names, m)
		}
	}
	f := NewFilter(names, userID)
	f.restricted = true
	return f
}

// NewFilter returns a filter restricted to the given modules. An empty list
// admits every module.
func NewFilter(modules []string, userID string) Filter {
	f := Filter{userID: strings.TrimSpace(userID)}
	if len(modules) == 0 {
		return f
	}
	f.restricted = true
	f.modules = make(map[string]struct{}, len(modules))
	for _, m := range modules {
		f.modules[m] = struct{}{}
	}
	return f
}

// Admits reports whether e should be forwarded. Public events reach every
// session regardless of its user.
func (f Filter) Admits(e notify.Event) bool {
	if f.restricted {
		if _, ok := f.modules[e.Module]; !ok {
			return false
		}
	}
	return f.userID == "" || e.Public() || e.UserID == f.userID
}

// Modules returns the allowed module names in sorted order, or nil when all
// modules are admitted.
func (f Filter) Modules() []string {
	if !f.restricted {
		return nil
	}
	names := make([]string, 0, len(f.modules))
	for m := range f.modules {
		names = append(names, m)
	}
	slices.Sort(names)
	return names
}

func (f Filter) UserID() string {
	return f.userID
}

// Describe summarises the filter for the welcome frame.
func (f Filter) Describe() string {
	if !f.restricted {
		return "all modules"
	}
	if len(f.modules) == 0 {
		return "no modules"
	}
	return strings.Join(f.Modules(), ", ")
}
