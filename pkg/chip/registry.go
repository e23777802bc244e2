package chip

import (
	"fmt"
	"sort"
	"strings"
)

type constructor func(opts ...Option) Backend

var registry = map[string]constructor{
	"ym2151": func(opts ...Option) Backend { return NewYM2151(opts...) },
	"ym2608": func(opts ...Option) Backend { return NewYM2608(opts...) },
}

var aliases = map[string]string{
	"opm":  "ym2151",
	"opna": "ym2608",
}

// New returns an uninitialized backend by chip name or family alias.
func New(name string, opts ...Option) (Backend, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	ctor, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownChip, name, strings.Join(Names(), ", "))
	}
	return ctor(opts...), nil
}

// Names lists the canonical chip names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultClock returns the usual clock of a chip, or 0 for unknown names.
func DefaultClock(name string) int {
	b, err := New(name)
	if err != nil {
		return 0
	}
	return b.Clock()
}
