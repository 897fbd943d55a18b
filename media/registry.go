package media

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Protocol selects which extension lookup a registration answers.
type Protocol int

const (
	// TypeMatch answers the combined "manager and sniffer" lookup that
	// detection tries first.
	TypeMatch Protocol = iota
	// ExtensionOnly answers the legacy "media type for this extension"
	// lookup. Its sniffer, if any, only takes part in brute-force detection.
	ExtensionOnly
)

func (p Protocol) String() string {
	if p == ExtensionOnly {
		return "extension-only"
	}
	return "type-match"
}

type Registration struct {
	Manager  Manager
	Protocol Protocol
	// Extensions overrides Manager.Extensions when non-empty.
	Extensions []string
}

func (r Registration) extensions() []string {
	if len(r.Extensions) > 0 {
		return r.Extensions
	}
	return r.Manager.Extensions()
}

// Registry is the immutable, ordered table of media managers. The zero
// value is empty; build one with NewRegistry.
type Registry struct {
	regs   []Registration
	exts   [][]string
	byType map[string]Manager
}

func NewRegistry(regs ...Registration) (*Registry, error) {
	r := &Registry{byType: make(map[string]Manager, len(regs))}

	for _, reg := range regs {
		if reg.Manager == nil {
			return nil, errors.New("registration without a manager")
		}

		t := reg.Manager.Type()
		if _, dup := r.byType[t]; dup {
			return nil, fmt.Errorf("media type %q registered twice", t)
		}

		exts := make([]string, 0, len(reg.extensions()))
		for _, e := range reg.extensions() {
			exts = append(exts, strings.ToLower(strings.TrimPrefix(e, ".")))
		}

		r.regs = append(r.regs, reg)
		r.exts = append(r.exts, exts)
		r.byType[t] = reg.Manager
	}

	return r, nil
}

// Manager looks up a registered manager by its persisted type identifier.
func (r *Registry) Manager(mediaType string) (Manager, error) {
	if m, ok := r.byType[mediaType]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMediaType, mediaType)
}

// Types returns the registered type identifiers in registration order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.regs))
	for _, reg := range r.regs {
		out = append(out, reg.Manager.Type())
	}
	return out
}

// Extensions returns every accepted extension in registration order.
func (r *Registry) Extensions() []string {
	var out []string
	for _, exts := range r.exts {
		for _, e := range exts {
			if !slices.Contains(out, e) {
				out = append(out, e)
			}
		}
	}
	return out
}

// MatchExtension maps filename to the first manager, under either protocol,
// that accepts its extension.
func (r *Registry) MatchExtension(filename string) (Manager, bool) {
	return r.match(Extension(filename), func(Protocol) bool { return true })
}

// TypeMatch is the combined lookup: the manager claiming ext and the sniffer
// it wants run before the match is trusted (nil to trust it outright).
func (r *Registry) TypeMatch(ext string) (Manager, Sniffer, bool) {
	m, ok := r.match(ext, func(p Protocol) bool { return p == TypeMatch })
	if !ok {
		return nil, nil, false
	}
	return m, m.Sniffer(), true
}

// LegacyMatch is the extension-only lookup.
func (r *Registry) LegacyMatch(ext string) (Manager, bool) {
	return r.match(ext, func(p Protocol) bool { return p == ExtensionOnly })
}

func (r *Registry) match(ext string, want func(Protocol) bool) (Manager, bool) {
	if ext == "" {
		return nil, false
	}

	for i, reg := range r.regs {
		if want(reg.Protocol) && slices.Contains(r.exts[i], ext) {
			return reg.Manager, true
		}
	}

	return nil, false
}

// each calls fn for every manager with a sniffer, in registration order,
// until fn returns false.
func (r *Registry) each(fn func(Manager, Sniffer) bool) {
	for _, reg := range r.regs {
		if s := reg.Manager.Sniffer(); s != nil {
			if !fn(reg.Manager, s) {
				return
			}
		}
	}
}
