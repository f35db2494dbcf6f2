package adapters

import (
	"fmt"
	"sort"

	"github.com/rivalapexmediation/auction-server/auction"
)

// Entry pairs an adapter with its descriptor.
type Entry struct {
	Descriptor
	Adapter Adapter
}

// RegistryBuilder collects adapters at startup. Registration is idempotent: the first
// registration of a name wins and later ones are ignored.
type RegistryBuilder struct {
	entries map[string]Entry
}

func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{entries: make(map[string]Entry)}
}

// Register adds an adapter. It returns false if the name was already registered.
func (b *RegistryBuilder) Register(desc Descriptor, adapter Adapter) (bool, error) {
	if desc.Name == "" {
		return false, fmt.Errorf("adapter name must not be empty")
	}
	if adapter == nil {
		return false, fmt.Errorf("adapter %s: implementation must not be nil", desc.Name)
	}
	if desc.Timeout <= 0 {
		return false, fmt.Errorf("adapter %s: timeout ceiling must be positive, got %v", desc.Name, desc.Timeout)
	}
	for _, f := range desc.Formats {
		if !f.Valid() {
			return false, fmt.Errorf("adapter %s: unknown ad format %q", desc.Name, f)
		}
	}
	if _, ok := b.entries[desc.Name]; ok {
		return false, nil
	}
	formats := make([]auction.AdFormat, len(desc.Formats))
	copy(formats, desc.Formats)
	desc.Formats = formats
	b.entries[desc.Name] = Entry{Descriptor: desc, Adapter: adapter}
	return true, nil
}

// Build freezes the registered adapters. The builder may keep being used; the returned
// Registry is not affected by it.
func (b *RegistryBuilder) Build() *Registry {
	r := &Registry{
		byName: make(map[string]Entry, len(b.entries)),
		sorted: make([]Entry, 0, len(b.entries)),
	}
	for name, e := range b.entries {
		r.byName[name] = e
		r.sorted = append(r.sorted, e)
	}
	sort.Slice(r.sorted, func(i, j int) bool {
		return r.sorted[i].Name < r.sorted[j].Name
	})
	return r
}

// Registry is the read-only set of adapters available to the auction. It is safe for
// concurrent use.
type Registry struct {
	byName map[string]Entry
	sorted []Entry
}

// ForFormat returns the adapters supporting format, ordered by name.
func (r *Registry) ForFormat(format auction.AdFormat) []Entry {
	if r == nil {
		return nil
	}
	var eligible []Entry
	for _, e := range r.sorted {
		if e.Supports(format) {
			eligible = append(eligible, e)
		}
	}
	return eligible
}

// Get looks up an adapter by name.
func (r *Registry) Get(name string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	e, ok := r.byName[name]
	return e, ok
}

// Names lists the registered adapter names in order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.sorted))
	for i, e := range r.sorted {
		names[i] = e.Name
	}
	return names
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.sorted)
}
