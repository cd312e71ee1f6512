package codec

import (
	"fmt"
	"slices"
	"sync"

	"github.com/zsiec/pv4/format"
)

// Backend extracts samples from frame payloads and converts them to
// pixels. A backend is bound to one decoder and need not be safe for
// concurrent use.
type Backend interface {
	Name() string

	// UnpackYUV422 writes the packed YUV422 rows of v to dst.
	UnpackYUV422(v *format.VideoData, width, height int, dst []byte, stride int) error

	// ToXRGB converts packed YUV422 rows to 4-byte B, G, R, 0xff pixels.
	ToXRGB(src []byte, srcStride, width, height int, dst []byte, dstStride int) error

	// ToFields expands the top field of src into first and the bottom field
	// into second, each at full height.
	ToFields(src []byte, srcStride, width, height int, first, second *Bitmap) error
}

// BackendFactory creates a backend for a decoder. It reports false when the
// backend cannot serve the given base, for example because it needs more
// threads than provisioned.
type BackendFactory func(b *Base) (Backend, bool)

type backendEntry struct {
	name     string
	priority int
	factory  BackendFactory
}

var registry struct {
	mu      sync.Mutex
	entries []backendEntry
}

// RegisterBackend adds a backend. Decoders try backends from the highest
// priority down.
func RegisterBackend(name string, priority int, factory BackendFactory) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	for _, e := range registry.entries {
		if e.name == name {
			return fmt.Errorf("%w: %q", ErrDuplicateBackend, name)
		}
	}
	registry.entries = append(registry.entries, backendEntry{name: name, priority: priority, factory: factory})
	slices.SortStableFunc(registry.entries, func(a, b backendEntry) int {
		return b.priority - a.priority
	})
	return nil
}

// Backends returns the registered backend names in priority order.
func Backends() []string {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	names := make([]string, len(registry.entries))
	for i, e := range registry.entries {
		names[i] = e.name
	}
	return names
}

// selectBackend returns the named backend, or the first available one when
// name is empty.
func selectBackend(b *Base, name string) (Backend, error) {
	registry.mu.Lock()
	entries := slices.Clone(registry.entries)
	registry.mu.Unlock()

	for _, e := range entries {
		if name != "" && e.name != name {
			continue
		}
		if be, ok := e.factory(b); ok {
			return be, nil
		}
		if name != "" {
			return nil, fmt.Errorf("%w: %q is not available", ErrNoBackend, name)
		}
	}
	if name != "" {
		return nil, fmt.Errorf("%w: %q is not registered", ErrNoBackend, name)
	}
	return nil, ErrNoBackend
}

func mustRegister(name string, priority int, factory BackendFactory) {
	if err := RegisterBackend(name, priority, factory); err != nil {
		panic(err)
	}
}

func init() {
	mustRegister("tiled", 100, newTiledBackend)
	mustRegister("raw", 0, newRawBackend)
}
