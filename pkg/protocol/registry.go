package protocol

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// Module is a named group of schemas registered together, typically one per
// Go package that declares protocol types.
type Module struct {
	Name  string
	Types []Descriptor
}

// NewModule groups descriptors under a name.
func NewModule(name string, types ...Descriptor) Module {
	return Module{Name: name, Types: types}
}

// Registry maps Go types and packet types to their descriptors.
//
// A registry is filled exactly once by Register and is read-only afterwards,
// so lookups need no locking.
type Registry struct {
	mu     sync.Mutex
	sealed atomic.Bool

	byType map[reflect.Type]Descriptor
	byID   map[int]Descriptor
	all    []Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register validates and indexes every descriptor of the given modules.
// It may succeed only once; later calls return ErrAlreadyRegistered.
func (r *Registry) Register(modules ...Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		return ErrAlreadyRegistered
	}
	if err := r.build(modules); err != nil {
		return err
	}
	r.sealed.Store(true)
	return nil
}

func (r *Registry) build(modules []Module) error {
	byType := make(map[reflect.Type]Descriptor)
	byID := make(map[int]Descriptor)
	var all []Descriptor

	for _, m := range modules {
		for _, d := range m.Types {
			if d == nil {
				continue
			}
			if err := d.check(); err != nil {
				return fmt.Errorf("module %s: %w", m.Name, err)
			}
			if prev, ok := byType[d.GoType()]; ok {
				if prev == d {
					continue
				}
				return fmt.Errorf("module %s: %w: %s", m.Name, ErrDuplicateType, d.GoType())
			}
			if d.EntityKind() == KindPacket {
				if prev, ok := byID[d.PacketType()]; ok {
					return fmt.Errorf("module %s: %w: %d used by %s and %s",
						m.Name, ErrDuplicatePacketType, d.PacketType(), prev.Name(), d.Name())
				}
				byID[d.PacketType()] = d
			}
			byType[d.GoType()] = d
			all = append(all, d)
		}
	}

	for _, d := range all {
		for _, ref := range d.references() {
			if byType[ref.GoType()] != ref {
				return fmt.Errorf("%w: %s references %s", ErrUnregisteredEntity, d.Name(), ref.Name())
			}
		}
	}

	slices.SortFunc(all, func(a, b Descriptor) int {
		if a.EntityKind() != b.EntityKind() {
			return int(b.EntityKind()) - int(a.EntityKind())
		}
		if a.EntityKind() == KindPacket {
			return a.PacketType() - b.PacketType()
		}
		return strings.Compare(a.Name(), b.Name())
	})

	r.byType = byType
	r.byID = byID
	r.all = all
	return nil
}

// Sealed reports whether Register has completed successfully.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Lookup returns the descriptor registered for the Go type t.
// Pointer types resolve to their element type.
func (r *Registry) Lookup(t reflect.Type) (Descriptor, bool) {
	if !r.Sealed() || t == nil {
		return nil, false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	d, ok := r.byType[t]
	return d, ok
}

// Packet returns the packet descriptor for a packet type.
func (r *Registry) Packet(packetType int) (Descriptor, bool) {
	if !r.Sealed() {
		return nil, false
	}
	d, ok := r.byID[packetType]
	return d, ok
}

// Descriptors returns all registered descriptors: packets by packet type,
// then nested entities by name.
func (r *Registry) Descriptors() []Descriptor {
	if !r.Sealed() {
		return nil
	}
	return slices.Clone(r.all)
}
