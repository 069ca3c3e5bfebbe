package protocol

import (
	"fmt"
	"reflect"
	"slices"
)

// EntityKind distinguishes top-level packets from nested entities.
type EntityKind uint8

const (
	KindNested EntityKind = iota // embedded in a packet or another entity
	KindPacket                   // has a packet type and travels in an envelope
)

// String returns the string representation of the entity kind.
func (k EntityKind) String() string {
	if k == KindPacket {
		return "packet"
	}
	return "entity"
}

// Descriptor is the type-erased view of a Schema held by a Registry.
type Descriptor interface {
	Name() string
	EntityKind() EntityKind
	PacketType() int
	Version() byte
	GoType() reflect.Type
	Fields() []FieldInfo

	check() error
	references() []Descriptor
	encodeValue(s *encodeState, v any) error
	decodeValue(s *decodeState) (any, error)
}

// FieldInfo describes one field of a schema in wire order.
type FieldInfo struct {
	Order int
	Name  string
	Kind  Kind
	Type  string
}

// FieldDef is one field of a schema for type T. Build it with Field.
type FieldDef[T any] struct {
	info    FieldInfo
	minSize int
	refs    []Descriptor
	encode  func(s *encodeState, t *T) error
	decode  func(s *decodeState, t *T) error
}

// Field declares a field of T at the given order. at returns the address of
// the field inside a *T; it is called once per encode and decode.
//
//	protocol.Field(1, "Account", protocol.String(), func(p *LoginRequest) *string { return &p.Account })
func Field[T, V any](order int, name string, v Value[V], at func(*T) *V) FieldDef[T] {
	f := FieldDef[T]{
		info:    FieldInfo{Order: order, Name: name, Kind: v.kind, Type: v.name},
		minSize: v.minSize,
		refs:    v.refs,
	}
	if at == nil || v.enc == nil || v.dec == nil {
		return f
	}
	f.encode = func(s *encodeState, t *T) error {
		return v.enc(s, *at(t))
	}
	f.decode = func(s *decodeState, t *T) error {
		x, err := v.dec(s)
		if err != nil {
			return err
		}
		*at(t) = x
		return nil
	}
	return f
}

// Schema is the ordered field layout of T. Schemas are immutable once
// registered with a Registry.
type Schema[T any] struct {
	name       string
	kind       EntityKind
	packetType int
	version    byte
	fields     []FieldDef[T]
	goType     reflect.Type
	err        error
}

// DefineEntity declares a nested entity. Fields are sorted by order;
// definition problems are reported when the schema is registered.
func DefineEntity[T any](name string, fields ...FieldDef[T]) *Schema[T] {
	return define(KindNested, 0, name, fields)
}

// DefinePacket declares a packet with the given packet type.
func DefinePacket[T any](packetType int, name string, fields ...FieldDef[T]) *Schema[T] {
	s := define(KindPacket, packetType, name, fields)
	if packetType < 0 && s.err == nil {
		s.err = fmt.Errorf("%w: %s: negative packet type %d", ErrInvalidSchema, s.name, packetType)
	}
	return s
}

func define[T any](kind EntityKind, packetType int, name string, fields []FieldDef[T]) *Schema[T] {
	s := &Schema[T]{
		name:       name,
		kind:       kind,
		packetType: packetType,
		goType:     reflect.TypeFor[T](),
		fields:     slices.Clone(fields),
	}
	if s.name == "" {
		s.name = s.goType.Name()
	}
	slices.SortStableFunc(s.fields, func(a, b FieldDef[T]) int {
		return a.info.Order - b.info.Order
	})
	for i, f := range s.fields {
		if f.encode == nil {
			s.err = fmt.Errorf("%w: %s.%s: missing value or accessor", ErrInvalidSchema, s.name, f.info.Name)
			break
		}
		if i > 0 && s.fields[i-1].info.Order == f.info.Order {
			s.err = fmt.Errorf("%w: %s: order %d used by %s and %s",
				ErrDuplicateFieldOrder, s.name, f.info.Order, s.fields[i-1].info.Name, f.info.Name)
			break
		}
	}
	return s
}

// WithVersion sets the envelope version byte of a packet. Versions at or
// above MinReservedVersion collide with command frames and are rejected at
// registration.
func (s *Schema[T]) WithVersion(v byte) *Schema[T] {
	s.version = v
	return s
}

func (s *Schema[T]) Name() string             { return s.name }
func (s *Schema[T]) EntityKind() EntityKind   { return s.kind }
func (s *Schema[T]) PacketType() int          { return s.packetType }
func (s *Schema[T]) Version() byte            { return s.version }
func (s *Schema[T]) GoType() reflect.Type     { return s.goType }
func (s *Schema[T]) references() []Descriptor { return s.refsAll() }

// Fields returns the field layout in wire order.
func (s *Schema[T]) Fields() []FieldInfo {
	out := make([]FieldInfo, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.info
	}
	return out
}

func (s *Schema[T]) check() error {
	if s.err != nil {
		return s.err
	}
	if s.kind == KindPacket && s.version >= MinReservedVersion {
		return fmt.Errorf("%w: %s uses version %d", ErrReservedVersion, s.name, s.version)
	}
	return nil
}

func (s *Schema[T]) refsAll() []Descriptor {
	var refs []Descriptor
	for _, f := range s.fields {
		refs = append(refs, f.refs...)
	}
	return refs
}

func (s *Schema[T]) minSize() int {
	n := 0
	for _, f := range s.fields {
		n += f.minSize
	}
	return n
}

func (s *Schema[T]) encodeFields(st *encodeState, t *T) error {
	for _, f := range s.fields {
		if err := f.encode(st, t); err != nil {
			return fieldError("pack", s.name, f.info.Name, err)
		}
	}
	return nil
}

func (s *Schema[T]) decodeFields(st *decodeState, t *T) error {
	for _, f := range s.fields {
		if err := f.decode(st, t); err != nil {
			return fieldError("unpack", s.name, f.info.Name, err)
		}
	}
	return nil
}

func (s *Schema[T]) encodeNested(st *encodeState, t *T) error {
	if err := st.depth.enter(); err != nil {
		return err
	}
	defer st.depth.leave()
	return s.encodeFields(st, t)
}

func (s *Schema[T]) decodeNested(st *decodeState, t *T) error {
	if err := st.depth.enter(); err != nil {
		return err
	}
	defer st.depth.leave()
	return s.decodeFields(st, t)
}

func (s *Schema[T]) encodeValue(st *encodeState, v any) error {
	switch x := v.(type) {
	case *T:
		if x == nil {
			return &Error{Op: "pack", Type: s.name, Err: ErrNilValue}
		}
		return s.encodeNested(st, x)
	case T:
		return s.encodeNested(st, &x)
	default:
		return &Error{Op: "pack", Type: s.name, Err: fmt.Errorf("%w: got %T", ErrNotPacket, v)}
	}
}

func (s *Schema[T]) decodeValue(st *decodeState) (any, error) {
	t := new(T)
	if err := s.decodeNested(st, t); err != nil {
		return nil, err
	}
	return t, nil
}
