package protocol

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"

	"github.com/byteflow-dev/byteflow/pkg/bytestream"
)

type testLogin struct {
	Account string
	Token   string
}

type testInner struct {
	Name string
}

type testSub struct {
	Type     uint8
	Balance  float64
	Currency string
	Inner    testInner
}

type testEntity struct {
	Index    int32
	ID       int64
	Name     string
	Sub      *testSub
	IDs      []uuid.UUID
	Arr      []string
	Subs     []testSub
	SubIDs   []uint8
	Duration time.Duration
	At       time.Time
	Checked  bool
	UID      uuid.UUID
}

type testMisc struct {
	I8  int8
	I16 int16
	U16 uint16
	U32 uint32
	U64 uint64
	F32 float32
}

var (
	testLoginSchema = DefinePacket(100, "Login",
		// Declared out of order on purpose: order decides the layout.
		Field(2, "Token", String(), func(p *testLogin) *string { return &p.Token }),
		Field(1, "Account", String(), func(p *testLogin) *string { return &p.Account }),
	)

	testInnerSchema = DefineEntity("Inner",
		Field(1, "Name", String(), func(p *testInner) *string { return &p.Name }),
	)

	testSubSchema = DefineEntity("Sub",
		Field(1, "Type", Uint8(), func(p *testSub) *uint8 { return &p.Type }),
		Field(2, "Balance", Float64(), func(p *testSub) *float64 { return &p.Balance }),
		Field(3, "Currency", String(), func(p *testSub) *string { return &p.Currency }),
		Field(4, "Inner", Entity(testInnerSchema), func(p *testSub) *testInner { return &p.Inner }),
	)

	testEntitySchema = DefinePacket(1, "Entity",
		Field(1, "Index", Int32(), func(p *testEntity) *int32 { return &p.Index }),
		Field(2, "ID", Int64(), func(p *testEntity) *int64 { return &p.ID }),
		Field(3, "Name", String(), func(p *testEntity) *string { return &p.Name }),
		Field(4, "Sub", EntityPtr(testSubSchema), func(p *testEntity) **testSub { return &p.Sub }),
		Field(5, "IDs", Slice(UUID()), func(p *testEntity) *[]uuid.UUID { return &p.IDs }),
		Field(6, "Arr", Slice(String()), func(p *testEntity) *[]string { return &p.Arr }),
		Field(7, "Subs", Slice(Entity(testSubSchema)), func(p *testEntity) *[]testSub { return &p.Subs }),
		Field(8, "SubIDs", Slice(Uint8()), func(p *testEntity) *[]uint8 { return &p.SubIDs }),
		Field(9, "Duration", Duration(), func(p *testEntity) *time.Duration { return &p.Duration }),
		Field(10, "At", Time(), func(p *testEntity) *time.Time { return &p.At }),
		Field(11, "Checked", Bool(), func(p *testEntity) *bool { return &p.Checked }),
		Field(12, "UID", UUID(), func(p *testEntity) *uuid.UUID { return &p.UID }),
	).WithVersion(3)

	testMiscSchema = DefinePacket(300, "Misc",
		Field(1, "I8", Int8(), func(p *testMisc) *int8 { return &p.I8 }),
		Field(2, "I16", Int16(), func(p *testMisc) *int16 { return &p.I16 }),
		Field(3, "U16", Uint16(), func(p *testMisc) *uint16 { return &p.U16 }),
		Field(4, "U32", Uint32(), func(p *testMisc) *uint32 { return &p.U32 }),
		Field(5, "U64", Uint64(), func(p *testMisc) *uint64 { return &p.U64 }),
		Field(6, "F32", Float32(), func(p *testMisc) *float32 { return &p.F32 }),
	)
)

func testModule() Module {
	return NewModule("test", testLoginSchema, testInnerSchema, testSubSchema, testEntitySchema, testMiscSchema)
}

func newTestCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	reg := NewRegistry()
	if err := reg.Register(testModule()); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	return NewCodec(reg, opts...)
}

func sampleEntity() *testEntity {
	return &testEntity{
		Index: 1,
		ID:    638412345678901234,
		Name:  "福建首次",
		Sub: &testSub{
			Type:     2,
			Balance:  2021.84,
			Currency: "CNY",
			Inner:    testInner{Name: "DOL"},
		},
		IDs: []uuid.UUID{uuid.New(), uuid.New()},
		Arr: []string{"Test arr item"},
		Subs: []testSub{
			{Type: 3, Balance: 2022.84, Currency: "USD", Inner: testInner{Name: "a"}},
			{Type: 4, Balance: 2023.84, Currency: "CNY", Inner: testInner{}},
		},
		SubIDs:   []uint8{2, 3, 4},
		Duration: 80 * time.Second,
		At:       time.Date(2024, 5, 17, 8, 30, 15, 123_000_000, time.UTC),
		Checked:  true,
		UID:      uuid.New(),
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	c := newTestCodec(t)

	tests := []struct {
		name string
		in   any
	}{
		{"flat", &testLogin{Account: "alice", Token: "secret"}},
		{"flat_empty_strings", &testLogin{}},
		{"nul_bytes", &testLogin{Account: "ab\x00", Token: "\x00\x00"}},
		{"nested", sampleEntity()},
		{"empty_sequences", &testEntity{
			Sub:    &testSub{},
			IDs:    []uuid.UUID{},
			Arr:    []string{},
			Subs:   []testSub{},
			SubIDs: []uint8{},
			At:     time.UnixMilli(0).UTC(),
		}},
		{"scalars", &testMisc{I8: -8, I16: -1600, U16: 65535, U32: 1 << 31, U64: 1 << 63, F32: 1.5}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := c.Pack(tc.in)
			if err != nil {
				t.Fatalf("Pack() error: %v", err)
			}
			out, err := c.Unpack(frame)
			if err != nil {
				t.Fatalf("Unpack() error: %v", err)
			}
			if !reflect.DeepEqual(out, tc.in) {
				t.Errorf("Unpack(Pack(x)) = %+v, want %+v", out, tc.in)
			}
		})
	}
}

func TestStringTrailingNULRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	frame, err := c.Pack(&testLogin{Account: "ab\x00", Token: "t"})
	if err != nil {
		t.Fatalf("Pack() error: %v", err)
	}
	out, err := UnpackAs[testLogin](c, frame)
	if err != nil {
		t.Fatalf("UnpackAs() error: %v", err)
	}
	if out.Account != "ab\x00" {
		t.Errorf("Account = %q, want %q", out.Account, "ab\x00")
	}
}

func TestPackValueAndPointerMatch(t *testing.T) {
	c := newTestCodec(t)
	byPtr, err := c.Pack(&testLogin{Account: "a", Token: "b"})
	if err != nil {
		t.Fatalf("Pack(ptr) error: %v", err)
	}
	byVal, err := c.Pack(testLogin{Account: "a", Token: "b"})
	if err != nil {
		t.Fatalf("Pack(value) error: %v", err)
	}
	if !bytes.Equal(byPtr, byVal) {
		t.Errorf("Pack(value) = %v, want %v", byVal, byPtr)
	}
}

func TestPackWireLayout(t *testing.T) {
	c := newTestCodec(t)
	frame, err := c.Pack(&testLogin{Account: "ab", Token: "c"})
	if err != nil {
		t.Fatalf("Pack() error: %v", err)
	}
	want := []byte{
		0x00,       // version
		0x01, 100,  // packet type
		0x01, 0x07, // body length
		0x01, 0x02, 'a', 'b', // Account (order 1)
		0x01, 0x01, 'c', // Token (order 2)
	}
	if !bytes.Equal(frame, want) {
		t.Errorf("Pack() = %v, want %v", frame, want)
	}

	env, err := c.ReadEnvelope(frame)
	if err != nil {
		t.Fatalf("ReadEnvelope() error: %v", err)
	}
	if env.Version != 0 || env.PacketType != 100 || env.BodyLength != 7 || env.HeaderLen != 5 {
		t.Errorf("ReadEnvelope() = %+v, want version 0, type 100, length 7, header 5", env)
	}
}

func TestPacketVersionWritten(t *testing.T) {
	c := newTestCodec(t)
	frame, err := c.Pack(sampleEntity())
	if err != nil {
		t.Fatalf("Pack() error: %v", err)
	}
	if frame[0] != 3 {
		t.Errorf("version byte = %d, want 3", frame[0])
	}
}

func TestLittleEndianCodec(t *testing.T) {
	big := newTestCodec(t)
	little := newTestCodec(t, WithEndian(bytestream.LittleEndian))

	in := &testMisc{U16: 0x0102}
	lf, err := little.Pack(in)
	if err != nil {
		t.Fatalf("Pack() error: %v", err)
	}
	bf, err := big.Pack(in)
	if err != nil {
		t.Fatalf("Pack() error: %v", err)
	}
	if bytes.Equal(lf, bf) {
		t.Fatal("little and big endian frames should differ")
	}
	out, err := UnpackAs[testMisc](little, lf)
	if err != nil {
		t.Fatalf("UnpackAs() error: %v", err)
	}
	if *out != *in {
		t.Errorf("UnpackAs() = %+v, want %+v", out, in)
	}
}

func TestTextEncodingOption(t *testing.T) {
	c := newTestCodec(t, WithTextEncoding(charmap.ISO8859_1))
	frame, err := c.Pack(&testLogin{Account: "é", Token: ""})
	if err != nil {
		t.Fatalf("Pack() error: %v", err)
	}
	// 1 byte for é in Latin-1 instead of 2 in UTF-8.
	if frame[4] != 4 {
		t.Errorf("body length = %d, want 4", frame[4])
	}
	out, err := UnpackAs[testLogin](c, frame)
	if err != nil {
		t.Fatalf("UnpackAs() error: %v", err)
	}
	if out.Account != "é" {
		t.Errorf("Account = %q, want \"é\"", out.Account)
	}
}

func TestDurationAndTimeEncoding(t *testing.T) {
	c := newTestCodec(t)
	in := sampleEntity()
	in.Duration = 90*time.Second + 999*time.Millisecond
	in.At = time.Date(2024, 1, 2, 3, 4, 5, 678_900_000, time.FixedZone("X", 8*3600))

	out, err := packUnpack[testEntity](t, c, in)
	if err != nil {
		t.Fatalf("round trip error: %v", err)
	}
	if out.Duration != 90*time.Second {
		t.Errorf("Duration = %s, want 1m30s (sub-second part truncated)", out.Duration)
	}
	if !out.At.Equal(in.At.Truncate(time.Millisecond)) {
		t.Errorf("At = %s, want %s", out.At, in.At.Truncate(time.Millisecond))
	}
	if out.At.Location() != time.UTC {
		t.Errorf("At.Location() = %s, want UTC", out.At.Location())
	}
}

func TestDurationOutOfRange(t *testing.T) {
	c := newTestCodec(t)
	in := sampleEntity()
	in.Duration = -time.Second
	if _, err := c.Pack(in); !errors.Is(err, ErrValueOutOfRange) {
		t.Errorf("Pack() error = %v, want ErrValueOutOfRange", err)
	}
}

func TestNilNestedEntityRejected(t *testing.T) {
	c := newTestCodec(t)
	in := sampleEntity()
	in.Sub = nil

	_, err := c.Pack(in)
	if !errors.Is(err, ErrNilValue) {
		t.Fatalf("Pack() error = %v, want ErrNilValue", err)
	}
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("Pack() error %T is not *Error", err)
	}
	if pe.Op != "pack" || pe.Type != "Entity" || pe.Field != "Sub" {
		t.Errorf("Error = %+v, want pack Entity.Sub", pe)
	}
}

func TestPackErrors(t *testing.T) {
	c := newTestCodec(t)

	if _, err := c.Pack(nil); !errors.Is(err, ErrNilValue) {
		t.Errorf("Pack(nil) error = %v, want ErrNilValue", err)
	}
	if _, err := c.Pack((*testLogin)(nil)); !errors.Is(err, ErrNilValue) {
		t.Errorf("Pack(nil ptr) error = %v, want ErrNilValue", err)
	}
	if _, err := c.Pack(&testSub{}); !errors.Is(err, ErrNotPacket) {
		t.Errorf("Pack(nested entity) error = %v, want ErrNotPacket", err)
	}
	if _, err := c.Pack(42); !errors.Is(err, ErrNotPacket) {
		t.Errorf("Pack(int) error = %v, want ErrNotPacket", err)
	}
}

func TestUnregisteredCodec(t *testing.T) {
	c := NewCodec(NewRegistry())
	if _, err := c.Pack(&testLogin{}); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Pack() error = %v, want ErrNotRegistered", err)
	}
	if _, err := c.Unpack([]byte{0, 0, 0}); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Unpack() error = %v, want ErrNotRegistered", err)
	}
}

func TestFramingIntegrity(t *testing.T) {
	c := newTestCodec(t)
	frame, err := c.Pack(&testLogin{Account: "alice", Token: "secret"})
	if err != nil {
		t.Fatalf("Pack() error: %v", err)
	}

	// Body length is the one-byte value at offset 4.
	for _, delta := range []int{-1, 1} {
		corrupt := bytes.Clone(frame)
		corrupt[4] = byte(int(corrupt[4]) + delta)
		_, err := c.Unpack(corrupt)
		if !errors.Is(err, ErrInvalidPacket) {
			t.Errorf("Unpack(length%+d) error = %v, want ErrInvalidPacket", delta, err)
		}
		if !IsFraming(err) {
			t.Errorf("IsFraming(%v) = false, want true", err)
		}
	}

	if _, err := c.Unpack(frame[:len(frame)-1]); !errors.Is(err, ErrInvalidPacket) {
		t.Errorf("Unpack(truncated) error = %v, want ErrInvalidPacket", err)
	}
	if _, err := c.Unpack(nil); !errors.Is(err, ErrInvalidPacket) {
		t.Errorf("Unpack(nil) error = %v, want ErrInvalidPacket", err)
	}
}

func TestUnpackUnknownPacketType(t *testing.T) {
	c := newTestCodec(t)
	frame := []byte{0x00, 0x01, 0x63, 0x00} // type 99, empty body
	_, err := c.Unpack(frame)
	if !errors.Is(err, ErrUnknownPacketType) {
		t.Errorf("Unpack() error = %v, want ErrUnknownPacketType", err)
	}
}

func TestUnpackTrailingBodyBytes(t *testing.T) {
	c := newTestCodec(t)
	// Login with two empty strings is 2 body bytes; declare and send 3.
	frame := []byte{0x00, 0x01, 100, 0x01, 0x03, 0x00, 0x00, 0xFF}
	_, err := c.Unpack(frame)
	if !errors.Is(err, ErrInvalidPacket) {
		t.Errorf("Unpack() error = %v, want ErrInvalidPacket", err)
	}
}

func TestUnpackShortBody(t *testing.T) {
	c := newTestCodec(t)
	// Declares a 5 byte Account inside a 3 byte body.
	frame := []byte{0x00, 0x01, 100, 0x01, 0x03, 0x01, 0x05, 'a'}
	_, err := c.Unpack(frame)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Unpack() error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestUnpackCollectionLimits(t *testing.T) {
	c := newTestCodec(t, WithLimits(Limits{MaxCollectionCount: 2}))
	in := sampleEntity()
	in.SubIDs = []uint8{1, 2, 3}
	frame, err := c.Pack(in)
	if err != nil {
		t.Fatalf("Pack() error: %v", err)
	}
	if _, err := c.Unpack(frame); !errors.Is(err, ErrCollectionTooLarge) {
		t.Errorf("Unpack() error = %v, want ErrCollectionTooLarge", err)
	}
}

func TestUnpackAsWrongType(t *testing.T) {
	c := newTestCodec(t)
	frame, err := c.Pack(&testLogin{})
	if err != nil {
		t.Fatalf("Pack() error: %v", err)
	}
	if _, err := UnpackAs[testMisc](c, frame); !errors.Is(err, ErrNotPacket) {
		t.Errorf("UnpackAs() error = %v, want ErrNotPacket", err)
	}
}

func packUnpack[T any](t *testing.T, c *Codec, v *T) (*T, error) {
	t.Helper()
	frame, err := c.Pack(v)
	if err != nil {
		return nil, err
	}
	return UnpackAs[T](c, frame)
}
