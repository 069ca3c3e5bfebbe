// Package demo defines the sample packets used by the byteflow CLI: a login
// exchange, a small entity and a large nested one for benchmarks.
package demo

import (
	"time"

	"github.com/google/uuid"

	"github.com/byteflow-dev/byteflow/pkg/protocol"
)

// Packet types.
const (
	TypeEntity        = 1
	TypeSimpleEntity  = 11
	TypeLoginRequest  = 100
	TypeLoginResponse = 101
)

// Login result codes.
const (
	LoginOK       uint8 = 0
	LoginRejected uint8 = 1
)

// LoginRequest is sent by a client right after connecting.
type LoginRequest struct {
	Account string
	Token   string
}

// LoginResponse answers a LoginRequest.
type LoginResponse struct {
	Code        uint8
	Description string
}

// SimpleEntity is a small packet for echo tests.
type SimpleEntity struct {
	ID   int32
	Desc string
	Time time.Time
}

type SubEntity2 struct {
	Name string
}

type SubEntity struct {
	Type     uint8
	Balance  float64
	Currency string
	Sub      SubEntity2
}

// Entity exercises every field kind.
type Entity struct {
	Index    int32
	ID       int64
	Name     string
	Sub      *SubEntity
	List     []uuid.UUID
	Arr      []string
	Subs     []SubEntity
	SubIDs   []uint8
	Duration time.Duration
	DateTime time.Time
	Checked  bool
	UID      uuid.UUID
}

var (
	LoginRequestSchema = protocol.DefinePacket(TypeLoginRequest, "LoginRequest",
		protocol.Field(1, "Account", protocol.String(), func(p *LoginRequest) *string { return &p.Account }),
		protocol.Field(2, "Token", protocol.String(), func(p *LoginRequest) *string { return &p.Token }),
	)

	LoginResponseSchema = protocol.DefinePacket(TypeLoginResponse, "LoginResponse",
		protocol.Field(1, "Code", protocol.Uint8(), func(p *LoginResponse) *uint8 { return &p.Code }),
		protocol.Field(2, "Description", protocol.String(), func(p *LoginResponse) *string { return &p.Description }),
	)

	SimpleEntitySchema = protocol.DefinePacket(TypeSimpleEntity, "SimpleEntity",
		protocol.Field(1, "ID", protocol.Int32(), func(p *SimpleEntity) *int32 { return &p.ID }),
		protocol.Field(2, "Desc", protocol.String(), func(p *SimpleEntity) *string { return &p.Desc }),
		protocol.Field(3, "Time", protocol.Time(), func(p *SimpleEntity) *time.Time { return &p.Time }),
	)

	SubEntity2Schema = protocol.DefineEntity("SubEntity2",
		protocol.Field(1, "Name", protocol.String(), func(p *SubEntity2) *string { return &p.Name }),
	)

	SubEntitySchema = protocol.DefineEntity("SubEntity",
		protocol.Field(1, "Type", protocol.Uint8(), func(p *SubEntity) *uint8 { return &p.Type }),
		protocol.Field(2, "Balance", protocol.Float64(), func(p *SubEntity) *float64 { return &p.Balance }),
		protocol.Field(3, "Currency", protocol.String(), func(p *SubEntity) *string { return &p.Currency }),
		protocol.Field(4, "Sub", protocol.Entity(SubEntity2Schema), func(p *SubEntity) *SubEntity2 { return &p.Sub }),
	)

	EntitySchema = protocol.DefinePacket(TypeEntity, "Entity",
		protocol.Field(1, "Index", protocol.Int32(), func(p *Entity) *int32 { return &p.Index }),
		protocol.Field(2, "ID", protocol.Int64(), func(p *Entity) *int64 { return &p.ID }),
		protocol.Field(3, "Name", protocol.String(), func(p *Entity) *string { return &p.Name }),
		protocol.Field(4, "Sub", protocol.EntityPtr(SubEntitySchema), func(p *Entity) **SubEntity { return &p.Sub }),
		protocol.Field(5, "List", protocol.Slice(protocol.UUID()), func(p *Entity) *[]uuid.UUID { return &p.List }),
		protocol.Field(6, "Arr", protocol.Slice(protocol.String()), func(p *Entity) *[]string { return &p.Arr }),
		protocol.Field(7, "Subs", protocol.Slice(protocol.Entity(SubEntitySchema)), func(p *Entity) *[]SubEntity { return &p.Subs }),
		protocol.Field(8, "SubIDs", protocol.Slice(protocol.Uint8()), func(p *Entity) *[]uint8 { return &p.SubIDs }),
		protocol.Field(9, "Duration", protocol.Duration(), func(p *Entity) *time.Duration { return &p.Duration }),
		protocol.Field(10, "DateTime", protocol.Time(), func(p *Entity) *time.Time { return &p.DateTime }),
		protocol.Field(11, "Checked", protocol.Bool(), func(p *Entity) *bool { return &p.Checked }),
		protocol.Field(12, "UID", protocol.UUID(), func(p *Entity) *uuid.UUID { return &p.UID }),
	)
)

// Module groups the demo descriptors.
func Module() protocol.Module {
	return protocol.NewModule("demo",
		LoginRequestSchema,
		LoginResponseSchema,
		SimpleEntitySchema,
		SubEntity2Schema,
		SubEntitySchema,
		EntitySchema,
	)
}

// NewCodec returns a codec over a fresh registry holding the demo module.
func NewCodec(opts ...protocol.Option) (*protocol.Codec, error) {
	reg := protocol.NewRegistry()
	if err := reg.Register(Module()); err != nil {
		return nil, err
	}
	return protocol.NewCodec(reg, opts...), nil
}

// SampleEntity returns a populated Entity.
func SampleEntity() *Entity {
	return &Entity{
		Index: 1,
		ID:    time.Now().UnixNano(),
		Name:  "福建首次",
		Sub: &SubEntity{
			Type:     2,
			Balance:  2021.84,
			Currency: "CNY",
			Sub:      SubEntity2{Name: "DOL"},
		},
		List: []uuid.UUID{uuid.New(), uuid.New()},
		Arr:  []string{"Test arr item"},
		Subs: []SubEntity{
			{Type: 3, Balance: 2022.84, Currency: "USD"},
			{Type: 4, Balance: 2023.84, Currency: "CNY"},
		},
		SubIDs:   []uint8{2, 3, 4},
		Duration: 80 * time.Second,
		DateTime: time.Now().UTC().Truncate(time.Millisecond),
		Checked:  true,
		UID:      uuid.New(),
	}
}
