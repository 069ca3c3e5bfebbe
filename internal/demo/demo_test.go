package demo

import (
	"reflect"
	"testing"
	"time"

	"github.com/byteflow-dev/byteflow/pkg/protocol"
)

func newCodec(t *testing.T) *protocol.Codec {
	t.Helper()
	c, err := NewCodec()
	if err != nil {
		t.Fatalf("NewCodec() error: %v", err)
	}
	return c
}

func TestRoundTrip(t *testing.T) {
	codec := newCodec(t)

	tests := []struct {
		name string
		v    any
	}{
		{"login request", &LoginRequest{Account: "alice", Token: "sid 7903702207692800"}},
		{"login response", &LoginResponse{Code: LoginRejected, Description: "bad token"}},
		{"simple", &SimpleEntity{ID: 1, Desc: "hi", Time: time.UnixMilli(1700000000123).UTC()}},
		{"entity", SampleEntity()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := codec.Pack(tt.v)
			if err != nil {
				t.Fatalf("Pack() error: %v", err)
			}
			got, err := codec.Unpack(frame)
			if err != nil {
				t.Fatalf("Unpack() error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.v) {
				t.Errorf("Unpack() = %+v, want %+v", got, tt.v)
			}
		})
	}
}

func TestLoginRequestLayout(t *testing.T) {
	codec := newCodec(t)
	frame, err := codec.Pack(&LoginRequest{Account: "a", Token: "b"})
	if err != nil {
		t.Fatalf("Pack() error: %v", err)
	}
	env, err := codec.ReadEnvelope(frame)
	if err != nil {
		t.Fatalf("ReadEnvelope() error: %v", err)
	}
	if env.PacketType != TypeLoginRequest {
		t.Errorf("PacketType = %d, want %d", env.PacketType, TypeLoginRequest)
	}
}

func TestEntityNilSub(t *testing.T) {
	codec := newCodec(t)
	e := SampleEntity()
	e.Sub = nil
	if _, err := codec.Pack(e); err == nil {
		t.Fatal("Pack() with nil Sub should fail")
	}
}

func TestMeasure(t *testing.T) {
	codec := newCodec(t)

	res, err := Measure(codec, SampleEntity(), 50)
	if err != nil {
		t.Fatalf("Measure() error: %v", err)
	}
	if res.Iterations != 50 {
		t.Errorf("Iterations = %d, want 50", res.Iterations)
	}
	if res.FrameSize == 0 {
		t.Error("FrameSize = 0")
	}

	if _, err := Measure(codec, SampleEntity(), 0); err == nil {
		t.Error("Measure(n=0) should fail")
	}
	if _, err := Measure(codec, &struct{}{}, 1); err == nil {
		t.Error("Measure() of an unregistered type should fail")
	}
}
