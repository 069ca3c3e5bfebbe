package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/byteflow-dev/byteflow/internal/demo"
	"github.com/byteflow-dev/byteflow/internal/errors"
	"github.com/byteflow-dev/byteflow/pkg/protocol"
)

func inspectCmd() *cobra.Command {
	var sample string

	cmd := &cobra.Command{
		Use:   "inspect [hex]",
		Short: "Decode a hex encoded frame",
		Long: `Decode a frame of the demo packets and print its envelope and value.

Whitespace in the hex input is ignored. With --sample the command prints
the frame of a sample packet instead.

Examples:
  byteflow inspect --sample=entity
  byteflow inspect "$(byteflow inspect --sample=login)"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := demo.NewCodec()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if sample != "" {
				return printSample(out, codec, sample)
			}
			if len(args) == 0 {
				return errors.New("BF204").WithDetail("Pass a hex frame or use --sample.")
			}
			return inspectFrame(out, codec, args[0])
		},
	}

	cmd.Flags().StringVar(&sample, "sample", "", "Print the frame of a sample packet (login, simple, entity)")
	return cmd
}

func samplePacket(name string) (any, bool) {
	switch name {
	case "login":
		return &demo.LoginRequest{Account: "alice"}, true
	case "simple":
		return &demo.SimpleEntity{ID: 1, Desc: "hello", Time: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}, true
	case "entity":
		return demo.SampleEntity(), true
	}
	return nil, false
}

func printSample(w io.Writer, codec *protocol.Codec, name string) error {
	v, ok := samplePacket(name)
	if !ok {
		return errors.New("BF202").WithDetail(fmt.Sprintf("Unknown sample %q. Use login, simple or entity.", name))
	}
	frame, err := codec.Pack(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, hex.EncodeToString(frame))
	return nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.New("BF204").Wrap(err)
	}
	return b, nil
}

func inspectFrame(w io.Writer, codec *protocol.Codec, input string) error {
	frame, err := decodeHex(input)
	if err != nil {
		return err
	}

	switch protocol.Classify(frame) {
	case protocol.FrameHeartbeatRequest, protocol.FrameHeartbeatResponse:
		fmt.Fprintf(w, "%s %s\n", faint("command"), protocol.Command(frame[0]))
		return nil
	}

	env, err := codec.ReadEnvelope(frame)
	if err != nil {
		return err
	}
	name := "unknown"
	if d, ok := codec.Registry().Packet(env.PacketType); ok {
		name = d.Name()
	}
	fmt.Fprintf(w, "%s %d\n", faint("version"), env.Version)
	fmt.Fprintf(w, "%s %d (%s)\n", faint("type   "), env.PacketType, name)
	fmt.Fprintf(w, "%s %d bytes after a %d byte header\n", faint("body   "), env.BodyLength, env.HeaderLen)

	v, err := codec.Unpack(frame)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(b))
	return nil
}
