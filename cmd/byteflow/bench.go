package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/byteflow-dev/byteflow/internal/demo"
	"github.com/byteflow-dev/byteflow/internal/errors"
)

func benchCmd() *cobra.Command {
	var (
		iterations int
		packet     string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure pack and unpack time of a demo packet",
		Long: `Pack and unpack a demo packet repeatedly and report the average time
per operation.

Examples:
  byteflow bench
  byteflow bench -n 100000 --packet=simple`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd.OutOrStdout(), packet, iterations)
		},
	}

	cmd.Flags().IntVarP(&iterations, "iterations", "n", 10000, "Number of pack and unpack operations")
	cmd.Flags().StringVar(&packet, "packet", "entity", "Packet to measure (login, simple, entity)")
	return cmd
}

func runBench(w io.Writer, packet string, n int) error {
	if n <= 0 {
		return errors.New("BF101").WithDetail("--iterations must be positive.")
	}
	v, ok := samplePacket(packet)
	if !ok {
		return errors.New("BF202").WithDetail(fmt.Sprintf("Unknown packet %q. Use login, simple or entity.", packet))
	}
	codec, err := demo.NewCodec()
	if err != nil {
		return err
	}

	t, err := demo.Measure(codec, v, n)
	if err != nil {
		return err
	}

	success(w, "%s, %d iterations, %d byte frame", packet, t.Iterations, t.FrameSize)
	info(w, "pack   %s/op  %s", cyan(t.Pack), faint(perSecond(t.Pack)))
	info(w, "unpack %s/op  %s", cyan(t.Unpack), faint(perSecond(t.Unpack)))
	return nil
}

func perSecond(d time.Duration) string {
	if d <= 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.0f ops/s", float64(time.Second)/float64(d))
}
