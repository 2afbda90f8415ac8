package main

// Telemetry stream replay from packet captures

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/groundside/ctdict/internal/codec"
	"github.com/groundside/ctdict/internal/frames"
	"github.com/groundside/ctdict/internal/logging"
)

type pcapFlags struct {
	dicts  []string
	packet string
	inFile string
	port   uint16
	quiet  bool
}

func newPcapCmd() *cobra.Command {
	flags := &pcapFlags{}

	cmd := &cobra.Command{
		Use:   "pcap",
		Short: "Decode a telemetry stream from a packet capture",
		Long: `Extract UDP payloads from a pcap file and decode each one as a frame
of the selected packet. All frames share one history session, so
equations that look back over previous samples see the stream in
capture order.

Frames that fail to decode are reported and skipped; history is only
advanced by frames that decode completely.`,
		Example: `  ctdict pcap --dict dict/tlm.yaml --packet eps_status --in downlink.pcap
  ctdict pcap --dict dict/tlm.yaml --packet eps_status --in downlink.pcap --port 3076`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPcapDecode(flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.dicts, "dict", nil, "Dictionary file(s) (required)")
	cmd.MarkFlagRequired("dict")
	cmd.Flags().StringVar(&flags.packet, "packet", "", "Packet name or APID (required)")
	cmd.MarkFlagRequired("packet")
	cmd.Flags().StringVar(&flags.inFile, "in", "", "Input pcap file (required)")
	cmd.MarkFlagRequired("in")
	cmd.Flags().Uint16Var(&flags.port, "port", 0, "Keep only datagrams to this UDP port")
	cmd.Flags().BoolVar(&flags.quiet, "quiet", false, "Print only the final summary")

	return cmd
}

func runPcapDecode(flags *pcapFlags) error {
	d, err := loadDict(flags.dicts)
	if err != nil {
		return err
	}
	pkt, err := selectPacket(d, flags.packet)
	if err != nil {
		return err
	}

	extracted, err := frames.ExtractUDP(flags.inFile, flags.port)
	if err != nil {
		return err
	}
	logging.WithField("frames", len(extracted)).Info("extracted UDP payloads")

	dec := codec.NewDecoder(d)
	session := codec.NewSession()
	decoded, failed := 0, 0

	for i, f := range extracted {
		result, err := dec.Decode(pkt, f.Payload, session)
		if err != nil {
			failed++
			logging.WithField("frame", i).Warn(err.Error())
			continue
		}
		decoded++
		if !flags.quiet {
			fmt.Fprintf(os.Stdout, "frame %d  %s  %s -> %s\n", i, f.Timestamp.Format("15:04:05.000000"), f.SrcIP, f.DstIP)
			printResult(pkt, result)
		}
	}

	fmt.Fprintf(os.Stdout, "%d frame(s): %d decoded, %d failed\n", len(extracted), decoded, failed)
	if failed > 0 {
		return fmt.Errorf("%d frame(s) failed to decode", failed)
	}
	return nil
}
