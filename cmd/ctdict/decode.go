package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/groundside/ctdict/internal/codec"
	"github.com/groundside/ctdict/internal/dict"
	uerr "github.com/groundside/ctdict/internal/errors"
	"github.com/groundside/ctdict/internal/logging"
)

type decodeFlags struct {
	dicts   []string
	packet  string
	hexData string
	inFile  string
}

func newDecodeCmd() *cobra.Command {
	flags := &decodeFlags{}

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode one telemetry frame",
		Long: `Decode a single telemetry frame against a packet definition and print
every field: raw value, enumeration symbol, and engineering-unit value
where a conversion applies.

The packet is selected by name or by decimal/hex APID. The frame comes
from --hex (whitespace-separated or contiguous hex bytes) or --in (a
raw binary file).`,
		Example: `  ctdict decode --dict dict/tlm.yaml --packet eps_status --hex "01 f4 00 42"
  ctdict decode --dict dict/tlm.yaml --packet 101 --in frame.bin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.dicts, "dict", nil, "Dictionary file(s) (required)")
	cmd.MarkFlagRequired("dict")
	cmd.Flags().StringVar(&flags.packet, "packet", "", "Packet name or APID (required)")
	cmd.MarkFlagRequired("packet")
	cmd.Flags().StringVar(&flags.hexData, "hex", "", "Frame bytes as hex")
	cmd.Flags().StringVar(&flags.inFile, "in", "", "Frame bytes from a raw binary file")

	return cmd
}

func runDecode(flags *decodeFlags) error {
	d, err := loadDict(flags.dicts)
	if err != nil {
		return err
	}

	pkt, err := selectPacket(d, flags.packet)
	if err != nil {
		return err
	}

	frame, err := readFrame(flags.hexData, flags.inFile)
	if err != nil {
		return err
	}
	logging.HexDump("decoding frame", frame)

	dec := codec.NewDecoder(d)
	session := codec.NewSession()
	result, err := dec.Decode(pkt, frame, session)
	if err != nil {
		printResult(pkt, result)
		return uerr.WrapDecodeError(err, pkt.Name)
	}
	printResult(pkt, result)
	return nil
}

// selectPacket resolves --packet as a name first, then as an APID.
func selectPacket(d *dict.Dictionary, sel string) (*dict.PacketDef, error) {
	if pkt, ok := d.PacketByName(sel); ok {
		return pkt, nil
	}
	if apid, err := strconv.ParseInt(sel, 0, 32); err == nil {
		if pkt, ok := d.PacketByAPID(int(apid)); ok {
			return pkt, nil
		}
	}
	return nil, fmt.Errorf("no packet matches %q by name or APID", sel)
}

func readFrame(hexData, inFile string) ([]byte, error) {
	switch {
	case hexData != "" && inFile != "":
		return nil, fmt.Errorf("--hex and --in are mutually exclusive")
	case hexData != "":
		return parseHex(hexData)
	case inFile != "":
		return os.ReadFile(inFile)
	}
	return nil, fmt.Errorf("one of --hex or --in is required")
}

func parseHex(s string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\n' || r == ':' {
			return -1
		}
		return r
	}, s)
	if len(cleaned)%2 != 0 {
		return nil, fmt.Errorf("hex input has an odd number of digits")
	}
	out := make([]byte, len(cleaned)/2)
	for i := 0; i < len(out); i++ {
		n, err := strconv.ParseUint(cleaned[2*i:2*i+2], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("bad hex byte %q", cleaned[2*i:2*i+2])
		}
		out[i] = byte(n)
	}
	return out, nil
}

func printResult(pkt *dict.PacketDef, result codec.Result) {
	if result == nil {
		return
	}
	show := func(name string) {
		v, ok := result[name]
		if !ok {
			return
		}
		if !v.Present {
			fmt.Fprintf(os.Stdout, "  %-20s (absent)\n", name)
			return
		}
		line := fmt.Sprintf("  %-20s %v", name, v.Raw)
		if v.Symbol != "" {
			line += fmt.Sprintf("  %s", v.Symbol)
		}
		if v.EU != nil {
			line += fmt.Sprintf("  eu=%g", *v.EU)
		}
		if v.Matched != nil && !*v.Matched {
			line += "  MISMATCH"
		}
		fmt.Fprintln(os.Stdout, line)
	}
	for _, f := range pkt.Fields {
		show(f.Name)
	}
	for _, deriv := range pkt.Derivations {
		show(deriv.Name)
	}
}
