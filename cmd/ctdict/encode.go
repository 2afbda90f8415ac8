package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/groundside/ctdict/internal/codec"
	uerr "github.com/groundside/ctdict/internal/errors"
	"github.com/groundside/ctdict/internal/logging"
)

type encodeFlags struct {
	dicts []string
}

func newEncodeCmd() *cobra.Command {
	flags := &encodeFlags{}

	cmd := &cobra.Command{
		Use:   "encode <command> [arg=value...]",
		Short: "Encode a command into a hex frame",
		Long: `Encode a command and its arguments into a transmit-ready frame: the
2-byte big-endian opcode followed by the packed argument bytes.

Argument values may be decimal or 0x-prefixed integers, floats, or the
symbolic name of an enumerated value. Arguments with a fixed value in
the dictionary may be omitted.`,
		Example: `  ctdict encode set_mode mode=SAFE --dict dict/cmd.yaml
  ctdict encode arm_relay sequence_id=7 enable=ENABLED --dict dict/cmd.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(flags, args[0], args[1:])
		},
	}

	cmd.Flags().StringSliceVar(&flags.dicts, "dict", nil, "Dictionary file(s) (required)")
	cmd.MarkFlagRequired("dict")

	return cmd
}

func runEncode(flags *encodeFlags, command string, kvArgs []string) error {
	d, err := loadDict(flags.dicts)
	if err != nil {
		return err
	}

	values := make(map[string]any, len(kvArgs))
	for _, kv := range kvArgs {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("argument %q is not name=value", kv)
		}
		values[name] = parseArgValue(raw)
	}

	enc := codec.NewEncoder(d)
	frame, err := enc.EncodeName(command, values)
	if err != nil {
		return uerr.WrapEncodeError(err, command)
	}

	logging.HexDump("encoded frame", frame)
	fmt.Fprintln(os.Stdout, formatHex(frame))
	return nil
}

// parseArgValue interprets a command-line value: integer, float, or
// symbolic string in that order.
func parseArgValue(raw string) any {
	if n, err := strconv.ParseInt(raw, 0, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func formatHex(b []byte) string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", c)
	}
	return sb.String()
}
