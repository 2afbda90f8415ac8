package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/groundside/ctdict/internal/dict"
)

var (
	infoTitleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	infoHeaderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	infoMetaStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	infoSectionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
)

type infoFlags struct {
	packet  string
	command string
}

func newInfoCmd() *cobra.Command {
	flags := &infoFlags{}

	cmd := &cobra.Command{
		Use:   "info <dictionary.yaml> [more.yaml...]",
		Short: "Show resolved packet and command layouts",
		Long: `Display the resolved dictionary: packets with their APIDs and field
layouts, commands with their opcodes and arguments, and the byte/bit
position every field occupies.`,
		Example: `  ctdict info dict/tlm.yaml
  ctdict info dict/tlm.yaml --packet eps_status
  ctdict info dict/cmd.yaml --command set_mode`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.packet, "packet", "", "Show only this packet")
	cmd.Flags().StringVar(&flags.command, "command", "", "Show only this command")

	return cmd
}

func runInfo(paths []string, flags *infoFlags) error {
	d, err := loadDict(paths)
	if err != nil {
		return err
	}

	if flags.packet != "" {
		pkt, ok := d.PacketByName(flags.packet)
		if !ok {
			return fmt.Errorf("no packet named %q", flags.packet)
		}
		printPacket(pkt)
		return nil
	}
	if flags.command != "" {
		c, ok := d.CommandByName(flags.command)
		if !ok {
			return fmt.Errorf("no command named %q", flags.command)
		}
		printCommand(c)
		return nil
	}

	fmt.Fprintln(os.Stdout, infoTitleStyle.Render("Dictionary"))
	fmt.Fprintf(os.Stdout, "  packets: %d  commands: %d  constants: %d  functions: %d\n\n",
		len(d.Packets), len(d.Commands), len(d.Constants), len(d.Functions))
	for _, pkt := range d.Packets {
		printPacket(pkt)
	}
	for _, c := range d.Commands {
		printCommand(c)
	}
	return nil
}

func printPacket(pkt *dict.PacketDef) {
	fmt.Fprintln(os.Stdout, infoSectionStyle.Render(fmt.Sprintf("packet %s", pkt.Name)))
	fmt.Fprintf(os.Stdout, "  apid=%d size=%d bytes", pkt.APID, pkt.Size)
	if pkt.Desc != "" {
		fmt.Fprintf(os.Stdout, "  %s", infoMetaStyle.Render(pkt.Desc))
	}
	fmt.Fprintln(os.Stdout)
	printFieldTable(pkt.Fields)
	if len(pkt.Derivations) > 0 {
		fmt.Fprintf(os.Stdout, "  %s\n", infoHeaderStyle.Render("derivations"))
		for _, deriv := range pkt.Derivations {
			fmt.Fprintf(os.Stdout, "    %-20s = %s\n", deriv.Name, deriv.EquationSrc)
		}
	}
	if len(pkt.History) > 0 {
		fmt.Fprintf(os.Stdout, "  history: %s\n", strings.Join(pkt.History, ", "))
	}
	fmt.Fprintln(os.Stdout)
}

func printCommand(c *dict.CommandDef) {
	fmt.Fprintln(os.Stdout, infoSectionStyle.Render(fmt.Sprintf("command %s", c.Name)))
	fmt.Fprintf(os.Stdout, "  opcode=0x%04X size=%d bytes", c.Opcode, c.Size)
	if c.Desc != "" {
		fmt.Fprintf(os.Stdout, "  %s", infoMetaStyle.Render(c.Desc))
	}
	fmt.Fprintln(os.Stdout)
	printFieldTable(c.Arguments)
	fmt.Fprintln(os.Stdout)
}

func printFieldTable(fields []*dict.Field) {
	if len(fields) == 0 {
		return
	}
	fmt.Fprintf(os.Stdout, "  %s\n", infoHeaderStyle.Render(
		fmt.Sprintf("%-20s %-10s %-10s %-12s %s", "name", "bytes", "type", "mask", "notes")))
	for _, f := range fields {
		rng := fmt.Sprintf("%d", f.Span.Start)
		if f.Span.End != f.Span.Start {
			rng = fmt.Sprintf("%d..%d", f.Span.Start, f.Span.End)
		}
		mask := ""
		if f.Span.Mask != 0 {
			mask = fmt.Sprintf("0x%X", f.Span.Mask)
		}
		var notes []string
		if f.Enum != nil {
			notes = append(notes, "enum")
		}
		if f.Value != nil {
			notes = append(notes, fmt.Sprintf("value=%v", *f.Value))
		}
		if f.DNToEU != nil {
			notes = append(notes, "dn-to-eu")
		}
		if f.When != nil {
			notes = append(notes, "when="+f.WhenSrc)
		}
		if len(f.Aliases) > 0 {
			notes = append(notes, "aka "+strings.Join(f.Aliases, ","))
		}
		fmt.Fprintf(os.Stdout, "  %-20s %-10s %-10s %-12s %s\n",
			f.Name, rng, f.Type.Name, mask, strings.Join(notes, " "))
	}
}
