package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/groundside/ctdict/internal/dict"
	"github.com/groundside/ctdict/internal/logging"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dictionary.yaml> [more.yaml...]",
		Short: "Resolve a dictionary and report every definition error",
		Long: `Load one or more dictionary files, resolve includes, compute field
layouts, and check every equation reference. All definition errors are
reported together; a dictionary that fails validation must not be used.`,
		Example: `  ctdict validate dict/tlm.yaml
  ctdict validate dict/common.yaml dict/tlm.yaml dict/cmd.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(args)
		},
	}
}

func runValidate(paths []string) error {
	d, err := dict.LoadDictionary(paths...)
	if err != nil {
		var verrs dict.ValidationErrors
		if errors.As(err, &verrs) {
			fmt.Fprintf(os.Stdout, "INVALID: %d definition error(s)\n", len(verrs))
			for _, e := range verrs {
				fmt.Fprintf(os.Stdout, "  - %s\n", e.Error())
			}
			return fmt.Errorf("%d definition error(s)", len(verrs))
		}
		return err
	}

	logging.WithField("files", strings.Join(paths, ",")).Debug("dictionary resolved")
	fmt.Fprintf(os.Stdout, "OK: %d packet(s), %d command(s), %d constant(s), %d function(s)\n",
		len(d.Packets), len(d.Commands), len(d.Constants), len(d.Functions))
	return nil
}
