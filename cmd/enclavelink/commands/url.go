package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"enclavelink/internal/domain"
)

// url [set <address>]: show the address that would be used, or save a new one.
func urlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "url",
		Short: "Show the server address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := wire.Connection.ResolveAddress(address())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr)
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <address>",
		Short: "Save the server address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.Connection.SetAddress(domain.Address(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", args[0])
			return nil
		},
	})
	return cmd
}
