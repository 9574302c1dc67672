package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"enclavelink/internal/session"
)

func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect, run the key exchange and print the session fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			tok := wire.Session.OnStateChange(func(s session.State) {
				fmt.Fprintf(out, "state: %s\n", s)
			})
			defer tok.Cancel()

			addr, err := wire.Connection.Connect(cmd.Context(), address())
			if err != nil {
				return err
			}
			defer wire.Connection.Close()

			fmt.Fprintf(out, "connected to %s\n", addr)
			fmt.Fprintf(out, "Fingerprint: %s\n", wire.Connection.Fingerprint())
			if att := wire.Session.Attestation(); len(att) > 0 {
				fmt.Fprintf(out, "Attestation (unverified): %s\n", att)
			}
			return nil
		},
	}
}
