package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"enclavelink/internal/protocol/envelope"
	"enclavelink/internal/session"
)

// listen: stay connected, reconnecting as needed, and print inbound messages
// until interrupted.
func listenCmd() *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print inbound messages until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if _, err := wire.Connection.Connect(ctx, address()); err != nil {
				return err
			}
			defer wire.Connection.Close()
			fmt.Fprintf(cmd.ErrOrStderr(), "listening, fingerprint %s\n", wire.Connection.Fingerprint())

			wire.Connection.Listen(ctx, typ,
				func(msg envelope.Message) { _ = printMessage(cmd, msg) },
				func(s session.State) { fmt.Fprintf(cmd.ErrOrStderr(), "state: %s\n", s) },
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "only print messages of this type")
	return cmd
}
