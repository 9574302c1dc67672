package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"enclavelink/internal/protocol/envelope"
)

// send <type> <json-payload>: connect, send one message and optionally wait
// for a reply of type --expect.
func sendCmd() *cobra.Command {
	var (
		expect string
		wait   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send <type> <json-payload>",
		Short: "Encrypt and send one message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := json.RawMessage(args[1])
			if !json.Valid(payload) {
				return fmt.Errorf("payload is not valid json")
			}
			env, err := envelope.New(args[0], payload)
			if err != nil {
				return err
			}

			if _, err := wire.Connection.Connect(cmd.Context(), address()); err != nil {
				return err
			}
			defer wire.Connection.Close()

			reply, err := wire.Connection.Request(cmd.Context(), env, expect, wait)
			if err != nil {
				return err
			}
			if expect == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "sent")
				return nil
			}
			return printMessage(cmd, reply)
		},
	}
	cmd.Flags().StringVar(&expect, "expect", "", "wait for and print the first reply of this type")
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to wait for the reply")
	return cmd
}

func printMessage(cmd *cobra.Command, msg envelope.Message) error {
	b, err := json.Marshal(msg.Envelope)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
