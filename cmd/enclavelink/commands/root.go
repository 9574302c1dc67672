package commands

import (
	"os"

	"github.com/spf13/cobra"

	"enclavelink/internal/app"
	"enclavelink/internal/domain"
	"enclavelink/internal/logging"
)

var (
	home       string
	configPath string
	urlFlag    string
	wire       *app.Wire

	// dialer replaces the WebSocket transport in tests.
	dialer domain.Dialer
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	home, configPath, urlFlag = "", "", ""

	root := &cobra.Command{
		Use:           "enclavelink",
		Short:         "End-to-end encrypted client for enclave-hosted message servers",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.ConfigureRuntime()
			if home == "" {
				home = app.DefaultHome()
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			cfg, err := app.LoadConfig(home, configPath)
			if err != nil {
				return err
			}
			w, err := app.NewWire(cfg, dialer)
			if err != nil {
				return err
			}
			wire = w
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if wire == nil {
				return nil
			}
			return wire.Close()
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.enclavelink)")
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <home>/config.toml)")
	root.PersistentFlags().StringVar(&urlFlag, "url", "", "server address, e.g. wss://host/ws")

	root.AddCommand(urlCmd(), connectCmd(), sendCmd(), listenCmd())
	return root
}

func address() domain.Address { return domain.Address(urlFlag) }
