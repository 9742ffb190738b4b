package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hlab-io/openconsole/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "consoleapi",
	Short: "OpenConsole API server for the hosting operator console",
	Long: `OpenConsole API server backs the hosting operator console. It handles
identity-provider login, server-side sessions, token lifecycle and the
admin user-management surface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		if cfg.Debug {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
			zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		}
		return nil
	},
}

func init() {
	// Global flags document the environment variables; config.Load reads the
	// environment directly.
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: DATABASE_URL)")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: SERVER_ADDR)")
	rootCmd.PersistentFlags().String("server-url", "", "Server base URL for redirects (env: SERVER_URL)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: DEBUG)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
