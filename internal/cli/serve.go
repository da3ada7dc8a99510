package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tutu-network/wakeboost/internal/daemon"
	"github.com/tutu-network/wakeboost/internal/logging"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost     string
	servePort     int
	serveLogLevel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wake boost daemon",
	Long: `Install the wake boost, watch the display backlight and serve the
control API (default 127.0.0.1:9743). Stops on SIGINT/SIGTERM, restoring
the frequency floor if a boost is active.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}

	log, closeLog, err := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	d, err := daemon.NewWithConfig(cfg, daemon.Options{Logger: log})
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Serve(context.Background())
}
