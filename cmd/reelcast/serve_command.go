package main

import (
	"github.com/spf13/cobra"

	"reelcast/internal/daemonrun"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		logLevel    string
		development bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon (HTTP API, webhooks, workers, failsafe loop) in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&development, "dev", false, "Include source locations in log output")
	return cmd
}
