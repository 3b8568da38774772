package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"reelcast/internal/api"
	"reelcast/internal/daemon"
	"reelcast/internal/feedhealth"
)

func newFeedsCommand(ctx *commandContext) *cobra.Command {
	var (
		refresh    bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Check reachability of the configured content feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, c *daemon.Components) error {
				out := cmd.OutOrStdout()
				if len(c.Config.Feeds) == 0 {
					fmt.Fprintln(out, "No feeds configured")
					return nil
				}
				var (
					report feedhealth.Report
					err    error
				)
				if refresh {
					report, err = c.Feeds.Refresh(runCtx)
				} else {
					report, err = c.Feeds.Check(runCtx)
				}
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.FromFeedReport(report))
				}
				colorize := shouldColorize(out)
				for _, f := range report.Feeds {
					kind, detail := statusOK, "HTTP "+strconv.Itoa(f.StatusCode)
					if !f.Healthy {
						kind = statusError
						if f.Error != "" {
							detail = f.Error
						}
					}
					fmt.Fprintln(out, renderStatusLine(f.Name, kind, detail, colorize))
				}
				source := "fresh"
				if report.Cached {
					source = "cached"
				}
				fmt.Fprintf(out, "%d of %d feeds healthy (%s, checked %s)\n",
					report.HealthyCount(), len(report.Feeds), source, report.CheckedAt.Local().Format("2006-01-02 15:04:05"))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Ignore the cached snapshot and probe every feed")
	addJSONFlag(cmd, &jsonOutput)
	return cmd
}
