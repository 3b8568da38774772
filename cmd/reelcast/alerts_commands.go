package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"reelcast/internal/api"
	"reelcast/internal/daemon"
	"reelcast/internal/store"
)

func newAlertsCommand(ctx *commandContext) *cobra.Command {
	alertsCmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect and resolve operational alerts",
	}
	alertsCmd.AddCommand(newAlertsListCommand(ctx))
	alertsCmd.AddCommand(newAlertsResolveCommand(ctx))
	alertsCmd.AddCommand(newAlertsStatsCommand(ctx))
	return alertsCmd
}

func newAlertsListCommand(ctx *commandContext) *cobra.Command {
	var (
		page       int
		size       int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List unresolved alerts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, c *daemon.Components) error {
				result, err := c.Alerts.ListUnresolved(runCtx, page, size)
				if err != nil {
					return err
				}
				resp := api.FromAlertPage(result)
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Alerts) == 0 {
					fmt.Fprintln(out, "No unresolved alerts")
					return nil
				}
				rows := make([][]string, 0, len(resp.Alerts))
				for _, a := range resp.Alerts {
					rows = append(rows, []string{a.ID, a.Severity, a.Type, orDash(a.WorkflowID), a.Message, a.CreatedAt})
				}
				fmt.Fprint(out, renderTable([]string{"ID", "Severity", "Type", "Workflow", "Message", "Created"}, rows, nil))
				fmt.Fprintf(out, "Page %d, %d of %d unresolved\n", resp.Page, len(resp.Alerts), resp.Total)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&size, "size", 50, "Page size")
	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func newAlertsResolveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id>...",
		Short: "Mark alerts as resolved",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, c *daemon.Components) error {
				out := cmd.OutOrStdout()
				var missing int
				for _, id := range args {
					err := c.Alerts.Resolve(runCtx, id)
					switch {
					case errors.Is(err, store.ErrNotFound):
						missing++
						fmt.Fprintf(out, "Alert %s not found\n", id)
					case err != nil:
						return err
					default:
						fmt.Fprintf(out, "Resolved alert %s\n", id)
					}
				}
				if missing > 0 {
					return fmt.Errorf("%d alert(s) not found", missing)
				}
				return nil
			})
		},
	}
}

func newAlertsStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize alerts over the rolling window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, c *daemon.Components) error {
				stats, err := c.Alerts.Stats(runCtx, time.Now())
				if err != nil {
					return err
				}
				resp := api.FromAlertStats(stats)
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Since %s: %d total, %d unresolved, %d in the last 24h\n",
					resp.Since, resp.Total, resp.Unresolved, resp.Last24h)
				if len(resp.BySeverity) > 0 {
					fmt.Fprint(out, renderTable([]string{"Severity", "Count"}, countRows(resp.BySeverity), []columnAlignment{alignLeft, alignRight}))
				}
				if len(resp.ByType) > 0 {
					fmt.Fprint(out, renderTable([]string{"Type", "Count"}, countRows(resp.ByType), []columnAlignment{alignLeft, alignRight}))
				}
				return nil
			})
		},
	}
	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func countRows(counts map[string]int) [][]string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, strconv.Itoa(counts[k])})
	}
	return rows
}
