package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelcast/internal/api"
	"reelcast/internal/daemon"
	"reelcast/internal/reconcile"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "reconcile [stage]",
		Short: "Run one failsafe reconciliation pass (all stages by default)",
		Long: "Polls providers for records the webhooks have not advanced, fails records stuck past " +
			"their threshold, and claims queued records. Stages: " + stageNames() + ".",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var stage reconcile.Stage
			if len(args) == 1 {
				parsed, ok := reconcile.ParseStage(args[0])
				if !ok {
					return fmt.Errorf("unknown stage %q (valid: %s)", args[0], stageNames())
				}
				stage = parsed
			}
			return ctx.withComponents(cmd, func(runCtx context.Context, c *daemon.Components) error {
				var (
					reports []reconcile.Report
					err     error
				)
				if stage != "" {
					var report reconcile.Report
					report, err = c.Reconciler.RunStage(runCtx, stage)
					reports = []reconcile.Report{report}
				} else {
					reports, err = c.Reconciler.RunAll(runCtx)
				}
				if jsonOutput {
					resp := api.ReconcileResponse{Reports: api.FromReconcileReports(reports)}
					if err != nil {
						resp.Error = err.Error()
					}
					if encErr := writeJSON(cmd, resp); encErr != nil {
						return encErr
					}
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Stage", "Total", "Advanced", "Failed", "Still", "Skipped", "Errors", "Duration"},
					reportRows(reports),
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
				))
				return err
			})
		},
	}
	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func reportRows(reports []reconcile.Report) [][]string {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []string{
			string(r.Stage),
			strconv.Itoa(r.Total),
			strconv.Itoa(r.Advanced),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.StillProcessing),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Errors),
			r.Duration.Round(time.Millisecond).String(),
		})
	}
	return rows
}

func stageNames() string {
	stages := reconcile.Stages()
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
