package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"reelcast/internal/api"
	"reelcast/internal/daemon"
)

func newDeadLettersCommand(ctx *commandContext) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:     "deadletters",
		Aliases: []string{"dlq"},
		Short:   "List background tasks that exhausted their retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, c *daemon.Components) error {
				letters, err := c.Store.ListDeadLetters(runCtx, limit)
				if err != nil {
					return err
				}
				resp := api.FromDeadLetters(letters)
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp) == 0 {
					fmt.Fprintln(out, "No dead letters")
					return nil
				}
				rows := make([][]string, 0, len(resp))
				for _, dl := range resp {
					rows = append(rows, []string{dl.Task, orDash(dl.Kind), orDash(dl.WorkflowID), strconv.Itoa(dl.Attempts), dl.ErrorMessage, dl.CreatedAt})
				}
				fmt.Fprint(out, renderTable([]string{"Task", "Kind", "Workflow", "Attempts", "Error", "Created"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")
	addJSONFlag(cmd, &jsonOutput)
	return cmd
}
