package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reelcast/internal/api"
	"reelcast/internal/daemon"
	"reelcast/internal/store"
	"reelcast/internal/workflow"
)

func newWorkflowCommand(ctx *commandContext) *cobra.Command {
	workflowCmd := &cobra.Command{
		Use:     "workflow",
		Aliases: []string{"wf"},
		Short:   "Create and inspect workflow records",
	}
	workflowCmd.AddCommand(newWorkflowCreateCommand(ctx))
	workflowCmd.AddCommand(newWorkflowListCommand(ctx))
	workflowCmd.AddCommand(newWorkflowShowCommand(ctx))
	workflowCmd.AddCommand(newWorkflowKickoffCommand(ctx))
	return workflowCmd
}

func newWorkflowCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		kind       string
		script     string
		scriptFile string
		title      string
		caption    string
		noKickoff  bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Queue a new workflow and submit it for rendering",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedKind, ok := store.ParseKind(kind)
			if !ok {
				return fmt.Errorf("unknown kind %q (valid: %s)", kind, kindNames())
			}
			body, err := readScript(cmd.InOrStdin(), script, scriptFile)
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd, func(runCtx context.Context, c *daemon.Components) error {
				rec, err := c.Engine.Create(runCtx, &store.Record{
					Kind:        parsedKind,
					Script:      body,
					Title:       strings.TrimSpace(title),
					CaptionText: strings.TrimSpace(caption),
				})
				if err != nil {
					return err
				}
				if !noKickoff {
					result, err := c.Engine.Kickoff(runCtx, rec.Ref(), workflow.SourceCLI)
					if result.Record != nil {
						rec = result.Record
					}
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "warn: kickoff failed, the failsafe pass will retry: %v\n", err)
					}
				}
				wf := api.FromRecord(rec)
				if jsonOutput {
					return writeJSON(cmd, api.WorkflowResponse{Workflow: wf})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s workflow %s (%s)\n", wf.Kind, wf.ID, wf.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", string(store.KindProperty), "Workflow kind")
	cmd.Flags().StringVar(&script, "script", "", "Presenter script text")
	cmd.Flags().StringVar(&scriptFile, "script-file", "", "Read the presenter script from a file (- for stdin)")
	cmd.Flags().StringVar(&title, "title", "", "Video title")
	cmd.Flags().StringVar(&caption, "caption", "", "Post caption text")
	cmd.Flags().BoolVar(&noKickoff, "no-kickoff", false, "Leave the record queued for the next failsafe pass")
	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func newWorkflowListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses   []string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows across every kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd, func(runCtx context.Context, c *daemon.Components) error {
				resp, err := c.Workflows.List(runCtx, filter...)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Workflows) == 0 {
					fmt.Fprintln(out, "No workflows")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Kind", "Status", "Title", "Updated"},
					workflowRows(resp.Workflows),
					nil,
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func newWorkflowShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <kind> <id>",
		Short: "Show one workflow record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd, func(runCtx context.Context, c *daemon.Components) error {
				wf, err := c.Workflows.Describe(runCtx, ref)
				if err != nil {
					return err
				}
				if wf == nil {
					return fmt.Errorf("workflow %s not found", ref)
				}
				if jsonOutput {
					return writeJSON(cmd, api.WorkflowResponse{Workflow: *wf})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderFields(workflowFields(*wf)))
				return nil
			})
		},
	}
	addJSONFlag(cmd, &jsonOutput)
	return cmd
}

func newWorkflowKickoffCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "kickoff <kind> <id>",
		Short: "Submit a queued workflow for rendering now",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0], args[1])
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd, func(runCtx context.Context, c *daemon.Components) error {
				result, err := c.Engine.Kickoff(runCtx, ref, workflow.SourceCLI)
				if errors.Is(err, workflow.ErrIllegalTransition) {
					return fmt.Errorf("workflow %s is not queued", ref)
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !result.Applied || result.Record == nil {
					fmt.Fprintf(out, "Workflow %s was already claimed\n", ref)
					return nil
				}
				fmt.Fprintf(out, "Workflow %s is now %s\n", ref, result.Record.Status)
				return nil
			})
		},
	}
}

func readScript(stdin io.Reader, inline, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return "", fmt.Errorf("read script: %w", err)
		}
		inline = string(data)
	}
	inline = strings.TrimSpace(inline)
	if inline == "" {
		return "", errors.New("a script is required (--script or --script-file)")
	}
	return inline, nil
}

func parseRef(rawKind, id string) (store.Ref, error) {
	kind, ok := store.ParseKind(rawKind)
	if !ok {
		return store.Ref{}, fmt.Errorf("unknown kind %q (valid: %s)", rawKind, kindNames())
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return store.Ref{}, errors.New("workflow id is required")
	}
	return store.Ref{Kind: kind, ID: id}, nil
}

func parseStatuses(values []string) ([]store.Status, error) {
	out := make([]store.Status, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := store.ParseStatus(part)
			if !ok {
				return nil, fmt.Errorf("unknown status %q", part)
			}
			out = append(out, status)
		}
	}
	return out, nil
}

func kindNames() string {
	kinds := store.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func workflowRows(workflows []api.Workflow) [][]string {
	rows := make([][]string, 0, len(workflows))
	for _, wf := range workflows {
		rows = append(rows, []string{wf.ID, wf.Kind, wf.Status, orDash(wf.Title), orDash(wf.UpdatedAt)})
	}
	return rows
}

func workflowFields(wf api.Workflow) [][2]string {
	return [][2]string{
		{"ID", wf.ID},
		{"Kind", wf.Kind},
		{"Status", wf.Status},
		{"Title", wf.Title},
		{"Render ID", wf.RenderCorrelationID},
		{"Caption ID", wf.CaptionCorrelationID},
		{"Render URL", wf.RenderVideoURL},
		{"Relayed URL", wf.RelayedVideoURL},
		{"Final URL", wf.FinalVideoURL},
		{"Posts", strings.Join(wf.PostIDs, ", ")},
		{"Post errors", strings.Join(wf.DistributionErrors, "; ")},
		{"Scheduled", wf.ScheduledFor},
		{"Error", wf.ErrorMessage},
		{"Retries", strconv.Itoa(wf.RetryCount)},
		{"Created", wf.CreatedAt},
		{"Updated", wf.UpdatedAt},
		{"Completed", wf.CompletedAt},
	}
}
