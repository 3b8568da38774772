package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelcast/internal/schedule"
)

func newScheduleCommand(ctx *commandContext) *cobra.Command {
	var (
		date      string
		weekly    bool
		platforms []string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Preview when each platform would receive a post",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			loc, err := cfg.ScheduleLocation()
			if err != nil {
				return err
			}
			selected := schedule.Platforms()
			if len(platforms) > 0 {
				parsed, bad, ok := schedule.ParsePlatforms(platforms)
				if !ok {
					return fmt.Errorf("unknown platform %q", bad)
				}
				selected = parsed
			}
			now := time.Now().In(loc)
			var postings []schedule.Posting
			if weekly {
				postings = schedule.WeeklyFanOut(selected, now)
			} else {
				day := now
				if strings.TrimSpace(date) != "" {
					day, err = time.ParseInLocation(time.DateOnly, strings.TrimSpace(date), loc)
					if err != nil {
						return fmt.Errorf("parse --date: %w", err)
					}
				}
				postings = schedule.SameDayFanOut(selected, day, loc)
			}
			printPostings(cmd.OutOrStdout(), postings, loc)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Day to plan (YYYY-MM-DD, defaults to today)")
	cmd.Flags().BoolVar(&weekly, "weekly", false, "Show the next recurring weekly slot instead of a same-day plan")
	cmd.Flags().StringSliceVarP(&platforms, "platform", "p", nil, "Limit to platforms (repeatable)")
	return cmd
}

func printPostings(out io.Writer, postings []schedule.Posting, loc *time.Location) {
	rows := make([][]string, 0, len(postings))
	for _, p := range postings {
		rows = append(rows, []string{
			string(p.Platform),
			p.At.In(loc).Format("Mon 2006-01-02 15:04 MST"),
			string(p.Slot.Source),
			strconv.FormatFloat(p.Slot.Confidence, 'f', 2, 64),
		})
	}
	fmt.Fprint(out, renderTable([]string{"Platform", "Post at", "Source", "Confidence"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
}
