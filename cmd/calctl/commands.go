package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tazhate/calbridge/internal/domain"
)

func newGrantCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "grant",
		Short: "Request calendar access and create the app calendar if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := c.app.Calendars.EnsureAppCalendar(cmd.Context())
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "access granted, calendar %q created\n", c.cfg.Calendar.AppName)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "access granted, calendar %q exists\n", c.cfg.Calendar.AppName)
			}
			return nil
		},
	}
}

func newCalendarsCmd(c *cli) *cobra.Command {
	var skipApp bool

	cmd := &cobra.Command{
		Use:   "calendars",
		Short: "List selectable calendars and whether they are selected",
		RunE: func(cmd *cobra.Command, args []string) error {
			sels, err := c.app.Calendars.SelectableCalendars(cmd.Context(), skipApp)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SELECTED\tTITLE\tID")
			for _, s := range sels {
				mark := "[ ]"
				if s.IsSelected {
					mark = "[x]"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", mark, s.DisplayName, s.Identifier)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&skipApp, "skip-app", false, "Hide the app's own calendar")
	return cmd
}

func newEventsCmd(c *cli) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List upcoming events of the selected calendars",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				days = c.cfg.Calendar.ListWindowDays
			}
			views, err := c.app.Calendars.ListSelectedEvents(cmd.Context(), days)
			if err != nil {
				return err
			}
			if len(views) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no events")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "HANDLE\tSTART\tEND\tTITLE\tLOCATION\tREMINDER")
			for _, v := range views {
				reminder := "-"
				if v.HasReminder() {
					reminder = fmt.Sprintf("%dm", v.ReminderMinutesBefore)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					domain.Handle(v.EventID), v.StartTime, v.EndTime, v.Title, v.LocationName, reminder)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "Window in days (default LIST_WINDOW_DAYS)")
	return cmd
}

func newSelectCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "select <title|id>...",
		Short: "Add calendars to the stored selection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sels, err := c.resolve(cmd, args)
			if err != nil {
				return err
			}
			c.app.Selections.AddMany(cmd.Context(), sels)
			for _, s := range sels {
				fmt.Fprintf(cmd.OutOrStdout(), "selected %s\n", s.DisplayName)
			}
			return nil
		},
	}
}

func newUnselectCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "unselect <title|id>...",
		Short: "Remove calendars from the stored selection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stored := c.app.Selections.List(cmd.Context())
			for _, arg := range args {
				found := false
				for _, s := range stored {
					if s.Identifier == arg || strings.EqualFold(s.DisplayName, arg) {
						c.app.Selections.Remove(cmd.Context(), s.Identifier)
						fmt.Fprintf(cmd.OutOrStdout(), "unselected %s\n", s.DisplayName)
						found = true
					}
				}
				if !found {
					return fmt.Errorf("%q is not selected", arg)
				}
			}
			return nil
		},
	}
}

// resolve maps titles or identifiers to selectable calendars
func (c *cli) resolve(cmd *cobra.Command, args []string) ([]domain.CalendarSelection, error) {
	all, err := c.app.Calendars.SelectableCalendars(cmd.Context(), false)
	if err != nil {
		return nil, err
	}

	var out []domain.CalendarSelection
	for _, arg := range args {
		found := false
		for _, s := range all {
			if s.Identifier == arg || strings.EqualFold(s.DisplayName, arg) {
				out = append(out, s)
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("calendar %q not found", arg)
		}
	}
	return out, nil
}
