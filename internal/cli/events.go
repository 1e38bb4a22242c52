package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vpaa/eventcore/internal/model"
)

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "events",
		Short:         "List events with their participant counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			authority, release, err := rootOpts.openAuthority(cmd)
			if err != nil {
				return err
			}
			defer release()

			events, err := authority.ListEvents(commandContext(cmd))
			if err != nil {
				return f.Fail("list events failed", err)
			}
			return f.Render(events, func(w io.Writer) {
				if len(events) == 0 {
					fmt.Fprintln(w, "No events.")
					return
				}
				for _, e := range events {
					fmt.Fprintf(w, "%s %q %s %s (%d participants)%s\n",
						e.ID, e.Title, e.Date, e.Status, e.ParticipantsCount, requirementsText(e.Requirements))
				}
			})
		},
	}
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "report <event-id>",
		Short: "Summarize attendance, evaluations and certificates for an event",
		Long: `Print the event's figures: registrations by status, check-outs,
evaluations with their average rating, and how many participants are
still waiting for a certificate.

Example:
  eventcore report E1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			authority, release, err := rootOpts.openAuthority(cmd)
			if err != nil {
				return err
			}
			defer release()

			r, err := authority.EventReport(commandContext(cmd), args[0])
			if err != nil {
				return f.Fail("report failed", err)
			}
			return f.Render(r, func(w io.Writer) { writeReport(w, r) })
		},
	}
}

func requirementsText(r model.Requirements) string {
	var s string
	if r.Attendance {
		s += " attendance"
	}
	if r.Evaluation {
		s += " evaluation"
	}
	if r.Quiz {
		s += " quiz"
	}
	if s == "" {
		return ""
	}
	return " requires:" + s
}

func writeReport(w io.Writer, r model.EventReport) {
	fmt.Fprintf(w, "%s (%s)\n", r.Title, r.EventID)
	fmt.Fprintf(w, "  participants: %d\n", r.Total)
	fmt.Fprintf(w, "  registered:   %d\n", r.Registered)
	fmt.Fprintf(w, "  attended:     %d\n", r.Attended)
	fmt.Fprintf(w, "  completed:    %d\n", r.Completed)
	fmt.Fprintf(w, "  checked out:  %d\n", r.CheckedOut)
	fmt.Fprintf(w, "  evaluated:    %d\n", r.Evaluated)
	fmt.Fprintf(w, "  pending:      %d\n", r.Pending)
	if r.AverageRating != nil {
		fmt.Fprintf(w, "  avg rating:   %.2f\n", *r.AverageRating)
	}
}
