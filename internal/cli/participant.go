package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vpaa/eventcore/internal/model"
)

// JoinOptions holds flags for the join command.
type JoinOptions struct {
	*RootOptions
	User  string
	Name  string
	Email string
}

// NewJoinCommand creates the join command.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JoinOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "join <event-id>",
		Short: "Register a participant for an event",
		Long: `Register an account (--user) or a guest (--email, --name) for an event.

Joining twice with the same identity returns the existing registration.
Emails are compared case-insensitively.

Examples:
  eventcore join E1 --user 42
  eventcore join E1 --email guest@example.com --name "Cy Diaz"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "account id")
	cmd.Flags().StringVar(&opts.Name, "name", "", "guest name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "guest email")
	cmd.MarkFlagsOneRequired("user", "email")
	cmd.MarkFlagsMutuallyExclusive("user", "email")

	return cmd
}

func runJoin(opts *JoinOptions, eventID string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	eng, release, err := opts.openEngine(cmd)
	if err != nil {
		return err
	}
	defer release()

	req := model.JoinRequest{Name: opts.Name, Email: opts.Email}
	if opts.User != "" {
		req.Identity = model.ByAccount{Ref: opts.User}
	}
	res, err := eng.Join(commandContext(cmd), eventID, req)
	warnStale(opts.Logger, eng)
	if err != nil {
		return f.Fail("join failed", err)
	}
	return f.Render(res, func(w io.Writer) {
		verb := "Registered"
		if res.Duplicate {
			verb = "Already registered"
		}
		fmt.Fprintf(w, "%s: ", verb)
		writeParticipant(w, res.Participant)
	})
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <event-id> <token>",
		Short: "Check in the holder of a scanned token",
		Long: `Resolve a scanned token (USER-<id>-<code>) to its holder's registration
for the event and check them in. Scanning an already checked-in holder
succeeds and says so.

Example:
  eventcore scan E1 USER-42-AB12CD34`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			eng, release, err := rootOpts.openEngine(cmd)
			if err != nil {
				return err
			}
			defer release()

			res, err := eng.CheckIn(commandContext(cmd), args[1], args[0])
			warnStale(rootOpts.Logger, eng)
			if err != nil {
				return f.Fail("scan failed", err)
			}
			return f.Render(res, func(w io.Writer) { writeCheckIn(w, res) })
		},
	}
}

// NewAttendCommand creates the attend command.
func NewAttendCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "attend <participant-id>",
		Short:         "Mark a participant as attended",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			eng, release, err := rootOpts.openEngine(cmd)
			if err != nil {
				return err
			}
			defer release()

			res, err := eng.MarkAttendance(commandContext(cmd), args[0])
			warnStale(rootOpts.Logger, eng)
			if err != nil {
				return f.Fail("mark attendance failed", err)
			}
			return f.Render(res, func(w io.Writer) { writeCheckIn(w, res) })
		},
	}
}

// EvaluateOptions holds flags for the evaluate command.
type EvaluateOptions struct {
	*RootOptions
	Data string
}

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EvaluateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "evaluate <participant-id>",
		Short: "Submit a participant's evaluation",
		Long: `Submit the evaluation form for a checked-in participant. The payload
is a JSON object; a numeric "rating" feeds the event report's average.

Example:
  eventcore evaluate id-0001 --data '{"rating": 5, "comment": "great"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var data model.EvaluationData
			if err := json.Unmarshal([]byte(opts.Data), &data); err != nil || data == nil {
				return NewExitError(ExitCommandError, "--data must be a JSON object")
			}

			f := opts.formatter(cmd)
			eng, release, err := opts.openEngine(cmd)
			if err != nil {
				return err
			}
			defer release()

			p, err := eng.SubmitEvaluation(commandContext(cmd), args[0], data)
			warnStale(opts.Logger, eng)
			if err != nil {
				return f.Fail("submit evaluation failed", err)
			}
			return f.Render(p, func(w io.Writer) {
				fmt.Fprint(w, "Evaluated: ")
				writeParticipant(w, p)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Data, "data", "", "evaluation payload as a JSON object (required)")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

// NewCheckoutCommand creates the checkout command.
func NewCheckoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "checkout <participant-id>",
		Short:         "Record a participant leaving the event",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			eng, release, err := rootOpts.openEngine(cmd)
			if err != nil {
				return err
			}
			defer release()

			p, err := eng.CheckOut(commandContext(cmd), args[0])
			warnStale(rootOpts.Logger, eng)
			if err != nil {
				return f.Fail("check out failed", err)
			}
			return f.Render(p, func(w io.Writer) {
				fmt.Fprint(w, "Checked out: ")
				writeParticipant(w, p)
			})
		},
	}
}

func writeParticipant(w io.Writer, p model.Participant) {
	fmt.Fprintf(w, "%s %s <%s> %s", p.ID, p.Name, p.Email, p.Status)
	if p.HasEvaluated {
		fmt.Fprint(w, ", evaluated")
	}
	if p.CheckOutTime != nil {
		fmt.Fprint(w, ", checked out")
	}
	if p.Certificate != nil {
		fmt.Fprintf(w, ", certificate %s", p.Certificate.CertificateNumber)
	}
	fmt.Fprintln(w)
}

func writeCheckIn(w io.Writer, res model.CheckInResult) {
	if res.AlreadyCheckedIn {
		fmt.Fprint(w, "Already checked in: ")
	} else {
		fmt.Fprint(w, "Checked in: ")
	}
	writeParticipant(w, res.Participant)
}
