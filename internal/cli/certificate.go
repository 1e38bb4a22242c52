package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vpaa/eventcore/internal/model"
)

// NewIssueCommand creates the issue command.
func NewIssueCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "issue <participant-id>",
		Short: "Issue a participant's certificate",
		Long: `Issue the certificate for a participant who meets the event's
requirements. Issuing again returns the existing certificate.

Example:
  eventcore issue id-0001`,
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

			cert, err := eng.IssueCertificate(commandContext(cmd), args[0])
			warnStale(rootOpts.Logger, eng)
			if err != nil {
				return f.Fail("issue certificate failed", err)
			}
			return f.Render(cert, func(w io.Writer) { writeCertificate(w, cert) })
		},
	}
}

// NewIssuePendingCommand creates the issue-pending command.
func NewIssuePendingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "issue-pending <event-id>",
		Short: "Issue certificates to everyone pending for an event",
		Long: `Issue a certificate to every participant on the event's pending list.
A failure for one participant does not stop the others; the command exits
1 when any issuance failed.

Example:
  eventcore issue-pending E1`,
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

			res, err := eng.IssuePending(commandContext(cmd), args[0])
			warnStale(rootOpts.Logger, eng)
			if err != nil && len(res.Issued) == 0 && len(res.Failed) == 0 {
				return f.Fail("issue pending failed", err)
			}
			if renderErr := f.Render(res, func(w io.Writer) {
				for _, r := range res.Issued {
					writeCertificate(w, r.Certificate)
				}
				ids := make([]string, 0, len(res.Failed))
				for id := range res.Failed {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				for _, id := range ids {
					fmt.Fprintf(w, "Failed %s: %s\n", id, res.Failed[id])
				}
				fmt.Fprintf(w, "Issued %d, failed %d\n", len(res.Issued), len(res.Failed))
			}); renderErr != nil {
				return renderErr
			}
			if len(res.Failed) > 0 {
				return WrapExitError(ExitFailure, fmt.Sprintf("%d issuance(s) failed", len(res.Failed)), err)
			}
			return nil
		},
	}
}

// PendingEntry is one row of the pending list.
type PendingEntry struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Email  string       `json:"email"`
	Status model.Status `json:"status"`
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "pending <event-id>",
		Short:         "List participants eligible for a certificate but not yet issued one",
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

			ev, ok := eng.Snapshot().Event(args[0])
			if !ok {
				return f.Fail("pending failed", model.NewError(model.ErrCodeNotFound, fmt.Sprintf("event %s not found", args[0])))
			}
			entries := []PendingEntry{}
			for _, p := range ev.Participants {
				if eng.IsPending(p, ev) {
					entries = append(entries, PendingEntry{ID: p.ID, Name: p.Name, Email: p.Email, Status: p.Status})
				}
			}
			return f.Render(entries, func(w io.Writer) {
				for _, e := range entries {
					fmt.Fprintf(w, "%s %s <%s> %s\n", e.ID, e.Name, e.Email, e.Status)
				}
				fmt.Fprintf(w, "%d pending for %s\n", len(entries), ev.Title)
			})
		},
	}
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <verification-code>",
		Short: "Verify a certificate by its verification code",
		Long: `Look up a certificate by the verification code printed on it and show
who it was issued to, for which event.

Example:
  eventcore verify VERIFY-AB12CD34`,
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

			v, err := authority.VerifyCertificate(commandContext(cmd), args[0])
			if err != nil {
				return f.Fail("certificate is not valid", err)
			}
			return f.Render(v, func(w io.Writer) {
				fmt.Fprintf(w, "Valid certificate %s\n", v.Certificate.CertificateNumber)
				fmt.Fprintf(w, "  issued to: %s <%s>\n", v.Participant.Name, v.Participant.Email)
				fmt.Fprintf(w, "  event:     %s %s\n", v.EventTitle, v.EventDate)
				fmt.Fprintf(w, "  issued at: %s\n", v.Certificate.IssuedAt.Format("2006-01-02 15:04"))
			})
		},
	}
}

func writeCertificate(w io.Writer, c model.Certificate) {
	fmt.Fprintf(w, "Certificate %s for %s (verification code %s)\n",
		c.CertificateNumber, c.ParticipantID, c.VerificationCode)
}
