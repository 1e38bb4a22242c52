package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vpaa/eventcore/internal/model"
)

// AccountOptions holds flags for account create.
type AccountOptions struct {
	*RootOptions
	ID    string
	Name  string
	Email string
}

// NewAccountCommand creates the account command group.
func NewAccountCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}
	cmd.AddCommand(newAccountCreateCommand(rootOpts))
	cmd.AddCommand(newAccountShowCommand(rootOpts))
	return cmd
}

func newAccountCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccountOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account and its check-in token",
		Long: `Create an account. The authority assigns the account a personal
check-in token; "eventcore token <id>" prints it.

Example:
  eventcore account create --id 42 --name "Ana Lima" --email ana@example.com`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := opts.formatter(cmd)
			authority, release, err := opts.openAuthority(cmd)
			if err != nil {
				return err
			}
			defer release()

			acct, err := authority.CreateAccount(commandContext(cmd), model.Account{
				ID:    opts.ID,
				Name:  opts.Name,
				Email: opts.Email,
			})
			if err != nil {
				return f.Fail("create account failed", err)
			}
			return f.Render(acct, func(w io.Writer) { writeAccount(w, acct) })
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "account id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address (required)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newAccountShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <account-id>",
		Short:         "Show an account",
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

			acct, err := authority.GetAccount(commandContext(cmd), args[0])
			if err != nil {
				return f.Fail("get account failed", err)
			}
			return f.Render(acct, func(w io.Writer) { writeAccount(w, acct) })
		},
	}
}

// NewTokenCommand creates the token command.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token <account-id>",
		Short: "Print an account's check-in token",
		Long: `Print the token encoded in the account's QR code. Door devices pass
it to "eventcore scan".

Example:
  eventcore token 42`,
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

			acct, err := authority.GetAccount(commandContext(cmd), args[0])
			if err != nil {
				return f.Fail("get account failed", err)
			}
			return f.Render(map[string]string{"account": acct.ID, "token": acct.QRCode}, func(w io.Writer) {
				fmt.Fprintln(w, acct.QRCode)
			})
		},
	}
}

func writeAccount(w io.Writer, a model.Account) {
	fmt.Fprintf(w, "Account %s\n", a.ID)
	fmt.Fprintf(w, "  name:  %s\n", a.Name)
	fmt.Fprintf(w, "  email: %s\n", a.Email)
	fmt.Fprintf(w, "  token: %s\n", a.QRCode)
}
