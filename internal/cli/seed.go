package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vpaa/eventcore/internal/catalog"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <catalog>",
		Short: "Load accounts, events and rosters from a CUE catalog",
		Long: `Validate a CUE catalog (a file or a directory of .cue files) and
write its accounts, events and rosters to the authority.

Seeding is repeatable: existing accounts, events and registrations are kept.

Example:
  eventcore seed ./catalog/campus.cue
  eventcore seed ./catalog --api http://localhost:8080`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runSeed(opts *RootOptions, path string, cmd *cobra.Command) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("catalog not found: %s", path))
	}
	f := opts.formatter(cmd)

	cat, err := catalog.Load(path)
	if err != nil {
		return f.Fail("invalid catalog", err)
	}

	authority, release, err := opts.openAuthority(cmd)
	if err != nil {
		return err
	}
	defer release()

	report, err := catalog.Seed(commandContext(cmd), authority, cat, opts.Logger)
	if err != nil {
		return f.Fail("seed failed", err)
	}
	return f.Render(report, func(w io.Writer) {
		fmt.Fprintf(w, "Seeded %d account(s), %d event(s): %d registration(s) added, %d already present\n",
			report.Accounts, report.Events, report.Added, report.Existing)
	})
}
