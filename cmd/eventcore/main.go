// Command eventcore registers participants, checks them in and issues
// certificates against a local or remote authority.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vpaa/eventcore/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
