// Command singularity serves and edits graphics rundowns and drives a
// remote renderer's animation states.
package main

import (
	"fmt"
	"os"

	"github.com/rbruinekool/singularity/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
