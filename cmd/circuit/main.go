// Command circuit validates block catalogs, manages saved slots, runs
// machines and executes scenario files.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/circuit/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
