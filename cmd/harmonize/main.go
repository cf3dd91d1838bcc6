// Command harmonize loads raw metadata fields into the warehouse.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"harmonycore/internal/cli"
)

var exitFunc = os.Exit

func main() {
	exitFunc(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "harmonize:", err)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}
