// Command balance reconciles bank statements against a book ledger.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Veraticus/the-spice-must-balance/internal/cli"
)

var version = "dev"

func main() {
	interrupts := cli.NewInterruptHandler(os.Stderr)
	ctx := interrupts.HandleInterrupts(context.Background(), "Nothing was saved for the interrupted run.")

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(err.Error()))
		os.Exit(1)
	}
}
