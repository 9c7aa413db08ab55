// The main package for the hkcovid executable.
package main

import (
	"context"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/JakeFAU/hkcovid-dashboard/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.Execute(ctx)
}
