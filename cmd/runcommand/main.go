// Command runcommand runs a one-off command on ECS Fargate with the study01
// API image, waits for it to stop, prints its logs and exits with the
// container's exit code.
//
//	runcommand [flags] command...
//
// Flags stop at the first positional argument so the command may carry its
// own flags. Every flag can also be set through RUNCOMMAND_<FLAG> with
// dashes replaced by underscores.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}
