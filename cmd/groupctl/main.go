// Package main implements groupctl, the command line front end that applies
// group changes across every configured host with all-or-nothing semantics.
//
// Usage:
//
//	groupctl create <group>     create on every host, rolling back on failure
//	groupctl delete <group>     delete from every host, rolling back on failure
//	groupctl status <group>     print "host: Exists" or "host: Does not exist"
//	groupctl rollback           finish a rollback left behind by a previous run
//	groupctl health             probe /health on every host
//
// Hosts come from --hosts, or from --hosts-file (one per line). Every flag
// has a config file key and a GROUPSYNC_* environment variable, for example
// GROUPSYNC_EXECUTOR_MAX_RETRIES for --max-retries.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		os.Exit(1)
	}
}

// execute runs the CLI with args and reports errors on errOut.
func execute(ctx context.Context, args []string, out, errOut io.Writer) error {
	root := newRootCmd(out, errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
	}
	return err
}
