// Command xenodash is a terminal dashboard for the Xeno Shopify analytics
// backend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/xenodash/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
