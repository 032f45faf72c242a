// Command modelviewer runs the viewer token relay (serve) and a headless
// viewer session over a placement list (load).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "modelviewer:", err)
		stop()
		os.Exit(1)
	}
}
