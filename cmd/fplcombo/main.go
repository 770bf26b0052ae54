package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, rt := newRootCommand(os.Stdout)
	if err := execute(ctx, root, rt); err != nil {
		stop()
		os.Exit(1)
	}
}
