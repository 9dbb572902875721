package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/valeria-popova/guildmgr/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(app.Run(ctx, os.Stdout, os.Stderr))
}
