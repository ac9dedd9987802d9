package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"story-bot/api/internal/app"
	"story-bot/api/internal/httpserver"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "story-api: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	addr := ":" + a.Cfg.Port
	if err := httpserver.Run(ctx, addr, a.Handle.Routes(), a.Log); err != nil {
		a.Log.Error("http server stopped", "error", err)
		a.Close()
		os.Exit(1)
	}
}
