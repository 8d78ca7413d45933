package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/complyra/complyra-backend/internal/app"
	"github.com/complyra/complyra-backend/internal/platform/tracing"
)

func main() {
	shutdownTracing, err := tracing.Init("complyra-backend")
	if err != nil {
		fmt.Printf("Failed to init tracing: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Log.Info("Server listening", "addr", a.Cfg.ServerAddr)
	if err := a.Run(a.Cfg.ServerAddr); err != nil {
		a.Log.Error("Server failed", "error", err)
	}
}
