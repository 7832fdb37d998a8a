package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/DRSN-tech/product-matcher/pkg/logger"
)

func main() {
	log := logger.NewSlogLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd(log).ExecuteContext(ctx); err != nil {
		log.Errorf(err, "catalog command failed")
		stop()
		os.Exit(1)
	}
}
