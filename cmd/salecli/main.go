package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ligun0805/tier-sale/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Unexpected panic", "panic", fmt.Sprint(r))
			stop()
			die(fmt.Sprint(r))
		}
	}()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		die(err.Error())
	}
	_ = logger.Close()
}
