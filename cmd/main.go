package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hmcts/document-viewer/internal"
	"github.com/hmcts/document-viewer/internal/config"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger().Level(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Fail to load the configuration")
	}
	logger = logger.Level(cfg.Level())
	cfg.Print(logger)

	waitHandlerAsyncError, waitHandler := wait(logger)
	client := internal.Client{
		Logger:            logger,
		AsyncErrorHandler: waitHandlerAsyncError,
		Config:            cfg,
	}
	if err := client.Init(); err != nil {
		logger.Fatal().Err(err).Msg("Fail to initialize the client")
	}
	client.Start()

	exitStatus := waitHandler()
	ctx, ctxCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := client.Stop(ctx); err != nil {
		ctxCancel()
		logger.Fatal().Err(err).Msg("Fail to stop the client")
	}
	ctxCancel()
	os.Exit(exitStatus)
}

func wait(logger zerolog.Logger) (func(error), func() int) {
	signalChan := make(chan os.Signal, 2)
	var exitStatus int32
	asyncError := func(err error) {
		logger.Error().Err(err).Msg("Async error happened")
		signalChan <- os.Interrupt
		atomic.AddInt32(&exitStatus, 1)
	}
	handler := func() int {
		signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
		<-signalChan
		return int(atomic.LoadInt32(&exitStatus))
	}
	return asyncError, handler
}
