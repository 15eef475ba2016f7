package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/cradoe/payrail/internal/app"
	"github.com/cradoe/payrail/internal/version"
	"github.com/cradoe/payrail/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	err := run(logger)
	if err != nil {
		trace := string(debug.Stack())
		logger.Error(err.Error(), "trace", trace)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	showVersion := flag.Bool("version", false, "display version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("version: %s\n", version.Get())
		return nil
	}

	application, err := app.NewApplication(logger)
	if err != nil {
		return err
	}
	defer application.DB.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// expired OTP challenges are swept once a second
	go application.Otp.Run(ctx)

	workers := worker.New(&worker.Worker{
		KafkaStream:  application.Kafka,
		DB:           application.DB,
		Ctx:          ctx,
		Processor:    application.Processor,
		Notifier:     application.Notifier,
		Orchestrator: application.Orchestrator,
	})

	go workers.SettlementWorker()
	go workers.ReceiptWorker()
	go workers.FailureAlertWorker()

	return application.ServeHTTP()
}
