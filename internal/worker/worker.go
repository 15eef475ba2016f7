package worker

import (
	"context"

	"github.com/cradoe/payrail/internal/notification"
	"github.com/cradoe/payrail/internal/processor"
	"github.com/cradoe/payrail/internal/repository"
	"github.com/cradoe/payrail/internal/stream"
	"github.com/cradoe/payrail/internal/withdrawal"
)

type Worker struct {
	KafkaStream  *stream.KafkaStream
	DB           repository.Database
	Ctx          context.Context
	Processor    *processor.Client
	Notifier     *notification.Service
	Orchestrator *withdrawal.Orchestrator
}

const (
	// withdrawalReceiptGroupID is used for workers that send receipts once a
	// withdrawal has been confirmed sent by the payout rail
	withdrawalReceiptGroupID = "withdrawal-receipt-group"

	// withdrawalFailureGroupID is used for workers that alert the user when a
	// withdrawal ends in failure
	withdrawalFailureGroupID = "withdrawal-failure-group"
)

// Our workers typically need access to the database and the kafka event stream
// worker-specific dependency can be passed as argument to the worker
func New(wk *Worker) *Worker {
	return &Worker{
		KafkaStream:  wk.KafkaStream,
		DB:           wk.DB,
		Ctx:          wk.Ctx,
		Processor:    wk.Processor,
		Notifier:     wk.Notifier,
		Orchestrator: wk.Orchestrator,
	}
}
