package worker

import (
	"context"

	"dealer-service/internal/broker"
	"dealer-service/internal/service"
	"dealer-service/internal/util"

	"go.uber.org/zap"
)

// JournalWorker consumes lifecycle events into the transition journal
type JournalWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewJournalWorker creates a new journal worker
func NewJournalWorker(consumer *broker.Consumer, journal *service.JournalService) *JournalWorker {
	return &JournalWorker{
		consumer:     consumer,
		eventHandler: NewEventHandler(journal),
		logger:       util.ComponentLogger("worker.journal"),
	}
}

// NewEventHandler routes every lifecycle event type to the journal service
func NewEventHandler(journal *service.JournalService) *broker.EventHandler {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnTransition(journal.HandleTransition)
	eventHandler.OnVehicleAllocated(journal.HandleVehicleAllocated)
	eventHandler.OnPromotionChanged(journal.HandlePromotionChanged)
	return eventHandler
}

// Start starts the worker
func (w *JournalWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting journal worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *JournalWorker) Stop() error {
	w.logger.Info("Stopping journal worker")
	return w.consumer.Close()
}
