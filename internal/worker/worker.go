package worker

import (
	"context"
	"log"

	"prolist/internal/broker"
	"prolist/internal/service"
)

// NotificationWorker consumes domain events from the bus and hands them to
// the dispatcher. It is the only consumer of engine events; the engines
// never wait on it.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, dispatcher *service.Dispatcher) *NotificationWorker {
	return &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(dispatcher),
	}
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}
