package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"prolist/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventSink receives decoded domain events from the bus.
type EventSink interface {
	Handle(ctx context.Context, event models.DomainEvent) error
}

// EventHandler decodes bus messages into concrete events and forwards them
// to a sink (the notification dispatcher in production).
type EventHandler struct {
	sink EventSink
}

// NewEventHandler creates a new event handler
func NewEventHandler(sink EventSink) *EventHandler {
	return &EventHandler{sink: sink}
}

// HandleMessage decodes one message and routes it to the sink.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	event, err := decodeEvent(baseEvent.EventType, msg.Value)
	if err != nil {
		return err
	}
	if event == nil {
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
		return nil
	}

	return eh.sink.Handle(ctx, event)
}

// decodeEvent unmarshals the payload into the concrete event type; returns
// nil for unknown types.
func decodeEvent(eventType string, payload []byte) (models.DomainEvent, error) {
	var event models.DomainEvent

	switch eventType {
	case models.EventTypeBidAccepted:
		event = &models.BidAcceptedEvent{}
	case models.EventTypeBidOutbid:
		event = &models.BidOutbidEvent{}
	case models.EventTypeOrderEscrowed:
		event = &models.OrderEscrowedEvent{}
	case models.EventTypeOrderDelivered:
		event = &models.OrderDeliveredEvent{}
	case models.EventTypeOrderReleased:
		event = &models.OrderReleasedEvent{}
	case models.EventTypeOrderRefunded:
		event = &models.OrderRefundedEvent{}
	case models.EventTypeAuctionWon:
		event = &models.AuctionWonEvent{}
	case models.EventTypeAuctionEndedNoBids:
		event = &models.AuctionEndedNoWinnerEvent{}
	case models.EventTypeVendorApproved:
		event = &models.VendorApprovedEvent{}
	case models.EventTypeVendorRejected:
		event = &models.VendorRejectedEvent{}
	default:
		return nil, nil
	}

	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s event: %w", eventType, err)
	}
	return event, nil
}
