package events

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/Abdullah97825/Matjary-sub000/internal/services"
)

// Message is the wire payload for order events on every transport.
type Message struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	CustomerID     string         `json:"customerId,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	NewStatus      string         `json:"newStatus"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewMessage converts a service event into its wire form.
func NewMessage(event services.OrderEvent) Message {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return Message{
		Type:           event.Type,
		OrderID:        event.OrderID,
		CustomerID:     event.CustomerID,
		PreviousStatus: event.PreviousStatus,
		NewStatus:      event.CurrentStatus,
		ActorID:        event.ActorID,
		OccurredAt:     occurred.UTC(),
		Metadata:       event.Metadata,
	}
}

// Encode marshals the message and returns routing attributes alongside it.
func (m Message) Encode() ([]byte, map[string]string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	attrs := make(map[string]string)
	setAttr(attrs, "type", m.Type)
	setAttr(attrs, "orderId", m.OrderID)
	setAttr(attrs, "newStatus", m.NewStatus)
	setAttr(attrs, "previousStatus", m.PreviousStatus)
	return data, attrs, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
