package services

import (
	"encoding/json"
	"fmt"
	"log"

	"arokya/internal/models"
)

// HandleOrderEvent decodes a broker message produced by the ledger and logs it.
// A message that cannot be decoded is returned as an error so the consumer
// can reject it.
func HandleOrderEvent(body []byte) (*models.OrderEvent, error) {
	var event models.OrderEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to decode order event: %w", err)
	}
	if event.Type != models.OrderEventRecorded || event.OrderID == "" {
		return nil, fmt.Errorf("unexpected order event %q for order %q", event.Type, event.OrderID)
	}
	log.Printf("Order %s for user %s recorded as %s (%d %s)", event.OrderID, event.UserID, event.Status, event.Amount, event.Currency)
	return &event, nil
}
