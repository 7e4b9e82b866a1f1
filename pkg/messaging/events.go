package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Subjects published by the comptroller
const (
	EventTypeEpochAdvanced     = "comptroller.epoch.advanced"
	EventTypeMinted            = "comptroller.minted"
	EventTypeBurned            = "comptroller.burned"
	EventTypeRedeemed          = "comptroller.redeemed"
	EventTypeDebtIncreased     = "comptroller.debt.increased"
	EventTypeDebtDecreased     = "comptroller.debt.decreased"
	EventTypeRedeemableChanged = "comptroller.redeemable.changed"
	EventTypeBondedChanged     = "comptroller.bonded.changed"
	EventTypeAllowanceGranted  = "comptroller.allowance.granted"
)

// SubjectAdvanceEpoch is the command subject an external scheduler publishes
// to when an epoch should end.
const SubjectAdvanceEpoch = "comptroller.epoch.advance"

// Event is the base event structure
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Version   int             `json:"version"`
	Data      json.RawMessage `json:"data"`
	Metadata  EventMetadata   `json:"metadata"`
}

// EventMetadata contains event metadata
type EventMetadata struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	Source        string `json:"source"`
}

// PolicyEvent describes one committed comptroller operation and the
// counters it left behind.
type PolicyEvent struct {
	EntryID         uuid.UUID `json:"entry_id"`
	Operation       string    `json:"operation"`
	Epoch           uint64    `json:"epoch"`
	Account         string    `json:"account,omitempty"`
	Amount          string    `json:"amount,omitempty"`
	TotalSupply     string    `json:"total_supply"`
	TotalDebt       string    `json:"total_debt"`
	TotalRedeemable string    `json:"total_redeemable"`
	TotalBonded     string    `json:"total_bonded"`
}

// NewEvent creates a new event
func NewEvent(eventType string, data interface{}, metadata EventMetadata) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Version:   1,
		Data:      dataBytes,
		Metadata:  metadata,
	}, nil
}

// ParseEventData parses event data into the specified type
func ParseEventData[T any](event *Event) (*T, error) {
	var data T
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return nil, err
	}
	return &data, nil
}
