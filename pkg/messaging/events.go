package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	EventUsageRecorded = "usage.recorded"
)

// Exchange names
const (
	ExchangeUsageEvents = "usage.events"
)

// Event is the base event envelope carried on the wire.
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data.
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct.
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// UsageRecordedEvent is published each time an API key authenticates a
// request, before the request's handler runs.
// It is consumed to append a row to usage_events without making the
// originating request wait on that write.
type UsageRecordedEvent struct {
	TenantID string `json:"tenant_id"`
	APIKeyID string `json:"api_key_id,omitempty"`
	Endpoint string `json:"endpoint"`
}

// GenerateEventID generates a unique event ID.
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
