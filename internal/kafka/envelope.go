package kafka

import (
	"encoding/json"
	"fmt"
	"github.com/ariefcatur/woodchain/internal/orders"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"strconv"
	"time"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// NewEnvelope wraps payload in a v1 envelope correlated to the order.
func NewEnvelope(eventType, producer, traceID string, orderID int64, payload any) orders.Envelope {
	return orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: strconv.FormatInt(orderID, 10),
		Payload:       MustMarshal(payload),
	}
}

func Headers(env orders.Envelope) []kafka.Header {
	return []kafka.Header{
		{Key: HeaderEventType, Value: []byte(env.EventType)},
		{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(env.EventVersion))},
	}
}

func DecodeEnvelope(b []byte) (orders.Envelope, error) {
	var env orders.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// UnwrapPayload memudahkan decode payload spesifik
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
