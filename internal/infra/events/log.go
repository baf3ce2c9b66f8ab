package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Logger is the minimal logging surface needed by the log sink. Satisfied by
// the core service logger implementations.
type Logger interface {
	Info(msg string, args ...any)
}

// LogSink writes events to the operational log instead of a broker. Useful
// for local development and as a fallback when no brokers are configured.
type LogSink struct {
	logger Logger
}

// NewLogSink constructs a sink writing to the supplied logger.
func NewLogSink(logger Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Publish logs the event at INFO level.
func (s *LogSink) Publish(_ context.Context, topic string, payload any) error {
	if s.logger == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	s.logger.Info("event published", "topic", topic, "payload", string(data))
	return nil
}
