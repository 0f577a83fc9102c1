package telemetry

import (
	"errors"

	"go.uber.org/zap"
)

// Emitter is a telemetry backend. Emit is fire-and-forget and
// non-blocking; failures are logged internally, never returned.
type Emitter interface {
	Emit(event *Event)
	Close() error
}

// NoopEmitter drops everything. Used in tests and when telemetry is off.
type NoopEmitter struct{}

func (n *NoopEmitter) Emit(event *Event) {}
func (n *NoopEmitter) Close() error      { return nil }

// LogEmitter writes events as structured log lines.
type LogEmitter struct {
	logger *zap.Logger
}

func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	return &LogEmitter{logger: logger.Named(ChannelName)}
}

func (l *LogEmitter) Emit(event *Event) {
	fields := []zap.Field{
		zap.Int("v", event.V),
		zap.String("type", event.Type),
		zap.String("request_id", event.RequestID),
	}
	if event.Method != "" {
		fields = append(fields, zap.String("method", event.Method))
	}
	if event.URL != "" {
		fields = append(fields, zap.String("url", event.URL))
	}
	if event.Status != 0 {
		fields = append(fields, zap.Int("status", event.Status))
	}
	if event.Code != "" {
		fields = append(fields, zap.String("code", event.Code))
	}
	if event.Message != "" {
		fields = append(fields, zap.String("message", event.Message))
	}
	if event.DurationMs > 0 {
		fields = append(fields, zap.Float64("duration_ms", event.DurationMs))
	}
	l.logger.Info("Fetch event", fields...)
}

func (l *LogEmitter) Close() error { return nil }

// ChannelEmitter publishes events onto an in-process channel for
// subscribers (metrics, tests). A full channel drops the event rather
// than blocking the request path.
type ChannelEmitter struct {
	ch     chan *Event
	logger *zap.Logger
}

func NewChannelEmitter(buffer int, logger *zap.Logger) *ChannelEmitter {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelEmitter{
		ch:     make(chan *Event, buffer),
		logger: logger,
	}
}

// Events exposes the subscriber side of the channel.
func (c *ChannelEmitter) Events() <-chan *Event { return c.ch }

func (c *ChannelEmitter) Emit(event *Event) {
	select {
	case c.ch <- event:
	default:
		c.logger.Debug("Telemetry channel full, event dropped",
			zap.String("request_id", event.RequestID),
			zap.String("type", event.Type))
	}
}

func (c *ChannelEmitter) Close() error {
	close(c.ch)
	return nil
}

// MultiEmitter dispatches to several backends.
type MultiEmitter struct {
	emitters []Emitter
}

func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

func (m *MultiEmitter) Emit(event *Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}

func (m *MultiEmitter) Close() error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
