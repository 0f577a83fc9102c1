package metrics

import (
	"strconv"
	"time"

	"github.com/edgecomet/fetchmd/internal/telemetry"
)

// ListenTelemetry consumes fetch events into the collector until the
// channel closes. Run on its own goroutine.
func (c *Collector) ListenTelemetry(events <-chan *telemetry.Event) {
	methods := make(map[string]string)
	for event := range events {
		switch event.Type {
		case telemetry.TypeStart:
			methods[event.RequestID] = event.Method
		case telemetry.TypeEnd:
			method := methods[event.RequestID]
			delete(methods, event.RequestID)
			c.RecordRequest(method, strconv.Itoa(event.Status),
				time.Duration(event.DurationMs)*time.Millisecond)
		case telemetry.TypeError:
			method := methods[event.RequestID]
			delete(methods, event.RequestID)
			status := "error"
			if event.Status != 0 {
				status = strconv.Itoa(event.Status)
			}
			c.RecordRequest(method, status,
				time.Duration(event.DurationMs)*time.Millisecond)
			c.RecordError(errorKind(event))
		}
	}
}

func errorKind(event *telemetry.Event) string {
	if event.Code != "" {
		return event.Code
	}
	return "unknown"
}
