package telemetry

import (
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/fetcherr"
	"github.com/edgecomet/fetchmd/internal/safeurl"
)

// slowRequestThreshold triggers a warning log on end/error events.
const slowRequestThreshold = 5 * time.Second

// Tracker starts fetch traces and routes their events to an emitter.
type Tracker struct {
	emitter  Emitter
	redactor *safeurl.Redactor
	logger   *zap.Logger
}

func NewTracker(emitter Emitter, redactor *safeurl.Redactor, logger *zap.Logger) *Tracker {
	if emitter == nil {
		emitter = &NoopEmitter{}
	}
	return &Tracker{emitter: emitter, redactor: redactor, logger: logger}
}

// Trace is the per-request telemetry context. Immutable after Start
// except for one URL update when the post-redirect URL becomes known.
type Trace struct {
	tracker *Tracker

	RequestID        string
	Method           string
	RedactedURL      string
	ContextRequestID string
	OperationID      string

	start time.Time
	done  bool
}

// Start emits the start event and returns the trace for the request.
func (t *Tracker) Start(requestID, method, rawURL, contextRequestID, operationID string) *Trace {
	trace := &Trace{
		tracker:          t,
		RequestID:        requestID,
		Method:           method,
		RedactedURL:      t.redactor.Redact(rawURL),
		ContextRequestID: contextRequestID,
		OperationID:      operationID,
		start:            time.Now(),
	}

	t.emit(&Event{
		V:                EventVersion,
		Type:             TypeStart,
		RequestID:        trace.RequestID,
		Method:           method,
		URL:              trace.RedactedURL,
		ContextRequestID: contextRequestID,
		OperationID:      operationID,
		CreatedAt:        trace.start,
	})
	return trace
}

// SetFinalURL updates the redacted URL once the redirect chain settles.
func (tr *Trace) SetFinalURL(finalURL string) {
	tr.RedactedURL = tr.tracker.redactor.Redact(finalURL)
}

// End emits the end event. Repeated calls are ignored.
func (tr *Trace) End(status int) {
	if tr.done {
		return
	}
	tr.done = true
	duration := time.Since(tr.start)

	tr.tracker.emit(&Event{
		V:                EventVersion,
		Type:             TypeEnd,
		RequestID:        tr.RequestID,
		URL:              tr.RedactedURL,
		ContextRequestID: tr.ContextRequestID,
		OperationID:      tr.OperationID,
		Status:           status,
		DurationMs:       float64(duration.Milliseconds()),
		CreatedAt:        time.Now(),
	})
	tr.warnIfSlow(duration)
}

// Error emits the error event for err. Repeated calls are ignored.
func (tr *Trace) Error(err error) {
	if tr.done {
		return
	}
	tr.done = true
	duration := time.Since(tr.start)
	fe := fetcherr.From(err)

	tr.tracker.emit(&Event{
		V:                EventVersion,
		Type:             TypeError,
		RequestID:        tr.RequestID,
		URL:              tr.RedactedURL,
		ContextRequestID: tr.ContextRequestID,
		OperationID:      tr.OperationID,
		Status:           fe.StatusCode,
		Code:             fe.Code,
		Message:          fe.Message,
		DurationMs:       float64(duration.Milliseconds()),
		CreatedAt:        time.Now(),
	})
	tr.warnIfSlow(duration)
}

func (tr *Trace) warnIfSlow(duration time.Duration) {
	if duration > slowRequestThreshold {
		tr.tracker.logger.Warn("Slow request",
			zap.String("request_id", tr.RequestID),
			zap.String("url", tr.RedactedURL),
			zap.Duration("duration", duration))
	}
}

// emit shields the request path from a panicking backend.
func (t *Tracker) emit(event *Event) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Debug("Telemetry emit panicked, event dropped",
				zap.Any("panic", r),
				zap.String("request_id", event.RequestID))
		}
	}()
	t.emitter.Emit(event)
}
