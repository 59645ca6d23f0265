package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	boardTracerName  = "boardsync/api"
	boardSpanName    = "board.fetch"
	boardEventName   = "board.request"
	boardEventDomain = "boardsync"
	boardRoute       = "/api/board"
)

// boardRequestMetrics collects per-request timings for the board fetch
// endpoint and emits them once as a span plus a structured log event.
type boardRequestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	fetchDuration  time.Duration
	encodeDuration time.Duration
	listsReturned  int
	tasksReturned  int
	errorStage     string
}

func newBoardRequestMetrics(ctx context.Context, logger *log.Logger) (*boardRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(boardTracerName).Start(ctx, boardSpanName)
	m := &boardRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}
	return m, spanCtx
}

func (m *boardRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.fetchDuration = duration
}

func (m *boardRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *boardRequestMetrics) SetListsReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.listsReturned = count
}

func (m *boardRequestMetrics) SetTasksReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *boardRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log ends the span and writes the observability event. It must be called
// exactly once per request.
func (m *boardRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	severityText, severityNumber := severityForStatus(status, err)
	totalMs := durationToMillis(time.Since(m.start))

	spanAttrs := []attribute.KeyValue{
		attribute.String("http.route", boardRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("boardsync.board.total_ms", totalMs),
		attribute.Int("boardsync.board.lists_returned", m.listsReturned),
		attribute.Int("boardsync.board.tasks_returned", m.tasksReturned),
	}
	logAttrs := map[string]any{
		"http.route":                     boardRoute,
		"http.status_code":               status,
		"boardsync.board.total_ms":       totalMs,
		"boardsync.board.lists_returned": m.listsReturned,
		"boardsync.board.tasks_returned": m.tasksReturned,
	}
	if m.fetchDuration > 0 {
		fetchMs := durationToMillis(m.fetchDuration)
		spanAttrs = append(spanAttrs, attribute.Float64("boardsync.board.fetch_ms", fetchMs))
		logAttrs["boardsync.board.fetch_ms"] = fetchMs
	}
	if m.encodeDuration > 0 {
		encodeMs := durationToMillis(m.encodeDuration)
		spanAttrs = append(spanAttrs, attribute.Float64("boardsync.board.encode_ms", encodeMs))
		logAttrs["boardsync.board.encode_ms"] = encodeMs
	}
	if m.errorStage != "" {
		spanAttrs = append(spanAttrs, attribute.String("boardsync.board.error_stage", m.errorStage))
		logAttrs["boardsync.board.error_stage"] = m.errorStage
	}
	if err != nil {
		spanAttrs = append(spanAttrs, attribute.String("error.message", err.Error()))
		logAttrs["error.message"] = err.Error()
	}

	if m.span != nil {
		m.span.SetAttributes(spanAttrs...)

		eventAttrs := make([]attribute.KeyValue, 0, len(spanAttrs)+4)
		eventAttrs = append(eventAttrs, spanAttrs...)
		eventAttrs = append(eventAttrs,
			attribute.String("event.name", boardEventName),
			attribute.String("event.domain", boardEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))

		if err != nil || status >= http.StatusInternalServerError {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      boardEventName,
		"event.domain":    boardEventDomain,
		"attributes":      logAttrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	m.logger.WithFields(fields).Log(levelForSeverity(severityText), "observability.event")
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func levelForSeverity(text string) log.Level {
	switch text {
	case "ERROR":
		return log.ErrorLevel
	case "WARN":
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
