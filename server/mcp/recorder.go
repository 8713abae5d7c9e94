package mcp

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CallRecord captures one tool invocation for the observability sink.
type CallRecord struct {
	Method   string
	Request  any
	Response any
	Err      error
	Duration time.Duration
	Success  bool
}

// Recorder receives a record for every tool call, success or failure.
type Recorder interface {
	Record(ctx context.Context, rec CallRecord)
}

type logRecorder struct{}

// NewLogRecorder emits call records to the process log.
func NewLogRecorder() Recorder {
	return &logRecorder{}
}

func (r *logRecorder) Record(ctx context.Context, rec CallRecord) {
	request, _ := json.Marshal(rec.Request)
	if rec.Err != nil {
		log.Printf("call method=%s request=%s duration=%s success=false error=%v",
			rec.Method, request, rec.Duration, rec.Err)
		return
	}
	log.Printf("call method=%s request=%s duration=%s success=true",
		rec.Method, request, rec.Duration)
}

type otelRecorder struct {
	tracer trace.Tracer
}

// NewOtelRecorder emits each call as a span on the globally registered
// tracer provider. With no provider installed the spans are no-ops.
func NewOtelRecorder() Recorder {
	return &otelRecorder{
		tracer: otel.Tracer("github.com/maxfong/my-mem-mcp/server/mcp"),
	}
}

func (r *otelRecorder) Record(ctx context.Context, rec CallRecord) {
	request, _ := json.Marshal(rec.Request)

	_, span := r.tracer.Start(
		ctx,
		rec.Method,
		trace.WithTimestamp(time.Now().Add(-rec.Duration)),
	)
	span.SetAttributes(
		attribute.String("rpc.method", rec.Method),
		attribute.String("rpc.request", string(request)),
		attribute.Int64("rpc.duration_ms", rec.Duration.Milliseconds()),
		attribute.Bool("rpc.success", rec.Success),
	)
	if rec.Err != nil {
		span.RecordError(rec.Err)
		span.SetStatus(codes.Error, rec.Err.Error())
	}
	span.End()
}

type multiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder fans a call record out to every given recorder.
func NewMultiRecorder(recorders ...Recorder) Recorder {
	return &multiRecorder{recorders: recorders}
}

func (r *multiRecorder) Record(ctx context.Context, rec CallRecord) {
	for _, recorder := range r.recorders {
		recorder.Record(ctx, rec)
	}
}
