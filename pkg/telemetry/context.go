package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/blueprint/pkg/engine"
	"github.com/openfroyo/blueprint/pkg/providers/external"
	"github.com/openfroyo/blueprint/pkg/spec"
)

// Telemetry combines logging, tracing, metrics and events. It implements
// the catalog observer, the external config lookup observer and the task
// observer so a single value can be wired into every component.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, engine.NewConfigurationError("invalid telemetry configuration", err)
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	return newTelemetry(cfg, logger)
}

// NewTelemetryWithLogger creates a telemetry instance around an existing
// logger.
func NewTelemetryWithLogger(cfg *Config, logger *Logger) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, engine.NewConfigurationError("invalid telemetry configuration", err)
	}
	return newTelemetry(cfg, logger)
}

func newTelemetry(cfg *Config, logger *Logger) (*Telemetry, error) {
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment, cfg.ResourceAttributes)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: NewMetrics(cfg.Metrics),
		Events:  NewEventPublisher(cfg.Events),
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context,
// or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown stops event delivery and flushes the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Events.Shutdown(ctx),
		t.Tracer.Shutdown(ctx),
	)
}

// ItemAdded implements catalog.Observer.
func (t *Telemetry) ItemAdded(kind spec.Type) {
	t.Metrics.ItemAdded(kind)
	t.publish(t.Events.PublishItemAdded(string(kind)))
}

// SpecCreated implements catalog.Observer.
func (t *Telemetry) SpecCreated(kind spec.Type, strategy string, err error) {
	t.Metrics.SpecCreated(kind, strategy, err)
	t.publish(t.Events.PublishSpecCreated(string(kind), strategy, err))
}

// ObserveLookup implements external.LookupObserver.
func (t *Telemetry) ObserveLookup(provider, outcome string) {
	t.Metrics.ObserveLookup(provider, outcome)
	if outcome == external.OutcomeError || outcome == external.OutcomeNoProvider {
		t.publish(t.Events.PublishLookupFailed(provider, outcome))
	}
}

// ObserveTask implements engine.TaskObserver.
func (t *Telemetry) ObserveTask(displayName string, transient bool, status string, duration time.Duration) {
	t.Metrics.ObserveTask(displayName, transient, status, duration)
	if status == string(engine.TaskStatusFailed) {
		t.publish(t.Events.PublishTaskFailed(displayName, duration))
	}
}

func (t *Telemetry) publish(err error) {
	if err != nil {
		t.Logger.zlog.Debug().Err(err).Msg("Event not published")
	}
}

// Operation is an in-flight instrumented operation.
type Operation struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an operation with a span, a logger carrying the
// trace ids, and a timer. Without telemetry in ctx it only times.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *Operation {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &Operation{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	logger := tel.Logger.WithField("operation", operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &Operation{
		Ctx:    logger.WithContext(spanCtx),
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the operation, recording err on the span and in the error
// metrics.
func (op *Operation) End(err error) {
	if tel := FromTelemetryContext(op.Ctx); tel != nil {
		tel.Metrics.RecordError(err)
	}
	if op.Span == nil {
		return
	}
	if err != nil {
		var ee *engine.EngineError
		if errors.As(err, &ee) {
			op.Span.SetAttributes(AttrErrorKind.String(string(ee.Kind)))
			if ee.Code != "" {
				op.Span.SetAttributes(AttrErrorCode.String(ee.Code))
			}
		}
		RecordError(op.Span, err)
	} else {
		RecordSuccess(op.Span)
	}
	op.Span.End()
}
