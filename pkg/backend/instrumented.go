package backend

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Request outcomes reported to the observer
const (
	OutcomeOK           = "ok"
	OutcomeError        = "error"
	OutcomeBackendError = "backend_error"
)

// RequestObserver receives the outcome of each collaborator request
type RequestObserver interface {
	ObserveBackendRequest(op, outcome string, seconds float64)
}

// Instrumented wraps a Client with tracing spans and request metrics
type Instrumented struct {
	inner    Client
	observer RequestObserver
	tracer   trace.Tracer
}

// NewInstrumented wraps client. observer may be nil when metrics are
// disabled.
func NewInstrumented(client Client, observer RequestObserver) *Instrumented {
	return &Instrumented{
		inner:    client,
		observer: observer,
		tracer:   otel.Tracer("topoview/backend"),
	}
}

func (i *Instrumented) FindPaths(ctx context.Context, sourcePK, targetPK string, maxAlternates int, metric Metric) (*PathResult, error) {
	ctx, span := i.tracer.Start(ctx, "backend.FindPaths", trace.WithAttributes(
		attribute.String("topology.source", sourcePK),
		attribute.String("topology.target", targetPK),
		attribute.String("topology.metric", string(metric)),
	))
	defer span.End()

	start := time.Now()
	result, err := i.inner.FindPaths(ctx, sourcePK, targetPK, maxAlternates, metric)
	i.finish(span, "find_paths", start, err, resultError(result))
	return result, err
}

func (i *Instrumented) FindMetroPaths(ctx context.Context, sourceMetroPK, targetMetroPK string, maxAlternates int) (*MetroPathResult, error) {
	ctx, span := i.tracer.Start(ctx, "backend.FindMetroPaths", trace.WithAttributes(
		attribute.String("topology.source", sourceMetroPK),
		attribute.String("topology.target", targetMetroPK),
	))
	defer span.End()

	start := time.Now()
	result, err := i.inner.FindMetroPaths(ctx, sourceMetroPK, targetMetroPK, maxAlternates)
	i.finish(span, "find_metro_paths", start, err, resultError(result))
	return result, err
}

func (i *Instrumented) SimulateLinkRemoval(ctx context.Context, sourcePK, targetPK string) (*RemovalResult, error) {
	ctx, span := i.tracer.Start(ctx, "backend.SimulateLinkRemoval", trace.WithAttributes(
		attribute.String("topology.source", sourcePK),
		attribute.String("topology.target", targetPK),
	))
	defer span.End()

	start := time.Now()
	result, err := i.inner.SimulateLinkRemoval(ctx, sourcePK, targetPK)
	i.finish(span, "simulate_link_removal", start, err, resultError(result))
	return result, err
}

func (i *Instrumented) SimulateLinkAddition(ctx context.Context, sourcePK, targetPK string, cost uint32) (*AdditionResult, error) {
	ctx, span := i.tracer.Start(ctx, "backend.SimulateLinkAddition", trace.WithAttributes(
		attribute.String("topology.source", sourcePK),
		attribute.String("topology.target", targetPK),
		attribute.Int64("topology.cost", int64(cost)),
	))
	defer span.End()

	start := time.Now()
	result, err := i.inner.SimulateLinkAddition(ctx, sourcePK, targetPK, cost)
	i.finish(span, "simulate_link_addition", start, err, resultError(result))
	return result, err
}

func (i *Instrumented) SimulateFailure(ctx context.Context, devicePKs []string) (*ImpactResult, error) {
	ctx, span := i.tracer.Start(ctx, "backend.SimulateFailure", trace.WithAttributes(
		attribute.String("topology.devices", strings.Join(devicePKs, ",")),
	))
	defer span.End()

	start := time.Now()
	result, err := i.inner.SimulateFailure(ctx, devicePKs)
	i.finish(span, "simulate_failure", start, err, resultError(result))
	return result, err
}

func (i *Instrumented) CriticalLinks(ctx context.Context) (*CriticalLinksResult, error) {
	ctx, span := i.tracer.Start(ctx, "backend.CriticalLinks")
	defer span.End()

	start := time.Now()
	result, err := i.inner.CriticalLinks(ctx)
	i.finish(span, "critical_links", start, err, resultError(result))
	return result, err
}

func (i *Instrumented) LinkHealth(ctx context.Context) (*LinkHealthResult, error) {
	ctx, span := i.tracer.Start(ctx, "backend.LinkHealth")
	defer span.End()

	start := time.Now()
	result, err := i.inner.LinkHealth(ctx)
	i.finish(span, "link_health", start, err, resultError(result))
	return result, err
}

func (i *Instrumented) finish(span trace.Span, op string, start time.Time, err error, backendErr string) {
	outcome := OutcomeOK
	switch {
	case err != nil:
		outcome = OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case backendErr != "":
		outcome = OutcomeBackendError
		span.SetStatus(codes.Error, backendErr)
	}

	if i.observer != nil {
		i.observer.ObserveBackendRequest(op, outcome, time.Since(start).Seconds())
	}
}

// resultError pulls the inline error field out of any result type
func resultError(result any) string {
	switch r := result.(type) {
	case *PathResult:
		if r != nil {
			return r.Error
		}
	case *MetroPathResult:
		if r != nil {
			return r.Error
		}
	case *RemovalResult:
		if r != nil {
			return r.Error
		}
	case *AdditionResult:
		if r != nil {
			return r.Error
		}
	case *ImpactResult:
		if r != nil {
			return r.Error
		}
	case *CriticalLinksResult:
		if r != nil {
			return r.Error
		}
	case *LinkHealthResult:
		if r != nil {
			return r.Error
		}
	}
	return ""
}
