package decorator

import (
	"context"
	"fmt"

	"github.com/programme-lv/proctor/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/programme-lv/proctor"

// WithTracing wraps a command handler in an OpenTelemetry span and
// logs failures with the context logger.
func WithTracing[P any](name string, h CmdHandler[P]) CmdHandler[P] {
	return CmdHandlerFunc[P](func(ctx context.Context, p P) error {
		ctx, span := otel.Tracer(tracerName).Start(ctx, name)
		defer span.End()
		span.SetAttributes(attribute.String("cqs.kind", "command"))

		err := h.Handle(ctx, p)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.FromContext(ctx).Debug("command failed", "command", name, "error", err)
		}
		return err
	})
}

// WithQueryTracing is WithTracing for handlers that return a result.
// Commands returning a result are traced with it too.
func WithQueryTracing[Q any, R any](name string, h QueryHandler[Q, R]) QueryHandler[Q, R] {
	return QueryHandlerFunc[Q, R](func(ctx context.Context, q Q) (R, error) {
		ctx, span := otel.Tracer(tracerName).Start(ctx, name)
		defer span.End()
		span.SetAttributes(attribute.String("cqs.params", fmt.Sprintf("%T", q)))

		res, err := h.Handle(ctx, q)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.FromContext(ctx).Debug("handler failed", "handler", name, "error", err)
		}
		return res, err
	})
}
