package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey contextKey = "github.com/Abdullah97825/Matjary-sub000/internal/platform/requestctx/logger"
	traceContextKey  contextKey = "github.com/Abdullah97825/Matjary-sub000/internal/platform/requestctx/trace"
	actorContextKey  contextKey = "github.com/Abdullah97825/Matjary-sub000/internal/platform/requestctx/actor"
	actorSlotKey     contextKey = "github.com/Abdullah97825/Matjary-sub000/internal/platform/requestctx/actor-slot"
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// ActorInfo is the log-safe view of the authenticated caller.
type ActorInfo struct {
	ID   string
	Role string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared noop logger instance used across the package.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores the trace metadata on the context for downstream usage.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceContextKey).(TraceInfo)
	return info, ok
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

type actorSlot struct {
	info ActorInfo
}

// WithActorSlot reserves a slot that a later WithActor call on a derived context fills in,
// so outer middleware can see who the request was authenticated as.
func WithActorSlot(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorSlotKey, &actorSlot{})
}

// RecordedActor returns the actor written into the slot reserved by WithActorSlot.
func RecordedActor(ctx context.Context) (ActorInfo, bool) {
	if ctx == nil {
		return ActorInfo{}, false
	}
	slot, ok := ctx.Value(actorSlotKey).(*actorSlot)
	if !ok || slot.info.ID == "" {
		return ActorInfo{}, false
	}
	return slot.info, true
}

// WithActor records the caller so loggers and idempotency scoping can read it
// without depending on the auth package.
func WithActor(ctx context.Context, info ActorInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if slot, ok := ctx.Value(actorSlotKey).(*actorSlot); ok {
		slot.info = info
	}
	return context.WithValue(ctx, actorContextKey, info)
}

// Actor returns the caller recorded by WithActor.
func Actor(ctx context.Context) (ActorInfo, bool) {
	if ctx == nil {
		return ActorInfo{}, false
	}
	info, ok := ctx.Value(actorContextKey).(ActorInfo)
	if !ok || info.ID == "" {
		return ActorInfo{}, false
	}
	return info, true
}
