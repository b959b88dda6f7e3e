package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/tabletalk/tabletalk/internal/config"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Redacted replaces the value of any attribute whose key names a credential.
const Redacted = "[redacted]"

var secretAttrKeys = map[string]struct{}{
	"api_key":           {},
	"authorization":     {},
	"dsn":               {},
	"secret_access_key": {},
}

// NewLogger builds the process logger. Every record carries the service,
// profile, warehouse driver and model so logs from several deployments can
// share one sink. Debug level adds source locations.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{
		Level:       cfg.Observability.LogLevel,
		AddSource:   cfg.Observability.LogLevel <= slog.LevelDebug,
		ReplaceAttr: redactSecrets,
	}
	var handler slog.Handler = slog.NewTextHandler(writer, opts)
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	}

	attrs := []any{
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	}
	if driver := strings.TrimSpace(cfg.Warehouse.Driver); driver != "" {
		attrs = append(attrs, slog.String("warehouse", driver))
	}
	if model := strings.TrimSpace(cfg.LLM.Model); model != "" {
		attrs = append(attrs, slog.String("llm_model", model))
	}
	return slog.New(handler).With(attrs...)
}

// WithTrace returns logger tagged with the request's trace id, or logger
// itself when ctx has none.
func WithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return logger
	}
	return logger.With(slog.String("trace_id", traceID))
}

func redactSecrets(_ []string, attr slog.Attr) slog.Attr {
	if _, ok := secretAttrKeys[strings.ToLower(attr.Key)]; ok && attr.Value.Kind() != slog.KindGroup {
		return slog.String(attr.Key, Redacted)
	}
	return attr
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(traceIDKey).(string)
	return value
}
