// Package observability configures the process-wide logging pipeline: a local
// slog handler by default, or the OpenTelemetry log bridge when an exporter is
// selected through the standard OTEL_* environment variables.
package observability

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationName = "github.com/florianilch/zdauth"

// Instrument installs the process-wide default logger.
func Instrument(level slog.Level, format string) error {
	handler, err := newHandler(level, format)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func newHandler(level slog.Level, format string) (slog.Handler, error) {
	exporter, err := newExporter(context.Background())
	if err != nil {
		return nil, err
	}

	if exporter != nil {
		provider := sdklog.NewLoggerProvider(
			sdklog.WithProcessor(
				minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(level)),
			),
		)
		return otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider)), nil
	}

	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(os.Stderr, opts), nil
	}
	return slog.NewTextHandler(os.Stderr, opts), nil
}

// newExporter selects a log exporter from OTEL_LOGS_EXPORTER; nil means
// local-only logging.
func newExporter(ctx context.Context) (sdklog.Exporter, error) {
	switch os.Getenv("OTEL_LOGS_EXPORTER") {
	case "console":
		return stdoutlog.New()
	case "otlp":
		if os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") == "grpc" {
			return otlploggrpc.New(ctx)
		}
		return otlploghttp.New(ctx)
	default:
		return nil, nil
	}
}

func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
