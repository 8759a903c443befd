package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout | file
	Path        string // used when Exporter == file
	SampleRatio float64
}

func DefaultTracingConfig() TracingConfig {
	return TracingConfig{ServiceName: "rdsim", Exporter: "stdout", SampleRatio: 1}
}

// InitTracing installs a global tracer provider. Epoch spans of the scheduler
// go through it. The returned function flushes and closes the exporter.
func InitTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		logrus.Debug("tracing disabled; using noop tracer provider")
		return func(context.Context) error { return nil }, nil
	}

	w, closeWriter, err := writerFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		closeWriter()
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)))
	if err != nil {
		closeWriter()
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logrus.Infof("tracing enabled: exporter=%s service=%s ratio=%.2f", cfg.Exporter, cfg.ServiceName, cfg.SampleRatio)

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		closeWriter()
		return err
	}, nil
}

func writerFromConfig(cfg TracingConfig) (io.Writer, func(), error) {
	switch strings.ToLower(cfg.Exporter) {
	case "stdout", "":
		return os.Stdout, func() {}, nil
	case "file":
		if cfg.Path == "" {
			return nil, nil, fmt.Errorf("file exporter needs a path")
		}
		f, err := os.Create(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { f.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// ShutdownWithTimeout invokes shutdown with a bounded timeout and logs
// failures instead of returning them.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error) {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logrus.Warnf("tracing shutdown failed: %v", err)
	}
}
