package common

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/erpc/solbridge"

var (
	IsTracingEnabled bool

	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer = noop.NewTracerProvider().Tracer(instrumentationName)
	initOnce       sync.Once
)

func InitializeTracing(ctx context.Context, logger *zerolog.Logger, cfg *TracingConfig) error {
	var err error

	initOnce.Do(func() {
		if cfg == nil || !cfg.Enabled {
			logger.Debug().Msg("OpenTelemetry tracing is disabled")
			return
		}

		logger.Info().
			Str("endpoint", cfg.Endpoint).
			Str("serviceName", cfg.ServiceName).
			Float64("sampleRate", cfg.SampleRate).
			Msg("initializing OpenTelemetry tracing")

		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, expErr := otlptracehttp.New(ctx, opts...)
		if expErr != nil {
			err = expErr
			logger.Error().Err(err).Msg("failed to create span exporter")
			return
		}

		res, resErr := resource.New(ctx, resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
		))
		if resErr != nil {
			err = resErr
			logger.Error().Err(err).Msg("failed to create resource")
			return
		}

		tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithSampler(createTracingSampler(cfg)),
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tracerProvider)
		otel.SetTextMapPropagator(propagation.TraceContext{})
		if logger.GetLevel() <= zerolog.DebugLevel {
			otel.SetLogger(zerologr.New(logger))
		}
		otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
			logger.Trace().Err(err).Msg("open telemetry export error")
		}))

		tracer = tracerProvider.Tracer(instrumentationName)
		IsTracingEnabled = true
		logger.Info().Msg("OpenTelemetry tracing initialized successfully")
	})

	return err
}

func ShutdownTracing(ctx context.Context) error {
	if tracerProvider == nil {
		return nil
	}
	return tracerProvider.Shutdown(ctx)
}

func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, opts...)
}

func ExtractHTTPRequestTraceContext(r *http.Request) context.Context {
	if !IsTracingEnabled {
		return r.Context()
	}
	return propagation.TraceContext{}.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func SetTraceSpanError(span trace.Span, err error) {
	if span == nil || !span.IsRecording() || err == nil {
		return
	}
	if stdErr, ok := err.(StandardError); ok {
		span.SetAttributes(attribute.String("error.code", stdErr.CodeChain()))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, fmt.Sprintf("%v", err))
}

func createTracingSampler(cfg *TracingConfig) sdktrace.Sampler {
	if cfg.SampleRate <= 0 {
		return sdktrace.NeverSample()
	}
	if cfg.SampleRate >= 1.0 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
}
