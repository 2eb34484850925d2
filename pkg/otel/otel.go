package otel

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	ServiceMatchingEngine = "matching-engine"
)

var (
	tracerMu               sync.RWMutex
	matchingEngineTracer   trace.Tracer
	matchingTracerProvider *sdktrace.TracerProvider
	meterProvider          *sdkmetric.MeterProvider
)

// Config holds the OpenTelemetry configuration
type Config struct {
	ServiceName      string
	ServiceVersion   string
	Endpoint         string
	ConnectTimeout   time.Duration
	CollectorEnabled bool
	RuntimeMetrics   bool
}

// Init initializes OpenTelemetry with the given configuration. With the
// collector disabled nothing is exported and spans are no-ops.
func Init(cfg Config) (func(), error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = ServiceMatchingEngine
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "0.1.0"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	var cleanup []func()
	shutdown := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	if !cfg.CollectorEnabled {
		return shutdown, nil
	}

	conn, err := grpc.NewClient(cfg.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return shutdown, err
	}
	cleanup = append(cleanup, func() {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing collector connection")
		}
	})

	resource := initResource(cfg.ServiceName, cfg.ServiceVersion)

	tp, err := initTracerProvider(conn, resource)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer provider, continuing without traces")
	} else {
		cleanup = append(cleanup, func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("Error shutting down tracer provider")
			}
		})

		tracerMu.Lock()
		matchingTracerProvider = tp
		matchingEngineTracer = tp.Tracer(cfg.ServiceName)
		tracerMu.Unlock()
	}

	mp, err := initMeterProvider(conn, resource)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize meter provider, continuing without metrics")
	} else {
		meterProvider = mp
		cleanup = append(cleanup, func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
			defer cancel()
			if err := mp.Shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("Error shutting down meter provider")
			}
		})

		if cfg.RuntimeMetrics {
			if err := StartRuntimeMetrics(); err != nil {
				log.Warn().Err(err).Msg("Failed to start runtime metrics")
			}
		}
	}

	return shutdown, nil
}

func initResource(serviceName, serviceVersion string) *sdkresource.Resource {
	extraResources, err := sdkresource.New(
		context.Background(),
		sdkresource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
		sdkresource.WithOS(),
		sdkresource.WithProcess(),
		sdkresource.WithHost(),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create resource")
		return sdkresource.Default()
	}

	resource, err := sdkresource.Merge(
		sdkresource.Default(),
		extraResources,
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to merge resources")
		return sdkresource.Default()
	}

	return resource
}

func initTracerProvider(conn *grpc.ClientConn, resource *sdkresource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithGRPCConn(conn),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource),
		sdktrace.WithSampler(sdktrace.ParentBased(
			sdktrace.TraceIDRatioBased(1),
		)),
	)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetTracerProvider(tp)

	return tp, nil
}

func initMeterProvider(conn *grpc.ClientConn, resource *sdkresource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(context.Background(),
		otlpmetricgrpc.WithGRPCConn(conn),
	)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(5*time.Second))),
		sdkmetric.WithResource(resource),
	)

	otel.SetMeterProvider(mp)

	return mp, nil
}

// GetMatchingEngineTracer returns the tracer for the matching engine, nil
// until Init or SetTracerForTesting ran
func GetMatchingEngineTracer() trace.Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	return matchingEngineTracer
}

// GetTracerProvider returns the engine tracer provider, or the global one
func GetTracerProvider() trace.TracerProvider {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if matchingTracerProvider != nil {
		return matchingTracerProvider
	}
	return otel.GetTracerProvider()
}

// GetMeterProvider returns the meter provider created by Init, or the global one
func GetMeterProvider() metric.MeterProvider {
	if meterProvider != nil {
		return meterProvider
	}
	return otel.GetMeterProvider()
}

// SetTracerForTesting installs tracer as the matching engine tracer
func SetTracerForTesting(tracer trace.Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	matchingEngineTracer = tracer
}

// ResetForTesting removes any installed tracer
func ResetForTesting() {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	matchingEngineTracer = nil
	matchingTracerProvider = nil
}
