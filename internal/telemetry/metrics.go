package telemetry

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"

	"go.opentelemetry.io/contrib/detectors/aws/ecs"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/IliaW/pay-gate/config"
	"github.com/google/uuid"
)

var meter metric.Meter

type MetricsProvider struct {
	KafkaMetrics *KafkaMetrics
	GateMetrics  *GateMetrics
	Close        func()
}

type KafkaMetrics struct {
	SuccessMsgCnt func(count int64)
	FailMsgCnt    func(count int64)
}

type GateMetrics struct {
	PassThroughCnt     func(count int64)
	ChargedCnt         func(count int64)
	PaymentRequiredCnt func(count int64)
	BlockedCnt         func(count int64)
}

func SetupMetrics(ctx context.Context, cfg *config.Config) *MetricsProvider {
	metricsProvider := new(MetricsProvider)
	var meterProvider *sdkmetric.MeterProvider

	if cfg.TelemetrySettings.Enabled {
		r, err := newResource(cfg)
		if err != nil {
			slog.Error("failed to get resource.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		exporter, err := newMetricExporter(ctx, cfg.TelemetrySettings)
		if err != nil {
			slog.Error("failed to get metric exporter.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		meterProvider = newMeterProvider(exporter, *r)
		otel.SetMeterProvider(meterProvider)
	}

	meter = otel.Meter(cfg.ServiceName)
	metricsProvider.Close = func() {
		if meterProvider != nil {
			err := meterProvider.Shutdown(ctx)
			if err != nil {
				slog.Error("failed to shutdown metrics provider.", slog.String("err", err.Error()))
			}
		}
	}

	// Set up kafka metrics
	kafkaSuccessCounter, err := meter.Int64Counter("pay-gate.kafka.send.success",
		metric.WithDescription("The number of events that the kafka producer successfully sent"),
		metric.WithUnit("{events}"))
	kafkaFailCounter, err := meter.Int64Counter("pay-gate.kafka.send.fail",
		metric.WithDescription("The number of events that the kafka producer could not send"),
		metric.WithUnit("{events}"))
	if err != nil {
		slog.Error("failed to create telemetry counters for kafka.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	metricsProvider.KafkaMetrics = &KafkaMetrics{
		SuccessMsgCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				kafkaSuccessCounter.Add(ctx, count)
			}
		},
		FailMsgCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				kafkaFailCounter.Add(ctx, count)
			}
		},
	}

	// Set up gate decision metrics
	passThroughCounter, err := meter.Int64Counter("pay-gate.decisions.pass_through",
		metric.WithDescription("The number of requests forwarded to the origin without charging"),
		metric.WithUnit("{requests}"))
	chargedCounter, err := meter.Int64Counter("pay-gate.decisions.charged",
		metric.WithDescription("The number of crawler requests forwarded with an accepted charge"),
		metric.WithUnit("{requests}"))
	paymentRequiredCounter, err := meter.Int64Counter("pay-gate.decisions.payment_required",
		metric.WithDescription("The number of crawler requests answered with 402"),
		metric.WithUnit("{requests}"))
	blockedCounter, err := meter.Int64Counter("pay-gate.decisions.blocked",
		metric.WithDescription("The number of crawler requests answered with 403"),
		metric.WithUnit("{requests}"))
	if err != nil {
		slog.Error("failed to create telemetry counters for the gate.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	metricsProvider.GateMetrics = &GateMetrics{
		PassThroughCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				passThroughCounter.Add(ctx, count)
			}
		},
		ChargedCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				chargedCounter.Add(ctx, count)
			}
		},
		PaymentRequiredCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				paymentRequiredCounter.Add(ctx, count)
			}
		},
		BlockedCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				blockedCounter.Add(ctx, count)
			}
		},
	}

	// initialize metrics for setup UI
	if cfg.TelemetrySettings.Enabled {
		metricsProvider.GateMetrics.PassThroughCnt(1)
		metricsProvider.GateMetrics.ChargedCnt(1)
		metricsProvider.GateMetrics.PaymentRequiredCnt(1)
		metricsProvider.GateMetrics.BlockedCnt(1)
		metricsProvider.KafkaMetrics.SuccessMsgCnt(1)
		metricsProvider.KafkaMetrics.FailMsgCnt(1)
	}

	return metricsProvider
}

func newResource(cfg *config.Config) (*resource.Resource, error) {
	ecsResourceDetector := ecs.NewResourceDetector()
	ecsResource, err := ecsResourceDetector.Detect(context.Background())
	if err != nil {
		slog.Error("ecs detection failed", slog.String("err", err.Error()))
	}
	mergedResource, err := resource.Merge(ecsResource, resource.Default())
	if err != nil {
		slog.Error("failed to merge resources", slog.String("err", err.Error()))
	}
	keyValue, found := ecsResource.Set().Value("container.id")
	var serviceId string
	if found {
		serviceId = keyValue.AsString()
	} else {
		serviceId = uuid.New().String()
	}
	return resource.Merge(mergedResource,
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Env),
			semconv.ServiceInstanceID(serviceId),
		))
}

func newMetricExporter(ctx context.Context, cfg *config.TelemetryConfig) (sdkmetric.Exporter, error) {
	return otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.CollectorUrl),
		otlpmetrichttp.WithInsecure())
}

func newMeterProvider(meterExporter sdkmetric.Exporter, resource resource.Resource) *sdkmetric.MeterProvider {
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(meterExporter)),
		sdkmetric.WithResource(&resource),
	)
	return meterProvider
}
