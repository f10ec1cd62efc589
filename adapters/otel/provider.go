package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Config struct {
	// Endpoint 是 OTLP/HTTP collector 的 URL，為空時不啟用追蹤
	Endpoint    string
	ServiceName string
	// InstanceID 寫入 service.instance.id，方便區分同一服務的多個實例
	InstanceID string
}

// Setup 依設定註冊全域 tracer provider，回傳的 shutdown 會送出尚未匯出的 span。
// Endpoint 為空時不註冊任何 provider，shutdown 不做任何事
func Setup(ctx context.Context, config Config) (shutdown func(context.Context) error, err error) {
	const op = "otel.Setup"
	noop := func(context.Context) error { return nil }
	if config.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(config.Endpoint))
	if err != nil {
		return noop, fmt.Errorf("[%s] Fail to create exporter, err=%w", op, err)
	}

	attrs := []resource.Option{resource.WithAttributes(semconv.ServiceName(config.ServiceName))}
	if config.InstanceID != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceInstanceID(config.InstanceID)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return noop, fmt.Errorf("[%s] Fail to create resource, err=%w", op, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}
