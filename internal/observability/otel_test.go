package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/tbourn/internship-backend/internal/config"
)

func keepGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func enabled(name string) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    true,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: 1,
	}
}

func TestSetupOTel_DisabledLeavesGlobals(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{Endpoint: "ignored:4317"}, "dev")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestSetupOTel_InstallsProvider(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.OTELConfig
	}{
		{"insecure", enabled("internship-backend")},
		{"tls", func() config.OTELConfig { c := enabled("internship-backend"); c.Insecure = false; return c }()},
		{"ratio out of range", func() config.OTELConfig { c := enabled("internship-backend"); c.SampleRatio = 3; return c }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keepGlobals(t)

			shutdown, err := SetupOTel(context.Background(), tt.cfg, "v1.0.0")
			require.NoError(t, err)
			t.Cleanup(func() { _ = shutdown(context.Background()) })

			_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
			assert.True(t, ok, "expected the SDK provider")

			ctx, span := otel.Tracer("services/application").Start(context.Background(), "Submit")
			carrier := propagation.MapCarrier{}
			otel.GetTextMapPropagator().Inject(ctx, carrier)
			span.End()
			assert.NotEmpty(t, carrier.Get("traceparent"))
		})
	}
}

func TestSetupOTel_CanceledContextIsLazy(t *testing.T) {
	keepGlobals(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	shutdown, err := SetupOTel(ctx, enabled("internship-cli"), "dev")
	require.NoError(t, err)

	sctx, scancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer scancel()
	assert.NoError(t, shutdown(sctx))
}

func TestSetupOTel_FailuresKeepGlobals(t *testing.T) {
	origExp, origRes := newOTLPExporterFn, newServiceResourceFn
	t.Cleanup(func() { newOTLPExporterFn, newServiceResourceFn = origExp, origRes })

	tests := []struct {
		name  string
		patch func()
		want  string
	}{
		{"exporter", func() {
			newOTLPExporterFn = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
				return nil, errors.New("collector unreachable")
			}
		}, "otlp exporter"},
		{"resource", func() {
			newServiceResourceFn = func(context.Context, string, string) (*resource.Resource, error) {
				return nil, errors.New("bad attributes")
			}
		}, "otel resource"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keepGlobals(t)
			newOTLPExporterFn, newServiceResourceFn = origExp, origRes
			tt.patch()

			tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
			_, err := SetupOTel(context.Background(), enabled("internship-backend"), "v0")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, tp, otel.GetTracerProvider())
			assert.Equal(t, prop, otel.GetTextMapPropagator())
		})
	}
}

func TestServiceResource_Attributes(t *testing.T) {
	res, err := newServiceResourceFn(context.Background(), "internship-backend", "v2.1.0")
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "internship-backend", attrs[string(semconv.ServiceNameKey)])
	assert.Equal(t, "v2.1.0", attrs[string(semconv.ServiceVersionKey)])
	assert.Equal(t, serviceNamespace, attrs[string(semconv.ServiceNamespaceKey)])
}

func TestClampRatio(t *testing.T) {
	for in, want := range map[float64]float64{-1: 0, 0: 0, 0.25: 0.25, 1: 1, 7: 1} {
		assert.Equal(t, want, clampRatio(in), "clampRatio(%v)", in)
	}
}

func TestExporterOptions(t *testing.T) {
	assert.Len(t, exporterOptions(config.OTELConfig{Endpoint: "collector:4317", Insecure: true}), 2)
	assert.Len(t, exporterOptions(config.OTELConfig{Endpoint: "collector:4317"}), 2)
}

func TestDomainCounters(t *testing.T) {
	before := testutil.ToFloat64(Submissions.WithLabelValues("paid", "created"))
	Submissions.WithLabelValues("paid", "created").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Submissions.WithLabelValues("paid", "created")))

	Transitions.WithLabelValues("applied", "selected").Inc()
	Documents.WithLabelValues("certificate", "denied").Inc()
	Emails.WithLabelValues("reminder", "sent").Inc()
	ReminderSweeps.WithLabelValues("ran").Inc()
	for name, c := range map[string]prometheus.Collector{
		"transitions": Transitions,
		"documents":   Documents,
		"emails":      Emails,
		"sweeps":      ReminderSweeps,
	} {
		assert.GreaterOrEqual(t, testutil.CollectAndCount(c), 1, name)
	}
}
