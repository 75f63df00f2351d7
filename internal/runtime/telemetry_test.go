package runtime

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inchinet/nativespeaker/internal/capability"
	"github.com/inchinet/nativespeaker/internal/config"
)

func TestTelemetryExportsCapabilityMetrics(t *testing.T) {
	var spans bytes.Buffer
	prev := spanOutput
	spanOutput = &spans
	t.Cleanup(func() { spanOutput = prev })

	cfg := config.Default()
	cfg.Telemetry.TraceExporter = "stdout"
	tel, err := setupTelemetry(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	report := capability.Report{
		Synthesis:   capability.Check{Status: capability.Available},
		Recognition: capability.Check{Status: capability.Unavailable},
	}
	if err := capability.RegisterMetrics(tel.Meter("capability"), report); err != nil {
		t.Fatalf("register: %v", err)
	}

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `capability="synthesis"`) || !strings.Contains(body, `capability="recognition"`) {
		t.Fatalf("capability gauge missing from metrics:\n%s", body)
	}

	_, span := tel.tracerProvider.Tracer("test").Start(context.Background(), "narration.speak")
	span.End()
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(spans.String(), "narration.speak") {
		t.Fatalf("expected span on the span writer, got %q", spans.String())
	}
}

func TestTelemetrySetupIsRepeatable(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.TraceExporter = "none"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for i := 0; i < 2; i++ {
		tel, err := setupTelemetry(cfg, logger)
		if err != nil {
			t.Fatalf("setup %d: %v", i, err)
		}
		if err := capability.RegisterMetrics(tel.Meter("capability"), capability.Report{}); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
		if err := tel.Shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown %d: %v", i, err)
		}
	}
}
