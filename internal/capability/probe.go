// Package capability decides once at startup which speech capabilities this
// host offers. Callers dispatch on the resulting Status instead of checking for
// backends at call time.
package capability

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/inchinet/nativespeaker/internal/config"
	"github.com/mattn/go-shellwords"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Status int

const (
	Unavailable Status = iota
	Available
)

func (s Status) String() string {
	if s == Available {
		return "available"
	}
	return "unavailable"
}

// Check is the probe result for one capability.
type Check struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (c Check) Available() bool { return c.Status == Available }

type Report struct {
	Synthesis   Check `json:"synthesis"`
	Recognition Check `json:"recognition"`
}

var lookPath = exec.LookPath

// Probe inspects the configured backends. captureReady reports whether a
// microphone source exists; recognition is useless without one.
func Probe(cfg config.Config, captureReady bool) Report {
	return Report{
		Synthesis:   probeMode(cfg.TTS.Mode, cfg.TTS.Command),
		Recognition: probeRecognition(cfg.STT, captureReady),
	}
}

func probeRecognition(cfg config.STTConfig, captureReady bool) Check {
	check := probeMode(cfg.Mode, cfg.Command)
	if check.Available() && !captureReady {
		return Check{Status: Unavailable, Reason: "no audio capture source"}
	}
	return check
}

func probeMode(mode, command string) Check {
	switch mode {
	case "none", "":
		return Check{Status: Unavailable, Reason: "disabled by configuration"}
	case "exec":
		args, err := shellwords.Parse(command)
		if err != nil || len(args) == 0 {
			return Check{Status: Unavailable, Reason: fmt.Sprintf("invalid command %q", command)}
		}
		if _, err := lookPath(args[0]); err != nil {
			return Check{Status: Unavailable, Reason: err.Error()}
		}
		return Check{Status: Available}
	default:
		return Check{Status: Available}
	}
}

// RegisterMetrics exports the report as observable gauges.
func RegisterMetrics(meter metric.Meter, report Report) error {
	gauge, err := meter.Int64ObservableGauge("nativespeaker.capability.available",
		metric.WithDescription("1 when the capability is available on this host"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, int64(report.Synthesis.Status), metric.WithAttributes(attribute.String("capability", "synthesis")))
		obs.ObserveInt64(gauge, int64(report.Recognition.Status), metric.WithAttributes(attribute.String("capability", "recognition")))
		return nil
	}, gauge)
	return err
}
