// Package metrics exposes the OpenTelemetry instruments the server
// records. The global meter provider is a no-op unless a metrics SDK is
// installed in the process, so recording is always safe.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/thebtf/tracehook"

// Instruments bundles the server's counters and histograms.
type Instruments struct {
	reports       metric.Int64Counter
	reportLatency metric.Float64Histogram
	tokensIssued  metric.Int64Counter
	tokensRevoked metric.Int64Counter
	authFailures  metric.Int64Counter
}

var (
	once sync.Once
	inst *Instruments
)

// Get returns the process-wide instruments, creating them on first use.
func Get() *Instruments {
	once.Do(func() {
		inst = newInstruments(otel.Meter(meterName))
	})
	return inst
}

func newInstruments(meter metric.Meter) *Instruments {
	i := &Instruments{}
	var err error

	if i.reports, err = meter.Int64Counter("tracehook.reports",
		metric.WithDescription("Usage reports handled, by delivery status")); err != nil {
		log.Warn().Err(err).Msg("Failed to create reports counter")
	}
	if i.reportLatency, err = meter.Float64Histogram("tracehook.report.duration",
		metric.WithDescription("Report handling latency"),
		metric.WithUnit("ms")); err != nil {
		log.Warn().Err(err).Msg("Failed to create report latency histogram")
	}
	if i.tokensIssued, err = meter.Int64Counter("tracehook.tokens.issued",
		metric.WithDescription("Tokens issued")); err != nil {
		log.Warn().Err(err).Msg("Failed to create tokens issued counter")
	}
	if i.tokensRevoked, err = meter.Int64Counter("tracehook.tokens.revoked",
		metric.WithDescription("Tokens revoked")); err != nil {
		log.Warn().Err(err).Msg("Failed to create tokens revoked counter")
	}
	if i.authFailures, err = meter.Int64Counter("tracehook.auth.failures",
		metric.WithDescription("Rejected requests, by reason")); err != nil {
		log.Warn().Err(err).Msg("Failed to create auth failures counter")
	}
	return i
}

// ReportHandled records one report outcome and its handling latency.
func (i *Instruments) ReportHandled(ctx context.Context, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	if i.reports != nil {
		i.reports.Add(ctx, 1, attrs)
	}
	if i.reportLatency != nil {
		i.reportLatency.Record(ctx, float64(elapsed.Microseconds())/1000.0, attrs)
	}
}

// TokenIssued records one issued token.
func (i *Instruments) TokenIssued(ctx context.Context) {
	if i.tokensIssued != nil {
		i.tokensIssued.Add(ctx, 1)
	}
}

// TokenRevoked records one revoked token.
func (i *Instruments) TokenRevoked(ctx context.Context) {
	if i.tokensRevoked != nil {
		i.tokensRevoked.Add(ctx, 1)
	}
}

// AuthFailure records one rejected request with the rejection reason.
func (i *Instruments) AuthFailure(ctx context.Context, reason string) {
	if i.authFailures != nil {
		i.authFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}
