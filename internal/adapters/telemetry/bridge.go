package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/respawn/internal/core/ports"
)

var _ sdktrace.SpanProcessor = (*Bridge)(nil)

// Bridge implements sdktrace.SpanProcessor by reporting finished spans to the logger.
// Spans slower than the threshold are reported as warnings; the rest at debug level.
type Bridge struct {
	logger    ports.Logger
	threshold time.Duration
}

// NewBridge returns a new Bridge. A zero threshold never warns.
func NewBridge(logger ports.Logger, threshold time.Duration) *Bridge {
	return &Bridge{
		logger:    logger,
		threshold: threshold,
	}
}

// OnStart is called when a span starts.
func (b *Bridge) OnStart(_ context.Context, _ sdktrace.ReadWriteSpan) {}

// OnEnd is called when a span ends.
func (b *Bridge) OnEnd(s sdktrace.ReadOnlySpan) {
	if b.logger == nil || !s.SpanContext().IsValid() {
		return
	}

	elapsed := s.EndTime().Sub(s.StartTime())

	attrs := make([]string, 0, len(s.Attributes()))
	for _, kv := range s.Attributes() {
		attrs = append(attrs, string(kv.Key)+"="+kv.Value.Emit())
	}

	msg := fmt.Sprintf("%s took %s", s.Name(), elapsed.Round(time.Microsecond))
	if len(attrs) > 0 {
		msg += " " + strings.Join(attrs, " ")
	}
	if s.Status().Code == codes.Error {
		msg += " (failed)"
	}

	if b.threshold > 0 && elapsed >= b.threshold {
		b.logger.Warn("slow " + msg)
		return
	}
	b.logger.Debug(msg)
}

// Shutdown is called when the SDK shuts down.
func (b *Bridge) Shutdown(_ context.Context) error {
	return nil
}

// ForceFlush exports all ended spans that have not yet been exported.
func (b *Bridge) ForceFlush(_ context.Context) error {
	return nil
}
