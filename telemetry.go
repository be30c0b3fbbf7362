package pgz

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/go-faster/pgz/otelpgz"
)

type telemetry struct {
	tracer trace.Tracer
	attrs  []attribute.KeyValue

	blocks   metric.Int64Counter
	bytesIn  metric.Int64Counter
	bytesOut metric.Int64Counter
	duration metric.Float64Histogram
}

func newTelemetry(mode Mode, opt Options) (*telemetry, error) {
	var (
		tp trace.TracerProvider = tracenoop.NewTracerProvider()
		mp metric.MeterProvider = metricnoop.NewMeterProvider()
	)
	if opt.OpenTelemetryInstrumentation {
		tp = opt.TracerProvider
		mp = opt.MeterProvider
	}
	t := &telemetry{
		tracer: tp.Tracer(otelpgz.Name,
			trace.WithInstrumentationVersion(otelpgz.SemVersion()),
		),
		attrs: []attribute.KeyValue{
			otelpgz.Mode(mode.String()),
			otelpgz.Method(opt.Method.String()),
		},
	}
	meter := mp.Meter(otelpgz.Name,
		metric.WithInstrumentationVersion(otelpgz.SemVersion()),
	)

	var err error
	if t.blocks, err = meter.Int64Counter("pgz.blocks",
		metric.WithDescription("Blocks transformed by workers"),
	); err != nil {
		return nil, errors.Wrap(err, "blocks")
	}
	if t.bytesIn, err = meter.Int64Counter("pgz.bytes.read",
		metric.WithDescription("Bytes consumed from input"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, errors.Wrap(err, "bytes read")
	}
	if t.bytesOut, err = meter.Int64Counter("pgz.bytes.written",
		metric.WithDescription("Bytes written to output"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, errors.Wrap(err, "bytes written")
	}
	if t.duration, err = meter.Float64Histogram("pgz.run.duration",
		metric.WithDescription("Pipeline run duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, errors.Wrap(err, "duration")
	}

	return t, nil
}

func (t *telemetry) start(ctx context.Context, opt Options) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "pgz.Run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(t.attrs...),
		trace.WithAttributes(
			otelpgz.RunID(opt.RunID),
			otelpgz.Workers(opt.Workers),
			otelpgz.BlockSize(opt.BlockSize),
		),
	)
}

func (t *telemetry) block(ctx context.Context) {
	t.blocks.Add(ctx, 1, metric.WithAttributes(t.attrs...))
}

func (t *telemetry) read(ctx context.Context, n int) {
	t.bytesIn.Add(ctx, int64(n), metric.WithAttributes(t.attrs...))
}

func (t *telemetry) wrote(ctx context.Context, n int) {
	t.bytesOut.Add(ctx, int64(n), metric.WithAttributes(t.attrs...))
}

func (t *telemetry) end(ctx context.Context, span trace.Span, d time.Duration, err error) {
	t.duration.Record(ctx, d.Seconds(), metric.WithAttributes(t.attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// stageEvent records stage failure on span from ctx.
func stageEvent(ctx context.Context, stage string, err error) {
	trace.SpanFromContext(ctx).AddEvent("stage failed", trace.WithAttributes(
		otelpgz.Stage(stage),
		attribute.String("error", err.Error()),
	))
}
