package pgz

import (
	"runtime"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/go-faster/pgz/compress"
)

// Progress of input consumption, reported by reader.
type Progress struct {
	RunID  string
	Blocks int
	// Bytes consumed from input.
	Bytes int64
	// Total input size, zero if unknown.
	Total int64
}

// Percent of input consumed, or -1 if total is unknown.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return -1
	}
	return int(p.Bytes * 100 / p.Total)
}

// Options for pipeline.
type Options struct {
	Logger *zap.Logger

	// Method selects codec and container, gzip by default.
	Method compress.Method
	// Level of compression, zero is codec default.
	Level compress.Level
	// BlockSize is raw block size, DefaultBlockSize by default.
	BlockSize int
	// Workers is the transform pool size, logical CPU count by default.
	Workers int
	// Window limits count of blocks buffered between stages, 4 blocks
	// per worker by default. Negative means no limit.
	Window int

	// RunID identifies run in logs and traces, defaults to new UUIDv4.
	RunID string
	// OnProgress is optional progress handler, called by reader stage
	// after every block.
	OnProgress func(p Progress)

	// Instrumentation.
	OpenTelemetryInstrumentation bool
	TracerProvider               trace.TracerProvider
	MeterProvider                metric.MeterProvider
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Window == 0 {
		o.Window = o.Workers * 4
	}
	if o.RunID == "" {
		o.RunID = uuid.New().String()
	}
	if o.OpenTelemetryInstrumentation {
		if o.TracerProvider == nil {
			o.TracerProvider = otel.GetTracerProvider()
		}
		if o.MeterProvider == nil {
			o.MeterProvider = otel.GetMeterProvider()
		}
	}
}

func (o Options) validate() error {
	if o.BlockSize < 0 || o.BlockSize > compress.MaxDataSize {
		return errors.Errorf("block size %d should be in (0, %d]", o.BlockSize, compress.MaxDataSize)
	}
	if !o.Method.IsAMethod() {
		return errors.Errorf("unknown method %v", o.Method)
	}
	return nil
}
