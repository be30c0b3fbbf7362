// Package otelpgz provides OpenTelemetry instrumentation helpers for pgz.
package otelpgz

import (
	"go.opentelemetry.io/otel/attribute"
)

// Name of instrumentation.
const Name = "github.com/go-faster/pgz"

const (
	RunIDKey     = attribute.Key("pgz.run.id")
	ModeKey      = attribute.Key("pgz.mode")
	MethodKey    = attribute.Key("pgz.method")
	WorkersKey   = attribute.Key("pgz.workers")
	BlockSizeKey = attribute.Key("pgz.block.size")
	StageKey     = attribute.Key("pgz.stage")
)

// RunID attribute.
func RunID(v string) attribute.KeyValue {
	return attribute.KeyValue{
		Key:   RunIDKey,
		Value: attribute.StringValue(v),
	}
}

// Mode attribute.
func Mode(v string) attribute.KeyValue {
	return attribute.KeyValue{
		Key:   ModeKey,
		Value: attribute.StringValue(v),
	}
}

// Method attribute.
func Method(v string) attribute.KeyValue {
	return attribute.KeyValue{
		Key:   MethodKey,
		Value: attribute.StringValue(v),
	}
}

// Workers attribute.
func Workers(v int) attribute.KeyValue {
	return attribute.KeyValue{
		Key:   WorkersKey,
		Value: attribute.IntValue(v),
	}
}

// BlockSize attribute.
func BlockSize(v int) attribute.KeyValue {
	return attribute.KeyValue{
		Key:   BlockSizeKey,
		Value: attribute.IntValue(v),
	}
}

// Stage attribute.
func Stage(v string) attribute.KeyValue {
	return attribute.KeyValue{
		Key:   StageKey,
		Value: attribute.StringValue(v),
	}
}
