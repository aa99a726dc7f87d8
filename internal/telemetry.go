package internal

import (
	"context"
	"strconv"
	"sync"
)

// Telemetry hooks for category changes, backups and filtering. The default
// emitter drops everything; binaries register a real one at startup.

type telemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

const (
	MetricCategoryChanges = "category_changes_total"
	MetricBackups         = "backups_total"
	MetricBackupFields    = "backup_fields"
	MetricRestoredValues  = "restored_values_total"
	MetricFilterLatency   = "filter_latency_ms"
	MetricFilterMatches   = "filter_matches"
)

var (
	teleMu   sync.Mutex
	teleImpl telemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {}
)

// RegisterTelemetryEmitter installs fn as the emitter. A nil fn restores the no-op emitter.
func RegisterTelemetryEmitter(fn func(ctx context.Context, name string, labels map[string]string, value any)) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emit(ctx context.Context, name string, labels map[string]string, value any) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	fn(ctx, name, labels, value)
}

// EmitCategoryChange counts category transitions ("assign", "replace", "remove").
func EmitCategoryChange(ctx context.Context, transition string) {
	emit(ctx, MetricCategoryChanges, map[string]string{"transition": transition}, int64(1))
}

// EmitBackup counts backups and records how many values were captured.
func EmitBackup(ctx context.Context, created bool, fields int) {
	emit(ctx, MetricBackups, map[string]string{"created": strconv.FormatBool(created)}, int64(1))
	if created {
		emit(ctx, MetricBackupFields, nil, int64(fields))
	}
}

func EmitRestore(ctx context.Context, restored int) {
	emit(ctx, MetricRestoredValues, nil, int64(restored))
}

// EmitFilterLatency records filter latency in milliseconds for a path ("memory" or "pushdown").
func EmitFilterLatency(ctx context.Context, path string, ms int64) {
	emit(ctx, MetricFilterLatency, map[string]string{"path": path}, ms)
}

func EmitFilterMatches(ctx context.Context, path string, matches int) {
	emit(ctx, MetricFilterMatches, map[string]string{"path": path}, int64(matches))
}
