package otel

import (
	"time"

	hostmetrics "go.opentelemetry.io/contrib/instrumentation/host"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
)

// StartRuntimeMetrics starts Go runtime and host metrics collection. A feed
// process that falls behind usually shows it first in GC pressure and CPU, so
// these ship alongside the book counters.
func StartRuntimeMetrics() error {
	if err := runtime.Start(
		runtime.WithMinimumReadMemStatsInterval(time.Second * 30),
	); err != nil {
		return err
	}

	if err := hostmetrics.Start(); err != nil {
		return err
	}

	return nil
}
