package observability

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds OTel providers and configuration.
type Telemetry struct {
	config         *Config
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metrics        *Metrics
	meterReader    any // Stored as any to allow type assertion for ForceFlush
	db             *sql.DB
	shutdownFunc   func(context.Context) error
	_shutdownOnce  sync.Once
}

// Init initializes OpenTelemetry with the given configuration.
// Returns Telemetry manager, cleanup function, and error.
func Init(ctx context.Context, cfg *Config) (*Telemetry, func(), error) {
	// If disabled, return a no-op telemetry manager
	if !cfg.ShouldEnable() {
		return &Telemetry{config: cfg}, func() {}, nil
	}

	tel := &Telemetry{config: cfg}

	if cfg.TracesEnabled {
		tp, err := initTracerProvider(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		tel.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	if cfg.MetricsEnabled {
		mp, reader, err := initMeterProvider(ctx, cfg)
		if err != nil {
			if tp, ok := tel.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
				_ = tp.Shutdown(ctx)
			}
			return nil, nil, err
		}
		tel.meterProvider = mp
		tel.meterReader = reader
		otel.SetMeterProvider(mp)

		metrics, err := InitMetrics(mp)
		if err != nil {
			if tp, ok := tel.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
				_ = tp.Shutdown(ctx)
			}
			if reader != nil {
				if pr, ok := reader.(interface{ ForceFlush(context.Context) error }); ok {
					_ = pr.ForceFlush(ctx)
				}
			}
			if mp, ok := mp.(interface{ Shutdown(context.Context) error }); ok {
				_ = mp.Shutdown(ctx)
			}
			return nil, nil, err
		}
		tel.metrics = metrics
	}

	tel.shutdownFunc = func(ctx context.Context) error {
		var errs []error
		if tel.tracerProvider != nil {
			if tp, ok := tel.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
				if err := tp.Shutdown(ctx); err != nil {
					errs = append(errs, err)
				}
			}
		}
		if tel.meterReader != nil {
			// Force flush metrics before shutdown (only works for PeriodicReader)
			if pr, ok := tel.meterReader.(interface{ ForceFlush(context.Context) error }); ok {
				if err := pr.ForceFlush(ctx); err != nil {
					errs = append(errs, err)
				}
			}
		}
		if tel.meterProvider != nil {
			if mp, ok := tel.meterProvider.(interface{ Shutdown(context.Context) error }); ok {
				if err := mp.Shutdown(ctx); err != nil {
					errs = append(errs, err)
				}
			}
		}
		if len(errs) > 0 {
			return errs[0]
		}
		return nil
	}

	return tel, tel.Cleanup, nil
}

// SetDB attaches a database for local metric snapshots. Optional; without
// it StoreMetric is a no-op.
func (t *Telemetry) SetDB(db *sql.DB) {
	t.db = db
}

// StoreMetric writes a metric sample to the local metrics table.
func (t *Telemetry) StoreMetric(timestamp int64, name string, value float64, tags string) {
	if t.db == nil {
		return
	}
	_, _ = t.db.Exec(`
		INSERT OR REPLACE INTO _observability_metrics (timestamp, metric_name, value, tags)
		VALUES (?, ?, ?, ?)
	`, timestamp, name, value, tags)
}

// TracerProvider returns the tracer provider (or noop if disabled).
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	if t.tracerProvider != nil {
		return t.tracerProvider
	}
	return trace.NewNoopTracerProvider()
}

// MeterProvider returns the meter provider (or noop if disabled).
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	if t.meterProvider != nil {
		return t.meterProvider
	}
	return otel.GetMeterProvider()
}

// Metrics returns the metric instruments (or nil if disabled).
func (t *Telemetry) Metrics() *Metrics {
	return t.metrics
}

// Shutdown flushes and closes all providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var err error
	t._shutdownOnce.Do(func() {
		if t.shutdownFunc != nil {
			err = t.shutdownFunc(ctx)
		}
	})
	return err
}

// Cleanup is a convenience function for defer cleanup.
func (t *Telemetry) Cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = t.Shutdown(ctx)
}

// Config returns the telemetry configuration.
func (t *Telemetry) Config() *Config {
	return t.config
}

// shutdownTimeout is the maximum time to wait for shutdown.
const shutdownTimeout = 5 * time.Second
