// Package telemetry provides observability for blueprint processes.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry),
// Prometheus metrics and an in-process event publisher behind a single
// Telemetry value.
//
// # Usage
//
// Build telemetry from the bootstrap settings at startup:
//
//	tel, err := telemetry.NewTelemetry(telemetry.FromSettings(settings.Telemetry))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Observers
//
// Telemetry implements catalog.Observer, external.LookupObserver and
// engine.TaskObserver. Passing the same value to each component counts
// catalog additions, spec creations, external config lookups and finished
// tasks, and publishes an event for each failure:
//
//	store, _ := catalog.NewStore(ctx, logger, catalog.Options{Observer: tel})
//	registry.SetObserver(tel)
//	sched := engine.NewTaskScheduler(8, logger, engine.WithObserver(tel))
//
// # Logging
//
//	logger := tel.Logger.NewComponentLogger("catalog").WithItemID("web-app:1.0")
//	logger.Info("Item added")
//
// Log levels: trace, debug, info, warn, error, fatal.
//
// # Tracing
//
// An enabled tracer installs its provider globally so packages using
// otel.Tracer are exported too. Supported exporters are otlp (gRPC),
// stdout and none.
//
//	op := telemetry.StartOperation(ctx, "catalog.create_spec",
//	    telemetry.AttrItemID.String(id))
//	defer func() { op.End(err) }()
//
// # Metrics
//
// Metrics live in a private registry under the configured namespace:
//
//	blueprint_catalog_items_added_total{kind}
//	blueprint_catalog_specs_created_total{kind,strategy,status}
//	blueprint_external_config_lookups_total{provider,outcome}
//	blueprint_scheduler_tasks_completed_total{status,transient}
//	blueprint_scheduler_task_duration_seconds{transient}
//	blueprint_errors_by_kind_total{kind}
//	blueprint_errors_by_code_total{code}
//
// Metrics.NewServer returns an http.Server for the metrics endpoint when
// a listen address is configured.
//
// # Events
//
// Events are delivered synchronously to subscribers unless EnableAsync is
// set:
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Type, e.Message)
//	}, telemetry.FilterByLevel(telemetry.EventLevelError))
package telemetry
