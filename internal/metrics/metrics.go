// Package metrics exposes watcher counters over an optional Prometheus endpoint.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cycles counts poll cycles started, successful or not.
	Cycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alarm_watcher_cycles_total",
		Help: "Poll cycles started.",
	})

	// FetchFailures counts cycles that ended at the fetch stage.
	FetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alarm_watcher_fetch_failures_total",
		Help: "Poll cycles aborted by a PLC fetch failure.",
	})

	// AlarmsDetected counts newly detected alarms.
	AlarmsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alarm_watcher_alarms_detected_total",
		Help: "Alarms newly detected by reconciliation.",
	})

	// NotificationsSent counts delivered notifications.
	NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alarm_watcher_notifications_sent_total",
		Help: "Alarm notifications delivered.",
	})

	// NotifyFailures counts failed notification attempts.
	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alarm_watcher_notify_failures_total",
		Help: "Alarm notification attempts that failed.",
	})

	// StateSaveFailures counts failed seen-set persists.
	StateSaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alarm_watcher_state_save_failures_total",
		Help: "Seen-set save operations that failed.",
	})
)

// shutdownTimeout bounds the listener drain on context cancellation.
const shutdownTimeout = 5 * time.Second

// Serve exposes /metrics on addr until ctx is canceled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
