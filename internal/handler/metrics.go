package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/citafacil/citafacil/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "citafacil_users_registered_total %d\n", snap.UsersRegistered)
	writeMetric(w, "citafacil_logins_total{result=\"success\"} %d\n", snap.LoginSuccesses)
	writeMetric(w, "citafacil_logins_total{result=\"failure\"} %d\n", snap.LoginFailures)
	writeMetric(w, "citafacil_logouts_total %d\n", snap.Logouts)

	writeMetric(w, "citafacil_appointments_created_total %d\n", snap.AppointmentsCreated)
	writeMetric(w, "citafacil_appointments_deleted_total %d\n", snap.AppointmentsDeleted)

	writeMetric(w, "citafacil_reminders_armed_total %d\n", snap.RemindersArmed)
	writeMetric(w, "citafacil_reminders_fired_total %d\n", snap.RemindersFired)
	writeMetric(w, "citafacil_reminders_cancelled_total %d\n", snap.RemindersCancelled)

	writeMetric(w, "citafacil_elaboration_duration_seconds_count %d\n", snap.ElaborationDurationCount)
	writeMetric(w, "citafacil_elaboration_duration_seconds_sum %.6f\n", float64(snap.ElaborationDurationTotalNs)/1e9)
	writeMetric(w, "citafacil_elaboration_failures_total %d\n", snap.ElaborationFailures)

	for _, result := range sortedKeys(snap.WebhookDeliveries) {
		writeMetric(w, "citafacil_webhook_deliveries_total{result=%q} %d\n", result, snap.WebhookDeliveries[result])
	}

	for _, op := range sortedKeys(snap.StorageErrors) {
		writeMetric(w, "citafacil_storage_errors_total{op=%q} %d\n", op, snap.StorageErrors[op])
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
