// Package metrics defines and registers all custom Prometheus metrics
// for the content platform's identity subsystem. It is the single
// source of truth for metric names, labels, and help strings.
//
// All metrics register with the default Prometheus registry at import
// time via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "platform"

// ── Identity metrics ─────────────────────────────────────────────────────────

// RegistrationsTotal counts successfully created accounts.
// Label:
//   - role: the role the account was created with
var RegistrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of accounts registered, by role.",
	},
	[]string{"role"},
)

// LoginsTotal counts login attempts.
// Label:
//   - result: "success", "invalid_credentials", or "throttled"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// PasswordChangesTotal counts password change attempts.
// Label:
//   - result: "success" or "wrong_password"
var PasswordChangesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "password_changes_total",
		Help:      "Total number of password change attempts, by result.",
	},
	[]string{"result"},
)

// UsersByRole tracks the current number of users per role, refreshed
// whenever the role aggregation endpoint runs.
var UsersByRole = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "users_by_role",
		Help:      "Current number of user accounts per role.",
	},
	[]string{"role"},
)

// ── Audit trail metrics ──────────────────────────────────────────────────────

// AuditEventsTotal counts audit events persisted successfully.
// Label:
//   - action: the audit action (e.g. "logged_in", "password_changed")
var AuditEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_events_total",
		Help:      "Total number of audit events persisted, by action.",
	},
	[]string{"action"},
)

// AuditQueueDepth tracks the current number of audit events waiting in
// each dispatcher worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var AuditQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_queue_depth",
		Help:      "Current number of audit events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)
