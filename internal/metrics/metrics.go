// ABOUTME: Prometheus collectors for the assistant
// ABOUTME: Registered on the default registry and served at /metrics

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command outcomes
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeTimeout  = "timeout"
)

var (
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "familiar_commands_total",
			Help: "Commands handled, by plugin and outcome",
		},
		[]string{"plugin", "origin", "outcome"},
	)

	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "familiar_handler_duration_seconds",
			Help:    "Plugin handler duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"plugin"},
	)

	AsyncResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "familiar_async_results_total",
			Help: "Background plugin results published, by plugin and outcome",
		},
		[]string{"plugin", "outcome"},
	)

	RemindersFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "familiar_reminders_fired_total",
			Help: "Reminders claimed and published by the scheduler",
		},
	)

	SchedulerPollErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "familiar_scheduler_poll_errors_total",
			Help: "Scheduler ticks that failed on a storage error",
		},
	)

	SchedulerDegraded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "familiar_scheduler_degraded",
			Help: "1 while the scheduler is in degraded mode",
		},
	)

	BridgeEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "familiar_bridge_events_published_total",
			Help: "Events published to the notification bridge, by kind",
		},
		[]string{"kind"},
	)

	BridgeEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "familiar_bridge_events_dropped_total",
			Help: "Events dropped from full subscriber inboxes, by subscriber",
		},
		[]string{"subscriber"},
	)

	BridgeSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "familiar_bridge_subscribers",
			Help: "Active notification bridge subscriptions",
		},
	)

	PluginsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "familiar_plugins_loaded",
			Help: "Plugins in the active registry",
		},
	)

	PluginReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "familiar_plugin_reloads_total",
			Help: "Registry reloads, by outcome",
		},
		[]string{"outcome"},
	)

	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "familiar_webhooks_total",
			Help: "Webhook deliveries, by source and outcome",
		},
		[]string{"source", "outcome"},
	)
)
