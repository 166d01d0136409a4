package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PaymentCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "payment_callbacks_total",
		Help:      "Payment provider callbacks by outcome (applied, duplicate, needs_review, unknown_transaction).",
	}, []string{"result"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "notifications_total",
		Help:      "Notification deliveries by outcome (sent, failed, dropped).",
	}, []string{"kind", "result"})

	TicketMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "ticket_messages_total",
		Help:      "Support messages appended, by sender type.",
	}, []string{"sender_type"})

	RealtimePublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "realtime_publish_failures_total",
		Help:      "Ticket messages that were stored but could not be fanned out.",
	})

	RealtimeEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "realtime_evicted_subscribers_total",
		Help:      "Live viewers dropped because they stopped draining their feed.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
