package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec

	chatConnectionsActive  prometheus.Gauge
	chatConnectionsTotal   prometheus.Counter
	chatMessagesSent       *prometheus.CounterVec
	chatTypingBroadcasts   prometheus.Counter
	realtimeSubscribeRetry *prometheus.CounterVec
	realtimeEventsTotal    *prometheus.CounterVec

	paymentsTotal         *prometheus.CounterVec
	cashbackAwardedNaira  prometheus.Counter
	attachmentUploads     *prometheus.CounterVec
	attachmentLatency     prometheus.Histogram
	walletOperationsTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyquest_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studyquest_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyquest_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		chatConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "studyquest_chat_connections_active",
			Help: "Number of open chat websocket sessions.",
		})

		chatConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studyquest_chat_connections_total",
			Help: "Total chat websocket sessions accepted.",
		})

		chatMessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyquest_chat_messages_sent_total",
			Help: "Chat messages stored, partitioned by whether they carried attachments.",
		}, []string{"kind"})

		chatTypingBroadcasts = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studyquest_chat_typing_broadcasts_total",
			Help: "Typing signals broadcast to chat groups.",
		})

		realtimeSubscribeRetry = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyquest_realtime_subscribe_retries_total",
			Help: "Realtime subscription attempts that failed and were retried or abandoned.",
		}, []string{"outcome"})

		realtimeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyquest_realtime_events_total",
			Help: "Realtime events published, partitioned by driver and event type.",
		}, []string{"driver", "type"})

		paymentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyquest_payments_total",
			Help: "Payment gateway operations partitioned by operation and outcome.",
		}, []string{"operation", "outcome"})

		cashbackAwardedNaira = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studyquest_cashback_awarded_naira_total",
			Help: "Cashback credited to user rewards, in naira.",
		})

		attachmentUploads = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyquest_attachment_uploads_total",
			Help: "Chat attachment uploads partitioned by outcome.",
		}, []string{"outcome"})

		attachmentLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "studyquest_attachment_upload_seconds",
			Help:    "Time spent storing chat attachments.",
			Buckets: prometheus.DefBuckets,
		})

		walletOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyquest_wallet_operations_total",
			Help: "Wallet operations partitioned by type and outcome.",
		}, []string{"type", "outcome"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			chatConnectionsActive,
			chatConnectionsTotal,
			chatMessagesSent,
			chatTypingBroadcasts,
			realtimeSubscribeRetry,
			realtimeEventsTotal,
			paymentsTotal,
			cashbackAwardedNaira,
			attachmentUploads,
			attachmentLatency,
			walletOperationsTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// ChatConnectionsActive exposes the gauge of open chat sessions.
func ChatConnectionsActive() prometheus.Gauge {
	RegisterMetrics()
	return chatConnectionsActive
}

// ChatConnectionsTotal exposes the counter of accepted chat sessions.
func ChatConnectionsTotal() prometheus.Counter {
	RegisterMetrics()
	return chatConnectionsTotal
}

// ChatMessagesSent exposes the counter of stored chat messages.
func ChatMessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return chatMessagesSent
}

// ChatTypingBroadcasts exposes the counter of typing signals.
func ChatTypingBroadcasts() prometheus.Counter {
	RegisterMetrics()
	return chatTypingBroadcasts
}

// RealtimeSubscribeRetries exposes the counter of failed subscription attempts.
func RealtimeSubscribeRetries() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeSubscribeRetry
}

// RealtimeEvents exposes the counter of published realtime events.
func RealtimeEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeEventsTotal
}

// Payments exposes the counter of payment gateway operations.
func Payments() *prometheus.CounterVec {
	RegisterMetrics()
	return paymentsTotal
}

// CashbackAwarded exposes the counter of credited cashback.
func CashbackAwarded() prometheus.Counter {
	RegisterMetrics()
	return cashbackAwardedNaira
}

// AttachmentUploads exposes the counter of attachment uploads.
func AttachmentUploads() *prometheus.CounterVec {
	RegisterMetrics()
	return attachmentUploads
}

// AttachmentLatency exposes the attachment storage latency histogram.
func AttachmentLatency() prometheus.Histogram {
	RegisterMetrics()
	return attachmentLatency
}

// WalletOperations exposes the counter of wallet operations.
func WalletOperations() *prometheus.CounterVec {
	RegisterMetrics()
	return walletOperationsTotal
}
