package chat

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_clients",
		Help: "Number of currently open client connections",
	})

	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_online_users",
		Help: "Number of authenticated sessions in the registry",
	})

	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total messages routed by type",
	}, []string{"type"})

	AuthAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_auth_attempts_total",
		Help: "Signup and login attempts by outcome",
	}, []string{"kind", "result"})

	DroppedMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_dropped_messages_total",
		Help: "Lines dropped because a recipient queue was full or closed",
	})

	RegistryOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_registry_op_seconds",
		Help:    "Time to process each registry operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(ConnectedClients)
	prometheus.MustRegister(OnlineUsers)
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(AuthAttempts)
	prometheus.MustRegister(DroppedMessages)
	prometheus.MustRegister(RegistryOpDuration)
}

// NewMetricsServer serves /metrics and /health on addr. It is meant for an
// internal interface only.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprint(w, "ok")
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
