package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	webhookRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smsdemo_webhook_requests_total",
		Help: "Webhook requests by binding, endpoint and response status",
	}, []string{"binding", "endpoint", "status"})
	echoSends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "smsdemo_echo_sends_total",
		Help: "Outbound echo sends by result",
	}, []string{"binding", "result"})
)

func init() {
	prometheus.MustRegister(webhookRequests, echoSends)
}

// Recorder counts requests for one transport binding.
type Recorder struct {
	binding string
}

// ForBinding returns a Recorder labelled with binding.
func ForBinding(binding string) Recorder {
	return Recorder{binding: binding}
}

// ObserveRequest counts a finished webhook request.
func (r Recorder) ObserveRequest(endpoint string, status int) {
	webhookRequests.WithLabelValues(r.binding, endpoint, strconv.Itoa(status)).Inc()
}

// ObserveSend counts an outbound echo attempt.
func (r Recorder) ObserveSend(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	echoSends.WithLabelValues(r.binding, result).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Start runs a Prometheus handler on the given listen addr.
func Start(ctx context.Context, listen string, log *slog.Logger) error {
	if listen == "" {
		return nil
	}
	srv := &http.Server{Addr: listen, Handler: Handler()}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", slog.String("err", err.Error()))
			}
		}
	}()
	return nil
}
