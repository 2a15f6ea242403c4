package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics counts push notification deliveries per service.
type NotificationMetrics struct {
	Sent   *prometheus.CounterVec
	Failed *prometheus.CounterVec
}

func NewNotificationMetrics(registry prometheus.Registerer) (*NotificationMetrics, error) {
	m := &NotificationMetrics{
		Sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackid_notifications_sent_total",
			Help: "Notifications delivered by service",
		}, []string{"service"}),
		Failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackid_notifications_failed_total",
			Help: "Notification deliveries that failed by service",
		}, []string{"service"}),
	}
	for _, c := range []prometheus.Collector{m.Sent, m.Failed} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register notification metrics: %w", err)
		}
	}
	return m, nil
}

func (m *NotificationMetrics) RecordSent(service string)   { m.Sent.WithLabelValues(service).Inc() }
func (m *NotificationMetrics) RecordFailed(service string) { m.Failed.WithLabelValues(service).Inc() }
