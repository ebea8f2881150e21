package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ChatRequests      *prometheus.CounterVec
	ChatFailures      *prometheus.CounterVec
	ChatRateLimited   prometheus.Counter
	StoreWrites       *prometheus.CounterVec
	StoreCorruptReads *prometheus.CounterVec
	LeadsCreated      prometheus.Counter
	NotifySent        prometheus.Counter
	NotifyFailed      prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bouwsite",
				Name:      "chat_requests_total",
				Help:      "Total chat completions sent to a provider",
			}, []string{"provider"}),
			ChatFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bouwsite",
				Name:      "chat_failures_total",
				Help:      "Total chat completions that ended in an error",
			}, []string{"provider"}),
			ChatRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bouwsite",
				Name:      "chat_rate_limited_total",
				Help:      "Total chat messages rejected by the visitor rate limit",
			}),
			StoreWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bouwsite",
				Name:      "store_writes_total",
				Help:      "Total whole-collection writes per store",
			}, []string{"store"}),
			StoreCorruptReads: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bouwsite",
				Name:      "store_corrupt_reads_total",
				Help:      "Total reads that found undecodable JSON and fell back to empty",
			}, []string{"store"}),
			LeadsCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bouwsite",
				Name:      "leads_created_total",
				Help:      "Total contact form submissions stored as leads",
			}),
			NotifySent: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bouwsite",
				Name:      "notifications_sent_total",
				Help:      "Total lead notifications delivered",
			}),
			NotifyFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bouwsite",
				Name:      "notifications_failed_total",
				Help:      "Total lead notification attempts that failed",
			}),
		}
		prometheus.MustRegister(
			global.ChatRequests,
			global.ChatFailures,
			global.ChatRateLimited,
			global.StoreWrites,
			global.StoreCorruptReads,
			global.LeadsCreated,
			global.NotifySent,
			global.NotifyFailed,
		)
	})
	return global
}
