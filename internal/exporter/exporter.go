// Package exporter registers the service's Prometheus metrics.
package exporter

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricDepositRequests  = "deposit_requests_total"
	MetricWithdrawRequests = "withdraw_requests_total"
	MetricSettlements      = "settlements_total"
	MetricErrors           = "errors_total"
)

var counters map[string]prometheus.Counter

// Init registers the static metrics. Call once at startup.
func Init() {
	counters = make(map[string]prometheus.Counter)

	for name, help := range map[string]string{
		MetricDepositRequests:  "Deposit requests accepted by the router",
		MetricWithdrawRequests: "Withdrawal requests accepted by the router",
		MetricSettlements:      "Custody settlements executed against the delegate",
		MetricErrors:           "Failed API operations",
	} {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundvault",
			Subsystem: "service",
			Name:      name,
			Help:      help,
		})
		prometheus.MustRegister(counter)
		counters[name] = counter
	}
}

// GetCounter returns a registered counter by name.
func GetCounter(name string) prometheus.Counter {
	return counters[name]
}

func IncDepositRequests()  { counters[MetricDepositRequests].Inc() }
func IncWithdrawRequests() { counters[MetricWithdrawRequests].Inc() }
func IncSettlements()      { counters[MetricSettlements].Inc() }
func IncErrors()           { counters[MetricErrors].Inc() }
