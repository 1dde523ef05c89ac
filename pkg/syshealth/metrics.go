package syshealth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	healthScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_health_score",
		Help: "Overall host health score (0-100).",
	})

	ioWaitPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_io_wait_percent",
		Help: "Host I/O wait percentage.",
	})

	cpuLoadAvg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_cpu_load_avg_1m",
		Help: "Host 1-minute load average.",
	})

	memoryUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_memory_utilization_percent",
		Help: "Host memory utilization percentage.",
	})

	dbPoolUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_db_pool_utilization_percent",
		Help: "Postgres pool connections in use as a percentage of the maximum.",
	})
)
