package syshealth

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/bizsuite/server/pkg/logger"
)

type monitor struct {
	cfg  *Config
	log  *slog.Logger
	snap Snapshot
	mu   sync.RWMutex

	ticker  *time.Ticker
	stopCh  chan struct{}
	running bool

	lastCPUTimes   *cpu.TimesStat
	consecFailures int

	getLoadAvg  func(context.Context) (*load.AvgStat, error)
	getCPUTimes func(context.Context, bool) ([]cpu.TimesStat, error)
	getMemStats func(context.Context) (*mem.VirtualMemoryStat, error)
	getCPUCores func() int
	// in use and maximum connections; max 0 means unknown
	getPoolUsage func() (int32, int32)
	now          func() time.Time
}

// NewMonitor samples host load and pool usage. pool may be nil.
func NewMonitor(cfg *Config, pool *pgxpool.Pool, log *slog.Logger) Monitor {
	return newMonitor(cfg, pool, log)
}

func newMonitor(cfg *Config, pool *pgxpool.Pool, log *slog.Logger) *monitor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &monitor{
		cfg:          cfg,
		log:          log.With(logger.Scope("syshealth.monitor")),
		snap:         Snapshot{Score: 100, Zone: ZoneSafe},
		getLoadAvg:   load.AvgWithContext,
		getCPUTimes:  cpu.TimesWithContext,
		getMemStats:  mem.VirtualMemoryWithContext,
		getCPUCores:  runtime.NumCPU,
		getPoolUsage: func() (int32, int32) { return 0, 0 },
		now:          time.Now,
	}
	if pool != nil {
		m.getPoolUsage = func() (int32, int32) {
			st := pool.Stat()
			return st.AcquiredConns(), st.MaxConns()
		}
	}
	return m
}

func (m *monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	if m.cfg.CollectionInterval <= 0 {
		return errors.New("syshealth: collection interval must be positive")
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.ticker = time.NewTicker(m.cfg.CollectionInterval)

	go func(ticker *time.Ticker, stop <-chan struct{}) {
		m.collect()
		for {
			select {
			case <-ticker.C:
				m.collect()
			case <-stop:
				return
			}
		}
	}(m.ticker, m.stopCh)

	m.log.Info("system health monitor started", slog.Duration("interval", m.cfg.CollectionInterval))
	return nil
}

func (m *monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false
	m.ticker.Stop()
	close(m.stopCh)
	m.log.Info("system health monitor stopped")
	return nil
}

func (m *monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snap
	s.Stale = m.now().Sub(s.CollectedAt) > m.cfg.StalenessThreshold
	return s
}

// collect keeps the previous value of any component that fails to sample.
func (m *monitor) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CollectionTimeout)
	defer cancel()

	m.mu.RLock()
	prev := m.snap
	m.mu.RUnlock()

	loadAvg, ioWait, memPercent := prev.CPULoadAvg, prev.IOWaitPercent, prev.MemoryPercent
	failed := false

	if l, err := m.getLoadAvg(ctx); err == nil {
		loadAvg = l.Load1
	} else {
		failed = true
		m.log.Error("failed to collect load average", logger.Error(err))
	}

	if times, err := m.getCPUTimes(ctx, false); err == nil && len(times) > 0 {
		t := times[0]
		if m.lastCPUTimes != nil {
			deltaTotal := t.Total() - m.lastCPUTimes.Total()
			if deltaTotal > 0 {
				ioWait = (t.Iowait - m.lastCPUTimes.Iowait) / deltaTotal * 100.0
			}
		}
		m.lastCPUTimes = &t
	} else {
		failed = true
		if err == nil {
			err = errors.New("no cpu times returned")
		}
		m.log.Error("failed to collect cpu times", logger.Error(err))
	}

	if v, err := m.getMemStats(ctx); err == nil {
		memPercent = v.UsedPercent
	} else {
		failed = true
		m.log.Error("failed to collect memory stats", logger.Error(err))
	}

	var dbPercent float64
	if inUse, limit := m.getPoolUsage(); limit > 0 {
		dbPercent = float64(inUse) / float64(limit) * 100.0
	}

	if failed {
		m.consecFailures++
		if m.consecFailures >= 3 {
			m.log.Error("persistent metric collection failures", slog.Int("failures", m.consecFailures))
		}
	} else {
		m.consecFailures = 0
	}

	cores := float64(m.getCPUCores())
	if cores == 0 {
		cores = 1
	}

	penalty := componentPenalty(ioWait, m.cfg.IOWaitWarningPercent, m.cfg.IOWaitCriticalPercent)*0.40 +
		componentPenalty(loadAvg/cores*100.0, m.cfg.CPULoadWarningFactor*100.0, m.cfg.CPULoadCriticalFactor*100.0)*0.30 +
		componentPenalty(dbPercent, m.cfg.DBPoolWarningPercent, m.cfg.DBPoolCriticalPercent)*0.20 +
		componentPenalty(memPercent, m.cfg.MemoryWarningPercent, m.cfg.MemoryCriticalPercent)*0.10

	score := max(100-int(penalty), 0)
	zone := zoneFor(score)

	if zone != prev.Zone {
		m.log.Warn("system health zone transition",
			slog.String("old_zone", string(prev.Zone)),
			slog.String("new_zone", string(zone)),
			slog.Int("score", score))
	}

	m.mu.Lock()
	m.snap = Snapshot{
		Score:         score,
		Zone:          zone,
		CPULoadAvg:    loadAvg,
		IOWaitPercent: ioWait,
		MemoryPercent: memPercent,
		DBPoolPercent: dbPercent,
		CollectedAt:   m.now(),
	}
	m.mu.Unlock()

	healthScore.Set(float64(score))
	ioWaitPercent.Set(ioWait)
	cpuLoadAvg.Set(loadAvg)
	memoryUtilization.Set(memPercent)
	dbPoolUtilization.Set(dbPercent)

	m.log.Debug("system health metrics collected",
		slog.Int("score", score),
		slog.String("zone", string(zone)),
		slog.Float64("io_wait", ioWait),
		slog.Float64("cpu_load", loadAvg),
		slog.Float64("db_pool", dbPercent),
		slog.Float64("mem", memPercent))
}

func zoneFor(score int) Zone {
	switch {
	case score <= 33:
		return ZoneCritical
	case score <= 66:
		return ZoneWarning
	default:
		return ZoneSafe
	}
}

// componentPenalty is 0, 50 or 100 depending on which threshold value crosses.
func componentPenalty(value, warning, critical float64) float64 {
	if value >= critical {
		return 100.0
	}
	if value >= warning {
		return 50.0
	}
	return 0.0
}
