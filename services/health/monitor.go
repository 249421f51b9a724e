package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pinger is anything that can prove the backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status represents the current reachability of the document store.
type Status struct {
	Online    bool      `json:"online"`
	CheckedAt time.Time `json:"checkedAt"`
	LastError string    `json:"lastError,omitempty"`
}

// Monitor performs periodic probes and keeps the latest result in memory.
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu     sync.RWMutex
	status Status
}

func NewMonitor(pinger Pinger, interval time.Duration, logger *zap.Logger) *Monitor {
	timeout := 2 * time.Second
	if interval > 0 && interval < timeout {
		timeout = interval
	}
	return &Monitor{pinger: pinger, interval: interval, timeout: timeout, logger: logger}
}

// Start probes once, then keeps probing every interval until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.Check(ctx)
	if m.interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

// Check probes now and records the result.
func (m *Monitor) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.pinger.Ping(ctx)
	st := Status{Online: err == nil, CheckedAt: time.Now()}
	if err != nil {
		st.LastError = err.Error()
	}

	m.mu.Lock()
	prev := m.status
	m.status = st
	m.mu.Unlock()

	if prev.Online != st.Online || prev.CheckedAt.IsZero() {
		m.logger.Info("document store reachability changed", zap.Bool("online", st.Online), zap.Error(err))
	}
	return st
}

// Status returns the latest stored health snapshot.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Online returns the cached result, probing first if nothing was checked yet.
func (m *Monitor) Online(ctx context.Context) bool {
	st := m.Status()
	if st.CheckedAt.IsZero() {
		st = m.Check(ctx)
	}
	return st.Online
}

// Static is an OnlineChecker with a fixed answer.
type Static bool

func (s Static) Online(context.Context) bool { return bool(s) }
