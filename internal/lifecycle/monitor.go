package lifecycle

import (
	"context"
	"net/http"
	"time"

	"github.com/lucasdpb/satchel/internal/bus"
	"github.com/lucasdpb/satchel/internal/outbox"
	"github.com/lucasdpb/satchel/internal/status"
	"go.uber.org/zap"
)

// Replayer drains the pending operation queue.
type Replayer interface {
	Replay(ctx context.Context) (*outbox.ReplayReport, error)
}

// StorePinger reports whether the durable store is reachable. *store.DB
// satisfies it.
type StorePinger interface {
	Ping() error
}

// Monitor tracks connectivity by probing the application API health
// endpoint and drives the daemon state machine. An offline-to-online
// edge triggers a queue replay; entering the offline state only raises
// the persistent offline affordance, since writes are already routed to
// the queue.
type Monitor struct {
	machine   *status.Machine
	bus       *bus.Bus
	replayer  Replayer
	pinger    StorePinger
	client    *http.Client
	logger    *zap.Logger
	healthURL string
	interval  time.Duration
	cancel    context.CancelFunc
}

// NewMonitor creates a connectivity monitor. client must bypass the
// cache engine; a cached health response would mask real outages.
// pinger may be nil, in which case the store is assumed healthy.
func NewMonitor(machine *status.Machine, b *bus.Bus, replayer Replayer, pinger StorePinger, client *http.Client, logger *zap.Logger, healthURL string, interval time.Duration) *Monitor {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Monitor{
		machine:   machine,
		bus:       b,
		replayer:  replayer,
		pinger:    pinger,
		client:    client,
		logger:    logger,
		healthURL: healthURL,
		interval:  interval,
	}
}

// Start probes once immediately, then on the configured interval.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	go func() {
		online := m.probe(ctx)
		storeOK := m.storeOK()
		m.apply(ctx, online, storeOK, false)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				nextOnline := m.probe(ctx)
				nextStore := m.storeOK()
				if nextOnline != online || nextStore != storeOK {
					// Replay only on the offline-to-online edge.
					m.apply(ctx, nextOnline, nextStore, nextOnline && !online)
					online, storeOK = nextOnline, nextStore
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the probe loop.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

// Online reports the current affordance state.
func (m *Monitor) Online() bool {
	return !m.machine.Offline()
}

func (m *Monitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < 500
}

// storeOK pings the durable store; a failing store while the network is
// reachable means network-only degraded mode, not offline.
func (m *Monitor) storeOK() bool {
	if m.pinger == nil {
		return true
	}
	return m.pinger.Ping() == nil
}

// apply moves the machine and publishes the edge event. On the
// offline-to-online edge (replayEdge) it replays the queue before
// settling into ONLINE.
func (m *Monitor) apply(ctx context.Context, online, storeOK, replayEdge bool) {
	if !online {
		if err := m.machine.Transition(status.Offline); err != nil {
			m.logger.Warn("state transition failed", zap.Error(err))
		}
		m.logger.Info("network unreachable, offline mode")
		m.bus.Publish(bus.Event{Kind: "net.offline", Timestamp: time.Now()})
		return
	}

	if !storeOK {
		if err := m.machine.Transition(status.Degraded); err != nil {
			m.logger.Warn("state transition failed", zap.Error(err))
		}
		m.logger.Warn("store unreachable, degrading to network-only mode")
		m.bus.Publish(bus.Event{Kind: "net.online", Timestamp: time.Now()})
		return
	}

	if replayEdge && m.replayer != nil {
		if err := m.machine.Transition(status.Replaying); err == nil {
			report, err := m.replayer.Replay(ctx)
			if err != nil {
				m.logger.Error("replay on reconnect failed", zap.Error(err))
			} else if report.Attempted > 0 {
				m.logger.Info("replayed queued operations",
					zap.Int("attempted", report.Attempted),
					zap.Int("delivered", report.Delivered),
					zap.Int("failed", len(report.Failures)))
			}
		}
	}
	if err := m.machine.Transition(status.Online); err != nil {
		m.logger.Warn("state transition failed", zap.Error(err))
	}
	m.logger.Info("network reachable")
	m.bus.Publish(bus.Event{Kind: "net.online", Timestamp: time.Now()})
}
