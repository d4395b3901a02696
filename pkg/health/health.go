// Package health provides liveness and readiness probe endpoints. Readiness
// checks run in background goroutines at a fixed interval so probe handlers
// never block on slow dependencies.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc reports nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]
}

func (c *check) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(ctx)
	c.healthy.Store(err == nil)
	if err != nil {
		c.lastErr.Store(&err)
	}
}

// Service aggregates readiness checks behind /livez and /readyz style
// endpoints. Readiness additionally requires SetReady(true), which the app
// flips off before draining during shutdown.
type Service struct {
	mu     sync.Mutex
	checks []*check
	ready  atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an empty health Service.
func New() *Service {
	return &Service{}
}

// AddReadinessCheck registers a named readiness check with a per-run timeout.
// Must be called before Start.
func (s *Service) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &check{name: name, timeout: timeout, fn: fn}
	c.healthy.Store(true)
	s.checks = append(s.checks, c)
}

// SetReady flips the overall readiness gate.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start launches the background check loop.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.runAll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runAll(ctx)
			}
		}
	}()
}

// Stop terminates the background loop and waits for it to exit.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.mu.Lock()
	checks := s.checks
	s.mu.Unlock()
	for _, c := range checks {
		c.run(ctx)
	}
}

type probeStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint always reports alive while the process can serve requests.
func (s *Service) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, http.StatusOK, probeStatus{Status: "ok"})
}

// ReadyEndpoint reports 200 only when SetReady(true) was called and every
// readiness check is passing.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	st := probeStatus{Status: "ok", Checks: map[string]string{}}
	code := http.StatusOK

	if !s.ready.Load() {
		st.Status = "not ready"
		code = http.StatusServiceUnavailable
	}

	s.mu.Lock()
	checks := s.checks
	s.mu.Unlock()
	for _, c := range checks {
		if c.healthy.Load() {
			st.Checks[c.name] = "ok"
			continue
		}
		msg := "failing"
		if p := c.lastErr.Load(); p != nil {
			msg = (*p).Error()
		}
		st.Checks[c.name] = msg
		st.Status = "not ready"
		code = http.StatusServiceUnavailable
	}

	writeProbe(w, code, st)
}

func writeProbe(w http.ResponseWriter, code int, st probeStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(st)
}
