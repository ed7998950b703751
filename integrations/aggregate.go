package integrations

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"kanflow/domain"
)

// DefaultFetchTimeout bounds one provider call.
const DefaultFetchTimeout = 10 * time.Second

// ProviderStatus is the last known state of one integration.
type ProviderStatus struct {
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Connected bool      `json:"connected"`
	Tasks     int       `json:"tasks"`
	LastError string    `json:"lastError,omitempty"`
	LastFetch time.Time `json:"lastFetch,omitempty"`
}

// Aggregator merges the tasks of all providers. A failing provider is
// logged and skipped.
type Aggregator struct {
	providers []Provider
	passive   []string
	timeout   time.Duration
	logger    *log.Logger

	mu     sync.Mutex
	status map[string]ProviderStatus
}

// NewAggregator creates an aggregator over providers.
func NewAggregator(providers []Provider, passive []string, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	a := &Aggregator{
		providers: providers,
		passive:   passive,
		timeout:   DefaultFetchTimeout,
		logger:    logger,
		status:    make(map[string]ProviderStatus, len(providers)),
	}
	for _, p := range providers {
		a.status[p.Name()] = ProviderStatus{Name: p.Name(), Kind: p.Kind(), Connected: true}
	}
	return a
}

// SetTimeout overrides the per-provider timeout.
func (a *Aggregator) SetTimeout(d time.Duration) {
	if d > 0 {
		a.timeout = d
	}
}

// Fetch calls every provider in turn and returns the combined tasks.
func (a *Aggregator) Fetch(ctx context.Context) []domain.Task {
	if a == nil {
		return nil
	}
	var out []domain.Task
	for _, p := range a.providers {
		if ctx.Err() != nil {
			break
		}
		pctx, cancel := context.WithTimeout(ctx, a.timeout)
		start := time.Now()
		tasks, err := p.FetchTasks(pctx)
		cancel()

		st := ProviderStatus{Name: p.Name(), Kind: p.Kind(), Connected: true, LastFetch: start}
		fields := log.Fields{"provider": p.Name(), "elapsed_ms": time.Since(start).Milliseconds()}
		if err != nil {
			st.LastError = err.Error()
			a.logger.WithFields(fields).WithError(err).Warn("integrations.fetch.failed")
		} else {
			st.Tasks = len(tasks)
			out = append(out, tasks...)
			a.logger.WithFields(fields).WithField("tasks", len(tasks)).Debug("integrations.fetch.ok")
		}
		a.mu.Lock()
		a.status[p.Name()] = st
		a.mu.Unlock()
	}
	return out
}

// Status lists providers followed by passive integrations.
func (a *Aggregator) Status() []ProviderStatus {
	if a == nil {
		return []ProviderStatus{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ProviderStatus, 0, len(a.providers)+len(a.passive))
	for _, p := range a.providers {
		out = append(out, a.status[p.Name()])
	}
	for _, kind := range a.passive {
		out = append(out, ProviderStatus{Name: kind, Kind: kind, Connected: true})
	}
	return out
}
