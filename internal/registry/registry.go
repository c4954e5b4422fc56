package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/store"
)

// Options tunes eviction behavior.
type Options struct {
	// TTL is how long a terminal record stays in memory after completion.
	TTL time.Duration
	// SweepInterval is how often the eviction loop runs.
	SweepInterval time.Duration
}

// OptionsFromConfig maps pipeline configuration onto registry options.
func OptionsFromConfig(cfg config.Pipeline) Options {
	return Options{
		TTL:           time.Duration(cfg.RegistryTTLSeconds) * time.Second,
		SweepInterval: time.Duration(cfg.RegistrySweepSeconds) * time.Second,
	}
}

type entry struct {
	record     *store.ProcessRecord
	terminalAt time.Time
}

// Registry is the in-memory index of orchestration runs backed by the store.
type Registry struct {
	opts   Options
	store  *store.Store
	logger *slog.Logger
	clock  func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry

	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New constructs a Registry. Pass the store used for terminal persistence.
func New(st *store.Store, opts Options, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Minute
	}
	return &Registry{
		opts:    opts,
		store:   st,
		logger:  logging.WithComponent(logger, "registry"),
		clock:   time.Now,
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the background eviction loop.
func (r *Registry) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				evicted := r.Sweep()
				if evicted > 0 {
					r.logger.Debug("evicted terminal run records", logging.Int("count", evicted))
				}
			}
		}
	}()
}

// Close stops the eviction loop and waits for it to exit. Safe to call even
// when Start never ran.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.mu.RLock()
	started := r.started
	r.mu.RUnlock()
	if started {
		<-r.done
	}
}

// Register adds a run record at start. The registry keeps its own snapshot;
// the owning run publishes progress with Update.
func (r *Registry) Register(record *store.ProcessRecord) {
	if record == nil || record.ProcessID == "" {
		return
	}
	r.mu.Lock()
	r.entries[record.ProcessID] = &entry{record: snapshotRecord(record)}
	r.mu.Unlock()
}

// Update replaces the in-memory snapshot for a still-running record.
func (r *Registry) Update(record *store.ProcessRecord) {
	if record == nil || record.ProcessID == "" {
		return
	}
	r.mu.Lock()
	if e, ok := r.entries[record.ProcessID]; ok {
		e.record = snapshotRecord(record)
	} else {
		r.entries[record.ProcessID] = &entry{record: snapshotRecord(record)}
	}
	r.mu.Unlock()
}

// Complete marks a run terminal: the record is persisted and its in-memory
// entry becomes eligible for TTL eviction.
func (r *Registry) Complete(ctx context.Context, record *store.ProcessRecord) error {
	if record == nil {
		return nil
	}
	err := r.store.PutProcessRecord(ctx, record)

	r.mu.Lock()
	r.entries[record.ProcessID] = &entry{record: snapshotRecord(record), terminalAt: r.clock()}
	r.mu.Unlock()
	return err
}

// Get returns a copy of the run record. Evicted terminal runs are read back
// from the store. Returns (nil, nil) when the id is unknown everywhere.
func (r *Registry) Get(ctx context.Context, processID string) (*store.ProcessRecord, error) {
	r.mu.RLock()
	e, ok := r.entries[processID]
	var snapshot *store.ProcessRecord
	if ok {
		snapshot = snapshotRecord(e.record)
	}
	r.mu.RUnlock()
	if ok {
		return snapshot, nil
	}
	return r.store.GetProcessRecord(ctx, processID)
}

// Active returns copies of every non-terminal run currently registered.
func (r *Registry) Active() []*store.ProcessRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var active []*store.ProcessRecord
	for _, e := range r.entries {
		if !e.record.Terminal() {
			active = append(active, snapshotRecord(e.record))
		}
	}
	return active
}

// Sweep evicts terminal entries older than the TTL and returns how many were
// removed. Exposed so tests can drive eviction without the background loop.
func (r *Registry) Sweep() int {
	cutoff := r.clock().Add(-r.opts.TTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, e := range r.entries {
		if !e.terminalAt.IsZero() && e.terminalAt.Before(cutoff) {
			delete(r.entries, id)
			evicted++
		}
	}
	return evicted
}

// Len reports how many runs are held in memory.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func snapshotRecord(record *store.ProcessRecord) *store.ProcessRecord {
	if record == nil {
		return nil
	}
	cp := *record
	if record.EndedAt != nil {
		ended := *record.EndedAt
		cp.EndedAt = &ended
	}
	cp.ItemResults = make([]store.ItemResult, len(record.ItemResults))
	copy(cp.ItemResults, record.ItemResults)
	if record.Metrics.StageSeconds != nil {
		cp.Metrics.StageSeconds = make(map[string]float64, len(record.Metrics.StageSeconds))
		for k, v := range record.Metrics.StageSeconds {
			cp.Metrics.StageSeconds[k] = v
		}
	}
	return &cp
}
