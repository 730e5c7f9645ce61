package memlog

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"memlog/domain/stream"
)

// Registry maps names to logs. Each name is created at most once until it
// is deleted or the registry cleared.
type Registry struct {
	mu   sync.RWMutex
	logs map[stream.Name]*Log
	log  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		logs: make(map[stream.Name]*Log),
		log:  logger.With(zap.String("component", "memlog.registry")),
	}
}

// Create registers a new log of size partitions.
func (r *Registry) Create(name stream.Name, size int) (*Log, error) {
	l, err := newLog(name, size)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.logs[name]; ok {
		return nil, errors.Wrapf(stream.ErrLogExists, "%s", name)
	}
	r.logs[name] = l
	r.log.Debug("log created", zap.Stringer("log", name), zap.Int("partitions", size))
	return l, nil
}

func (r *Registry) Get(name stream.Name) (*Log, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.logs[name]
	if !ok {
		return nil, errors.Wrapf(stream.ErrLogNotFound, "%s", name)
	}
	return l, nil
}

func (r *Registry) Exists(name stream.Name) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.logs[name]
	return ok
}

// Delete drops the log and all its state. It reports whether it existed.
func (r *Registry) Delete(name stream.Name) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.logs[name]; !ok {
		return false
	}
	delete(r.logs, name)
	r.log.Debug("log deleted", zap.Stringer("log", name))
	return true
}

// Names returns every registered log name, sorted by urn.
func (r *Registry) Names() []stream.Name {
	r.mu.RLock()
	out := make([]stream.Name, 0, len(r.logs))
	for n := range r.logs {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sortNames(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.logs)
}

// Clear drops every log. Tests call it between runs.
func (r *Registry) Clear() {
	r.mu.Lock()
	n := len(r.logs)
	r.logs = make(map[stream.Name]*Log)
	r.mu.Unlock()
	r.log.Debug("registry cleared", zap.Int("logs", n))
}
