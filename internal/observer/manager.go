package observer

import (
	"fmt"
	"sync"

	"github.com/attrflow/attrflow/internal/infrastructure/logger"
)

// ObserverManager manages multiple observers and notifies them
// synchronously, in registration order, on the caller's goroutine. There is
// no async dispatch: the engine's concurrency model forbids a run from
// spawning goroutines of its own.
type ObserverManager struct {
	observers []Observer
	logger    *logger.Logger
	mu        sync.RWMutex
}

// ManagerOption configures ObserverManager.
type ManagerOption func(*ObserverManager)

// WithLogger sets the logger for the manager.
func WithLogger(l *logger.Logger) ManagerOption {
	return func(m *ObserverManager) {
		m.logger = l
	}
}

// NewObserverManager creates a new observer manager.
func NewObserverManager(opts ...ManagerOption) *ObserverManager {
	mgr := &ObserverManager{
		observers: make([]Observer, 0),
		logger:    logger.Default(),
	}

	for _, opt := range opts {
		opt(mgr)
	}

	return mgr
}

// Register adds an observer to the manager.
func (m *ObserverManager) Register(obs Observer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.observers {
		if existing.Name() == obs.Name() {
			return fmt.Errorf("observer with name %q already registered", obs.Name())
		}
	}

	m.observers = append(m.observers, obs)
	return nil
}

// Unregister removes an observer by name.
func (m *ObserverManager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, obs := range m.observers {
		if obs.Name() == name {
			m.observers = append(m.observers[:i], m.observers[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("observer %q not found", name)
}

// Notify delivers an event to every registered observer whose filter
// accepts it. Runs synchronously; a panicking or erroring observer is
// logged and does not interrupt the run or the remaining observers.
func (m *ObserverManager) Notify(event Event) {
	m.mu.RLock()
	observersCopy := make([]Observer, len(m.observers))
	copy(observersCopy, m.observers)
	m.mu.RUnlock()

	for _, obs := range observersCopy {
		m.notifyObserver(obs, event)
	}
}

func (m *ObserverManager) notifyObserver(obs Observer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			if m.logger != nil {
				m.logger.Error("observer panic recovered",
					"observer", obs.Name(),
					"event_type", string(event.Type),
					"panic", r,
				)
			}
		}
	}()

	if filter := obs.Filter(); filter != nil && !filter.ShouldNotify(event) {
		return
	}

	if err := obs.OnEvent(event); err != nil {
		if m.logger != nil {
			m.logger.Error("observer notification failed",
				"observer", obs.Name(),
				"event_type", string(event.Type),
				"error", err,
			)
		}
	}
}

// Count returns the number of registered observers.
func (m *ObserverManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.observers)
}
