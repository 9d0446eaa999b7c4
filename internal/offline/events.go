package offline

import "sync"

// Event names emitted by ScreeningManager.
const (
	EventScreeningSaved     = "screening_saved"
	EventScreeningSubmitted = "screening_submitted"
	EventSyncCompleted      = "sync_completed"
)

// EventHandler receives manager events.
type EventHandler func(event string, payload any)

type emitter struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]EventHandler
	logger   Logger
}

// AddListener registers h and returns a function that removes it.
func (e *emitter) AddListener(h EventHandler) (remove func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[int]EventHandler)
	}
	e.nextID++
	id := e.nextID
	e.handlers[id] = h
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers, id)
	}
}

func (e *emitter) emit(event string, payload any) {
	e.mu.RLock()
	handlers := make([]EventHandler, 0, len(e.handlers))
	for _, h := range e.handlers {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil && e.logger != nil {
					e.logger.Error("event listener panicked", "event", event, "panic", r)
				}
			}()
			h(event, payload)
		}()
	}
}
