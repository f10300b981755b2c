package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// HandlerFunc handles a single Event.
type HandlerFunc func(event Event)

// Bus is an asynchronous-or-synchronous publish-subscribe event system.
// EmitSync is the path the session actor uses internally: it runs
// handlers synchronously, on the caller's goroutine, so that emitted
// events reflect frame arrival order without further coordination. Emit
// delivers asynchronously instead, one goroutine per handler, without that
// ordering guarantee. The emitter picks the path, not the subscriber; a
// session emits only through EmitSync.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]handlerEntry
	stopped  bool
	wg       sync.WaitGroup
}

type handlerEntry struct {
	name    string
	handler HandlerFunc
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Type][]handlerEntry)}
}

// Subscribe registers a named handler for a specific event Type.
func (b *Bus) Subscribe(t Type, name string, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], handlerEntry{name: name, handler: handler})
}

// Unsubscribe removes a previously registered named handler.
func (b *Bus) Unsubscribe(t Type, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers, ok := b.handlers[t]
	if !ok {
		return
	}
	filtered := make([]handlerEntry, 0, len(handlers))
	for _, h := range handlers {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	b.handlers[t] = filtered
}

// EmitSync delivers event to every subscribed handler synchronously, in
// registration order, on the calling goroutine. Handlers must not block.
func (b *Bus) EmitSync(event Event) {
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return
	}
	handlers := append([]handlerEntry(nil), b.handlers[event.Type]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.runHandler(h, event)
	}
}

// Emit delivers event to every subscribed handler asynchronously, one
// goroutine per handler, and does not wait for completion.
func (b *Bus) Emit(event Event) {
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return
	}
	handlers := append([]handlerEntry(nil), b.handlers[event.Type]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h := h
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.runHandler(h, event)
		}()
	}
}

func (b *Bus) runHandler(h handlerEntry, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event", string(event.Type)).
				Str("handler", h.name).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()
	h.handler(event)
}

// Stop marks the bus as stopped (no further events are delivered) and
// waits for any in-flight async handlers spawned via Emit to complete.
func (b *Bus) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()
	b.wg.Wait()
}

// HandlerCount returns the number of handlers registered for t.
func (b *Bus) HandlerCount(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t])
}
