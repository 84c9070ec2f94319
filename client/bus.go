package client

import (
	"encoding/json"
	"reflect"
	"sync"
)

// Handler consumes the raw payload of one hub event.
type Handler func(data json.RawMessage)

// bus is an event-callback registry decoupled from any physical connection:
// subscriptions survive reconnects, the Manager re-attaches each new
// connection to the same bus.
type bus struct {
	mu       sync.Mutex
	handlers map[string][]Handler
}

func newBus() *bus {
	return &bus{handlers: make(map[string][]Handler)}
}

func (b *bus) on(event string, h Handler) {
	b.mu.Lock()
	b.handlers[event] = append(b.handlers[event], h)
	b.mu.Unlock()
}

// off removes the given handler for event, or every handler when none given.
func (b *bus) off(event string, hs ...Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(hs) == 0 {
		delete(b.handlers, event)
		return
	}
	ptr := reflect.ValueOf(hs[0]).Pointer()
	kept := b.handlers[event][:0]
	for _, h := range b.handlers[event] {
		if reflect.ValueOf(h).Pointer() != ptr {
			kept = append(kept, h)
		}
	}
	b.handlers[event] = kept
}

// emit invokes handlers in registration order, outside the bus lock.
func (b *bus) emit(event string, data json.RawMessage) {
	b.mu.Lock()
	hs := append([]Handler(nil), b.handlers[event]...)
	b.mu.Unlock()
	for _, h := range hs {
		h(data)
	}
}
