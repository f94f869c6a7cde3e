// Package events fans out program events from committed transactions.
package events

import (
	"sync"

	"k8s.io/klog/v2"

	"github.com/fortiblox/X1-Duel/internal/types"
	"github.com/fortiblox/X1-Duel/pkg/svm"
)

// Wildcard subscribes a handler to every event name.
const Wildcard = "*"

// Event is a program event tagged with the transaction that produced it.
type Event struct {
	svm.Event
	Signature types.Signature `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime int64           `json:"blockTime"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a synchronous pub/sub broker. Subscribe before publishing.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[string][]Handler)}
}

// Subscribe registers h for events called name, or for all events with Wildcard.
func (e *Emitter) Subscribe(name string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = append(e.handlers[name], h)
}

// Publish delivers ev to its subscribers in registration order. A panicking
// handler is logged and skipped.
func (e *Emitter) Publish(ev Event) {
	e.mu.RLock()
	handlers := append(append([]Handler(nil), e.handlers[ev.Name]...), e.handlers[Wildcard]...)
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					klog.Errorf("[events] handler panicked for %s: %v", ev.Name, r)
				}
			}()
			h(ev)
		}()
	}
}
