package hooks

import "sync"

// Subscriber receives hook events published to a Bus. Implementations must
// not block for long; Publish is synchronous across subscribers.
type Subscriber interface {
	OnHookEvent(turnID string, e Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(turnID string, e Event)

// OnHookEvent implements Subscriber.
func (f SubscriberFunc) OnHookEvent(turnID string, e Event) { f(turnID, e) }

// Bus is an optional, process-wide fanout of hook events across all turns,
// used only by secondary observers (internal/broadcast's Pulse sink) that
// want to tee a turn's hook activity to an external system. It is never the
// channel the event translator drains from — that is always a turn's own
// Queue. Kept process-wide and separate from Queue specifically so the
// per-turn isolation spec.md §5 requires is never at risk of being
// confused with this optional side channel.
type Bus struct {
	mu   sync.RWMutex
	subs []Subscriber
}

// NewBus returns an empty Bus.
func NewBus() *Bus { return &Bus{} }

// Subscribe registers s to receive every future published event.
func (b *Bus) Subscribe(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, s)
}

// Publish fans e out to every subscriber.
func (b *Bus) Publish(turnID string, e Event) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs...)
	b.mu.RUnlock()
	for _, s := range subs {
		s.OnHookEvent(turnID, e)
	}
}
