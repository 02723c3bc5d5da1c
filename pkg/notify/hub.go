package notify

import (
	"fmt"

	"github.com/snehendu098/ghost/clearclient/pkg/log"
)

// Name identifies a consumer-facing event.
type Name string

const (
	Connected     Name = "connected"
	Disconnected  Name = "disconnected"
	Error         Name = "error"
	BalanceUpdate Name = "balance_update"
	SessionUpdate Name = "session_update"
	// WalletBalanceUpdate carries refreshed on-chain balances.
	WalletBalanceUpdate Name = "wallet_balance_update"
	// PhaseChange reports progress of a multi-step flow.
	PhaseChange Name = "phase"
)

// Topic binds an event name to its payload type.
type Topic[T any] struct {
	name Name
}

func NewTopic[T any](name Name) Topic[T] {
	return Topic[T]{name: name}
}

func (t Topic[T]) Name() Name {
	return t.name
}

// Phase is the payload of PhaseChange events.
type Phase struct {
	Flow string
	Step string
	// Detail is optional context such as a transaction hash.
	Detail string
}

var PhaseTopic = NewTopic[Phase](PhaseChange)

// Hub dispatches events to subscribers synchronously, in subscription
// order. A panicking handler is logged and does not stop delivery to the
// remaining handlers.
type Hub struct {
	registry Registry[Name, func(any)]
	lg       log.Logger
}

func NewHub(lg log.Logger) *Hub {
	return &Hub{lg: log.OrNoop(lg).WithName("notify")}
}

// Subscribe registers fn for topic and returns its unsubscribe handle.
func Subscribe[T any](h *Hub, topic Topic[T], fn func(T)) (unsubscribe func()) {
	return h.registry.Subscribe(topic.name, func(v any) {
		fn(v.(T))
	})
}

// Publish delivers v to every subscriber of topic. Publishers pass values
// that do not alias their internal state.
func Publish[T any](h *Hub, topic Topic[T], v T) {
	if h == nil {
		return
	}
	for _, handler := range h.registry.Handlers(topic.name) {
		h.invoke(topic.name, handler, v)
	}
}

func (h *Hub) invoke(name Name, handler func(any), v any) {
	defer func() {
		if r := recover(); r != nil {
			h.lg.Error("event handler panicked", "event", name, "panic", fmt.Sprint(r))
		}
	}()
	handler(v)
}

// Subscribers returns the number of handlers registered for name.
func (h *Hub) Subscribers(name Name) int {
	return h.registry.Len(name)
}
