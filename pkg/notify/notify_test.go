package notify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snehendu098/ghost/clearclient/pkg/notify"
)

func TestRegistry_OrderAndUnsubscribe(t *testing.T) {
	var r notify.Registry[string, int]

	unsubA := r.Subscribe("bu", 1)
	r.Subscribe("bu", 2)
	r.Subscribe("asu", 9)
	r.Subscribe("bu", 3)

	assert.Equal(t, []int{1, 2, 3}, r.Handlers("bu"))
	assert.Equal(t, 1, r.Len("asu"))

	unsubA()
	unsubA()
	assert.Equal(t, []int{2, 3}, r.Handlers("bu"))
	assert.Empty(t, r.Handlers("missing"))
}

func TestRegistry_SnapshotIsStable(t *testing.T) {
	var r notify.Registry[string, int]
	unsub := r.Subscribe("k", 1)

	snapshot := r.Handlers("k")
	unsub()
	r.Subscribe("k", 2)

	assert.Equal(t, []int{1}, snapshot)
	assert.Equal(t, []int{2}, r.Handlers("k"))
}

func TestHub_TypedTopics(t *testing.T) {
	hub := notify.NewHub(nil)
	errTopic := notify.NewTopic[string](notify.Error)

	var got []string
	unsub := notify.Subscribe(hub, errTopic, func(msg string) { got = append(got, "first:"+msg) })
	notify.Subscribe(hub, errTopic, func(msg string) { got = append(got, "second:"+msg) })

	notify.Publish(hub, errTopic, "boom")
	unsub()
	notify.Publish(hub, errTopic, "again")

	assert.Equal(t, []string{"first:boom", "second:boom", "second:again"}, got)
	assert.Equal(t, 1, hub.Subscribers(notify.Error))
}

func TestHub_PanicDoesNotStopDelivery(t *testing.T) {
	hub := notify.NewHub(nil)

	var phases []notify.Phase
	notify.Subscribe(hub, notify.PhaseTopic, func(notify.Phase) { panic("handler bug") })
	notify.Subscribe(hub, notify.PhaseTopic, func(p notify.Phase) { phases = append(phases, p) })

	notify.Publish(hub, notify.PhaseTopic, notify.Phase{Flow: "deposit", Step: "done"})
	assert.Equal(t, []notify.Phase{{Flow: "deposit", Step: "done"}}, phases)
}

func TestHub_NilPublishIsNoop(t *testing.T) {
	var hub *notify.Hub
	assert.NotPanics(t, func() {
		notify.Publish(hub, notify.PhaseTopic, notify.Phase{})
	})
}
