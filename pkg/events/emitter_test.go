package events

import (
	"testing"

	"github.com/fortiblox/X1-Duel/pkg/svm"
)

func TestEmitterDelivers(t *testing.T) {
	e := NewEmitter()
	var named, all []string
	e.Subscribe("MatchCreated", func(ev Event) { named = append(named, ev.Name) })
	e.Subscribe(Wildcard, func(ev Event) { all = append(all, ev.Name) })

	e.Publish(Event{Event: svm.Event{Name: "MatchCreated"}, Slot: 1})
	e.Publish(Event{Event: svm.Event{Name: "MatchJoined"}, Slot: 2})

	if len(named) != 1 || named[0] != "MatchCreated" {
		t.Errorf("named handler got %v", named)
	}
	if len(all) != 2 {
		t.Errorf("wildcard handler got %v", all)
	}
}

func TestEmitterRecoversPanic(t *testing.T) {
	e := NewEmitter()
	called := false
	e.Subscribe("X", func(Event) { panic("boom") })
	e.Subscribe("X", func(Event) { called = true })

	e.Publish(Event{Event: svm.Event{Name: "X"}})

	if !called {
		t.Error("second handler not called after first panicked")
	}
}
