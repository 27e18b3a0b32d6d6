// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package bridge

import (
	"fmt"
	"log/slog"
	"sync"
)

// EventType names what happened to a request or session.
type EventType string

const (
	EventRequested    EventType = "requested"    // a request awaits approval
	EventResolved     EventType = "resolved"     // a request was fulfilled or rejected
	EventConnected    EventType = "connected"    // a session was opened or restored
	EventDisconnected EventType = "disconnected" // a session ended
)

// Event is delivered to listeners.
type Event struct {
	Type    EventType
	Origin  string
	Request *ApprovalRequest // nil for session events
	Err     error            // rejection reason of a resolved request
}

// Listener observes bridge events. A returned error is logged and does not
// affect other listeners.
type Listener func(Event) error

type observer struct {
	id int
	fn Listener
}

// observers delivers events synchronously in registration order. A
// listener that panics or fails is logged and skipped.
type observers struct {
	log *slog.Logger

	mu     sync.Mutex
	list   []observer
	nextID int
}

func (o *observers) add(fn Listener) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	o.list = append(o.list, observer{id: id, fn: fn})

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, ob := range o.list {
			if ob.id == id {
				o.list = append(o.list[:i:i], o.list[i+1:]...)
				return
			}
		}
	}
}

func (o *observers) broadcast(ev Event) {
	o.mu.Lock()
	list := o.list
	o.mu.Unlock()

	for _, ob := range list {
		if err := deliver(ob.fn, ev); err != nil {
			o.log.Warn("listener failed", "event", ev.Type, "origin", ev.Origin, "error", err)
		}
	}
}

func deliver(fn Listener, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return fn(ev)
}
