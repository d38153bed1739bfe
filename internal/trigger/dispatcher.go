package trigger

import (
	"fmt"
	"log/slog"
)

// Dispatcher routes decisions to the adapter for their category.
type Dispatcher struct {
	adapters map[Category]*Adapter
}

// NewDispatcher builds one adapter per category over engine.
func NewDispatcher(engine Adder) *Dispatcher {
	d := &Dispatcher{adapters: make(map[Category]*Adapter, len(Categories))}
	for _, c := range Categories {
		d.adapters[c] = NewAdapter(engine, c)
	}
	return d
}

// Adapter returns the adapter for c.
func (d *Dispatcher) Adapter(c Category) (*Adapter, bool) {
	a, ok := d.adapters[c]
	return a, ok
}

// Apply executes every decision in order and returns the result strings of
// the ones that succeeded. A failing decision does not stop the rest.
func (d *Dispatcher) Apply(conversationID string, decisions []Decision) []string {
	var results []string
	for _, dec := range decisions {
		ok, msg := d.execute(conversationID, dec)
		if !ok {
			slog.Warn("Dispatcher.Apply: decision not applied", "conversation", conversationID, "category", dec.Category, "result", msg)
			continue
		}
		results = append(results, msg)
	}
	return results
}

func (d *Dispatcher) execute(conversationID string, dec Decision) (ok bool, msg string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatcher.execute: adapter panicked", "conversation", conversationID, "category", dec.Category, "panic", r)
			ok, msg = false, fmt.Sprintf("internal error applying %s", dec.Category)
		}
	}()
	a, found := d.adapters[dec.Category]
	if !found {
		return false, fmt.Sprintf("no adapter for %q", dec.Category)
	}
	return a.Execute(conversationID, dec.Intensity)
}
