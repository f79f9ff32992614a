package usecase

import (
	"fmt"
	"strings"

	"BusScope/internal/domain/models"
	"BusScope/internal/services/scale"
)

// entry is a registered signal together with the view state it owns.
type entry struct {
	signal models.Signal
	scale  *scale.State
}

// registry keeps signals in registration order and resolves ingestion keys.
type registry struct {
	entries map[string]*entry
	order   []string
	keys    map[string]string
}

func newRegistry() *registry {
	return &registry{
		entries: make(map[string]*entry),
		keys:    make(map[string]string),
	}
}

// normalizeSignal fills derived fields and rejects descriptors that can never match.
func normalizeSignal(sig models.Signal) (models.Signal, error) {
	sig.SignalName = strings.TrimSpace(sig.SignalName)
	sig.MessageName = strings.TrimSpace(sig.MessageName)
	sig.ID = strings.TrimSpace(sig.ID)
	if sig.ID == "" {
		sig.ID = sig.QualifiedName()
	}
	if sig.ID == "" {
		return sig, fmt.Errorf("%w: id or signal name required", ErrInvalidSignal)
	}
	if sig.SignalName == "" {
		sig.SignalName = sig.ID
	}
	if sig.Range != nil && !sig.Range.Valid() {
		sig.Range = nil
	}
	return sig, nil
}

// put registers sig, replacing the descriptor of an existing id while keeping
// its scale. It reports whether the id is new.
func (r *registry) put(sig models.Signal) bool {
	e, exists := r.entries[sig.ID]
	if exists {
		r.unindex(e)
		e.signal = sig
	} else {
		e = &entry{signal: sig, scale: scale.NewState()}
		r.entries[sig.ID] = e
		r.order = append(r.order, sig.ID)
	}
	r.index(e)
	return !exists
}

func (r *registry) remove(id string) bool {
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	r.unindex(e)
	delete(r.entries, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	// another signal may have shadowed a key this one released
	r.each(r.index)
	return true
}

func (r *registry) get(id string) (*entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

func (r *registry) has(id string) bool {
	_, ok := r.entries[id]
	return ok
}

// resolve returns the signal an update belongs to, trying its keys from most
// to least specific.
func (r *registry) resolve(u *models.SignalUpdate) (*entry, bool) {
	for _, k := range u.Keys() {
		if id, ok := r.keys[k]; ok {
			return r.entries[id], true
		}
	}
	return nil, false
}

// each visits entries in registration order.
func (r *registry) each(fn func(e *entry)) {
	for _, id := range r.order {
		fn(r.entries[id])
	}
}

func (r *registry) enabled() []*entry {
	out := make([]*entry, 0, len(r.order))
	r.each(func(e *entry) {
		if e.signal.Enabled {
			out = append(out, e)
		}
	})
	return out
}

func (r *registry) len() int { return len(r.order) }

// index maps the keys of e that are not yet taken. The first registration
// of a key wins.
func (r *registry) index(e *entry) {
	for _, k := range e.signal.Keys() {
		if _, taken := r.keys[k]; !taken {
			r.keys[k] = e.signal.ID
		}
	}
}

func (r *registry) unindex(e *entry) {
	for _, k := range e.signal.Keys() {
		if r.keys[k] == e.signal.ID {
			delete(r.keys, k)
		}
	}
}
