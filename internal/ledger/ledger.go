// Package ledger keeps a bounded, in-memory history of prompt executions.
//
// Every mutation builds a new immutable snapshot and installs it with
// compare-and-swap, so concurrent Register and Complete calls never block
// each other and never lose updates.
package ledger

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const DefaultCapacity = 20

// ErrRunNotFound means the id was never registered or has been evicted.
var ErrRunNotFound = errors.New("run not found")

type EventType string

const (
	EventRegistered EventType = "registered"
	EventCompleted  EventType = "completed"
)

type Event struct {
	Type EventType `json:"type"`
	Run  Run       `json:"run"`
}

type snapshot struct {
	runs     []Run
	active   string
	selected string
}

type subscriber struct {
	id int64
	fn func(Event)
}

type Ledger struct {
	capacity int
	clock    func() time.Time
	newID    func() string

	state  atomic.Pointer[snapshot]
	subs   atomic.Pointer[[]subscriber]
	nextID atomic.Int64
}

func New(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Ledger{capacity: capacity, clock: time.Now, newID: uuid.NewString}
	l.state.Store(&snapshot{})
	l.subs.Store(&[]subscriber{})
	return l
}

func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

func (l *Ledger) WithIDs(newID func() string) *Ledger {
	l.newID = newID
	return l
}

func (l *Ledger) Capacity() int { return l.capacity }

// Register records a new pending run, evicting the oldest when full, and
// makes it the active run.
func (l *Ledger) Register(partial Run) string {
	run := partial.clone()
	run.ID = l.newID()
	run.CreatedAt = l.clock()
	run.Status = StatusPending
	run.CompletedAt = nil

	for {
		old := l.state.Load()
		keep := old.runs
		if over := len(keep) + 1 - l.capacity; over > 0 {
			keep = keep[over:]
		}
		runs := make([]Run, 0, len(keep)+1)
		runs = append(runs, keep...)
		runs = append(runs, run)
		next := &snapshot{runs: runs, active: run.ID, selected: old.selected}
		if l.state.CompareAndSwap(old, next) {
			l.emit(Event{Type: EventRegistered, Run: run})
			return run.ID
		}
	}
}

// Complete merges patch into the run with id. It returns false when the id is
// unknown, which happens when a completion races with eviction.
func (l *Ledger) Complete(id string, patch Patch) bool {
	now := l.clock()
	for {
		old := l.state.Load()
		idx := indexOf(old.runs, id)
		if idx < 0 {
			return false
		}
		runs := make([]Run, len(old.runs))
		copy(runs, old.runs)
		runs[idx] = old.runs[idx].apply(patch, now)
		next := &snapshot{runs: runs, active: old.active, selected: old.selected}
		if l.state.CompareAndSwap(old, next) {
			l.emit(Event{Type: EventCompleted, Run: runs[idx]})
			return true
		}
	}
}

func (l *Ledger) Get(id string) (Run, bool) {
	s := l.state.Load()
	if idx := indexOf(s.runs, id); idx >= 0 {
		return s.runs[idx].clone(), true
	}
	return Run{}, false
}

func (l *Ledger) List() []Run {
	return cloneRuns(l.state.Load().runs, "")
}

// View is List restricted to the selected context, if one is set.
func (l *Ledger) View() []Run {
	s := l.state.Load()
	return cloneRuns(s.runs, s.selected)
}

func (l *Ledger) Active() (Run, bool) {
	s := l.state.Load()
	if s.active == "" {
		return Run{}, false
	}
	if idx := indexOf(s.runs, s.active); idx >= 0 {
		return s.runs[idx].clone(), true
	}
	return Run{}, false
}

// Select sets the context filter used by View; an empty ref clears it.
func (l *Ledger) Select(contextRef string) {
	for {
		old := l.state.Load()
		next := &snapshot{runs: old.runs, active: old.active, selected: contextRef}
		if l.state.CompareAndSwap(old, next) {
			return
		}
	}
}

func (l *Ledger) Selected() string { return l.state.Load().selected }

func (l *Ledger) Len() int { return len(l.state.Load().runs) }

// Subscribe registers fn for events emitted after each successful mutation.
// fn runs on the mutating goroutine and must not block. The returned func
// removes the subscription.
func (l *Ledger) Subscribe(fn func(Event)) func() {
	id := l.nextID.Add(1)
	for {
		old := l.subs.Load()
		next := append(append([]subscriber(nil), (*old)...), subscriber{id: id, fn: fn})
		if l.subs.CompareAndSwap(old, &next) {
			break
		}
	}
	return func() {
		for {
			old := l.subs.Load()
			next := make([]subscriber, 0, len(*old))
			for _, s := range *old {
				if s.id != id {
					next = append(next, s)
				}
			}
			if l.subs.CompareAndSwap(old, &next) {
				return
			}
		}
	}
}

func (l *Ledger) emit(ev Event) {
	for _, s := range *l.subs.Load() {
		s.fn(Event{Type: ev.Type, Run: ev.Run.clone()})
	}
}

func indexOf(runs []Run, id string) int {
	for i := range runs {
		if runs[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneRuns(runs []Run, contextRef string) []Run {
	out := make([]Run, 0, len(runs))
	for _, r := range runs {
		if contextRef != "" && r.ContextRef != contextRef {
			continue
		}
		out = append(out, r.clone())
	}
	return out
}
