package activity

import "sync"

// Merge combines live records with a fetched page. Live records come first,
// in the order given; fetched records whose ID already appears in live are
// dropped. Merge does not sort by timestamp; the live copy of a record
// always wins over the fetched one.
func Merge(fetched, live []Record) []Record {
	if len(live) == 0 {
		if fetched == nil {
			return nil
		}
		out := make([]Record, len(fetched))
		copy(out, fetched)
		return out
	}

	seen := make(map[string]struct{}, len(live))
	out := make([]Record, 0, len(live)+len(fetched))
	for _, rec := range live {
		seen[rec.ID] = struct{}{}
		out = append(out, rec)
	}
	for _, rec := range fetched {
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Observer is notified of every live record pushed into a Reconciler.
type Observer interface {
	OnActivity(rec Record)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(rec Record)

// OnActivity calls f(rec).
func (f ObserverFunc) OnActivity(rec Record) { f(rec) }

// MaxLive bounds the live records kept per finding. Once full, the oldest
// live record is dropped for each new one.
const MaxLive = 1000

// Reconciler holds the fetched page and the live feed of one finding.
type Reconciler struct {
	mu        sync.Mutex
	fetched   []Record
	live      []Record // oldest first
	observers []Observer
}

// NewReconciler creates a reconciler with the given observers.
func NewReconciler(observers ...Observer) *Reconciler {
	return &Reconciler{observers: observers}
}

// Subscribe registers an additional observer.
func (r *Reconciler) Subscribe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// SetFetched replaces the fetched page.
func (r *Reconciler) SetFetched(records []Record) {
	page := make([]Record, len(records))
	copy(page, records)

	r.mu.Lock()
	r.fetched = page
	r.mu.Unlock()
}

// Push records a live activity and notifies observers. A record whose ID is
// already in the live feed replaces the older copy and moves to the front.
func (r *Reconciler) Push(rec Record) {
	r.mu.Lock()
	for i := range r.live {
		if r.live[i].ID == rec.ID {
			r.live = append(r.live[:i], r.live[i+1:]...)
			break
		}
	}
	r.live = AppendLive(r.live, rec)
	observers := make([]Observer, len(r.observers))
	copy(observers, r.observers)
	r.mu.Unlock()

	for _, o := range observers {
		o.OnActivity(rec)
	}
}

// Live returns the live feed, most recent first.
func (r *Reconciler) Live() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return NewestFirst(r.live)
}

// Activities returns the merged view.
func (r *Reconciler) Activities() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Merge(r.fetched, NewestFirst(r.live))
}

// Reset drops both the fetched page and the live feed.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetched = nil
	r.live = nil
}

// AppendLive appends rec to an oldest-first live list, dropping the oldest
// records beyond MaxLive.
func AppendLive(live []Record, rec Record) []Record {
	live = append(live, rec)
	if over := len(live) - MaxLive; over > 0 {
		live = live[over:]
	}
	return live
}

// NewestFirst returns a reversed copy of an oldest-first list.
func NewestFirst(live []Record) []Record {
	out := make([]Record, len(live))
	for i, rec := range live {
		out[len(live)-1-i] = rec
	}
	return out
}
