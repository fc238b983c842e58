package feed

import (
	"context"
	"sort"
	"sync"
)

type entry struct {
	feed  *Feed
	err   error
	ready chan struct{}
}

// Registry shares one feed per finding between consumers.
type Registry struct {
	deps Deps

	mu     sync.Mutex
	closed bool
	feeds  map[string]*entry
}

// NewRegistry creates an empty registry.
func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps, feeds: make(map[string]*entry)}
}

// Open returns the feed of findingID, opening it on first use.
func (r *Registry) Open(ctx context.Context, findingID string) (*Feed, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if e, ok := r.feeds[findingID]; ok {
		r.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		return e.feed, nil
	}
	e := &entry{ready: make(chan struct{})}
	r.feeds[findingID] = e
	r.mu.Unlock()

	f, err := Open(ctx, findingID, r.deps)

	r.mu.Lock()
	if err == nil && r.closed {
		f.Close()
		f, err = nil, ErrClosed
	}
	e.feed, e.err = f, err
	if err != nil {
		delete(r.feeds, findingID)
	}
	close(e.ready)
	r.mu.Unlock()

	return f, err
}

// Get returns the open feed of findingID, if any.
func (r *Registry) Get(findingID string) (*Feed, bool) {
	r.mu.Lock()
	e, ok := r.feeds[findingID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
		return e.feed, e.err == nil
	default:
		return nil, false
	}
}

// Release closes the feed of findingID. It reports whether a feed was open.
func (r *Registry) Release(findingID string) bool {
	r.mu.Lock()
	e, ok := r.feeds[findingID]
	if ok {
		select {
		case <-e.ready:
			delete(r.feeds, findingID)
		default:
			ok = false
		}
	}
	r.mu.Unlock()

	if !ok || e.feed == nil {
		return false
	}
	e.feed.Close()
	return true
}

// FindingIDs returns the findings with an open feed, sorted.
func (r *Registry) FindingIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.feeds))
	for id, e := range r.feeds {
		select {
		case <-e.ready:
			if e.err == nil {
				ids = append(ids, id)
			}
		default:
		}
	}
	sort.Strings(ids)
	return ids
}

// Close closes every feed. Later calls to Open return ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	var feeds []*Feed
	for id, e := range r.feeds {
		select {
		case <-e.ready:
			if e.feed != nil {
				feeds = append(feeds, e.feed)
			}
			delete(r.feeds, id)
		default:
		}
	}
	r.mu.Unlock()

	for _, f := range feeds {
		f.Close()
	}
}
