package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rpggio/triagewatch/internal/domain/activity"
)

// State is the advisory connection state of a subscription.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// Event types carrying an activity. Other event types are ignored.
const (
	EventActivity = "activity"
	EventMessage  = "message"
)

const (
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
)

// Dialer opens the event stream of a finding.
type Dialer interface {
	OpenStream(ctx context.Context, findingID string) (io.ReadCloser, error)
}

// Options configures reconnect behavior.
type Options struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (o Options) withDefaults() Options {
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = DefaultInitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.MaxBackoff < o.InitialBackoff {
		o.MaxBackoff = o.InitialBackoff
	}
	return o
}

// Client subscribes to the live activity feed of one finding at a time.
type Client struct {
	dialer Dialer
	opts   Options
	logger *slog.Logger

	// lifecycle serializes Watch and Close.
	lifecycle sync.Mutex

	mu        sync.Mutex
	gen       uint64
	findingID string
	state     State
	received  []activity.Record // oldest first
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewClient creates a stream client.
func NewClient(dialer Dialer, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		dialer: dialer,
		opts:   opts.withDefaults(),
		logger: logger.With("component", "stream"),
		state:  StateDisconnected,
	}
}

// Watch closes any current subscription and subscribes to findingID.
// onActivity is called on the subscription goroutine for every record and
// must not block. An empty findingID leaves the client disconnected.
func (c *Client) Watch(findingID string, onActivity func(activity.Record)) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.findingID = findingID
	c.received = nil
	if findingID == "" {
		c.state = StateDisconnected
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.state = StateConnecting
	c.cancel = cancel
	c.done = done
	go c.run(ctx, c.gen, findingID, onActivity, done)
}

// Close ends the current subscription and waits for it to stop.
func (c *Client) Close() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.stop()

	c.mu.Lock()
	c.gen++
	c.state = StateDisconnected
	c.mu.Unlock()
}

// FindingID returns the finding currently watched.
func (c *Client) FindingID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findingID
}

// State returns the connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Activities returns the records received since the subscription opened,
// most recent first, up to activity.MaxLive.
func (c *Client) Activities() []activity.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return activity.NewestFirst(c.received)
}

func (c *Client) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Client) run(ctx context.Context, gen uint64, findingID string, onActivity func(activity.Record), done chan struct{}) {
	defer close(done)

	logger := c.logger.With("finding_id", findingID)
	backoff := c.opts.InitialBackoff

	for {
		c.setState(gen, StateConnecting)
		body, err := c.dialer.OpenStream(ctx, findingID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("stream connect failed", "error", err, "retry_in", backoff)
		} else {
			c.setState(gen, StateConnected)
			logger.Debug("stream connected")
			err = c.consume(ctx, gen, findingID, body, onActivity, logger)
			body.Close()
			if ctx.Err() != nil {
				return
			}
			backoff = c.opts.InitialBackoff
			logger.Debug("stream ended", "error", err, "retry_in", backoff)
		}

		c.setState(gen, StateDisconnected)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, c.opts.MaxBackoff)
	}
}

func (c *Client) consume(ctx context.Context, gen uint64, findingID string, body io.Reader, onActivity func(activity.Record), logger *slog.Logger) error {
	scanner := NewScanner(body)
	for scanner.Next() {
		event := scanner.Event()
		if event.Type != "" && event.Type != EventActivity && event.Type != EventMessage {
			logger.Debug("ignoring stream event", "event", event.Type)
			continue
		}

		rec, err := decode(event.Data, findingID)
		if err != nil {
			logger.Warn("skipping malformed stream event", "error", err)
			continue
		}

		if !c.append(gen, rec) || ctx.Err() != nil {
			return ctx.Err()
		}
		if onActivity != nil {
			onActivity(rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

var errMissingID = errors.New("activity without id")

func decode(data, findingID string) (activity.Record, error) {
	var raw activity.RawActivity
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return activity.Record{}, err
	}
	if raw.ID == "" {
		return activity.Record{}, errMissingID
	}
	if raw.FindingID == "" {
		raw.FindingID = findingID
	}
	return activity.Normalize(raw), nil
}

// append stores rec unless the subscription that produced it is gone.
func (c *Client) append(gen uint64, rec activity.Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.received = activity.AppendLive(c.received, rec)
	return true
}

func (c *Client) setState(gen uint64, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.gen {
		c.state = state
	}
}
