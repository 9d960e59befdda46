// Package tailer observes a stack's convergence: it polls the backend,
// surfaces each stack event exactly once in chronological order, and ends
// the feed with a single success or failure marker once the stack reaches
// a terminal status.
package tailer

import (
	"context"
	"iter"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"

	"github.com/stacktide/stacktide/internal/status"
)

// API is the read side of the stack gateway the tailer polls.
type API interface {
	DescribeStack(ctx context.Context, name string) (*types.Stack, error)
	ListStackEvents(ctx context.Context, name string) ([]types.StackEvent, error)
}

// Event is one progress record from the feed.
type Event struct {
	ResourceType         string    `json:"resourceType"`
	LogicalResourceID    string    `json:"logicalResourceId"`
	PhysicalResourceID   string    `json:"physicalResourceId,omitempty"`
	ResourceStatus       string    `json:"resourceStatus"`
	ResourceStatusReason string    `json:"resourceStatusReason,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

// Outcome is the terminal marker ending a feed. StackStatus carries the raw
// backend status; State is its classification, always Success or Failure.
type Outcome struct {
	StackStatus string       `json:"stackStatus"`
	State       status.State `json:"state"`
}

// Item is one element of the feed: exactly one of Event or Outcome is set.
// An Outcome, when it appears, is always the last item.
type Item struct {
	Event   *Event   `json:"event,omitempty"`
	Outcome *Outcome `json:"outcome,omitempty"`
}

const defaultPollInterval = 5 * time.Second

type options struct {
	cursor       *int
	pollInterval time.Duration
}

// Option adjusts how a Tailer is constructed.
type Option func(*options)

// WithCursor sets the starting cursor. n >= 0 is an absolute event-count
// offset; n < 0 means the last -n events are already known and tailing
// begins after them.
func WithCursor(n int) Option {
	return func(o *options) {
		o.cursor = &n
	}
}

// WithPollInterval overrides the 5 second backoff between poll cycles.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

// Tailer is a single tailing session. Its only state is the cursor: the
// count of events already observed, monotonically non-decreasing across
// polls. Sessions are independent; run one per stack, never share one.
type Tailer struct {
	client   API
	stack    string
	cursor   int
	interval time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// New builds a tailing session for the named stack, resolving the starting
// cursor immediately. Without WithCursor the cursor is the stack's current
// event count, so only events from this moment on are surfaced — construct
// the tailer before triggering a create or update and no early event can
// slip past unobserved.
func New(ctx context.Context, client API, stack string, opts ...Option) (*Tailer, error) {
	o := options{pollInterval: defaultPollInterval}
	for _, opt := range opts {
		opt(&o)
	}

	t := &Tailer{
		client:   client,
		stack:    stack,
		interval: o.pollInterval,
		sleep:    sleepContext,
	}

	switch {
	case o.cursor == nil:
		events, err := client.ListStackEvents(ctx, stack)
		if err != nil {
			return nil, err
		}
		t.cursor = len(events)
	case *o.cursor < 0:
		events, err := client.ListStackEvents(ctx, stack)
		if err != nil {
			return nil, err
		}
		t.cursor = max(len(events)+*o.cursor, 0)
	default:
		t.cursor = *o.cursor
	}
	return t, nil
}

// Follow returns the live feed as a pull-based sequence. It is lazy: no
// polling happens until the caller starts ranging, and breaking out of the
// range stops the session with nothing to clean up. Each cycle reads the
// stack status, then the event list (the two reads are not a consistent
// snapshot; the terminal check runs after event emission in the same cycle,
// so events observed alongside a terminal status still drain first). New
// events are yielded oldest first. A poll failure is yielded as an error
// and ends the feed — retry policy belongs to the transport layer below.
func (t *Tailer) Follow(ctx context.Context) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		for {
			stack, err := t.client.DescribeStack(ctx, t.stack)
			if err != nil {
				yield(Item{}, err)
				return
			}
			events, err := t.client.ListStackEvents(ctx, t.stack)
			if err != nil {
				yield(Item{}, err)
				return
			}

			if len(events) > t.cursor {
				// The backend returns newest first; the fresh slice is the
				// head, reversed here to restore chronological order.
				fresh := events[:len(events)-t.cursor]
				for i := len(fresh) - 1; i >= 0; i-- {
					event := fromSDK(fresh[i])
					if !yield(Item{Event: &event}, nil) {
						return
					}
				}
				t.cursor = len(events)
			}

			raw := string(stack.StackStatus)
			if state := status.Classify(raw); state.Terminal() {
				yield(Item{Outcome: &Outcome{StackStatus: raw, State: state}}, nil)
				return
			}

			if err := t.sleep(ctx, t.interval); err != nil {
				yield(Item{}, err)
				return
			}
		}
	}
}

func fromSDK(e types.StackEvent) Event {
	return Event{
		ResourceType:         aws.ToString(e.ResourceType),
		LogicalResourceID:    aws.ToString(e.LogicalResourceId),
		PhysicalResourceID:   aws.ToString(e.PhysicalResourceId),
		ResourceStatus:       string(e.ResourceStatus),
		ResourceStatusReason: aws.ToString(e.ResourceStatusReason),
		Timestamp:            aws.ToTime(e.Timestamp),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
