package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ladlehq/ladle/internal/domain/model"
)

// ErrWaiterRequired indicates a notifier cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until the store signals that new jobs of a category may be
// available (LISTEN/NOTIFY in the Postgres repo).
type Waiter interface {
	WaitForNotification(ctx context.Context, category model.JobCategory) error
}

// Notifier manages subscriptions for job availability wakeups.
type Notifier interface {
	Subscribe(category model.JobCategory) (func(), <-chan struct{})
	StopAll()
}

// NotifierOptions configure the default notifier implementation.
type NotifierOptions struct {
	Waiter     Waiter
	WaitWindow time.Duration
	Backoff    time.Duration
}

// DefaultNotifier fans one store listener per category out to any number of
// subscribed workers.
type DefaultNotifier struct {
	waiter     Waiter
	waitWindow time.Duration
	backoff    time.Duration

	mu        sync.Mutex
	subs      map[model.JobCategory]map[chan struct{}]struct{}
	listeners map[model.JobCategory]context.CancelFunc
}

// NewNotifier constructs the default notifier implementation.
func NewNotifier(opts NotifierOptions) (*DefaultNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}

	waitWindow := opts.WaitWindow
	if waitWindow <= 0 {
		waitWindow = time.Minute
	}

	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	return &DefaultNotifier{
		waiter:     opts.Waiter,
		waitWindow: waitWindow,
		backoff:    backoff,
		subs:       make(map[model.JobCategory]map[chan struct{}]struct{}),
		listeners:  make(map[model.JobCategory]context.CancelFunc),
	}, nil
}

func (n *DefaultNotifier) Subscribe(category model.JobCategory) (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.listeners[category]; !ok {
		ctx, cancel := context.WithCancel(context.Background())
		n.listeners[category] = cancel
		go n.listenLoop(ctx, category)
	}

	ch := make(chan struct{}, 1)
	if n.subs[category] == nil {
		n.subs[category] = make(map[chan struct{}]struct{})
	}
	n.subs[category][ch] = struct{}{}

	unsub := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		subscribers := n.subs[category]
		if subscribers == nil {
			return
		}
		if _, ok := subscribers[ch]; !ok {
			return
		}
		delete(subscribers, ch)
		drainAndClose(ch)
		if len(subscribers) == 0 {
			n.stopListener(category)
			delete(n.subs, category)
		}
	}

	return unsub, ch
}

func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for category, cancel := range n.listeners {
		cancel()
		delete(n.listeners, category)
	}
	for category, subscribers := range n.subs {
		for ch := range subscribers {
			drainAndClose(ch)
		}
		delete(n.subs, category)
	}
}

func (n *DefaultNotifier) stopListener(category model.JobCategory) {
	cancel, ok := n.listeners[category]
	if !ok {
		return
	}
	cancel()
	delete(n.listeners, category)
}

func (n *DefaultNotifier) listenLoop(ctx context.Context, category model.JobCategory) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForNotification(waitCtx, category)
		cancel()

		n.broadcast(category)

		if err != nil && ctx.Err() == nil {
			timer := time.NewTimer(n.backoff)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return
			case <-timer.C:
			}
		}
	}
}

func (n *DefaultNotifier) broadcast(category model.JobCategory) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.subs[category] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// drainAndClose removes any buffered notifications before closing the channel
// so receivers observe a closed channel immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Notifier = (*DefaultNotifier)(nil)
