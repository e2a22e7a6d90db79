package delivery

import (
	"context"
	"fmt"
	"log"
	"sync"

	"offline-chat/internal/message"
	"offline-chat/internal/storage"
)

// Outcome reports how Send resolved an outgoing message.
type Outcome int

const (
	// OutcomeSent means the transport accepted the message.
	OutcomeSent Outcome = iota
	// OutcomeQueued means the message was durably enqueued for a later
	// sync pass.
	OutcomeQueued
)

// Transport delivers a message to the remote party. Injected; the
// pipeline makes no assumption about what sits behind it.
type Transport interface {
	Send(ctx context.Context, msg message.Message) error
}

// Reachability reports whether the network is currently usable.
type Reachability interface {
	Connected() bool
}

// StatusHook observes a message's final delivery classification so the
// owning timeline can update the canonical copy in place.
type StatusHook func(msg message.Message, status message.Status)

// Queue routes outgoing messages to the transport when the network is
// reachable and into the durable pending store when it is not. A sync
// pass drains pending entries, reclassifying every one as sent or
// failed; nothing is ever dropped.
type Queue struct {
	store     *storage.Store
	transport Transport
	reach     Reachability
	metrics   *Metrics

	mu       sync.Mutex
	inflight map[string]bool
	hook     StatusHook

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewQueue wires a delivery queue over the durable store.
func NewQueue(store *storage.Store, transport Transport, reach Reachability) *Queue {
	return &Queue{
		store:     store,
		transport: transport,
		reach:     reach,
		metrics:   &Metrics{},
		inflight:  make(map[string]bool),
		quit:      make(chan struct{}),
	}
}

// SetStatusHook registers the observer notified when a message's
// delivery resolves. Must be set before Start.
func (q *Queue) SetStatusHook(hook StatusHook) { q.hook = hook }

// MetricsSnapshot exposes the queue counters.
func (q *Queue) MetricsSnapshot() MetricsSnapshot { return q.metrics.Snapshot() }

// Send attempts immediate delivery when the network is reachable and
// enqueues otherwise. If the reachability check races a connectivity
// loss and the attempt errors out, the message is still durably
// enqueued rather than dropped.
func (q *Queue) Send(ctx context.Context, msg message.Message) (Outcome, error) {
	if !q.markInflight(msg.ID) {
		// Another path is already delivering this message.
		return OutcomeQueued, nil
	}
	defer q.clearInflight(msg.ID)

	if !q.reach.Connected() {
		if err := q.enqueuePending(msg); err != nil {
			return OutcomeQueued, err
		}
		q.metrics.Queued.Add(1)
		return OutcomeQueued, nil
	}

	if err := q.attempt(ctx, msg); err != nil {
		log.Printf("send %s failed, enqueueing: %v", msg.ID, err)
		if err := q.enqueuePending(msg); err != nil {
			return OutcomeQueued, err
		}
		q.metrics.Queued.Add(1)
		return OutcomeQueued, nil
	}
	q.metrics.Sent.Add(1)
	q.notify(msg, message.StatusSent)
	return OutcomeSent, nil
}

// SyncPending drains the pending store in one pass: every entry held at
// call time ends up either delivered (and removed) or moved to the
// failed store. Entries added during the pass remain pending for the
// next one.
func (q *Queue) SyncPending(ctx context.Context) error {
	pending, err := q.takePending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	q.metrics.SyncPasses.Add(1)

	var failed []message.Message
	for _, msg := range pending {
		if err := q.attempt(ctx, msg); err != nil {
			log.Printf("sync: delivery of %s failed: %v", msg.ID, err)
			failed = append(failed, msg)
			continue
		}
		q.metrics.Sent.Add(1)
		q.notify(msg, message.StatusSent)
	}
	q.clearInflightAll(pending)

	if len(failed) > 0 {
		err := q.store.UpdateQueue(storage.KeyFailed, func(existing []message.Message) []message.Message {
			return append(existing, failed...)
		})
		if err != nil {
			return fmt.Errorf("recording failed messages: %w", err)
		}
		q.metrics.Failed.Add(uint64(len(failed)))
		for _, msg := range failed {
			q.notify(msg, message.StatusFailed)
		}
	}
	return nil
}

// RedriveFailed moves the failed store back into pending and runs a
// sync pass. Invoked explicitly; failures are never retried on their
// own beyond the single pass that classified them.
func (q *Queue) RedriveFailed(ctx context.Context) error {
	var redriven []message.Message
	err := q.store.UpdateQueue(storage.KeyFailed, func(failed []message.Message) []message.Message {
		redriven = failed
		return nil
	})
	if err != nil {
		return err
	}
	if len(redriven) == 0 {
		return nil
	}
	err = q.store.UpdateQueue(storage.KeyPending, func(pending []message.Message) []message.Message {
		return append(pending, redriven...)
	})
	if err != nil {
		return err
	}
	return q.SyncPending(ctx)
}

// Pending lists the currently queued messages.
func (q *Queue) Pending() ([]message.Message, error) {
	return q.store.LoadQueue(storage.KeyPending)
}

// Failed lists messages whose sync attempt failed.
func (q *Queue) Failed() ([]message.Message, error) {
	return q.store.LoadQueue(storage.KeyFailed)
}

// Start launches the reachability watcher: every transition to
// connected triggers a sync pass. Stop tears it down.
func (q *Queue) Start(ctx context.Context, changes <-chan bool) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.quit:
				return
			case connected, ok := <-changes:
				if !ok {
					return
				}
				if !connected {
					continue
				}
				if err := q.SyncPending(ctx); err != nil {
					log.Printf("sync pending: %v", err)
				}
			}
		}
	}()
}

// Stop halts the watcher and waits for it to exit.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.quit) })
	q.wg.Wait()
}

// attempt invokes the transport, converting panics into errors so a
// misbehaving transport can never cause a composed message to vanish.
func (q *Queue) attempt(ctx context.Context, msg message.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return q.transport.Send(ctx, msg)
}

func (q *Queue) enqueuePending(msg message.Message) error {
	return q.store.UpdateQueue(storage.KeyPending, func(pending []message.Message) []message.Message {
		for _, existing := range pending {
			if existing.ID == msg.ID {
				return pending
			}
		}
		return append(pending, msg)
	})
}

// takePending removes the current pending entries inside one store
// transaction and marks them in-flight, so a concurrent Send or sync
// pass cannot deliver the same entry twice.
func (q *Queue) takePending() ([]message.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var taken []message.Message
	err := q.store.UpdateQueue(storage.KeyPending, func(pending []message.Message) []message.Message {
		var kept []message.Message
		for _, msg := range pending {
			if q.inflight[msg.ID] {
				// Another path owns this entry; leave it queued.
				kept = append(kept, msg)
				continue
			}
			q.inflight[msg.ID] = true
			taken = append(taken, msg)
		}
		return kept
	})
	if err != nil {
		return nil, err
	}
	return taken, nil
}

func (q *Queue) markInflight(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inflight[id] {
		return false
	}
	q.inflight[id] = true
	return true
}

func (q *Queue) clearInflight(id string) {
	q.mu.Lock()
	delete(q.inflight, id)
	q.mu.Unlock()
}

func (q *Queue) clearInflightAll(msgs []message.Message) {
	q.mu.Lock()
	for _, msg := range msgs {
		delete(q.inflight, msg.ID)
	}
	q.mu.Unlock()
}

func (q *Queue) notify(msg message.Message, status message.Status) {
	if q.hook != nil {
		q.hook(msg, status)
	}
}
