package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"offline-chat/internal/crypto"
	"offline-chat/internal/delivery"
	"offline-chat/internal/message"
	"offline-chat/internal/preview"
	"offline-chat/internal/storage"
)

// ErrMessageNotFound reports an edit, reaction, or forward targeting an
// id absent from the timeline.
var ErrMessageNotFound = errors.New("message not found")

const defaultPageSize = 50

// Sender is the delivery surface the controller hands outgoing
// messages to.
type Sender interface {
	Send(ctx context.Context, msg message.Message) (delivery.Outcome, error)
}

// Options wires a controller's collaborators. Queue and Store are
// required; Cipher enables encryption at rest for the conversation;
// Enricher enables link previews.
type Options struct {
	SenderID   string
	ReceiverID string
	Store      *storage.Store
	Queue      Sender
	Enricher   *preview.Enricher
	Cipher     *crypto.Cipher
	PageSize   int
}

// Controller owns the in-memory ordered timeline for one conversation
// and orchestrates composition, enrichment, encryption, and delivery.
type Controller struct {
	senderID   string
	receiverID string
	store      *storage.Store
	queue      Sender
	enricher   *preview.Enricher
	cipher     *crypto.Cipher
	pageSize   int

	mu          sync.Mutex
	timeline    []message.Message
	cursor      string
	loadingMore bool

	// listeners receive every timeline append/update, e.g. a live
	// websocket feed.
	listeners []func(message.Message)
}

// NewController builds a controller and seeds its timeline from the
// durable store.
func NewController(opts Options) (*Controller, error) {
	if opts.Store == nil || opts.Queue == nil {
		return nil, errors.New("store and queue are required")
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	c := &Controller{
		senderID:   opts.SenderID,
		receiverID: opts.ReceiverID,
		store:      opts.Store,
		queue:      opts.Queue,
		enricher:   opts.Enricher,
		cipher:     opts.Cipher,
		pageSize:   pageSize,
	}
	recent, err := opts.Store.Recent(pageSize)
	if err != nil {
		return nil, err
	}
	// Recent returns newest first; the timeline is oldest first.
	for i := len(recent) - 1; i >= 0; i-- {
		c.timeline = append(c.timeline, recent[i])
	}
	return c, nil
}

// Subscribe registers a listener for timeline appends and updates.
func (c *Controller) Subscribe(fn func(message.Message)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Encrypted reports whether this conversation encrypts content at rest.
func (c *Controller) Encrypted() bool { return c.cipher != nil }

// Send composes a text message, attaches link previews, optionally
// encrypts the content, appends it to the timeline, and hands it to
// the delivery queue. The append happens before delivery resolves, so
// the timeline always reflects user intent immediately.
func (c *Controller) Send(ctx context.Context, content string) (message.Message, error) {
	msg := message.New(c.senderID, c.receiverID, content)

	if c.enricher != nil {
		if urls := preview.ExtractURLs(content); len(urls) > 0 {
			msg.LinkPreviews = c.enricher.Generate(ctx, urls)
		}
	}
	if err := c.sealContent(&msg); err != nil {
		return message.Message{}, err
	}
	return c.dispatch(ctx, msg)
}

// SendMedia composes and sends a message carrying a media body.
func (c *Controller) SendMedia(ctx context.Context, body message.Body) (message.Message, error) {
	if body == nil || body.Kind() == message.KindText {
		return message.Message{}, errors.New("media body required")
	}
	msg := message.New(c.senderID, c.receiverID, "")
	msg.Body = body
	return c.dispatch(ctx, msg)
}

// Forward clones an existing message's body into a new message to
// another receiver, recording the original sender, and routes it
// through the normal send path.
func (c *Controller) Forward(ctx context.Context, messageID, toReceiverID string) (message.Message, error) {
	c.mu.Lock()
	idx := c.indexOf(messageID)
	if idx < 0 {
		c.mu.Unlock()
		return message.Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	original := c.timeline[idx]
	c.mu.Unlock()

	msg := message.New(c.senderID, toReceiverID, "")
	msg.Body = original.Body
	msg.Encrypted = original.Encrypted
	msg.LinkPreviews = original.LinkPreviews
	msg.ForwardedFrom = original.SenderID
	return c.dispatch(ctx, msg)
}

// Edit replaces a message's content, pushing the prior value onto its
// edit history first. Encrypted conversations keep the encrypted flag
// accurate by sealing the new content too.
func (c *Controller) Edit(messageID, newContent string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexOf(messageID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	msg := &c.timeline[idx]
	body, ok := msg.Body.(message.TextBody)
	if !ok {
		return fmt.Errorf("cannot edit %s message %s", msg.Kind(), messageID)
	}
	if msg.Encrypted {
		if c.cipher == nil {
			return fmt.Errorf("editing encrypted message %s without cipher", messageID)
		}
		sealed, err := c.cipher.Encrypt(newContent)
		if err != nil {
			return err
		}
		newContent = sealed
	}
	msg.EditHistory = append(msg.EditHistory, message.Edit{
		Content:   body.Content,
		Timestamp: time.Now().UTC(),
	})
	msg.Body = message.TextBody{Content: newContent}
	c.persistLocked(*msg)
	return nil
}

// React appends a reaction. The list is append-only; duplicates by the
// same user are allowed.
func (c *Controller) React(messageID, userID, reaction string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexOf(messageID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	c.timeline[idx].Reactions = append(c.timeline[idx].Reactions, message.Reaction{
		UserID:    userID,
		Reaction:  reaction,
		Timestamp: time.Now().UTC(),
	})
	c.persistLocked(c.timeline[idx])
	return nil
}

// Schedule composes a message for future delivery. It enters the
// durable scheduled store, not the live timeline or the delivery
// queue; the scheduler promotes it at or after deliverAt.
func (c *Controller) Schedule(content string, deliverAt time.Time) (message.Message, error) {
	msg := message.New(c.senderID, c.receiverID, content)
	msg.Status = message.StatusScheduled
	msg.ScheduledFor = deliverAt
	if err := c.sealContent(&msg); err != nil {
		return message.Message{}, err
	}
	err := c.store.UpdateQueue(storage.KeyScheduled, func(scheduled []message.Message) []message.Message {
		return append(scheduled, msg)
	})
	if err != nil {
		return message.Message{}, err
	}
	return msg, nil
}

// Scheduled lists messages awaiting promotion.
func (c *Controller) Scheduled() ([]message.Message, error) {
	return c.store.LoadQueue(storage.KeyScheduled)
}

// PromoteDue moves every scheduled message whose time has arrived into
// the live send path.
func (c *Controller) PromoteDue(ctx context.Context, now time.Time) error {
	var due []message.Message
	err := c.store.UpdateQueue(storage.KeyScheduled, func(scheduled []message.Message) []message.Message {
		var waiting []message.Message
		for _, msg := range scheduled {
			if msg.ScheduledFor.After(now) {
				waiting = append(waiting, msg)
				continue
			}
			due = append(due, msg)
		}
		return waiting
	})
	if err != nil {
		return err
	}
	for _, msg := range due {
		msg.Status = message.StatusSending
		if _, err := c.dispatch(ctx, msg); err != nil {
			log.Printf("promoting scheduled message %s: %v", msg.ID, err)
		}
	}
	return nil
}

// LoadMore pages older messages from the durable store into the
// timeline, returning the fetched page oldest first. A page already in
// flight makes the call a no-op; a short or empty page signals the end
// of history.
func (c *Controller) LoadMore() ([]message.Message, error) {
	c.mu.Lock()
	if c.loadingMore {
		c.mu.Unlock()
		return nil, nil
	}
	c.loadingMore = true
	cursor := c.cursor
	if cursor == "" && len(c.timeline) > 0 {
		oldest := c.timeline[0]
		cursor = fmt.Sprintf("%020d-%s", oldest.Timestamp.UnixNano(), oldest.ID)
	}
	c.mu.Unlock()

	page, next, err := c.store.PageBefore(cursor, c.pageSize)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadingMore = false
	if err != nil {
		return nil, err
	}
	if len(page) == 0 {
		return nil, nil
	}
	c.cursor = next
	// PageBefore returns newest first; flip and merge.
	out := make([]message.Message, len(page))
	for i, msg := range page {
		out[len(page)-1-i] = msg
	}
	for _, msg := range out {
		if c.indexOf(msg.ID) < 0 {
			c.timeline = append(c.timeline, msg)
		}
	}
	c.sortLocked()
	return out, nil
}

// ResetCursor restarts pagination from the newest message.
func (c *Controller) ResetCursor() {
	c.mu.Lock()
	c.cursor = ""
	c.mu.Unlock()
}

// Timeline returns a copy of the live timeline, oldest first.
func (c *Controller) Timeline() []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]message.Message, len(c.timeline))
	copy(out, c.timeline)
	return out
}

// Get returns the timeline copy of one message.
func (c *Controller) Get(messageID string) (message.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexOf(messageID)
	if idx < 0 {
		return message.Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	return c.timeline[idx], nil
}

// Decrypt returns the plaintext of an encrypted message's content.
func (c *Controller) Decrypt(msg message.Message) (string, error) {
	if !msg.Encrypted {
		return msg.Content(), nil
	}
	if c.cipher == nil {
		return "", errors.New("conversation has no cipher")
	}
	return c.cipher.Decrypt(msg.Content())
}

// ApplyStatus records a delivery resolution on the canonical timeline
// copy. Wire it as the delivery queue's status hook.
func (c *Controller) ApplyStatus(msg message.Message, status message.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.indexOf(msg.ID)
	if idx < 0 {
		return
	}
	c.timeline[idx].Status = status
	c.persistLocked(c.timeline[idx])
}

// dispatch appends optimistically, persists, and hands off to the
// delivery queue. Delivery failures never surface here; they land in
// the message status instead.
func (c *Controller) dispatch(ctx context.Context, msg message.Message) (message.Message, error) {
	c.mu.Lock()
	c.timeline = append(c.timeline, msg)
	c.sortLocked()
	c.persistLocked(msg)
	c.mu.Unlock()

	outcome, err := c.queue.Send(ctx, msg)
	if err != nil {
		return msg, err
	}
	if outcome == delivery.OutcomeSent {
		msg.Status = message.StatusSent
	}
	c.mu.Lock()
	if idx := c.indexOf(msg.ID); idx >= 0 {
		msg = c.timeline[idx]
	}
	c.mu.Unlock()
	return msg, nil
}

// sealContent encrypts text content in place when the conversation is
// configured for encryption, keeping the encrypted flag accurate.
func (c *Controller) sealContent(msg *message.Message) error {
	if c.cipher == nil {
		return nil
	}
	body, ok := msg.Body.(message.TextBody)
	if !ok {
		return nil
	}
	sealed, err := c.cipher.Encrypt(body.Content)
	if err != nil {
		return err
	}
	msg.Body = message.TextBody{Content: sealed}
	msg.Encrypted = true
	return nil
}

// indexOf requires c.mu held.
func (c *Controller) indexOf(id string) int {
	for i := range c.timeline {
		if c.timeline[i].ID == id {
			return i
		}
	}
	return -1
}

// sortLocked keeps the timeline ordered by timestamp with id as the
// tie-break. Requires c.mu held.
func (c *Controller) sortLocked() {
	sort.SliceStable(c.timeline, func(i, j int) bool {
		return c.timeline[i].Before(c.timeline[j])
	})
}

// persistLocked writes a message to the durable timeline and notifies
// listeners. Requires c.mu held.
func (c *Controller) persistLocked(msg message.Message) {
	if err := c.store.PutMessage(msg); err != nil {
		log.Printf("persisting message %s: %v", msg.ID, err)
	}
	for _, fn := range c.listeners {
		fn(msg)
	}
}
