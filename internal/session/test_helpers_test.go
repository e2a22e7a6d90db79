package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"offline-chat/internal/crypto"
	"offline-chat/internal/delivery"
	"offline-chat/internal/message"
	"offline-chat/internal/storage"
)

// stubSender resolves sends immediately without a network.
type stubSender struct {
	mu      sync.Mutex
	sent    []message.Message
	outcome delivery.Outcome
}

func (s *stubSender) Send(_ context.Context, msg message.Message) (delivery.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.outcome, nil
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestController(t *testing.T, opts Options) (*Controller, *stubSender) {
	t.Helper()
	sender := &stubSender{outcome: delivery.OutcomeSent}
	if opts.SenderID == "" {
		opts.SenderID = "alice"
	}
	if opts.ReceiverID == "" {
		opts.ReceiverID = "bob"
	}
	if opts.Store == nil {
		opts.Store = newTestStore(t)
	}
	if opts.Queue == nil {
		opts.Queue = sender
	}
	controller, err := NewController(opts)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return controller, sender
}

func newEncryptedController(t *testing.T) (*Controller, *crypto.Cipher) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	cipher, err := crypto.NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	controller, _ := newTestController(t, Options{Cipher: cipher})
	return controller, cipher
}
