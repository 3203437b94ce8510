package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tandemtalk/server/internal/store"
)

// fakeStore implements the slice of store.Store the hub touches; everything
// else panics via the embedded nil interface.
type fakeStore struct {
	store.Store

	mu        sync.Mutex
	chats     map[int64]*store.Chat
	messages  []*store.Message
	nextMsgID int64

	insertErr error

	snapshots   map[int64]store.ChatSnapshot
	onlineFlags map[int64]bool
}

func newFakeStore(chats ...*store.Chat) *fakeStore {
	fs := &fakeStore{
		chats:       make(map[int64]*store.Chat),
		snapshots:   make(map[int64]store.ChatSnapshot),
		onlineFlags: make(map[int64]bool),
	}
	for _, c := range chats {
		fs.chats[c.ID] = c
	}
	return fs
}

func (f *fakeStore) GetChatByID(_ context.Context, id int64) (*store.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.chats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return chat, nil
}

func (f *fakeStore) InsertMessage(_ context.Context, chatID, senderID int64, body string) (*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.nextMsgID++
	msg := &store.Message{
		ID:        f.nextMsgID,
		ChatID:    chatID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeStore) ListMessages(_ context.Context, chatID int64, limit int, _ *int64) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Message
	for _, m := range f.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeStore) UpdateChatLastMessage(_ context.Context, chatID int64, snap store.ChatSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[chatID] = snap
	return nil
}

func (f *fakeStore) SetUserOnlineStatus(_ context.Context, userID int64, online bool, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onlineFlags[userID] = online
	return nil
}

func (f *fakeStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeStore) failInserts(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertErr = err
}

var errStoreDown = errors.New("store down")

// testChat builds the canonical two-participant chat used across tests.
func testChat(id, userA, userB int64) *store.Chat {
	return &store.Chat{
		ID:        id,
		UserAID:   userA,
		UserBID:   userB,
		DirectKey: store.DirectKey(userA, userB),
		CreatedAt: time.Now(),
	}
}

// mustEvent waits for the next event of the given kind, skipping others.
func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("events channel closed while waiting for kind %v", kind)
			}
			if ev != nil && ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected event kind %v not received", kind)
		}
	}
}

// mustNoEvent asserts no event of the given kind arrives within the window.
func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	timeout := time.After(150 * time.Millisecond)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event of kind %v: %+v", kind, ev)
			}
		case <-timeout:
			return
		}
	}
}
