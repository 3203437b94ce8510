package partners

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/tandemtalk/server/internal/store"
	"github.com/tandemtalk/server/internal/store/sqlite"
)

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		_, err := db.Exec(sqlite.Schema)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return New(st), st
}

func seedUsers(t *testing.T, st store.Store, usernames ...string) []int64 {
	t.Helper()

	ctx := context.Background()
	ids := make([]int64, 0, len(usernames))
	for _, name := range usernames {
		user, err := st.CreateUser(ctx, name, "hash")
		if err != nil {
			t.Fatalf("failed to create user %s: %v", name, err)
		}
		ids = append(ids, user.ID)
	}
	return ids
}

func TestSendRequest(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "alice", "bob")

	link, err := svc.SendRequest(ctx, ids[0], ids[1])
	if err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}
	if link.Status != store.PartnerStatusPending {
		t.Fatalf("expected pending, got %s", link.Status)
	}

	if _, err := svc.SendRequest(ctx, ids[0], ids[0]); !errors.Is(err, ErrCannotPartnerSelf) {
		t.Fatalf("expected ErrCannotPartnerSelf, got %v", err)
	}
	if _, err := svc.SendRequest(ctx, ids[0], 9999); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := svc.SendRequest(ctx, ids[0], ids[1]); !errors.Is(err, ErrRequestAlreadyExists) {
		t.Fatalf("expected ErrRequestAlreadyExists, got %v", err)
	}
	// The reverse direction hits the same link.
	if _, err := svc.SendRequest(ctx, ids[1], ids[0]); !errors.Is(err, ErrRequestAlreadyExists) {
		t.Fatalf("expected ErrRequestAlreadyExists for reverse direction, got %v", err)
	}
}

func TestAcceptRequest(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "alice", "bob")

	if _, err := svc.SendRequest(ctx, ids[0], ids[1]); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	// The sender cannot accept their own request.
	if err := svc.AcceptRequest(ctx, ids[0], ids[1]); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound for sender, got %v", err)
	}

	if err := svc.AcceptRequest(ctx, ids[1], ids[0]); err != nil {
		t.Fatalf("AcceptRequest failed: %v", err)
	}

	linked, err := svc.ArePartners(ctx, ids[0], ids[1])
	if err != nil {
		t.Fatalf("ArePartners failed: %v", err)
	}
	if !linked {
		t.Fatal("expected accepted partners")
	}

	// An accepted link cannot be accepted again.
	if err := svc.AcceptRequest(ctx, ids[1], ids[0]); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound after accept, got %v", err)
	}

	if _, err := svc.SendRequest(ctx, ids[0], ids[1]); !errors.Is(err, ErrAlreadyPartners) {
		t.Fatalf("expected ErrAlreadyPartners, got %v", err)
	}
}

func TestDeclineAndReopen(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "alice", "bob")

	if _, err := svc.SendRequest(ctx, ids[0], ids[1]); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}
	if err := svc.DeclineRequest(ctx, ids[1], ids[0]); err != nil {
		t.Fatalf("DeclineRequest failed: %v", err)
	}

	linked, err := svc.ArePartners(ctx, ids[0], ids[1])
	if err != nil {
		t.Fatalf("ArePartners failed: %v", err)
	}
	if linked {
		t.Fatal("declined link must not count as partners")
	}

	// Asking again reopens the declined link as pending.
	link, err := svc.SendRequest(ctx, ids[0], ids[1])
	if err != nil {
		t.Fatalf("SendRequest after decline failed: %v", err)
	}
	if link.Status != store.PartnerStatusPending {
		t.Fatalf("expected pending after reopen, got %s", link.Status)
	}
}

func TestListPartnersFilter(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	ids := seedUsers(t, st, "alice", "bob", "carol")

	if _, err := svc.SendRequest(ctx, ids[0], ids[1]); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}
	if err := svc.AcceptRequest(ctx, ids[1], ids[0]); err != nil {
		t.Fatalf("AcceptRequest failed: %v", err)
	}
	if _, err := svc.SendRequest(ctx, ids[2], ids[0]); err != nil {
		t.Fatalf("SendRequest failed: %v", err)
	}

	all, err := svc.ListPartners(ctx, ids[0], nil)
	if err != nil {
		t.Fatalf("ListPartners failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 links, got %d", len(all))
	}

	pending := store.PartnerStatusPending
	filtered, err := svc.ListPartners(ctx, ids[0], &pending)
	if err != nil {
		t.Fatalf("ListPartners with filter failed: %v", err)
	}
	if len(filtered) != 1 || filtered[0].UserID != ids[2] {
		t.Fatalf("expected the pending request from carol, got %+v", filtered)
	}
}
