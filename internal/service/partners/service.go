package partners

import (
	"context"
	"errors"
	"fmt"

	"github.com/tandemtalk/server/internal/store"
)

// Common errors for partner operations.
var (
	ErrCannotPartnerSelf    = errors.New("cannot send a partner request to yourself")
	ErrAlreadyPartners      = errors.New("already partners")
	ErrRequestAlreadyExists = errors.New("partner request already exists")
	ErrRequestNotFound      = errors.New("partner request not found")
	ErrUserNotFound         = errors.New("user not found")
)

// Service provides language-partner management. An accepted link between two
// users is the precondition for opening a chat between them.
type Service struct {
	store store.Store
}

// New creates a new partner service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// SendRequest sends a partner request from one user to another.
func (s *Service) SendRequest(ctx context.Context, fromUserID, toUserID int64) (*store.Partner, error) {
	if fromUserID == toUserID {
		return nil, ErrCannotPartnerSelf
	}

	if _, err := s.store.GetUserByID(ctx, toUserID); err != nil {
		return nil, ErrUserNotFound
	}

	existing, err := s.store.GetPartnerLink(ctx, fromUserID, toUserID)
	if err == nil {
		switch existing.Status {
		case store.PartnerStatusAccepted:
			return nil, ErrAlreadyPartners
		case store.PartnerStatusPending:
			return nil, ErrRequestAlreadyExists
		case store.PartnerStatusDeclined:
			// A declined pair may try again: flip the link back to pending.
			if err := s.store.UpdatePartnerStatus(ctx, fromUserID, toUserID, store.PartnerStatusPending); err != nil {
				return nil, fmt.Errorf("reopen partner request: %w", err)
			}
			return s.store.GetPartnerLink(ctx, fromUserID, toUserID)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup partner link: %w", err)
	}

	link, err := s.store.CreatePartnerRequest(ctx, fromUserID, toUserID)
	if err != nil {
		return nil, fmt.Errorf("create partner request: %w", err)
	}
	return link, nil
}

// AcceptRequest accepts a pending partner request sent to userID.
func (s *Service) AcceptRequest(ctx context.Context, userID, fromUserID int64) error {
	existing, err := s.store.GetPartnerLink(ctx, fromUserID, userID)
	if err != nil {
		return ErrRequestNotFound
	}
	// Only the recipient of a pending request may accept it.
	if existing.Status != store.PartnerStatusPending || existing.PartnerID != userID {
		return ErrRequestNotFound
	}

	if err := s.store.UpdatePartnerStatus(ctx, fromUserID, userID, store.PartnerStatusAccepted); err != nil {
		return fmt.Errorf("accept partner request: %w", err)
	}
	return nil
}

// DeclineRequest declines a pending partner request sent to userID.
func (s *Service) DeclineRequest(ctx context.Context, userID, fromUserID int64) error {
	existing, err := s.store.GetPartnerLink(ctx, fromUserID, userID)
	if err != nil {
		return ErrRequestNotFound
	}
	if existing.Status != store.PartnerStatusPending || existing.PartnerID != userID {
		return ErrRequestNotFound
	}

	if err := s.store.UpdatePartnerStatus(ctx, fromUserID, userID, store.PartnerStatusDeclined); err != nil {
		return fmt.Errorf("decline partner request: %w", err)
	}
	return nil
}

// ListPartners lists the user's links, optionally filtered by status.
func (s *Service) ListPartners(ctx context.Context, userID int64, status *store.PartnerStatus) ([]*store.Partner, error) {
	return s.store.ListPartners(ctx, userID, status)
}

// ArePartners checks for an accepted link between two users.
func (s *Service) ArePartners(ctx context.Context, userID, otherID int64) (bool, error) {
	return s.store.ArePartners(ctx, userID, otherID)
}
