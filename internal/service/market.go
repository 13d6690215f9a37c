package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/punchamoorthee/protocol6713/internal/domain"
	"github.com/punchamoorthee/protocol6713/internal/models"
	"github.com/punchamoorthee/protocol6713/internal/store"
)

var ErrSelfReveal = errors.New("cannot reveal your own picture")

// RevealProfilePicture charges RevealCost to see another account's picture.
// Seeing the same picture again is free; a changed picture costs again.
func (s *Service) RevealProfilePicture(ctx context.Context, viewerID, viewedID uuid.UUID, pictureURL string) (*models.RevealResponse, error) {
	if viewerID == viewedID {
		return nil, newError(KindInvalidArgument, ErrSelfReveal)
	}
	if strings.TrimSpace(pictureURL) == "" {
		return nil, newError(KindInvalidArgument, errors.New("picture url is required"))
	}

	var resp *models.RevealResponse
	err := s.run(ctx, "reveal_picture", func(u *unit) error {
		viewer, err := u.lockOne(ctx, viewerID)
		if err != nil {
			return err
		}
		if _, err := u.read(ctx, viewedID); err != nil {
			return err
		}

		resp = &models.RevealResponse{PictureURL: pictureURL, RemainingBalance: viewer.Balance}
		prev, err := u.GetReveal(ctx, viewerID, viewedID)
		switch {
		case err == nil && prev.PictureURL == pictureURL:
			return nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return err
		}

		res, err := u.move(ctx, viewerID, domain.House, RevealCost, domain.KindProfileReveal, "profile picture reveal", "")
		if err != nil {
			return err
		}
		resp.Charged = true
		resp.RemainingBalance = res.fromBalance
		return u.UpsertReveal(ctx, &domain.Reveal{
			ViewerID:   viewerID,
			ViewedID:   viewedID,
			PictureURL: pictureURL,
			RevealedAt: u.now,
		})
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// PostGig charges GigPostCost and opens a gig. The charge and the insert
// share one transaction, so a failed insert never needs a refund.
func (s *Service) PostGig(ctx context.Context, ownerID uuid.UUID, req models.PostGigRequest) (*models.PostGigResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, newError(KindInvalidArgument, errors.New("title is required"))
	}
	if req.Reward < 0 {
		return nil, newError(KindInvalidArgument, ErrInvalidAmount)
	}

	var resp *models.PostGigResponse
	err := s.run(ctx, "post_gig", func(u *unit) error {
		owner, err := u.lockOne(ctx, ownerID)
		if err != nil {
			return err
		}
		if owner.IsGhost() {
			return newError(KindInvalidStateTransition, ErrAccountInactive)
		}
		active, err := u.CountActiveGigs(ctx, ownerID)
		if err != nil {
			return err
		}
		if active >= MaxActiveGigs {
			return newError(KindInvalidStateTransition, ErrGigLimit)
		}

		res, err := u.move(ctx, ownerID, domain.House, GigPostCost, domain.KindGigPost, "gig post: "+title, "")
		if err != nil {
			return err
		}
		g := domain.Gig{
			ID:          uuid.New(),
			OwnerID:     ownerID,
			Title:       title,
			Description: strings.TrimSpace(req.Description),
			Reward:      req.Reward,
			CreatedAt:   u.now,
		}
		if err := u.InsertGig(ctx, &g); err != nil {
			return err
		}
		resp = &models.PostGigResponse{Gig: g, RemainingBalance: res.fromBalance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// CompleteGig closes one of the owner's open gigs, freeing a slot.
func (s *Service) CompleteGig(ctx context.Context, ownerID, gigID uuid.UUID) (*domain.Gig, error) {
	var gig *domain.Gig
	err := s.run(ctx, "complete_gig", func(u *unit) error {
		g, err := u.LockGig(ctx, gigID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return newError(KindNotFound, ErrGigNotFound)
			}
			return err
		}
		if g.OwnerID != ownerID {
			return newError(KindUnauthorized, ErrNotOwner)
		}
		if g.Completed {
			return newError(KindInvalidStateTransition, ErrGigCompleted)
		}
		if err := u.CompleteGig(ctx, gigID, u.now); err != nil {
			return err
		}
		g.Completed = true
		g.CompletedAt = &u.now
		gig = g
		return nil
	})
	return gig, err
}
