package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/punchamoorthee/protocol6713/internal/cooldown"
	"github.com/punchamoorthee/protocol6713/internal/domain"
	"github.com/punchamoorthee/protocol6713/internal/models"
	"github.com/punchamoorthee/protocol6713/internal/notify"
)

var ErrSelfMessage = errors.New("cannot message yourself")

// PostMessage publishes to the wall. Only verified accounts post, at most
// once per cooldown.PostInterval. Posts from COMA are whispers and trigger
// a system advisory.
func (s *Service) PostMessage(ctx context.Context, authorID uuid.UUID, content string) (*domain.FeedMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, newError(KindInvalidArgument, ErrMessageRequired)
	}

	var msg *domain.FeedMessage
	err := s.run(ctx, "post_message", func(u *unit) error {
		a, err := u.lockOne(ctx, authorID)
		if err != nil {
			return err
		}
		if a.IsGhost() {
			return newError(KindInvalidStateTransition, ErrAccountInactive)
		}
		if !a.Verified {
			return newError(KindUnauthorized, ErrNotVerified)
		}
		if wait := cooldown.PostWait(u.now, a.LastPostAt); wait > 0 {
			return cooldownActive(ErrPostCooldown, wait)
		}

		msg = &domain.FeedMessage{
			AuthorID:  a.ID,
			Author:    a.DisplayName(),
			Content:   content,
			Kind:      domain.FeedText,
			Whisper:   a.InComa(),
			CreatedAt: u.now,
		}
		if err := u.AppendFeed(ctx, msg); err != nil {
			return err
		}
		if a.InComa() {
			if err := u.feed(ctx, notify.WhisperAdvisory(a.DisplayName())); err != nil {
				return err
			}
		}

		a.LastPostAt = &u.now
		return u.SaveAccount(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Service) PostCooldown(ctx context.Context, accountID uuid.UUID) (*models.PostCooldownResponse, error) {
	var resp *models.PostCooldownResponse
	err := s.run(ctx, "post_cooldown", func(u *unit) error {
		a, err := u.read(ctx, accountID)
		if err != nil {
			return err
		}
		wait := cooldown.PostWait(u.now, a.LastPostAt)
		resp = &models.PostCooldownResponse{CanPost: wait == 0, SecondsRemaining: wait.Seconds()}
		return nil
	})
	return resp, err
}

// Feed returns the newest wall messages first.
func (s *Service) Feed(ctx context.Context, limit int) ([]domain.FeedMessage, error) {
	if limit <= 0 {
		limit = DefaultFeedLimit
	}
	var out []domain.FeedMessage
	err := s.run(ctx, "feed", func(u *unit) error {
		var err error
		out, err = u.ListFeed(ctx, limit)
		return err
	})
	return out, err
}

// SendDirectMessage delivers a private message. Messages from COMA are
// whispers; reaching a COMA account from outside COMA requires an accepted
// fourth-wall break.
func (s *Service) SendDirectMessage(ctx context.Context, senderID, recipientID uuid.UUID, content string) (*domain.DirectMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, newError(KindInvalidArgument, ErrMessageRequired)
	}
	if senderID == recipientID {
		return nil, newError(KindInvalidArgument, ErrSelfMessage)
	}

	var dm *domain.DirectMessage
	err := s.run(ctx, "direct_message", func(u *unit) error {
		sender, err := u.read(ctx, senderID)
		if err != nil {
			return err
		}
		recipient, err := u.read(ctx, recipientID)
		if err != nil {
			return err
		}
		if sender.IsGhost() || recipient.IsGhost() {
			return newError(KindInvalidStateTransition, ErrAccountInactive)
		}
		if recipient.InComa() && !sender.InComa() {
			ok, err := u.HasAcceptedBreak(ctx, senderID, recipientID)
			if err != nil {
				return err
			}
			if !ok {
				return newError(KindUnauthorized, ErrWallUnbroken)
			}
		}

		dm = &domain.DirectMessage{
			SenderID:    senderID,
			RecipientID: recipientID,
			Content:     content,
			Whisper:     sender.InComa(),
			CreatedAt:   u.now,
		}
		return u.InsertDirectMessage(ctx, dm)
	})
	if err != nil {
		return nil, err
	}
	return dm, nil
}
