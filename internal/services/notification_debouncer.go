package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/internal/utils"
	"carpool/pkg/cache"
	"carpool/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type DebounceReport struct {
	RunID      string `json:"run_id"`
	Recipients int    `json:"recipients"`
	Messages   int    `json:"messages"`
	Failed     int    `json:"failed"`
	// Skipped is set when another instance held the run lock.
	Skipped bool `json:"skipped"`
}

type NotificationDebouncer interface {
	Run(ctx context.Context, now time.Time) (*DebounceReport, error)
}

type DebouncerOptions struct {
	Threshold time.Duration
	LockTTL   time.Duration
}

type notificationDebouncer struct {
	chatRepo interfaces.ChatRepository
	userRepo interfaces.UserRepository
	notifier Notifier
	lock     cache.Cache
	opts     DebouncerOptions
	logger   *logger.Logger
}

// NewNotificationDebouncer builds the unread-message digest job. lock may be
// nil; runs stay correct without it because every message is claimed
// individually.
func NewNotificationDebouncer(
	chatRepo interfaces.ChatRepository,
	userRepo interfaces.UserRepository,
	notifier Notifier,
	lock cache.Cache,
	opts DebouncerOptions,
	log *logger.Logger,
) NotificationDebouncer {
	if opts.LockTTL <= 0 {
		opts.LockTTL = time.Minute
	}
	return &notificationDebouncer{
		chatRepo: chatRepo,
		userRepo: userRepo,
		notifier: notifier,
		lock:     lock,
		opts:     opts,
		logger:   log,
	}
}

func (d *notificationDebouncer) Run(ctx context.Context, now time.Time) (*DebounceReport, error) {
	report := &DebounceReport{RunID: uuid.NewString()}
	log := d.logger.WithField("run_id", report.RunID)

	if d.lock != nil {
		acquired, err := d.lock.SetNX(ctx, utils.CacheDebounceLockKey, report.RunID, d.opts.LockTTL)
		switch {
		case err != nil:
			log.WithError(err).Warn("Debounce lock unavailable, running unlocked")
		case !acquired:
			report.Skipped = true
			return report, nil
		default:
			defer func() {
				if _, err := d.lock.ReleaseLock(context.WithoutCancel(ctx), utils.CacheDebounceLockKey, report.RunID); err != nil {
					log.WithError(err).Warn("Failed to release debounce lock")
				}
			}()
		}
	}

	candidates, err := d.chatRepo.FindNotificationCandidates(ctx, now.Add(-d.opts.Threshold))
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return report, nil
	}

	byRecipient := make(map[primitive.ObjectID][]primitive.ObjectID)
	for _, message := range candidates {
		if message.RecipientID.IsZero() {
			continue
		}
		byRecipient[message.RecipientID] = append(byRecipient[message.RecipientID], message.ID)
	}

	recipients := make([]primitive.ObjectID, 0, len(byRecipient))
	for id := range byRecipient {
		recipients = append(recipients, id)
	}
	sort.Slice(recipients, func(i, j int) bool { return recipients[i].Hex() < recipients[j].Hex() })

	optedOut, err := d.userRepo.OptedOutOfUnreadNotices(ctx, recipients)
	if err != nil {
		return nil, err
	}

	sessions := make(map[primitive.ObjectID]*models.ChatSession)
	for _, recipient := range recipients {
		if optedOut[recipient] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		sent, err := d.notifyRecipient(ctx, report.RunID, now, recipient, byRecipient[recipient], sessions)
		if err != nil {
			report.Failed++
			log.WithError(err).WithUserID(recipient).Error("Unread digest not delivered")
			continue
		}
		if sent > 0 {
			report.Recipients++
			report.Messages += sent
		}
	}

	log.WithFields(map[string]interface{}{
		"recipients": report.Recipients,
		"messages":   report.Messages,
		"failed":     report.Failed,
	}).Info("Notification debounce run finished")

	return report, nil
}

// notifyRecipient claims the recipient's candidates, emits one digest and
// releases the claim again if the digest could not be delivered.
func (d *notificationDebouncer) notifyRecipient(
	ctx context.Context,
	runID string,
	now time.Time,
	recipient primitive.ObjectID,
	ids []primitive.ObjectID,
	sessions map[primitive.ObjectID]*models.ChatSession,
) (int, error) {
	claimed, err := d.chatRepo.ClaimForNotification(ctx, ids, runID, now.UTC())
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	claimedIDs := make([]primitive.ObjectID, len(claimed))
	for i, message := range claimed {
		claimedIDs[i] = message.ID
	}

	notice, err := d.digest(ctx, now, recipient, claimed, sessions)
	if err == nil {
		err = d.notifier.Notify(ctx, notice)
	}
	if err != nil {
		if releaseErr := d.chatRepo.ReleaseNotificationClaim(context.WithoutCancel(ctx), runID, claimedIDs); releaseErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to release claim: %w", releaseErr))
		}
		return 0, err
	}

	return len(claimed), nil
}

func (d *notificationDebouncer) digest(
	ctx context.Context,
	now time.Time,
	recipient primitive.ObjectID,
	messages []*models.Message,
	sessions map[primitive.ObjectID]*models.ChatSession,
) (*models.Notice, error) {
	var order []primitive.ObjectID
	entries := make(map[primitive.ObjectID]*models.UnreadDigestEntry)
	contacts := make(map[primitive.ObjectID]map[primitive.ObjectID]bool)

	for _, message := range messages {
		entry, ok := entries[message.SessionID]
		if !ok {
			session, err := d.session(ctx, message.SessionID, sessions)
			if err != nil {
				return nil, err
			}
			entry = &models.UnreadDigestEntry{SessionID: session.ID, RideID: session.RideID}
			entries[message.SessionID] = entry
			contacts[message.SessionID] = make(map[primitive.ObjectID]bool)
			order = append(order, message.SessionID)
		}
		entry.UnreadCount++
		if !contacts[message.SessionID][message.SenderID] {
			contacts[message.SessionID][message.SenderID] = true
			entry.Contacts = append(entry.Contacts, message.SenderID)
		}
	}

	notice := &models.Notice{
		Kind:        models.NoticeUnreadMessages,
		RecipientID: recipient,
		UnreadCount: len(messages),
		CreatedAt:   now.UTC(),
	}
	for _, sessionID := range order {
		notice.Unread = append(notice.Unread, *entries[sessionID])
	}
	return notice, nil
}

func (d *notificationDebouncer) session(ctx context.Context, id primitive.ObjectID, known map[primitive.ObjectID]*models.ChatSession) (*models.ChatSession, error) {
	if session, ok := known[id]; ok {
		return session, nil
	}
	session, err := d.chatRepo.GetSessionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	known[id] = session
	return session, nil
}
