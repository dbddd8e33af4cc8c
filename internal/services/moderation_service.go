package services

import (
	"context"
	"fmt"
	"time"

	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/internal/utils"
	"carpool/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ModerationService interface {
	// Live moderation
	HideMessage(ctx context.Context, principal models.Principal, messageID primitive.ObjectID) (*models.Message, error)
	UnhideMessage(ctx context.Context, principal models.Principal, messageID primitive.ObjectID) (*models.Message, error)

	// Reports
	ReportUser(ctx context.Context, principal models.Principal, targetUserID primitive.ObjectID, sessionID *primitive.ObjectID, reason string) (*models.ModAction, error)
	ReportSession(ctx context.Context, principal models.Principal, sessionID primitive.ObjectID, reason string) (*models.ChatReport, error)

	// Moderation centre
	ListSessions(ctx context.Context, principal models.Principal, params *utils.PaginationParams) ([]*models.ChatSession, int64, error)
	ListReports(ctx context.Context, principal models.Principal, sessionID primitive.ObjectID) ([]*models.ChatReport, error)
	ListUserActions(ctx context.Context, principal models.Principal, userID primitive.ObjectID) ([]*models.ModAction, error)
}

type moderationService struct {
	chatRepo       interfaces.ChatRepository
	moderationRepo interfaces.ModerationRepository
	guard          AccessGuard
	broadcaster    ChatBroadcaster
	audit          *logger.AuditLogger
	logger         *logger.Logger
	now            func() time.Time
}

func NewModerationService(
	chatRepo interfaces.ChatRepository,
	moderationRepo interfaces.ModerationRepository,
	guard AccessGuard,
	broadcaster ChatBroadcaster,
	log *logger.Logger,
) ModerationService {
	return &moderationService{
		chatRepo:       chatRepo,
		moderationRepo: moderationRepo,
		guard:          guard,
		broadcaster:    broadcaster,
		audit:          logger.NewAuditLogger(log),
		logger:         log,
		now:            time.Now,
	}
}

func (s *moderationService) HideMessage(ctx context.Context, principal models.Principal, messageID primitive.ObjectID) (*models.Message, error) {
	return s.setHidden(ctx, principal, messageID, true)
}

func (s *moderationService) UnhideMessage(ctx context.Context, principal models.Principal, messageID primitive.ObjectID) (*models.Message, error) {
	return s.setHidden(ctx, principal, messageID, false)
}

func (s *moderationService) setHidden(ctx context.Context, principal models.Principal, messageID primitive.ObjectID, hidden bool) (*models.Message, error) {
	action, actionType := models.ChatActionUnhide, models.ModActionUnhideMessage
	if hidden {
		action, actionType = models.ChatActionHide, models.ModActionHideMessage
	}

	if err := s.requireModerator(principal, action); err != nil {
		return nil, err
	}

	message, err := s.chatRepo.SetMessageHidden(ctx, messageID, hidden)
	if err != nil {
		return nil, err
	}

	// The flag is committed, so clients hear about it even if the audit
	// record below cannot be written.
	sender, sessionID, id := message.SenderID, message.SessionID, message.ID
	event := &models.ChatEvent{
		Type:      models.ChatEventAction,
		Action:    action,
		MessageID: id.Hex(),
	}
	if err := s.broadcaster.Publish(ctx, sessionID, event); err != nil {
		s.logger.WithError(err).WithSessionID(sessionID).Error("Failed to broadcast moderation action")
	}

	record := &models.ModAction{
		PerformedBy: principal.UserID,
		OnUser:      &sender,
		SessionID:   &sessionID,
		MessageID:   &id,
		Action:      actionType,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.moderationRepo.CreateModAction(ctx, record); err != nil {
		s.logger.WithError(err).WithSessionID(sessionID).Error("Moderation action applied but not recorded")
		return nil, fmt.Errorf("message %s updated but audit record failed: %w", id.Hex(), err)
	}
	s.audit.LogAction(string(actionType), "message", &principal.UserID, map[string]interface{}{
		"message_id": id.Hex(),
		"session_id": sessionID.Hex(),
	})

	return message, nil
}

func (s *moderationService) ReportUser(ctx context.Context, principal models.Principal, targetUserID primitive.ObjectID, sessionID *primitive.ObjectID, reason string) (*models.ModAction, error) {
	if err := s.requireModerator(principal, "report_user"); err != nil {
		return nil, err
	}
	if targetUserID.IsZero() {
		return nil, utils.NewAppError(utils.KindValidation, "target user is required")
	}

	target := targetUserID
	record := &models.ModAction{
		PerformedBy: principal.UserID,
		OnUser:      &target,
		SessionID:   sessionID,
		Action:      models.ModActionFlagUser,
		Reason:      reason,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.moderationRepo.CreateModAction(ctx, record); err != nil {
		return nil, err
	}

	s.audit.LogAction(string(models.ModActionFlagUser), "user", &principal.UserID, map[string]interface{}{
		"target_user_id": targetUserID.Hex(),
	})
	return record, nil
}

// ReportSession records a participant's complaint about a session. Repeated
// reports are all kept.
func (s *moderationService) ReportSession(ctx context.Context, principal models.Principal, sessionID primitive.ObjectID, reason string) (*models.ChatReport, error) {
	if principal.IsAnonymous() {
		return nil, utils.ErrPermissionDenied
	}

	session, err := s.chatRepo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsParticipant(principal.UserID) {
		return nil, utils.ErrPermissionDenied
	}

	report := &models.ChatReport{
		SessionID:  sessionID,
		ReportedBy: principal.UserID,
		Reason:     reason,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.moderationRepo.CreateReport(ctx, report); err != nil {
		return nil, err
	}

	s.audit.LogAction("REPORT_SESSION", "chat_session", &principal.UserID, map[string]interface{}{
		"session_id": sessionID.Hex(),
	})
	return report, nil
}

func (s *moderationService) ListSessions(ctx context.Context, principal models.Principal, params *utils.PaginationParams) ([]*models.ChatSession, int64, error) {
	if err := s.requireModerator(principal, "list_sessions"); err != nil {
		return nil, 0, err
	}
	return s.chatRepo.ListSessions(ctx, params)
}

func (s *moderationService) ListReports(ctx context.Context, principal models.Principal, sessionID primitive.ObjectID) ([]*models.ChatReport, error) {
	if err := s.requireModerator(principal, "list_reports"); err != nil {
		return nil, err
	}
	return s.moderationRepo.ListReportsBySession(ctx, sessionID)
}

func (s *moderationService) ListUserActions(ctx context.Context, principal models.Principal, userID primitive.ObjectID) ([]*models.ModAction, error) {
	if err := s.requireModerator(principal, "list_user_actions"); err != nil {
		return nil, err
	}
	return s.moderationRepo.ListModActionsByUser(ctx, userID)
}

func (s *moderationService) requireModerator(principal models.Principal, action string) error {
	if s.guard.CanModerate(principal) {
		return nil
	}
	s.logger.LogSecurityEvent("moderation_denied", "medium", map[string]interface{}{
		"user_id": principal.UserID.Hex(),
		"action":  action,
	})
	return utils.ErrPermissionDenied
}
