package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/internal/utils"
	"carpool/internal/validators"
	"carpool/pkg/logger"
	"carpool/pkg/websocket"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ChatService interface {
	// Sessions
	OpenSession(ctx context.Context, principal models.Principal, rideID primitive.ObjectID) (*models.ChatSession, error)
	GetSessionView(ctx context.Context, principal models.Principal, sessionID primitive.ObjectID) (*models.ChatSessionView, error)
	ListInbox(ctx context.Context, principal models.Principal) (*models.ChatInbox, error)

	// Live channel
	Authorize(ctx context.Context, principal models.Principal, sessionID primitive.ObjectID) (*models.ChatSession, error)
	Join(ctx context.Context, principal models.Principal, session *models.ChatSession, client *websocket.Client) error
	Leave(client *websocket.Client, session *models.ChatSession)
	Send(ctx context.Context, principal models.Principal, sessionID primitive.ObjectID, content string) (*models.Message, error)
	MarkRead(ctx context.Context, principal models.Principal, sessionID primitive.ObjectID) (int64, error)
	HandleInbound(ctx context.Context, principal models.Principal, sessionID primitive.ObjectID, data []byte)
}

type ChatOptions struct {
	ReplayLimit       int
	MaxMessageLength  int
	HiddenPlaceholder string
}

func (o ChatOptions) withDefaults() ChatOptions {
	if o.ReplayLimit <= 0 {
		o.ReplayLimit = utils.DefaultReplayLimit
	}
	if o.MaxMessageLength <= 0 {
		o.MaxMessageLength = utils.MaxMessageLength
	}
	if o.HiddenPlaceholder == "" {
		o.HiddenPlaceholder = utils.HiddenMessagePlaceholder
	}
	return o
}

type chatService struct {
	chatRepo        interfaces.ChatRepository
	rideRepo        interfaces.RideRepository
	reservationRepo interfaces.ReservationRepository
	guard           AccessGuard
	moderation      ModerationService
	hub             *websocket.Hub
	broadcaster     ChatBroadcaster
	locks           *sessionLocks
	opts            ChatOptions
	logger          *logger.Logger
	now             func() time.Time
}

func NewChatService(
	chatRepo interfaces.ChatRepository,
	rideRepo interfaces.RideRepository,
	reservationRepo interfaces.ReservationRepository,
	guard AccessGuard,
	moderation ModerationService,
	hub *websocket.Hub,
	broadcaster ChatBroadcaster,
	opts ChatOptions,
	log *logger.Logger,
) ChatService {
	return &chatService{
		chatRepo:        chatRepo,
		rideRepo:        rideRepo,
		reservationRepo: reservationRepo,
		guard:           guard,
		moderation:      moderation,
		hub:             hub,
		broadcaster:     broadcaster,
		locks:           newSessionLocks(),
		opts:            opts.withDefaults(),
		logger:          log,
		now:             time.Now,
	}
}

// OpenSession is the rider's first contact about a ride. Calling it again
// returns the existing session.
func (s *chatService) OpenSession(ctx context.Context, principal models.Principal, rideID primitive.ObjectID) (*models.ChatSession, error) {
	if principal.IsAnonymous() {
		return nil, utils.ErrPermissionDenied
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID == principal.UserID {
		return nil, utils.NewAppError(utils.KindPermissionDenied, "you cannot open a chat on your own ride")
	}

	session, err := s.chatRepo.GetOrCreateSession(ctx, &models.ChatSession{
		UserID:   principal.UserID,
		RideID:   rideID,
		DriverID: ride.DriverID,
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogChatEvent(session.ID, "session_opened", map[string]interface{}{
		"user_id": principal.UserID.Hex(),
		"ride_id": rideID.Hex(),
	})
	return session, nil
}

func (s *chatService) GetSessionView(ctx context.Context, principal models.Principal, sessionID primitive.ObjectID) (*models.ChatSessionView, error) {
	session, err := s.Authorize(ctx, principal, sessionID)
	if err != nil {
		return nil, err
	}

	shared, err := s.rideRepo.CountSharedRides(ctx, session.UserID, session.DriverID, s.now())
	if err != nil {
		return nil, err
	}

	view := &models.ChatSessionView{
		Session:         session,
		WithUser:        session.Counterpart(principal.UserID),
		SharedRideCount: shared,
	}

	reservation, err := s.reservationRepo.GetLive(ctx, session.UserID, session.RideID)
	switch {
	case err == nil:
		view.Reservation = reservation
	case !errors.Is(err, utils.ErrNotFound):
		return nil, err
	}

	return view, nil
}

func (s *chatService) ListInbox(ctx context.Context, principal models.Principal) (*models.ChatInbox, error) {
	if principal.IsAnonymous() {
		return nil, utils.ErrPermissionDenied
	}

	outgoing, err := s.chatRepo.ListSessionsByUser(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	incoming, err := s.chatRepo.ListSessionsByDriver(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}

	return &models.ChatInbox{Outgoing: outgoing, Incoming: incoming}, nil
}

// Authorize returns the session when principal may join it. Callers on the
// live channel must not tell a missing session from a refused one.
func (s *chatService) Authorize(ctx context.Context, principal models.Principal, sessionID primitive.ObjectID) (*models.ChatSession, error) {
	if principal.IsAnonymous() {
		return nil, utils.ErrPermissionDenied
	}

	session, err := s.chatRepo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !s.guard.CanJoinSession(principal, session) {
		s.logger.LogSecurityEvent("chat_join_refused", "medium", map[string]interface{}{
			"user_id":    principal.UserID.Hex(),
			"session_id": sessionID.Hex(),
		})
		return nil, utils.ErrPermissionDenied
	}
	return session, nil
}

// Join subscribes the client to the session group and replays the most
// recent history ahead of any live event. Live events that arrive while
// the history is being written are held and deduplicated against it.
func (s *chatService) Join(ctx context.Context, principal models.Principal, session *models.ChatSession, client *websocket.Client) error {
	unlock := s.locks.lock(session.ID)
	defer unlock()

	group := SessionGroup(session.ID)
	client.Hold()
	if err := s.hub.Join(ctx, client, group); err != nil {
		client.Resume(nil)
		return err
	}

	messages, err := s.chatRepo.GetRecentMessages(ctx, session.ID, s.opts.ReplayLimit)
	if err != nil {
		s.hub.Leave(client, group)
		return err
	}

	moderator := s.guard.CanModerate(principal)
	replayed := make(map[string]struct{}, len(messages))
	for _, message := range messages {
		payload, err := json.Marshal(s.replayEvent(message, moderator))
		if err != nil {
			s.hub.Leave(client, group)
			return fmt.Errorf("failed to encode replay: %w", err)
		}
		if !client.Enqueue(payload) {
			s.hub.Leave(client, group)
			return fmt.Errorf("client closed during replay")
		}
		replayed[message.ID.Hex()] = struct{}{}
	}

	if !client.Resume(notReplayed(replayed)) {
		s.hub.Leave(client, group)
		client.Close()
		return fmt.Errorf("client too slow to take live backlog")
	}

	s.logger.LogChatEvent(session.ID, "joined", map[string]interface{}{
		"user_id":  principal.UserID.Hex(),
		"replayed": len(messages),
	})
	return nil
}

func (s *chatService) Leave(client *websocket.Client, session *models.ChatSession) {
	s.hub.Leave(client, SessionGroup(session.ID))
	s.logger.LogChatEvent(session.ID, "left", map[string]interface{}{
		"user_id": client.UserID.Hex(),
	})
}

func (s *chatService) Send(ctx context.Context, principal models.Principal, sessionID primitive.ObjectID, content string) (*models.Message, error) {
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
	if !validators.ValidMessageContent(content, s.opts.MaxMessageLength) {
		s.logger.LogChatEvent(sessionID, "message_dropped", map[string]interface{}{
			"user_id": principal.UserID.Hex(),
			"length":  len(content),
		})
		return nil, utils.NewAppError(utils.KindValidation, "message is empty or too long")
	}

	// Persist and publish under the session lock so the group sees messages
	// in the order they were stored.
	unlock := s.locks.lock(sessionID)
	defer unlock()

	message := &models.Message{
		SessionID:   sessionID,
		SenderID:    principal.UserID,
		RecipientID: session.Counterpart(principal.UserID),
		Content:     content,
	}
	if err := s.chatRepo.CreateMessage(ctx, message); err != nil {
		return nil, err
	}

	event := &models.ChatEvent{
		Type:      models.ChatEventMessage,
		MessageID: message.ID.Hex(),
		Message:   message.Content,
		Timestamp: utils.FormatTimeISO(message.CreatedAt),
		UserUUID:  message.SenderID.Hex(),
	}
	if err := s.broadcaster.Publish(ctx, sessionID, event); err != nil {
		// Stored messages reach clients through replay.
		s.logger.WithError(err).WithSessionID(sessionID).Error("Failed to broadcast chat message")
	}

	return message, nil
}

func (s *chatService) MarkRead(ctx context.Context, principal models.Principal, sessionID primitive.ObjectID) (int64, error) {
	if principal.IsAnonymous() {
		return 0, utils.ErrPermissionDenied
	}

	session, err := s.chatRepo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if !session.IsParticipant(principal.UserID) {
		return 0, utils.ErrPermissionDenied
	}

	marked, err := s.chatRepo.MarkSessionRead(ctx, sessionID, principal.UserID, s.now().UTC())
	if err != nil {
		return 0, err
	}

	event := &models.ChatEvent{
		Type:     models.ChatEventAction,
		Action:   models.ChatActionMarkRead,
		UserUUID: principal.UserID.Hex(),
	}
	if err := s.broadcaster.Publish(ctx, sessionID, event); err != nil {
		s.logger.WithError(err).WithSessionID(sessionID).Error("Failed to broadcast read receipt")
	}

	return marked, nil
}

// HandleInbound applies one frame received on the live channel. Malformed
// or refused input is logged and otherwise ignored.
func (s *chatService) HandleInbound(ctx context.Context, principal models.Principal, sessionID primitive.ObjectID, data []byte) {
	log := s.logger.WithSessionID(sessionID).WithUserID(principal.UserID)

	var inbound models.ChatInbound
	if err := json.Unmarshal(data, &inbound); err != nil {
		log.WithError(err).Warn("Ignoring malformed chat frame")
		return
	}

	var err error
	switch {
	case inbound.Message != nil:
		_, err = s.Send(ctx, principal, sessionID, *inbound.Message)

	case inbound.Action == models.ChatActionMarkRead:
		_, err = s.MarkRead(ctx, principal, sessionID)

	case inbound.Action == models.ChatActionHide || inbound.Action == models.ChatActionUnhide:
		messageID, parseErr := primitive.ObjectIDFromHex(inbound.MessageID)
		if parseErr != nil {
			log.WithField("message_id", inbound.MessageID).Warn("Ignoring moderation frame with invalid message id")
			return
		}
		if inbound.Action == models.ChatActionHide {
			_, err = s.moderation.HideMessage(ctx, principal, messageID)
		} else {
			_, err = s.moderation.UnhideMessage(ctx, principal, messageID)
		}

	default:
		log.WithField("action", inbound.Action).Warn("Ignoring unknown chat frame")
		return
	}

	if err != nil {
		log.WithError(err).Warn("Chat frame rejected")
	}
}

func (s *chatService) replayEvent(message *models.Message, moderator bool) *models.ChatEvent {
	content := message.Content
	if message.Hidden && !moderator {
		content = s.opts.HiddenPlaceholder
	}
	hidden := message.Hidden

	return &models.ChatEvent{
		Type:      models.ChatEventMessage,
		MessageID: message.ID.Hex(),
		Message:   content,
		Timestamp: utils.FormatTimeISO(message.CreatedAt),
		UserUUID:  message.SenderID.Hex(),
		Hidden:    &hidden,
	}
}

// notReplayed keeps live frames except chat messages already sent as
// history.
func notReplayed(replayed map[string]struct{}) func([]byte) bool {
	return func(data []byte) bool {
		var event models.ChatEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return true
		}
		if event.Type != models.ChatEventMessage {
			return true
		}
		_, seen := replayed[event.MessageID]
		return !seen
	}
}
