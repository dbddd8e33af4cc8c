package memory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"carpool/internal/models"
	"carpool/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type chatRepository struct {
	store *Store
}

// Session operations
func (r *chatRepository) GetOrCreateSession(ctx context.Context, session *models.ChatSession) (*models.ChatSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, existing := range r.store.sessions {
		if existing.UserID == session.UserID && existing.RideID == session.RideID {
			return copySession(existing), nil
		}
	}

	created := copySession(session)
	if created.ID.IsZero() {
		created.ID = primitive.NewObjectID()
	}
	created.CreatedAt = time.Now()
	r.store.sessions[created.ID] = created
	return copySession(created), nil
}

func (r *chatRepository) GetSessionByID(ctx context.Context, id primitive.ObjectID) (*models.ChatSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	session, ok := r.store.sessions[id]
	if !ok {
		return nil, utils.NotFound("chat session")
	}
	return copySession(session), nil
}

func (r *chatRepository) GetSession(ctx context.Context, userID, rideID primitive.ObjectID) (*models.ChatSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, session := range r.store.sessions {
		if session.UserID == userID && session.RideID == rideID {
			return copySession(session), nil
		}
	}
	return nil, utils.NotFound("chat session")
}

func (r *chatRepository) ListSessionsByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.ChatSession, error) {
	return r.listSessions(func(s *models.ChatSession) bool { return s.UserID == userID }), nil
}

func (r *chatRepository) ListSessionsByDriver(ctx context.Context, driverID primitive.ObjectID) ([]*models.ChatSession, error) {
	return r.listSessions(func(s *models.ChatSession) bool { return s.DriverID == driverID }), nil
}

func (r *chatRepository) ListSessions(ctx context.Context, params *utils.PaginationParams) ([]*models.ChatSession, int64, error) {
	sessions := r.listSessions(func(*models.ChatSession) bool { return true })
	return paginate(sessions, params), int64(len(sessions)), nil
}

func (r *chatRepository) listSessions(match func(*models.ChatSession) bool) []*models.ChatSession {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var sessions []*models.ChatSession
	for _, session := range r.store.sessions {
		if match(session) {
			sessions = append(sessions, copySession(session))
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions
}

func (r *chatRepository) DeleteSessionsByRide(ctx context.Context, rideID primitive.ObjectID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for id, session := range r.store.sessions {
		if session.RideID != rideID {
			continue
		}
		for messageID, message := range r.store.messages {
			if message.SessionID == id {
				delete(r.store.messages, messageID)
			}
		}
		delete(r.store.sessions, id)
	}
	return nil
}

// Message operations
func (r *chatRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.sessions[message.SessionID]; !ok {
		return utils.NotFound("chat session")
	}

	message.ID = primitive.NewObjectID()
	message.CreatedAt = time.Now()
	r.store.messages[message.ID] = copyMessage(message)
	return nil
}

func (r *chatRepository) GetMessageByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	message, ok := r.store.messages[id]
	if !ok {
		return nil, utils.NotFound("message")
	}
	return copyMessage(message), nil
}

func (r *chatRepository) GetRecentMessages(ctx context.Context, sessionID primitive.ObjectID, limit int) ([]*models.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var messages []*models.Message
	for _, message := range r.store.messages {
		if message.SessionID == sessionID {
			messages = append(messages, copyMessage(message))
		}
	}
	sortMessages(messages)

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func (r *chatRepository) SetMessageHidden(ctx context.Context, id primitive.ObjectID, hidden bool) (*models.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	message, ok := r.store.messages[id]
	if !ok {
		return nil, utils.NotFound("message")
	}
	message.Hidden = hidden
	return copyMessage(message), nil
}

func (r *chatRepository) MarkSessionRead(ctx context.Context, sessionID, readerID primitive.ObjectID, at time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var updated int64
	for _, message := range r.store.messages {
		if message.SessionID == sessionID && message.SenderID != readerID && message.ReadAt == nil {
			readAt := at
			message.ReadAt = &readAt
			updated++
		}
	}
	return updated, nil
}

// Notification debounce
func (r *chatRepository) FindNotificationCandidates(ctx context.Context, cutoff time.Time) ([]*models.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var messages []*models.Message
	for _, message := range r.store.messages {
		if message.ReadAt == nil && message.NotifiedAt == nil && message.CreatedAt.Before(cutoff) {
			messages = append(messages, copyMessage(message))
		}
	}
	sortMessages(messages)
	return messages, nil
}

func (r *chatRepository) ClaimForNotification(ctx context.Context, ids []primitive.ObjectID, runID string, at time.Time) ([]*models.Message, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var claimed []*models.Message
	for _, id := range ids {
		message, ok := r.store.messages[id]
		if !ok || message.ReadAt != nil || message.NotifiedAt != nil {
			continue
		}
		notifiedAt := at
		message.NotifiedAt = &notifiedAt
		message.NotifyRunID = runID
		claimed = append(claimed, copyMessage(message))
	}
	sortMessages(claimed)
	return claimed, nil
}

func (r *chatRepository) ReleaseNotificationClaim(ctx context.Context, runID string, ids []primitive.ObjectID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, id := range ids {
		message, ok := r.store.messages[id]
		if ok && message.NotifyRunID == runID {
			message.NotifiedAt = nil
			message.NotifyRunID = ""
		}
	}
	return nil
}

func sortMessages(messages []*models.Message) {
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return bytes.Compare(messages[i].ID[:], messages[j].ID[:]) < 0
	})
}
