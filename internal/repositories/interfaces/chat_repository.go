package interfaces

import (
	"context"
	"time"

	"carpool/internal/models"
	"carpool/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ChatRepository interface {
	// Session operations
	GetOrCreateSession(ctx context.Context, session *models.ChatSession) (*models.ChatSession, error)
	GetSessionByID(ctx context.Context, id primitive.ObjectID) (*models.ChatSession, error)
	GetSession(ctx context.Context, userID, rideID primitive.ObjectID) (*models.ChatSession, error)
	ListSessionsByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.ChatSession, error)
	ListSessionsByDriver(ctx context.Context, driverID primitive.ObjectID) ([]*models.ChatSession, error)
	ListSessions(ctx context.Context, params *utils.PaginationParams) ([]*models.ChatSession, int64, error)
	// DeleteSessionsByRide removes the ride's sessions and their messages.
	DeleteSessionsByRide(ctx context.Context, rideID primitive.ObjectID) error

	// Message operations
	CreateMessage(ctx context.Context, message *models.Message) error
	GetMessageByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error)
	// GetRecentMessages returns the last limit messages of a session in
	// ascending creation order.
	GetRecentMessages(ctx context.Context, sessionID primitive.ObjectID, limit int) ([]*models.Message, error)
	SetMessageHidden(ctx context.Context, id primitive.ObjectID, hidden bool) (*models.Message, error)
	// MarkSessionRead stamps readAt on unread messages not sent by reader.
	MarkSessionRead(ctx context.Context, sessionID, readerID primitive.ObjectID, at time.Time) (int64, error)

	// Notification debounce
	FindNotificationCandidates(ctx context.Context, cutoff time.Time) ([]*models.Message, error)
	// ClaimForNotification stamps notifiedAt and runID on those of ids that
	// are still unnotified and unread, and returns exactly the messages it
	// stamped.
	ClaimForNotification(ctx context.Context, ids []primitive.ObjectID, runID string, at time.Time) ([]*models.Message, error)
	ReleaseNotificationClaim(ctx context.Context, runID string, ids []primitive.ObjectID) error
}
