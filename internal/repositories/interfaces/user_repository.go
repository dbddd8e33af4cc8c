package interfaces

import (
	"context"

	"carpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRepository interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) error
	// OptedOutOfUnreadNotices returns the subset of ids whose stored
	// preference disables unread-message notices. Unknown users are opted in.
	OptedOutOfUnreadNotices(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]bool, error)
}
