package memory

import (
	"context"

	"carpool/internal/models"
	"carpool/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type userRepository struct {
	store *Store
}

func (r *userRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	user, ok := r.store.users[id]
	if !ok {
		return nil, utils.NotFound("user")
	}
	c := *user
	return &c, nil
}

func (r *userRepository) Upsert(ctx context.Context, user *models.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	c := *user
	r.store.users[user.ID] = &c
	return nil
}

func (r *userRepository) OptedOutOfUnreadNotices(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	optedOut := make(map[primitive.ObjectID]bool)
	for _, id := range ids {
		if user, ok := r.store.users[id]; ok && !user.WantsUnreadNotices() {
			optedOut[id] = true
		}
	}
	return optedOut, nil
}
