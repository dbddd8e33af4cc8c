package mongodb

import (
	"context"
	"fmt"
	"time"

	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/internal/utils"
	"carpool/pkg/cache"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const sessionCacheTTL = 30 * time.Minute

type chatRepository struct {
	sessionsCollection *mongo.Collection
	messagesCollection *mongo.Collection
	cache              cache.Cache
}

// NewChatRepository caches sessions by id when c is non-nil. Sessions never
// change after creation, so the cache is only invalidated on delete.
func NewChatRepository(db *mongo.Database, c cache.Cache) interfaces.ChatRepository {
	return &chatRepository{
		sessionsCollection: db.Collection("chat_sessions"),
		messagesCollection: db.Collection("messages"),
		cache:              c,
	}
}

// Session operations
func (r *chatRepository) GetOrCreateSession(ctx context.Context, session *models.ChatSession) (*models.ChatSession, error) {
	filter := bson.M{"user_id": session.UserID, "ride_id": session.RideID}
	update := bson.M{"$setOnInsert": bson.M{
		"driver_id":  session.DriverID,
		"created_at": time.Now(),
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var result models.ChatSession
	err := r.sessionsCollection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&result)
	if err != nil {
		// Two concurrent upserts can race on the unique index; the loser
		// reads the winner's document.
		if mongo.IsDuplicateKeyError(err) {
			return r.GetSession(ctx, session.UserID, session.RideID)
		}
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}

	r.cacheSession(ctx, &result)

	return &result, nil
}

func (r *chatRepository) GetSessionByID(ctx context.Context, id primitive.ObjectID) (*models.ChatSession, error) {
	// Try cache first
	if session := r.getSessionFromCache(ctx, id.Hex()); session != nil {
		return session, nil
	}

	var session models.ChatSession
	err := r.sessionsCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NotFound("chat session")
		}
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}

	r.cacheSession(ctx, &session)

	return &session, nil
}

func (r *chatRepository) GetSession(ctx context.Context, userID, rideID primitive.ObjectID) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.sessionsCollection.FindOne(ctx, bson.M{"user_id": userID, "ride_id": rideID}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NotFound("chat session")
		}
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}

	return &session, nil
}

func (r *chatRepository) ListSessionsByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.ChatSession, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.findSessions(ctx, bson.M{"user_id": userID}, opts)
}

func (r *chatRepository) ListSessionsByDriver(ctx context.Context, driverID primitive.ObjectID) ([]*models.ChatSession, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.findSessions(ctx, bson.M{"driver_id": driverID}, opts)
}

func (r *chatRepository) ListSessions(ctx context.Context, params *utils.PaginationParams) ([]*models.ChatSession, int64, error) {
	filter := bson.M{}

	total, err := r.sessionsCollection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count chat sessions: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(params.GetSkip())).
		SetLimit(int64(params.GetLimit()))

	sessions, err := r.findSessions(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}

func (r *chatRepository) DeleteSessionsByRide(ctx context.Context, rideID primitive.ObjectID) error {
	sessions, err := r.findSessions(ctx, bson.M{"ride_id": rideID}, options.Find())
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return nil
	}

	ids := make([]primitive.ObjectID, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}

	_, err = r.messagesCollection.DeleteMany(ctx, bson.M{"session_id": bson.M{"$in": ids}})
	if err != nil {
		return fmt.Errorf("failed to delete chat messages: %w", err)
	}

	_, err = r.sessionsCollection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return fmt.Errorf("failed to delete chat sessions: %w", err)
	}

	for _, id := range ids {
		r.invalidateSessionCache(ctx, id.Hex())
	}

	return nil
}

// Message operations
func (r *chatRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	message.ID = primitive.NewObjectID()
	message.CreatedAt = time.Now()

	_, err := r.messagesCollection.InsertOne(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

func (r *chatRepository) GetMessageByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	var message models.Message
	err := r.messagesCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&message)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NotFound("message")
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return &message, nil
}

func (r *chatRepository) GetRecentMessages(ctx context.Context, sessionID primitive.ObjectID, limit int) ([]*models.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	messages, err := r.findMessages(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, err
	}

	// newest-first from the store, oldest-first for replay
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *chatRepository) SetMessageHidden(ctx context.Context, id primitive.ObjectID, hidden bool) (*models.Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var message models.Message
	err := r.messagesCollection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"hidden": hidden}},
		opts,
	).Decode(&message)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NotFound("message")
		}
		return nil, fmt.Errorf("failed to update message: %w", err)
	}

	return &message, nil
}

func (r *chatRepository) MarkSessionRead(ctx context.Context, sessionID, readerID primitive.ObjectID, at time.Time) (int64, error) {
	filter := bson.M{
		"session_id": sessionID,
		"sender_id":  bson.M{"$ne": readerID},
		"read_at":    nil,
	}

	result, err := r.messagesCollection.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read_at": at}})
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages as read: %w", err)
	}

	return result.ModifiedCount, nil
}

// Notification debounce
func (r *chatRepository) FindNotificationCandidates(ctx context.Context, cutoff time.Time) ([]*models.Message, error) {
	filter := bson.M{
		"read_at":     nil,
		"notified_at": nil,
		"created_at":  bson.M{"$lt": cutoff},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	return r.findMessages(ctx, filter, opts)
}

func (r *chatRepository) ClaimForNotification(ctx context.Context, ids []primitive.ObjectID, runID string, at time.Time) ([]*models.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	filter := bson.M{
		"_id":         bson.M{"$in": ids},
		"read_at":     nil,
		"notified_at": nil,
	}
	update := bson.M{"$set": bson.M{"notified_at": at, "notify_run_id": runID}}

	if _, err := r.messagesCollection.UpdateMany(ctx, filter, update); err != nil {
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return r.findMessages(ctx, bson.M{"_id": bson.M{"$in": ids}, "notify_run_id": runID}, opts)
}

func (r *chatRepository) ReleaseNotificationClaim(ctx context.Context, runID string, ids []primitive.ObjectID) error {
	filter := bson.M{"_id": bson.M{"$in": ids}, "notify_run_id": runID}
	update := bson.M{
		"$set":   bson.M{"notified_at": nil},
		"$unset": bson.M{"notify_run_id": ""},
	}

	if _, err := r.messagesCollection.UpdateMany(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to release notification claim: %w", err)
	}

	return nil
}

// Helper methods
func (r *chatRepository) findSessions(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.ChatSession, error) {
	cursor, err := r.sessionsCollection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find chat sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []*models.ChatSession
	for cursor.Next(ctx) {
		var session models.ChatSession
		if err := cursor.Decode(&session); err != nil {
			return nil, fmt.Errorf("failed to decode chat session: %w", err)
		}
		sessions = append(sessions, &session)
	}

	return sessions, cursor.Err()
}

func (r *chatRepository) findMessages(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Message, error) {
	cursor, err := r.messagesCollection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*models.Message
	for cursor.Next(ctx) {
		var message models.Message
		if err := cursor.Decode(&message); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		messages = append(messages, &message)
	}

	return messages, cursor.Err()
}

// Cache helper methods
func (r *chatRepository) cacheSession(ctx context.Context, session *models.ChatSession) {
	if r.cache != nil {
		cacheKey := utils.CacheChatSessionPrefix + session.ID.Hex()
		r.cache.Set(ctx, cacheKey, session, sessionCacheTTL)
	}
}

func (r *chatRepository) getSessionFromCache(ctx context.Context, sessionID string) *models.ChatSession {
	if r.cache == nil {
		return nil
	}

	var session models.ChatSession
	err := r.cache.Get(ctx, utils.CacheChatSessionPrefix+sessionID, &session)
	if err != nil {
		return nil
	}

	return &session
}

func (r *chatRepository) invalidateSessionCache(ctx context.Context, sessionID string) {
	if r.cache != nil {
		r.cache.Delete(ctx, utils.CacheChatSessionPrefix+sessionID)
	}
}
