package mongodb

import (
	"context"
	"fmt"
	"time"

	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type moderationRepository struct {
	actionsCollection *mongo.Collection
	reportsCollection *mongo.Collection
}

func NewModerationRepository(db *mongo.Database) interfaces.ModerationRepository {
	return &moderationRepository{
		actionsCollection: db.Collection("mod_actions"),
		reportsCollection: db.Collection("chat_reports"),
	}
}

func (r *moderationRepository) CreateModAction(ctx context.Context, action *models.ModAction) error {
	action.ID = primitive.NewObjectID()
	action.CreatedAt = time.Now()

	_, err := r.actionsCollection.InsertOne(ctx, action)
	if err != nil {
		return fmt.Errorf("failed to create mod action: %w", err)
	}

	return nil
}

func (r *moderationRepository) ListModActionsByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.ModAction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.actionsCollection.Find(ctx, bson.M{"on_user": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find mod actions: %w", err)
	}
	defer cursor.Close(ctx)

	var actions []*models.ModAction
	if err := cursor.All(ctx, &actions); err != nil {
		return nil, fmt.Errorf("failed to decode mod actions: %w", err)
	}

	return actions, nil
}

func (r *moderationRepository) CreateReport(ctx context.Context, report *models.ChatReport) error {
	report.ID = primitive.NewObjectID()
	report.CreatedAt = time.Now()

	_, err := r.reportsCollection.InsertOne(ctx, report)
	if err != nil {
		return fmt.Errorf("failed to create chat report: %w", err)
	}

	return nil
}

func (r *moderationRepository) ListReportsBySession(ctx context.Context, sessionID primitive.ObjectID) ([]*models.ChatReport, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.reportsCollection.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find chat reports: %w", err)
	}
	defer cursor.Close(ctx)

	var reports []*models.ChatReport
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("failed to decode chat reports: %w", err)
	}

	return reports, nil
}
