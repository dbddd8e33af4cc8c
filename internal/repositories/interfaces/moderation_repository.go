package interfaces

import (
	"context"

	"carpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ModerationRepository is append-only.
type ModerationRepository interface {
	CreateModAction(ctx context.Context, action *models.ModAction) error
	ListModActionsByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.ModAction, error)
	CreateReport(ctx context.Context, report *models.ChatReport) error
	ListReportsBySession(ctx context.Context, sessionID primitive.ObjectID) ([]*models.ChatReport, error)
}
