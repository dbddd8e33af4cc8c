package memory

import (
	"context"
	"time"

	"carpool/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type moderationRepository struct {
	store *Store
}

func (r *moderationRepository) CreateModAction(ctx context.Context, action *models.ModAction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	action.ID = primitive.NewObjectID()
	action.CreatedAt = time.Now()
	c := *action
	r.store.modActions = append(r.store.modActions, &c)
	return nil
}

func (r *moderationRepository) ListModActionsByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.ModAction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var actions []*models.ModAction
	for _, action := range r.store.modActions {
		if action.OnUser != nil && *action.OnUser == userID {
			c := *action
			actions = append(actions, &c)
		}
	}
	return actions, nil
}

func (r *moderationRepository) CreateReport(ctx context.Context, report *models.ChatReport) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	report.ID = primitive.NewObjectID()
	report.CreatedAt = time.Now()
	c := *report
	r.store.reports = append(r.store.reports, &c)
	return nil
}

func (r *moderationRepository) ListReportsBySession(ctx context.Context, sessionID primitive.ObjectID) ([]*models.ChatReport, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var reports []*models.ChatReport
	for _, report := range r.store.reports {
		if report.SessionID == sessionID {
			c := *report
			reports = append(reports, &c)
		}
	}
	return reports, nil
}
