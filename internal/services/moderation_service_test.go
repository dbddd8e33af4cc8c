package services

import (
	"context"
	"errors"
	"testing"

	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/internal/utils"
	"carpool/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestHideAndUnhideMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	driver, rider, mod := user(), user(), moderator()
	ride := f.publishRide(t, driver, 2)
	session, _ := f.chat.OpenSession(ctx, rider, ride.ID)
	message, _ := f.chat.Send(ctx, rider, session.ID, "call me at 555-0100")

	_, err := f.moderation.HideMessage(ctx, driver, message.ID)
	expectErr(t, err, utils.ErrPermissionDenied)

	hidden, err := f.moderation.HideMessage(ctx, mod, message.ID)
	if err != nil {
		t.Fatalf("HideMessage: %v", err)
	}
	if !hidden.Hidden {
		t.Error("expected message to be hidden")
	}

	events := f.broadcaster.sent(session.ID)
	last := events[len(events)-1]
	if last.Type != models.ChatEventAction || last.Action != models.ChatActionHide || last.MessageID != message.ID.Hex() {
		t.Errorf("unexpected hide event %+v", last)
	}

	if _, err := f.moderation.UnhideMessage(ctx, mod, message.ID); err != nil {
		t.Fatalf("UnhideMessage: %v", err)
	}
	stored, _ := f.store.Chat().GetMessageByID(ctx, message.ID)
	if stored.Hidden {
		t.Error("expected message to be visible again")
	}

	actions, err := f.moderation.ListUserActions(ctx, mod, rider.UserID)
	if err != nil {
		t.Fatalf("ListUserActions: %v", err)
	}
	if len(actions) != 2 || actions[0].Action != models.ModActionHideMessage || actions[1].Action != models.ModActionUnhideMessage {
		t.Errorf("expected hide then unhide audit records, got %+v", actions)
	}

	_, err = f.moderation.HideMessage(ctx, mod, primitive.NewObjectID())
	expectErr(t, err, utils.ErrNotFound)
}

type failingModActions struct {
	interfaces.ModerationRepository
	err error
}

func (r failingModActions) CreateModAction(ctx context.Context, action *models.ModAction) error {
	return r.err
}

func TestHideBroadcastsEvenWhenAuditWriteFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	driver, rider, mod := user(), user(), moderator()
	ride := f.publishRide(t, driver, 2)
	session, _ := f.chat.OpenSession(ctx, rider, ride.ID)
	message, _ := f.chat.Send(ctx, rider, session.ID, "hello")

	auditErr := errors.New("audit store down")
	moderation := NewModerationService(
		f.store.Chat(),
		failingModActions{ModerationRepository: f.store.Moderation(), err: auditErr},
		NewAccessGuard(),
		f.broadcaster,
		logger.NewNop(),
	)

	_, err := moderation.HideMessage(ctx, mod, message.ID)
	if !errors.Is(err, auditErr) {
		t.Fatalf("expected the audit failure to surface, got %v", err)
	}

	stored, _ := f.store.Chat().GetMessageByID(ctx, message.ID)
	if !stored.Hidden {
		t.Fatal("expected the hide to stay applied")
	}
	events := f.broadcaster.sent(session.ID)
	last := events[len(events)-1]
	if last.Type != models.ChatEventAction || last.Action != models.ChatActionHide || last.MessageID != message.ID.Hex() {
		t.Errorf("expected connected clients to be told about the hide, got %+v", last)
	}
}

func TestReportUserRequiresModerator(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	target := primitive.NewObjectID()

	_, err := f.moderation.ReportUser(ctx, user(), target, nil, "spam")
	expectErr(t, err, utils.ErrPermissionDenied)

	mod := moderator()
	action, err := f.moderation.ReportUser(ctx, mod, target, nil, "spam")
	if err != nil {
		t.Fatalf("ReportUser: %v", err)
	}
	if action.Action != models.ModActionFlagUser || *action.OnUser != target || action.PerformedBy != mod.UserID {
		t.Errorf("unexpected mod action %+v", action)
	}
}

func TestReportSessionAllowsRepeatedReports(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	driver, rider := user(), user()
	ride := f.publishRide(t, driver, 2)
	session, _ := f.chat.OpenSession(ctx, rider, ride.ID)

	_, err := f.moderation.ReportSession(ctx, user(), session.ID, "rude")
	expectErr(t, err, utils.ErrPermissionDenied)

	for i := 0; i < 2; i++ {
		if _, err := f.moderation.ReportSession(ctx, rider, session.ID, "rude"); err != nil {
			t.Fatalf("ReportSession: %v", err)
		}
	}

	_, err = f.moderation.ListReports(ctx, rider, session.ID)
	expectErr(t, err, utils.ErrPermissionDenied)

	reports, err := f.moderation.ListReports(ctx, moderator(), session.ID)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(reports) != 2 {
		t.Errorf("expected both reports kept, got %d", len(reports))
	}

	sessions, total, err := f.moderation.ListSessions(ctx, moderator(), &utils.PaginationParams{Page: 1, PageSize: 10})
	if err != nil || total != 1 || len(sessions) != 1 {
		t.Errorf("expected one session in the moderation centre, got %d/%d (%v)", len(sessions), total, err)
	}
}
