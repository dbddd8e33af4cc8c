package services

import (
	"context"
	"errors"
	"testing"

	"carpool/internal/models"
	"carpool/internal/repositories/memory"
	"carpool/pkg/logger"
	"carpool/pkg/push"
	"carpool/pkg/sms"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type recordingPublisher struct {
	keys []string
}

func (p *recordingPublisher) PublishJSON(ctx context.Context, routingKey string, v interface{}) error {
	p.keys = append(p.keys, routingKey)
	return nil
}

type recordingPush struct {
	requests []*push.NotificationRequest
}

func (p *recordingPush) SendNotification(ctx context.Context, request *push.NotificationRequest) (*push.NotificationResponse, error) {
	p.requests = append(p.requests, request)
	return &push.NotificationResponse{Success: true}, nil
}

type recordingSMS struct {
	requests []*sms.SMSRequest
}

func (p *recordingSMS) SendSMS(ctx context.Context, request *sms.SMSRequest) (*sms.SMSResponse, error) {
	p.requests = append(p.requests, request)
	return &sms.SMSResponse{Status: "sent"}, nil
}

type failingNotifier struct{ err error }

func (n failingNotifier) Notify(ctx context.Context, notice *models.Notice) error { return n.err }

func TestQueueNotifierRoutesByKind(t *testing.T) {
	t.Parallel()

	publisher := &recordingPublisher{}
	notifier := NewQueueNotifier(publisher)
	notice := &models.Notice{Kind: models.NoticeReservationAccepted, RecipientID: primitive.NewObjectID()}

	if err := notifier.Notify(context.Background(), notice); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(publisher.keys) != 1 || publisher.keys[0] != "notice.reservation_accepted" {
		t.Errorf("unexpected routing keys %v", publisher.keys)
	}
}

func TestPushNotifierTargetsUserTopic(t *testing.T) {
	t.Parallel()

	provider := &recordingPush{}
	recipient := primitive.NewObjectID()
	notice := &models.Notice{Kind: models.NoticeUnreadMessages, RecipientID: recipient, UnreadCount: 3}

	if err := NewPushNotifier(provider).Notify(context.Background(), notice); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	request := provider.requests[0]
	if request.Topic != "user_"+recipient.Hex() {
		t.Errorf("expected user topic, got %s", request.Topic)
	}
	if request.Data["unread_count"] != "3" || request.Body != "You have 3 unread messages." {
		t.Errorf("unexpected push payload %+v", request)
	}
}

func TestSMSNotifierTextsKnownPhones(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	withPhone := &models.User{ID: primitive.NewObjectID(), Phone: "+33600000000"}
	withoutPhone := &models.User{ID: primitive.NewObjectID()}
	for _, u := range []*models.User{withPhone, withoutPhone} {
		if err := store.Users().Upsert(ctx, u); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	provider := &recordingSMS{}
	notifier := NewSMSNotifier(store.Users(), provider)
	for _, recipient := range []primitive.ObjectID{withPhone.ID, withoutPhone.ID, primitive.NewObjectID()} {
		notice := &models.Notice{Kind: models.NoticeReservationAccepted, RecipientID: recipient}
		if err := notifier.Notify(ctx, notice); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}

	if len(provider.requests) != 1 {
		t.Fatalf("expected 1 sms, got %d", len(provider.requests))
	}
	if provider.requests[0].To != withPhone.Phone {
		t.Errorf("expected %s, got %s", withPhone.Phone, provider.requests[0].To)
	}
	if provider.requests[0].Message != "Reservation accepted: The driver accepted your reservation." {
		t.Errorf("unexpected body %q", provider.requests[0].Message)
	}
}

func TestMultiNotifierJoinsErrors(t *testing.T) {
	t.Parallel()

	errA, errB := errors.New("a"), errors.New("b")
	publisher := &recordingPublisher{}
	multi := MultiNotifier{
		failingNotifier{errA},
		NewQueueNotifier(publisher),
		NewLogNotifier(logger.NewNop()),
		failingNotifier{errB},
	}

	err := multi.Notify(context.Background(), &models.Notice{Kind: models.NoticeReservationDeclined})
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("expected both errors joined, got %v", err)
	}
	if len(publisher.keys) != 1 {
		t.Errorf("expected healthy notifiers to still deliver")
	}
	if (MultiNotifier{}).Notify(context.Background(), &models.Notice{}) != nil {
		t.Error("expected empty fan-out to succeed")
	}
}
