package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"carpool/internal/models"
	"carpool/internal/repositories/interfaces"
	"carpool/internal/utils"
	"carpool/pkg/logger"
	"carpool/pkg/push"
	"carpool/pkg/sms"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notifier hands notices to an external delivery channel.
type Notifier interface {
	Notify(ctx context.Context, notice *models.Notice) error
}

type JSONPublisher interface {
	PublishJSON(ctx context.Context, routingKey string, v interface{}) error
}

// QueueNotifier publishes notices for the mail workers. The routing key is
// notice.<kind>.
type QueueNotifier struct {
	publisher JSONPublisher
}

func NewQueueNotifier(publisher JSONPublisher) *QueueNotifier {
	return &QueueNotifier{publisher: publisher}
}

func NoticeRoutingKey(kind models.NoticeKind) string {
	return "notice." + string(kind)
}

func (n *QueueNotifier) Notify(ctx context.Context, notice *models.Notice) error {
	return n.publisher.PublishJSON(ctx, NoticeRoutingKey(notice.Kind), notice)
}

// PushNotifier sends notices to the recipient's FCM topic.
type PushNotifier struct {
	provider push.PushProvider
}

func NewPushNotifier(provider push.PushProvider) *PushNotifier {
	return &PushNotifier{provider: provider}
}

func UserTopic(userID primitive.ObjectID) string {
	return "user_" + userID.Hex()
}

func (n *PushNotifier) Notify(ctx context.Context, notice *models.Notice) error {
	_, err := n.provider.SendNotification(ctx, pushRequest(notice))
	if err != nil {
		return fmt.Errorf("failed to push %s notice: %w", notice.Kind, err)
	}
	return nil
}

func pushRequest(notice *models.Notice) *push.NotificationRequest {
	title, body := noticeText(notice)
	data := map[string]string{"kind": string(notice.Kind)}
	if notice.ReservationID != nil {
		data["reservation_id"] = notice.ReservationID.Hex()
	}
	if notice.RideID != nil {
		data["ride_id"] = notice.RideID.Hex()
	}
	if notice.UnreadCount > 0 {
		data["unread_count"] = strconv.Itoa(notice.UnreadCount)
	}

	return &push.NotificationRequest{
		Topic:       UserTopic(notice.RecipientID),
		Title:       title,
		Body:        body,
		Data:        data,
		CollapseKey: string(notice.Kind),
	}
}

func noticeText(notice *models.Notice) (string, string) {
	switch notice.Kind {
	case models.NoticeReservationRequested:
		return "New reservation request", "A rider asked to join your ride."
	case models.NoticeReservationAccepted:
		return "Reservation accepted", "The driver accepted your reservation."
	case models.NoticeReservationDeclined:
		return "Reservation declined", "The driver declined your reservation."
	case models.NoticeUnreadMessages:
		return "Unread messages", fmt.Sprintf("You have %d unread messages.", notice.UnreadCount)
	default:
		return "Carpool", ""
	}
}

// SMSNotifier texts the recipient's stored phone number. Recipients
// without one are skipped.
type SMSNotifier struct {
	users    interfaces.UserRepository
	provider sms.SMSProvider
}

func NewSMSNotifier(users interfaces.UserRepository, provider sms.SMSProvider) *SMSNotifier {
	return &SMSNotifier{users: users, provider: provider}
}

func (n *SMSNotifier) Notify(ctx context.Context, notice *models.Notice) error {
	user, err := n.users.GetByID(ctx, notice.RecipientID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil
		}
		return err
	}
	if user.Phone == "" {
		return nil
	}

	title, body := noticeText(notice)
	if body != "" {
		title += ": " + body
	}
	if _, err := n.provider.SendSMS(ctx, &sms.SMSRequest{
		To:      user.Phone,
		Message: title,
		Type:    "transactional",
	}); err != nil {
		return fmt.Errorf("failed to text %s notice: %w", notice.Kind, err)
	}
	return nil
}

type LogNotifier struct {
	logger *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) Notify(ctx context.Context, notice *models.Notice) error {
	n.logger.WithFields(map[string]interface{}{
		"kind":         notice.Kind,
		"recipient_id": notice.RecipientID.Hex(),
		"unread_count": notice.UnreadCount,
	}).Info("Notice emitted")
	return nil
}

// MultiNotifier delivers to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, notice *models.Notice) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
