package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const PermissionModerateMessages = "chat.can_moderate_messages"

type NotificationPreferences struct {
	UnreadMessages bool `json:"unread_messages" bson:"unread_messages"`
}

type User struct {
	ID                      primitive.ObjectID       `json:"id" bson:"_id,omitempty"`
	Username                string                   `json:"username" bson:"username"`
	Email                   string                   `json:"email" bson:"email"`
	Phone                   string                   `json:"phone,omitempty" bson:"phone,omitempty"`
	Permissions             []string                 `json:"permissions" bson:"permissions"`
	NotificationPreferences *NotificationPreferences `json:"notification_preferences" bson:"notification_preferences"`
}

// WantsUnreadNotices defaults to true when no preference was stored.
func (u *User) WantsUnreadNotices() bool {
	return u.NotificationPreferences == nil || u.NotificationPreferences.UnreadMessages
}

// Principal is the authenticated actor behind a request or connection.
// The zero value is anonymous.
type Principal struct {
	UserID      primitive.ObjectID `json:"user_id"`
	Username    string             `json:"username"`
	UserType    string             `json:"user_type"`
	Permissions []string           `json:"permissions"`
}

func (p Principal) IsAnonymous() bool {
	return p.UserID.IsZero()
}

func (p Principal) HasPermission(permission string) bool {
	if p.IsAnonymous() {
		return false
	}
	for _, granted := range p.Permissions {
		if granted == permission {
			return true
		}
	}
	return false
}
