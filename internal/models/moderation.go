package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ModActionType string

const (
	ModActionFlagUser      ModActionType = "FLAG_USER"
	ModActionBlockUser     ModActionType = "BLOCK_USER"
	ModActionHideMessage   ModActionType = "HIDE_MESSAGE"
	ModActionUnhideMessage ModActionType = "UNHIDE_MESSAGE"
)

// ModAction is an append-only audit record of a moderator intervention.
type ModAction struct {
	ID          primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	PerformedBy primitive.ObjectID  `json:"performed_by" bson:"performed_by"`
	OnUser      *primitive.ObjectID `json:"on_user,omitempty" bson:"on_user,omitempty"`
	SessionID   *primitive.ObjectID `json:"session_id,omitempty" bson:"session_id,omitempty"`
	MessageID   *primitive.ObjectID `json:"message_id,omitempty" bson:"message_id,omitempty"`
	Action      ModActionType       `json:"action" bson:"action"`
	Reason      string              `json:"reason" bson:"reason"`
	CreatedAt   time.Time           `json:"created_at" bson:"created_at"`
}

type ChatReport struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SessionID  primitive.ObjectID `json:"session_id" bson:"session_id"`
	ReportedBy primitive.ObjectID `json:"reported_by" bson:"reported_by"`
	Reason     string             `json:"reason" bson:"reason"`
	CreatedAt  time.Time          `json:"created_at" bson:"created_at"`
}

type ReportRequest struct {
	Reason    string `json:"reason" form:"reason" validate:"max=2000"`
	SessionID string `json:"session_id" form:"session_id"`
}
