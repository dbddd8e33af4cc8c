package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Message struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SessionID   primitive.ObjectID `json:"session_id" bson:"session_id" validate:"required"`
	SenderID    primitive.ObjectID `json:"sender_id" bson:"sender_id" validate:"required"`
	RecipientID primitive.ObjectID `json:"recipient_id" bson:"recipient_id"`
	Content     string             `json:"content" bson:"content"`
	Hidden      bool               `json:"hidden" bson:"hidden"`
	ReadAt      *time.Time         `json:"read_at" bson:"read_at"`
	NotifiedAt  *time.Time         `json:"notified_at" bson:"notified_at"`
	NotifyRunID string             `json:"-" bson:"notify_run_id,omitempty"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
}
