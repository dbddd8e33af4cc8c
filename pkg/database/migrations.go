package database

import (
	"context"
	"fmt"
	"time"

	"carpool/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Migration struct {
	Version     int
	Description string
	Up          func(context.Context, *mongo.Database) error
	Down        func(context.Context, *mongo.Database) error
}

type Migrator struct {
	db         *mongo.Database
	migrations []Migration
	logger     *logger.Logger
}

func NewMigrator(db *mongo.Database, log *logger.Logger) *Migrator {
	return &Migrator{
		db:         db,
		migrations: getMigrations(),
		logger:     log,
	}
}

func (m *Migrator) Up(ctx context.Context) error {
	// Create migrations collection if it doesn't exist
	err := m.createMigrationsCollection(ctx)
	if err != nil {
		return err
	}

	// Get current version
	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return err
	}

	// Run migrations
	for _, migration := range m.migrations {
		if migration.Version > currentVersion {
			m.logger.WithField("version", migration.Version).Infof("Running migration: %s", migration.Description)

			err := migration.Up(ctx, m.db)
			if err != nil {
				return fmt.Errorf("migration %d failed: %w", migration.Version, err)
			}

			err = m.updateVersion(ctx, migration.Version)
			if err != nil {
				return fmt.Errorf("failed to update migration version: %w", err)
			}
		}
	}

	return nil
}

func (m *Migrator) Down(ctx context.Context, targetVersion int) error {
	currentVersion, err := m.getCurrentVersion(ctx)
	if err != nil {
		return err
	}

	for i := len(m.migrations) - 1; i >= 0; i-- {
		migration := m.migrations[i]
		if migration.Version <= currentVersion && migration.Version > targetVersion {
			m.logger.WithField("version", migration.Version).Infof("Reverting migration: %s", migration.Description)

			err := migration.Down(ctx, m.db)
			if err != nil {
				return fmt.Errorf("migration %d rollback failed: %w", migration.Version, err)
			}

			err = m.updateVersion(ctx, migration.Version-1)
			if err != nil {
				return fmt.Errorf("failed to update migration version: %w", err)
			}
		}
	}

	return nil
}

func (m *Migrator) createMigrationsCollection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	collections, err := m.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return err
	}

	for _, name := range collections {
		if name == "migrations" {
			return nil
		}
	}

	return m.db.CreateCollection(ctx, "migrations")
}

func (m *Migrator) getCurrentVersion(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result struct {
		Version int `bson:"version"`
	}

	err := m.db.Collection("migrations").FindOne(ctx, bson.D{}).Decode(&result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, nil
		}
		return 0, err
	}

	return result.Version, nil
}

func (m *Migrator) updateVersion(ctx context.Context, version int) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := m.db.Collection("migrations").ReplaceOne(
		ctx,
		bson.D{},
		bson.D{{Key: "version", Value: version}, {Key: "updated_at", Value: time.Now()}},
		options.Replace().SetUpsert(true),
	)

	return err
}

func getMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users collection with indexes",
			Up:          createUsersIndexes,
			Down:        dropCollection("users"),
		},
		{
			Version:     2,
			Description: "Create rides and reservations collections with indexes",
			Up:          createLedgerIndexes,
			Down:        dropCollection("rides", "reservations"),
		},
		{
			Version:     3,
			Description: "Create chat sessions and messages collections with indexes",
			Up:          createChatIndexes,
			Down:        dropCollection("chat_sessions", "messages"),
		},
		{
			Version:     4,
			Description: "Create moderation collections with indexes",
			Up:          createModerationIndexes,
			Down:        dropCollection("mod_actions", "chat_reports"),
		},
	}
}

func dropCollection(names ...string) func(context.Context, *mongo.Database) error {
	return func(ctx context.Context, db *mongo.Database) error {
		for _, name := range names {
			if err := db.Collection(name).Drop(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func createUsersIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "notification_preferences.unread_messages", Value: 1}},
		},
	}

	_, err := db.Collection("users").Indexes().CreateMany(ctx, indexes)
	return err
}

func createLedgerIndexes(ctx context.Context, db *mongo.Database) error {
	rideIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "driver_id", Value: 1}}},
		{Keys: bson.D{{Key: "riders", Value: 1}}},
		{Keys: bson.D{{Key: "start_at", Value: 1}}},
		{Keys: bson.D{{Key: "end_at", Value: 1}}},
	}
	if _, err := db.Collection("rides").Indexes().CreateMany(ctx, rideIndexes); err != nil {
		return err
	}

	reservationIndexes := []mongo.IndexModel{
		{
			// At most one live reservation per (user, ride).
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "ride_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("live_reservation_unique").
				SetPartialFilterExpression(bson.M{"live": true}),
		},
		{Keys: bson.D{{Key: "ride_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	_, err := db.Collection("reservations").Indexes().CreateMany(ctx, reservationIndexes)
	return err
}

func createChatIndexes(ctx context.Context, db *mongo.Database) error {
	sessionIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "ride_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "driver_id", Value: 1}}},
		{Keys: bson.D{{Key: "ride_id", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}
	if _, err := db.Collection("chat_sessions").Indexes().CreateMany(ctx, sessionIndexes); err != nil {
		return err
	}

	messageIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "read_at", Value: 1}, {Key: "notified_at", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "notify_run_id", Value: 1}}, Options: options.Index().SetSparse(true)},
	}
	_, err := db.Collection("messages").Indexes().CreateMany(ctx, messageIndexes)
	return err
}

func createModerationIndexes(ctx context.Context, db *mongo.Database) error {
	if _, err := db.Collection("mod_actions").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "on_user", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "performed_by", Value: 1}}},
	}); err != nil {
		return err
	}

	_, err := db.Collection("chat_reports").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}
