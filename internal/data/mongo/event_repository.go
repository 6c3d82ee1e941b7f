package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

const (
	// EventCollectionName holds the append-only transaction log
	EventCollectionName = "transaction_events"
	// DecisionCollectionName holds the append-only authorization audit trail
	DecisionCollectionName = "event_decisions"
)

var _ txlog.Repository = (*EventRepository)(nil)

// EventRepository implements the txlog.Repository interface for MongoDB
type EventRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewEventRepository creates a new MongoDB transaction log repository
func NewEventRepository(logger *slog.Logger, db *mongo.Database) *EventRepository {
	return &EventRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureIndexes creates the uniqueness and lookup indexes the repository relies on
func (r *EventRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(EventCollectionName).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "event_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			Keys: bson.D{{Key: "idempotency_key", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"idempotency_key": bson.M{"$type": "string"}}),
		},
		{Keys: bson.D{{Key: "account_ref", Value: 1}, {Key: "occurred_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create transaction event indexes: %w", err)
	}

	_, err = r.db.Collection(DecisionCollectionName).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "event_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create decision indexes: %w", err)
	}
	return nil
}

// Append inserts a new event. Returns ErrDuplicateEvent if the event ID or idempotency
// key already exists.
func (r *EventRepository) Append(ctx context.Context, event *txlog.Event) error {
	collection := r.db.Collection(EventCollectionName)

	_, err := collection.InsertOne(ctx, event)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return txlog.ErrDuplicateEvent{EventID: event.ID}
		}
		r.logger.Error("Failed to append transaction event",
			"event_id", event.ID.String(),
			"error", err)
		return fmt.Errorf("failed to append transaction event: %w", err)
	}

	return nil
}

// GetByID retrieves an event by its ID.
// Returns ErrEventNotFound if no such event exists.
func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*txlog.Event, error) {
	collection := r.db.Collection(EventCollectionName)

	var event txlog.Event
	err := collection.FindOne(ctx, bson.M{"event_id": id}).Decode(&event)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, txlog.ErrEventNotFound{EventID: id}
		}
		r.logger.Error("Failed to get transaction event",
			"event_id", id.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get transaction event: %w", err)
	}

	return &event, nil
}

// GetByIdempotencyKey retrieves an event using its idempotency key.
// Returns nil if no event exists, enabling idempotent command processing.
func (r *EventRepository) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*txlog.Event, error) {
	if idempotencyKey == "" {
		return nil, errors.New("idempotency key cannot be empty")
	}

	collection := r.db.Collection(EventCollectionName)

	var event txlog.Event
	err := collection.FindOne(ctx, bson.M{"idempotency_key": idempotencyKey}).Decode(&event)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		r.logger.Error("Failed to get transaction event by idempotency key",
			"idempotency_key", idempotencyKey,
			"error", err)
		return nil, fmt.Errorf("failed to get transaction event by idempotency key: %w", err)
	}

	return &event, nil
}

// ListByAccount returns every event of the account ordered by occurrence
func (r *EventRepository) ListByAccount(ctx context.Context, accountRef string) ([]*txlog.Event, error) {
	return r.find(ctx, bson.M{"account_ref": accountRef}, chronological())
}

// ListByAccountUntil returns the account's events dated on or before until
func (r *EventRepository) ListByAccountUntil(ctx context.Context, accountRef string, until time.Time) ([]*txlog.Event, error) {
	filter := bson.M{
		"account_ref": accountRef,
		"occurred_at": bson.M{"$lte": until},
	}
	return r.find(ctx, filter, chronological())
}

// GetByAccountPaged retrieves a page of the account's events, newest first
func (r *EventRepository) GetByAccountPaged(ctx context.Context, accountRef string, limit, offset int) ([]*txlog.Event, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}, {Key: "event_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	return r.find(ctx, bson.M{"account_ref": accountRef}, opts)
}

// CountByAccount counts the account's events
func (r *EventRepository) CountByAccount(ctx context.Context, accountRef string) (int64, error) {
	collection := r.db.Collection(EventCollectionName)

	count, err := collection.CountDocuments(ctx, bson.M{"account_ref": accountRef})
	if err != nil {
		r.logger.Error("Failed to count transaction events",
			"account_ref", accountRef,
			"error", err)
		return 0, fmt.Errorf("failed to count transaction events: %w", err)
	}

	return count, nil
}

// Decide records the decision in the audit trail and moves the event out of PENDING.
// The unique decision per event makes concurrent approve/reject race to a single winner;
// replaying the winning decision is a no-op that completes a half-applied write.
func (r *EventRepository) Decide(ctx context.Context, decision *txlog.Decision) error {
	event, err := r.GetByID(ctx, decision.EventID)
	if err != nil {
		return err
	}
	if event.Status.IsTerminal() {
		return txlog.ErrStatusImmutable{EventID: event.ID, Status: event.Status}
	}

	applied := decision
	if _, err := r.db.Collection(DecisionCollectionName).InsertOne(ctx, decision); err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			r.logger.Error("Failed to record decision",
				"event_id", decision.EventID.String(),
				"error", err)
			return fmt.Errorf("failed to record decision: %w", err)
		}

		var existing txlog.Decision
		if err := r.db.Collection(DecisionCollectionName).FindOne(ctx, bson.M{"event_id": decision.EventID}).Decode(&existing); err != nil {
			return fmt.Errorf("failed to load existing decision: %w", err)
		}
		if existing.To != decision.To {
			return txlog.ErrStatusImmutable{EventID: decision.EventID, Status: existing.To}
		}
		applied = &existing
	}

	update := bson.M{
		"$set": bson.M{
			"status":           applied.To,
			"rejection_reason": applied.Reason,
			"decided_at":       applied.DecidedAt,
		},
	}
	filter := bson.M{"event_id": applied.EventID, "status": shared.EventStatusPending}

	result, err := r.db.Collection(EventCollectionName).UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to apply decision",
			"event_id", applied.EventID.String(),
			"status", string(applied.To),
			"error", err)
		return fmt.Errorf("failed to apply decision: %w", err)
	}

	if result.MatchedCount == 0 {
		return txlog.ErrStatusImmutable{EventID: applied.EventID, Status: applied.To}
	}

	return nil
}

func (r *EventRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*txlog.Event, error) {
	collection := r.db.Collection(EventCollectionName)

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get transaction events",
			"filter", filter,
			"error", err)
		return nil, fmt.Errorf("failed to get transaction events: %w", err)
	}
	defer cursor.Close(ctx)

	events := make([]*txlog.Event, 0)
	if err := cursor.All(ctx, &events); err != nil {
		r.logger.Error("Failed to decode transaction events",
			"filter", filter,
			"error", err)
		return nil, fmt.Errorf("failed to decode transaction events: %w", err)
	}

	return events, nil
}

func chronological() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}, {Key: "event_id", Value: 1}})
}
