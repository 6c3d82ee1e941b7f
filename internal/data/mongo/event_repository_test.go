package mongo

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/cooperative-ledger/internal/domain/shared"
	"github.com/cooperative-ledger/internal/domain/txlog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sampleEvent(status shared.EventStatus) *txlog.Event {
	slot := 3
	return &txlog.Event{
		ID:             uuid.Must(uuid.NewV7()),
		AccountRef:     "SAV-001",
		Amount:         10000000,
		Direction:      shared.DirectionCredit,
		Source:         shared.EventSourceMemberPayment,
		OccurredAt:     time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC),
		Status:         status,
		SlotIndex:      &slot,
		IdempotencyKey: "idem-1",
		CreatedAt:      time.Date(2024, time.March, 5, 8, 0, 0, 0, time.UTC),
	}
}

// toDoc round-trips v through BSON so it can be served as a mock cursor document
func toDoc(t *testing.T, v interface{}) bson.D {
	t.Helper()
	raw, err := bson.Marshal(v)
	require.NoError(t, err)
	var doc bson.D
	require.NoError(t, bson.Unmarshal(raw, &doc))
	return doc
}

func TestEventRepository_Append(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("Success", func(mt *mtest.T) {
		repo := NewEventRepository(testLogger(), mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		err := repo.Append(context.Background(), sampleEvent(shared.EventStatusPending))
		assert.NoError(mt, err)
	})

	mt.Run("DuplicateKey", func(mt *mtest.T) {
		repo := NewEventRepository(testLogger(), mt.DB)
		event := sampleEvent(shared.EventStatusPending)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		err := repo.Append(context.Background(), event)
		assert.ErrorIs(mt, err, txlog.ErrDuplicateEvent{EventID: event.ID})
	})

	mt.Run("CommandError", func(mt *mtest.T) {
		repo := NewEventRepository(testLogger(), mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad value",
		}))

		err := repo.Append(context.Background(), sampleEvent(shared.EventStatusPending))
		require.Error(mt, err)
		assert.Contains(mt, err.Error(), "failed to append transaction event")
	})
}

func TestEventRepository_GetByID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ns := "test." + EventCollectionName

	mt.Run("Found", func(mt *mtest.T) {
		repo := NewEventRepository(testLogger(), mt.DB)
		event := sampleEvent(shared.EventStatusApproved)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, toDoc(mt.T, event)))

		got, err := repo.GetByID(context.Background(), event.ID)
		require.NoError(mt, err)
		assert.Equal(mt, event.ID, got.ID)
		assert.Equal(mt, event.Amount, got.Amount)
		assert.Equal(mt, shared.EventStatusApproved, got.Status)
		require.NotNil(mt, got.SlotIndex)
		assert.Equal(mt, 3, *got.SlotIndex)
	})

	mt.Run("NotFound", func(mt *mtest.T) {
		repo := NewEventRepository(testLogger(), mt.DB)
		id := uuid.New()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := repo.GetByID(context.Background(), id)
		assert.ErrorIs(mt, err, txlog.ErrEventNotFound{EventID: id})
	})
}

func TestEventRepository_GetByIdempotencyKey(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("EmptyKey", func(mt *mtest.T) {
		repo := NewEventRepository(testLogger(), mt.DB)
		_, err := repo.GetByIdempotencyKey(context.Background(), "")
		assert.Error(mt, err)
	})

	mt.Run("Missing", func(mt *mtest.T) {
		repo := NewEventRepository(testLogger(), mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test."+EventCollectionName, mtest.FirstBatch))

		got, err := repo.GetByIdempotencyKey(context.Background(), "idem-404")
		assert.NoError(mt, err)
		assert.Nil(mt, got)
	})
}

func TestEventRepository_ListByAccount(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("DecodesAll", func(mt *mtest.T) {
		repo := NewEventRepository(testLogger(), mt.DB)
		first, second := sampleEvent(shared.EventStatusApproved), sampleEvent(shared.EventStatusRejected)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test."+EventCollectionName, mtest.FirstBatch,
			toDoc(mt.T, first), toDoc(mt.T, second)))

		events, err := repo.ListByAccount(context.Background(), "SAV-001")
		require.NoError(mt, err)
		require.Len(mt, events, 2)
		assert.Equal(mt, first.ID, events[0].ID)
		assert.Equal(mt, second.ID, events[1].ID)
	})

	mt.Run("Empty", func(mt *mtest.T) {
		repo := NewEventRepository(testLogger(), mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test."+EventCollectionName, mtest.FirstBatch))

		events, err := repo.ListByAccountUntil(context.Background(), "SAV-001", time.Now())
		require.NoError(mt, err)
		assert.NotNil(mt, events)
		assert.Empty(mt, events)
	})
}

func TestEventRepository_CountByAccount(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("Success", func(mt *mtest.T) {
		repo := NewEventRepository(testLogger(), mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test."+EventCollectionName, mtest.FirstBatch,
			bson.D{{Key: "n", Value: int32(7)}}))

		count, err := repo.CountByAccount(context.Background(), "SAV-001")
		require.NoError(mt, err)
		assert.Equal(mt, int64(7), count)
	})
}

func TestEventRepository_Decide(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	eventsNS := "test." + EventCollectionName
	decisionsNS := "test." + DecisionCollectionName

	mt.Run("Approve", func(mt *mtest.T) {
		repo := NewEventRepository(testLogger(), mt.DB)
		event := sampleEvent(shared.EventStatusPending)
		decision, err := txlog.NewDecision(event.ID, shared.EventStatusApproved, "", "corr-1")
		require.NoError(mt, err)

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, eventsNS, mtest.FirstBatch, toDoc(mt.T, event)),
			mtest.CreateSuccessResponse(),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)

		assert.NoError(mt, repo.Decide(context.Background(), decision))
	})

	mt.Run("AlreadyDecided", func(mt *mtest.T) {
		repo := NewEventRepository(testLogger(), mt.DB)
		event := sampleEvent(shared.EventStatusApproved)
		decision, err := txlog.NewDecision(event.ID, shared.EventStatusRejected, "duplicate transfer", "corr-2")
		require.NoError(mt, err)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, eventsNS, mtest.FirstBatch, toDoc(mt.T, event)))

		err = repo.Decide(context.Background(), decision)
		var immutable txlog.ErrStatusImmutable
		require.ErrorAs(mt, err, &immutable)
		assert.Equal(mt, shared.EventStatusApproved, immutable.Status)
	})

	mt.Run("ConflictingConcurrentDecision", func(mt *mtest.T) {
		repo := NewEventRepository(testLogger(), mt.DB)
		event := sampleEvent(shared.EventStatusPending)
		decision, err := txlog.NewDecision(event.ID, shared.EventStatusApproved, "", "corr-3")
		require.NoError(mt, err)
		winner, err := txlog.NewDecision(event.ID, shared.EventStatusRejected, "wrong slot", "corr-4")
		require.NoError(mt, err)

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, eventsNS, mtest.FirstBatch, toDoc(mt.T, event)),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key error"}),
			mtest.CreateCursorResponse(0, decisionsNS, mtest.FirstBatch, toDoc(mt.T, winner)),
		)

		err = repo.Decide(context.Background(), decision)
		assert.ErrorIs(mt, err, txlog.ErrStatusImmutable{EventID: event.ID})
	})

	mt.Run("LostUpdate", func(mt *mtest.T) {
		repo := NewEventRepository(testLogger(), mt.DB)
		event := sampleEvent(shared.EventStatusPending)
		decision, err := txlog.NewDecision(event.ID, shared.EventStatusApproved, "", "corr-5")
		require.NoError(mt, err)

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, eventsNS, mtest.FirstBatch, toDoc(mt.T, event)),
			mtest.CreateSuccessResponse(),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
		)

		err = repo.Decide(context.Background(), decision)
		assert.ErrorIs(mt, err, txlog.ErrStatusImmutable{})
	})
}
